package rerank

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragengine/internal/model"
)

// stubEncoder scores by count of shared words with the query, optionally
// counting calls and failing after a given number of calls. Score is
// called concurrently within a batch, so the counter is mutex-guarded.
type stubEncoder struct {
	id     string
	mu     sync.Mutex
	calls  int
	failAt int // 0 = never fail
}

func (s *stubEncoder) ModelID() string { return s.id }

func (s *stubEncoder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubEncoder) Score(ctx context.Context, query, doc string) (float64, error) {
	s.mu.Lock()
	s.calls++
	failed := s.failAt > 0 && s.calls >= s.failAt
	s.mu.Unlock()
	if failed {
		return 0, errors.New("model unavailable")
	}
	qWords := strings.Fields(strings.ToLower(query))
	dl := strings.ToLower(doc)
	var score float64
	for _, w := range qWords {
		if strings.Contains(dl, w) {
			score++
		}
	}
	return score, nil
}

func cands(texts ...string) []model.SourceChunk {
	out := make([]model.SourceChunk, len(texts))
	for i, t := range texts {
		out[i] = model.SourceChunk{ChunkID: string(rune('a' + i)), Text: t, Score: 0.5}
	}
	return out
}

func TestRerankOrdersByScoreDesc(t *testing.T) {
	enc := &stubEncoder{id: "multi"}
	r := New(DefaultConfig(), nil, enc)
	out := r.Rerank(context.Background(), "go programming", cands("go is great", "python is fine", "go programming language"), 0, 0)
	require.Len(t, out, 3)
	assert.Equal(t, "c", out[0].ChunkID)
	assert.GreaterOrEqual(t, out[0].Score, out[1].Score)
	assert.GreaterOrEqual(t, out[1].Score, out[2].Score)
}

func TestRerankPreservesOriginalScore(t *testing.T) {
	enc := &stubEncoder{id: "multi"}
	r := New(DefaultConfig(), nil, enc)
	out := r.Rerank(context.Background(), "go", cands("go go go"), 0, 0)
	require.Len(t, out, 1)
	assert.Equal(t, 0.5, out[0].Metadata["original_score"])
}

func TestRerankFallsBackToIdentityOnModelFailure(t *testing.T) {
	enc := &stubEncoder{id: "multi", failAt: 1}
	r := New(DefaultConfig(), nil, enc)
	in := cands("a", "b", "c")
	out := r.Rerank(context.Background(), "q", in, 0, 0)
	require.Len(t, out, 3)
	for i := range in {
		assert.Equal(t, in[i].ChunkID, out[i].ChunkID)
	}
}

func TestRerankCacheAvoidsRecompute(t *testing.T) {
	enc := &stubEncoder{id: "multi"}
	r := New(DefaultConfig(), nil, enc)
	in := cands("go code")
	r.Rerank(context.Background(), "go", in, 0, 0)
	callsAfterFirst := enc.callCount()
	r.Rerank(context.Background(), "go", in, 0, 0)
	assert.Equal(t, callsAfterFirst, enc.callCount())
}

func TestRerankEarlyStopSkipsLowScoreCandidates(t *testing.T) {
	enc := &stubEncoder{id: "multi"}
	r := New(DefaultConfig(), nil, enc)
	in := []model.SourceChunk{{ChunkID: "low", Text: "go", Score: 0.01}, {ChunkID: "high", Text: "go", Score: 0.5}}
	r.Rerank(context.Background(), "go", in, 0, 0.1)
	assert.Equal(t, 1, enc.callCount())
}

func TestSelectModelPicksKoreanWhenDominant(t *testing.T) {
	korean := &stubEncoder{id: "ko"}
	multi := &stubEncoder{id: "multi"}
	r := New(DefaultConfig(), korean, multi)
	query := "이것은 한국어 질문입니다"
	docs := []model.SourceChunk{{Text: "이것도 한국어 문서입니다"}}
	picked := r.selectModel(query, docs)
	assert.Equal(t, "ko", picked.ModelID())
}

func TestSelectModelDefaultsToMultilingual(t *testing.T) {
	korean := &stubEncoder{id: "ko"}
	multi := &stubEncoder{id: "multi"}
	r := New(DefaultConfig(), korean, multi)
	picked := r.selectModel("what is the capital of france", []model.SourceChunk{{Text: "Paris is the capital"}})
	assert.Equal(t, "multi", picked.ModelID())
}
