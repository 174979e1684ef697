package observation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragengine/internal/embedgw"
	"ragengine/internal/model"
)

func TestProcessFiltersBelowThreshold(t *testing.T) {
	p := New(Config{Threshold: 0.99, MaxSummaryLength: 500}, embedgw.NewDeterministic(16, true, 1))
	out, err := p.Process(context.Background(), "machine learning", []model.SourceChunk{{ChunkID: "a", Text: "unrelated text about cooking"}}, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestProcessNoveltyIsOneWithoutPriorDocs(t *testing.T) {
	p := New(Config{Threshold: 0, MaxSummaryLength: 500}, nil)
	out, err := p.Process(context.Background(), "go channels", []model.SourceChunk{{ChunkID: "a", Text: "go channels are great"}}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Greater(t, out[0].RelevanceScore, 0.0)
}

func TestProcessTruncatesLongContentPreservingOriginal(t *testing.T) {
	longText := make([]byte, 600)
	for i := range longText {
		longText[i] = 'x'
	}
	p := New(Config{Threshold: 0, MaxSummaryLength: 500}, nil)
	out, err := p.Process(context.Background(), "", []model.SourceChunk{{ChunkID: "a", Text: string(longText)}}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Truncated)
	assert.Equal(t, string(longText), out[0].OriginalContent)
	assert.Contains(t, out[0].Chunk.Text, "...")
}

func TestProcessSortsDescByRelevance(t *testing.T) {
	p := New(Config{Threshold: 0, MaxSummaryLength: 500}, nil)
	out, err := p.Process(context.Background(), "go channels concurrency", []model.SourceChunk{
		{ChunkID: "low", Text: "unrelated"},
		{ChunkID: "high", Text: "go channels concurrency patterns"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "high", out[0].Chunk.ChunkID)
}
