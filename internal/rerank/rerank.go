// Package rerank implements the Adaptive Reranker: Korean-vs-
// multilingual cross-encoder model selection, LRU-cached scoring with
// dynamic batch sizing, early stopping, and identity-rerank fallback on
// model failure.
package rerank

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"ragengine/internal/model"
	"ragengine/internal/obslog"
)

// CrossEncoder scores a single (query, doc text) pair. Implementations
// wrap a real cross-encoder model; see the korean/multilingual model ids
// in Config.
type CrossEncoder interface {
	ModelID() string
	Score(ctx context.Context, query, docText string) (float64, error)
}

// Config holds the reranker's tunables.
type Config struct {
	KoreanModelID       string
	MultilingualModelID string
	FP16                bool
	INT8                bool
	CacheSize           int
	EarlyStopThreshold  float64
}

// DefaultConfig returns the standard model ids and cache settings.
func DefaultConfig() Config {
	return Config{
		KoreanModelID:       "ko-reranker",
		MultilingualModelID: "bge-reranker-v2-m3",
		FP16:                true,
		CacheSize:           1000,
		EarlyStopThreshold:  0.1,
	}
}

// Reranker implements the adaptive reranking contract: rerank(query, candidates, top_k,
// threshold) -> ordered candidates with score replaced by the
// cross-encoder score (original preserved under Metadata["original_score"]).
type Reranker struct {
	cfg      Config
	korean   CrossEncoder
	multi    CrossEncoder
	cache    *lru.Cache[string, float64]
}

// New builds a Reranker. korean may be nil if no Korean-specialized model
// is configured, in which case the multilingual model is always used.
func New(cfg Config, korean, multilingual CrossEncoder) *Reranker {
	size := cfg.CacheSize
	if size <= 0 {
		size = 1000
	}
	c, _ := lru.New[string, float64](size)
	return &Reranker{cfg: cfg, korean: korean, multi: multilingual, cache: c}
}

// scriptRatios computes character-level ratios over non-whitespace runes.
type scriptRatios struct {
	korean, english, other float64
}

func computeRatios(s string) scriptRatios {
	var total, kr, en, other int
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		switch {
		case isHangul(r):
			kr++
		case unicode.IsLetter(r) && r <= unicode.MaxASCII:
			en++
		default:
			other++
		}
	}
	if total == 0 {
		return scriptRatios{}
	}
	return scriptRatios{
		korean:  float64(kr) / float64(total),
		english: float64(en) / float64(total),
		other:   float64(other) / float64(total),
	}
}

func isHangul(r rune) bool {
	return (r >= 0xAC00 && r <= 0xD7A3) || (r >= 0x1100 && r <= 0x11FF) || (r >= 0x3130 && r <= 0x318F)
}

// selectModel inspects the query and up to 5 sampled candidates and picks
// the Korean-specialized model iff the query and sample are Korean-dominant
// with short documents and no significant other script, else the multilingual model.
func (r *Reranker) selectModel(query string, candidates []model.SourceChunk) CrossEncoder {
	if r.korean == nil {
		return r.multi
	}
	qr := computeRatios(query)
	sample := candidates
	if len(sample) > 5 {
		sample = sample[:5]
	}
	var sampleKorean, sampleEnglish, sampleOther float64
	var maxDocLen int
	for _, c := range sample {
		sr := computeRatios(c.Text)
		sampleKorean += sr.korean
		sampleEnglish += sr.english
		sampleOther += sr.other
		if len(c.Text) > maxDocLen {
			maxDocLen = len(c.Text)
		}
	}
	n := float64(len(sample))
	if n > 0 {
		sampleKorean /= n
		sampleEnglish /= n
		sampleOther /= n
	}
	noSignificantOther := sampleEnglish < 0.2 && sampleOther < 0.2
	if qr.korean > 0.8 && sampleKorean > 0.7 && maxDocLen < 2000 && noSignificantOther {
		return r.korean
	}
	return r.multi
}

// dynamicBatchSize picks the scoring batch size by candidate count.
func dynamicBatchSize(n int) int {
	switch {
	case n <= 10:
		return n
	case n <= 50:
		return 16
	case n <= 100:
		return 32
	default:
		return 64
	}
}

func (r *Reranker) cacheKey(modelID, query, docText string) string {
	sum := sha256.Sum256([]byte(modelID + "\x00" + query + "\x00" + docText))
	return hex.EncodeToString(sum[:])
}

// Rerank scores each (query, candidate) pair with the selected
// cross-encoder. On model failure it logs and falls
// back to the candidates' prior order (identity rerank) rather than
// erroring the pipeline.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []model.SourceChunk, topK int, earlyStopThreshold float64) []model.SourceChunk {
	if len(candidates) == 0 {
		return candidates
	}
	if earlyStopThreshold <= 0 {
		earlyStopThreshold = r.cfg.EarlyStopThreshold
	}
	encoder := r.selectModel(query, candidates)

	type scored struct {
		chunk        model.SourceChunk
		origRank     int
		rerankScore  float64
		skippedStop  bool
	}
	scoredList := make([]scored, len(candidates))
	batchSize := dynamicBatchSize(len(candidates))
	failed := false

	for start := 0; start < len(candidates) && !failed; start += batchSize {
		end := start + batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			c := candidates[i]
			s := scored{chunk: c, origRank: i}
			if c.Score < earlyStopThreshold {
				s.skippedStop = true
				s.rerankScore = c.Score
				scoredList[i] = s
				continue
			}
			key := r.cacheKey(encoder.ModelID(), query, c.Text)
			if v, ok := r.cache.Get(key); ok {
				s.rerankScore = v
				scoredList[i] = s
				continue
			}
			i := i
			g.Go(func() error {
				v, err := encoder.Score(gctx, query, c.Text)
				if err != nil {
					return err
				}
				r.cache.Add(key, v)
				scoredList[i] = scored{chunk: c, origRank: i, rerankScore: v}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			obslog.FromContext(ctx).Error().Err(err).Str("model", encoder.ModelID()).Msg("rerank_model_failure")
			failed = true
		}
	}

	if failed {
		// Identity rerank fallback: original order preserved.
		out := make([]model.SourceChunk, len(candidates))
		copy(out, candidates)
		if topK > 0 && len(out) > topK {
			out = out[:topK]
		}
		return out
	}

	sort.SliceStable(scoredList, func(i, j int) bool {
		if scoredList[i].rerankScore != scoredList[j].rerankScore {
			return scoredList[i].rerankScore > scoredList[j].rerankScore
		}
		return scoredList[i].origRank < scoredList[j].origRank
	})

	out := make([]model.SourceChunk, 0, len(scoredList))
	for _, s := range scoredList {
		c := s.chunk
		if c.Metadata == nil {
			c.Metadata = map[string]any{}
		}
		c.Metadata["original_score"] = s.chunk.Score
		c.Score = s.rerankScore
		out = append(out, c)
	}
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
