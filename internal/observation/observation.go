// Package observation implements the Observation Processor:
// relevance scoring, threshold filtering, and optional truncation of
// retrieved items.
package observation

import (
	"context"
	"math"
	"sort"
	"strings"

	"ragengine/internal/model"
)

// Config holds the observation processor's tunables.
type Config struct {
	Threshold        float64
	MaxSummaryLength int
}

// DefaultConfig returns the processor's default threshold and truncation
// length.
func DefaultConfig() Config {
	return Config{Threshold: 0.6, MaxSummaryLength: 500}
}

// Embedder is the minimal surface needed to compute the semantic term of
// the relevance score.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Processor scores, filters, and optionally truncates observations.
type Processor struct {
	cfg      Config
	embedder Embedder
}

// New builds a Processor.
func New(cfg Config, embedder Embedder) *Processor {
	return &Processor{cfg: cfg, embedder: embedder}
}

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "is": {}, "are": {}, "of": {}, "to": {}, "in": {}, "for": {}, "on": {}, "with": {}, "at": {}, "by": {}, "it": {}, "this": {}, "that": {},
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) <= 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

func tokenSet(tokens []string) map[string]struct{} {
	s := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, an, bn float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		an += float64(a[i]) * float64(a[i])
		bn += float64(b[i]) * float64(b[i])
	}
	if an == 0 || bn == 0 {
		return 0
	}
	return dot / (math.Sqrt(an) * math.Sqrt(bn))
}

// Observation is one item under consideration, carrying its computed
// relevance and the content state (possibly truncated).
type Observation struct {
	Chunk            model.SourceChunk
	RelevanceScore   float64
	OriginalContent  string
	Truncated        bool
}

// Process scores each candidate against query and priorDocs (for
// novelty), keeps those with relevance >= threshold, sorts desc, and
// truncates content over MaxSummaryLength while preserving
// OriginalContent.
func (p *Processor) Process(ctx context.Context, query string, candidates []model.SourceChunk, priorDocs []model.SourceChunk) ([]Observation, error) {
	var queryVec []float32
	if p.embedder != nil && query != "" {
		v, err := p.embedder.Embed(ctx, query)
		if err == nil {
			queryVec = v
		}
	}
	queryTokens := tokenSet(tokenize(query))

	priorTokens := map[string]struct{}{}
	for _, d := range priorDocs {
		for t := range tokenSet(tokenize(d.Text)) {
			priorTokens[t] = struct{}{}
		}
	}

	out := make([]Observation, 0, len(candidates))
	for _, c := range candidates {
		var semantic float64
		if p.embedder != nil && len(queryVec) > 0 {
			var obsVec []float32
			if v, err := p.embedder.Embed(ctx, c.Text); err == nil {
				obsVec = v
			}
			cos := cosine(queryVec, obsVec)
			semantic = (cos + 1) / 2 // map [-1,1] -> [0,1]
		}

		obsTokens := tokenSet(tokenize(c.Text))
		var overlap float64
		if len(queryTokens) > 0 {
			var inter int
			for t := range queryTokens {
				if _, ok := obsTokens[t]; ok {
					inter++
				}
			}
			overlap = float64(inter) / float64(len(queryTokens))
		}

		var novelty float64
		if len(priorDocs) == 0 {
			novelty = 1
		} else if len(obsTokens) > 0 {
			var novel int
			for t := range obsTokens {
				if _, ok := priorTokens[t]; !ok {
					novel++
				}
			}
			novelty = float64(novel) / float64(len(obsTokens))
		}

		relevance := 0.5*semantic + 0.3*overlap + 0.2*novelty
		if relevance < p.cfg.Threshold {
			continue
		}
		o := Observation{Chunk: c, RelevanceScore: relevance, OriginalContent: c.Text}
		if p.cfg.MaxSummaryLength > 0 && len(c.Text) > p.cfg.MaxSummaryLength {
			o.Chunk.Text = c.Text[:p.cfg.MaxSummaryLength] + "..."
			o.Truncated = true
		}
		out = append(out, o)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RelevanceScore > out[j].RelevanceScore })
	return out, nil
}
