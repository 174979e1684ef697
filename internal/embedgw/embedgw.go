// Package embedgw implements the Embedding Gateway: turns text into
// dense vectors, auto-selects batch size, and caches repeated lookups.
package embedgw

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"ragengine/internal/engerr"
)

// Embedder is the consumed interface: embed(text) and
// embed_batch(texts), fixed dimension per model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Name() string
}

// selectBatchSize picks the dispatch chunk size by input count: <=10 all at
// once, <=100 -> 32, <=1000 -> 64, else 128.
func selectBatchSize(n int) int {
	switch {
	case n <= 10:
		return n
	case n <= 100:
		return 32
	case n <= 1000:
		return 64
	default:
		return 128
	}
}

// Gateway batches and caches calls to an underlying Embedder, splitting
// embed_batch submissions in size-dependent chunks. CPU-
// bound embedding work happens inside inner.EmbedBatch; callers that want
// it off the request goroutine run Gateway methods from a worker pool
// -- the Gateway itself does not spawn goroutines so that
// cancellation via ctx remains straightforward.
type Gateway struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// DefaultCacheSize is the embedding cache's default capacity.
const DefaultCacheSize = 1000

// New wraps inner with an LRU cache of capacity size (DefaultCacheSize if
// size <= 0).
func New(inner Embedder, size int) *Gateway {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, _ := lru.New[string, []float32](size)
	return &Gateway{inner: inner, cache: c}
}

func (g *Gateway) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + g.inner.Name()))
	return hex.EncodeToString(sum[:])
}

// Embed turns one string into a vector, failing InvalidInput on
// empty/whitespace text and ModelError on backend failure.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, engerr.New(engerr.InvalidInput, "embedgw.Embed", nil)
	}
	key := g.cacheKey(text)
	if v, ok := g.cache.Get(key); ok {
		return v, nil
	}
	v, err := g.inner.Embed(ctx, text)
	if err != nil {
		return nil, engerr.New(engerr.ModelError, "embedgw.Embed", err)
	}
	g.cache.Add(key, v)
	return v, nil
}

// EmbedBatch is equivalent to calling Embed element-wise, but dispatches
// to the backend in bounded chunks, reusing the cache
// across calls and within this call (repeats in texts hit the cache).
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, engerr.New(engerr.InvalidInput, "embedgw.EmbedBatch", nil)
		}
	}
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		key := g.cacheKey(t)
		if v, ok := g.cache.Get(key); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	chunkSize := selectBatchSize(len(missTexts))
	if chunkSize <= 0 {
		chunkSize = len(missTexts)
	}
	for start := 0; start < len(missTexts); start += chunkSize {
		end := start + chunkSize
		if end > len(missTexts) {
			end = len(missTexts)
		}
		vecs, err := g.inner.EmbedBatch(ctx, missTexts[start:end])
		if err != nil {
			return nil, engerr.New(engerr.ModelError, "embedgw.EmbedBatch", err)
		}
		for j, v := range vecs {
			origIdx := missIdx[start+j]
			out[origIdx] = v
			g.cache.Add(g.cacheKey(missTexts[start+j]), v)
		}
	}
	return out, nil
}

// Dimension passes through to the inner embedder.
func (g *Gateway) Dimension() int { return g.inner.Dimension() }

// Name passes through to the inner embedder.
func (g *Gateway) Name() string { return g.inner.Name() }

// Deterministic is a seeded, hash-based embedder used for tests and for
// offline/no-model deployments: FNV-hashed token buckets, optionally
// L2-normalized.
type Deterministic struct {
	dim       int
	normalize bool
	seed      uint64
	name      string
}

// NewDeterministic builds a Deterministic embedder of the given
// dimension.
func NewDeterministic(dim int, normalize bool, seed uint64) *Deterministic {
	return &Deterministic{dim: dim, normalize: normalize, seed: seed, name: "deterministic"}
}

func (d *Deterministic) Dimension() int { return d.dim }
func (d *Deterministic) Name() string   { return d.name }

func (d *Deterministic) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, engerr.New(engerr.InvalidInput, "Deterministic.Embed", nil)
	}
	v := make([]float32, d.dim)
	grams := ngrams(text, 3)
	for _, g := range grams {
		addHashed(d.seed, g, v)
	}
	if d.normalize {
		l2normalize(v)
	}
	return v, nil
}

func (d *Deterministic) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := d.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func ngrams(s string, n int) []string {
	if len(s) < n {
		return []string{s}
	}
	out := make([]string, 0, len(s)-n+1)
	for i := 0; i+n <= len(s); i++ {
		out = append(out, s[i:i+n])
	}
	return out
}

func addHashed(seed uint64, gram string, v []float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte{byte(seed), byte(seed >> 8), byte(seed >> 16), byte(seed >> 24)})
	_, _ = h.Write([]byte(gram))
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	weight := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += weight
}

func l2normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(sumSq))
	for i := range v {
		v[i] *= norm
	}
}
