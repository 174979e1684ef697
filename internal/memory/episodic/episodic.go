// Package episodic implements Episodic Memory: an in-process cache
// of successful agent runs, reused when a new query is similar enough to
// one already solved, with lazy retention-based cleanup performed on read
// rather than a background sweep.
package episodic

import (
	"context"
	"math"
	"sync"
	"time"

	"ragengine/internal/model"
)

// Config holds the cache's tunables.
type Config struct {
	Capacity         int
	SimilarityThreshold float64
	Retention        time.Duration
}

// DefaultConfig: cap 1000 episodes, reuse threshold 0.85, retained 30 days.
func DefaultConfig() Config {
	return Config{Capacity: 1000, SimilarityThreshold: 0.85, Retention: 30 * 24 * time.Hour}
}

// Cache is a FIFO-bounded store of episodes, queried by cosine similarity
// of the query embedding.
type Cache struct {
	mu       sync.Mutex
	cfg      Config
	episodes []model.Episode
	now      func() time.Time
}

// New builds a Cache. now defaults to time.Now and exists so tests can
// control the clock.
func New(cfg Config, now func() time.Time) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultConfig().SimilarityThreshold
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig().Retention
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{cfg: cfg, now: now}
}

// Add records a new episode, evicting the oldest entry once capacity is
// exceeded (FIFO).
func (c *Cache) Add(ctx context.Context, ep model.Episode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ep.Timestamp.IsZero() {
		ep.Timestamp = c.now()
	}
	c.episodes = append(c.episodes, ep)
	if len(c.episodes) > c.cfg.Capacity {
		c.episodes = c.episodes[len(c.episodes)-c.cfg.Capacity:]
	}
}

// FindReusable expires stale episodes (older than Retention) and returns
// the most similar successful episode to queryEmbedding, if its cosine
// similarity (mapped from [-1,1] to [0,1]) clears SimilarityThreshold.
// Returns ok=false otherwise.
func (c *Cache) FindReusable(ctx context.Context, queryEmbedding []float32) (model.Episode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()

	var best model.Episode
	bestSim := -1.0
	found := false
	for i := range c.episodes {
		ep := c.episodes[i]
		if !ep.Success {
			continue
		}
		sim := Similarity(queryEmbedding, ep.QueryEmbedding)
		if sim > bestSim {
			bestSim = sim
			best = ep
			found = true
		}
	}
	if !found || bestSim < c.cfg.SimilarityThreshold {
		return model.Episode{}, false
	}
	for i := range c.episodes {
		if c.episodes[i].Timestamp.Equal(best.Timestamp) && c.episodes[i].Query == best.Query {
			c.episodes[i].ReuseCount++
			best.ReuseCount = c.episodes[i].ReuseCount
			break
		}
	}
	return best, true
}

// expireLocked drops episodes older than Retention. Called lazily on read
// rather than via a background goroutine.
func (c *Cache) expireLocked() {
	cutoff := c.now().Add(-c.cfg.Retention)
	kept := c.episodes[:0]
	for _, ep := range c.episodes {
		if ep.Timestamp.After(cutoff) {
			kept = append(kept, ep)
		}
	}
	c.episodes = kept
}

// Len reports the number of episodes currently retained (test/metrics
// hook; does not trigger expiry).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.episodes)
}

// Similarity maps cosine similarity into [0,1], the scale
// SimilarityThreshold is expressed in.
func Similarity(a, b []float32) float64 {
	return (cosine(a, b) + 1) / 2
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, an, bn float64
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
