// Package quality implements the Quality Monitor: a rolling
// window of per-search-call metrics (latency, score distribution,
// low-quality flag) with percentile reporting. Recording never fails
// the caller's request.
package quality

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Entry is one recorded search call.
type Entry struct {
	QueryHash  string
	Mode       string
	LatencyMS  float64
	ResultCount int
	AvgScore   float64
	MinScore   float64
	MaxScore   float64
	StdScore   float64
	LowQuality bool
	Timestamp  time.Time
}

// Config holds the monitor's tunables. WindowSize bounds the rolling
// aggregation window, default 500.
type Config struct {
	WindowSize int
}

// DefaultConfig returns a 500-entry rolling window.
func DefaultConfig() Config {
	return Config{WindowSize: 500}
}

// Monitor is a fixed-capacity ring buffer of Entry records, guarded by
// a single mutex.
type Monitor struct {
	mu      sync.Mutex
	cfg     Config
	entries []Entry
	next    int
	filled  bool

	searchCount    metric.Int64Counter
	lowQualityCount metric.Int64Counter
	searchLatency  metric.Float64Histogram
}

// New builds a Monitor. Otel instruments are registered against the
// global meter provider; when no provider is configured they are no-ops,
// so recording still never fails a request.
func New(cfg Config) *Monitor {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultConfig().WindowSize
	}
	meter := otel.GetMeterProvider().Meter("ragengine/quality")
	searchCount, _ := meter.Int64Counter("ragengine.search.count")
	lowQuality, _ := meter.Int64Counter("ragengine.search.low_quality.count")
	latency, _ := meter.Float64Histogram("ragengine.search.latency", metric.WithUnit("ms"))
	return &Monitor{
		cfg:             cfg,
		entries:         make([]Entry, cfg.WindowSize),
		searchCount:     searchCount,
		lowQualityCount: lowQuality,
		searchLatency:   latency,
	}
}

// QueryHash derives a stable, non-reversible identifier for a query
// string so logs/metrics never carry raw user text.
func QueryHash(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])[:16]
}

// ScoreStats computes avg/min/max/std over a set of result scores.
func ScoreStats(scores []float64) (avg, min, max, std float64) {
	if len(scores) == 0 {
		return 0, 0, 0, 0
	}
	min, max = scores[0], scores[0]
	var sum float64
	for _, s := range scores {
		sum += s
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	avg = sum / float64(len(scores))
	var variance float64
	for _, s := range scores {
		variance += (s - avg) * (s - avg)
	}
	variance /= float64(len(scores))
	std = math.Sqrt(variance)
	return avg, min, max, std
}

// LowQuality flags a search as low quality: too few
// results, or a low average score.
func LowQuality(resultCount int, avgScore float64) bool {
	return resultCount < 3 || avgScore < 0.5
}

// Record appends entry to the rolling window, overwriting the oldest
// entry once the window is full, and mirrors it to the otel instruments.
func (m *Monitor) Record(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	m.mu.Lock()
	m.entries[m.next] = e
	m.next = (m.next + 1) % len(m.entries)
	if m.next == 0 {
		m.filled = true
	}
	m.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("mode", e.Mode))
	if m.searchCount != nil {
		m.searchCount.Add(context.Background(), 1, attrs)
	}
	if m.searchLatency != nil {
		m.searchLatency.Record(context.Background(), e.LatencyMS, attrs)
	}
	if e.LowQuality && m.lowQualityCount != nil {
		m.lowQualityCount.Add(context.Background(), 1, attrs)
	}
}

// RecordSearch is a convenience wrapper computing score stats and the
// low-quality flag from raw scores before recording.
func (m *Monitor) RecordSearch(query, mode string, latency time.Duration, scores []float64) Entry {
	avg, min, max, std := ScoreStats(scores)
	e := Entry{
		QueryHash:   QueryHash(query),
		Mode:        mode,
		LatencyMS:   float64(latency.Microseconds()) / 1000.0,
		ResultCount: len(scores),
		AvgScore:    avg,
		MinScore:    min,
		MaxScore:    max,
		StdScore:    std,
		LowQuality:  LowQuality(len(scores), avg),
	}
	m.Record(e)
	return e
}

// Report aggregates the window's current contents.
type Report struct {
	Count          int
	LowQualityCount int
	P50LatencyMS   float64
	P95LatencyMS   float64
	P99LatencyMS   float64
	AvgResultCount float64
}

// Report computes the current window's aggregates.
func (m *Monitor) Report() Report {
	m.mu.Lock()
	var entries []Entry
	if m.filled {
		entries = append(entries, m.entries[m.next:]...)
		entries = append(entries, m.entries[:m.next]...)
	} else {
		entries = append(entries, m.entries[:m.next]...)
	}
	m.mu.Unlock()

	if len(entries) == 0 {
		return Report{}
	}

	latencies := make([]float64, len(entries))
	var lowQuality int
	var totalResults int
	for i, e := range entries {
		latencies[i] = e.LatencyMS
		if e.LowQuality {
			lowQuality++
		}
		totalResults += e.ResultCount
	}
	sort.Float64s(latencies)

	return Report{
		Count:           len(entries),
		LowQualityCount: lowQuality,
		P50LatencyMS:    percentile(latencies, 0.50),
		P95LatencyMS:    percentile(latencies, 0.95),
		P99LatencyMS:    percentile(latencies, 0.99),
		AvgResultCount:  float64(totalResults) / float64(len(entries)),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
