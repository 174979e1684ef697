package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLowQualityRule(t *testing.T) {
	assert.True(t, LowQuality(2, 0.9))
	assert.True(t, LowQuality(5, 0.4))
	assert.False(t, LowQuality(5, 0.6))
}

func TestScoreStats(t *testing.T) {
	avg, min, max, std := ScoreStats([]float64{0.2, 0.4, 0.6, 0.8})
	assert.InDelta(t, 0.5, avg, 0.001)
	assert.Equal(t, 0.2, min)
	assert.Equal(t, 0.8, max)
	assert.Greater(t, std, 0.0)
}

func TestRecordAndReportAggregates(t *testing.T) {
	m := New(Config{WindowSize: 4})
	m.RecordSearch("q1", "hybrid", 10*time.Millisecond, []float64{0.9, 0.8})
	m.RecordSearch("q2", "hybrid", 20*time.Millisecond, []float64{0.1})
	m.RecordSearch("q3", "vector_only", 30*time.Millisecond, []float64{0.95, 0.9, 0.85})

	report := m.Report()
	require.Equal(t, 3, report.Count)
	// q1 (2 results) and q2 (1 result) are under the 3-result floor.
	assert.Equal(t, 2, report.LowQualityCount)
	assert.Greater(t, report.P99LatencyMS, report.P50LatencyMS-1)
}

func TestReportWrapsAroundWindow(t *testing.T) {
	m := New(Config{WindowSize: 2})
	m.RecordSearch("a", "hybrid", time.Millisecond, []float64{0.9})
	m.RecordSearch("b", "hybrid", time.Millisecond, []float64{0.9})
	m.RecordSearch("c", "hybrid", time.Millisecond, []float64{0.9})

	report := m.Report()
	assert.Equal(t, 2, report.Count)
}

func TestQueryHashStableAndShort(t *testing.T) {
	h1 := QueryHash("what is go")
	h2 := QueryHash("what is go")
	h3 := QueryHash("what is rust")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 16)
}
