package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Complexity
	}{
		{
			name:  "short question is simple",
			query: "What is machine learning?",
			want:  Simple,
		},
		{
			name:  "short statement without exclusions is simple",
			query: "define gradient descent",
			want:  Simple,
		},
		{
			name:  "compare plus conjunctions is complex",
			query: "Compare Redis and Memcached and Hazelcast and explain why one wins or loses for caching",
			want:  Complex,
		},
		{
			name:  "long analytical query is complex",
			query: "analyze the tradeoffs between eventual consistency and strong consistency across replicated data stores when network partitions are frequent and latency budgets are tight and clients retry aggressively under load",
			want:  Complex,
		},
		{
			name:  "exclusion phrase without other complex signals is medium",
			query: "How does garbage collection work in a generational collector across many heap regions",
			want:  Medium,
		},
		{
			name:  "mid-length statement is medium",
			query: "summarize the main architectural decisions behind our ingestion pipeline for the quarterly review",
			want:  Medium,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.query))
		})
	}
}

func TestClassifyComplexVotesWinOverSimpleVotes(t *testing.T) {
	// This short question casts two simple votes (word count, trailing
	// "?"), but "compare" plus three conjunctions casts two complex votes,
	// and the complex rule is checked first.
	got := Classify("compare A and B and C and D?")
	assert.Equal(t, Complex, got)
}

func TestClassifyEmptyQueryVotesSimple(t *testing.T) {
	// Zero words: word_count <= 10 and no exclusions both hold, so the
	// simple vote wins. The dispatcher rejects empty queries before the
	// classifier ever sees one; this just pins the raw rule.
	assert.Equal(t, Simple, Classify(""))
}
