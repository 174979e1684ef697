// Package classifier implements the Query Classifier: a
// heuristic complexity estimate used by the dispatcher to choose the
// speculative (fast) path or the agent graph (slow) path.
package classifier

import "strings"

// Complexity is the classifier's output.
type Complexity string

const (
	Simple  Complexity = "simple"
	Medium  Complexity = "medium"
	Complex Complexity = "complex"
)

var complexPhrases = []string{"compare", "contrast", "analyze", "evaluate", "explain why"}
var simpleExclusions = []string{"compare", "analyze", "explain why", "how does", "what if"}

// Classify scores the raw query text only; conversation context is
// deliberately not consulted.
func Classify(query string) Complexity {
	q := strings.ToLower(strings.TrimSpace(query))
	words := strings.Fields(q)
	wordCount := len(words)

	simpleSignals := 0
	if wordCount <= 10 {
		simpleSignals++
	}
	if strings.HasSuffix(strings.TrimSpace(query), "?") {
		simpleSignals++
	}
	if !containsAny(q, simpleExclusions) {
		simpleSignals++
	}

	complexSignals := 0
	if wordCount > 30 {
		complexSignals++
	}
	if containsAny(q, complexPhrases) {
		complexSignals++
	}
	if countConjunctions(words) > 2 {
		complexSignals++
	}

	switch {
	case complexSignals >= 2:
		return Complex
	case simpleSignals >= 2:
		return Simple
	default:
		return Medium
	}
}

func containsAny(q string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(q, p) {
			return true
		}
	}
	return false
}

func countConjunctions(words []string) int {
	n := 0
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?")
		if w == "and" || w == "or" {
			n++
		}
	}
	return n
}
