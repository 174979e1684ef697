package retrieve

import "strings"

// Snippet builds a short preview window around the first query-term match
// in text, falling back to a leading substring -- generalizing this
// codebase's own simple-snippet heuristic.
func Snippet(text, query string) string {
	const maxLen = 160
	if text == "" {
		return ""
	}
	if query == "" {
		return truncate(text, maxLen)
	}
	lt := strings.ToLower(text)
	q := strings.ToLower(strings.TrimSpace(query))
	idx := strings.Index(lt, q)
	if idx == -1 {
		for _, term := range strings.Fields(q) {
			if term == "" {
				continue
			}
			if i := strings.Index(lt, term); i != -1 {
				idx = i
				break
			}
		}
	}
	if idx == -1 {
		return truncate(text, maxLen)
	}
	start := idx - 60
	if start < 0 {
		start = 0
	}
	end := start + maxLen
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}

func truncate(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n]
}
