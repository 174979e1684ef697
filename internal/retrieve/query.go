// Package retrieve implements the Hybrid Retriever: query planning,
// concurrent modality fan-out, RRF + weighted-modality fusion, and
// diversification.
package retrieve

import (
	"context"
	"math"
	"strings"
)

// Mode selects which modalities participate in a search.
type Mode string

const (
	ModeHybrid      Mode = "hybrid"
	ModeVectorOnly  Mode = "vector_only"
	ModeKeywordOnly Mode = "keyword_only"
)

// Plan is the normalized, budgeted description of one search, built from
// raw Options (optional query expansion produces 1..N
// variants; this Plan describes a single variant).
type Plan struct {
	Query      string
	Mode       Mode
	TopK       int
	FtK        int
	VecK       int
	Filters    map[string]string
}

const maxFilterEntries = 1000

// BuildPlan normalizes the query and splits the FTS/vector budget.
func BuildPlan(ctx context.Context, query string, opt Options) Plan {
	q := normalizeQuery(query)
	k := opt.TopK
	if k <= 0 {
		k = 10
	}
	if k > 1000 {
		k = 1000
	}
	ftK, vecK := splitBudgets(k, opt)

	filters := map[string]string{}
	for key, v := range opt.Filters {
		if len(filters) >= maxFilterEntries {
			break
		}
		filters[key] = v
	}

	mode := opt.Mode
	if mode == "" {
		mode = ModeHybrid
	}
	return Plan{Query: q, Mode: mode, TopK: k, FtK: ftK, VecK: vecK, Filters: filters}
}

func normalizeQuery(q string) string {
	fields := strings.Fields(q)
	return strings.Join(fields, " ")
}

// splitBudgets derives per-modality candidate counts from explicit FtK/
// VecK if given, else from Alpha, ensuring both sides are represented
// when k > 1.
func splitBudgets(k int, opt Options) (int, int) {
	if opt.FtK > 0 || opt.VecK > 0 {
		ft := opt.FtK
		vec := opt.VecK
		if ft == 0 {
			ft = k
		}
		if vec == 0 {
			vec = k
		}
		return ft, vec
	}
	alpha := opt.Alpha
	if alpha <= 0 || alpha > 1 {
		alpha = 0.6
	}
	ft := int(math.Ceil(float64(k) * alpha))
	vec := k - ft
	if k > 1 {
		if ft == 0 {
			ft = 1
		}
		if vec == 0 {
			vec = 1
		}
	}
	return ft, vec
}
