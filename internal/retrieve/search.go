package retrieve

import (
	"context"
	"sort"

	"ragengine/internal/backends"
	"ragengine/internal/embedgw"
	"ragengine/internal/engerr"
	"ragengine/internal/obslog"
)

// Service is the Hybrid Retriever entrypoint, wiring query planning,
// modality fan-out, fusion, and optional diversification into the single
// `search(query, top_k, mode, expansion?, filters?)` contract.
type Service struct {
	Lexical  backends.LexicalBackend
	Vector   backends.VectorBackend
	Image    backends.ImageBackend
	Table    backends.TableBackend
	Embedder embedgw.Embedder

	// MultiEmbedder builds the multi-vector query embedding the image
	// backend scores against. Leaving it nil disables the image modality
	// even when Image is wired.
	MultiEmbedder embedgw.MultiVectorEmbedder
}

// Search runs the full hybrid-retrieval algorithm for one query, including optional
// query-expansion variants: each variant is
// searched and fused independently, then variant result sets are merged
// by the same max-score dedup rule used within a single variant.
func (s *Service) Search(ctx context.Context, query string, opt Options, variants ...string) (Response, error) {
	if query == "" {
		return Response{}, engerr.New(engerr.InvalidInput, "retrieve.Search", nil)
	}
	if len(variants) == 0 {
		variants = []string{query}
	}

	debug := map[string]any{}
	var merged []Result
	for _, variant := range variants {
		plan := BuildPlan(ctx, variant, opt)

		var queryVec []float32
		if s.Embedder != nil && plan.Mode != ModeKeywordOnly {
			v, err := s.Embedder.Embed(ctx, variant)
			if err != nil {
				return Response{}, err
			}
			queryVec = v
		}

		var queryMultiVec [][]float32
		if s.Image != nil && s.MultiEmbedder != nil && plan.Mode == ModeHybrid {
			mv, err := s.MultiEmbedder.EmbedMulti(ctx, variant)
			if err != nil {
				obslog.FromContext(ctx).Error().Err(err).Msg("multi_vector_embed_failed")
			} else {
				queryMultiVec = mv
			}
		}

		cands, err := FetchCandidates(ctx, s.Lexical, s.Vector, s.Image, s.Table, plan, queryVec, queryMultiVec)
		if err != nil {
			return Response{}, engerr.New(engerr.BackendUnavailable, "retrieve.Search", err)
		}
		debug[variant] = cands.Diag

		tf := fuseText(cands.Lexical, cands.Vector, opt.RRFK)
		fused := Fuse(tf, cands.Image, cands.Table, opt)
		merged = mergeMax(merged, fused)
	}

	if opt.Diversify {
		merged = Diversify(merged, opt.TopK)
	} else if opt.TopK > 0 && len(merged) > opt.TopK {
		merged = merged[:opt.TopK]
	}

	return Response{Query: query, Items: merged, Debug: debug}, nil
}

// mergeMax unions two fused-and-sorted result lists, deduplicating by
// chunk_id and keeping the max score, then re-sorting.
func mergeMax(a, b []Result) []Result {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	byID := map[string]Result{}
	order := []string{}
	for _, r := range append(append([]Result{}, a...), b...) {
		if existing, ok := byID[r.Chunk.ChunkID]; !ok {
			byID[r.Chunk.ChunkID] = r
			order = append(order, r.Chunk.ChunkID)
		} else if r.Chunk.Score > existing.Chunk.Score {
			byID[r.Chunk.ChunkID] = r
		}
	}
	out := make([]Result, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Chunk.Score != out[j].Chunk.Score {
			return out[i].Chunk.Score > out[j].Chunk.Score
		}
		return out[i].Chunk.ChunkID < out[j].Chunk.ChunkID
	})
	return out
}
