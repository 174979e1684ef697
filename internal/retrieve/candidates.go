package retrieve

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"ragengine/internal/backends"
	"ragengine/internal/model"
)

// Diagnostics records per-backend latency/count for one variant's
// fan-out.
type Diagnostics struct {
	TextLatency  time.Duration
	VecLatency   time.Duration
	ImageLatency time.Duration
	TableLatency time.Duration
	TextCount    int
	VecCount     int
	ImageCount   int
	TableCount   int
}

// Candidates is the raw, unfused per-modality result set for one query
// variant.
type Candidates struct {
	Lexical []backends.LexicalRanked
	Vector  []model.SourceChunk
	Image   []model.SourceChunk
	Table   []model.SourceChunk
	Diag    Diagnostics
}

// maxParallelBackends bounds fan-out per query variant.
const maxParallelBackends = 4

// FetchCandidates runs the enabled, non-nil backends concurrently,
// tolerating any subset of backends being absent.
func FetchCandidates(ctx context.Context, lex backends.LexicalBackend, vec backends.VectorBackend, img backends.ImageBackend, tbl backends.TableBackend, plan Plan, queryVec []float32, queryMultiVec [][]float32) (Candidates, error) {
	var out Candidates
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelBackends)

	if plan.Mode != ModeVectorOnly && lex != nil && plan.FtK > 0 {
		g.Go(func() error {
			start := time.Now()
			r, err := lex.Search(gctx, plan.Query, plan.FtK)
			out.Diag.TextLatency = time.Since(start)
			if err != nil {
				return err
			}
			out.Lexical = r
			out.Diag.TextCount = len(r)
			return nil
		})
	}
	if plan.Mode != ModeKeywordOnly && vec != nil && plan.VecK > 0 && len(queryVec) > 0 {
		g.Go(func() error {
			start := time.Now()
			r, err := vec.Search(gctx, queryVec, plan.VecK, plan.Filters)
			out.Diag.VecLatency = time.Since(start)
			if err != nil {
				return err
			}
			out.Vector = r
			out.Diag.VecCount = len(r)
			return nil
		})
	}
	if plan.Mode == ModeHybrid && img != nil && len(queryMultiVec) > 0 {
		g.Go(func() error {
			start := time.Now()
			r, err := img.Search(gctx, queryMultiVec, plan.TopK, plan.Filters)
			out.Diag.ImageLatency = time.Since(start)
			if err != nil {
				return err
			}
			out.Image = r
			out.Diag.ImageCount = len(r)
			return nil
		})
	}
	if plan.Mode == ModeHybrid && tbl != nil {
		g.Go(func() error {
			start := time.Now()
			r, err := tbl.Search(gctx, plan.Query, plan.TopK, plan.Filters)
			out.Diag.TableLatency = time.Since(start)
			if err != nil {
				return err
			}
			out.Table = r
			out.Diag.TableCount = len(r)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
