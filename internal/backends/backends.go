// Package backends defines the four narrow, side-effect-free retrieval
// interfaces consumed by the Hybrid Retriever: VectorBackend,
// LexicalBackend, ImageBackend, TableBackend. Each is
// allowed to be absent; callers must tolerate any subset being nil.
package backends

import (
	"context"

	"ragengine/internal/model"
)

// VectorBackend performs dense nearest-neighbor search. Results are
// sorted desc by score.
type VectorBackend interface {
	Search(ctx context.Context, queryVec []float32, topK int, filters map[string]string) ([]model.SourceChunk, error)
}

// LexicalRanked is one (id, score) result of a keyword search.
type LexicalRanked struct {
	ID    string
	Score float64
	Chunk model.SourceChunk
}

// LexicalBackend performs BM25-style keyword search. A missing index
// returns an empty slice, never an error.
type LexicalBackend interface {
	Search(ctx context.Context, queryText string, topK int) ([]LexicalRanked, error)
}

// ImageBackend performs late-interaction (ColPali-style) multi-vector
// search over image patches. May be absent; supports user-scoped
// isolation via filters["user_id"].
type ImageBackend interface {
	Search(ctx context.Context, queryMultiVec [][]float32, topK int, filters map[string]string) ([]model.SourceChunk, error)
}

// TableBackend performs text search over serialized tabular content.
type TableBackend interface {
	Search(ctx context.Context, queryText string, topK int, filters map[string]string) ([]model.SourceChunk, error)
}
