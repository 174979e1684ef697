package backends

import (
	"context"
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"ragengine/internal/model"
)

// bleveDocument is the structure bleve indexes: chunk text plus the
// fields we need back out of a hit to reconstruct a SourceChunk.
type bleveDocument struct {
	Text       string `json:"text"`
	DocumentID string `json:"document_id"`
	Modality   string `json:"modality"`
}

// BleveLexical is the production LexicalBackend, a BM25-scored
// full-text index built on Bleve.
type BleveLexical struct {
	mu    sync.RWMutex
	index bleve.Index
	docs  map[string]model.SourceChunk
}

// NewBleveLexical builds an in-memory Bleve index. path, if non-empty,
// persists the index to disk instead of keeping it purely in memory.
func NewBleveLexical(path string) (*BleveLexical, error) {
	mapping := bleve.NewIndexMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, mapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index: %w", err)
	}

	return &BleveLexical{index: idx, docs: map[string]model.SourceChunk{}}, nil
}

// Index adds or replaces a chunk in the BM25 index.
func (b *BleveLexical) Index(chunk model.SourceChunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc := bleveDocument{Text: chunk.Text, DocumentID: chunk.DocumentID, Modality: string(chunk.Modality)}
	if err := b.index.Index(chunk.ChunkID, doc); err != nil {
		return fmt.Errorf("index chunk %s: %w", chunk.ChunkID, err)
	}
	b.docs[chunk.ChunkID] = chunk
	return nil
}

// Delete removes a chunk from the index.
func (b *BleveLexical) Delete(chunkID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.docs, chunkID)
	return b.index.Delete(chunkID)
}

// Search implements LexicalBackend using Bleve's default BM25-scored
// match query. A never-indexed corpus returns an empty slice, not an
// error.
func (b *BleveLexical) Search(ctx context.Context, queryText string, topK int) ([]LexicalRanked, error) {
	if topK <= 0 {
		topK = 10
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if queryText == "" {
		return []LexicalRanked{}, nil
	}

	match := bleve.NewMatchQuery(queryText)
	match.SetField("text")

	req := bleve.NewSearchRequest(match)
	req.Size = topK

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	out := make([]LexicalRanked, 0, len(result.Hits))
	for _, hit := range result.Hits {
		chunk, ok := b.docs[hit.ID]
		if !ok {
			continue
		}
		out = append(out, LexicalRanked{ID: hit.ID, Score: hit.Score, Chunk: chunk})
	}
	return out, nil
}

// Close releases the underlying index.
func (b *BleveLexical) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}

var _ LexicalBackend = (*BleveLexical)(nil)
