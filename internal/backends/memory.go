package backends

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"ragengine/internal/model"
)

// MemoryVector is an in-process VectorBackend test double using exact
// cosine similarity over everything it holds.
type MemoryVector struct {
	mu    sync.RWMutex
	items map[string]vecEntry
}

type vecEntry struct {
	vec   []float32
	chunk model.SourceChunk
}

// NewMemoryVector builds an empty MemoryVector.
func NewMemoryVector() *MemoryVector {
	return &MemoryVector{items: map[string]vecEntry{}}
}

// Upsert adds or replaces a chunk's vector.
func (m *MemoryVector) Upsert(chunk model.SourceChunk, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[chunk.ChunkID] = vecEntry{vec: vec, chunk: chunk}
}

// Delete removes a chunk.
func (m *MemoryVector) Delete(chunkID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, chunkID)
}

// Search implements VectorBackend.
func (m *MemoryVector) Search(ctx context.Context, queryVec []float32, topK int, filters map[string]string) ([]model.SourceChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if topK <= 0 {
		topK = 10
	}
	qn := norm(queryVec)
	out := make([]model.SourceChunk, 0, len(m.items))
	for _, e := range m.items {
		if !matchesFilter(e.chunk.Metadata, filters) {
			continue
		}
		score := cosine(queryVec, e.vec, qn, norm(e.vec))
		c := e.chunk
		c.Score = score
		c.Modality = model.ModalityText
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func cosine(a, b []float32, an, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}

func matchesFilter(metadata map[string]any, filters map[string]string) bool {
	for k, v := range filters {
		mv, ok := metadata[k]
		if !ok {
			return false
		}
		if s, ok := mv.(string); !ok || s != v {
			return false
		}
	}
	return true
}

// MemoryLexical is an in-process LexicalBackend test double using a
// naive lowercase term-overlap score.
type MemoryLexical struct {
	mu   sync.RWMutex
	docs map[string]model.SourceChunk
}

// NewMemoryLexical builds an empty MemoryLexical.
func NewMemoryLexical() *MemoryLexical {
	return &MemoryLexical{docs: map[string]model.SourceChunk{}}
}

// Index adds or replaces a chunk.
func (m *MemoryLexical) Index(chunk model.SourceChunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[chunk.ChunkID] = chunk
}

// Search implements LexicalBackend. A never-indexed corpus returns an
// empty slice, not an error.
func (m *MemoryLexical) Search(ctx context.Context, queryText string, topK int) ([]LexicalRanked, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if topK <= 0 {
		topK = 10
	}
	terms := strings.Fields(strings.ToLower(queryText))
	if len(m.docs) == 0 || len(terms) == 0 {
		return []LexicalRanked{}, nil
	}
	out := make([]LexicalRanked, 0, len(m.docs))
	for id, c := range m.docs {
		lt := strings.ToLower(c.Text)
		var score float64
		for _, term := range terms {
			score += float64(strings.Count(lt, term))
		}
		if score <= 0 {
			continue
		}
		out = append(out, LexicalRanked{ID: id, Score: score, Chunk: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// MemoryImage is an in-process ImageBackend test double: scores by
// MaxSim (the sum over query vectors of the best per-patch cosine
// similarity), approximating ColPali-style late interaction without a
// real model.
type MemoryImage struct {
	mu    sync.RWMutex
	items map[string]imgEntry
}

type imgEntry struct {
	patches [][]float32
	chunk   model.SourceChunk
}

// NewMemoryImage builds an empty MemoryImage.
func NewMemoryImage() *MemoryImage {
	return &MemoryImage{items: map[string]imgEntry{}}
}

// Upsert adds or replaces a chunk's patch vectors.
func (m *MemoryImage) Upsert(chunk model.SourceChunk, patches [][]float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[chunk.ChunkID] = imgEntry{patches: patches, chunk: chunk}
}

// Search implements ImageBackend using MaxSim over the query multi-vector
// against each candidate's patch vectors.
func (m *MemoryImage) Search(ctx context.Context, queryMultiVec [][]float32, topK int, filters map[string]string) ([]model.SourceChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if topK <= 0 {
		topK = 10
	}
	out := make([]model.SourceChunk, 0, len(m.items))
	for _, e := range m.items {
		if !matchesFilter(e.chunk.Metadata, filters) {
			continue
		}
		score := maxSim(queryMultiVec, e.patches)
		c := e.chunk
		c.Score = score
		c.Modality = model.ModalityImage
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// maxSim sums, over each query patch, the max cosine similarity to any
// document patch -- the late-interaction aggregation the glossary
// describes.
func maxSim(query, doc [][]float32) float64 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}
	var total float64
	for _, q := range query {
		qn := norm(q)
		var best float64
		for _, d := range doc {
			s := cosine(q, d, qn, norm(d))
			if s > best {
				best = s
			}
		}
		total += best
	}
	return total
}

// MemoryTable is an in-process TableBackend test double, reusing the
// lexical term-overlap heuristic over serialized table text.
type MemoryTable struct {
	lex *MemoryLexical
}

// NewMemoryTable builds an empty MemoryTable.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{lex: NewMemoryLexical()}
}

// Index adds or replaces a table chunk.
func (m *MemoryTable) Index(chunk model.SourceChunk) {
	m.lex.Index(chunk)
}

// Search implements TableBackend.
func (m *MemoryTable) Search(ctx context.Context, queryText string, topK int, filters map[string]string) ([]model.SourceChunk, error) {
	ranked, err := m.lex.Search(ctx, queryText, topK)
	if err != nil {
		return nil, err
	}
	out := make([]model.SourceChunk, 0, len(ranked))
	for _, r := range ranked {
		if !matchesFilter(r.Chunk.Metadata, filters) {
			continue
		}
		c := r.Chunk
		c.Score = r.Score
		c.Modality = model.ModalityTable
		out = append(out, c)
	}
	return out, nil
}
