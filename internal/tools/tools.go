// Package tools defines the two non-retrieval tool backends the agent
// graph's execute_action node dispatches to: local_data (file reads and
// ad-hoc data queries) and web_search. Unlike the four retrieval
// backends, these may have externally observable side effects on the
// working_memory they populate, so they live in their own package rather
// than under backends.
package tools

import (
	"context"
	"sync"

	"ragengine/internal/model"
)

// LocalBackend reads a local file or runs an ad-hoc structured query,
// backing the local_data tool.
type LocalBackend interface {
	ReadFile(ctx context.Context, path string) (string, error)
	Query(ctx context.Context, query string) ([]map[string]any, error)
}

// WebBackend performs a live web search, backing the web_search tool.
type WebBackend interface {
	Search(ctx context.Context, query string, topK int) ([]model.SourceChunk, error)
}

// MemoryLocal is an in-process LocalBackend test double holding a fixed
// set of files and query results, the same in-memory double style as
// backends.MemoryVector and backends.MemoryLexical.
type MemoryLocal struct {
	mu    sync.RWMutex
	files map[string]string
	rows  map[string][]map[string]any
}

// NewMemoryLocal builds an empty MemoryLocal.
func NewMemoryLocal() *MemoryLocal {
	return &MemoryLocal{files: map[string]string{}, rows: map[string][]map[string]any{}}
}

// PutFile registers the content returned for ReadFile(path).
func (m *MemoryLocal) PutFile(path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = content
}

// PutQuery registers the rows returned for Query(query).
func (m *MemoryLocal) PutQuery(query string, rows []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[query] = rows
}

// ReadFile implements LocalBackend.
func (m *MemoryLocal) ReadFile(ctx context.Context, path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.files[path], nil
}

// Query implements LocalBackend.
func (m *MemoryLocal) Query(ctx context.Context, query string) ([]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rows[query], nil
}

// MemoryWeb is an in-process WebBackend test double returning a fixed
// result set regardless of query, modality-tagged web.
type MemoryWeb struct {
	mu      sync.RWMutex
	results []model.SourceChunk
}

// NewMemoryWeb builds a MemoryWeb that always returns results.
func NewMemoryWeb(results []model.SourceChunk) *MemoryWeb {
	for i := range results {
		results[i].Modality = model.ModalityWeb
	}
	return &MemoryWeb{results: results}
}

// Search implements WebBackend.
func (m *MemoryWeb) Search(ctx context.Context, query string, topK int) ([]model.SourceChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.results
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	cp := make([]model.SourceChunk, len(out))
	copy(cp, out)
	return cp, nil
}
