package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ragengine/internal/engerr"
)

// LocalFileBackend is the production LocalBackend: reads are confined
// to a root directory, with traversal and absolute paths rejected
// before touching disk. Query is unsupported -- this engine
// has no ad-hoc structured-data source of its own -- and always returns
// an empty result set rather than an error.
type LocalFileBackend struct {
	root string
}

// NewLocalFileBackend builds a LocalFileBackend rooted at root.
func NewLocalFileBackend(root string) *LocalFileBackend {
	return &LocalFileBackend{root: filepath.Clean(root)}
}

// ReadFile implements LocalBackend, rejecting any path that escapes
// root via traversal or an absolute reference.
func (b *LocalFileBackend) ReadFile(ctx context.Context, path string) (string, error) {
	rel, err := sanitizeRelPath(path)
	if err != nil {
		return "", engerr.New(engerr.InvalidInput, "LocalFileBackend.ReadFile", err)
	}
	full := filepath.Join(b.root, rel)
	data, err := os.ReadFile(full)
	if err != nil {
		return "", engerr.New(engerr.BackendUnavailable, "LocalFileBackend.ReadFile", err)
	}
	return string(data), nil
}

// Query implements LocalBackend. This backend has no structured data
// source to query.
func (b *LocalFileBackend) Query(ctx context.Context, query string) ([]map[string]any, error) {
	return nil, nil
}

func sanitizeRelPath(p string) (string, error) {
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute paths are not allowed: %s", p)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(clean, "/../") {
		return "", fmt.Errorf("path traversal is not allowed: %s", p)
	}
	return clean, nil
}

var _ LocalBackend = (*LocalFileBackend)(nil)
