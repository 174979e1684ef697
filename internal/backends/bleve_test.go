package backends

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragengine/internal/model"
)

func TestBleveLexicalSearchRanksByBM25(t *testing.T) {
	b, err := NewBleveLexical("")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Index(model.SourceChunk{ChunkID: "1", DocumentID: "doc-1", Text: "go is a statically typed compiled language"}))
	require.NoError(t, b.Index(model.SourceChunk{ChunkID: "2", DocumentID: "doc-1", Text: "python is a dynamically typed interpreted language"}))

	results, err := b.Search(context.Background(), "statically typed go", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "1", results[0].ID)
}

func TestBleveLexicalSearchEmptyCorpus(t *testing.T) {
	b, err := NewBleveLexical("")
	require.NoError(t, err)
	defer b.Close()

	results, err := b.Search(context.Background(), "anything", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBleveLexicalDelete(t *testing.T) {
	b, err := NewBleveLexical("")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Index(model.SourceChunk{ChunkID: "1", Text: "hybrid retrieval pipeline"}))
	require.NoError(t, b.Delete("1"))

	results, err := b.Search(context.Background(), "hybrid retrieval", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
