package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPCrossEncoderScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bge-reranker-v2-m3", req.Model)
		assert.Equal(t, []string{"doc text"}, req.Documents)
		_ = json.NewEncoder(w).Encode(rerankResponse{Results: []rerankResult{{Index: 0, RelevanceScore: 0.87}}})
	}))
	defer srv.Close()

	enc := NewHTTPCrossEncoder(srv.Client(), srv.URL, "bge-reranker-v2-m3")
	score, err := enc.Score(context.Background(), "query", "doc text")
	require.NoError(t, err)
	assert.Equal(t, 0.87, score)
	assert.Equal(t, "bge-reranker-v2-m3", enc.ModelID())
}

func TestHTTPCrossEncoderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	enc := NewHTTPCrossEncoder(srv.Client(), srv.URL, "bge-reranker-v2-m3")
	_, err := enc.Score(context.Background(), "query", "doc text")
	require.Error(t, err)
}
