package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearXNGWebSearchJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"title":"One","url":"https://example.com/1"},{"title":"Two","url":"https://example.com/2"}]}`))
	}))
	defer srv.Close()

	backend := NewSearXNGWeb(srv.Client(), srv.URL)
	results, err := backend.Search(context.Background(), "go modules", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "One", results[0].Text)
	assert.Equal(t, "https://example.com/1", results[0].Metadata["url"])
}

func TestSearXNGWebSearchHTMLFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") == "json" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><a href="https://a.example/1">Link1</a><a href="https://a.example/2">Link2</a></body></html>`))
	}))
	defer srv.Close()

	backend := NewSearXNGWeb(srv.Client(), srv.URL)
	results, err := backend.Search(context.Background(), "go modules", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
}
