package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"ragengine/internal/engerr"
)

// HTTPCrossEncoder calls a llama.cpp-style reranker endpoint, scoring
// one (query, doc) pair per call.
type HTTPCrossEncoder struct {
	client  *http.Client
	url     string
	modelID string
}

// NewHTTPCrossEncoder builds an HTTPCrossEncoder against url (e.g. a
// local llama.cpp --rerank server) using modelID for logging/cache keys.
func NewHTTPCrossEncoder(client *http.Client, url, modelID string) *HTTPCrossEncoder {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPCrossEncoder{client: client, url: url, modelID: modelID}
}

func (e *HTTPCrossEncoder) ModelID() string { return e.modelID }

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	TopN      int      `json:"top_n"`
	Documents []string `json:"documents"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

// Score implements CrossEncoder by posting a single-document rerank
// request and reading back its relevance score.
func (e *HTTPCrossEncoder) Score(ctx context.Context, query, docText string) (float64, error) {
	payload, err := json.Marshal(rerankRequest{Model: e.modelID, Query: query, TopN: 1, Documents: []string{docText}})
	if err != nil {
		return 0, engerr.New(engerr.Internal, "HTTPCrossEncoder.Score", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return 0, engerr.New(engerr.Internal, "HTTPCrossEncoder.Score", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, engerr.New(engerr.BackendUnavailable, "HTTPCrossEncoder.Score", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, engerr.New(engerr.BackendUnavailable, "HTTPCrossEncoder.Score", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, engerr.New(engerr.ParseError, "HTTPCrossEncoder.Score", err)
	}
	if len(parsed.Results) == 0 {
		return 0, engerr.New(engerr.ModelError, "HTTPCrossEncoder.Score", fmt.Errorf("empty results"))
	}
	return parsed.Results[0].RelevanceScore, nil
}
