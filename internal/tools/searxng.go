package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"ragengine/internal/engerr"
	"ragengine/internal/model"
)

// SearXNGWeb is the production WebBackend, querying a SearXNG instance's
// JSON API and falling back to scraping result links out of its HTML
// response when JSON search is disabled on the instance.
type SearXNGWeb struct {
	client     *http.Client
	searxngURL string
}

// NewSearXNGWeb builds a SearXNGWeb against the given SearXNG base URL.
func NewSearXNGWeb(client *http.Client, searxngURL string) *SearXNGWeb {
	if client == nil {
		client = http.DefaultClient
	}
	return &SearXNGWeb{client: client, searxngURL: strings.TrimSuffix(searxngURL, "/")}
}

// Search implements WebBackend.
func (s *SearXNGWeb) Search(ctx context.Context, query string, topK int) ([]model.SourceChunk, error) {
	if topK <= 0 {
		topK = 5
	}

	results, err := s.searchJSON(ctx, query, topK)
	if err != nil || len(results) == 0 {
		results, err = s.searchHTML(ctx, query, topK)
		if err != nil {
			return nil, engerr.New(engerr.BackendUnavailable, "SearXNGWeb.Search", err)
		}
	}

	out := make([]model.SourceChunk, len(results))
	for i, r := range results {
		out[i] = model.SourceChunk{
			ChunkID:      fmt.Sprintf("web:%d:%s", i, r.url),
			DocumentName: r.title,
			Text:         r.title,
			Modality:     model.ModalityWeb,
			Metadata:     map[string]any{"url": r.url},
		}
	}
	return out, nil
}

type searxngResult struct {
	title string
	url   string
}

func (s *SearXNGWeb) searchJSON(ctx context.Context, query string, max int) ([]searxngResult, error) {
	v := url.Values{}
	v.Set("q", query)
	v.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.searxngURL+"/search?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("searxng http %d", resp.StatusCode)
	}

	var parsed struct {
		Results []struct {
			Title string `json:"title"`
			URL   string `json:"url"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]searxngResult, 0, max)
	for i, r := range parsed.Results {
		if i >= max {
			break
		}
		out = append(out, searxngResult{title: strings.TrimSpace(r.Title), url: r.URL})
	}
	return out, nil
}

func (s *SearXNGWeb) searchHTML(ctx context.Context, query string, max int) ([]searxngResult, error) {
	v := url.Values{}
	v.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.searxngURL+"/search?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("searxng http %d", resp.StatusCode)
	}

	root, err := html.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	var out []searxngResult
	seen := map[string]struct{}{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(out) >= max {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && strings.Contains(attr.Val, "http") {
					if _, dup := seen[attr.Val]; !dup {
						seen[attr.Val] = struct{}{}
						title := attr.Val
						if u, err := url.Parse(attr.Val); err == nil && u.Host != "" {
							title = u.Host + u.Path
						}
						out = append(out, searxngResult{title: title, url: attr.Val})
					}
				}
			}
		}
		for c := n.FirstChild; c != nil && len(out) < max; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out, nil
}

var _ WebBackend = (*SearXNGWeb)(nil)
