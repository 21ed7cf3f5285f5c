package duckduckgo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mirae-cloud/newsrag/internal/domain"
)

// searchBase is the DuckDuckGo Instant Answer endpoint. Declared as a var
// so tests can substitute an httptest server.
var searchBase = "https://api.duckduckgo.com/"

// Provider queries the DuckDuckGo Instant Answer API. Keyless, so it sits
// behind Naver in the default chain as the no-credentials fallback.
type Provider struct {
	client *http.Client
}

// New creates a DuckDuckGo provider.
func New(client *http.Client) *Provider {
	if client == nil {
		client = http.DefaultClient
	}
	return &Provider{client: client}
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "duckduckgo" }

type relatedTopic struct {
	Text     string `json:"Text"`
	FirstURL string `json:"FirstURL"`
	// Topic groups nest one level deep.
	Topics []relatedTopic `json:"Topics"`
}

type response struct {
	Heading       string         `json:"Heading"`
	AbstractText  string         `json:"AbstractText"`
	AbstractURL   string         `json:"AbstractURL"`
	RelatedTopics []relatedTopic `json:"RelatedTopics"`
}

// Search queries the instant-answer endpoint and flattens the abstract plus
// related topics into hits.
func (p *Provider) Search(ctx context.Context, query string, k int) ([]domain.SearchHit, error) {
	if k <= 0 {
		k = 5
	}

	params := url.Values{
		"q":           {query},
		"format":      {"json"},
		"no_redirect": {"1"},
		"no_html":     {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo API request: %w", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var dr response
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("parsing duckduckgo response: %w", err)
	}

	var hits []domain.SearchHit
	if dr.AbstractText != "" {
		hits = append(hits, domain.SearchHit{
			Title:   dr.Heading,
			Snippet: dr.AbstractText,
			Link:    dr.AbstractURL,
		})
	}
	for _, t := range flatten(dr.RelatedTopics) {
		if len(hits) >= k {
			break
		}
		if t.Text == "" {
			continue
		}
		hits = append(hits, domain.SearchHit{
			Title:   t.Text,
			Snippet: t.Text,
			Link:    t.FirstURL,
		})
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func flatten(topics []relatedTopic) []relatedTopic {
	var out []relatedTopic
	for _, t := range topics {
		if len(t.Topics) > 0 {
			out = append(out, flatten(t.Topics)...)
			continue
		}
		out = append(out, t)
	}
	return out
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: duckduckgo HTTP %d", domain.ErrProviderRateLimited, code)
	default:
		return fmt.Errorf("%w: duckduckgo HTTP %d", domain.ErrProviderUnavailable, code)
	}
}
