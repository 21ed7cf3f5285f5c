package naver

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/mirae-cloud/newsrag/internal/domain"
)

// searchBase is the Naver news search endpoint. Declared as a var so tests
// can substitute an httptest server.
var searchBase = "https://openapi.naver.com/v1/search/news.json"

// Provider queries the Naver Open API news search.
type Provider struct {
	client       *http.Client
	clientID     string
	clientSecret string
}

// New creates a Naver news provider.
func New(client *http.Client, clientID, clientSecret string) *Provider {
	if client == nil {
		client = http.DefaultClient
	}
	return &Provider{client: client, clientID: clientID, clientSecret: clientSecret}
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "naver" }

type item struct {
	Title        string `json:"title"`
	OriginalLink string `json:"originallink"`
	Link         string `json:"link"`
	Description  string `json:"description"`
	PubDate      string `json:"pubDate"`
}

type response struct {
	Items []item `json:"items"`
}

// Search queries the news endpoint, newest-relevant first.
func (p *Provider) Search(ctx context.Context, query string, k int) ([]domain.SearchHit, error) {
	if k <= 0 {
		k = 5
	}

	params := url.Values{
		"query":   {query},
		"display": {strconv.Itoa(k)},
		"sort":    {"sim"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Naver-Client-Id", p.clientID)
	req.Header.Set("X-Naver-Client-Secret", p.clientSecret)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("naver API request: %w", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var nr response
	if err := json.NewDecoder(resp.Body).Decode(&nr); err != nil {
		return nil, fmt.Errorf("parsing naver response: %w", err)
	}

	hits := make([]domain.SearchHit, 0, len(nr.Items))
	for _, it := range nr.Items {
		link := it.OriginalLink
		if link == "" {
			link = it.Link
		}
		hit := domain.SearchHit{
			Title:   cleanText(it.Title),
			Snippet: cleanText(it.Description),
			Link:    link,
		}
		// pubDate: "Mon, 02 Jan 2006 15:04:05 +0900"
		if t, parseErr := time.Parse(time.RFC1123Z, it.PubDate); parseErr == nil {
			hit.PublishedAt = &t
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: naver HTTP %d", domain.ErrProviderAuth, code)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: naver HTTP %d", domain.ErrProviderRateLimited, code)
	default:
		return fmt.Errorf("%w: naver HTTP %d", domain.ErrProviderUnavailable, code)
	}
}

var tagPattern = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)

// cleanText strips the <b> highlight tags and HTML entities Naver embeds
// in titles and descriptions.
func cleanText(s string) string {
	return html.UnescapeString(tagPattern.ReplaceAllString(s, ""))
}
