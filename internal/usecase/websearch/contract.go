package websearch

import (
	"context"

	"github.com/mirae-cloud/newsrag/internal/domain"
)

// Provider is one external search backend. Adapters populate the fixed
// SearchHit field set and drop provider-specific extras at their boundary.
type Provider interface {
	Name() string

	// Search returns up to k ranked hits. Failures (timeout, auth, rate
	// limit, malformed response) surface as errors wrapping the domain
	// provider sentinels; the chain inspects them, never panics on them.
	Search(ctx context.Context, query string, k int) ([]domain.SearchHit, error)
}
