package websearch

import (
	"context"
	"errors"
	"time"

	"github.com/mirae-cloud/newsrag/internal/domain"
	"github.com/mirae-cloud/newsrag/internal/metrics"
)

// Failure records one provider that could not serve a sub-query.
type Failure struct {
	Provider string
	Reason   string
}

// runChain tries the providers in priority order for one sub-query. Within
// the chain providers run strictly sequentially: a provider is only tried
// after the previous one failed. Each call carries a bounded timeout and at
// most one retry; a timeout counts as failure and advances the chain. An
// exhausted chain yields an empty hit list, never an error.
func runChain(
	ctx context.Context, providers []Provider, query string, k int, timeout time.Duration,
) ([]domain.SearchHit, []Failure) {
	var failures []Failure

	for _, p := range providers {
		hits, reason := callProvider(ctx, p, query, k, timeout)
		if reason == "" {
			metrics.ProviderRequestsTotal.WithLabelValues(p.Name(), "success").Inc()
			return hits, failures
		}

		metrics.ProviderRequestsTotal.WithLabelValues(p.Name(), "error").Inc()
		metrics.ProviderFailuresTotal.WithLabelValues(p.Name(), reason).Inc()
		failures = append(failures, Failure{Provider: p.Name(), Reason: reason})

		if ctx.Err() != nil {
			break
		}
	}

	return nil, failures
}

// callProvider runs one provider with a bounded timeout, retrying once on
// transient errors. Timeouts and auth failures do not retry: a second
// attempt would either double the stall or fail identically.
func callProvider(
	ctx context.Context, p Provider, query string, k int, timeout time.Duration,
) (hits []domain.SearchHit, failReason string) {
	for attempt := 0; attempt < 2; attempt++ {
		hits, err := searchOnce(ctx, p, query, k, timeout)
		if err == nil {
			if len(hits) == 0 {
				return nil, "empty"
			}
			return normalizeHits(hits, p.Name()), ""
		}

		failReason = classify(err)
		if failReason == "timeout" || failReason == "auth" {
			return nil, failReason
		}
	}
	return nil, failReason
}

func searchOnce(
	ctx context.Context, p Provider, query string, k int, timeout time.Duration,
) ([]domain.SearchHit, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Search(callCtx, query, k)
}

// normalizeHits stamps the source label, assigns 1-based ranks, and gives
// unscored hits a rank-derived score so cross-provider ordering stays
// deterministic.
func normalizeHits(hits []domain.SearchHit, provider string) []domain.SearchHit {
	out := make([]domain.SearchHit, len(hits))
	for i, h := range hits {
		h.Source = domain.ProviderSource(provider)
		h.Rank = i + 1
		if h.Score == 0 {
			h.Score = 1.0 / float64(i+1)
		}
		if h.DocID == "" {
			h.DocID = domain.DedupKey(h)
		}
		out[i] = h
	}
	return out
}

func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrProviderAuth):
		return "auth"
	case errors.Is(err, domain.ErrProviderRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrProviderEmpty):
		return "empty"
	default:
		return "error"
	}
}
