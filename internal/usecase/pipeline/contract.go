package pipeline

import (
	"context"
	"time"

	"github.com/mirae-cloud/newsrag/internal/domain"
)

// Analyzer decomposes a user query into sub-queries with a strategy hint.
// Analysis never fails; a broken decomposition degrades to a single
// verbatim sub-query.
type Analyzer interface {
	Analyze(ctx context.Context, query string, history []domain.Turn) domain.Analysis
}

// Retriever runs hybrid retrieval against the internal store for one
// sub-query. degraded reports that the store was unreachable.
type Retriever interface {
	Search(ctx context.Context, query string) (results []domain.FusedResult, degraded bool)
}

// Gate decides per sub-query whether internal evidence suffices.
type Gate interface {
	Evaluate(sub domain.SubQuery, fused []domain.FusedResult, degraded bool) domain.Verdict
}

// WebSearcher resolves escalated sub-queries against the external provider
// chain. The returned map is keyed by sub-query origin; an exhausted chain
// yields an empty slice, never an error.
type WebSearcher interface {
	Resolve(ctx context.Context, subs []domain.SubQuery) map[int][]domain.SearchHit
}

// ContextBuilder merges internal and external evidence into one bounded,
// attributed bundle.
type ContextBuilder interface {
	Build(internal []domain.FusedResult, external []domain.SearchHit) domain.ContextBundle
}

// Generator produces the final answer from the bundle. strict requests a
// tighter grounding instruction and is used only on regeneration after a
// failed verification.
type Generator interface {
	Generate(ctx context.Context, query string, history []domain.Turn, bundle domain.ContextBundle, strict bool) (string, error)
}

// Verifier checks that a generated answer is grounded in the bundle.
type Verifier interface {
	Verify(ctx context.Context, answer string, bundle domain.ContextBundle) (bool, error)
}

// Cache is the request-level answer cache.
type Cache interface {
	Get(key string) (domain.Response, bool)
	Put(key string, value domain.Response, ttl time.Duration)
}
