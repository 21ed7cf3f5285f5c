package domain

import "errors"

var (
	// ErrStoreUnavailable signals an unreachable internal store.
	ErrStoreUnavailable = errors.New("internal store unavailable")
	// ErrProviderUnavailable signals an external provider failure.
	ErrProviderUnavailable = errors.New("search provider unavailable")
	// ErrProviderRateLimited signals an external provider rate limit.
	ErrProviderRateLimited = errors.New("search provider rate limited")
	// ErrProviderAuth signals rejected provider credentials.
	ErrProviderAuth = errors.New("search provider authentication failed")
	// ErrProviderEmpty signals a provider call that returned no results.
	ErrProviderEmpty = errors.New("search provider returned no results")
	// ErrGenerationFailed signals a failed answer-generation call. This is
	// the only error class that propagates to the request boundary.
	ErrGenerationFailed = errors.New("answer generation failed")
	// ErrAnalysisFailed signals an unusable query decomposition.
	ErrAnalysisFailed = errors.New("query analysis failed")
)
