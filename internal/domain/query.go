package domain

import "strings"

// Strategy is the analyzer's retrieval-strategy hint. It is advisory only:
// the relevance gate makes the binding per-sub-query decision.
type Strategy string

const (
	StrategyInternalOnly   Strategy = "internal-only"
	StrategyExternalLikely Strategy = "external-likely"
	StrategyMixed          Strategy = "mixed"
)

// IsValid reports whether the strategy is one of the known hints.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyInternalOnly, StrategyExternalLikely, StrategyMixed:
		return true
	}
	return false
}

// Turn is a single prior conversation turn.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// SubQuery is one facet of the decomposed user query. Immutable after
// creation; Origin is its position within the decomposition.
type SubQuery struct {
	Text     string
	Origin   int
	Temporal bool
}

// Analysis is the query analyzer's output for one request.
type Analysis struct {
	Intent     string
	SubQueries []SubQuery
	Strategy   Strategy
}

// NormalizeQuery folds case and collapses whitespace for dedup and cache
// fingerprinting. Two queries equal after normalization are the same query.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
