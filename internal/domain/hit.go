package domain

import "time"

// Source identifies the retrieval list a hit originated from.
type Source string

const (
	SourceLexical Source = "internal-lexical"
	SourceDense   Source = "internal-dense"
)

// ProviderSource builds the source label for an external provider.
func ProviderSource(provider string) Source {
	return Source("external-" + provider)
}

// IsInternal reports whether the source is one of the internal store lists.
func (s Source) IsInternal() bool {
	return s == SourceLexical || s == SourceDense
}

// SearchHit is a single result from one retrieval call. Hits are never
// mutated after creation; fusion produces new FusedResult values instead.
type SearchHit struct {
	DocID   string
	Title   string
	Snippet string
	Link    string
	Source  Source
	// Score is on the originating provider's native scale and is not
	// comparable across sources. Rank is 1-based within the originating list.
	Score       float64
	Rank        int
	PublishedAt *time.Time
}

// FusedResult is one unique document after rank fusion of the internal
// lexical and dense lists. Doc ids are unique within a fused set.
type FusedResult struct {
	DocID   string
	Title   string
	Snippet string
	Link    string
	Score   float64
	Sources []Source
	Rank    int
	// MinRank is the best 1-based rank the document held in any
	// contributing list, kept for deterministic tie-breaking.
	MinRank int
}
