package contextbuild

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/mirae-cloud/newsrag/internal/domain"
)

// DefaultBudget is the context character budget handed to generation.
const DefaultBudget = 6000

// Service merges internal and external evidence into one bounded,
// attributed context bundle.
type Service struct {
	budget int
}

// New creates a context builder. budget <= 0 selects the default.
func New(budget int) *Service {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Service{budget: budget}
}

// Build assembles the bundle: internal evidence first (internal is
// presumed higher trust), each tier sorted by score descending, dedup
// across tiers by link/title key, greedy fill until the character budget
// is exhausted. A passage that would overflow the budget is skipped whole,
// never truncated, so citations stay intact. Output ordering is fully
// determined by the evidence sets.
func (s *Service) Build(internal []domain.FusedResult, external []domain.SearchHit) domain.ContextBundle {
	candidates := make([]domain.SearchHit, 0, len(internal)+len(external))

	internalTier := make([]domain.SearchHit, 0, len(internal))
	for _, r := range internal {
		internalTier = append(internalTier, domain.SearchHit{
			DocID:   r.DocID,
			Title:   r.Title,
			Snippet: r.Snippet,
			Link:    r.Link,
			Source:  primarySource(r),
			Score:   r.Score,
		})
	}
	sortTier(internalTier)

	externalTier := append([]domain.SearchHit(nil), external...)
	sortTier(externalTier)

	candidates = append(candidates, internalTier...)
	candidates = append(candidates, externalTier...)

	bundle := domain.ContextBundle{Budget: s.budget}
	seen := make(map[string]bool, len(candidates))

	for _, c := range candidates {
		key := domain.DedupKey(c)
		if seen[key] {
			continue
		}
		seen[key] = true

		excerpt := c.Snippet
		if excerpt == "" {
			excerpt = c.Title
		}
		if excerpt == "" {
			continue
		}

		cost := utf8.RuneCountInString(excerpt)
		if bundle.CharsUsed+cost > s.budget {
			continue
		}

		label := fmt.Sprintf("[%d]", len(bundle.Passages)+1)
		bundle.Passages = append(bundle.Passages, domain.Passage{
			DocID:   c.DocID,
			Source:  c.Source,
			Excerpt: excerpt,
			Label:   label,
		})
		bundle.Sources = append(bundle.Sources, domain.SourceRef{
			Title:  c.Title,
			Link:   c.Link,
			Source: c.Source,
			Label:  label,
		})
		bundle.CharsUsed += cost
	}

	return bundle
}

// primarySource picks the attribution label for a fused internal result.
// A document found by both lists is attributed to the lexical ranking.
func primarySource(r domain.FusedResult) domain.Source {
	if len(r.Sources) > 0 {
		return r.Sources[0]
	}
	return domain.SourceLexical
}

// sortTier orders a tier by score descending with deterministic tie-breaks.
func sortTier(hits []domain.SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})
}
