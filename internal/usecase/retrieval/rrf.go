package retrieval

import (
	"sort"

	"github.com/mirae-cloud/newsrag/internal/domain"
)

// DefaultRRFK is the Reciprocal Rank Fusion smoothing constant (standard
// value from Cormack et al. 2009).
const DefaultRRFK = 60

// fuseRRF merges the lexical and dense rankings via Reciprocal Rank Fusion.
// score(d) = sum of 1/(k + rank_i(d)) over the lists where d appears, with
// 1-based ranks. Each input list is deduplicated by doc id first, so a
// document contributes at most once per list. Ties break deterministically:
// presence in both lists, then lower minimum rank, then doc id order.
func fuseRRF(lexical, dense []domain.SearchHit, k, topN int) []domain.FusedResult {
	type scored struct {
		hit     domain.SearchHit
		score   float64
		sources []domain.Source
		minRank int
	}

	merged := make(map[string]*scored)

	accumulate := func(hits []domain.SearchHit, source domain.Source) {
		seen := make(map[string]bool, len(hits))
		rank := 0
		for _, h := range hits {
			if seen[h.DocID] {
				continue
			}
			seen[h.DocID] = true
			rank++

			s := 1.0 / float64(k+rank)
			if existing, ok := merged[h.DocID]; ok {
				existing.score += s
				existing.sources = append(existing.sources, source)
				if rank < existing.minRank {
					existing.minRank = rank
				}
				// Keep the richer snippet when the first list lacked one.
				if existing.hit.Snippet == "" && h.Snippet != "" {
					existing.hit = h
				}
			} else {
				merged[h.DocID] = &scored{
					hit:     h,
					score:   s,
					sources: []domain.Source{source},
					minRank: rank,
				}
			}
		}
	}

	accumulate(lexical, domain.SourceLexical)
	accumulate(dense, domain.SourceDense)

	results := make([]domain.FusedResult, 0, len(merged))
	for _, s := range merged {
		results = append(results, domain.FusedResult{
			DocID:   s.hit.DocID,
			Title:   s.hit.Title,
			Snippet: s.hit.Snippet,
			Link:    s.hit.Link,
			Score:   s.score,
			Sources: s.sources,
			MinRank: s.minRank,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if len(a.Sources) != len(b.Sources) {
			return len(a.Sources) > len(b.Sources)
		}
		if a.MinRank != b.MinRank {
			return a.MinRank < b.MinRank
		}
		return a.DocID < b.DocID
	})

	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}

	for i := range results {
		results[i].Rank = i + 1
	}

	return results
}
