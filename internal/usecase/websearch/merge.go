package websearch

import (
	"sort"
	"time"

	"github.com/mirae-cloud/newsrag/internal/domain"
)

// mergeProviders combines recall-mode results, keeping the first occurrence
// of each dedup key. Input order is provider priority order, so the
// higher-priority provider wins duplicates.
func mergeProviders(lists ...[]domain.SearchHit) []domain.SearchHit {
	seen := make(map[string]bool)
	var merged []domain.SearchHit
	for _, hits := range lists {
		for _, h := range hits {
			key := domain.DedupKey(h)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, h)
		}
	}
	return merged
}

// Recency boost defaults: how far back a published date still earns a
// boost, and the maximum score added at age zero.
const (
	recencyBoostWindow = 72 * time.Hour
	recencyBoostMax    = 0.2
)

// boostRecent adds a score boost of up to max to hits published inside the
// window, decaying linearly with age, then re-sorts. Applied only for
// temporal sub-queries. The sort is stable so equally-scored hits keep
// provider priority order.
func boostRecent(hits []domain.SearchHit, now time.Time, window time.Duration, max float64) []domain.SearchHit {
	if window <= 0 {
		window = recencyBoostWindow
	}
	if max <= 0 {
		max = recencyBoostMax
	}
	for i := range hits {
		if hits[i].PublishedAt == nil {
			continue
		}
		age := now.Sub(*hits[i].PublishedAt)
		if age >= 0 && age <= window {
			hits[i].Score += max * (1.0 - float64(age)/float64(window))
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return hits
}
