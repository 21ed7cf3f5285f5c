package analyze

import (
	"fmt"
	"strings"
)

// temporalKeywords mark a query as needing fresh information. The Korean
// set matches the news domain this service indexes; English equivalents
// cover mixed-language queries.
var temporalKeywords = []string{
	"오늘", "최신", "최근", "현재", "지금", "요즘", "이번", "오늘의",
	"today", "latest", "recent", "now", "current", "breaking",
}

// hasTemporalKeyword reports whether the query asks for fresh information.
func hasTemporalKeyword(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range temporalKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// decompositionPrompt asks the model for an intent, a strategy hint, and
// up to maxSubQueries sub-queries ordered by decreasing specificity.
func decompositionPrompt(query string, maxSubQueries int, temporal bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You analyze a user question for a news retrieval system.

Question: %s

Respond with JSON only, no prose:
{
  "intent": "<one short phrase describing what the user wants>",
  "strategy": "<internal-only | external-likely | mixed>",
  "sub_queries": ["<most specific facet>", "...", "<broadest facet>"]
}

Rules:
- Produce at most %d sub_queries covering distinct facets of the question.
- Order them from most to least specific.
- Each sub_query must be a non-empty search phrase, not a sentence.
`, query, maxSubQueries)

	if temporal {
		b.WriteString("- The question asks for fresh information: set strategy to \"external-likely\".\n")
	}

	return b.String()
}
