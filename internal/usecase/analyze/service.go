package analyze

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/mirae-cloud/newsrag/internal/domain"
	"github.com/mirae-cloud/newsrag/internal/logger"
)

// DefaultMaxSubQueries bounds the decomposition fan-out.
const DefaultMaxSubQueries = 3

// Service decomposes a user query into sub-queries with a strategy hint.
type Service struct {
	chat Chat
	max  int
}

// New creates a query analyzer. maxSubQueries <= 0 selects the default.
func New(chat Chat, maxSubQueries int) *Service {
	if maxSubQueries <= 0 {
		maxSubQueries = DefaultMaxSubQueries
	}
	return &Service{chat: chat, max: maxSubQueries}
}

// llmAnalysis mirrors the JSON shape requested from the model.
type llmAnalysis struct {
	Intent     string   `json:"intent"`
	Strategy   string   `json:"strategy"`
	SubQueries []string `json:"sub_queries"`
}

// Analyze classifies intent and decomposes the query. It never fails the
// request: an unusable decomposition falls back to a single sub-query equal
// to the original query verbatim.
func (s *Service) Analyze(ctx context.Context, query string, history []domain.Turn) domain.Analysis {
	log := logger.FromContext(ctx)
	temporal := hasTemporalKeyword(query)

	raw, err := s.chat.Complete(ctx, decompositionPrompt(query, s.max, temporal), history)
	if err != nil {
		log.Warn("query decomposition failed, using verbatim fallback", zap.Error(err))
		return fallbackAnalysis(query, temporal)
	}

	var parsed llmAnalysis
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		log.Warn("query decomposition returned malformed JSON, using verbatim fallback",
			zap.Error(err))
		return fallbackAnalysis(query, temporal)
	}

	subs := s.validSubQueries(parsed.SubQueries, temporal)
	if len(subs) == 0 {
		log.Warn("query decomposition yielded no usable sub-queries, using verbatim fallback")
		return fallbackAnalysis(query, temporal)
	}

	strategy := domain.Strategy(parsed.Strategy)
	if !strategy.IsValid() {
		strategy = domain.StrategyMixed
	}
	if temporal {
		// Fresh-information queries must reach external search regardless
		// of what the model suggested.
		strategy = domain.StrategyExternalLikely
	}

	intent := strings.TrimSpace(parsed.Intent)
	if intent == "" {
		intent = "search"
	}

	return domain.Analysis{Intent: intent, SubQueries: subs, Strategy: strategy}
}

// validSubQueries drops empty entries, deduplicates after case/whitespace
// folding, preserves the model's specificity ordering, and caps the count.
func (s *Service) validSubQueries(raw []string, temporal bool) []domain.SubQuery {
	seen := make(map[string]bool, len(raw))
	subs := make([]domain.SubQuery, 0, s.max)

	for _, text := range raw {
		text = strings.TrimSpace(text)
		norm := domain.NormalizeQuery(text)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true

		subs = append(subs, domain.SubQuery{
			Text:     text,
			Origin:   len(subs),
			Temporal: temporal || hasTemporalKeyword(text),
		})
		if len(subs) == s.max {
			break
		}
	}
	return subs
}

func fallbackAnalysis(query string, temporal bool) domain.Analysis {
	strategy := domain.StrategyMixed
	if temporal {
		strategy = domain.StrategyExternalLikely
	}
	return domain.Analysis{
		Intent:     "search",
		SubQueries: []domain.SubQuery{{Text: query, Origin: 0, Temporal: temporal}},
		Strategy:   strategy,
	}
}

// stripFences removes a ```json ... ``` wrapper some models emit.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
