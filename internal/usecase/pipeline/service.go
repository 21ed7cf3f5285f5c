package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mirae-cloud/newsrag/internal/domain"
	"github.com/mirae-cloud/newsrag/internal/logger"
	"github.com/mirae-cloud/newsrag/internal/metrics"
	"github.com/mirae-cloud/newsrag/internal/usecase/cache"
)

// WorkflowState is the running aggregate for one request. The controller
// owns it exclusively and discards it at request end; stages mutate it in
// a fixed order, never concurrently.
type WorkflowState struct {
	Query   string
	History []domain.Turn

	Analysis domain.Analysis
	Degraded bool

	// Internal and External are keyed by sub-query origin so the outcome
	// never depends on provider arrival order.
	Internal map[int][]domain.FusedResult
	External map[int][]domain.SearchHit

	Verdicts  []domain.Verdict
	Escalated []domain.SubQuery

	Bundle domain.ContextBundle
	Answer string
}

// Deps are the collaborators the controller sequences. Verifier and Cache
// are optional; the rest are required.
type Deps struct {
	Analyzer  Analyzer
	Retriever Retriever
	Gate      Gate
	WebSearch WebSearcher
	Builder   ContextBuilder
	Generator Generator
	Verifier  Verifier
	Cache     Cache
}

// Config holds the controller's own tunables.
type Config struct {
	CacheTTL time.Duration
	// VerifyAnswers enables the post-generation grounding check with a
	// single strict regeneration on failure.
	VerifyAnswers bool
}

// Service is the pipeline controller. It sequences
// cache -> analyze -> retrieve -> gate -> websearch -> build -> generate
// and owns cache population on the way out.
type Service struct {
	deps Deps
	cfg  Config
}

// New creates the pipeline controller.
func New(deps Deps, cfg Config) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	return &Service{deps: deps, cfg: cfg}
}

// Run executes one request end to end. Partial degradation (unreachable
// store, exhausted provider chains, empty evidence) is absorbed into the
// response flags; only a generation failure is returned as an error.
func (s *Service) Run(ctx context.Context, query string, history []domain.Turn, useCache bool) (domain.Response, error) {
	log := logger.FromContext(ctx)

	var key string
	if useCache && s.deps.Cache != nil {
		key = cache.Key(query, history)
		if resp, ok := s.deps.Cache.Get(key); ok {
			log.Debug("answer served from cache", zap.String("key", key))
			return resp, nil
		}
	}

	st := &WorkflowState{Query: query, History: history}

	s.analyzeStage(ctx, st)
	s.retrieveStage(ctx, st)
	s.gateStage(st)
	s.websearchStage(ctx, st)
	s.buildStage(st)

	if err := s.generateStage(ctx, st); err != nil {
		return domain.Response{}, err
	}

	resp := s.response(st)
	if key != "" {
		s.deps.Cache.Put(key, resp, s.cfg.CacheTTL)
	}

	log.Info("pipeline run complete",
		zap.Int("sub_queries", len(st.Analysis.SubQueries)),
		zap.Int("escalated", len(st.Escalated)),
		zap.Int("internal_results", resp.InternalResultCount),
		zap.Int("external_results", resp.ExternalResultCount),
		zap.Int("context_chars", st.Bundle.CharsUsed),
		zap.Bool("degraded", resp.Degraded),
		zap.Bool("no_evidence", resp.NoEvidence),
	)
	return resp, nil
}

func (s *Service) analyzeStage(ctx context.Context, st *WorkflowState) {
	defer observe("analyze", time.Now())
	st.Analysis = s.deps.Analyzer.Analyze(ctx, st.Query, st.History)
}

func (s *Service) retrieveStage(ctx context.Context, st *WorkflowState) {
	defer observe("retrieve", time.Now())

	st.Internal = make(map[int][]domain.FusedResult, len(st.Analysis.SubQueries))
	for _, sub := range st.Analysis.SubQueries {
		results, degraded := s.deps.Retriever.Search(ctx, sub.Text)
		if degraded {
			st.Degraded = true
		}
		st.Internal[sub.Origin] = results
	}
}

func (s *Service) gateStage(st *WorkflowState) {
	defer observe("gate", time.Now())

	for _, sub := range st.Analysis.SubQueries {
		v := s.deps.Gate.Evaluate(sub, st.Internal[sub.Origin], st.Degraded)
		st.Verdicts = append(st.Verdicts, v)
		if !v.Sufficient {
			st.Escalated = append(st.Escalated, sub)
		}
	}
}

func (s *Service) websearchStage(ctx context.Context, st *WorkflowState) {
	defer observe("websearch", time.Now())

	if len(st.Escalated) == 0 {
		st.External = map[int][]domain.SearchHit{}
		return
	}
	st.External = s.deps.WebSearch.Resolve(ctx, st.Escalated)
}

func (s *Service) buildStage(st *WorkflowState) {
	defer observe("build", time.Now())

	var internal []domain.FusedResult
	for _, sub := range st.Analysis.SubQueries {
		internal = append(internal, st.Internal[sub.Origin]...)
	}
	var external []domain.SearchHit
	for _, sub := range st.Escalated {
		external = append(external, st.External[sub.Origin]...)
	}
	st.Bundle = s.deps.Builder.Build(internal, external)
}

// generateStage always runs, even over an empty bundle; a bundle with no
// evidence yields a knowledge-only answer flagged via NoEvidence.
func (s *Service) generateStage(ctx context.Context, st *WorkflowState) error {
	defer observe("generate", time.Now())

	answer, err := s.deps.Generator.Generate(ctx, st.Query, st.History, st.Bundle, false)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}
	st.Answer = answer

	if s.cfg.VerifyAnswers && s.deps.Verifier != nil && !st.Bundle.Empty() {
		s.verifyStage(ctx, st)
	}
	return nil
}

// verifyStage is best effort: a verifier error keeps the first answer, a
// failed check regenerates once with the strict instruction and keeps the
// second answer regardless.
func (s *Service) verifyStage(ctx context.Context, st *WorkflowState) {
	log := logger.FromContext(ctx)

	grounded, err := s.deps.Verifier.Verify(ctx, st.Answer, st.Bundle)
	if err != nil {
		log.Warn("answer verification unavailable", zap.Error(err))
		return
	}
	if grounded {
		return
	}

	retry, err := s.deps.Generator.Generate(ctx, st.Query, st.History, st.Bundle, true)
	if err != nil {
		log.Warn("strict regeneration failed, keeping first answer", zap.Error(err))
		return
	}
	st.Answer = retry
}

func (s *Service) response(st *WorkflowState) domain.Response {
	internalCount := 0
	for _, rs := range st.Internal {
		internalCount += len(rs)
	}
	externalCount := 0
	for _, hs := range st.External {
		externalCount += len(hs)
	}

	return domain.Response{
		Answer:              st.Answer,
		SubQueries:          st.Analysis.SubQueries,
		Verdicts:            st.Verdicts,
		InternalResultCount: internalCount,
		ExternalResultCount: externalCount,
		Degraded:            st.Degraded,
		NoEvidence:          internalCount == 0 && externalCount == 0,
	}
}

func observe(stage string, start time.Time) {
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
