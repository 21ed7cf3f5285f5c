package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mirae-cloud/newsrag/internal/domain"
	"github.com/mirae-cloud/newsrag/internal/usecase/cache"
	"github.com/mirae-cloud/newsrag/internal/usecase/contextbuild"
	"github.com/mirae-cloud/newsrag/internal/usecase/gate"
)

type mockAnalyzer struct {
	analysis domain.Analysis
}

func (m *mockAnalyzer) Analyze(_ context.Context, query string, _ []domain.Turn) domain.Analysis {
	if len(m.analysis.SubQueries) == 0 {
		return domain.Analysis{
			Intent:     "test",
			SubQueries: []domain.SubQuery{{Text: query, Origin: 0}},
			Strategy:   domain.StrategyMixed,
		}
	}
	return m.analysis
}

type mockRetriever struct {
	results  []domain.FusedResult
	degraded bool
	calls    int
}

func (m *mockRetriever) Search(_ context.Context, _ string) ([]domain.FusedResult, bool) {
	m.calls++
	return m.results, m.degraded
}

type mockWebSearcher struct {
	calls  [][]domain.SubQuery
	result map[int][]domain.SearchHit
}

func (m *mockWebSearcher) Resolve(_ context.Context, subs []domain.SubQuery) map[int][]domain.SearchHit {
	m.calls = append(m.calls, subs)
	if m.result != nil {
		return m.result
	}
	out := make(map[int][]domain.SearchHit, len(subs))
	for _, sub := range subs {
		out[sub.Origin] = nil
	}
	return out
}

type mockGenerator struct {
	answer       string
	strictAnswer string
	err          error
	calls        int
	strictCalls  int
	lastBundle   domain.ContextBundle
}

func (m *mockGenerator) Generate(_ context.Context, _ string, _ []domain.Turn, bundle domain.ContextBundle, strict bool) (string, error) {
	m.calls++
	m.lastBundle = bundle
	if m.err != nil {
		return "", m.err
	}
	if strict {
		m.strictCalls++
		return m.strictAnswer, nil
	}
	return m.answer, nil
}

type mockVerifier struct {
	grounded bool
	err      error
}

func (m *mockVerifier) Verify(_ context.Context, _ string, _ domain.ContextBundle) (bool, error) {
	return m.grounded, m.err
}

func strongResults() []domain.FusedResult {
	return []domain.FusedResult{
		{DocID: "a", Title: "A", Snippet: "evidence a", Score: 0.032, Sources: []domain.Source{domain.SourceLexical, domain.SourceDense}},
		{DocID: "b", Title: "B", Snippet: "evidence b", Score: 0.016, Sources: []domain.Source{domain.SourceDense}},
	}
}

func newTestService(deps Deps, cfg Config) *Service {
	if deps.Gate == nil {
		deps.Gate = gate.New(gate.DefaultConfig())
	}
	if deps.Builder == nil {
		deps.Builder = contextbuild.New(1000)
	}
	return New(deps, cfg)
}

func TestRun_SufficientInternalSkipsExternal(t *testing.T) {
	web := &mockWebSearcher{}
	gen := &mockGenerator{answer: "오늘의 경제 요약"}
	svc := newTestService(Deps{
		Analyzer:  &mockAnalyzer{},
		Retriever: &mockRetriever{results: strongResults()},
		WebSearch: web,
		Generator: gen,
	}, Config{})

	resp, err := svc.Run(context.Background(), "오늘 경제 뉴스", nil, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(web.calls) != 0 {
		t.Error("no external call may be made when internal evidence suffices")
	}
	if resp.ExternalResultCount != 0 {
		t.Errorf("external_result_count = %d, want 0", resp.ExternalResultCount)
	}
	if resp.InternalResultCount != 2 {
		t.Errorf("internal_result_count = %d, want 2", resp.InternalResultCount)
	}
	if !resp.Verdicts[0].Sufficient {
		t.Error("verdict should be sufficient")
	}
	if resp.Answer != "오늘의 경제 요약" {
		t.Errorf("unexpected answer %q", resp.Answer)
	}
}

func TestRun_AllEscalateAllProvidersFailStillGenerates(t *testing.T) {
	web := &mockWebSearcher{}
	gen := &mockGenerator{answer: "knowledge-only answer"}
	svc := newTestService(Deps{
		Analyzer: &mockAnalyzer{analysis: domain.Analysis{
			SubQueries: []domain.SubQuery{
				{Text: "뉴스의 정의", Origin: 0},
				{Text: "뉴스의 역사", Origin: 1},
			},
			Strategy: domain.StrategyMixed,
		}},
		Retriever: &mockRetriever{},
		WebSearch: web,
		Generator: gen,
	}, Config{})

	resp, err := svc.Run(context.Background(), "뉴스란 무엇인가요?", nil, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(web.calls) != 1 || len(web.calls[0]) != 2 {
		t.Fatalf("expected one Resolve call for both sub-queries, got %v", web.calls)
	}
	if resp.InternalResultCount != 0 || resp.ExternalResultCount != 0 {
		t.Errorf("expected zero evidence counts, got %d / %d",
			resp.InternalResultCount, resp.ExternalResultCount)
	}
	if gen.calls != 1 {
		t.Errorf("generation must still run, calls=%d", gen.calls)
	}
	if !gen.lastBundle.Empty() {
		t.Error("generation should receive an empty bundle")
	}
	if !resp.NoEvidence {
		t.Error("response must carry the no-evidence indicator")
	}
}

func TestRun_SecondIdenticalRequestHitsCache(t *testing.T) {
	store, err := cache.New(10, time.Minute)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	gen := &mockGenerator{answer: "cached answer"}
	svc := newTestService(Deps{
		Analyzer:  &mockAnalyzer{},
		Retriever: &mockRetriever{results: strongResults()},
		WebSearch: &mockWebSearcher{},
		Generator: gen,
		Cache:     store,
	}, Config{})

	history := []domain.Turn{{Role: "user", Text: "이전 질문"}}

	first, err := svc.Run(context.Background(), "경제 뉴스", history, true)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := svc.Run(context.Background(), "경제 뉴스", history, true)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if first.CacheHit {
		t.Error("first response must not be a cache hit")
	}
	if !second.CacheHit {
		t.Error("second response must be a cache hit")
	}
	if gen.calls != 1 {
		t.Errorf("pipeline must run once, generator calls=%d", gen.calls)
	}
	if second.Answer != first.Answer {
		t.Errorf("cached answer %q differs from original %q", second.Answer, first.Answer)
	}
	if second.InternalResultCount != first.InternalResultCount {
		t.Error("cached response payload must match the original")
	}
}

func TestRun_UseCacheFalseBypassesCache(t *testing.T) {
	store, err := cache.New(10, time.Minute)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	gen := &mockGenerator{answer: "a"}
	svc := newTestService(Deps{
		Analyzer:  &mockAnalyzer{},
		Retriever: &mockRetriever{results: strongResults()},
		WebSearch: &mockWebSearcher{},
		Generator: gen,
		Cache:     store,
	}, Config{})

	for n := 0; n < 2; n++ {
		if _, err := svc.Run(context.Background(), "경제 뉴스", nil, false); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}
	if gen.calls != 2 {
		t.Errorf("cache bypass must run the pipeline twice, generator calls=%d", gen.calls)
	}
	if _, _, size := store.Stats(); size != 0 {
		t.Errorf("bypassed cache must stay empty, size=%d", size)
	}
}

func TestRun_DegradedStoreForcesAllEscalations(t *testing.T) {
	web := &mockWebSearcher{result: map[int][]domain.SearchHit{
		0: {{DocID: "x", Title: "X", Snippet: "external", Source: domain.ProviderSource("naver"), Score: 1}},
	}}
	svc := newTestService(Deps{
		Analyzer:  &mockAnalyzer{},
		Retriever: &mockRetriever{degraded: true},
		WebSearch: web,
		Generator: &mockGenerator{answer: "external-only answer"},
	}, Config{})

	resp, err := svc.Run(context.Background(), "경제 뉴스", nil, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !resp.Degraded {
		t.Error("response must carry the degraded flag")
	}
	if len(web.calls) != 1 {
		t.Fatal("degraded mode must escalate to external search")
	}
	if resp.Verdicts[0].Reason != domain.ReasonDegraded {
		t.Errorf("verdict reason = %s, want %s", resp.Verdicts[0].Reason, domain.ReasonDegraded)
	}
	if resp.ExternalResultCount != 1 {
		t.Errorf("external_result_count = %d, want 1", resp.ExternalResultCount)
	}
}

func TestRun_GenerationFailurePropagates(t *testing.T) {
	svc := newTestService(Deps{
		Analyzer:  &mockAnalyzer{},
		Retriever: &mockRetriever{results: strongResults()},
		WebSearch: &mockWebSearcher{},
		Generator: &mockGenerator{err: errors.New("model overloaded")},
	}, Config{})

	_, err := svc.Run(context.Background(), "경제 뉴스", nil, false)
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
}

func TestRun_FailedVerificationRegeneratesOnce(t *testing.T) {
	gen := &mockGenerator{answer: "ungrounded", strictAnswer: "grounded"}
	svc := newTestService(Deps{
		Analyzer:  &mockAnalyzer{},
		Retriever: &mockRetriever{results: strongResults()},
		WebSearch: &mockWebSearcher{},
		Generator: gen,
		Verifier:  &mockVerifier{grounded: false},
	}, Config{VerifyAnswers: true})

	resp, err := svc.Run(context.Background(), "경제 뉴스", nil, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Answer != "grounded" {
		t.Errorf("expected the strict regeneration's answer, got %q", resp.Answer)
	}
	if gen.calls != 2 || gen.strictCalls != 1 {
		t.Errorf("expected exactly one strict regeneration, calls=%d strict=%d",
			gen.calls, gen.strictCalls)
	}
}

func TestRun_VerifierErrorKeepsFirstAnswer(t *testing.T) {
	gen := &mockGenerator{answer: "first"}
	svc := newTestService(Deps{
		Analyzer:  &mockAnalyzer{},
		Retriever: &mockRetriever{results: strongResults()},
		WebSearch: &mockWebSearcher{},
		Generator: gen,
		Verifier:  &mockVerifier{err: errors.New("verifier down")},
	}, Config{VerifyAnswers: true})

	resp, err := svc.Run(context.Background(), "경제 뉴스", nil, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Answer != "first" || gen.calls != 1 {
		t.Errorf("verifier error must keep the first answer, got %q calls=%d",
			resp.Answer, gen.calls)
	}
}
