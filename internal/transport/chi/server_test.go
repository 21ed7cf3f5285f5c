package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/mirae-cloud/newsrag/internal/domain"
)

type mockPipeline struct {
	resp        domain.Response
	err         error
	gotQuery    string
	gotUseCache bool
}

func (m *mockPipeline) Run(_ context.Context, query string, _ []domain.Turn, useCache bool) (domain.Response, error) {
	m.gotQuery = query
	m.gotUseCache = useCache
	return m.resp, m.err
}

type mockHealth struct{ err error }

func (m *mockHealth) Ping(context.Context) error { return m.err }

func newTestServer(p *mockPipeline, h *mockHealth) http.Handler {
	return NewServer(p, h, zap.NewNop()).Routes()
}

func TestAsk_Success(t *testing.T) {
	p := &mockPipeline{resp: domain.Response{
		Answer:     "오늘의 경제 요약 [1]",
		SubQueries: []domain.SubQuery{{Text: "경제 뉴스", Origin: 0, Temporal: true}},
		Verdicts: []domain.Verdict{{
			SubQuery:   domain.SubQuery{Text: "경제 뉴스"},
			Sufficient: true,
			Confidence: 0.03,
			Reason:     domain.ReasonSufficient,
		}},
		InternalResultCount: 3,
	}}
	h := newTestServer(p, &mockHealth{})

	req := httptest.NewRequest("POST", "/v1/ask",
		strings.NewReader(`{"query":"오늘 경제 뉴스"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if !p.gotUseCache {
		t.Error("use_cache must default to true")
	}

	var resp askResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "오늘의 경제 요약 [1]" {
		t.Errorf("unexpected answer %q", resp.Answer)
	}
	if len(resp.SubQueries) != 1 || !resp.SubQueries[0].Temporal {
		t.Errorf("sub-queries not mapped: %+v", resp.SubQueries)
	}
	if len(resp.Verdicts) != 1 || resp.Verdicts[0].Reason != "sufficient" {
		t.Errorf("verdicts not mapped: %+v", resp.Verdicts)
	}
	if resp.InternalResultCount != 3 {
		t.Errorf("internal_result_count = %d, want 3", resp.InternalResultCount)
	}
}

func TestAsk_UseCacheFalse(t *testing.T) {
	p := &mockPipeline{}
	h := newTestServer(p, &mockHealth{})

	req := httptest.NewRequest("POST", "/v1/ask",
		strings.NewReader(`{"query":"q","use_cache":false}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rr.Code)
	}
	if p.gotUseCache {
		t.Error("use_cache=false must be passed through")
	}
}

func TestAsk_EmptyQuery_400(t *testing.T) {
	h := newTestServer(&mockPipeline{}, &mockHealth{})

	req := httptest.NewRequest("POST", "/v1/ask", strings.NewReader(`{"query":""}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400", rr.Code)
	}
}

func TestAsk_InvalidBody_400(t *testing.T) {
	h := newTestServer(&mockPipeline{}, &mockHealth{})

	req := httptest.NewRequest("POST", "/v1/ask", strings.NewReader(`not json`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400", rr.Code)
	}
}

func TestAsk_GenerationFailure_502(t *testing.T) {
	p := &mockPipeline{err: domain.ErrGenerationFailed}
	h := newTestServer(p, &mockHealth{})

	req := httptest.NewRequest("POST", "/v1/ask", strings.NewReader(`{"query":"q"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Errorf("got %d, want 502", rr.Code)
	}
}

func TestHealthz_StoreDownStillOK(t *testing.T) {
	h := newTestServer(&mockPipeline{}, &mockHealth{err: context.DeadlineExceeded})

	req := httptest.NewRequest("GET", "/healthz", http.NoBody)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" || resp["store"] != "down" {
		t.Errorf("unexpected health payload: %v", resp)
	}
}
