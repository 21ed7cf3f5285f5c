package websearch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mirae-cloud/newsrag/internal/domain"
)

// fakeProvider is a scriptable provider for chain tests.
type fakeProvider struct {
	name  string
	hits  []domain.SearchHit
	err   error
	block bool
	calls int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Search(ctx context.Context, _ string, _ int) ([]domain.SearchHit, error) {
	p.calls++
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.hits, nil
}

func hit(title, link string) domain.SearchHit {
	return domain.SearchHit{Title: title, Link: link, Snippet: "s"}
}

func TestRunChain_FirstProviderWins(t *testing.T) {
	a := &fakeProvider{name: "a", hits: []domain.SearchHit{hit("one", "https://a.example/1")}}
	b := &fakeProvider{name: "b", hits: []domain.SearchHit{hit("two", "https://b.example/2")}}

	hits, failures := runChain(context.Background(), []Provider{a, b}, "q", 5, time.Second)
	if len(failures) != 0 {
		t.Fatalf("expected no failures, got %+v", failures)
	}
	if len(hits) != 1 || hits[0].Title != "one" {
		t.Fatalf("expected provider a's hits, got %+v", hits)
	}
	if b.calls != 0 {
		t.Error("provider b must not be called when a succeeds")
	}
	if hits[0].Source != domain.ProviderSource("a") {
		t.Errorf("expected source external-a, got %s", hits[0].Source)
	}
	if hits[0].Rank != 1 {
		t.Errorf("expected 1-based rank, got %d", hits[0].Rank)
	}
}

func TestRunChain_TimeoutAdvancesToNext(t *testing.T) {
	a := &fakeProvider{name: "a", block: true}
	b := &fakeProvider{name: "b", hits: []domain.SearchHit{hit("two", "https://b.example/2")}}

	hits, failures := runChain(context.Background(), []Provider{a, b}, "q", 5, 20*time.Millisecond)
	if len(hits) != 1 || hits[0].Title != "two" {
		t.Fatalf("expected exactly provider b's hits, got %+v", hits)
	}
	if len(failures) != 1 {
		t.Fatalf("expected exactly one failure, got %d", len(failures))
	}
	if failures[0].Provider != "a" || failures[0].Reason != "timeout" {
		t.Errorf("expected a/timeout failure, got %+v", failures[0])
	}
	if a.calls != 1 {
		t.Errorf("timeouts must not retry, provider a was called %d times", a.calls)
	}
}

func TestRunChain_TransientErrorRetriesOnce(t *testing.T) {
	a := &fakeProvider{name: "a", err: errors.New("connection reset")}
	b := &fakeProvider{name: "b", hits: []domain.SearchHit{hit("two", "https://b.example/2")}}

	_, failures := runChain(context.Background(), []Provider{a, b}, "q", 5, time.Second)
	if a.calls != 2 {
		t.Errorf("expected one retry (2 calls), got %d", a.calls)
	}
	if len(failures) != 1 || failures[0].Reason != "error" {
		t.Errorf("expected one generic failure for a, got %+v", failures)
	}
}

func TestRunChain_AuthDoesNotRetry(t *testing.T) {
	a := &fakeProvider{name: "a", err: domain.ErrProviderAuth}
	b := &fakeProvider{name: "b", hits: []domain.SearchHit{hit("two", "https://b.example/2")}}

	_, failures := runChain(context.Background(), []Provider{a, b}, "q", 5, time.Second)
	if a.calls != 1 {
		t.Errorf("auth failures must not retry, got %d calls", a.calls)
	}
	if failures[0].Reason != "auth" {
		t.Errorf("expected auth reason, got %s", failures[0].Reason)
	}
}

func TestRunChain_EmptyResultAdvances(t *testing.T) {
	a := &fakeProvider{name: "a"}
	b := &fakeProvider{name: "b", hits: []domain.SearchHit{hit("two", "https://b.example/2")}}

	hits, failures := runChain(context.Background(), []Provider{a, b}, "q", 5, time.Second)
	if len(hits) != 1 || hits[0].Title != "two" {
		t.Fatalf("expected fallthrough to b, got %+v", hits)
	}
	if len(failures) != 1 || failures[0].Reason != "empty" {
		t.Errorf("expected empty-result failure for a, got %+v", failures)
	}
}

func TestRunChain_ExhaustedChainYieldsEmpty(t *testing.T) {
	a := &fakeProvider{name: "a", err: domain.ErrProviderRateLimited}
	b := &fakeProvider{name: "b", err: domain.ErrProviderUnavailable}

	hits, failures := runChain(context.Background(), []Provider{a, b}, "q", 5, time.Second)
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %+v", hits)
	}
	if len(failures) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(failures))
	}
	if failures[0].Reason != "rate_limited" {
		t.Errorf("expected rate_limited for a, got %s", failures[0].Reason)
	}
}
