package websearch

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/mirae-cloud/newsrag/internal/domain"
	"github.com/mirae-cloud/newsrag/internal/logger"
)

// Config holds the external search tunables.
type Config struct {
	// TopK is the per-provider result depth.
	TopK int
	// ProviderTimeout bounds each provider call.
	ProviderTimeout time.Duration
	// Workers bounds concurrency across sub-queries.
	Workers int
	// RecallMode queries every provider per sub-query and merges, instead
	// of stopping at the first success.
	RecallMode bool
	// RecencyWindow is the published-date window for the temporal boost.
	RecencyWindow time.Duration
	// RecencyBoost is the maximum score added to a hit published just now;
	// the boost decays linearly to zero over the window.
	RecencyBoost float64
}

// Service resolves escalated sub-queries against an ordered provider chain.
type Service struct {
	providers []Provider
	pool      *ants.Pool
	cfg       Config
	now       func() time.Time
}

// New creates an external search service over the given provider priority
// order. The worker pool is owned by the service; call Close on shutdown.
func New(providers []Provider, cfg Config) (*Service, error) {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 5 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, err
	}
	return &Service{providers: providers, pool: pool, cfg: cfg, now: time.Now}, nil
}

// Close releases the worker pool.
func (s *Service) Close() {
	s.pool.Release()
}

// Resolve fans the escalated sub-queries out over the bounded worker pool.
// Different sub-queries run concurrently; within one sub-query the provider
// chain is strictly sequential. The result for each sub-query depends only
// on provider priority and success/failure outcomes, never on arrival
// order. An exhausted chain yields an empty entry, not an error.
func (s *Service) Resolve(ctx context.Context, subs []domain.SubQuery) map[int][]domain.SearchHit {
	log := logger.FromContext(ctx)

	results := make(map[int][]domain.SearchHit, len(subs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, sub := range subs {
		sub := sub
		wg.Add(1)
		submit := func() {
			defer wg.Done()
			hits, failures := s.resolveOne(ctx, sub)

			for _, f := range failures {
				log.Warn("search provider failed",
					zap.String("provider", f.Provider),
					zap.String("reason", f.Reason),
					zap.String("sub_query", sub.Text),
				)
			}

			mu.Lock()
			results[sub.Origin] = hits
			mu.Unlock()
		}
		if err := s.pool.Submit(submit); err != nil {
			// Pool rejection (released or overloaded beyond its queue):
			// run inline rather than dropping the sub-query.
			submit()
		}
	}
	wg.Wait()

	return results
}

// resolveOne runs either the fallback chain or recall-mode merge for a
// single sub-query, applying the recency boost to temporal queries.
func (s *Service) resolveOne(ctx context.Context, sub domain.SubQuery) ([]domain.SearchHit, []Failure) {
	var hits []domain.SearchHit
	var failures []Failure

	if s.cfg.RecallMode {
		lists := make([][]domain.SearchHit, 0, len(s.providers))
		for _, p := range s.providers {
			providerHits, fails := runChain(ctx, []Provider{p}, sub.Text, s.cfg.TopK, s.cfg.ProviderTimeout)
			failures = append(failures, fails...)
			if len(providerHits) > 0 {
				lists = append(lists, providerHits)
			}
		}
		hits = mergeProviders(lists...)
	} else {
		hits, failures = runChain(ctx, s.providers, sub.Text, s.cfg.TopK, s.cfg.ProviderTimeout)
	}

	if sub.Temporal && len(hits) > 0 {
		hits = boostRecent(hits, s.now(), s.cfg.RecencyWindow, s.cfg.RecencyBoost)
	}
	return hits, failures
}
