package retrieval

import (
	"context"

	"go.uber.org/zap"

	"github.com/mirae-cloud/newsrag/internal/domain"
	"github.com/mirae-cloud/newsrag/internal/logger"
	"github.com/mirae-cloud/newsrag/internal/metrics"
)

// Config holds the hybrid retrieval tunables.
type Config struct {
	// TopK is the per-list depth of each retrieval call.
	TopK int
	// TopN bounds the fused output.
	TopN int
	// RRFK is the fusion smoothing constant.
	RRFK int
}

// Service runs hybrid lexical+dense retrieval against the internal store
// and fuses the two rankings.
type Service struct {
	repo  Repository
	embed Embedder
	cfg   Config
}

// New creates a hybrid retrieval service.
func New(repo Repository, embed Embedder, cfg Config) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	if cfg.RRFK <= 0 {
		cfg.RRFK = DefaultRRFK
	}
	return &Service{repo: repo, embed: embed, cfg: cfg}
}

// Search runs both rankings for one sub-query and fuses them. An
// unreachable store yields an empty result with degraded=true; retrieval
// never fails the request. Lexical and dense run concurrently since they
// are independent reads.
func (s *Service) Search(ctx context.Context, query string) (results []domain.FusedResult, degraded bool) {
	log := logger.FromContext(ctx)

	var (
		lexical, dense []domain.SearchHit
		lexErr, denErr error
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		lexical, lexErr = s.repo.SearchLexical(ctx, query, s.cfg.TopK)
	}()

	dense, denErr = s.denseSearch(ctx, query)
	<-done

	if lexErr != nil {
		log.Warn("lexical search failed", zap.String("query", query), zap.Error(lexErr))
	}
	if denErr != nil {
		log.Warn("dense search failed", zap.String("query", query), zap.Error(denErr))
	}

	// Both lists lost means the store is unreachable: report degraded so
	// the controller escalates every sub-query to external search.
	if lexErr != nil && denErr != nil {
		metrics.StoreDegradedTotal.Inc()
		return nil, true
	}

	return fuseRRF(lexical, dense, s.cfg.RRFK, s.cfg.TopN), false
}

// denseSearch embeds the query and runs the KNN ranking. An embedding
// failure degrades to lexical-only rather than failing the sub-query.
func (s *Service) denseSearch(ctx context.Context, query string) ([]domain.SearchHit, error) {
	vector, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.repo.SearchDense(ctx, vector, s.cfg.TopK)
}
