package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mirae-cloud/newsrag/internal/domain"
)

// Pipeline is the request-answering contract the server fronts.
type Pipeline interface {
	Run(ctx context.Context, query string, history []domain.Turn, useCache bool) (domain.Response, error)
}

// HealthChecker reports internal store connectivity. The server stays up
// and answers degraded when the store is down, so health never gates
// request serving.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP API over the answer pipeline.
type Server struct {
	pipeline Pipeline
	health   HealthChecker
	logger   *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(pipeline Pipeline, health HealthChecker, logger *zap.Logger) *Server {
	return &Server{pipeline: pipeline, health: health, logger: logger}
}

// Routes mounts the API onto a fresh router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/v1/ask", s.Ask)
	r.Get("/healthz", s.Healthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	return r
}

type askRequest struct {
	Query   string        `json:"query"`
	History []domain.Turn `json:"history,omitempty"`
	// UseCache defaults to true when omitted.
	UseCache *bool `json:"use_cache,omitempty"`
}

type subQueryDTO struct {
	Text     string `json:"text"`
	Origin   int    `json:"origin"`
	Temporal bool   `json:"temporal,omitempty"`
}

type verdictDTO struct {
	SubQuery   string  `json:"sub_query"`
	Sufficient bool    `json:"sufficient"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

type askResponse struct {
	Answer              string        `json:"answer"`
	SubQueries          []subQueryDTO `json:"sub_queries"`
	Verdicts            []verdictDTO  `json:"verdicts"`
	InternalResultCount int           `json:"internal_result_count"`
	ExternalResultCount int           `json:"external_result_count"`
	CacheHit            bool          `json:"cache_hit"`
	Degraded            bool          `json:"degraded,omitempty"`
	NoEvidence          bool          `json:"no_evidence,omitempty"`
}

// Ask handles POST /v1/ask.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "query is required")
		return
	}

	useCache := true
	if req.UseCache != nil {
		useCache = *req.UseCache
	}

	resp, err := s.pipeline.Run(r.Context(), req.Query, req.History, useCache)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, responseToDTO(resp))
}

// Healthz handles GET /healthz. A down store is reported but does not fail
// the check; the pipeline serves external-only in that state.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	store := "up"
	if err := s.health.Ping(r.Context()); err != nil {
		store = "down"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"store":  store,
	})
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrGenerationFailed) {
		s.logger.Warn("generation failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "generation_failed", "answer generation failed")
		return
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

func responseToDTO(resp domain.Response) askResponse {
	subs := make([]subQueryDTO, len(resp.SubQueries))
	for i, sq := range resp.SubQueries {
		subs[i] = subQueryDTO{Text: sq.Text, Origin: sq.Origin, Temporal: sq.Temporal}
	}
	verdicts := make([]verdictDTO, len(resp.Verdicts))
	for i, v := range resp.Verdicts {
		verdicts[i] = verdictDTO{
			SubQuery:   v.SubQuery.Text,
			Sufficient: v.Sufficient,
			Confidence: v.Confidence,
			Reason:     string(v.Reason),
		}
	}

	return askResponse{
		Answer:              resp.Answer,
		SubQueries:          subs,
		Verdicts:            verdicts,
		InternalResultCount: resp.InternalResultCount,
		ExternalResultCount: resp.ExternalResultCount,
		CacheHit:            resp.CacheHit,
		Degraded:            resp.Degraded,
		NoEvidence:          resp.NoEvidence,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}
