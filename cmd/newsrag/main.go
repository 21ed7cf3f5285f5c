package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mirae-cloud/newsrag/internal/config"
	logpkg "github.com/mirae-cloud/newsrag/internal/logger"
	"github.com/mirae-cloud/newsrag/internal/metrics"
	"github.com/mirae-cloud/newsrag/internal/repository/store"
	chiTransport "github.com/mirae-cloud/newsrag/internal/transport/chi"
	"github.com/mirae-cloud/newsrag/internal/transport/duckduckgo"
	"github.com/mirae-cloud/newsrag/internal/transport/naver"
	openaiTransport "github.com/mirae-cloud/newsrag/internal/transport/openai"
	"github.com/mirae-cloud/newsrag/internal/usecase/analyze"
	"github.com/mirae-cloud/newsrag/internal/usecase/cache"
	"github.com/mirae-cloud/newsrag/internal/usecase/contextbuild"
	"github.com/mirae-cloud/newsrag/internal/usecase/gate"
	"github.com/mirae-cloud/newsrag/internal/usecase/pipeline"
	"github.com/mirae-cloud/newsrag/internal/usecase/retrieval"
	"github.com/mirae-cloud/newsrag/internal/usecase/websearch"
	"github.com/mirae-cloud/newsrag/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting newsrag API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.Strings("providers", cfg.WebSearch.Providers),
	)

	st, err := store.New(store.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
		Index:    cfg.Database.Index,
	})
	if err != nil {
		logger.Fatal("Failed to create document store", zap.Error(err))
	}
	defer st.Close()

	// The pipeline serves external-only while the store is down, so an
	// unreachable store degrades startup instead of failing it.
	ctx := context.Background()
	readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
	if err := st.WaitForReady(ctx, readiness); err != nil {
		logger.Warn("Document store not ready, starting degraded", zap.Error(err))
	} else {
		logger.Info("Connected to document store")
	}

	metrics.RegisterPipelineMetrics()

	llm := openaiTransport.NewClient(openaiTransport.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		ChatModel:      cfg.LLM.ChatModel,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
	})

	providers := buildProviders(cfg, logger)

	webSvc, err := websearch.New(providers, websearch.Config{
		TopK:            cfg.WebSearch.TopK,
		ProviderTimeout: cfg.WebSearch.ProviderTimeout(),
		Workers:         cfg.WebSearch.Workers,
		RecallMode:      cfg.WebSearch.RecallMode,
		RecencyWindow:   cfg.WebSearch.RecencyWindow(),
		RecencyBoost:    cfg.WebSearch.RecencyBoost,
	})
	if err != nil {
		logger.Fatal("Failed to create web search service", zap.Error(err))
	}
	defer webSvc.Close()

	answerCache, err := cache.New(cfg.Cache.Capacity, cfg.Cache.TTL())
	if err != nil {
		logger.Fatal("Failed to create answer cache", zap.Error(err))
	}

	pipelineSvc := pipeline.New(pipeline.Deps{
		Analyzer: analyze.New(llm, cfg.LLM.MaxSubQueries),
		Retriever: retrieval.New(st, llm, retrieval.Config{
			TopK: cfg.Retrieval.TopK,
			TopN: cfg.Retrieval.TopN,
			RRFK: cfg.Retrieval.RRFK,
		}),
		Gate: gate.New(gate.Config{
			Threshold:  cfg.Gate.Threshold,
			Floor:      cfg.Gate.Floor,
			MinResults: cfg.Gate.MinResults,
		}),
		WebSearch: webSvc,
		Builder:   contextbuild.New(cfg.Context.CharBudget),
		Generator: llm,
		Verifier:  llm,
		Cache:     answerCache,
	}, pipeline.Config{
		CacheTTL:      cfg.Cache.TTL(),
		VerifyAnswers: cfg.LLM.VerifyAnswers,
	})

	server := chiTransport.NewServer(pipelineSvc, st, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	r.Mount("/", server.Routes())

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildProviders assembles the fallback chain in configured priority order.
func buildProviders(cfg config.Config, logger *zap.Logger) []websearch.Provider {
	httpClient := &http.Client{Timeout: cfg.WebSearch.ProviderTimeout()}

	var providers []websearch.Provider
	for _, name := range cfg.WebSearch.Providers {
		switch name {
		case "naver":
			if cfg.WebSearch.Naver.ClientID == "" {
				logger.Warn("Naver credentials missing, provider skipped")
				continue
			}
			providers = append(providers, naver.New(
				httpClient, cfg.WebSearch.Naver.ClientID, cfg.WebSearch.Naver.ClientSecret,
			))
		case "duckduckgo":
			providers = append(providers, duckduckgo.New(httpClient))
		}
	}
	return providers
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
