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
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/questor-ai/questor/internal/chunk"
	"github.com/questor-ai/questor/internal/config"
	dbRedis "github.com/questor-ai/questor/internal/db/redis"
	"github.com/questor-ai/questor/internal/domain"
	"github.com/questor-ai/questor/internal/extract"
	logpkg "github.com/questor-ai/questor/internal/logger"
	"github.com/questor-ai/questor/internal/metrics"
	"github.com/questor-ai/questor/internal/repository/embcache"
	"github.com/questor-ai/questor/internal/repository/templates"
	"github.com/questor-ai/questor/internal/retry"
	chiTransport "github.com/questor-ai/questor/internal/transport/chi"
	openaiTransport "github.com/questor-ai/questor/internal/transport/openai"
	agentuc "github.com/questor-ai/questor/internal/usecase/agent"
	ingestuc "github.com/questor-ai/questor/internal/usecase/ingest"
	retrievaluc "github.com/questor-ai/questor/internal/usecase/retrieval"
	routeruc "github.com/questor-ai/questor/internal/usecase/router"
	"github.com/questor-ai/questor/internal/version"
)

func main() {
	// .env is optional; real deployments set variables directly.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting questor API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterCompletionMetrics()

	ctx := context.Background()

	// Optional embedding cache store
	var store *dbRedis.Store
	if cfg.Cache.Enabled {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Username: cfg.Cache.Username,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer store.Close()

		readiness := time.Duration(cfg.Cache.ReadinessTimeoutSec) * time.Second
		if err := store.WaitForReady(ctx, readiness); err != nil {
			logger.Fatal("Cache store not ready", zap.Error(err))
		}
		logger.Info("Connected to cache store", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	// Embedder chain: OpenAI (retry built in) -> cache
	var embedder domain.Embedder = openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   "openai",
		Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		Retry: retry.Policy{
			MaxAttempts:  cfg.Embedding.Retry.MaxAttempts,
			InitialDelay: time.Duration(cfg.Embedding.Retry.InitialDelaySec) * time.Second,
			Multiplier:   cfg.Embedding.Retry.Multiplier,
			MaxDelay:     time.Duration(cfg.Embedding.Retry.MaxDelaySec) * time.Second,
			Jitter:       true,
		},
		Logger: logger,
	})
	if store != nil {
		embedder = embcache.New(embedder, store, metrics.EmbeddingCacheTotal, logger)
	}
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	completer := openaiTransport.NewCompleter(&openaiTransport.CompleterConfig{
		APIKey:   cfg.Completion.APIKey,
		BaseURL:  cfg.Completion.BaseURL,
		Model:    cfg.Completion.Model,
		Provider: "openai",
		Timeout:  time.Duration(cfg.Completion.TimeoutSec) * time.Second,
		Logger:   logger,
	})

	// Ingestion and retrieval over per-agent knowledge directories
	splitter := chunk.NewSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	ingestSvc := ingestuc.New(embedder, extract.New(), splitter, ingestuc.Config{
		BatchSize:      cfg.Ingest.BatchSize,
		BatchPause:     time.Duration(cfg.Ingest.BatchPauseMS) * time.Millisecond,
		LockRetryDelay: time.Duration(cfg.Ingest.LockRetryMS) * time.Millisecond,
	}, logger)
	retrievalSvc := retrievaluc.New(embedder, ingestSvc, logger)

	// Agent registry from the template store
	templateStore, err := templates.New(cfg.Agents.TemplatesDir, logger)
	if err != nil {
		logger.Fatal("Failed to open template store", zap.Error(err))
	}
	registry := agentuc.NewRegistry()
	factory := agentuc.NewFactory(completer, retrievalSvc, logger).
		WithRetrievalDefaults(cfg.Retrieval.TopK, cfg.Retrieval.ScoreThreshold)
	manager := agentuc.NewManager(registry, templateStore, factory, logger)
	if err := manager.LoadAll(); err != nil {
		logger.Fatal("Failed to load agents", zap.Error(err))
	}

	routerSvc := routeruc.New(routeruc.WrapRegistry(registry), cfg.Router.MaxRounds, logger)

	var pinger chiTransport.Pinger
	if store != nil {
		pinger = store
	}
	server := chiTransport.NewServer(routerSvc, manager, ingestSvc, pinger, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Mount(r)

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

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
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
