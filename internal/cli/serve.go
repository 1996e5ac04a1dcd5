package cli

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
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loupe-data/loupe/internal/config"
	"github.com/loupe-data/loupe/internal/db"
	dbRedis "github.com/loupe-data/loupe/internal/db/redis"
	"github.com/loupe-data/loupe/internal/domain"
	logpkg "github.com/loupe-data/loupe/internal/logger"
	"github.com/loupe-data/loupe/internal/metrics"
	"github.com/loupe-data/loupe/internal/repository/concepts"
	"github.com/loupe-data/loupe/internal/repository/dataset"
	"github.com/loupe-data/loupe/internal/repository/embcache"
	"github.com/loupe-data/loupe/internal/repository/embindex"
	"github.com/loupe-data/loupe/internal/repository/rowsource"
	"github.com/loupe-data/loupe/internal/repository/stats"
	chiTransport "github.com/loupe-data/loupe/internal/transport/chi"
	openaiEmb "github.com/loupe-data/loupe/internal/transport/openai"
	conceptuc "github.com/loupe-data/loupe/internal/usecase/conceptmgr"
	embedindexuc "github.com/loupe-data/loupe/internal/usecase/embedindex"
	groupsuc "github.com/loupe-data/loupe/internal/usecase/groups"
	healthuc "github.com/loupe-data/loupe/internal/usecase/health"
	rowsuc "github.com/loupe-data/loupe/internal/usecase/rows"
	signalsuc "github.com/loupe-data/loupe/internal/usecase/signals"
	"github.com/loupe-data/loupe/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting loupe API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Int("datasets", len(cfg.Datasets)),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterQueryMetrics()

	ctx := context.Background()

	// The cache store is optional; without it embeddings are recomputed
	// on every index build.
	var store db.Store
	if len(cfg.Database.Addrs) > 0 {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			return fmt.Errorf("create cache store: %w", err)
		}
		defer store.Close()

		readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(ctx, readiness); err != nil {
			return fmt.Errorf("cache store not ready: %w", err)
		}
		logger.Info("Connected to cache store", zap.Strings("addrs", cfg.Database.Addrs))
	}

	embedder := buildEmbedder(cfg, store, logger)

	registry := dataset.NewRegistry()
	for _, dc := range cfg.Datasets {
		ds, err := loadDataset(dc)
		if err != nil {
			return fmt.Errorf("load dataset %q: %w", dc.Name, err)
		}
		if err := registry.Add(ds); err != nil {
			return fmt.Errorf("register dataset %q: %w", dc.Name, err)
		}
		logger.Info("Dataset loaded",
			zap.String("dataset", dc.Name),
			zap.String("source", dc.Source),
			zap.Int("rows", ds.NumRows()))
	}

	statsProvider := stats.NewProvider()

	signalSvc := signalsuc.New(registry, signalsuc.NewRegistry(), statsProvider, logger).
		WithWorkers(cfg.Engine.Workers)
	groupSvc := groupsuc.New(registry, statsProvider, logger).
		WithAutoBins(cfg.Engine.AutoBinCount).
		WithDistinctCeiling(cfg.Engine.GroupDistinctCeiling)

	indexStore := embindex.NewStore()
	conceptStore := concepts.NewStore()
	rowSvc := rowsuc.New(registry, indexStore, conceptStore, embedder, logger).
		WithWorkers(cfg.Engine.Workers)
	indexSvc := embedindexuc.New(registry, indexStore, embedder, cfg.Embedding.Namespace, logger).
		WithBatchSize(cfg.Engine.EmbedBatchSize)
	conceptSvc := conceptuc.New(conceptStore, cfg.Embedding.Namespace, logger)

	// Pass nil interfaces (not typed nil pointers) for absent components.
	var dbPinger healthuc.DBPinger
	if store != nil {
		dbPinger = store
	}
	var embChecker healthuc.EmbeddingChecker
	if embedder != nil {
		embChecker = &embeddingHealthChecker{embedder: embedder}
	}
	healthSvc := healthuc.New(dbPinger, embChecker, registry)

	server := chiTransport.NewServer(
		registry, rowSvc, groupSvc, signalSvc, indexSvc, conceptSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.RegisterRoutes(r)

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

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-quit:
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// loadDataset opens the configured source. Parquet derives the schema
// from the file; sqlite takes the declared one.
func loadDataset(dc config.DatasetConfig) (*dataset.Dataset, error) {
	switch dc.Source {
	case "parquet":
		src, err := rowsource.OpenParquet(dc.Path)
		if err != nil {
			return nil, err
		}
		return dataset.New(dc.Name, src, src.Schema()), nil
	case "sqlite":
		src, err := rowsource.OpenSQLite(dc.Path, dc.Table, dc.Column)
		if err != nil {
			return nil, err
		}
		sch, err := dc.ToSchema()
		if err != nil {
			return nil, err
		}
		return dataset.New(dc.Name, src, sch), nil
	default:
		return nil, fmt.Errorf("unknown source %q", dc.Source)
	}
}

// buildEmbedder assembles the embedder chain: OpenAI provider wrapped
// in the KV cache when a store is configured. Returns nil when no
// provider is configured; semantic features then need prebuilt models.
func buildEmbedder(cfg config.Config, store db.Store, logger *zap.Logger) domain.Embedder {
	if cfg.Embedding.APIKey == "" {
		logger.Warn("No embedding provider configured; semantic and concept training disabled")
		return nil
	}

	var embedder domain.Embedder = openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	})
	if store != nil {
		embedder = embcache.New(embedder, store, metrics.EmbeddingCacheTotal, logger)
	}
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.String("namespace", cfg.Embedding.Namespace),
		zap.Bool("cached", store != nil))
	return embedder
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
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
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

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
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
