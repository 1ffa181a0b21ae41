package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/orbisforge/integrity-engine/pkg/config"
	"github.com/orbisforge/integrity-engine/pkg/database"
	"github.com/orbisforge/integrity-engine/pkg/handlers"
	"github.com/orbisforge/integrity-engine/pkg/llm"
	"github.com/orbisforge/integrity-engine/pkg/logging"
	"github.com/orbisforge/integrity-engine/pkg/middleware"
	"github.com/orbisforge/integrity-engine/pkg/repositories"
	"github.com/orbisforge/integrity-engine/pkg/retry"
	"github.com/orbisforge/integrity-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Database),
		zap.Bool("embeddings", cfg.Embeddings.IsAvailable()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := retry.DoWithResult(ctx, nil, func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.ConnectionString(),
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	if err := database.RunMigrations(sqlDB, cfg.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn("Failed to close migration connection", zap.Error(err))
	}

	anchors, err := services.NewAnchorRegistry(cfg.AnchorsPath, logger)
	if err != nil {
		logger.Fatal("Failed to load anchor registry", zap.Error(err))
	}
	go func() {
		if err := anchors.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("Anchor registry watcher stopped", zap.Error(err))
		}
	}()

	var embedClient llm.EmbeddingClient
	if cfg.Embeddings.IsAvailable() {
		client, err := llm.NewClient(&llm.Config{
			Endpoint: cfg.Embeddings.Endpoint,
			Model:    cfg.Embeddings.Model,
			APIKey:   cfg.Embeddings.APIKey,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create embeddings client", zap.Error(err))
		}
		embedClient = client
	} else {
		logger.Warn("No embeddings endpoint configured; semantic suggestions disabled")
	}

	logRepo := repositories.NewGovernanceLogRepository(db)
	search := services.NewSemanticSearchService(logRepo, embedClient, cfg.Embeddings.Timeout(), logger)
	suggestions := services.NewSuggestionGenerator(search, logRepo, anchors, cfg.Integrity, logger)
	integrity := services.NewIntegrityService(logRepo, suggestions, anchors, cfg.Integrity, logger)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(cfg, logger)
	healthHandler.RegisterRoutes(mux)

	integrityHandler := handlers.NewIntegrityHandler(integrity, logger)
	integrityHandler.RegisterRoutes(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting integrity-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}
