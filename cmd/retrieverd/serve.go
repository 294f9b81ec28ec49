package main

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrieverd/internal/answerer"
	"github.com/fyrsmithlabs/retrieverd/internal/config"
	"github.com/fyrsmithlabs/retrieverd/internal/embeddings"
	"github.com/fyrsmithlabs/retrieverd/internal/http"
	"github.com/fyrsmithlabs/retrieverd/internal/logging"
	"github.com/fyrsmithlabs/retrieverd/internal/orchestrator"
	"github.com/fyrsmithlabs/retrieverd/internal/semcache"
	"github.com/fyrsmithlabs/retrieverd/internal/telemetry"
	"github.com/fyrsmithlabs/retrieverd/internal/vectorstore"
)

// run starts the daemon and blocks until a shutdown signal arrives.
//
// Initialization order: configuration, telemetry, logging, embedding
// gateway, vector store, semantic cache, answer generator, orchestrator,
// HTTP server. Shutdown happens in reverse.
func run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "telemetry shutdown: %v\n", err)
		}
	}()

	logger, err := logging.New(cfg.Logging, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("starting retrieverd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("store_path", cfg.Store.Path),
		zap.Bool("telemetry", cfg.Telemetry.Enabled),
	)

	embedder, err := embeddings.NewFromConfig(cfg.Embedding, logger)
	if err != nil {
		return fmt.Errorf("initializing embedder: %w", err)
	}

	store, err := vectorstore.NewManager(vectorstore.Config{Root: cfg.Store.Path}, embedder, logger)
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}

	cache, err := semcache.New(semcache.Config{
		TTL:                 cfg.Cache.TTL.Duration(),
		SimilarityThreshold: cfg.Cache.SimilarityThreshold,
		MaxEntriesPerTenant: cfg.Cache.MaxEntriesPerTenant,
	}, embedder, logger)
	if err != nil {
		return fmt.Errorf("initializing semantic cache: %w", err)
	}

	generator, err := answerer.NewOpenAIService(cfg.Generation, logger)
	if err != nil {
		return fmt.Errorf("initializing answer generator: %w", err)
	}

	pool, err := orchestrator.NewPool(cfg.Query.Workers)
	if err != nil {
		return fmt.Errorf("initializing worker pool: %w", err)
	}

	pipeline, err := orchestrator.New(orchestrator.Config{
		Timeout:     cfg.Query.Timeout.Duration(),
		DefaultTopK: cfg.Query.DefaultTopK,
	}, store, generator, cache, pool, logger)
	if err != nil {
		return fmt.Errorf("initializing orchestrator: %w", err)
	}

	pooledStore, err := orchestrator.NewPooledStore(store, pool)
	if err != nil {
		return fmt.Errorf("initializing pooled store: %w", err)
	}

	srv, err := http.NewServer(cfg.Server, pooledStore, pipeline, cache, logger)
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
