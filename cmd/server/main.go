// Package main is the entry point for the stockledger API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"stockledger/internal/config"
	"stockledger/internal/domain/reports"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
	"stockledger/internal/infrastructure/storage/postgres/snapshot_repo"
	"stockledger/pkg/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:         cfg.LogLevel,
		Development:   !cfg.IsProduction(),
		Encoding:      cfg.LogFormat,
		InitialFields: map[string]any{"service": "stockledger-api", "version": version},
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	log.Infow("starting stockledger server", "env", cfg.AppEnv, "addr", cfg.Addr())

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.ApplicationName = "stockledger-api"
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	pool.LogStats(ctx)

	txm := postgres.NewTxManager(pool, cfg.DBStatementMax)

	codec, err := snapshot_repo.NewCodec(cfg.SnapshotCompressBytes)
	if err != nil {
		log.Fatalw("failed to create snapshot codec", "error", err)
	}
	defer codec.Close()

	service := reports.NewService(
		ledger_repo.NewEventRepo(txm),
		snapshot_repo.NewSnapshotRepo(txm, codec),
		reports.Options{
			TxManager:        txm,
			DefaultAgeRanges: cfg.ReportDefaultAgeRanges,
			MaxEvents:        cfg.ReportMaxEvents,
		},
	)

	router := v1.NewRouter(v1.RouterConfig{
		DB:      pool,
		Reports: service,
		Logger:  log,
		Version: version,
		Debug:   !cfg.IsProduction(),
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}

	go func() {
		log.Infow("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
