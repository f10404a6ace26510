// Package main is the entry point for the closing snapshot builder.
// It periodically computes closing balances and stores them so report runs
// can start from the latest snapshot instead of the beginning of the ledger.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockledger/internal/config"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
	"stockledger/internal/infrastructure/storage/postgres/snapshot_repo"
	"stockledger/pkg/logger"
)

func main() {
	once := flag.Bool("once", false, "build a single snapshot and exit")
	date := flag.String("date", "", "snapshot date (YYYY-MM-DD), implies -once")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:         cfg.LogLevel,
		Development:   !cfg.IsProduction(),
		Encoding:      cfg.LogFormat,
		InitialFields: map[string]any{"service": "stockledger-snapshot"},
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.ApplicationName = "stockledger-snapshot"
	poolCfg.MaxConns = 2
	poolCfg.MinConns = 1
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	codec, err := snapshot_repo.NewCodec(cfg.SnapshotCompressBytes)
	if err != nil {
		log.Fatalw("failed to create snapshot codec", "error", err)
	}
	defer codec.Close()

	// Snapshots are long scans; they get no statement timeout.
	txm := postgres.NewTxManager(pool, 0)
	repo := snapshot_repo.NewSnapshotRepo(txm, codec)
	service := reports.NewService(ledger_repo.NewEventRepo(txm), repo, reports.Options{
		TxManager: txm,
	})

	b := &builder{service: service, store: repo, log: log.WithComponent("snapshot")}

	if *date != "" {
		asOf, err := time.Parse(time.DateOnly, *date)
		if err != nil {
			log.Fatalw("invalid -date", "date", *date, "error", err)
		}
		if err := b.build(ctx, asOf); err != nil {
			os.Exit(1)
		}
		return
	}

	if *once {
		if err := b.build(ctx, b.target(time.Now(), cfg.SnapshotLag)); err != nil {
			os.Exit(1)
		}
		return
	}

	b.run(ctx, cfg.SnapshotInterval, cfg.SnapshotLag)
	log.Info("snapshot builder stopped")
}

// builder computes and stores closing snapshots.
type builder struct {
	service *reports.Service
	store   reports.SnapshotStore
	log     *logger.Logger
}

// run builds a snapshot immediately and then on every tick until ctx is done.
func (b *builder) run(ctx context.Context, interval time.Duration, lag int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.log.Infow("snapshot builder started", "interval", interval, "lag_days", lag)
	_ = b.build(ctx, b.target(time.Now(), lag))

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			_ = b.build(ctx, b.target(now, lag))
		}
	}
}

// target is the closing date lag days before now.
func (b *builder) target(now time.Time, lag int) time.Time {
	return types.Day(now).AddDate(0, 0, -lag)
}

func (b *builder) build(ctx context.Context, asOf time.Time) error {
	start := time.Now()

	snapshot, err := b.service.BuildSnapshot(ctx, asOf)
	if err != nil {
		b.log.Errorw("failed to build snapshot", "as_of", asOf.Format(time.DateOnly), "error", err)
		return err
	}
	if err := b.store.Save(ctx, snapshot); err != nil {
		b.log.Errorw("failed to save snapshot", "as_of", asOf.Format(time.DateOnly), "error", err)
		return err
	}

	b.log.Infow("snapshot stored",
		"as_of", asOf.Format(time.DateOnly),
		"entries", len(snapshot.Entries),
		"duration", time.Since(start),
	)
	return nil
}
