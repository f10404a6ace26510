package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ageing"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/fifo"
	"stockledger/internal/domain/ledger"
	"stockledger/pkg/logger"
)

var tracer = otel.Tracer("stockledger/reports")

// DefaultAgeRanges is used when neither the request nor the service
// configuration names boundaries.
var DefaultAgeRanges = []int{30, 60, 90, 120}

// Options tunes a Service. The zero value is usable.
type Options struct {
	// TxManager, when set, wraps every run in a read-only transaction so the
	// source yields one consistent snapshot.
	TxManager tx.ReadOnlyManager

	DefaultAgeRanges []int

	// MaxEvents aborts a run that streams more events. Zero means unlimited.
	MaxEvents int
}

// Service provides report generation operations.
type Service struct {
	source    EventSource
	snapshots SnapshotStore
	opts      Options
}

// NewService creates a new reports service. snapshots may be nil.
func NewService(source EventSource, snapshots SnapshotStore, opts Options) *Service {
	if opts.DefaultAgeRanges == nil {
		opts.DefaultAgeRanges = DefaultAgeRanges
	}
	return &Service{source: source, snapshots: snapshots, opts: opts}
}

// GetStockAgeing builds FIFO layers at the cutoff and buckets them by age.
// Item-level groupings are computed per warehouse and folded afterwards.
func (s *Service) GetStockAgeing(ctx context.Context, cfg Config, filter Filter) (*AgeingReport, error) {
	cfg.applyDefaults(s.opts.DefaultAgeRanges)
	if err := validateAgeing(&cfg); err != nil {
		return nil, err
	}

	report := &AgeingReport{
		CutoffDate:  types.Day(cfg.CutoffDate),
		Granularity: cfg.Granularity,
		TotalValue:  types.Zero(),
	}

	err := s.run(ctx, "stock_ageing", func(ctx context.Context) error {
		report.RunID = appctx.GetRun(ctx).RunID

		engine := fifo.NewEngine(cfg.Granularity.WarehouseWise(), cfg.CutoffDate)
		n, err := s.stream(ctx, s.ledgerFilter(filter, time.Time{}, cfg.CutoffDate), engine.Apply)
		if err != nil {
			return err
		}
		report.Events = n

		results := engine.Results()
		logger.Debug(ctx, "fifo run finished", "keys", len(results), "stats", engine.Stats().String())
		if !cfg.Granularity.IncludesWarehouse() {
			results = fifo.Aggregate(results)
		}

		for _, key := range fifo.SortedKeys(results) {
			q := results[key]
			h, err := ageing.Bucketize(q.Layers, cfg.CutoffDate, cfg.AgeRanges)
			if errors.Is(err, ageing.ErrEmptyRangeConfiguration) {
				if len(report.Warnings) == 0 {
					logger.Warn(ctx, "no age ranges configured, using a single range")
					report.Warnings = append(report.Warnings, err.Error())
				}
			} else if err != nil {
				return err
			}

			if cfg.ExcludeZero && q.TotalQty().IsZero() {
				continue
			}

			row := AgeingRow{
				GroupKey:         key,
				TotalQty:         q.TotalQty(),
				TotalValue:       q.TotalValue(),
				AverageAge:       h.AverageAge,
				EarliestAge:      h.EarliestAge,
				LatestAge:        h.LatestAge,
				Ranges:           h.Ranges,
				NegativeLayers:   q.NegativeLayers(),
				HasDiscreteUnits: q.HasDiscreteUnits,
			}
			report.Rows = append(report.Rows, row)
			report.TotalQty += row.TotalQty
			report.TotalValue = report.TotalValue.Add(row.TotalValue)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// GetStockBalance returns opening/in/out/closing balances per key per period.
func (s *Service) GetStockBalance(ctx context.Context, cfg Config, filter Filter) (*BalanceReport, error) {
	cfg.applyDefaults(s.opts.DefaultAgeRanges)
	if err := validateBalance(&cfg); err != nil {
		return nil, err
	}
	periods, err := balance.SplitPeriods(cfg.PeriodStart, cfg.PeriodEnd, cfg.Periodicity)
	if err != nil {
		return nil, err
	}

	report := &BalanceReport{
		PeriodStart: types.Day(cfg.PeriodStart),
		PeriodEnd:   types.Day(cfg.PeriodEnd),
		Periodicity: cfg.Periodicity,
		Granularity: cfg.Granularity,
		Periods:     periods,
	}

	err = s.run(ctx, "stock_balance", func(ctx context.Context) error {
		report.RunID = appctx.GetRun(ctx).RunID

		var baseline *balance.Baseline
		if !cfg.IgnoreBaseline && s.snapshots != nil {
			b, err := s.snapshots.LatestBefore(ctx, report.PeriodStart)
			if err != nil {
				return fmt.Errorf("load closing snapshot: %w", err)
			}
			if b != nil {
				baseline = filterBaseline(b, filter)
				asOf := b.AsOf
				report.BaselineAsOf = &asOf
				logger.Debug(ctx, "using closing snapshot as opening balance", "as_of", asOf, "entries", len(baseline.Entries))
			}
		}

		var from time.Time
		if baseline != nil {
			from = types.Day(baseline.AsOf).AddDate(0, 0, 1)
		}

		set := balance.NewPeriodSet(periods, cfg.Granularity, baseline)
		n, err := s.stream(ctx, s.ledgerFilter(filter, from, cfg.PeriodEnd), set.Apply)
		if err != nil {
			return err
		}
		report.Events = n

		for _, row := range set.Results() {
			if cfg.ExcludeZero && row.IsZero() {
				continue
			}
			if !cfg.IncludeValue {
				stripValues(row)
			}
			report.Rows = append(report.Rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// CrossCheck evaluates the reconciliation identity at the cutoff: for every
// key, the closing ledger quantity equals the quantity left in FIFO layers.
// Both sides run concurrently over the same materialised stream.
func (s *Service) CrossCheck(ctx context.Context, cfg Config, filter Filter) (*CrossCheckReport, error) {
	cfg.applyDefaults(s.opts.DefaultAgeRanges)
	if err := validateConfig(&cfg, crossCheckFields); err != nil {
		return nil, err
	}

	report := &CrossCheckReport{
		CutoffDate:  types.Day(cfg.CutoffDate),
		Granularity: cfg.Granularity,
	}

	err := s.run(ctx, "stock_reconciliation", func(ctx context.Context) error {
		report.RunID = appctx.GetRun(ctx).RunID

		var events []ledger.MovementEvent
		n, err := s.stream(ctx, s.ledgerFilter(filter, time.Time{}, cfg.CutoffDate), func(ev ledger.MovementEvent) error {
			events = append(events, ev)
			return nil
		})
		if err != nil {
			return err
		}
		report.Events = n

		var (
			queues  map[ledger.GroupKey]*fifo.QueueResult
			pending []fifo.TransferBucket
			rows    map[ledger.GroupKey]*balance.PeriodBalance
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			engine := fifo.NewEngine(cfg.Granularity.WarehouseWise(), cfg.CutoffDate)
			for i := range events {
				if i%1024 == 0 && gctx.Err() != nil {
					return gctx.Err()
				}
				if err := engine.Apply(events[i]); err != nil {
					return err
				}
			}
			queues, pending = engine.Results(), engine.PendingTransfers()
			if !cfg.Granularity.IncludesWarehouse() {
				queues = fifo.Aggregate(queues)
			}
			return nil
		})
		g.Go(func() error {
			var err error
			rows, err = balance.Reconcile(events, time.Time{}, cfg.CutoffDate, cfg.Granularity, nil)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		report.Rows = compare(queues, rows, pending, cfg.Granularity)
		for _, row := range report.Rows {
			if !row.Matched {
				report.Mismatches++
				logger.Error(ctx, "reconciliation identity violated",
					"key", row.GroupKey.String(),
					"ledger_qty", row.LedgerQty.String(),
					"layer_qty", row.LayerQty.String())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// BuildSnapshot computes closing balances at asOf at the finest granularity,
// seeded by the latest earlier snapshot when one exists.
func (s *Service) BuildSnapshot(ctx context.Context, asOf time.Time) (*balance.Baseline, error) {
	asOf = types.Day(asOf)
	snapshot := &balance.Baseline{AsOf: asOf, Entries: make(map[ledger.GroupKey]balance.BaselineEntry)}

	err := s.run(ctx, "closing_snapshot", func(ctx context.Context) error {
		var prev *balance.Baseline
		if s.snapshots != nil {
			var err error
			if prev, err = s.snapshots.LatestBefore(ctx, asOf); err != nil {
				return fmt.Errorf("load previous snapshot: %w", err)
			}
		}

		var from time.Time
		if prev != nil {
			from = types.Day(prev.AsOf).AddDate(0, 0, 1)
		}
		r := balance.NewReconciler(asOf, asOf, ledger.GranularityItemWarehouseLot, prev)
		if _, err := s.stream(ctx, ledger.Filter{FromDate: from, ToDate: asOf}, r.Apply); err != nil {
			return err
		}

		for key, row := range r.Results() {
			if row.ClosingQty.IsZero() && row.ClosingVal.IsZero() {
				continue
			}
			snapshot.Entries[key] = balance.BaselineEntry{Qty: row.ClosingQty, Value: row.ClosingVal}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// run gives one report execution its run id, span and optional snapshot transaction.
func (s *Service) run(ctx context.Context, report string, fn func(ctx context.Context) error) (err error) {
	runID := id.NewRunID()
	ctx = appctx.WithRun(ctx, &appctx.RunInfo{RunID: runID, Report: report})
	ctx, span := tracer.Start(ctx, "reports."+report,
		trace.WithAttributes(attribute.String("run.id", runID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	started := time.Now()
	if s.opts.TxManager != nil {
		err = s.opts.TxManager.ReadOnly(ctx, fn)
	} else {
		err = fn(ctx)
	}

	if err != nil {
		if apperror.IsInconsistentReconciliation(err) {
			appErr, _ := apperror.AsAppError(err)
			logger.Error(ctx, "inconsistent stock reconciliation", "details", appErr.Details)
		} else {
			logger.Warn(ctx, "report run failed", "error", err)
		}
		return err
	}
	logger.Info(ctx, "report run finished", "duration", time.Since(started))
	return nil
}

// stream feeds the source into fn, enforcing the event limit.
func (s *Service) stream(ctx context.Context, filter ledger.Filter, fn func(ev ledger.MovementEvent) error) (int, error) {
	n := 0
	err := s.source.Stream(ctx, filter, func(ev ledger.MovementEvent) error {
		n++
		if s.opts.MaxEvents > 0 && n > s.opts.MaxEvents {
			return apperror.NewBusinessRule(apperror.CodeTooManyEvents,
				fmt.Sprintf("report exceeds the limit of %d movement events; narrow the filter", s.opts.MaxEvents))
		}
		return fn(ev)
	})
	return n, err
}

func (s *Service) ledgerFilter(f Filter, from, to time.Time) ledger.Filter {
	return ledger.Filter{
		ItemIDs:      f.ItemIDs,
		WarehouseIDs: f.WarehouseIDs,
		FromDate:     from,
		ToDate:       to,
	}
}

func compare(queues map[ledger.GroupKey]*fifo.QueueResult, rows map[ledger.GroupKey]*balance.PeriodBalance,
	pending []fifo.TransferBucket, g ledger.Granularity) []CrossCheckRow {
	parked := make(map[ledger.GroupKey]types.Quantity)
	for _, b := range pending {
		parked[b.Key.Project(g)] += b.Qty()
	}

	keys := make(map[ledger.GroupKey]struct{}, len(rows))
	for k := range queues {
		keys[k] = struct{}{}
	}
	for k := range rows {
		keys[k] = struct{}{}
	}

	out := make([]CrossCheckRow, 0, len(keys))
	for k := range keys {
		row := CrossCheckRow{
			GroupKey:           k,
			LedgerValue:        types.Zero(),
			LayerValue:         types.Zero(),
			PendingTransferQty: parked[k],
		}
		if q, ok := queues[k]; ok {
			row.LayerQty, row.LayerValue = q.TotalQty(), q.TotalValue()
		}
		if b, ok := rows[k]; ok {
			row.LedgerQty, row.LedgerValue = b.ClosingQty, b.ClosingVal
		}
		row.Matched = row.LayerQty == row.LedgerQty
		out = append(out, row)
	}
	sortCrossCheck(out)
	return out
}

func filterBaseline(b *balance.Baseline, f Filter) *balance.Baseline {
	if len(f.ItemIDs) == 0 && len(f.WarehouseIDs) == 0 {
		return b
	}
	items, warehouses := toSet(f.ItemIDs), toSet(f.WarehouseIDs)
	out := &balance.Baseline{AsOf: b.AsOf, Entries: make(map[ledger.GroupKey]balance.BaselineEntry)}
	for k, e := range b.Entries {
		if items != nil && !items[k.ItemID] {
			continue
		}
		if warehouses != nil && !warehouses[k.WarehouseID] {
			continue
		}
		out.Entries[k] = e
	}
	return out
}

func stripValues(row *balance.PeriodBalance) {
	zero := types.Zero()
	row.OpeningVal, row.InVal, row.OutVal, row.ClosingVal = zero, zero, zero, zero
}
