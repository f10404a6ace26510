package balance

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/fifo"
	"stockledger/internal/domain/ledger"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func qty(n int64) types.Quantity { return types.NewQuantity(n) }

func move(voucher, date string, q int64, value string) ledger.MovementEvent {
	return ledger.MovementEvent{
		ItemID:      "ITEM-A",
		WarehouseID: "Stores",
		VoucherID:   voucher,
		OccurredAt:  day(date),
		SignedQty:   qty(q),
		ValueDelta:  types.MustMoney(value),
	}
}

func reconcile(voucher, date string, stated int64) ledger.MovementEvent {
	s := qty(stated)
	ev := move(voucher, date, 0, "0")
	ev.IsReconciliation = true
	ev.StatedBalanceAfter = &s
	return ev
}

var keyA = ledger.GroupKey{ItemID: "ITEM-A", WarehouseID: "Stores"}

func TestClassification(t *testing.T) {
	rows, err := Reconcile([]ledger.MovementEvent{
		move("PR-1", "2024-01-10", 100, "1000"),
		move("DN-1", "2024-01-20", -30, "-300"),
		move("PR-2", "2024-02-05", 50, "600"),
		move("DN-2", "2024-02-15", -70, "-740"),
		move("PR-3", "2024-03-02", 999, "9990"),
	}, day("2024-02-01"), day("2024-02-29"), ledger.GranularityItemWarehouse, nil)
	require.NoError(t, err)

	row := rows[keyA]
	require.NotNil(t, row)
	assert.Equal(t, qty(70), row.OpeningQty)
	assert.True(t, types.MustMoney("700").Equal(row.OpeningVal))
	assert.Equal(t, qty(50), row.InQty)
	assert.True(t, types.MustMoney("600").Equal(row.InVal))
	assert.Equal(t, qty(70), row.OutQty)
	assert.True(t, types.MustMoney("740").Equal(row.OutVal))
	assert.Equal(t, qty(50), row.ClosingQty)
	assert.True(t, types.MustMoney("560").Equal(row.ClosingVal))
	assert.True(t, types.MustMoney("11.2").Equal(row.ValuationRate()))
}

func TestOpeningMarkerCountsAsOpening(t *testing.T) {
	opening := move("OS-1", "2024-02-10", 25, "250")
	opening.IsOpening = true

	rows, err := Reconcile([]ledger.MovementEvent{opening}, day("2024-02-01"), day("2024-02-29"), ledger.GranularityItemWarehouse, nil)
	require.NoError(t, err)

	assert.Equal(t, qty(25), rows[keyA].OpeningQty)
	assert.True(t, rows[keyA].InQty.IsZero())
}

func TestReconciliationDeltaFromRunningBalance(t *testing.T) {
	rows, err := Reconcile([]ledger.MovementEvent{
		move("PR-1", "2024-01-01", 30, "300"),
		reconcile("SR-1", "2024-01-05", 50),
		reconcile("SR-2", "2024-01-06", 45),
	}, day("2024-01-01"), day("2024-01-31"), ledger.GranularityItemWarehouse, nil)
	require.NoError(t, err)

	row := rows[keyA]
	assert.Equal(t, qty(50), row.InQty)
	assert.Equal(t, qty(5), row.OutQty)
	assert.Equal(t, qty(45), row.ClosingQty)
}

func TestNegativeStatedBalance(t *testing.T) {
	_, err := Reconcile([]ledger.MovementEvent{
		move("PR-1", "2024-01-01", 30, "300"),
		reconcile("SR-1", "2024-01-05", -1),
	}, day("2024-01-01"), day("2024-01-31"), ledger.GranularityItemWarehouse, nil)

	require.Error(t, err)
	assert.True(t, apperror.IsInconsistentReconciliation(err))
}

func TestMalformedEventAborts(t *testing.T) {
	bad := move("", "2024-01-02", 1, "1")
	r := NewReconciler(day("2024-01-01"), day("2024-01-31"), ledger.GranularityItemWarehouse, nil)
	require.NoError(t, r.Apply(move("PR-1", "2024-01-01", 1, "1")))

	err := r.Apply(bad)
	assert.True(t, apperror.IsMalformedEvent(err))
	assert.Nil(t, r.Results())
	assert.Equal(t, err, r.Apply(move("PR-2", "2024-01-03", 1, "1")))
}

func TestItemGranularityFoldsWarehouses(t *testing.T) {
	other := move("PR-2", "2024-01-02", 5, "50")
	other.WarehouseID = "Annex"

	rows, err := Reconcile([]ledger.MovementEvent{
		move("PR-1", "2024-01-01", 10, "100"),
		other,
		// Reconciliations are per warehouse even when reporting per item.
		reconcile("SR-1", "2024-01-03", 8),
	}, day("2024-01-01"), day("2024-01-31"), ledger.GranularityItem, nil)
	require.NoError(t, err)

	require.Len(t, rows, 1)
	row := rows[ledger.GroupKey{ItemID: "ITEM-A"}]
	assert.Equal(t, qty(15), row.InQty)
	assert.Equal(t, qty(2), row.OutQty)
	assert.Equal(t, qty(13), row.ClosingQty)
}

func TestBaselineSeedsOpening(t *testing.T) {
	baseline := &Baseline{
		AsOf: day("2024-01-31"),
		Entries: map[ledger.GroupKey]BaselineEntry{
			{ItemID: "ITEM-A", WarehouseID: "Stores", LotTag: "PR-1"}: {Qty: qty(40), Value: types.MustMoney("400")},
		},
	}

	rows, err := Reconcile([]ledger.MovementEvent{
		// Already contained in the snapshot.
		move("PR-1", "2024-01-10", 100, "1000"),
		move("DN-1", "2024-01-20", -60, "-600"),
		move("DN-2", "2024-02-10", -10, "-100"),
	}, day("2024-02-01"), day("2024-02-29"), ledger.GranularityItemWarehouse, baseline)
	require.NoError(t, err)

	row := rows[keyA]
	assert.Equal(t, qty(40), row.OpeningQty)
	assert.True(t, types.MustMoney("400").Equal(row.OpeningVal))
	assert.Equal(t, qty(10), row.OutQty)
	assert.Equal(t, qty(30), row.ClosingQty)
}

func TestBaselineAfterStartIsIgnored(t *testing.T) {
	baseline := &Baseline{
		AsOf:    day("2024-02-15"),
		Entries: map[ledger.GroupKey]BaselineEntry{keyA: {Qty: qty(999), Value: types.MustMoney("1")}},
	}

	rows, err := Reconcile([]ledger.MovementEvent{
		move("PR-1", "2024-01-10", 10, "100"),
	}, day("2024-02-01"), day("2024-02-29"), ledger.GranularityItemWarehouse, baseline)
	require.NoError(t, err)
	assert.Equal(t, qty(10), rows[keyA].OpeningQty)
}

func reconcilePeriods(t *testing.T, events []ledger.MovementEvent, start, end string) []*PeriodBalance {
	t.Helper()
	periods, err := SplitPeriods(day(start), day(end), PeriodicityMonthly)
	require.NoError(t, err)
	set := NewPeriodSet(periods, ledger.GranularityItemWarehouse, nil)
	for _, ev := range events {
		require.NoError(t, set.Apply(ev))
	}
	return set.Results()
}

func TestPeriodSetChainsBalances(t *testing.T) {
	rows := reconcilePeriods(t, []ledger.MovementEvent{
		move("PR-1", "2024-01-10", 100, "1000"),
		move("DN-1", "2024-02-20", -30, "-300"),
		move("PR-2", "2024-03-05", 10, "100"),
	}, "2024-01-01", "2024-03-31")
	require.Len(t, rows, 3)

	for i := 1; i < len(rows); i++ {
		assert.Equal(t, rows[i-1].ClosingQty, rows[i].OpeningQty)
		assert.True(t, rows[i-1].ClosingVal.Equal(rows[i].OpeningVal))
	}
	assert.Equal(t, qty(80), rows[2].ClosingQty)
	assert.Equal(t, day("2024-02-01"), rows[1].PeriodStart)
	assert.Equal(t, day("2024-02-29"), rows[1].PeriodEnd)
}

func TestOpeningMarkerInLaterPeriodKeepsChain(t *testing.T) {
	opening := move("OS-1", "2024-02-15", 40, "400")
	opening.IsOpening = true

	rows := reconcilePeriods(t, []ledger.MovementEvent{
		move("PR-1", "2024-01-10", 100, "1000"),
		opening,
		move("DN-1", "2024-03-02", -20, "-200"),
	}, "2024-01-01", "2024-03-31")
	require.Len(t, rows, 3)

	assert.Equal(t, qty(40), rows[0].OpeningQty, "opening stock belongs to the first period")
	assert.Equal(t, qty(100), rows[0].InQty)
	for i := 1; i < len(rows); i++ {
		assert.Equal(t, rows[i-1].ClosingQty, rows[i].OpeningQty)
		assert.True(t, rows[i-1].ClosingVal.Equal(rows[i].OpeningVal))
	}
	assert.Equal(t, qty(140), rows[0].ClosingQty)
	assert.Equal(t, qty(120), rows[2].ClosingQty)
}

func TestOpeningMarkerAfterEndIsIgnored(t *testing.T) {
	opening := move("OS-1", "2024-02-15", 40, "400")
	opening.IsOpening = true

	rows, err := Reconcile([]ledger.MovementEvent{opening}, day("2024-01-01"), day("2024-01-31"), ledger.GranularityItemWarehouse, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReconciliationIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	warehouses := []string{"Stores", "Annex", "Transit"}
	items := []string{"ITEM-A", "ITEM-B"}

	var events []ledger.MovementEvent
	start := day("2024-01-01")
	for i := 0; i < 400; i++ {
		ev := ledger.MovementEvent{
			ItemID:      items[rng.Intn(len(items))],
			WarehouseID: warehouses[rng.Intn(len(warehouses))],
			VoucherID:   fmt.Sprintf("V-%d", rng.Intn(40)),
			OccurredAt:  start.AddDate(0, 0, i/4),
			Sequence:    int64(i),
		}
		switch n := rng.Intn(10); {
		case n < 5:
			q := int64(rng.Intn(20) + 1)
			ev.SignedQty = qty(q)
			ev.ValueDelta = types.NewMoney(float64(q * 10))
		case n < 9:
			q := int64(rng.Intn(25) + 1)
			ev.SignedQty = qty(-q)
			ev.ValueDelta = types.NewMoney(float64(-q * 10))
		default:
			s := qty(int64(rng.Intn(30)))
			ev.IsReconciliation = true
			ev.StatedBalanceAfter = &s
		}
		events = append(events, ev)
	}

	for _, cutoff := range []time.Time{day("2024-01-15"), day("2024-02-10"), day("2024-04-30")} {
		for _, g := range []ledger.Granularity{ledger.GranularityItemWarehouse, ledger.GranularityItem} {
			queues, err := fifo.Process(events, g.WarehouseWise(), cutoff)
			require.NoError(t, err)
			if !g.IncludesWarehouse() {
				queues = fifo.Aggregate(queues)
			}

			rows, err := Reconcile(events, start, cutoff, g, nil)
			require.NoError(t, err)

			require.Equal(t, len(queues), len(rows), "cutoff %s granularity %s", cutoff.Format(time.DateOnly), g)
			for key, q := range queues {
				row, ok := rows[key]
				require.True(t, ok, key.String())
				assert.Equal(t, q.TotalQty(), row.ClosingQty, "key %s cutoff %s", key, cutoff.Format(time.DateOnly))
			}
		}
	}
}
