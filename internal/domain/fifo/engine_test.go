package fifo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/types"
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

func money(s string) types.Money { return types.MustMoney(s) }

func move(voucher, date string, q int64, value string) ledger.MovementEvent {
	return ledger.MovementEvent{
		ItemID:      "ITEM-A",
		WarehouseID: "Stores",
		VoucherID:   voucher,
		OccurredAt:  day(date),
		SignedQty:   qty(q),
		ValueDelta:  money(value),
	}
}

var keyA = ledger.GroupKey{ItemID: "ITEM-A", WarehouseID: "Stores"}

func run(t *testing.T, events ...ledger.MovementEvent) (*Engine, map[ledger.GroupKey]*QueueResult) {
	t.Helper()
	e := NewEngine(ledger.GranularityItemWarehouse, time.Time{})
	for _, ev := range events {
		require.NoError(t, e.Apply(ev))
	}
	return e, e.Results()
}

func TestPartialConsumption(t *testing.T) {
	_, res := run(t,
		move("PR-1", "2024-01-01", 100, "1000"),
		move("DN-1", "2024-02-01", -60, "-600"),
	)

	r := res[keyA]
	require.Len(t, r.Layers, 1)
	assert.Equal(t, qty(40), r.Layers[0].Qty)
	assert.True(t, money("400").Equal(r.Layers[0].Value))
	assert.Equal(t, day("2024-01-01"), r.Layers[0].OriginDate)
	assert.Equal(t, qty(40), r.QtyAfterTransaction)
}

func TestWholeLayersPopBeforePartial(t *testing.T) {
	_, res := run(t,
		move("PR-1", "2024-01-01", 10, "100"),
		move("PR-2", "2024-01-05", 10, "120"),
		move("PR-3", "2024-01-09", 10, "150"),
		move("DN-1", "2024-01-10", -15, "-160"),
	)

	r := res[keyA]
	require.Len(t, r.Layers, 2)
	assert.Equal(t, qty(5), r.Layers[0].Qty)
	assert.Equal(t, day("2024-01-05"), r.Layers[0].OriginDate)
	assert.True(t, money("60").Equal(r.Layers[0].Value))
	assert.Equal(t, qty(10), r.Layers[1].Qty)
	assert.Equal(t, qty(15), r.TotalQty())
}

func TestOversellCreatesNegativeLayerAndBucket(t *testing.T) {
	e, res := run(t, move("DN-1", "2024-01-01", -20, "-200"))

	r := res[keyA]
	require.Len(t, r.Layers, 1)
	assert.Equal(t, qty(-20), r.Layers[0].Qty)
	assert.Equal(t, 1, r.NegativeLayers())

	buckets := e.PendingTransfers()
	require.Len(t, buckets, 1)
	assert.Equal(t, "DN-1", buckets[0].VoucherID)
	assert.Equal(t, keyA, buckets[0].Key)
	assert.Equal(t, qty(20), buckets[0].Qty())
	assert.Equal(t, 1, e.Stats().SyntheticNegatives)
}

func TestInboundNeutralisesNegativeFront(t *testing.T) {
	_, res := run(t,
		move("DN-1", "2024-01-01", -20, "-200"),
		move("PR-1", "2024-01-10", 50, "500"),
	)

	r := res[keyA]
	require.Len(t, r.Layers, 1, "no layer boundary at zero")
	assert.Equal(t, qty(30), r.Layers[0].Qty)
	assert.Equal(t, day("2024-01-10"), r.Layers[0].OriginDate)
	assert.True(t, money("300").Equal(r.Layers[0].Value))
}

func TestOutboundDeepensNegativeFront(t *testing.T) {
	e, res := run(t,
		move("DN-1", "2024-01-01", -5, "-50"),
		move("DN-2", "2024-01-02", -7, "-70"),
	)

	r := res[keyA]
	require.Len(t, r.Layers, 1)
	assert.Equal(t, qty(-12), r.Layers[0].Qty)
	assert.Equal(t, day("2024-01-01"), r.Layers[0].OriginDate)
	assert.Len(t, e.PendingTransfers(), 2)
}

func TestSameVoucherRoundTripKeepsAge(t *testing.T) {
	before := []ledger.MovementEvent{
		move("PR-1", "2024-01-01", 100, "1000"),
		move("PR-2", "2024-02-01", 50, "600"),
	}
	_, base := run(t, before...)

	// A repack removes and re-adds 30 units in one voucher.
	events := append(append([]ledger.MovementEvent{}, before...),
		move("REPACK-1", "2024-03-01", -30, "-300"),
		move("REPACK-1", "2024-03-01", 30, "300"),
	)
	e, after := run(t, events...)

	assert.Equal(t, base[keyA].TotalQty(), after[keyA].TotalQty())
	assert.True(t, base[keyA].TotalValue().Equal(after[keyA].TotalValue()))
	require.Len(t, after[keyA].Layers, 2)
	assert.Equal(t, qty(100), after[keyA].Layers[0].Qty)
	assert.Equal(t, day("2024-01-01"), after[keyA].Layers[0].OriginDate)
	assert.Equal(t, day("2024-02-01"), after[keyA].Layers[1].OriginDate)
	assert.Empty(t, e.PendingTransfers(), "bucket is discarded once drained")
}

func TestOversoldRoundTripKeepsAge(t *testing.T) {
	e, res := run(t,
		move("PR-1", "2024-01-01", 10, "100"),
		move("RP-1", "2024-03-01", -30, "-300"),
		move("RP-1", "2024-03-01", 30, "300"),
	)

	r := res[keyA]
	require.Len(t, r.Layers, 1)
	assert.Equal(t, qty(10), r.Layers[0].Qty)
	assert.True(t, money("100").Equal(r.Layers[0].Value))
	assert.Equal(t, day("2024-01-01"), r.Layers[0].OriginDate)
	assert.Zero(t, r.NegativeLayers())
	assert.Empty(t, e.PendingTransfers())
}

func TestOversoldPartialReturnSettlesShortfallFirst(t *testing.T) {
	e, res := run(t,
		move("PR-1", "2024-01-01", 10, "100"),
		move("RP-1", "2024-03-01", -30, "-300"),
		move("RP-1", "2024-03-01", 20, "200"),
	)

	r := res[keyA]
	assert.Empty(t, r.Layers, "settled shortfall leaves no zero layer")
	assert.Equal(t, qty(0), r.TotalQty())

	buckets := e.PendingTransfers()
	require.Len(t, buckets, 1)
	require.Len(t, buckets[0].Layers, 1)
	assert.Equal(t, qty(10), buckets[0].Qty())
	assert.Equal(t, day("2024-01-01"), buckets[0].Layers[0].OriginDate, "real stock still parked")
}

func TestRoundTripAcrossWholeLayers(t *testing.T) {
	events := []ledger.MovementEvent{
		move("PR-1", "2024-01-01", 10, "100"),
		move("PR-2", "2024-01-15", 10, "110"),
		move("SE-1", "2024-02-01", -15, "-155"),
		move("SE-1", "2024-02-01", 15, "155"),
	}
	_, res := run(t, events...)

	r := res[keyA]
	require.Len(t, r.Layers, 2)
	assert.Equal(t, qty(10), r.Layers[0].Qty)
	assert.Equal(t, day("2024-01-01"), r.Layers[0].OriginDate)
	assert.Equal(t, qty(10), r.Layers[1].Qty)
	assert.Equal(t, day("2024-01-15"), r.Layers[1].OriginDate)
	assert.True(t, money("210").Equal(r.TotalValue()))
}

func TestReclaimExcessBecomesNewLayer(t *testing.T) {
	e, res := run(t,
		move("PR-1", "2024-01-01", 10, "100"),
		move("MFG-1", "2024-02-01", -10, "-100"),
		move("MFG-1", "2024-02-01", 14, "150"),
	)

	r := res[keyA]
	require.Len(t, r.Layers, 2)
	assert.Equal(t, qty(10), r.Layers[0].Qty)
	assert.Equal(t, day("2024-01-01"), r.Layers[0].OriginDate)
	assert.Equal(t, qty(4), r.Layers[1].Qty)
	assert.Equal(t, day("2024-02-01"), r.Layers[1].OriginDate)
	assert.True(t, money("50").Equal(r.Layers[1].Value))
	assert.Empty(t, e.PendingTransfers())
}

func TestPartialReclaimLeavesRemainderInBucket(t *testing.T) {
	e, res := run(t,
		move("PR-1", "2024-01-01", 10, "100"),
		move("SE-1", "2024-02-01", -10, "-100"),
		move("SE-1", "2024-02-01", 4, "40"),
	)

	r := res[keyA]
	require.Len(t, r.Layers, 1)
	assert.Equal(t, qty(4), r.Layers[0].Qty)
	assert.Equal(t, day("2024-01-01"), r.Layers[0].OriginDate)

	buckets := e.PendingTransfers()
	require.Len(t, buckets, 1)
	assert.Equal(t, qty(6), buckets[0].Qty())
	assert.True(t, money("60").Equal(buckets[0].Layers[0].Value))
}

func TestOtherVoucherDoesNotReclaim(t *testing.T) {
	_, res := run(t,
		move("PR-1", "2024-01-01", 10, "100"),
		move("DN-1", "2024-02-01", -10, "-100"),
		move("PR-2", "2024-03-01", 10, "100"),
	)

	r := res[keyA]
	require.Len(t, r.Layers, 1)
	assert.Equal(t, day("2024-03-01"), r.Layers[0].OriginDate)
}

func TestReconciliationDerivesDelta(t *testing.T) {
	stated := qty(50)
	recon := move("SR-1", "2024-02-01", 0, "200")
	recon.IsReconciliation = true
	recon.StatedBalanceAfter = &stated

	e, res := run(t, move("PR-1", "2024-01-01", 30, "300"), recon)

	r := res[keyA]
	require.Len(t, r.Layers, 2)
	assert.Equal(t, qty(20), r.Layers[1].Qty)
	assert.Equal(t, day("2024-02-01"), r.Layers[1].OriginDate)
	assert.Equal(t, qty(50), r.QtyAfterTransaction)
	assert.Equal(t, 1, e.Stats().Reconciliations)
}

func TestReconciliationUsesReceiveDate(t *testing.T) {
	stated := qty(50)
	received := day("2024-01-20")
	recon := move("SR-1", "2024-02-01", 0, "200")
	recon.IsReconciliation = true
	recon.StatedBalanceAfter = &stated
	recon.ReceivedAt = &received

	_, res := run(t, move("PR-1", "2024-01-01", 30, "300"), recon)

	r := res[keyA]
	require.Len(t, r.Layers, 2)
	assert.Equal(t, received, r.Layers[1].OriginDate)
}

func TestReconciliationDownwardConsumesFIFO(t *testing.T) {
	stated := qty(25)
	recon := move("SR-1", "2024-03-01", 0, "-50")
	recon.IsReconciliation = true
	recon.StatedBalanceAfter = &stated

	_, res := run(t,
		move("PR-1", "2024-01-01", 10, "100"),
		move("PR-2", "2024-02-01", 20, "200"),
		recon,
	)

	r := res[keyA]
	require.Len(t, r.Layers, 2)
	assert.Equal(t, qty(5), r.Layers[0].Qty)
	assert.Equal(t, qty(25), r.TotalQty())
}

func TestNegativeStatedBalanceIsFatal(t *testing.T) {
	stated := qty(-5)
	recon := move("SR-9", "2024-02-01", 0, "0")
	recon.IsReconciliation = true
	recon.StatedBalanceAfter = &stated

	res, err := Process([]ledger.MovementEvent{move("PR-1", "2024-01-01", 3, "30"), recon},
		ledger.GranularityItemWarehouse, time.Time{})

	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, apperror.IsInconsistentReconciliation(err))
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, "SR-9", appErr.Details["voucher_id"])
}

func TestMalformedEventAbortsRun(t *testing.T) {
	bad := move("SE-404", "2024-01-02", 1, "10")
	bad.WarehouseID = ""

	e := NewEngine(ledger.GranularityItemWarehouse, time.Time{})
	require.NoError(t, e.Apply(move("PR-1", "2024-01-01", 3, "30")))

	err := e.Apply(bad)
	require.Error(t, err)
	assert.True(t, apperror.IsMalformedEvent(err))
	assert.Nil(t, e.Results(), "no partial results after failure")
	assert.ErrorIs(t, e.Apply(move("PR-2", "2024-01-03", 1, "10")), err)
}

func TestOutOfOrderEventIsMalformed(t *testing.T) {
	_, err := Process([]ledger.MovementEvent{
		move("PR-2", "2024-02-01", 1, "10"),
		move("PR-1", "2024-01-01", 1, "10"),
	}, ledger.GranularityItemWarehouse, time.Time{})
	assert.True(t, apperror.IsMalformedEvent(err))
}

func TestCutoffIgnoresLaterEvents(t *testing.T) {
	res, err := Process([]ledger.MovementEvent{
		move("PR-1", "2024-01-01", 10, "100"),
		move("DN-1", "2024-03-01", -4, "-40"),
	}, ledger.GranularityItemWarehouse, day("2024-02-29"))

	require.NoError(t, err)
	assert.Equal(t, qty(10), res[keyA].TotalQty())
}

func TestDiscreteUnits(t *testing.T) {
	in1 := move("PR-1", "2024-01-01", 3, "300")
	in1.HasDiscreteUnits = true
	in1.UnitIDs = []string{"SN-1", "SN-2", "SN-3"}

	in2 := move("PR-2", "2024-02-01", 1, "120")
	in2.HasDiscreteUnits = true
	in2.UnitIDs = []string{"SN-4"}

	out := move("DN-1", "2024-03-01", -2, "-220")
	out.HasDiscreteUnits = true
	out.UnitIDs = []string{"SN-4", "SN-2"}

	_, res := run(t, in1, in2, out)

	r := res[keyA]
	assert.True(t, r.HasDiscreteUnits)
	require.Len(t, r.Layers, 2)
	assert.Equal(t, "SN-1", r.Layers[0].UnitID)
	assert.Equal(t, "SN-3", r.Layers[1].UnitID)
	assert.True(t, money("100").Equal(r.Layers[0].Value))
	assert.Equal(t, qty(2), r.QtyAfterTransaction)
}

func unitMove(voucher, date string, q int64, value string, units ...string) ledger.MovementEvent {
	ev := move(voucher, date, q, value)
	ev.HasDiscreteUnits = true
	ev.UnitIDs = units
	return ev
}

func TestDiscreteUnitReceivedTwiceIsMalformed(t *testing.T) {
	e := NewEngine(ledger.GranularityItemWarehouse, time.Time{})
	require.NoError(t, e.Apply(unitMove("PR-1", "2024-01-01", 1, "100", "SN-1")))

	err := e.Apply(unitMove("PR-2", "2024-02-01", 1, "100", "SN-1"))
	require.Error(t, err)
	assert.True(t, apperror.IsMalformedEvent(err))
	assert.Nil(t, e.Results())
}

func TestDiscreteQuantityMustMatchUnits(t *testing.T) {
	_, err := Process([]ledger.MovementEvent{
		unitMove("PR-1", "2024-01-01", 2, "200", "SN-1"),
	}, ledger.GranularityItemWarehouse, time.Time{})
	assert.True(t, apperror.IsMalformedEvent(err))
}

func TestDiscreteReconciliationMustNameEveryUnit(t *testing.T) {
	stated := qty(3)
	recon := unitMove("SR-1", "2024-01-01", 0, "0", "SN-1")
	recon.IsReconciliation = true
	recon.StatedBalanceAfter = &stated

	_, err := Process([]ledger.MovementEvent{recon}, ledger.GranularityItemWarehouse, time.Time{})
	assert.True(t, apperror.IsMalformedEvent(err))
}

func TestUnknownUnitIssueLeavesNegativeUnitLayer(t *testing.T) {
	_, res := run(t,
		unitMove("PR-1", "2024-01-01", 1, "100", "SN-1"),
		unitMove("DN-1", "2024-02-01", -1, "-120", "SN-9"),
	)

	r := res[keyA]
	require.Len(t, r.Layers, 2)
	assert.Equal(t, "SN-9", r.Layers[1].UnitID)
	assert.Equal(t, qty(-1), r.Layers[1].Qty)
	assert.Equal(t, r.QtyAfterTransaction, r.TotalQty())
	assert.Equal(t, qty(0), r.TotalQty())

	_, res = run(t,
		unitMove("PR-1", "2024-01-01", 1, "100", "SN-1"),
		unitMove("DN-1", "2024-02-01", -1, "-120", "SN-9"),
		unitMove("PR-2", "2024-02-10", 1, "120", "SN-9"),
	)
	r = res[keyA]
	require.Len(t, r.Layers, 1, "late receipt cancels the negative unit")
	assert.Equal(t, "SN-1", r.Layers[0].UnitID)
	assert.Equal(t, r.QtyAfterTransaction, r.TotalQty())
}

func TestUnitIssuedTwiceIsMalformed(t *testing.T) {
	_, err := Process([]ledger.MovementEvent{
		unitMove("DN-1", "2024-01-01", -1, "-100", "SN-1"),
		unitMove("DN-2", "2024-01-02", -1, "-100", "SN-1"),
	}, ledger.GranularityItemWarehouse, time.Time{})
	assert.True(t, apperror.IsMalformedEvent(err))
}

func TestExactInboundOutboundNeverGoesNegative(t *testing.T) {
	_, res := run(t,
		move("PR-1", "2024-01-01", 10, "100"),
		move("PR-2", "2024-01-02", 5, "50"),
		move("DN-1", "2024-01-03", -10, "-100"),
		move("DN-2", "2024-01-04", -5, "-50"),
	)

	r := res[keyA]
	assert.Zero(t, r.NegativeLayers())
	assert.Empty(t, r.Layers)
	assert.True(t, r.TotalValue().IsZero())
}

func TestIndependentKeys(t *testing.T) {
	other := move("PR-9", "2024-01-01", 7, "70")
	other.WarehouseID = "Finished Goods"

	_, res := run(t, move("PR-1", "2024-01-01", 10, "100"), other)

	assert.Len(t, res, 2)
	assert.Equal(t, qty(7), res[ledger.GroupKey{ItemID: "ITEM-A", WarehouseID: "Finished Goods"}].TotalQty())
}

func TestLotTagCarriedAtItemGranularity(t *testing.T) {
	in := move("PR-1", "2024-01-01", 10, "100")
	in.LotTag = "PINV-1"

	res, err := Process([]ledger.MovementEvent{in}, ledger.GranularityItem, time.Time{})
	require.NoError(t, err)

	r := res[ledger.GroupKey{ItemID: "ITEM-A"}]
	require.Len(t, r.Layers, 1)
	assert.Equal(t, "PINV-1", r.Layers[0].LotTag)
}
