// Package reports runs the FIFO ageing, period balance and cross-check
// reports over one snapshot-consistent event stream.
package reports

import (
	"time"

	"stockledger/internal/core/types"
	"stockledger/internal/domain/ageing"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/ledger"
)

// Config is recognised by every report mode. Fields irrelevant to a mode
// are ignored by it.
type Config struct {
	Granularity ledger.Granularity `validate:"oneof=item item_warehouse item_warehouse_lot item_lot"`

	// AgeRanges are ascending day-count boundaries. Nil selects the
	// service default; an empty slice yields a single "all" range.
	AgeRanges    []int `validate:"dive,gte=0"`
	IncludeValue bool

	// Ageing and cross-check
	CutoffDate time.Time `validate:"required"`

	// Balance
	PeriodStart time.Time           `validate:"required"`
	PeriodEnd   time.Time           `validate:"required,gtefield=PeriodStart"`
	Periodicity balance.Periodicity `validate:"omitempty,oneof=weekly monthly quarterly half_yearly yearly"`

	ExcludeZero    bool
	IgnoreBaseline bool
}

func (c *Config) applyDefaults(ageRanges []int) {
	if c.Granularity == "" {
		c.Granularity = ledger.GranularityItemWarehouse
	}
	if c.AgeRanges == nil {
		c.AgeRanges = ageRanges
	}
}

// Filter narrows the event stream before any engine sees it.
type Filter struct {
	ItemIDs      []string
	WarehouseIDs []string
}

// --- Stock Ageing Report ---

// AgeingRow is one group key of the ageing report.
type AgeingRow struct {
	ledger.GroupKey

	TotalQty   types.Quantity `json:"totalQty"`
	TotalValue types.Money    `json:"totalValue"`

	AverageAge  float64 `json:"averageAge"`
	EarliestAge int     `json:"earliestAge"`
	LatestAge   int     `json:"latestAge"`

	Ranges []ageing.Range `json:"ranges"`

	// NegativeLayers counts layers still awaiting a reconciling inbound.
	NegativeLayers   int  `json:"negativeLayers"`
	HasDiscreteUnits bool `json:"hasDiscreteUnits"`
}

// AgeingReport is the full ageing result of one run.
type AgeingReport struct {
	RunID       string             `json:"runId"`
	CutoffDate  time.Time          `json:"cutoffDate"`
	Granularity ledger.Granularity `json:"granularity"`
	Rows        []AgeingRow        `json:"rows"`
	Warnings    []string           `json:"warnings,omitempty"`

	TotalQty   types.Quantity `json:"totalQty"`
	TotalValue types.Money    `json:"totalValue"`
	Events     int            `json:"events"`
}

// --- Stock Balance Report ---

// BalanceReport is one row per group key per period.
type BalanceReport struct {
	RunID       string                   `json:"runId"`
	PeriodStart time.Time                `json:"periodStart"`
	PeriodEnd   time.Time                `json:"periodEnd"`
	Periodicity balance.Periodicity      `json:"periodicity,omitempty"`
	Granularity ledger.Granularity       `json:"granularity"`
	Periods     []balance.Period         `json:"periods"`
	Rows        []*balance.PeriodBalance `json:"rows"`

	// BaselineAsOf is set when a closing snapshot seeded the opening balances.
	BaselineAsOf *time.Time `json:"baselineAsOf,omitempty"`
	Events       int        `json:"events"`
}

// --- Reconciliation cross-check ---

// CrossCheckRow compares both engines for one key.
type CrossCheckRow struct {
	ledger.GroupKey

	LedgerQty   types.Quantity `json:"ledgerQty"`
	LayerQty    types.Quantity `json:"layerQty"`
	LedgerValue types.Money    `json:"ledgerValue"`
	LayerValue  types.Money    `json:"layerValue"`

	// PendingTransferQty is quantity still parked in transfer buckets.
	PendingTransferQty types.Quantity `json:"pendingTransferQty"`
	Matched            bool           `json:"matched"`
}

// CrossCheckReport is the reconciliation identity evaluated at a cutoff.
type CrossCheckReport struct {
	RunID       string             `json:"runId"`
	CutoffDate  time.Time          `json:"cutoffDate"`
	Granularity ledger.Granularity `json:"granularity"`
	Rows        []CrossCheckRow    `json:"rows"`
	Mismatches  int                `json:"mismatches"`
	Events      int                `json:"events"`
}
