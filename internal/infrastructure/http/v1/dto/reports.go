// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"time"

	"stockledger/internal/core/types"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/reports"
)

// DateLayout is the calendar-day format used by every report parameter.
const DateLayout = "2006-01-02"

// --- Requests ---

// ReportScopeRequest holds filters shared by all reports.
type ReportScopeRequest struct {
	Granularity  string   `form:"granularity"`
	ItemIDs      []string `form:"item"`
	WarehouseIDs []string `form:"warehouse"`
	IncludeValue *bool    `form:"includeValue"`
	ExcludeZero  bool     `form:"excludeZero"`
}

// StockAgeingRequest represents request for the stock ageing report.
// Age ranges are read separately so an explicitly empty list can be told
// apart from an absent one.
type StockAgeingRequest struct {
	ReportScopeRequest
	CutoffDate string `form:"cutoffDate" binding:"required"`
}

// StockBalanceRequest represents request for the stock balance report.
type StockBalanceRequest struct {
	ReportScopeRequest
	FromDate       string `form:"fromDate" binding:"required"`
	ToDate         string `form:"toDate" binding:"required"`
	Periodicity    string `form:"periodicity"`
	IgnoreBaseline bool   `form:"ignoreBaseline"`
}

// StockReconciliationRequest represents request for the reconciliation cross-check.
type StockReconciliationRequest struct {
	ReportScopeRequest
	CutoffDate string `form:"cutoffDate" binding:"required"`
}

// --- Stock Ageing ---

// AgeRangeResponse is one bucket of an ageing row.
type AgeRangeResponse struct {
	Label string         `json:"label"`
	Qty   types.Quantity `json:"qty"`
	Value *types.Money   `json:"value,omitempty"`
}

// StockAgeingRowResponse represents one group key.
type StockAgeingRowResponse struct {
	ItemID         string             `json:"itemId"`
	WarehouseID    string             `json:"warehouseId,omitempty"`
	LotTag         string             `json:"lotTag,omitempty"`
	TotalQty       types.Quantity     `json:"totalQty"`
	TotalValue     *types.Money       `json:"totalValue,omitempty"`
	AverageAge     float64            `json:"averageAge"`
	EarliestAge    int                `json:"earliestAge"`
	LatestAge      int                `json:"latestAge"`
	Ranges         []AgeRangeResponse `json:"ranges"`
	NegativeLayers int                `json:"negativeLayers,omitempty"`
}

// StockAgeingResponse represents the stock ageing report.
type StockAgeingResponse struct {
	RunID       string                   `json:"runId"`
	CutoffDate  string                   `json:"cutoffDate"`
	Granularity string                   `json:"granularity"`
	Rows        []StockAgeingRowResponse `json:"rows"`
	TotalRows   int                      `json:"totalRows"`
	TotalQty    types.Quantity           `json:"totalQty"`
	TotalValue  *types.Money             `json:"totalValue,omitempty"`
	Warnings    []string                 `json:"warnings,omitempty"`
}

// FromAgeingReport converts domain report to response DTO.
func FromAgeingReport(r *reports.AgeingReport, includeValue bool) *StockAgeingResponse {
	resp := &StockAgeingResponse{
		RunID:       r.RunID,
		CutoffDate:  r.CutoffDate.Format(DateLayout),
		Granularity: string(r.Granularity),
		Rows:        make([]StockAgeingRowResponse, len(r.Rows)),
		TotalRows:   len(r.Rows),
		TotalQty:    r.TotalQty,
		TotalValue:  money(r.TotalValue, includeValue),
		Warnings:    r.Warnings,
	}

	for i, row := range r.Rows {
		ranges := make([]AgeRangeResponse, len(row.Ranges))
		for j, rg := range row.Ranges {
			ranges[j] = AgeRangeResponse{Label: rg.Label, Qty: rg.Qty, Value: money(rg.Value, includeValue)}
		}
		resp.Rows[i] = StockAgeingRowResponse{
			ItemID:         row.ItemID,
			WarehouseID:    row.WarehouseID,
			LotTag:         row.LotTag,
			TotalQty:       row.TotalQty,
			TotalValue:     money(row.TotalValue, includeValue),
			AverageAge:     row.AverageAge,
			EarliestAge:    row.EarliestAge,
			LatestAge:      row.LatestAge,
			Ranges:         ranges,
			NegativeLayers: row.NegativeLayers,
		}
	}
	return resp
}

// --- Stock Balance ---

// StockBalanceRowResponse represents one key in one period.
type StockBalanceRowResponse struct {
	ItemID        string         `json:"itemId"`
	WarehouseID   string         `json:"warehouseId,omitempty"`
	LotTag        string         `json:"lotTag,omitempty"`
	PeriodStart   string         `json:"periodStart"`
	PeriodEnd     string         `json:"periodEnd"`
	OpeningQty    types.Quantity `json:"openingQty"`
	InQty         types.Quantity `json:"inQty"`
	OutQty        types.Quantity `json:"outQty"`
	ClosingQty    types.Quantity `json:"closingQty"`
	OpeningValue  *types.Money   `json:"openingValue,omitempty"`
	InValue       *types.Money   `json:"inValue,omitempty"`
	OutValue      *types.Money   `json:"outValue,omitempty"`
	ClosingValue  *types.Money   `json:"closingValue,omitempty"`
	ValuationRate *types.Money   `json:"valuationRate,omitempty"`
}

// StockBalanceResponse represents the stock balance report.
type StockBalanceResponse struct {
	RunID        string                    `json:"runId"`
	FromDate     string                    `json:"fromDate"`
	ToDate       string                    `json:"toDate"`
	Periodicity  string                    `json:"periodicity,omitempty"`
	Granularity  string                    `json:"granularity"`
	Rows         []StockBalanceRowResponse `json:"rows"`
	TotalRows    int                       `json:"totalRows"`
	BaselineAsOf string                    `json:"baselineAsOf,omitempty"`
}

// FromBalanceReport converts domain report to response DTO.
func FromBalanceReport(r *reports.BalanceReport, includeValue bool) *StockBalanceResponse {
	resp := &StockBalanceResponse{
		RunID:       r.RunID,
		FromDate:    r.PeriodStart.Format(DateLayout),
		ToDate:      r.PeriodEnd.Format(DateLayout),
		Periodicity: string(r.Periodicity),
		Granularity: string(r.Granularity),
		Rows:        make([]StockBalanceRowResponse, len(r.Rows)),
		TotalRows:   len(r.Rows),
	}
	if r.BaselineAsOf != nil {
		resp.BaselineAsOf = r.BaselineAsOf.Format(DateLayout)
	}

	for i, row := range r.Rows {
		resp.Rows[i] = fromPeriodBalance(row, includeValue)
	}
	return resp
}

func fromPeriodBalance(b *balance.PeriodBalance, includeValue bool) StockBalanceRowResponse {
	return StockBalanceRowResponse{
		ItemID:        b.Key.ItemID,
		WarehouseID:   b.Key.WarehouseID,
		LotTag:        b.Key.LotTag,
		PeriodStart:   b.PeriodStart.Format(DateLayout),
		PeriodEnd:     b.PeriodEnd.Format(DateLayout),
		OpeningQty:    b.OpeningQty,
		InQty:         b.InQty,
		OutQty:        b.OutQty,
		ClosingQty:    b.ClosingQty,
		OpeningValue:  money(b.OpeningVal, includeValue),
		InValue:       money(b.InVal, includeValue),
		OutValue:      money(b.OutVal, includeValue),
		ClosingValue:  money(b.ClosingVal, includeValue),
		ValuationRate: money(b.ValuationRate(), includeValue),
	}
}

// --- Reconciliation cross-check ---

// StockReconciliationRowResponse compares ledger and layer quantities for one key.
type StockReconciliationRowResponse struct {
	ItemID             string         `json:"itemId"`
	WarehouseID        string         `json:"warehouseId,omitempty"`
	LotTag             string         `json:"lotTag,omitempty"`
	LedgerQty          types.Quantity `json:"ledgerQty"`
	LayerQty           types.Quantity `json:"layerQty"`
	PendingTransferQty types.Quantity `json:"pendingTransferQty"`
	LedgerValue        *types.Money   `json:"ledgerValue,omitempty"`
	LayerValue         *types.Money   `json:"layerValue,omitempty"`
	Matched            bool           `json:"matched"`
}

// StockReconciliationResponse represents the cross-check result.
type StockReconciliationResponse struct {
	RunID       string                           `json:"runId"`
	CutoffDate  string                           `json:"cutoffDate"`
	Granularity string                           `json:"granularity"`
	Rows        []StockReconciliationRowResponse `json:"rows"`
	Mismatches  int                              `json:"mismatches"`
}

// FromCrossCheckReport converts domain report to response DTO.
func FromCrossCheckReport(r *reports.CrossCheckReport, includeValue bool) *StockReconciliationResponse {
	resp := &StockReconciliationResponse{
		RunID:       r.RunID,
		CutoffDate:  r.CutoffDate.Format(DateLayout),
		Granularity: string(r.Granularity),
		Rows:        make([]StockReconciliationRowResponse, len(r.Rows)),
		Mismatches:  r.Mismatches,
	}
	for i, row := range r.Rows {
		resp.Rows[i] = StockReconciliationRowResponse{
			ItemID:             row.ItemID,
			WarehouseID:        row.WarehouseID,
			LotTag:             row.LotTag,
			LedgerQty:          row.LedgerQty,
			LayerQty:           row.LayerQty,
			PendingTransferQty: row.PendingTransferQty,
			LedgerValue:        money(row.LedgerValue, includeValue),
			LayerValue:         money(row.LayerValue, includeValue),
			Matched:            row.Matched,
		}
	}
	return resp
}

// ParseDate accepts a calendar day or an RFC3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func money(m types.Money, include bool) *types.Money {
	if !include {
		return nil
	}
	return &m
}
