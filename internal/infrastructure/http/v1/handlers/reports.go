package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// ReportsService is the part of reports.Service the handlers call.
type ReportsService interface {
	GetStockAgeing(ctx context.Context, cfg reports.Config, filter reports.Filter) (*reports.AgeingReport, error)
	GetStockBalance(ctx context.Context, cfg reports.Config, filter reports.Filter) (*reports.BalanceReport, error)
	CrossCheck(ctx context.Context, cfg reports.Config, filter reports.Filter) (*reports.CrossCheckReport, error)
}

// ReportsHandler handles HTTP requests for reports.
type ReportsHandler struct {
	*BaseHandler
	service ReportsService
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(base *BaseHandler, service ReportsService) *ReportsHandler {
	return &ReportsHandler{
		BaseHandler: base,
		service:     service,
	}
}

// GetStockAgeing handles GET /reports/stock-ageing
func (h *ReportsHandler) GetStockAgeing(c *gin.Context) {
	var req dto.StockAgeingRequest
	if !h.BindQuery(c, &req) {
		return
	}

	cfg, filter, err := scope(req.ReportScopeRequest)
	if err != nil {
		h.Error(c, err)
		return
	}
	if cfg.CutoffDate, err = parseDate("cutoffDate", req.CutoffDate); err != nil {
		h.Error(c, err)
		return
	}
	if raw, ok := c.GetQuery("ageRanges"); ok {
		if cfg.AgeRanges, err = parseAgeRanges(raw); err != nil {
			h.Error(c, err)
			return
		}
	}

	report, err := h.service.GetStockAgeing(c.Request.Context(), cfg, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromAgeingReport(report, cfg.IncludeValue))
}

// GetStockBalance handles GET /reports/stock-balance
func (h *ReportsHandler) GetStockBalance(c *gin.Context) {
	var req dto.StockBalanceRequest
	if !h.BindQuery(c, &req) {
		return
	}

	cfg, filter, err := scope(req.ReportScopeRequest)
	if err != nil {
		h.Error(c, err)
		return
	}
	if cfg.PeriodStart, err = parseDate("fromDate", req.FromDate); err != nil {
		h.Error(c, err)
		return
	}
	if cfg.PeriodEnd, err = parseDate("toDate", req.ToDate); err != nil {
		h.Error(c, err)
		return
	}
	if cfg.Periodicity, err = balance.ParsePeriodicity(req.Periodicity); err != nil {
		h.Error(c, err)
		return
	}
	cfg.IgnoreBaseline = req.IgnoreBaseline

	report, err := h.service.GetStockBalance(c.Request.Context(), cfg, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromBalanceReport(report, cfg.IncludeValue))
}

// GetStockReconciliation handles GET /reports/stock-reconciliation
func (h *ReportsHandler) GetStockReconciliation(c *gin.Context) {
	var req dto.StockReconciliationRequest
	if !h.BindQuery(c, &req) {
		return
	}

	cfg, filter, err := scope(req.ReportScopeRequest)
	if err != nil {
		h.Error(c, err)
		return
	}
	if cfg.CutoffDate, err = parseDate("cutoffDate", req.CutoffDate); err != nil {
		h.Error(c, err)
		return
	}

	report, err := h.service.CrossCheck(c.Request.Context(), cfg, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromCrossCheckReport(report, cfg.IncludeValue))
}

func scope(req dto.ReportScopeRequest) (reports.Config, reports.Filter, error) {
	g, err := ledger.ParseGranularity(req.Granularity)
	if err != nil {
		return reports.Config{}, reports.Filter{}, err
	}
	cfg := reports.Config{
		Granularity:  g,
		IncludeValue: req.IncludeValue == nil || *req.IncludeValue,
		ExcludeZero:  req.ExcludeZero,
	}
	filter := reports.Filter{ItemIDs: req.ItemIDs, WarehouseIDs: req.WarehouseIDs}
	return cfg, filter, nil
}

func parseDate(param, value string) (t time.Time, err error) {
	t, err = dto.ParseDate(value)
	if err != nil {
		return t, apperror.NewValidation("invalid " + param + " format, expected YYYY-MM-DD").
			WithDetail("value", value)
	}
	return t, nil
}

// parseAgeRanges reads "30,60,90". An empty value selects a single range.
func parseAgeRanges(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []int{}, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, apperror.NewValidation("ageRanges must be a comma separated list of day counts").
				WithDetail("value", raw)
		}
		out = append(out, n)
	}
	return out, nil
}
