package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-statements/internal/observability"
	"github.com/odyssey-erp/odyssey-statements/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-statements/internal/recompute"
	"github.com/odyssey-erp/odyssey-statements/internal/statements"
	"github.com/odyssey-erp/odyssey-statements/jobs"
)

// GridService is the read side of the recompute service exposed over HTTP.
type GridService interface {
	Grid(ctx context.Context, req recompute.Request) (*statements.ReportData, error)
	Rollup(ctx context.Context, req recompute.RangeRequest) (*statements.ReportData, error)
	Invalidate(ctx context.Context, req recompute.Request) error
}

// RouterParams groups dependencies for building the ops router.
type RouterParams struct {
	Logger     *slog.Logger
	Config     *Config
	Metrics    *observability.Metrics
	JobHandler *jobs.Handler
	Grids      GridService
}

var errorRules = []httpx.Rule{
	{Err: recompute.ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Err: recompute.ErrInvalidRequest, Status: http.StatusBadRequest, Title: "Validation Failed"},
	{Err: statements.ErrInvalidTransition, Status: http.StatusConflict, Title: "Conflict"},
}

// NewRouter wires the ops endpoints served next to the worker.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: params.Logger, Config: params.Config, Metrics: params.Metrics}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Grids != nil {
		h := &gridHandler{service: params.Grids, logger: params.Logger, metrics: params.Metrics}
		r.Route("/statements/{reportID}", h.MountRoutes)
	}
	return r
}

type gridHandler struct {
	service GridService
	logger  *slog.Logger
	metrics *observability.Metrics
}

func (h *gridHandler) MountRoutes(r chi.Router) {
	r.Get("/grid", h.grid)
	r.Get("/rollup", h.rollup)
	r.Post("/invalidate", h.invalidate)
}

// grid serves GET /statements/{reportID}/grid?period=monthly&date=2024-03-01.
func (h *gridHandler) grid(w http.ResponseWriter, r *http.Request) {
	req, ok := h.periodRequest(w, r)
	if !ok {
		return
	}
	data, err := h.service.Grid(r.Context(), req)
	h.metrics.ObserveGridRead("grid", readResult(err))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, data)
}

// rollup serves GET /statements/{reportID}/rollup?start=2024-01-01&end=2024-03-31.
func (h *gridHandler) rollup(w http.ResponseWriter, r *http.Request) {
	reportID, ok := reportIDParam(w, r)
	if !ok {
		return
	}
	start, err := parseDay(r.URL.Query().Get("start"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "start must be YYYY-MM-DD")
		return
	}
	end, err := parseDay(r.URL.Query().Get("end"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "end must be YYYY-MM-DD")
		return
	}
	data, err := h.service.Rollup(r.Context(), recompute.RangeRequest{ReportID: reportID, Start: start, End: end})
	h.metrics.ObserveGridRead("rollup", readResult(err))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, data)
}

func (h *gridHandler) invalidate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.periodRequest(w, r)
	if !ok {
		return
	}
	err := h.service.Invalidate(r.Context(), req)
	h.metrics.ObserveGridRead("invalidate", readResult(err))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *gridHandler) periodRequest(w http.ResponseWriter, r *http.Request) (recompute.Request, bool) {
	reportID, ok := reportIDParam(w, r)
	if !ok {
		return recompute.Request{}, false
	}
	period := statements.PeriodType(r.URL.Query().Get("period"))
	if period == "" {
		period = statements.PeriodMonthly
	}
	date, err := parseDay(r.URL.Query().Get("date"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return recompute.Request{}, false
	}
	return recompute.Request{ReportID: reportID, PeriodType: period, Date: date}, true
}

func (h *gridHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	logger := h.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("statements request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err, errorRules...)
}

func readResult(err error) string {
	switch {
	case err == nil:
		return observability.ReadOK
	case errors.Is(err, recompute.ErrNotFound):
		return observability.ReadNotFound
	case errors.Is(err, recompute.ErrInvalidRequest):
		return observability.ReadInvalid
	case errors.Is(err, statements.ErrInvalidTransition):
		return observability.ReadConflict
	}
	return observability.ReadError
}

func reportIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "reportID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "report id must be a positive integer")
		return 0, false
	}
	return id, true
}

func parseDay(raw string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", raw, time.UTC)
}
