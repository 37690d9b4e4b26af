package sale

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-dms/meridian-dms/internal/dispatch"
	"github.com/meridian-dms/meridian-dms/internal/masterdata/retailers"
	"github.com/meridian-dms/meridian-dms/internal/platform/httpx"
)

// Handler manages sale HTTP endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.record)
	r.Get("/summary/{driverID}", h.dailySummary)
	r.Get("/settlement/{dispatchID}", h.settlementReport)
	r.Get("/{id}", h.show)
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	s, err := h.service.Record(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, s)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid sale id", httpx.ErrInvalidInput))
		return
	}
	s, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter ListFilter
	if v := q.Get("dispatch_id"); v != "" {
		filter.DispatchID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("driver_id"); v != "" {
		filter.DriverID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("retailer_id"); v != "" {
		filter.RetailerID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: from: %v", httpx.ErrInvalidInput, err))
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: to: %v", httpx.ErrInvalidInput, err))
			return
		}
		filter.To = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	sales, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ListResponse{
		Sales: sales,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	})
}

func (h *Handler) dailySummary(w http.ResponseWriter, r *http.Request) {
	driverID, err := strconv.ParseInt(chi.URLParam(r, "driverID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid driver id", httpx.ErrInvalidInput))
		return
	}

	date := time.Now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		date, err = time.Parse("2006-01-02", v)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: date: %v", httpx.ErrInvalidInput, err))
			return
		}
	}

	summary, err := h.service.DailySummary(r.Context(), driverID, date)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) settlementReport(w http.ResponseWriter, r *http.Request) {
	dispatchID, err := strconv.ParseInt(chi.URLParam(r, "dispatchID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid dispatch id", httpx.ErrInvalidInput))
		return
	}

	report, err := h.service.SettlementReport(r.Context(), dispatchID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

// respondError translates package sentinels before falling back to the
// shared mapping.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, dispatch.ErrNotFound), errors.Is(err, retailers.ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, ErrDispatchNotSellable):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
	case errors.Is(err, ErrDriverMismatch):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrForbidden, err))
	case errors.Is(err, ErrInsufficientDispatchStock):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrInsufficient, err))
	case errors.Is(err, ErrEmptyItems),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrProductNotOnDispatch),
		errors.Is(err, ErrPaymentMismatch),
		errors.Is(err, ErrNegativePayment),
		errors.Is(err, ErrInvalidCheque),
		errors.Is(err, ErrRetailerInactive):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrInvalidInput, err))
	default:
		h.logger.Error("sale request failed", "error", err)
		httpx.RespondError(w, err)
	}
}
