package recon

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-dms/meridian-dms/internal/collection"
	"github.com/meridian-dms/meridian-dms/internal/picklist"
	"github.com/meridian-dms/meridian-dms/internal/platform/httpx"
)

// Handler exposes reconciliation endpoints.
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
	r.Post("/", h.reconcile)
	r.Post("/auto", h.autoReconcile)
	r.Get("/reports", h.reports)
	r.Get("/stats", h.stats)
	r.Get("/breakdown/{pickListID}", h.breakdown)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	res, err := h.service.Reconcile(r.Context(), req.PickListID, req.CollectionID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) autoReconcile(w http.ResponseWriter, r *http.Request) {
	var req AutoReconcileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrInvalidInput, err))
		return
	}

	n, err := h.service.AutoReconcile(r.Context(), date)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, AutoReconcileResponse{Date: req.Date, Reconciled: n})
}

func (h *Handler) reports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ReportFilter{Status: picklist.ReconStatus(q.Get("status"))}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	if v := q.Get("from"); v != "" {
		filter.From, _ = time.Parse("2006-01-02", v)
	}
	if v := q.Get("to"); v != "" {
		filter.To, _ = time.Parse("2006-01-02", v)
	}

	lists, total, err := h.service.Reports(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}

	entries := make([]ReportEntry, 0, len(lists))
	for _, p := range lists {
		entries = append(entries, ReportEntry{
			PickListID:   p.ID,
			Number:       p.Number,
			Vehicle:      p.Vehicle,
			LoadOutDate:  p.LoadOutDate.Format("2006-01-02"),
			Status:       string(p.ReconStatus),
			Expected:     p.ReconExpected,
			Actual:       p.ReconActual,
			Variance:     p.ReconVariance,
			VariancePct:  p.ReconVariancePct,
			CollectionID: p.ReconCollectionID,
		})
	}
	httpx.JSON(w, http.StatusOK, ReportsResponse{
		Reports: entries,
		Total:   total,
		Page:    filter.Page,
		Limit:   filter.Limit,
	})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Stats(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) breakdown(w http.ResponseWriter, r *http.Request) {
	pickListID, err := parseID(r, "pickListID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.Breakdown(r.Context(), pickListID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func parseID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", httpx.ErrInvalidInput, name)
	}
	return id, nil
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, picklist.ErrNotFound), errors.Is(err, collection.ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, ErrCollectionCancelled):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
	case errors.Is(err, ErrNotReconciled):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrInvalidInput, err))
	default:
		h.logger.Error("reconciliation request failed", "error", err)
		httpx.RespondError(w, err)
	}
}
