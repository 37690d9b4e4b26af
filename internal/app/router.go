package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-dms/meridian-dms/internal/collection"
	"github.com/meridian-dms/meridian-dms/internal/dispatch"
	"github.com/meridian-dms/meridian-dms/internal/observability"
	"github.com/meridian-dms/meridian-dms/internal/picklist"
	"github.com/meridian-dms/meridian-dms/internal/recon"
	"github.com/meridian-dms/meridian-dms/internal/rgb"
	"github.com/meridian-dms/meridian-dms/internal/sale"
	"github.com/meridian-dms/meridian-dms/internal/stock"
	"github.com/meridian-dms/meridian-dms/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	StockHandler      *stock.Handler
	DispatchHandler   *dispatch.Handler
	SaleHandler       *sale.Handler
	CollectionHandler *collection.Handler
	PickListHandler   *picklist.Handler
	RGBHandler        *rgb.Handler
	ReconHandler      *recon.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/stock", params.StockHandler.MountRoutes)
		r.Route("/dispatches", params.DispatchHandler.MountRoutes)
		r.Route("/sales", params.SaleHandler.MountRoutes)
		r.Route("/collections", params.CollectionHandler.MountRoutes)
		r.Route("/picklists", params.PickListHandler.MountRoutes)
		r.Route("/rgb", params.RGBHandler.MountRoutes)
		r.Route("/recon", params.ReconHandler.MountRoutes)
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
