package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-dms/meridian-dms/internal/jobs"
	"github.com/meridian-dms/meridian-dms/internal/stock"
)

// StockLowScanJob computes low-stock alerts and warms the summary cache.
type StockLowScanJob struct {
	service *stock.Service
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewStockLowScanJob constructs a job handler. Metrics may be nil.
func NewStockLowScanJob(service *stock.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockLowScanJob {
	return &StockLowScanJob{service: service, logger: logger, metrics: metrics}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *StockLowScanJob) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := j.metrics.Track(TaskStockLowScan)
	alerts, err := j.service.LowStockAlerts(ctx)
	if err != nil {
		j.logger.Error("low stock scan", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics.SetLowStock(len(alerts))
	for _, a := range alerts {
		j.logger.Warn("low stock",
			slog.Int64("product_id", a.ProductID),
			slog.String("product", a.ProductName),
			slog.Float64("remaining", a.Remaining))
	}

	// Summary goes through the cache layer, leaving it warm for the
	// morning dashboard reads.
	if _, err := j.service.Summary(ctx); err != nil {
		j.logger.Error("summary warmup", slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger.Info("low stock scan done", slog.Int("alerts", len(alerts)))
	return tracker.End(nil)
}
