package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-dms/meridian-dms/internal/jobs"
	"github.com/meridian-dms/meridian-dms/internal/recon"
)

// ReconAutoJob processes nightly auto-reconcile sweeps.
type ReconAutoJob struct {
	service *recon.Service
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewReconAutoJob constructs a job handler. Metrics may be nil.
func NewReconAutoJob(service *recon.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconAutoJob {
	return &ReconAutoJob{service: service, logger: logger, metrics: metrics}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *ReconAutoJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload ReconAutoPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	date, err := payload.ResolveDate(time.Now())
	if err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics.Track(TaskReconAuto)
	n, err := j.service.AutoReconcile(ctx, date)
	if err != nil {
		_ = tracker.End(err)
		j.logger.Error("auto-reconcile sweep",
			slog.String("date", date.Format("2006-01-02")), slog.Any("error", err))
		return err
	}
	j.metrics.AddReconciled(n)
	j.logger.Info("auto-reconcile sweep done",
		slog.String("date", date.Format("2006-01-02")), slog.Int("reconciled", n))
	return tracker.End(nil)
}
