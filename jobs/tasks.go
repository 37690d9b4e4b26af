// Package jobs carries the asynq task definitions and the worker runtime
// for background processing.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReconAuto sweeps a day's unreconciled collections against
	// their pick lists.
	TaskReconAuto = "recon:auto"
	// TaskStockLowScan computes low-stock alerts and warms the stock
	// summary cache.
	TaskStockLowScan = "stock:lowscan"
)

// ReconAutoPayload selects the date to sweep. An empty date means
// yesterday, which is what the nightly schedule wants.
type ReconAutoPayload struct {
	Date string `json:"date,omitempty"`
}

// ResolveDate returns the payload's date, defaulting to yesterday UTC.
func (p ReconAutoPayload) ResolveDate(now time.Time) (time.Time, error) {
	if p.Date == "" {
		y := now.UTC().AddDate(0, 0, -1)
		return time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse("2006-01-02", p.Date)
}

// NewReconAutoTask constructs an auto-reconcile task.
func NewReconAutoTask(payload ReconAutoPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconAuto, data), nil
}

// StockLowScanPayload is empty today; the threshold comes from config.
type StockLowScanPayload struct{}

// NewStockLowScanTask constructs a low-stock scan task.
func NewStockLowScanTask() (*asynq.Task, error) {
	data, err := json.Marshal(StockLowScanPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockLowScan, data), nil
}
