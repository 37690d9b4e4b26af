// Package recon ties an extracted manifest's expected monetary total to a
// driver's actual end-of-day collection and classifies the variance.
package recon

import (
	"errors"
	"time"

	"github.com/meridian-dms/meridian-dms/internal/picklist"
)

// Result is one reconciliation outcome, persisted onto the pick list.
type Result struct {
	PickListID    int64                `json:"pick_list_id"`
	CollectionID  int64                `json:"collection_id"`
	ExpectedTotal float64              `json:"expected_total"`
	ActualTotal   float64              `json:"actual_total"`
	Variance      float64              `json:"variance"`
	VariancePct   float64              `json:"variance_pct"`
	Status        picklist.ReconStatus `json:"status"`
	ReconciledAt  time.Time            `json:"reconciled_at"`
}

// Breakdown attributes a reconciliation variance to known causes. The
// residual is what remains after credit extended and the value of full
// crates returned are accounted for.
type Breakdown struct {
	PickListID       int64   `json:"pick_list_id"`
	CollectionID     int64   `json:"collection_id"`
	Variance         float64 `json:"variance"`
	CreditGiven      float64 `json:"credit_given"`
	FullCratesValue  float64 `json:"full_crates_value"`
	Unexplained      float64 `json:"unexplained"`
	// Significant is set when the unexplained residual exceeds the
	// reporting floor.
	Significant bool `json:"significant"`
}

// Stats aggregates reconciliation outcomes across pick lists.
type Stats struct {
	Total         int     `json:"total"`
	Pending       int     `json:"pending"`
	Matched       int     `json:"matched"`
	Excess        int     `json:"excess"`
	Shortage      int     `json:"shortage"`
	TotalExpected float64 `json:"total_expected"`
	TotalActual   float64 `json:"total_actual"`
	TotalVariance float64 `json:"total_variance"`
}

// ReportFilter narrows reconciliation report listings.
type ReportFilter struct {
	Status picklist.ReconStatus
	From   time.Time
	To     time.Time
	Page   int
	Limit  int
}

// Pair is one auto-reconcile candidate: a collection whose dispatch
// references a still-unreconciled pick list.
type Pair struct {
	PickListID   int64
	CollectionID int64
}

// Domain errors for reconciliation.
var (
	// ErrCollectionCancelled means the collection cannot back a reconciliation.
	ErrCollectionCancelled = errors.New("collection is cancelled")
	// ErrNotReconciled means no reconciliation has been recorded yet.
	ErrNotReconciled = errors.New("pick list has not been reconciled")
)
