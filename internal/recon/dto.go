package recon

// ReconcileRequest pairs a pick list with the collection settling it.
type ReconcileRequest struct {
	PickListID   int64 `json:"pick_list_id" validate:"required,gt=0"`
	CollectionID int64 `json:"collection_id" validate:"required,gt=0"`
}

// AutoReconcileRequest triggers a sweep for one date.
type AutoReconcileRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

// AutoReconcileResponse reports a sweep's outcome.
type AutoReconcileResponse struct {
	Date       string `json:"date"`
	Reconciled int    `json:"reconciled"`
}

// ReportsResponse wraps a reconciliation report page.
type ReportsResponse struct {
	Reports []ReportEntry `json:"reports"`
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	Limit   int           `json:"limit"`
}

// ReportEntry is one reconciled pick list in a report listing.
type ReportEntry struct {
	PickListID   int64   `json:"pick_list_id"`
	Number       string  `json:"number"`
	Vehicle      string  `json:"vehicle"`
	LoadOutDate  string  `json:"load_out_date"`
	Status       string  `json:"status"`
	Expected     float64 `json:"expected"`
	Actual       float64 `json:"actual"`
	Variance     float64 `json:"variance"`
	VariancePct  float64 `json:"variance_pct"`
	CollectionID int64   `json:"collection_id,omitempty"`
}
