// Package picklist stores externally extracted load-out manifests and runs
// warehouse stock reduction against them. The extraction itself happens
// outside this system; this is the boundary where its output lands.
package picklist

import (
	"errors"
	"time"
)

// ReconStatus classifies a reconciliation outcome written back onto the
// manifest.
type ReconStatus string

const (
	ReconPending  ReconStatus = "PENDING"
	ReconMatched  ReconStatus = "MATCHED"
	ReconExcess   ReconStatus = "EXCESS"
	ReconShortage ReconStatus = "SHORTAGE"
)

// PickList is one extracted manifest.
type PickList struct {
	ID           int64     `json:"id" db:"id"`
	Number       string    `json:"number" db:"number"`
	Vehicle      string    `json:"vehicle" db:"vehicle"`
	Route        string    `json:"route,omitempty" db:"route"`
	Salesman     string    `json:"salesman,omitempty" db:"salesman"`
	LoadOutDate  time.Time `json:"load_out_date" db:"load_out_date"`
	CratesLoaded int       `json:"crates_loaded" db:"crates_loaded"`
	// ExpectedTotal is the manifest's own monetary total as extracted.
	ExpectedTotal float64 `json:"expected_total" db:"expected_total"`

	StockReduced bool       `json:"stock_reduced" db:"stock_reduced"`
	ReducedAt    *time.Time `json:"reduced_at,omitempty" db:"reduced_at"`

	// Reconciliation write-backs; see the recon package.
	ReconStatus       ReconStatus `json:"recon_status" db:"recon_status"`
	ReconExpected     float64     `json:"recon_expected" db:"recon_expected"`
	ReconActual       float64     `json:"recon_actual" db:"recon_actual"`
	ReconVariance     float64     `json:"recon_variance" db:"recon_variance"`
	ReconVariancePct  float64     `json:"recon_variance_pct" db:"recon_variance_pct"`
	ReconCollectionID int64       `json:"recon_collection_id,omitempty" db:"recon_collection_id"`
	ReconciledAt      *time.Time  `json:"reconciled_at,omitempty" db:"reconciled_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
	Items     []Item    `json:"items,omitempty" db:"-"`
}

// Item is one extracted manifest line. SellQty is the sellable quantity
// printed on the sheet; LoQty is the load-out quantity actually put on the
// vehicle, and it is what stock reduction and crate apportionment run on.
type Item struct {
	ID         int64   `json:"id" db:"id"`
	PickListID int64   `json:"pick_list_id" db:"pick_list_id"`
	ItemCode   string  `json:"item_code" db:"item_code"`
	ItemName   string  `json:"item_name" db:"item_name"`
	SellQty    float64 `json:"sell_qty" db:"sell_qty"`
	LoQty      float64 `json:"lo_qty" db:"lo_qty"`
	MRP        float64 `json:"mrp" db:"mrp"`
	// ReducedQty records how much warehouse stock this line actually
	// consumed, so a reversal releases exactly what was taken.
	ReducedQty float64 `json:"reduced_qty" db:"reduced_qty"`
}

// ReductionLine reports the stock-reduction outcome for one item.
type ReductionLine struct {
	ItemCode  string  `json:"item_code"`
	ItemName  string  `json:"item_name"`
	Requested float64 `json:"requested"`
	Reduced   float64 `json:"reduced"`
	Short     float64 `json:"short"`
	Note      string  `json:"note,omitempty"`
}

// ReductionReport summarizes a stock-reduction run.
type ReductionReport struct {
	PickListID   int64           `json:"pick_list_id"`
	AlreadyDone  bool            `json:"already_done"`
	FullyReduced bool            `json:"fully_reduced"`
	Lines        []ReductionLine `json:"lines"`
}

// ListFilter narrows pick list listings.
type ListFilter struct {
	Vehicle string
	From    time.Time
	To      time.Time
	Page    int
	Limit   int
}

// Domain errors for pick lists.
var (
	// ErrNotFound indicates the requested pick list was not found.
	ErrNotFound = errors.New("pick list not found")
	// ErrDuplicateNumber means the manifest number was already ingested.
	ErrDuplicateNumber = errors.New("pick list number already exists")
	// ErrEmptyItems indicates a manifest with no lines.
	ErrEmptyItems = errors.New("at least one item is required")
	// ErrNotReduced means a reversal was requested before any reduction.
	ErrNotReduced = errors.New("pick list stock has not been reduced")
)
