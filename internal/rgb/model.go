// Package rgb tracks returnable crates per load-out: loaded vs sold vs
// returned, with a monetary penalty on missing empties.
package rgb

import "time"

// Status is the lifecycle state of a crate tracking record.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSubmitted Status = "SUBMITTED"
	StatusVerified  Status = "VERIFIED"
	StatusSettled   Status = "SETTLED"
	StatusDisputed  Status = "DISPUTED"
)

// IsValid reports whether the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSubmitted, StatusVerified, StatusSettled, StatusDisputed:
		return true
	}
	return false
}

// CanUpdate reports whether return counts may still be re-submitted.
func (s Status) CanUpdate() bool { return s == StatusPending || s == StatusSubmitted }

// CanVerify reports whether the record can move to Verified.
func (s Status) CanVerify() bool { return s == StatusSubmitted }

// CanSettle reports whether the record can move to Settled.
func (s Status) CanSettle() bool { return s == StatusVerified }

// CanDispute reports whether the record can enter the disputed branch.
func (s Status) CanDispute() bool {
	return s == StatusPending || s == StatusSubmitted || s == StatusVerified
}

// CanResolve reports whether a dispute can be manually resolved.
func (s Status) CanResolve() bool { return s == StatusDisputed }

// Tracking is one crate settlement for a pick list and driver.
//
// CratesLoaded, ReturnedFull and ReturnedEmpty are the authoritative
// inputs; SoldCrates, ExpectedEmpty, MissingEmpty and PenaltyAmount are
// derived and recomputed on every save.
type Tracking struct {
	ID         int64 `json:"id" db:"id"`
	PickListID int64 `json:"pick_list_id" db:"pick_list_id"`
	DriverID   int64 `json:"driver_id" db:"driver_id"`

	CratesLoaded  int `json:"crates_loaded" db:"crates_loaded"`
	ReturnedFull  int `json:"returned_full" db:"returned_full"`
	ReturnedEmpty int `json:"returned_empty" db:"returned_empty"`

	SoldCrates    int     `json:"sold_crates" db:"sold_crates"`
	ExpectedEmpty int     `json:"expected_empty" db:"expected_empty"`
	MissingEmpty  int     `json:"missing_empty" db:"missing_empty"`
	UnitValue     float64 `json:"unit_value" db:"unit_value"`
	PenaltyAmount float64 `json:"penalty_amount" db:"penalty_amount"`

	// ReleasedFull counts full crates already sent back to the batch
	// ledger, so a re-submission only releases the increment.
	ReleasedFull int `json:"released_full" db:"released_full"`

	Status        Status `json:"status" db:"status"`
	DisputeReason string `json:"dispute_reason,omitempty" db:"dispute_reason"`
	Notes         string `json:"notes,omitempty" db:"notes"`

	VerifiedBy *int64     `json:"verified_by,omitempty" db:"verified_by"`
	VerifiedAt *time.Time `json:"verified_at,omitempty" db:"verified_at"`
	SettledAt  *time.Time `json:"settled_at,omitempty" db:"settled_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	Items []ItemShare `json:"items,omitempty" db:"-"`
}

// recompute derives the four dependent quantities from the authoritative
// inputs. Derived fields are never mutated anywhere else.
func (t *Tracking) recompute() {
	sold := t.CratesLoaded - t.ReturnedFull
	if sold < 0 {
		sold = 0
	}
	t.SoldCrates = sold
	t.ExpectedEmpty = sold
	missing := sold - t.ReturnedEmpty
	if missing < 0 {
		missing = 0
	}
	t.MissingEmpty = missing
	t.PenaltyAmount = float64(missing) * t.UnitValue
}

// ItemShare is one pick-list line's apportioned share of the crate
// settlement. Shares use floor division on the line's fraction of the
// total loaded quantity; the rounding residual goes to the largest line
// so the shares always sum to the record totals.
type ItemShare struct {
	ID             int64   `json:"id" db:"id"`
	TrackingID     int64   `json:"tracking_id" db:"tracking_id"`
	PickListItemID int64   `json:"pick_list_item_id" db:"pick_list_item_id"`
	ItemCode       string  `json:"item_code" db:"item_code"`
	ItemName       string  `json:"item_name" db:"item_name"`
	LoadedQty      float64 `json:"loaded_qty" db:"loaded_qty"`
	FullShare      int     `json:"full_share" db:"full_share"`
	EmptyShare     int     `json:"empty_share" db:"empty_share"`
	MissingShare   int     `json:"missing_share" db:"missing_share"`
	// PenaltyRate is 10% of the resolved product's unit price, or the
	// record's crate value when the item code does not resolve.
	PenaltyRate float64 `json:"penalty_rate" db:"penalty_rate"`
	Penalty     float64 `json:"penalty" db:"penalty"`
}

// Stats aggregates crate tracking records.
type Stats struct {
	Total         int     `json:"total"`
	Pending       int     `json:"pending"`
	Submitted     int     `json:"submitted"`
	Verified      int     `json:"verified"`
	Settled       int     `json:"settled"`
	Disputed      int     `json:"disputed"`
	CratesLoaded  int     `json:"crates_loaded"`
	MissingEmpty  int     `json:"missing_empty"`
	TotalPenalty  float64 `json:"total_penalty"`
	ReturnedFull  int     `json:"returned_full"`
	ReturnedEmpty int     `json:"returned_empty"`
}

// ListFilter narrows tracking listings.
type ListFilter struct {
	DriverID int64
	Status   Status
	From     time.Time
	To       time.Time
	Page     int
	Limit    int
}
