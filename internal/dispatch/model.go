// Package dispatch provides morning vehicle loading: a driver's daily
// dispatch freezes stock, selling rates and RGB crate counts at the moment
// the truck leaves.
package dispatch

import (
	"time"
)

// Status represents the lifecycle of a dispatch.
type Status string

const (
	StatusActive    Status = "ACTIVE"    // Truck is out, sales draw down item quantities
	StatusCompleted Status = "COMPLETED" // Driver returned, cash collection submitted
	StatusSettled   Status = "SETTLED"   // Collection verified and reconciled
	StatusCancelled Status = "CANCELLED" // Dispatch voided, stock released
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusSettled, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanSell reports whether sales may be recorded against the dispatch.
func (s Status) CanSell() bool {
	return s == StatusActive
}

// CanComplete checks if the dispatch can move to COMPLETED.
func (s Status) CanComplete() bool {
	return s == StatusActive
}

// CanSettle checks if the dispatch can move to SETTLED.
func (s Status) CanSettle() bool {
	return s == StatusCompleted
}

// CanCancel checks if the dispatch can be voided.
func (s Status) CanCancel() bool {
	return s == StatusActive
}

// Note values accepted in a cash float breakdown.
var validNoteValues = map[int]bool{
	1: true, 2: true, 5: true, 10: true, 20: true,
	50: true, 100: true, 200: true, 500: true, 2000: true,
}

// Denomination is one note value and how many of it went out with the
// driver as the morning change float.
type Denomination struct {
	Value int `json:"value" validate:"required,gt=0"`
	Count int `json:"count" validate:"gte=0"`
}

// floatTotal sums a denomination breakdown.
func floatTotal(denoms []Denomination) float64 {
	var total float64
	for _, d := range denoms {
		total += float64(d.Value * d.Count)
	}
	return total
}

// Dispatch is one driver's load for one day.
type Dispatch struct {
	ID           int64      `json:"id" db:"id"`
	DispatchNo   string     `json:"dispatch_no" db:"dispatch_no"`
	DriverID     int64      `json:"driver_id" db:"driver_id"`
	DriverName   string     `json:"driver_name,omitempty" db:"-"`
	DispatchDate time.Time  `json:"dispatch_date" db:"dispatch_date"`
	Status       Status     `json:"status" db:"status"`
	// PickListID links the dispatch to the extracted manifest it was
	// loaded from, when one exists.
	PickListID   *int64     `json:"pick_list_id,omitempty" db:"pick_list_id"`
	TotalValue   float64    `json:"total_value" db:"total_value"`
	// TotalCashValue is the change float handed to the driver, derived
	// from the denomination breakdown at creation.
	TotalCashValue float64      `json:"total_cash_value" db:"total_cash_value"`
	CashFloat      []Denomination `json:"cash_float,omitempty" db:"-"`
	CratesLoaded   int            `json:"crates_loaded" db:"crates_loaded"`
	Notes        string     `json:"notes,omitempty" db:"notes"`
	CreatedBy    int64      `json:"created_by" db:"created_by"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	SettledAt    *time.Time `json:"settled_at,omitempty" db:"settled_at"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelReason string     `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	Items        []Item     `json:"items,omitempty" db:"-"`
}

// Item is one product line on a dispatch. Rate is frozen at creation; every
// sale against the dispatch consumes Remaining at that rate regardless of
// later price changes.
type Item struct {
	ID         int64   `json:"id" db:"id"`
	DispatchID int64   `json:"dispatch_id" db:"dispatch_id"`
	ProductID  int64   `json:"product_id" db:"product_id"`
	ProductName string `json:"product_name,omitempty" db:"-"`
	Quantity   float64 `json:"quantity" db:"quantity"`
	Remaining  float64 `json:"remaining" db:"remaining"`
	Rate       float64 `json:"rate" db:"rate"`
	Value      float64 `json:"value" db:"value"`
	UnitCost   float64 `json:"unit_cost" db:"unit_cost"`
}

// Stats aggregates dispatch activity over a period.
type Stats struct {
	Total      int     `json:"total"`
	Active     int     `json:"active"`
	Completed  int     `json:"completed"`
	Settled    int     `json:"settled"`
	Cancelled  int     `json:"cancelled"`
	TotalValue float64 `json:"total_value"`
}

// ListFilter narrows dispatch listings.
type ListFilter struct {
	DriverID int64
	Status   Status
	From     time.Time
	To       time.Time
	Page     int
	Limit    int
}
