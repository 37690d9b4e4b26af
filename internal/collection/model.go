// Package collection settles a driver's end-of-day cash submission against
// the value of the dispatch, tracking a running cumulative variance across
// the driver's history.
package collection

import (
	"time"
)

// Note values accepted in a denomination breakdown.
var validNoteValues = map[int]bool{
	1: true, 2: true, 5: true, 10: true, 20: true,
	50: true, 100: true, 200: true, 500: true, 2000: true,
}

// Status represents the lifecycle of a cash collection.
type Status string

const (
	StatusSubmitted  Status = "SUBMITTED"  // Initial; editable and deletable
	StatusVerified   Status = "VERIFIED"   // Supervisor confirmed the count
	StatusReconciled Status = "RECONCILED" // Terminal, financial period closed
	StatusCancelled  Status = "CANCELLED"  // Terminal, unsold stock released
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusSubmitted, StatusVerified, StatusReconciled, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanEdit reports whether the collection may still be updated or deleted.
func (s Status) CanEdit() bool {
	return s == StatusSubmitted
}

// CanVerify checks if the collection can move to VERIFIED.
func (s Status) CanVerify() bool {
	return s == StatusSubmitted
}

// CanReconcile checks if the collection can move to RECONCILED.
func (s Status) CanReconcile() bool {
	return s == StatusVerified
}

// CanCancel checks if the collection can be voided.
func (s Status) CanCancel() bool {
	return s == StatusSubmitted || s == StatusVerified
}

// Denomination is one note value and how many the driver handed in.
type Denomination struct {
	Value int `json:"value" validate:"required,gt=0"`
	Count int `json:"count" validate:"gte=0"`
}

// Collection is one driver's cash submission for one dispatch. All money
// fields are recomputed from the denomination breakdown on every save; a
// client-supplied total is never trusted.
type Collection struct {
	ID           int64          `json:"id" db:"id"`
	CollectionNo string         `json:"collection_no" db:"collection_no"`
	DispatchID   int64          `json:"dispatch_id" db:"dispatch_id"`
	DriverID     int64          `json:"driver_id" db:"driver_id"`
	DriverName   string         `json:"driver_name,omitempty" db:"-"`
	Date         time.Time      `json:"collection_date" db:"collection_date"`
	Status       Status         `json:"status" db:"status"`

	Denominations []Denomination `json:"denominations" db:"denominations"`
	Coins         float64        `json:"coins" db:"coins"`
	CashTotal     float64        `json:"cash_total" db:"cash_total"`
	ChequeTotal   float64        `json:"cheque_total" db:"cheque_total"`
	OnlineTotal   float64        `json:"online_total" db:"online_total"`
	CreditGiven   float64        `json:"credit_given" db:"credit_given"`

	// Recovered amounts against past credit and bounced cheques. They are
	// recorded for the books but sit outside the same-day variance formula.
	CreditRecoveredCash   float64 `json:"credit_recovered_cash" db:"credit_recovered_cash"`
	CreditRecoveredCheque float64 `json:"credit_recovered_cheque" db:"credit_recovered_cheque"`
	BounceRecoveredCash   float64 `json:"bounce_recovered_cash" db:"bounce_recovered_cash"`
	BounceRecoveredCheque float64 `json:"bounce_recovered_cheque" db:"bounce_recovered_cheque"`
	ExpenseAmount         float64 `json:"expense_amount" db:"expense_amount"`
	ExpenseNotes          string  `json:"expense_notes,omitempty" db:"expense_notes"`

	TotalReceived      float64 `json:"total_received" db:"total_received"`
	ExpectedCash       float64 `json:"expected_cash" db:"expected_cash"`
	Variance           float64 `json:"variance" db:"variance"`
	PreviousVariance   float64 `json:"previous_variance" db:"previous_variance"`
	CumulativeVariance float64 `json:"cumulative_variance" db:"cumulative_variance"`

	// Crate movement reported alongside the cash.
	CratesReturnedFull  int `json:"crates_returned_full" db:"crates_returned_full"`
	CratesReturnedEmpty int `json:"crates_returned_empty" db:"crates_returned_empty"`
	EmptyBottles        int `json:"empty_bottles" db:"empty_bottles"`

	Notes             string     `json:"notes,omitempty" db:"notes"`
	VerificationNotes string     `json:"verification_notes,omitempty" db:"verification_notes"`
	VerifiedBy        int64      `json:"verified_by,omitempty" db:"verified_by"`
	VerifiedAt        *time.Time `json:"verified_at,omitempty" db:"verified_at"`
	ReconciledAt      *time.Time `json:"reconciled_at,omitempty" db:"reconciled_at"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelReason      string     `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// DriverStats summarizes one driver's collection history.
type DriverStats struct {
	DriverID           int64   `json:"driver_id"`
	Collections        int     `json:"collections"`
	Submitted          int     `json:"submitted"`
	Verified           int     `json:"verified"`
	Reconciled         int     `json:"reconciled"`
	Cancelled          int     `json:"cancelled"`
	TotalReceived      float64 `json:"total_received"`
	TotalCreditGiven   float64 `json:"total_credit_given"`
	CumulativeVariance float64 `json:"cumulative_variance"`
}

// ListFilter narrows collection listings.
type ListFilter struct {
	DriverID   int64
	DispatchID int64
	Status     Status
	From       time.Time
	To         time.Time
	Page       int
	Limit      int
}

// cashTotal computes the physical cash handed in.
func cashTotal(denoms []Denomination, coins float64) float64 {
	var total float64
	for _, d := range denoms {
		total += float64(d.Value * d.Count)
	}
	return total + coins
}
