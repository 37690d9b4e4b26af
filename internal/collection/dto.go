package collection

// SubmitRequest is the end-of-day submission payload. Amount fields carry
// the raw counts and instrument totals; every derived figure is computed
// server-side.
type SubmitRequest struct {
	DispatchID    int64          `json:"dispatch_id" validate:"required,gt=0"`
	DriverID      int64          `json:"driver_id" validate:"required,gt=0"`
	Denominations []Denomination `json:"denominations" validate:"dive"`
	Coins         float64        `json:"coins" validate:"gte=0"`
	ChequeTotal   float64        `json:"cheque_total" validate:"gte=0"`
	OnlineTotal   float64        `json:"online_total" validate:"gte=0"`
	CreditGiven   float64        `json:"credit_given" validate:"gte=0"`

	CreditRecoveredCash   float64 `json:"credit_recovered_cash" validate:"gte=0"`
	CreditRecoveredCheque float64 `json:"credit_recovered_cheque" validate:"gte=0"`
	BounceRecoveredCash   float64 `json:"bounce_recovered_cash" validate:"gte=0"`
	BounceRecoveredCheque float64 `json:"bounce_recovered_cheque" validate:"gte=0"`
	ExpenseAmount         float64 `json:"expense_amount" validate:"gte=0"`
	ExpenseNotes          string  `json:"expense_notes,omitempty" validate:"max=500"`

	CratesReturnedFull  int    `json:"crates_returned_full" validate:"gte=0"`
	CratesReturnedEmpty int    `json:"crates_returned_empty" validate:"gte=0"`
	EmptyBottles        int    `json:"empty_bottles" validate:"gte=0"`
	Notes               string `json:"notes,omitempty" validate:"max=500"`
}

// UpdateRequest edits a submitted collection. The same shape as the
// original submission minus the dispatch/driver binding, which is fixed.
type UpdateRequest struct {
	Denominations []Denomination `json:"denominations" validate:"dive"`
	Coins         float64        `json:"coins" validate:"gte=0"`
	ChequeTotal   float64        `json:"cheque_total" validate:"gte=0"`
	OnlineTotal   float64        `json:"online_total" validate:"gte=0"`
	CreditGiven   float64        `json:"credit_given" validate:"gte=0"`

	CreditRecoveredCash   float64 `json:"credit_recovered_cash" validate:"gte=0"`
	CreditRecoveredCheque float64 `json:"credit_recovered_cheque" validate:"gte=0"`
	BounceRecoveredCash   float64 `json:"bounce_recovered_cash" validate:"gte=0"`
	BounceRecoveredCheque float64 `json:"bounce_recovered_cheque" validate:"gte=0"`
	ExpenseAmount         float64 `json:"expense_amount" validate:"gte=0"`
	ExpenseNotes          string  `json:"expense_notes,omitempty" validate:"max=500"`

	CratesReturnedFull  int    `json:"crates_returned_full" validate:"gte=0"`
	CratesReturnedEmpty int    `json:"crates_returned_empty" validate:"gte=0"`
	EmptyBottles        int    `json:"empty_bottles" validate:"gte=0"`
	Notes               string `json:"notes,omitempty" validate:"max=500"`
}

// VerifyRequest confirms a counted collection.
type VerifyRequest struct {
	Notes string `json:"notes,omitempty" validate:"max=500"`
}

// CancelRequest voids a collection.
type CancelRequest struct {
	Reason string `json:"reason" validate:"required,min=5,max=255"`
}

// ListResponse wraps a collection page.
type ListResponse struct {
	Collections []Collection `json:"collections"`
	Total       int          `json:"total"`
	Page        int          `json:"page"`
	Limit       int          `json:"limit"`
}
