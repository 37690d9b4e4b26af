package dispatch

import "errors"

// Domain errors for dispatches.
var (
	// ErrNotFound indicates the requested dispatch was not found.
	ErrNotFound = errors.New("dispatch not found")

	// ErrActiveExists means the driver already has an active dispatch for
	// the date. One truck, one load.
	ErrActiveExists = errors.New("driver already has an active dispatch for this date")

	// Status transition errors.
	ErrCannotComplete = errors.New("cannot complete dispatch in current status")
	ErrCannotSettle   = errors.New("cannot settle dispatch in current status")
	ErrCannotCancel   = errors.New("cannot cancel dispatch in current status")

	// Validation errors.
	ErrEmptyItems       = errors.New("at least one item is required")
	ErrInvalidQuantity  = errors.New("item quantity must be greater than zero")
	ErrDuplicateProduct = errors.New("product appears more than once")
	ErrReasonRequired   = errors.New("cancellation reason is required")
	ErrInvalidNoteValue = errors.New("unknown note denomination")
	ErrNegativeFloat    = errors.New("cash float counts cannot be negative")

	// Business rule errors.
	ErrDriverInactive  = errors.New("driver is not active")
	ErrProductInactive = errors.New("product is not active")
)
