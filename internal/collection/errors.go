package collection

import "errors"

// Domain errors for cash collections.
var (
	// ErrNotFound indicates the requested collection was not found.
	ErrNotFound = errors.New("collection not found")

	// ErrDuplicate means the dispatch already has a collection. One
	// dispatch, one settlement.
	ErrDuplicate = errors.New("dispatch already has a collection")

	// ErrDriverMismatch means the submitting driver does not own the
	// dispatch.
	ErrDriverMismatch = errors.New("driver does not own this dispatch")

	// ErrDispatchNotCollectable means the dispatch is not in a status that
	// accepts a collection.
	ErrDispatchNotCollectable = errors.New("dispatch cannot be collected in current status")

	// Status transition errors.
	ErrNotEditable      = errors.New("collection can only be changed while submitted")
	ErrCannotVerify     = errors.New("cannot verify collection in current status")
	ErrCannotReconcile  = errors.New("cannot reconcile collection in current status")
	ErrCannotCancel     = errors.New("cannot cancel collection in current status")

	// Validation errors.
	ErrNegativeAmount   = errors.New("amounts cannot be negative")
	ErrInvalidNoteValue = errors.New("unknown note denomination")
	ErrReasonRequired   = errors.New("cancellation reason is required")
)
