package rgb

import "errors"

var (
	// ErrNotFound indicates the tracking record was not found.
	ErrNotFound = errors.New("rgb tracking not found")
	// ErrNotEditable means return counts can no longer be re-submitted.
	ErrNotEditable = errors.New("rgb tracking can no longer be updated")
	// ErrCannotVerify indicates an invalid transition to Verified.
	ErrCannotVerify = errors.New("rgb tracking cannot be verified in its current status")
	// ErrCannotSettle indicates an invalid transition to Settled.
	ErrCannotSettle = errors.New("rgb tracking cannot be settled in its current status")
	// ErrCannotDispute indicates the record is terminal.
	ErrCannotDispute = errors.New("rgb tracking cannot be disputed in its current status")
	// ErrNotDisputed means resolution was requested on a non-disputed record.
	ErrNotDisputed = errors.New("rgb tracking is not disputed")
	// ErrInvalidResolution means the dispute resolution target is not allowed.
	ErrInvalidResolution = errors.New("dispute must resolve to verified or settled")
	// ErrNegativeCount indicates a negative crate count.
	ErrNegativeCount = errors.New("crate counts must not be negative")
	// ErrReasonRequired indicates a missing dispute reason.
	ErrReasonRequired = errors.New("a dispute reason is required")
	// ErrDriverMismatch means the driver does not own the pick list's load.
	ErrDriverMismatch = errors.New("driver does not match the tracking record")
)
