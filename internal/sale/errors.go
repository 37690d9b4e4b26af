package sale

import "errors"

// Domain errors for sales.
var (
	// ErrNotFound indicates the requested sale was not found.
	ErrNotFound = errors.New("sale not found")

	// ErrDispatchNotSellable means the dispatch is not in a status that
	// accepts sales.
	ErrDispatchNotSellable = errors.New("dispatch does not accept sales in current status")

	// ErrDriverMismatch means the sale names a driver who does not own the
	// dispatch.
	ErrDriverMismatch = errors.New("driver does not own this dispatch")

	// ErrProductNotOnDispatch means the sold product was never loaded.
	ErrProductNotOnDispatch = errors.New("product is not on the dispatch")

	// ErrInsufficientDispatchStock means the truck no longer carries enough
	// of the product.
	ErrInsufficientDispatchStock = errors.New("insufficient quantity remaining on dispatch")

	// Validation errors.
	ErrEmptyItems      = errors.New("at least one item is required")
	ErrInvalidQuantity = errors.New("item quantity must be greater than zero")
	ErrPaymentMismatch = errors.New("cash plus cheques plus credit must equal the sale total")
	ErrNegativePayment = errors.New("payment amounts cannot be negative")
	ErrInvalidCheque   = errors.New("cheque entries need a number and a positive amount")

	// ErrRetailerInactive means the retailer exists but no longer trades.
	ErrRetailerInactive = errors.New("retailer is not active")
)
