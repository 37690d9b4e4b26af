package dispatch

// CreateRequest is the payload for creating a dispatch.
type CreateRequest struct {
	DriverID     int64               `json:"driver_id" validate:"required,gt=0"`
	DispatchDate string              `json:"dispatch_date,omitempty"`
	PickListID   *int64              `json:"pick_list_id,omitempty"`
	CratesLoaded int                 `json:"crates_loaded" validate:"gte=0"`
	CashFloat    []Denomination      `json:"cash_float,omitempty" validate:"dive"`
	Notes        string              `json:"notes,omitempty" validate:"max=500"`
	Items        []CreateItemRequest `json:"items" validate:"required,min=1,dive"`
}

// CreateItemRequest is one product line on a create request.
type CreateItemRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
}

// CancelRequest voids an active dispatch.
type CancelRequest struct {
	Reason string `json:"reason" validate:"required,min=5,max=255"`
}

// ListResponse wraps a dispatch page.
type ListResponse struct {
	Dispatches []Dispatch `json:"dispatches"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
}
