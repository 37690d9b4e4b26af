package rgb

// ProcessRequest carries one crate return submission from a driver.
type ProcessRequest struct {
	PickListID    int64   `json:"pick_list_id" validate:"required,gt=0"`
	DriverID      int64   `json:"driver_id" validate:"required,gt=0"`
	ReturnedFull  int     `json:"returned_full" validate:"gte=0"`
	ReturnedEmpty int     `json:"returned_empty" validate:"gte=0"`
	UnitValue     float64 `json:"unit_value,omitempty" validate:"gte=0"`
	Notes         string  `json:"notes,omitempty" validate:"max=500"`
}

// DisputeRequest opens the disputed branch.
type DisputeRequest struct {
	Reason string `json:"reason" validate:"required,min=5,max=500"`
}

// ResolveRequest closes a dispute to a concrete status.
type ResolveRequest struct {
	Status string `json:"status" validate:"required,oneof=VERIFIED SETTLED"`
	Notes  string `json:"notes,omitempty" validate:"max=500"`
}

// ListResponse wraps a tracking page.
type ListResponse struct {
	Trackings []Tracking `json:"trackings"`
	Total     int        `json:"total"`
	Page      int        `json:"page"`
	Limit     int        `json:"limit"`
}
