package picklist

// IngestRequest is the extractor's output for one manifest.
type IngestRequest struct {
	Number        string              `json:"number" validate:"required,max=64"`
	Vehicle       string              `json:"vehicle" validate:"required,max=64"`
	Route         string              `json:"route,omitempty" validate:"max=128"`
	Salesman      string              `json:"salesman,omitempty" validate:"max=128"`
	LoadOutDate   string              `json:"load_out_date,omitempty"`
	CratesLoaded  int                 `json:"crates_loaded" validate:"gte=0"`
	ExpectedTotal float64             `json:"expected_total" validate:"gte=0"`
	Items         []IngestItemRequest `json:"items" validate:"required,min=1,dive"`
}

// IngestItemRequest is one extracted manifest line.
type IngestItemRequest struct {
	ItemCode string  `json:"item_code" validate:"required,max=64"`
	ItemName string  `json:"item_name,omitempty" validate:"max=128"`
	SellQty  float64 `json:"sell_qty" validate:"gte=0"`
	LoQty    float64 `json:"lo_qty" validate:"gte=0"`
	MRP      float64 `json:"mrp" validate:"gte=0"`
}

// ListResponse wraps a pick list page.
type ListResponse struct {
	PickLists []PickList `json:"pick_lists"`
	Total     int        `json:"total"`
	Page      int        `json:"page"`
	Limit     int        `json:"limit"`
}
