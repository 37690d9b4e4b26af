package sale

// RecordRequest is the payload for recording a sale.
type RecordRequest struct {
	DispatchID   int64               `json:"dispatch_id" validate:"required,gt=0"`
	DriverID     int64               `json:"driver_id" validate:"required,gt=0"`
	RetailerID   int64               `json:"retailer_id" validate:"required,gt=0"`
	CashAmount   float64             `json:"cash_amount" validate:"gte=0"`
	CreditAmount float64             `json:"credit_amount" validate:"gte=0"`
	Cheques      []ChequeRequest     `json:"cheques,omitempty" validate:"dive"`
	EmptyBottles int                 `json:"empty_bottles" validate:"gte=0"`
	Notes        string              `json:"notes,omitempty" validate:"max=500"`
	Items        []RecordItemRequest `json:"items" validate:"required,min=1,dive"`
}

// ChequeRequest is one cheque entry on a record request. PhotoURL points at
// the scanned cheque uploaded out of band.
type ChequeRequest struct {
	Number   string  `json:"number" validate:"required,max=64"`
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	PhotoURL string  `json:"photo_url,omitempty" validate:"max=512"`
}

// RecordItemRequest is one product line on a record request. No rate field:
// the dispatch's frozen rate always applies.
type RecordItemRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
}

// ListResponse wraps a sale page.
type ListResponse struct {
	Sales []Sale `json:"sales"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}
