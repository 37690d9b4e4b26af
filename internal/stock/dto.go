package stock

import "time"

// CreateBatchRequest is the intake payload.
type CreateBatchRequest struct {
	ProductID    int64   `json:"product_id" validate:"required,gt=0"`
	BatchNo      string  `json:"batch_no" validate:"required,max=64"`
	Quantity     float64 `json:"quantity" validate:"required,gt=0"`
	PurchaseRate float64 `json:"purchase_rate" validate:"gte=0"`
	SellingRate  float64 `json:"selling_rate" validate:"gte=0"`
	ReceivedAt   string  `json:"received_at,omitempty"`
	ExpiresAt    string  `json:"expires_at,omitempty"`
}

// WriteOffRequest marks batch quantity as damaged.
type WriteOffRequest struct {
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
	Reason   string  `json:"reason" validate:"required,max=255"`
	ActorID  int64   `json:"actor_id" validate:"required,gt=0"`
}

// parseDate accepts the 2006-01-02 form used throughout the API.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}
