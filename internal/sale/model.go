// Package sale records van sales made against a driver's active dispatch.
// Every sale consumes dispatch item quantity at the rate frozen when the
// truck was loaded.
package sale

import (
	"time"
)

// Sale is one retailer transaction drawn from a dispatch.
type Sale struct {
	ID           int64      `json:"id" db:"id"`
	SaleNo       string     `json:"sale_no" db:"sale_no"`
	DispatchID   int64      `json:"dispatch_id" db:"dispatch_id"`
	DriverID     int64      `json:"driver_id" db:"driver_id"`
	RetailerID   int64      `json:"retailer_id" db:"retailer_id"`
	RetailerName string     `json:"retailer_name,omitempty" db:"-"`
	SaleDate     time.Time  `json:"sale_date" db:"sale_date"`
	TotalAmount  float64    `json:"total_amount" db:"total_amount"`
	CashAmount   float64    `json:"cash_amount" db:"cash_amount"`
	ChequeAmount float64    `json:"cheque_amount" db:"cheque_amount"`
	CreditAmount float64    `json:"credit_amount" db:"credit_amount"`
	// TotalPaid is cash plus the sum of cheque amounts; the gap to
	// TotalAmount is the credit extended to the retailer.
	TotalPaid    float64    `json:"total_paid" db:"total_paid"`
	EmptyBottles int        `json:"empty_bottles" db:"empty_bottles"`
	Notes        string     `json:"notes,omitempty" db:"notes"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	Items        []Item     `json:"items,omitempty" db:"-"`
	Cheques      []Cheque   `json:"cheques,omitempty" db:"-"`
}

// Cheque is one cheque handed over against a sale, with a reference to the
// scanned evidence photo.
type Cheque struct {
	ID       int64   `json:"id" db:"id"`
	SaleID   int64   `json:"sale_id" db:"sale_id"`
	Number   string  `json:"number" db:"number"`
	Amount   float64 `json:"amount" db:"amount"`
	PhotoURL string  `json:"photo_url,omitempty" db:"photo_url"`
}

// Item is one product line on a sale. Rate is copied from the dispatch
// item, never from the request.
type Item struct {
	ID          int64   `json:"id" db:"id"`
	SaleID      int64   `json:"sale_id" db:"sale_id"`
	ProductID   int64   `json:"product_id" db:"product_id"`
	ProductName string  `json:"product_name,omitempty" db:"-"`
	Quantity    float64 `json:"quantity" db:"quantity"`
	Rate        float64 `json:"rate" db:"rate"`
	Amount      float64 `json:"amount" db:"amount"`
}

// DailySummary aggregates one driver's sales for a day.
type DailySummary struct {
	DriverID    int64   `json:"driver_id"`
	Date        string  `json:"date"`
	Sales        int     `json:"sales"`
	TotalAmount  float64 `json:"total_amount"`
	CashAmount   float64 `json:"cash_amount"`
	ChequeAmount float64 `json:"cheque_amount"`
	CreditAmount float64 `json:"credit_amount"`
}

// SettlementLine compares loaded vs sold quantity for one dispatch item.
type SettlementLine struct {
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	Loaded      float64 `json:"loaded"`
	Sold        float64 `json:"sold"`
	Remaining   float64 `json:"remaining"`
	Rate        float64 `json:"rate"`
	SoldValue   float64 `json:"sold_value"`
}

// SettlementReport is the end-of-day picture for one dispatch.
type SettlementReport struct {
	DispatchID   int64            `json:"dispatch_id"`
	DispatchNo   string           `json:"dispatch_no"`
	DriverID     int64            `json:"driver_id"`
	Lines        []SettlementLine `json:"lines"`
	TotalSales   float64          `json:"total_sales"`
	CashAmount   float64          `json:"cash_amount"`
	ChequeAmount float64          `json:"cheque_amount"`
	CreditAmount float64          `json:"credit_amount"`
}

// ListFilter narrows sale listings.
type ListFilter struct {
	DispatchID int64
	DriverID   int64
	RetailerID int64
	From       time.Time
	To         time.Time
	Page       int
	Limit      int
}
