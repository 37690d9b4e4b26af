// Package stock maintains per-product batches of received inventory and
// performs FIFO allocation and release of quantities.
package stock

import (
	"errors"
	"time"
)

// Batch is a discrete lot of stock received on one date with one cost and
// expiry. Remaining never exceeds Received and never goes negative.
type Batch struct {
	ID           int64      `json:"id"`
	ProductID    int64      `json:"product_id"`
	BatchNo      string     `json:"batch_no"`
	Received     float64    `json:"received"`
	Remaining    float64    `json:"remaining"`
	PurchaseRate float64    `json:"purchase_rate"`
	SellingRate  float64    `json:"selling_rate"`
	TotalValue   float64    `json:"total_value"`
	ReceivedAt   time.Time  `json:"received_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	IsDamaged    bool       `json:"is_damaged"`
	DamageReason string     `json:"damage_reason,omitempty"`
	DamagedQty   float64    `json:"damaged_qty,omitempty"`
	DamagedBy    int64      `json:"damaged_by,omitempty"`
	DamagedAt    *time.Time `json:"damaged_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// AllocationLine records a deduction taken from one batch.
type AllocationLine struct {
	BatchID  int64   `json:"batch_id"`
	BatchNo  string  `json:"batch_no"`
	Quantity float64 `json:"quantity"`
	UnitCost float64 `json:"unit_cost"`
}

// Allocation is the result of a FIFO allocation: the per-batch deduction
// plan plus the quantity-weighted effective unit cost.
type Allocation struct {
	ProductID int64            `json:"product_id"`
	Quantity  float64          `json:"quantity"`
	UnitCost  float64          `json:"unit_cost"`
	Lines     []AllocationLine `json:"lines"`
}

// Availability lists a product's open batches in FIFO order.
type Availability struct {
	ProductID      int64   `json:"product_id"`
	TotalAvailable float64 `json:"total_available"`
	Batches        []Batch `json:"batches"`
}

// ProductSummary aggregates open stock per product.
type ProductSummary struct {
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	ProductSize string  `json:"product_size"`
	Quantity    float64 `json:"quantity"`
	Value       float64 `json:"value"`
	Batches     int     `json:"batches"`
}

// LowStockAlert flags a product whose total remaining quantity fell under
// the configured threshold.
type LowStockAlert struct {
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	Remaining   float64 `json:"remaining"`
}

// IntakeStats aggregates intake activity over a period.
type IntakeStats struct {
	TotalValue        float64 `json:"total_value"`
	QuantityReceived  float64 `json:"quantity_received"`
	QuantityRemaining float64 `json:"quantity_remaining"`
	Batches           int     `json:"batches"`
}

// IntakeInput describes a new batch arriving at the warehouse.
type IntakeInput struct {
	ProductID    int64
	BatchNo      string
	Quantity     float64
	PurchaseRate float64
	SellingRate  float64
	ReceivedAt   time.Time
	ExpiresAt    time.Time
}

// WriteOffInput marks part of a batch as damaged.
type WriteOffInput struct {
	BatchID  int64
	Quantity float64
	Reason   string
	ActorID  int64
}

// ListFilter narrows batch listings.
type ListFilter struct {
	ProductID int64
	BatchNo   string
	From      time.Time
	To        time.Time
	Limit     int
}

var (
	// ErrBatchNotFound indicates the referenced batch does not exist.
	ErrBatchNotFound = errors.New("stock: batch not found")
	// ErrDuplicateBatch indicates the batch number already exists for the product.
	ErrDuplicateBatch = errors.New("stock: batch number already exists for this product")
	// ErrInsufficientStock is the business shortfall: fewer units remain
	// across all batches than requested.
	ErrInsufficientStock = errors.New("stock: insufficient stock")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("stock: quantity must be greater than zero")
	// ErrNegativeStock means a deduction would drive a batch below zero.
	// This is an invariant violation, not a business error: the allocation
	// plan already checked availability, so hitting it aborts the
	// transaction.
	ErrNegativeStock = errors.New("stock: batch remaining would go negative")
	// ErrAlreadyDamaged indicates a second write-off on the same batch.
	ErrAlreadyDamaged = errors.New("stock: batch already written off")
	// ErrProductInactive rejects intake against a deactivated product.
	ErrProductInactive = errors.New("stock: product is not active")
)
