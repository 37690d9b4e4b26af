// Package products exposes read-side product lookups. Product records are
// created and edited outside this system; the core only needs identity,
// pricing and the active flag.
package products

import (
	"errors"
	"time"
)

// ErrNotFound indicates the product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a sellable product.
type Product struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Size      string    `json:"size"`
	Price     float64   `json:"price"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
