// Package retailers exposes read-side retailer lookups for sale recording.
package retailers

import (
	"errors"
	"time"
)

// ErrNotFound indicates the retailer does not exist.
var ErrNotFound = errors.New("retailer not found")

// Retailer represents a retail outlet served by drivers.
type Retailer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	Route     string    `json:"route"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
