// Package drivers exposes read-side driver lookups for dispatch and
// collection flows.
package drivers

import (
	"errors"
	"time"
)

// ErrNotFound indicates the driver does not exist.
var ErrNotFound = errors.New("driver not found")

// Driver represents a delivery driver.
type Driver struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Vehicle   string    `json:"vehicle"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
