package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Allocate selects the product's open batches ordered by received date
// ascending and deducts from each until the requested quantity is covered.
// It returns the per-batch plan and the quantity-weighted unit cost. The
// availability check and the deductions run against the same TxRepository,
// so callers composing this into a larger operation get all-or-nothing
// behavior from their transaction.
func Allocate(ctx context.Context, tx TxRepository, productID int64, qty float64) (Allocation, error) {
	if qty <= 0 {
		return Allocation{}, ErrInvalidQuantity
	}

	batches, err := tx.OpenBatchesForUpdate(ctx, productID)
	if err != nil {
		return Allocation{}, fmt.Errorf("stock: load batches: %w", err)
	}

	var available float64
	for _, b := range batches {
		available += b.Remaining
	}
	if available < qty {
		return Allocation{}, fmt.Errorf("%w: product %d: required %.0f, available %.0f",
			ErrInsufficientStock, productID, qty, available)
	}

	alloc := Allocation{ProductID: productID, Quantity: qty}
	remaining := qty
	var costTotal float64
	for _, b := range batches {
		if remaining <= 0 {
			break
		}
		take := b.Remaining
		if take > remaining {
			take = remaining
		}
		if err := tx.DeductFromBatch(ctx, b.ID, take); err != nil {
			return Allocation{}, err
		}
		alloc.Lines = append(alloc.Lines, AllocationLine{
			BatchID:  b.ID,
			BatchNo:  b.BatchNo,
			Quantity: take,
			UnitCost: b.PurchaseRate,
		})
		costTotal += take * b.PurchaseRate
		remaining -= take
	}
	alloc.UnitCost = costTotal / qty
	return alloc, nil
}

// Release re-adds quantity to the product's most recently received batch,
// used when unsold crates come back from a driver. When the product has no
// batch at all a synthetic return batch is created so the quantity is not
// lost.
func Release(ctx context.Context, tx TxRepository, productID int64, qty float64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	latest, err := tx.LatestBatchForUpdate(ctx, productID)
	if err != nil {
		if !errors.Is(err, ErrBatchNotFound) {
			return fmt.Errorf("stock: load latest batch: %w", err)
		}
		now := time.Now().UTC()
		_, err := tx.InsertBatch(ctx, Batch{
			ProductID:  productID,
			BatchNo:    fmt.Sprintf("RTN-%s", uuid.NewString()[:8]),
			Received:   qty,
			Remaining:  qty,
			ReceivedAt: now,
			ExpiresAt:  now.AddDate(1, 0, 0),
		})
		if err != nil {
			return fmt.Errorf("stock: create return batch: %w", err)
		}
		return nil
	}

	return tx.AddToBatch(ctx, latest.ID, qty)
}
