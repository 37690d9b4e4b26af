package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-dms/meridian-dms/internal/masterdata/drivers"
	"github.com/meridian-dms/meridian-dms/internal/masterdata/products"
	"github.com/meridian-dms/meridian-dms/internal/stock"
)

// Service provides business logic for dispatches.
type Service struct {
	repo     Repository
	drivers  drivers.Repository
	products products.Repository
	logger   *slog.Logger
}

// NewService creates a new service.
func NewService(repo Repository, dr drivers.Repository, pr products.Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, drivers: dr, products: pr, logger: logger}
}

// Create loads a truck: allocates FIFO stock for every requested item,
// freezes each item's selling rate at the product's current price, records
// the morning change float handed to the driver, and opens the driver's
// dispatch for the day. All deductions and the dispatch itself commit
// atomically; any shortfall rolls everything back.
func (s *Service) Create(ctx context.Context, req CreateRequest, createdBy int64) (*Dispatch, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	seen := make(map[int64]bool, len(req.Items))
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %d", ErrInvalidQuantity, it.ProductID)
		}
		if seen[it.ProductID] {
			return nil, fmt.Errorf("%w: product %d", ErrDuplicateProduct, it.ProductID)
		}
		seen[it.ProductID] = true
	}
	for _, d := range req.CashFloat {
		if !validNoteValues[d.Value] {
			return nil, fmt.Errorf("%w: %d", ErrInvalidNoteValue, d.Value)
		}
		if d.Count < 0 {
			return nil, ErrNegativeFloat
		}
	}

	driver, err := s.drivers.Get(ctx, req.DriverID)
	if err != nil {
		return nil, fmt.Errorf("get driver: %w", err)
	}
	if !driver.IsActive {
		return nil, ErrDriverInactive
	}

	date, err := resolveDate(req.DispatchDate)
	if err != nil {
		return nil, err
	}

	var dispatchID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		no, err := tx.NextDispatchNo(ctx, date)
		if err != nil {
			return err
		}

		var items []Item
		var total float64
		for _, reqItem := range req.Items {
			product, err := s.products.Get(ctx, reqItem.ProductID)
			if err != nil {
				return fmt.Errorf("get product %d: %w", reqItem.ProductID, err)
			}
			if !product.IsActive {
				return fmt.Errorf("%w: %s", ErrProductInactive, product.Name)
			}

			alloc, err := stock.Allocate(ctx, tx.Stock(), reqItem.ProductID, reqItem.Quantity)
			if err != nil {
				if errors.Is(err, stock.ErrInsufficientStock) {
					return fmt.Errorf("%s: %w", product.Name, err)
				}
				return err
			}

			value := reqItem.Quantity * product.Price
			total += value
			items = append(items, Item{
				ProductID: reqItem.ProductID,
				Quantity:  reqItem.Quantity,
				Remaining: reqItem.Quantity,
				Rate:      product.Price,
				Value:     value,
				UnitCost:  alloc.UnitCost,
			})
		}

		dispatchID, err = tx.InsertDispatch(ctx, Dispatch{
			DispatchNo:     no,
			DriverID:       req.DriverID,
			DispatchDate:   date,
			Status:         StatusActive,
			PickListID:     req.PickListID,
			TotalValue:     total,
			TotalCashValue: floatTotal(req.CashFloat),
			CratesLoaded:   req.CratesLoaded,
			Notes:          req.Notes,
			CreatedBy:      createdBy,
		})
		if err != nil {
			return err
		}

		for i := range items {
			items[i].DispatchID = dispatchID
			if _, err := tx.InsertItem(ctx, items[i]); err != nil {
				return err
			}
		}
		return tx.InsertCashFloat(ctx, dispatchID, req.CashFloat)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("dispatch created",
		"dispatch_id", dispatchID, "driver_id", req.DriverID,
		"date", date.Format("2006-01-02"), "items", len(req.Items))

	return s.repo.GetByID(ctx, dispatchID)
}

// Get returns one dispatch with items.
func (s *Service) Get(ctx context.Context, id int64) (*Dispatch, error) {
	return s.repo.GetByID(ctx, id)
}

// GetActive returns the driver's active dispatch for the date.
func (s *Service) GetActive(ctx context.Context, driverID int64, date time.Time) (*Dispatch, error) {
	if date.IsZero() {
		date = today()
	}
	return s.repo.GetActiveByDriver(ctx, driverID, date)
}

// List returns a filtered dispatch page.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Dispatch, int, error) {
	return s.repo.List(ctx, filter)
}

// Complete moves an active dispatch to COMPLETED, normally when the
// driver's cash collection is submitted.
func (s *Service) Complete(ctx context.Context, id int64) (*Dispatch, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !d.Status.CanComplete() {
			return fmt.Errorf("%w: status %s", ErrCannotComplete, d.Status)
		}
		return tx.UpdateStatus(ctx, id, StatusCompleted, "")
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// Settle moves a completed dispatch to SETTLED after its collection is
// verified and reconciled.
func (s *Service) Settle(ctx context.Context, id int64) (*Dispatch, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !d.Status.CanSettle() {
			return fmt.Errorf("%w: status %s", ErrCannotSettle, d.Status)
		}
		return tx.UpdateStatus(ctx, id, StatusSettled, "")
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// Cancel voids an active dispatch and returns every item's unsold quantity
// to the batch ledger in the same transaction.
func (s *Service) Cancel(ctx context.Context, id int64, reason string) (*Dispatch, error) {
	if reason == "" {
		return nil, ErrReasonRequired
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !d.Status.CanCancel() {
			return fmt.Errorf("%w: status %s", ErrCannotCancel, d.Status)
		}

		for _, item := range d.Items {
			if item.Remaining <= 0 {
				continue
			}
			if err := stock.Release(ctx, tx.Stock(), item.ProductID, item.Remaining); err != nil {
				return fmt.Errorf("release product %d: %w", item.ProductID, err)
			}
		}
		return tx.UpdateStatus(ctx, id, StatusCancelled, reason)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("dispatch cancelled", "dispatch_id", id, "reason", reason)
	return s.repo.GetByID(ctx, id)
}

// Stats aggregates dispatch activity over a period.
func (s *Service) Stats(ctx context.Context, from, to time.Time) (*Stats, error) {
	return s.repo.Stats(ctx, from, to)
}

func resolveDate(s string) (time.Time, error) {
	if s == "" {
		return today(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid dispatch date %q: %w", s, err)
	}
	return t, nil
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
