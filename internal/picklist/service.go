package picklist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-dms/meridian-dms/internal/masterdata/products"
	"github.com/meridian-dms/meridian-dms/internal/stock"
)

// Service provides business logic for pick lists.
type Service struct {
	repo     Repository
	products products.Repository
	logger   *slog.Logger
}

// NewService creates a new service.
func NewService(repo Repository, pr products.Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, products: pr, logger: logger}
}

// Ingest stores one extracted manifest. Manifest numbers are unique; the
// extractor re-posting the same sheet gets a conflict, not a duplicate.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*PickList, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	date := time.Now().UTC()
	if req.LoadOutDate != "" {
		var err error
		date, err = time.Parse("2006-01-02", req.LoadOutDate)
		if err != nil {
			return nil, fmt.Errorf("invalid load out date %q: %w", req.LoadOutDate, err)
		}
	}

	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = tx.InsertPickList(ctx, PickList{
			Number:        req.Number,
			Vehicle:       req.Vehicle,
			Route:         req.Route,
			Salesman:      req.Salesman,
			LoadOutDate:   date,
			CratesLoaded:  req.CratesLoaded,
			ExpectedTotal: req.ExpectedTotal,
		})
		if err != nil {
			return err
		}
		for _, it := range req.Items {
			if _, err := tx.InsertItem(ctx, Item{
				PickListID: id,
				ItemCode:   it.ItemCode,
				ItemName:   it.ItemName,
				SellQty:    it.SellQty,
				LoQty:      it.LoQty,
				MRP:        it.MRP,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("pick list ingested", "pick_list_id", id, "number", req.Number, "items", len(req.Items))
	return s.repo.GetByID(ctx, id)
}

// ReduceStock deducts each manifest line's load-out quantity from the batch
// ledger. The run is idempotent: a second call on a reduced manifest is a
// no-op reporting AlreadyDone. Lines that cannot be fully satisfied reduce
// what is available and report the shortfall; an unresolvable item code
// reduces nothing for that line.
func (s *Service) ReduceStock(ctx context.Context, id int64) (*ReductionReport, error) {
	report := &ReductionReport{PickListID: id, FullyReduced: true}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.StockReduced {
			report.AlreadyDone = true
			return nil
		}

		for _, item := range p.Items {
			line := ReductionLine{
				ItemCode:  item.ItemCode,
				ItemName:  item.ItemName,
				Requested: item.LoQty,
			}
			if item.LoQty <= 0 {
				report.Lines = append(report.Lines, line)
				continue
			}

			product, err := s.products.FindByItemCode(ctx, item.ItemCode)
			if err != nil {
				if errors.Is(err, products.ErrNotFound) {
					line.Short = item.LoQty
					line.Note = "item code did not match any product"
					report.FullyReduced = false
					report.Lines = append(report.Lines, line)
					continue
				}
				return err
			}

			reduced, err := reduceAvailable(ctx, tx.Stock(), product.ID, item.LoQty)
			if err != nil {
				return err
			}
			line.Reduced = reduced
			line.Short = item.LoQty - reduced
			if line.Short > 0 {
				line.Note = "insufficient warehouse stock"
				report.FullyReduced = false
			}
			if reduced > 0 {
				if err := tx.SetItemReducedQty(ctx, item.ID, reduced); err != nil {
					return err
				}
			}
			report.Lines = append(report.Lines, line)
		}

		return tx.SetStockReduced(ctx, id, true)
	})
	if err != nil {
		return nil, err
	}

	if !report.AlreadyDone {
		s.logger.Info("pick list stock reduced",
			"pick_list_id", id, "fully_reduced", report.FullyReduced)
	}
	return report, nil
}

// reduceAvailable allocates up to qty, falling back to whatever the ledger
// still holds when the full quantity is not there.
func reduceAvailable(ctx context.Context, ledger stock.TxRepository, productID int64, qty float64) (float64, error) {
	_, err := stock.Allocate(ctx, ledger, productID, qty)
	if err == nil {
		return qty, nil
	}
	if !errors.Is(err, stock.ErrInsufficientStock) {
		return 0, err
	}

	batches, err := ledger.OpenBatchesForUpdate(ctx, productID)
	if err != nil {
		return 0, err
	}
	var available float64
	for _, b := range batches {
		available += b.Remaining
	}
	if available <= 0 {
		return 0, nil
	}
	if _, err := stock.Allocate(ctx, ledger, productID, available); err != nil {
		return 0, err
	}
	return available, nil
}

// ReverseReduction releases exactly what a previous reduction consumed and
// clears the idempotency flag.
func (s *Service) ReverseReduction(ctx context.Context, id int64) (*PickList, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !p.StockReduced {
			return ErrNotReduced
		}

		for _, item := range p.Items {
			if item.ReducedQty <= 0 {
				continue
			}
			product, err := s.products.FindByItemCode(ctx, item.ItemCode)
			if err != nil {
				if errors.Is(err, products.ErrNotFound) {
					continue
				}
				return err
			}
			if err := stock.Release(ctx, tx.Stock(), product.ID, item.ReducedQty); err != nil {
				return err
			}
			if err := tx.SetItemReducedQty(ctx, item.ID, 0); err != nil {
				return err
			}
		}
		return tx.SetStockReduced(ctx, id, false)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("pick list reduction reversed", "pick_list_id", id)
	return s.repo.GetByID(ctx, id)
}

// Get returns one pick list with items.
func (s *Service) Get(ctx context.Context, id int64) (*PickList, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByNumber returns one pick list by manifest number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*PickList, error) {
	return s.repo.GetByNumber(ctx, number)
}

// List returns a filtered pick list page.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]PickList, int, error) {
	return s.repo.List(ctx, filter)
}
