package stock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meridian-dms/meridian-dms/internal/masterdata/products"
	"github.com/meridian-dms/meridian-dms/internal/platform/cache"
)

const summaryCacheKey = "stock:summary"

// Service provides business logic for the batch ledger.
type Service struct {
	repo              Repository
	products          products.Repository
	cache             *cache.JSONCache
	logger            *slog.Logger
	lowStockThreshold float64
	summaryGroup      singleflight.Group
}

// NewService creates a new service. The cache may be nil, in which case
// summaries always hit the database.
func NewService(repo Repository, pr products.Repository, c *cache.JSONCache, logger *slog.Logger, lowStockThreshold float64) *Service {
	return &Service{
		repo:              repo,
		products:          pr,
		cache:             c,
		logger:            logger,
		lowStockThreshold: lowStockThreshold,
	}
}

// CreateBatch records a new intake batch. Received and remaining start
// equal; total value is quantity at purchase rate.
func (s *Service) CreateBatch(ctx context.Context, in IntakeInput) (*Batch, error) {
	if in.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	product, err := s.products.Get(ctx, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("fetch product %d: %w", in.ProductID, err)
	}
	if !product.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrProductInactive, product.Name)
	}
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = time.Now().UTC()
	}

	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = tx.InsertBatch(ctx, Batch{
			ProductID:    in.ProductID,
			BatchNo:      in.BatchNo,
			Received:     in.Quantity,
			Remaining:    in.Quantity,
			PurchaseRate: in.PurchaseRate,
			SellingRate:  in.SellingRate,
			TotalValue:   in.Quantity * in.PurchaseRate,
			ReceivedAt:   in.ReceivedAt,
			ExpiresAt:    in.ExpiresAt,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidateSummary(ctx)
	s.logger.Info("stock batch received",
		"batch_id", id, "product_id", in.ProductID, "batch_no", in.BatchNo,
		"quantity", in.Quantity)

	return s.repo.GetBatch(ctx, id)
}

// WriteOffDamaged marks a quantity of one batch as damaged and removes it
// from circulation. A batch can only be written off once.
func (s *Service) WriteOffDamaged(ctx context.Context, in WriteOffInput) (*Batch, error) {
	if in.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if in.Reason == "" {
		return nil, fmt.Errorf("%w: damage reason is required", ErrInvalidQuantity)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.GetBatchForUpdate(ctx, in.BatchID)
		if err != nil {
			return err
		}
		if b.IsDamaged {
			return ErrAlreadyDamaged
		}
		if b.Remaining < in.Quantity {
			return fmt.Errorf("%w: batch %s: write off %.2f, remaining %.2f",
				ErrInsufficientStock, b.BatchNo, in.Quantity, b.Remaining)
		}
		return tx.MarkDamaged(ctx, in)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateSummary(ctx)
	s.logger.Info("stock batch written off",
		"batch_id", in.BatchID, "quantity", in.Quantity, "reason", in.Reason)

	return s.repo.GetBatch(ctx, in.BatchID)
}

// GetBatch returns one batch by ID.
func (s *Service) GetBatch(ctx context.Context, id int64) (*Batch, error) {
	return s.repo.GetBatch(ctx, id)
}

// ListBatches returns batches matching the filter.
func (s *Service) ListBatches(ctx context.Context, filter ListFilter) ([]Batch, error) {
	return s.repo.List(ctx, filter)
}

// Availability reports a product's open batches and the total quantity
// across them.
func (s *Service) Availability(ctx context.Context, productID int64) (*Availability, error) {
	return s.repo.Availability(ctx, productID)
}

// Summary aggregates open stock per product, served from cache when warm.
// Concurrent cold reads collapse into a single recompute.
func (s *Service) Summary(ctx context.Context) ([]ProductSummary, error) {
	if s.cache != nil {
		var cached []ProductSummary
		hit, err := s.cache.Get(ctx, summaryCacheKey, &cached)
		if err != nil {
			s.logger.Warn("stock summary cache read failed", "error", err)
		} else if hit {
			return cached, nil
		}
	}

	result, err, _ := s.summaryGroup.Do(summaryCacheKey, func() (any, error) {
		summary, err := s.repo.Summary(ctx)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, summaryCacheKey, summary); err != nil {
				s.logger.Warn("stock summary cache write failed", "error", err)
			}
		}
		return summary, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]ProductSummary), nil
}

// LowStockAlerts flags products under the configured threshold.
func (s *Service) LowStockAlerts(ctx context.Context) ([]LowStockAlert, error) {
	return s.repo.LowStock(ctx, s.lowStockThreshold)
}

// Stats aggregates intake activity over a period.
func (s *Service) Stats(ctx context.Context, from, to time.Time) (*IntakeStats, error) {
	return s.repo.Stats(ctx, from, to)
}

func (s *Service) invalidateSummary(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, summaryCacheKey); err != nil {
		s.logger.Warn("stock summary cache invalidation failed", "error", err)
	}
}
