package recon

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/meridian-dms/meridian-dms/internal/collection"
	"github.com/meridian-dms/meridian-dms/internal/masterdata/products"
	"github.com/meridian-dms/meridian-dms/internal/picklist"
)

// unexplainedFloor is the residual below which a variance is considered
// fully explained in the breakdown.
const unexplainedFloor = 10.0

// Tolerances classify a variance as matched. A variance escapes MATCHED
// only when it exceeds both bounds.
type Tolerances struct {
	Amount  float64
	Percent float64
}

// Service computes and persists pick-list reconciliations.
type Service struct {
	repo           Repository
	products       products.Repository
	tol            Tolerances
	fullCrateValue float64
	logger         *slog.Logger
}

// NewService creates a new service.
func NewService(repo Repository, pr products.Repository, tol Tolerances, fullCrateValue float64, logger *slog.Logger) *Service {
	return &Service{repo: repo, products: pr, tol: tol, fullCrateValue: fullCrateValue, logger: logger}
}

// Reconcile compares a pick list's expected total against a collection's
// actual total and writes the outcome back onto the pick list. Re-running
// with the same or a different collection overwrites the previous result.
func (s *Service) Reconcile(ctx context.Context, pickListID, collectionID int64) (*Result, error) {
	var res Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPickListForUpdate(ctx, pickListID)
		if err != nil {
			return err
		}
		c, err := tx.GetCollection(ctx, collectionID)
		if err != nil {
			return err
		}
		if c.Status == collection.StatusCancelled {
			return ErrCollectionCancelled
		}

		expected := s.expectedTotal(ctx, p)
		actual := c.CashTotal + c.ChequeTotal + c.OnlineTotal + c.CreditGiven

		res = Result{
			PickListID:    pickListID,
			CollectionID:  collectionID,
			ExpectedTotal: expected,
			ActualTotal:   actual,
			Variance:      actual - expected,
			ReconciledAt:  time.Now().UTC(),
		}
		if expected != 0 {
			res.VariancePct = res.Variance / expected * 100
		}
		res.Status = s.classify(res.Variance, res.VariancePct)

		return tx.SaveResult(ctx, res)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("pick list reconciled",
		"pick_list_id", pickListID, "collection_id", collectionID,
		"status", res.Status, "variance", res.Variance)
	return &res, nil
}

// expectedTotal prices every manifest line at the current product price
// when the item code resolves, otherwise at the manifest's listed price.
func (s *Service) expectedTotal(ctx context.Context, p *picklist.PickList) float64 {
	var total float64
	for _, it := range p.Items {
		price := it.MRP
		if product, err := s.products.FindByItemCode(ctx, it.ItemCode); err == nil {
			price = product.Price
		}
		total += it.SellQty * price
	}
	return total
}

func (s *Service) classify(variance, pct float64) picklist.ReconStatus {
	if math.Abs(variance) <= s.tol.Amount || math.Abs(pct) <= s.tol.Percent {
		return picklist.ReconMatched
	}
	if variance > 0 {
		return picklist.ReconExcess
	}
	return picklist.ReconShortage
}

// AutoReconcile reconciles every candidate pair for the given date and
// returns how many succeeded. Individual failures are logged and skipped
// so one bad pair does not starve the sweep.
func (s *Service) AutoReconcile(ctx context.Context, date time.Time) (int, error) {
	pairs, err := s.repo.Candidates(ctx, date)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, pair := range pairs {
		if _, err := s.Reconcile(ctx, pair.PickListID, pair.CollectionID); err != nil {
			s.logger.Error("auto-reconcile pair failed",
				"pick_list_id", pair.PickListID,
				"collection_id", pair.CollectionID, "error", err)
			continue
		}
		done++
	}
	s.logger.Info("auto-reconcile sweep finished",
		"date", date.Format("2006-01-02"), "candidates", len(pairs), "reconciled", done)
	return done, nil
}

// Breakdown attributes a reconciled pick list's variance to known causes:
// credit extended to retailers and the value of full crates that came back
// unsold. What remains is reported as unexplained.
func (s *Service) Breakdown(ctx context.Context, pickListID int64) (*Breakdown, error) {
	var b Breakdown
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPickListForUpdate(ctx, pickListID)
		if err != nil {
			return err
		}
		if p.ReconCollectionID == 0 {
			return ErrNotReconciled
		}
		c, err := tx.GetCollection(ctx, p.ReconCollectionID)
		if err != nil {
			return err
		}

		b = Breakdown{
			PickListID:      pickListID,
			CollectionID:    c.ID,
			Variance:        p.ReconVariance,
			CreditGiven:     c.CreditGiven,
			FullCratesValue: float64(c.CratesReturnedFull) * s.fullCrateValue,
		}
		residual := math.Abs(b.Variance) - b.CreditGiven - b.FullCratesValue
		if residual < 0 {
			residual = 0
		}
		b.Unexplained = residual
		b.Significant = residual > unexplainedFloor
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Reports lists reconciliation outcomes.
func (s *Service) Reports(ctx context.Context, filter ReportFilter) ([]picklist.PickList, int, error) {
	return s.repo.Reports(ctx, filter)
}

// Stats returns aggregate reconciliation statistics.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.repo.Stats(ctx)
}
