package collection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-dms/meridian-dms/internal/dispatch"
	"github.com/meridian-dms/meridian-dms/internal/stock"
)

// Service provides business logic for cash collections.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// amounts carries every money input so submit and update share one
// computation path.
type amounts struct {
	denominations []Denomination
	coins         float64
	cheque        float64
	online        float64
	creditGiven   float64
}

func (a amounts) validate() error {
	for _, d := range a.denominations {
		if !validNoteValues[d.Value] {
			return fmt.Errorf("%w: %d", ErrInvalidNoteValue, d.Value)
		}
		if d.Count < 0 {
			return ErrNegativeAmount
		}
	}
	if a.coins < 0 || a.cheque < 0 || a.online < 0 || a.creditGiven < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// compute derives the money figures the variance chain depends on. Never
// trusts a client total: everything follows from the counted breakdown.
func (a amounts) compute(expectedCash, previousVariance float64) (cash, received, variance, cumulative float64) {
	cash = cashTotal(a.denominations, a.coins)
	received = cash + a.cheque + a.online
	variance = (received + a.creditGiven) - expectedCash
	cumulative = previousVariance + variance
	return
}

// Submit records a driver's end-of-day cash submission, computes the
// variance chain, and moves the dispatch to COMPLETED — all in one
// transaction. A dispatch takes exactly one live collection.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Collection, error) {
	a := amounts{req.Denominations, req.Coins, req.ChequeTotal, req.OnlineTotal, req.CreditGiven}
	if err := a.validate(); err != nil {
		return nil, err
	}
	if req.CreditRecoveredCash < 0 || req.CreditRecoveredCheque < 0 ||
		req.BounceRecoveredCash < 0 || req.BounceRecoveredCheque < 0 ||
		req.ExpenseAmount < 0 || req.CratesReturnedFull < 0 ||
		req.CratesReturnedEmpty < 0 || req.EmptyBottles < 0 {
		return nil, ErrNegativeAmount
	}

	var collectionID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.GetDispatchForUpdate(ctx, req.DispatchID)
		if err != nil {
			return err
		}
		if d.DriverID != req.DriverID {
			return ErrDriverMismatch
		}
		if d.Status != dispatch.StatusActive && d.Status != dispatch.StatusCompleted {
			return fmt.Errorf("%w: status %s", ErrDispatchNotCollectable, d.Status)
		}

		previous, err := tx.PreviousCumulative(ctx, req.DriverID)
		if err != nil {
			return err
		}

		expected := d.TotalValue
		cash, received, variance, cumulative := a.compute(expected, previous)

		now := time.Now().UTC()
		no, err := tx.NextCollectionNo(ctx, now)
		if err != nil {
			return err
		}

		collectionID, err = tx.InsertCollection(ctx, Collection{
			CollectionNo:          no,
			DispatchID:            req.DispatchID,
			DriverID:              req.DriverID,
			Date:                  now,
			Status:                StatusSubmitted,
			Denominations:         req.Denominations,
			Coins:                 req.Coins,
			CashTotal:             cash,
			ChequeTotal:           req.ChequeTotal,
			OnlineTotal:           req.OnlineTotal,
			CreditGiven:           req.CreditGiven,
			CreditRecoveredCash:   req.CreditRecoveredCash,
			CreditRecoveredCheque: req.CreditRecoveredCheque,
			BounceRecoveredCash:   req.BounceRecoveredCash,
			BounceRecoveredCheque: req.BounceRecoveredCheque,
			ExpenseAmount:         req.ExpenseAmount,
			ExpenseNotes:          req.ExpenseNotes,
			TotalReceived:         received,
			ExpectedCash:          expected,
			Variance:              variance,
			PreviousVariance:      previous,
			CumulativeVariance:    cumulative,
			CratesReturnedFull:    req.CratesReturnedFull,
			CratesReturnedEmpty:   req.CratesReturnedEmpty,
			EmptyBottles:          req.EmptyBottles,
			Notes:                 req.Notes,
		})
		if err != nil {
			return err
		}

		if d.Status == dispatch.StatusActive {
			if err := tx.SetDispatchStatus(ctx, d.ID, dispatch.StatusCompleted); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("collection submitted",
		"collection_id", collectionID, "dispatch_id", req.DispatchID,
		"driver_id", req.DriverID)

	return s.repo.GetByID(ctx, collectionID)
}

// Update edits a submitted collection and recomputes every derived figure
// against the stored expected cash and variance chain.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*Collection, error) {
	a := amounts{req.Denominations, req.Coins, req.ChequeTotal, req.OnlineTotal, req.CreditGiven}
	if err := a.validate(); err != nil {
		return nil, err
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !c.Status.CanEdit() {
			return fmt.Errorf("%w: status %s", ErrNotEditable, c.Status)
		}

		cash, received, variance, cumulative := a.compute(c.ExpectedCash, c.PreviousVariance)

		c.Denominations = req.Denominations
		c.Coins = req.Coins
		c.CashTotal = cash
		c.ChequeTotal = req.ChequeTotal
		c.OnlineTotal = req.OnlineTotal
		c.CreditGiven = req.CreditGiven
		c.CreditRecoveredCash = req.CreditRecoveredCash
		c.CreditRecoveredCheque = req.CreditRecoveredCheque
		c.BounceRecoveredCash = req.BounceRecoveredCash
		c.BounceRecoveredCheque = req.BounceRecoveredCheque
		c.ExpenseAmount = req.ExpenseAmount
		c.ExpenseNotes = req.ExpenseNotes
		c.TotalReceived = received
		c.Variance = variance
		c.CumulativeVariance = cumulative
		c.CratesReturnedFull = req.CratesReturnedFull
		c.CratesReturnedEmpty = req.CratesReturnedEmpty
		c.EmptyBottles = req.EmptyBottles
		c.Notes = req.Notes

		return tx.UpdateCollection(ctx, *c)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// Delete removes a submitted collection. The dispatch keeps its status; a
// fresh submission may follow.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !c.Status.CanEdit() {
			return fmt.Errorf("%w: status %s", ErrNotEditable, c.Status)
		}
		return tx.DeleteCollection(ctx, id)
	})
}

// Verify records supervisor confirmation of the counted cash.
func (s *Service) Verify(ctx context.Context, id int64, verifiedBy int64, notes string) (*Collection, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !c.Status.CanVerify() {
			return fmt.Errorf("%w: status %s", ErrCannotVerify, c.Status)
		}
		return tx.SetVerified(ctx, id, verifiedBy, notes)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("collection verified", "collection_id", id, "verified_by", verifiedBy)
	return s.repo.GetByID(ctx, id)
}

// Reconcile closes the collection's financial period and settles the
// dispatch in the same transaction.
func (s *Service) Reconcile(ctx context.Context, id int64) (*Collection, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !c.Status.CanReconcile() {
			return fmt.Errorf("%w: status %s", ErrCannotReconcile, c.Status)
		}
		if err := tx.SetReconciled(ctx, id); err != nil {
			return err
		}
		return tx.SetDispatchStatus(ctx, c.DispatchID, dispatch.StatusSettled)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("collection reconciled", "collection_id", id)
	return s.repo.GetByID(ctx, id)
}

// Cancel voids a collection and releases the dispatch's unsold stock back
// to the batch ledger. Cancellation is its own atomic operation: the
// status flip and every release commit together, and released items are
// zeroed so a second cancellation can never double-release.
func (s *Service) Cancel(ctx context.Context, id int64, reason string) (*Collection, error) {
	if reason == "" {
		return nil, ErrReasonRequired
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !c.Status.CanCancel() {
			return fmt.Errorf("%w: status %s", ErrCannotCancel, c.Status)
		}

		d, err := tx.GetDispatchForUpdate(ctx, c.DispatchID)
		if err != nil {
			return err
		}
		for _, item := range d.Items {
			if item.Remaining <= 0 {
				continue
			}
			if err := stock.Release(ctx, tx.Stock(), item.ProductID, item.Remaining); err != nil {
				return fmt.Errorf("release product %d: %w", item.ProductID, err)
			}
			if err := tx.ZeroDispatchItemRemaining(ctx, item.ID); err != nil {
				return err
			}
		}
		return tx.SetCancelled(ctx, id, reason)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("collection cancelled", "collection_id", id, "reason", reason)
	return s.repo.GetByID(ctx, id)
}

// Get returns one collection.
func (s *Service) Get(ctx context.Context, id int64) (*Collection, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByDispatch returns the live collection settling a dispatch.
func (s *Service) GetByDispatch(ctx context.Context, dispatchID int64) (*Collection, error) {
	return s.repo.GetByDispatch(ctx, dispatchID)
}

// List returns a filtered collection page.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Collection, int, error) {
	return s.repo.List(ctx, filter)
}

// DriverStats summarizes one driver's collection history.
func (s *Service) DriverStats(ctx context.Context, driverID int64) (*DriverStats, error) {
	return s.repo.DriverStats(ctx, driverID)
}
