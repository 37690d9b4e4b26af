package rgb

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/meridian-dms/meridian-dms/internal/masterdata/products"
	"github.com/meridian-dms/meridian-dms/internal/picklist"
	"github.com/meridian-dms/meridian-dms/internal/shared"
	"github.com/meridian-dms/meridian-dms/internal/stock"
)

// itemPenaltyShare is the fraction of a product's unit price charged per
// missing crate when the line's product resolves.
const itemPenaltyShare = 0.10

// Engine runs crate return processing and the tracking lifecycle.
type Engine struct {
	repo      Repository
	products  products.Repository
	audit     *shared.AuditLogger
	unitValue float64
	logger    *slog.Logger
}

// NewEngine creates a new engine. unitValue is the system-wide default
// per-crate penalty applied to records that do not override it. The audit
// logger may be nil.
func NewEngine(repo Repository, pr products.Repository, audit *shared.AuditLogger, unitValue float64, logger *slog.Logger) *Engine {
	return &Engine{repo: repo, products: pr, audit: audit, unitValue: unitValue, logger: logger}
}

func (e *Engine) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if err := e.audit.RecordEntity(ctx, actorID, action, "rgb_tracking", id, meta); err != nil {
		e.logger.Warn("audit record failed", "action", action, "error", err)
	}
}

// ProcessReturns records a driver's crate returns against a pick list.
// Re-submitting while the record is still editable rewrites the inputs and
// recomputes every derived quantity; full crates are released back to the
// batch ledger only for the increment over what was already released.
func (e *Engine) ProcessReturns(ctx context.Context, req ProcessRequest) (*Tracking, error) {
	if req.ReturnedFull < 0 || req.ReturnedEmpty < 0 {
		return nil, ErrNegativeCount
	}

	var trackingID int64
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPickList(ctx, req.PickListID)
		if err != nil {
			return err
		}

		rec, err := tx.GetByPickListForUpdate(ctx, req.PickListID)
		switch {
		case err == nil:
			if rec.DriverID != req.DriverID {
				return ErrDriverMismatch
			}
			if !rec.Status.CanUpdate() {
				return ErrNotEditable
			}
		case errors.Is(err, ErrNotFound):
			unitValue := req.UnitValue
			if unitValue <= 0 {
				unitValue = e.unitValue
			}
			rec = &Tracking{
				PickListID: req.PickListID,
				DriverID:   req.DriverID,
				UnitValue:  unitValue,
			}
		default:
			return err
		}

		rec.CratesLoaded = p.CratesLoaded
		rec.ReturnedFull = req.ReturnedFull
		rec.ReturnedEmpty = req.ReturnedEmpty
		if req.Notes != "" {
			rec.Notes = req.Notes
		}
		rec.recompute()
		rec.Status = StatusPending
		if rec.ReturnedFull > 0 || rec.ReturnedEmpty > 0 {
			rec.Status = StatusSubmitted
		}

		items := e.apportion(ctx, rec, p.Items)

		if delta := rec.ReturnedFull - rec.ReleasedFull; delta > 0 {
			if err := e.releaseFull(ctx, tx.Stock(), delta, p.Items); err != nil {
				return err
			}
			rec.ReleasedFull = rec.ReturnedFull
		}

		if rec.ID == 0 {
			rec.ID, err = tx.InsertTracking(ctx, *rec)
			if err != nil {
				return err
			}
		} else if err := tx.UpdateTracking(ctx, *rec); err != nil {
			return err
		}
		trackingID = rec.ID
		return tx.ReplaceItems(ctx, rec.ID, items)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("crate returns processed",
		"tracking_id", trackingID, "pick_list_id", req.PickListID,
		"returned_full", req.ReturnedFull, "returned_empty", req.ReturnedEmpty)
	return e.repo.GetByID(ctx, trackingID)
}

// apportion splits the record-level crate counts across pick-list lines in
// proportion to each line's share of the total loaded quantity, floor
// division with the residual assigned to the largest line.
func (e *Engine) apportion(ctx context.Context, rec *Tracking, items []picklist.Item) []ItemShare {
	if len(items) == 0 {
		return nil
	}

	fullShares := splitProportional(rec.ReturnedFull, items)
	emptyShares := splitProportional(rec.ReturnedEmpty, items)
	missingShares := splitProportional(rec.MissingEmpty, items)

	out := make([]ItemShare, len(items))
	for i, it := range items {
		rate := rec.UnitValue
		if product, err := e.products.FindByItemCode(ctx, it.ItemCode); err == nil {
			rate = product.Price * itemPenaltyShare
		}
		out[i] = ItemShare{
			PickListItemID: it.ID,
			ItemCode:       it.ItemCode,
			ItemName:       it.ItemName,
			LoadedQty:      it.LoQty,
			FullShare:      fullShares[i],
			EmptyShare:     emptyShares[i],
			MissingShare:   missingShares[i],
			PenaltyRate:    rate,
			Penalty:        float64(missingShares[i]) * rate,
		}
	}
	return out
}

// splitProportional distributes total across items by load-out quantity.
// Every share is floored; the leftover goes to the largest-loaded line so
// the shares always sum back to total.
func splitProportional(total int, items []picklist.Item) []int {
	shares := make([]int, len(items))
	if total <= 0 || len(items) == 0 {
		return shares
	}

	var loadedSum float64
	largest := 0
	for i, it := range items {
		loadedSum += it.LoQty
		if it.LoQty > items[largest].LoQty {
			largest = i
		}
	}
	if loadedSum <= 0 {
		shares[largest] = total
		return shares
	}

	assigned := 0
	for i, it := range items {
		shares[i] = int(float64(total) * it.LoQty / loadedSum)
		assigned += shares[i]
	}
	shares[largest] += total - assigned
	return shares
}

// releaseFull returns delta full crates to the batch ledger, apportioned
// per line. Lines whose item code does not resolve to a product are
// skipped.
func (e *Engine) releaseFull(ctx context.Context, ledger stock.TxRepository, delta int, items []picklist.Item) error {
	shares := splitProportional(delta, items)
	for i, it := range items {
		if shares[i] <= 0 {
			continue
		}
		product, err := e.products.FindByItemCode(ctx, it.ItemCode)
		if err != nil {
			if errors.Is(err, products.ErrNotFound) {
				continue
			}
			return err
		}
		if err := stock.Release(ctx, ledger, product.ID, float64(shares[i])); err != nil {
			return err
		}
	}
	return nil
}

// Verify confirms a submitted record.
func (e *Engine) Verify(ctx context.Context, id, verifiedBy int64) (*Tracking, error) {
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !rec.Status.CanVerify() {
			return ErrCannotVerify
		}
		return tx.SetVerified(ctx, id, verifiedBy)
	})
	if err != nil {
		return nil, err
	}
	e.recordAudit(ctx, verifiedBy, "rgb.verify", id, nil)
	return e.repo.GetByID(ctx, id)
}

// Settle closes a verified record.
func (e *Engine) Settle(ctx context.Context, id int64) (*Tracking, error) {
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !rec.Status.CanSettle() {
			return ErrCannotSettle
		}
		return tx.SetSettled(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	e.recordAudit(ctx, 0, "rgb.settle", id, nil)
	e.logger.Info("rgb tracking settled", "tracking_id", id)
	return e.repo.GetByID(ctx, id)
}

// Dispute moves any non-terminal record to the disputed branch.
func (e *Engine) Dispute(ctx context.Context, id int64, reason string) (*Tracking, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !rec.Status.CanDispute() {
			return ErrCannotDispute
		}
		return tx.SetDisputed(ctx, id, reason)
	})
	if err != nil {
		return nil, err
	}
	e.recordAudit(ctx, 0, "rgb.dispute", id, map[string]any{"reason": reason})
	e.logger.Info("rgb tracking disputed", "tracking_id", id, "reason", reason)
	return e.repo.GetByID(ctx, id)
}

// Resolve manually exits a dispute to Verified or Settled.
func (e *Engine) Resolve(ctx context.Context, id int64, status Status, notes string) (*Tracking, error) {
	if status != StatusVerified && status != StatusSettled {
		return nil, ErrInvalidResolution
	}
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !rec.Status.CanResolve() {
			return ErrNotDisputed
		}
		return tx.SetResolved(ctx, id, status, notes)
	})
	if err != nil {
		return nil, err
	}
	e.recordAudit(ctx, 0, "rgb.resolve", id, map[string]any{"status": string(status)})
	e.logger.Info("rgb dispute resolved", "tracking_id", id, "status", status)
	return e.repo.GetByID(ctx, id)
}

// Get returns one tracking record with its item shares.
func (e *Engine) Get(ctx context.Context, id int64) (*Tracking, error) {
	return e.repo.GetByID(ctx, id)
}

// GetByPickList returns the tracking record for a pick list.
func (e *Engine) GetByPickList(ctx context.Context, pickListID int64) (*Tracking, error) {
	return e.repo.GetByPickList(ctx, pickListID)
}

// List returns a filtered tracking page.
func (e *Engine) List(ctx context.Context, filter ListFilter) ([]Tracking, int, error) {
	return e.repo.List(ctx, filter)
}

// Stats returns aggregate crate tracking statistics.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	return e.repo.Stats(ctx)
}
