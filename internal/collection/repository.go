package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-dms/meridian-dms/internal/dispatch"
	"github.com/meridian-dms/meridian-dms/internal/platform/db"
	"github.com/meridian-dms/meridian-dms/internal/shared"
	"github.com/meridian-dms/meridian-dms/internal/stock"
)

// Repository defines collection persistence.
type Repository interface {
	// Read operations
	GetByID(ctx context.Context, id int64) (*Collection, error)
	GetByDispatch(ctx context.Context, dispatchID int64) (*Collection, error)
	List(ctx context.Context, filter ListFilter) ([]Collection, int, error)
	DriverStats(ctx context.Context, driverID int64) (*DriverStats, error)

	// Write operations (transactional)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional collection writes plus the dispatch
// and stock access the settlement flow needs in the same scope.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (*Collection, error)
	GetDispatchForUpdate(ctx context.Context, dispatchID int64) (*dispatch.Dispatch, error)
	InsertCollection(ctx context.Context, c Collection) (int64, error)
	UpdateCollection(ctx context.Context, c Collection) error
	DeleteCollection(ctx context.Context, id int64) error
	SetVerified(ctx context.Context, id int64, verifiedBy int64, notes string) error
	SetReconciled(ctx context.Context, id int64) error
	SetCancelled(ctx context.Context, id int64, reason string) error
	// PreviousCumulative returns the cumulative variance of the driver's
	// chronologically latest non-cancelled collection, 0 when none exists.
	PreviousCumulative(ctx context.Context, driverID int64) (float64, error)
	ZeroDispatchItemRemaining(ctx context.Context, itemID int64) error
	SetDispatchStatus(ctx context.Context, dispatchID int64, status dispatch.Status) error
	NextCollectionNo(ctx context.Context, date time.Time) (string, error)
	Stock() stock.TxRepository
}

// repository implements Repository using pgxpool.
type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// txRepository implements TxRepository.
type txRepository struct {
	tx    pgx.Tx
	stock stock.TxRepository
}

// WithTx wraps callback in a repeatable-read transaction with
// serialization retry.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxRetry(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, stock: stock.NewTxStore(tx)})
	})
}

const collectionColumns = `c.id, c.collection_no, c.dispatch_id, c.driver_id, c.collection_date,
	       c.status, c.denominations, c.coins, c.cash_total, c.cheque_total,
	       c.online_total, c.credit_given, c.credit_recovered_cash,
	       c.credit_recovered_cheque, c.bounce_recovered_cash,
	       c.bounce_recovered_cheque, c.expense_amount, c.expense_notes,
	       c.total_received, c.expected_cash, c.variance, c.previous_variance,
	       c.cumulative_variance, c.crates_returned_full,
	       c.crates_returned_empty, c.empty_bottles, c.notes,
	       c.verification_notes, c.verified_by, c.verified_at,
	       c.reconciled_at, c.cancelled_at, c.cancel_reason,
	       c.created_at, c.updated_at`

func scanCollection(row pgx.Row) (*Collection, error) {
	var c Collection
	var denoms []byte
	err := row.Scan(
		&c.ID, &c.CollectionNo, &c.DispatchID, &c.DriverID, &c.Date,
		&c.Status, &denoms, &c.Coins, &c.CashTotal, &c.ChequeTotal,
		&c.OnlineTotal, &c.CreditGiven, &c.CreditRecoveredCash,
		&c.CreditRecoveredCheque, &c.BounceRecoveredCash,
		&c.BounceRecoveredCheque, &c.ExpenseAmount, &c.ExpenseNotes,
		&c.TotalReceived, &c.ExpectedCash, &c.Variance, &c.PreviousVariance,
		&c.CumulativeVariance, &c.CratesReturnedFull,
		&c.CratesReturnedEmpty, &c.EmptyBottles, &c.Notes,
		&c.VerificationNotes, &c.VerifiedBy, &c.VerifiedAt,
		&c.ReconciledAt, &c.CancelledAt, &c.CancelReason,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(denoms) > 0 {
		if err := json.Unmarshal(denoms, &c.Denominations); err != nil {
			return nil, fmt.Errorf("collection: decode denominations: %w", err)
		}
	}
	return &c, nil
}

// GetByID retrieves a collection by ID.
func (r *repository) GetByID(ctx context.Context, id int64) (*Collection, error) {
	query := `SELECT ` + collectionColumns + ` FROM cash_collections c WHERE c.id = $1`
	return scanCollection(r.pool.QueryRow(ctx, query, id))
}

// GetByDispatch retrieves the collection settling a dispatch.
func (r *repository) GetByDispatch(ctx context.Context, dispatchID int64) (*Collection, error) {
	query := `SELECT ` + collectionColumns + `
		FROM cash_collections c
		WHERE c.dispatch_id = $1 AND c.status <> $2`
	return scanCollection(r.pool.QueryRow(ctx, query, dispatchID, StatusCancelled))
}

// List returns a filtered collection page, newest first, with the total
// count.
func (r *repository) List(ctx context.Context, filter ListFilter) ([]Collection, int, error) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.DriverID > 0 {
		conds = append(conds, "c.driver_id = "+arg(filter.DriverID))
	}
	if filter.DispatchID > 0 {
		conds = append(conds, "c.dispatch_id = "+arg(filter.DispatchID))
	}
	if filter.Status != "" {
		conds = append(conds, "c.status = "+arg(filter.Status))
	}
	if !filter.From.IsZero() {
		conds = append(conds, "c.collection_date >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "c.collection_date <= "+arg(filter.To))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM cash_collections c"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	p := shared.NewPagination(filter.Page, filter.Limit, total)
	query := `SELECT ` + collectionColumns + ` FROM cash_collections c` + where +
		" ORDER BY c.collection_date DESC, c.id DESC" +
		" LIMIT " + arg(p.PerPage) + " OFFSET " + arg(p.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

// DriverStats summarizes the driver's collection history. The cumulative
// variance is the latest non-cancelled collection's running total.
func (r *repository) DriverStats(ctx context.Context, driverID int64) (*DriverStats, error) {
	s := DriverStats{DriverID: driverID}
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'SUBMITTED'),
		       COUNT(*) FILTER (WHERE status = 'VERIFIED'),
		       COUNT(*) FILTER (WHERE status = 'RECONCILED'),
		       COUNT(*) FILTER (WHERE status = 'CANCELLED'),
		       COALESCE(SUM(total_received) FILTER (WHERE status <> 'CANCELLED'), 0),
		       COALESCE(SUM(credit_given) FILTER (WHERE status <> 'CANCELLED'), 0)
		FROM cash_collections
		WHERE driver_id = $1
	`, driverID).Scan(&s.Collections, &s.Submitted, &s.Verified, &s.Reconciled,
		&s.Cancelled, &s.TotalReceived, &s.TotalCreditGiven)
	if err != nil {
		return nil, err
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COALESCE((
			SELECT cumulative_variance FROM cash_collections
			WHERE driver_id = $1 AND status <> 'CANCELLED'
			ORDER BY collection_date DESC, id DESC LIMIT 1
		), 0)
	`, driverID).Scan(&s.CumulativeVariance)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetForUpdate locks one collection.
func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (*Collection, error) {
	query := `SELECT ` + collectionColumns + ` FROM cash_collections c WHERE c.id = $1 FOR UPDATE`
	return scanCollection(t.tx.QueryRow(ctx, query, id))
}

// GetDispatchForUpdate locks the dispatch header and items being settled.
func (t *txRepository) GetDispatchForUpdate(ctx context.Context, dispatchID int64) (*dispatch.Dispatch, error) {
	var d dispatch.Dispatch
	err := t.tx.QueryRow(ctx, `
		SELECT id, dispatch_no, driver_id, dispatch_date, status, total_value, crates_loaded
		FROM dispatches WHERE id = $1 FOR UPDATE
	`, dispatchID).Scan(&d.ID, &d.DispatchNo, &d.DriverID, &d.DispatchDate,
		&d.Status, &d.TotalValue, &d.CratesLoaded)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dispatch.ErrNotFound
		}
		return nil, err
	}

	rows, err := t.tx.Query(ctx, `
		SELECT id, dispatch_id, product_id, quantity, remaining, rate, value, unit_cost
		FROM dispatch_items WHERE dispatch_id = $1 ORDER BY id FOR UPDATE
	`, dispatchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it dispatch.Item
		if err := rows.Scan(&it.ID, &it.DispatchID, &it.ProductID, &it.Quantity,
			&it.Remaining, &it.Rate, &it.Value, &it.UnitCost); err != nil {
			return nil, err
		}
		d.Items = append(d.Items, it)
	}
	return &d, rows.Err()
}

// InsertCollection creates the collection row. A second non-cancelled
// collection for the dispatch trips the partial unique index and maps to
// ErrDuplicate.
func (t *txRepository) InsertCollection(ctx context.Context, c Collection) (int64, error) {
	denoms, err := json.Marshal(c.Denominations)
	if err != nil {
		return 0, fmt.Errorf("collection: encode denominations: %w", err)
	}

	query := `
		INSERT INTO cash_collections (
			collection_no, dispatch_id, driver_id, collection_date, status,
			denominations, coins, cash_total, cheque_total, online_total,
			credit_given, credit_recovered_cash, credit_recovered_cheque,
			bounce_recovered_cash, bounce_recovered_cheque, expense_amount,
			expense_notes, total_received, expected_cash, variance,
			previous_variance, cumulative_variance, crates_returned_full,
			crates_returned_empty, empty_bottles, notes,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		          $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24,
		          $25, $26, NOW(), NOW())
		RETURNING id
	`
	var id int64
	err = t.tx.QueryRow(ctx, query,
		c.CollectionNo, c.DispatchID, c.DriverID, c.Date, c.Status,
		denoms, c.Coins, c.CashTotal, c.ChequeTotal, c.OnlineTotal,
		c.CreditGiven, c.CreditRecoveredCash, c.CreditRecoveredCheque,
		c.BounceRecoveredCash, c.BounceRecoveredCheque, c.ExpenseAmount,
		c.ExpenseNotes, c.TotalReceived, c.ExpectedCash, c.Variance,
		c.PreviousVariance, c.CumulativeVariance, c.CratesReturnedFull,
		c.CratesReturnedEmpty, c.EmptyBottles, c.Notes,
	).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err, "cash_collections_dispatch_active_key") {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	return id, nil
}

// UpdateCollection rewrites an editable collection's amounts and derived
// figures.
func (t *txRepository) UpdateCollection(ctx context.Context, c Collection) error {
	denoms, err := json.Marshal(c.Denominations)
	if err != nil {
		return fmt.Errorf("collection: encode denominations: %w", err)
	}

	tag, err := t.tx.Exec(ctx, `
		UPDATE cash_collections SET
			denominations = $2, coins = $3, cash_total = $4,
			cheque_total = $5, online_total = $6, credit_given = $7,
			credit_recovered_cash = $8, credit_recovered_cheque = $9,
			bounce_recovered_cash = $10, bounce_recovered_cheque = $11,
			expense_amount = $12, expense_notes = $13, total_received = $14,
			variance = $15, cumulative_variance = $16,
			crates_returned_full = $17, crates_returned_empty = $18,
			empty_bottles = $19, notes = $20, updated_at = NOW()
		WHERE id = $1
	`, c.ID, denoms, c.Coins, c.CashTotal, c.ChequeTotal, c.OnlineTotal,
		c.CreditGiven, c.CreditRecoveredCash, c.CreditRecoveredCheque,
		c.BounceRecoveredCash, c.BounceRecoveredCheque, c.ExpenseAmount,
		c.ExpenseNotes, c.TotalReceived, c.Variance, c.CumulativeVariance,
		c.CratesReturnedFull, c.CratesReturnedEmpty, c.EmptyBottles, c.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCollection removes a collection row.
func (t *txRepository) DeleteCollection(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM cash_collections WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVerified stamps supervisor confirmation.
func (t *txRepository) SetVerified(ctx context.Context, id int64, verifiedBy int64, notes string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE cash_collections
		SET status = $2, verified_by = $3, verification_notes = $4,
		    verified_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id, StatusVerified, verifiedBy, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetReconciled closes the collection's financial period.
func (t *txRepository) SetReconciled(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE cash_collections
		SET status = $2, reconciled_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id, StatusReconciled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCancelled voids the collection.
func (t *txRepository) SetCancelled(ctx context.Context, id int64, reason string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE cash_collections
		SET status = $2, cancel_reason = $3, cancelled_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id, StatusCancelled, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PreviousCumulative reads the driver's latest running variance.
func (t *txRepository) PreviousCumulative(ctx context.Context, driverID int64) (float64, error) {
	var v float64
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE((
			SELECT cumulative_variance FROM cash_collections
			WHERE driver_id = $1 AND status <> 'CANCELLED'
			ORDER BY collection_date DESC, id DESC LIMIT 1
		), 0)
	`, driverID).Scan(&v)
	return v, err
}

// ZeroDispatchItemRemaining clears an item's remaining quantity once its
// unsold stock has been released back to the ledger.
func (t *txRepository) ZeroDispatchItemRemaining(ctx context.Context, itemID int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE dispatch_items SET remaining = 0 WHERE id = $1
	`, itemID)
	return err
}

// SetDispatchStatus moves the settled dispatch along its lifecycle.
func (t *txRepository) SetDispatchStatus(ctx context.Context, dispatchID int64, status dispatch.Status) error {
	var stampCol string
	switch status {
	case dispatch.StatusCompleted:
		stampCol = "completed_at"
	case dispatch.StatusSettled:
		stampCol = "settled_at"
	default:
		return fmt.Errorf("collection: no dispatch transition to %s", status)
	}
	_, err := t.tx.Exec(ctx, fmt.Sprintf(`
		UPDATE dispatches SET status = $2, %s = NOW(), updated_at = NOW() WHERE id = $1
	`, stampCol), dispatchID, status)
	return err
}

// NextCollectionNo issues the next collection document number for the date.
func (t *txRepository) NextCollectionNo(ctx context.Context, date time.Time) (string, error) {
	return shared.NextDocNumber(ctx, t.tx, "COL", date)
}

// Stock returns the batch ledger bound to this transaction.
func (t *txRepository) Stock() stock.TxRepository {
	return t.stock
}
