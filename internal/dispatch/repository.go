package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-dms/meridian-dms/internal/platform/db"
	"github.com/meridian-dms/meridian-dms/internal/shared"
	"github.com/meridian-dms/meridian-dms/internal/stock"
)

// Repository defines dispatch persistence.
type Repository interface {
	// Read operations
	GetByID(ctx context.Context, id int64) (*Dispatch, error)
	GetActiveByDriver(ctx context.Context, driverID int64, date time.Time) (*Dispatch, error)
	List(ctx context.Context, filter ListFilter) ([]Dispatch, int, error)
	Stats(ctx context.Context, from, to time.Time) (*Stats, error)

	// Write operations (transactional)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional dispatch writes plus the stock ledger
// bound to the same transaction, so loading a truck and deducting batches
// commit or roll back together.
type TxRepository interface {
	InsertDispatch(ctx context.Context, d Dispatch) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	InsertCashFloat(ctx context.Context, dispatchID int64, denoms []Denomination) error
	GetForUpdate(ctx context.Context, id int64) (*Dispatch, error)
	UpdateStatus(ctx context.Context, id int64, status Status, reason string) error
	NextDispatchNo(ctx context.Context, date time.Time) (string, error)
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

const dispatchColumns = `d.id, d.dispatch_no, d.driver_id, d.dispatch_date, d.status,
	       d.pick_list_id, d.total_value, d.total_cash_value, d.crates_loaded,
	       d.notes, d.created_by,
	       d.completed_at, d.settled_at, d.cancelled_at, d.cancel_reason,
	       d.created_at, d.updated_at`

func scanDispatch(row pgx.Row) (*Dispatch, error) {
	var d Dispatch
	err := row.Scan(
		&d.ID, &d.DispatchNo, &d.DriverID, &d.DispatchDate, &d.Status,
		&d.PickListID, &d.TotalValue, &d.TotalCashValue, &d.CratesLoaded,
		&d.Notes, &d.CreatedBy,
		&d.CompletedAt, &d.SettledAt, &d.CancelledAt, &d.CancelReason,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// GetByID retrieves a dispatch with its items.
func (r *repository) GetByID(ctx context.Context, id int64) (*Dispatch, error) {
	query := `SELECT ` + dispatchColumns + `, dr.name
		FROM dispatches d
		JOIN drivers dr ON dr.id = d.driver_id
		WHERE d.id = $1`
	var d Dispatch
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.DispatchNo, &d.DriverID, &d.DispatchDate, &d.Status,
		&d.PickListID, &d.TotalValue, &d.TotalCashValue, &d.CratesLoaded,
		&d.Notes, &d.CreatedBy,
		&d.CompletedAt, &d.SettledAt, &d.CancelledAt, &d.CancelReason,
		&d.CreatedAt, &d.UpdatedAt, &d.DriverName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	items, err := r.getItems(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Items = items

	denoms, err := r.getCashFloat(ctx, id)
	if err != nil {
		return nil, err
	}
	d.CashFloat = denoms
	return &d, nil
}

func (r *repository) getCashFloat(ctx context.Context, dispatchID int64) ([]Denomination, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT note_value, note_count
		FROM dispatch_cash_float
		WHERE dispatch_id = $1
		ORDER BY note_value DESC
	`, dispatchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Denomination
	for rows.Next() {
		var d Denomination
		if err := rows.Scan(&d.Value, &d.Count); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetActiveByDriver returns the driver's active dispatch for the date.
func (r *repository) GetActiveByDriver(ctx context.Context, driverID int64, date time.Time) (*Dispatch, error) {
	query := `SELECT ` + dispatchColumns + `
		FROM dispatches d
		WHERE d.driver_id = $1 AND d.dispatch_date = $2 AND d.status = $3`
	d, err := scanDispatch(r.pool.QueryRow(ctx, query, driverID, date.Format("2006-01-02"), StatusActive))
	if err != nil {
		return nil, err
	}

	items, err := r.getItems(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	d.Items = items

	denoms, err := r.getCashFloat(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	d.CashFloat = denoms
	return d, nil
}

func (r *repository) getItems(ctx context.Context, dispatchID int64) ([]Item, error) {
	query := `
		SELECT i.id, i.dispatch_id, i.product_id, p.name, i.quantity,
		       i.remaining, i.rate, i.value, i.unit_cost
		FROM dispatch_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.dispatch_id = $1
		ORDER BY i.id
	`
	rows, err := r.pool.Query(ctx, query, dispatchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.DispatchID, &it.ProductID, &it.ProductName,
			&it.Quantity, &it.Remaining, &it.Rate, &it.Value, &it.UnitCost); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// List returns a filtered dispatch page, newest first, with the total count.
func (r *repository) List(ctx context.Context, filter ListFilter) ([]Dispatch, int, error) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.DriverID > 0 {
		conds = append(conds, "d.driver_id = "+arg(filter.DriverID))
	}
	if filter.Status != "" {
		conds = append(conds, "d.status = "+arg(filter.Status))
	}
	if !filter.From.IsZero() {
		conds = append(conds, "d.dispatch_date >= "+arg(filter.From.Format("2006-01-02")))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "d.dispatch_date <= "+arg(filter.To.Format("2006-01-02")))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM dispatches d"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	p := shared.NewPagination(filter.Page, filter.Limit, total)
	query := `SELECT ` + dispatchColumns + `, dr.name
		FROM dispatches d
		JOIN drivers dr ON dr.id = d.driver_id` + where +
		" ORDER BY d.dispatch_date DESC, d.id DESC" +
		" LIMIT " + arg(p.PerPage) + " OFFSET " + arg(p.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Dispatch
	for rows.Next() {
		var d Dispatch
		if err := rows.Scan(
			&d.ID, &d.DispatchNo, &d.DriverID, &d.DispatchDate, &d.Status,
			&d.PickListID, &d.TotalValue, &d.TotalCashValue, &d.CratesLoaded,
			&d.Notes, &d.CreatedBy,
			&d.CompletedAt, &d.SettledAt, &d.CancelledAt, &d.CancelReason,
			&d.CreatedAt, &d.UpdatedAt, &d.DriverName,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// Stats aggregates dispatch counts and value over a period.
func (r *repository) Stats(ctx context.Context, from, to time.Time) (*Stats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'ACTIVE'),
		       COUNT(*) FILTER (WHERE status = 'COMPLETED'),
		       COUNT(*) FILTER (WHERE status = 'SETTLED'),
		       COUNT(*) FILTER (WHERE status = 'CANCELLED'),
		       COALESCE(SUM(total_value) FILTER (WHERE status <> 'CANCELLED'), 0)
		FROM dispatches
		WHERE dispatch_date >= $1 AND dispatch_date <= $2
	`
	var s Stats
	err := r.pool.QueryRow(ctx, query, from.Format("2006-01-02"), to.Format("2006-01-02")).Scan(
		&s.Total, &s.Active, &s.Completed, &s.Settled, &s.Cancelled, &s.TotalValue,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// InsertDispatch creates the dispatch header. A second active dispatch for
// the same driver and date trips the partial unique index and maps to
// ErrActiveExists.
func (t *txRepository) InsertDispatch(ctx context.Context, d Dispatch) (int64, error) {
	query := `
		INSERT INTO dispatches (
			dispatch_no, driver_id, dispatch_date, status, pick_list_id,
			total_value, total_cash_value, crates_loaded, notes, created_by,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		d.DispatchNo, d.DriverID, d.DispatchDate.Format("2006-01-02"), d.Status,
		d.PickListID, d.TotalValue, d.TotalCashValue, d.CratesLoaded, d.Notes,
		d.CreatedBy,
	).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err, "dispatches_driver_date_active_key") {
			return 0, ErrActiveExists
		}
		return 0, err
	}
	return id, nil
}

// InsertItem creates one dispatch line.
func (t *txRepository) InsertItem(ctx context.Context, item Item) (int64, error) {
	query := `
		INSERT INTO dispatch_items (
			dispatch_id, product_id, quantity, remaining, rate, value, unit_cost
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		item.DispatchID, item.ProductID, item.Quantity, item.Remaining,
		item.Rate, item.Value, item.UnitCost,
	).Scan(&id)
	return id, err
}

// InsertCashFloat records the per-denomination change float rows.
func (t *txRepository) InsertCashFloat(ctx context.Context, dispatchID int64, denoms []Denomination) error {
	for _, d := range denoms {
		if d.Count == 0 {
			continue
		}
		_, err := t.tx.Exec(ctx, `
			INSERT INTO dispatch_cash_float (dispatch_id, note_value, note_count)
			VALUES ($1, $2, $3)
		`, dispatchID, d.Value, d.Count)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetForUpdate locks a dispatch header and loads its items.
func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (*Dispatch, error) {
	query := `SELECT ` + dispatchColumns + ` FROM dispatches d WHERE d.id = $1 FOR UPDATE`
	d, err := scanDispatch(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	rows, err := t.tx.Query(ctx, `
		SELECT id, dispatch_id, product_id, quantity, remaining, rate, value, unit_cost
		FROM dispatch_items WHERE dispatch_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.DispatchID, &it.ProductID, &it.Quantity,
			&it.Remaining, &it.Rate, &it.Value, &it.UnitCost); err != nil {
			return nil, err
		}
		d.Items = append(d.Items, it)
	}
	return d, rows.Err()
}

// UpdateStatus moves a dispatch to a new status and stamps the transition
// timestamp.
func (t *txRepository) UpdateStatus(ctx context.Context, id int64, status Status, reason string) error {
	var stampCol string
	switch status {
	case StatusCompleted:
		stampCol = "completed_at"
	case StatusSettled:
		stampCol = "settled_at"
	case StatusCancelled:
		stampCol = "cancelled_at"
	default:
		return fmt.Errorf("dispatch: no transition to %s", status)
	}

	query := fmt.Sprintf(`
		UPDATE dispatches
		SET status = $2, cancel_reason = $3, %s = NOW(), updated_at = NOW()
		WHERE id = $1
	`, stampCol)
	tag, err := t.tx.Exec(ctx, query, id, status, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NextDispatchNo issues the next dispatch document number for the date.
func (t *txRepository) NextDispatchNo(ctx context.Context, date time.Time) (string, error) {
	return shared.NextDocNumber(ctx, t.tx, "DSP", date)
}

// Stock returns the batch ledger bound to this transaction.
func (t *txRepository) Stock() stock.TxRepository {
	return t.stock
}
