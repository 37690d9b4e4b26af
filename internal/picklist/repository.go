package picklist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-dms/meridian-dms/internal/platform/db"
	"github.com/meridian-dms/meridian-dms/internal/shared"
	"github.com/meridian-dms/meridian-dms/internal/stock"
)

// Repository defines pick list persistence.
type Repository interface {
	// Read operations
	GetByID(ctx context.Context, id int64) (*PickList, error)
	GetByNumber(ctx context.Context, number string) (*PickList, error)
	List(ctx context.Context, filter ListFilter) ([]PickList, int, error)

	// Write operations (transactional)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional pick list writes plus the stock
// ledger bound to the same transaction.
type TxRepository interface {
	InsertPickList(ctx context.Context, p PickList) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (*PickList, error)
	SetStockReduced(ctx context.Context, id int64, reduced bool) error
	SetItemReducedQty(ctx context.Context, itemID int64, qty float64) error
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

const pickListColumns = `p.id, p.number, p.vehicle, p.route, p.salesman, p.load_out_date,
	       p.crates_loaded, p.expected_total, p.stock_reduced, p.reduced_at,
	       p.recon_status, p.recon_expected, p.recon_actual, p.recon_variance,
	       p.recon_variance_pct, p.recon_collection_id, p.reconciled_at,
	       p.created_at, p.updated_at`

func scanPickList(row pgx.Row) (*PickList, error) {
	var p PickList
	err := row.Scan(
		&p.ID, &p.Number, &p.Vehicle, &p.Route, &p.Salesman, &p.LoadOutDate,
		&p.CratesLoaded, &p.ExpectedTotal, &p.StockReduced, &p.ReducedAt,
		&p.ReconStatus, &p.ReconExpected, &p.ReconActual, &p.ReconVariance,
		&p.ReconVariancePct, &p.ReconCollectionID, &p.ReconciledAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) getOne(ctx context.Context, query string, args ...interface{}) (*PickList, error) {
	p, err := scanPickList(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, pick_list_id, item_code, item_name, sell_qty, lo_qty, mrp, reduced_qty
		FROM pick_list_items WHERE pick_list_id = $1 ORDER BY id
	`, p.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.PickListID, &it.ItemCode, &it.ItemName,
			&it.SellQty, &it.LoQty, &it.MRP, &it.ReducedQty); err != nil {
			return nil, err
		}
		p.Items = append(p.Items, it)
	}
	return p, rows.Err()
}

// GetByID retrieves a pick list with its items.
func (r *repository) GetByID(ctx context.Context, id int64) (*PickList, error) {
	return r.getOne(ctx, `SELECT `+pickListColumns+` FROM pick_lists p WHERE p.id = $1`, id)
}

// GetByNumber retrieves a pick list by manifest number.
func (r *repository) GetByNumber(ctx context.Context, number string) (*PickList, error) {
	return r.getOne(ctx, `SELECT `+pickListColumns+` FROM pick_lists p WHERE p.number = $1`, number)
}

// List returns a filtered pick list page, newest first, with the total
// count.
func (r *repository) List(ctx context.Context, filter ListFilter) ([]PickList, int, error) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Vehicle != "" {
		conds = append(conds, "p.vehicle ILIKE "+arg("%"+filter.Vehicle+"%"))
	}
	if !filter.From.IsZero() {
		conds = append(conds, "p.load_out_date >= "+arg(filter.From.Format("2006-01-02")))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "p.load_out_date <= "+arg(filter.To.Format("2006-01-02")))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM pick_lists p"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pg := shared.NewPagination(filter.Page, filter.Limit, total)
	query := `SELECT ` + pickListColumns + ` FROM pick_lists p` + where +
		" ORDER BY p.load_out_date DESC, p.id DESC" +
		" LIMIT " + arg(pg.PerPage) + " OFFSET " + arg(pg.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []PickList
	for rows.Next() {
		p, err := scanPickList(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}

// InsertPickList creates the manifest header. A repeated manifest number
// maps to ErrDuplicateNumber.
func (t *txRepository) InsertPickList(ctx context.Context, p PickList) (int64, error) {
	query := `
		INSERT INTO pick_lists (
			number, vehicle, route, salesman, load_out_date, crates_loaded,
			expected_total, stock_reduced, recon_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8, NOW(), NOW())
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		p.Number, p.Vehicle, p.Route, p.Salesman,
		p.LoadOutDate.Format("2006-01-02"), p.CratesLoaded,
		p.ExpectedTotal, ReconPending,
	).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err, "pick_lists_number_key") {
			return 0, ErrDuplicateNumber
		}
		return 0, err
	}
	return id, nil
}

// InsertItem creates one manifest line.
func (t *txRepository) InsertItem(ctx context.Context, item Item) (int64, error) {
	query := `
		INSERT INTO pick_list_items (
			pick_list_id, item_code, item_name, sell_qty, lo_qty, mrp, reduced_qty
		) VALUES ($1, $2, $3, $4, $5, $6, 0)
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		item.PickListID, item.ItemCode, item.ItemName, item.SellQty, item.LoQty, item.MRP,
	).Scan(&id)
	return id, err
}

// GetForUpdate locks a pick list and loads its items.
func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (*PickList, error) {
	p, err := scanPickList(t.tx.QueryRow(ctx,
		`SELECT `+pickListColumns+` FROM pick_lists p WHERE p.id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}

	rows, err := t.tx.Query(ctx, `
		SELECT id, pick_list_id, item_code, item_name, sell_qty, lo_qty, mrp, reduced_qty
		FROM pick_list_items WHERE pick_list_id = $1 ORDER BY id FOR UPDATE
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.PickListID, &it.ItemCode, &it.ItemName,
			&it.SellQty, &it.LoQty, &it.MRP, &it.ReducedQty); err != nil {
			return nil, err
		}
		p.Items = append(p.Items, it)
	}
	return p, rows.Err()
}

// SetStockReduced flips the idempotency flag for stock reduction.
func (t *txRepository) SetStockReduced(ctx context.Context, id int64, reduced bool) error {
	var query string
	if reduced {
		query = `UPDATE pick_lists SET stock_reduced = TRUE, reduced_at = NOW(), updated_at = NOW() WHERE id = $1`
	} else {
		query = `UPDATE pick_lists SET stock_reduced = FALSE, reduced_at = NULL, updated_at = NOW() WHERE id = $1`
	}
	tag, err := t.tx.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetItemReducedQty records how much stock one line consumed.
func (t *txRepository) SetItemReducedQty(ctx context.Context, itemID int64, qty float64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE pick_list_items SET reduced_qty = $2 WHERE id = $1
	`, itemID, qty)
	return err
}

// Stock returns the batch ledger bound to this transaction.
func (t *txRepository) Stock() stock.TxRepository {
	return t.stock
}
