package recon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-dms/meridian-dms/internal/collection"
	"github.com/meridian-dms/meridian-dms/internal/picklist"
	"github.com/meridian-dms/meridian-dms/internal/platform/db"
	"github.com/meridian-dms/meridian-dms/internal/shared"
)

// Repository defines reconciliation persistence. Results live on the pick
// list rows; this repository only reads collections and pick lists and
// writes the recon columns back.
type Repository interface {
	// Read operations
	Reports(ctx context.Context, filter ReportFilter) ([]picklist.PickList, int, error)
	Stats(ctx context.Context) (*Stats, error)
	// Candidates lists collections on the given date whose dispatch
	// references a pick list still pending reconciliation.
	Candidates(ctx context.Context, date time.Time) ([]Pair, error)

	// Write operations (transactional)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the reads and the write-back reconciliation needs
// inside one transaction.
type TxRepository interface {
	GetPickListForUpdate(ctx context.Context, id int64) (*picklist.PickList, error)
	GetCollection(ctx context.Context, id int64) (*collection.Collection, error)
	SaveResult(ctx context.Context, res Result) error
}

// repository implements Repository using pgxpool.
type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction with
// serialization retry.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxRetry(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const reportColumns = `p.id, p.number, p.vehicle, p.route, p.salesman,
	       p.load_out_date, p.crates_loaded, p.expected_total,
	       p.stock_reduced, p.reduced_at, p.recon_status, p.recon_expected,
	       p.recon_actual, p.recon_variance, p.recon_variance_pct,
	       p.recon_collection_id, p.reconciled_at, p.created_at, p.updated_at`

func scanReport(row pgx.Row) (*picklist.PickList, error) {
	var p picklist.PickList
	err := row.Scan(
		&p.ID, &p.Number, &p.Vehicle, &p.Route, &p.Salesman,
		&p.LoadOutDate, &p.CratesLoaded, &p.ExpectedTotal,
		&p.StockReduced, &p.ReducedAt, &p.ReconStatus, &p.ReconExpected,
		&p.ReconActual, &p.ReconVariance, &p.ReconVariancePct,
		&p.ReconCollectionID, &p.ReconciledAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, picklist.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Reports lists reconciled pick lists, newest outcome first.
func (r *repository) Reports(ctx context.Context, filter ReportFilter) ([]picklist.PickList, int, error) {
	conds := []string{"p.recon_status <> 'PENDING'"}
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		conds = []string{"p.recon_status = " + arg(filter.Status)}
	}
	if !filter.From.IsZero() {
		conds = append(conds, "p.load_out_date >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "p.load_out_date <= "+arg(filter.To))
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM pick_lists p"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pg := shared.NewPagination(filter.Page, filter.Limit, total)
	query := `SELECT ` + reportColumns + ` FROM pick_lists p` + where +
		" ORDER BY p.reconciled_at DESC NULLS LAST, p.id DESC" +
		" LIMIT " + arg(pg.PerPage) + " OFFSET " + arg(pg.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []picklist.PickList
	for rows.Next() {
		p, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}

// Stats aggregates reconciliation outcomes.
func (r *repository) Stats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE recon_status = 'PENDING'),
		       COUNT(*) FILTER (WHERE recon_status = 'MATCHED'),
		       COUNT(*) FILTER (WHERE recon_status = 'EXCESS'),
		       COUNT(*) FILTER (WHERE recon_status = 'SHORTAGE'),
		       COALESCE(SUM(recon_expected) FILTER (WHERE recon_status <> 'PENDING'), 0),
		       COALESCE(SUM(recon_actual) FILTER (WHERE recon_status <> 'PENDING'), 0),
		       COALESCE(SUM(recon_variance) FILTER (WHERE recon_status <> 'PENDING'), 0)
		FROM pick_lists`
	var s Stats
	err := r.pool.QueryRow(ctx, query).Scan(
		&s.Total, &s.Pending, &s.Matched, &s.Excess, &s.Shortage,
		&s.TotalExpected, &s.TotalActual, &s.TotalVariance,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Candidates pairs the date's non-cancelled collections with the pending
// pick lists their dispatches were loaded from.
func (r *repository) Candidates(ctx context.Context, date time.Time) ([]Pair, error) {
	query := `
		SELECT d.pick_list_id, c.id
		FROM cash_collections c
		JOIN dispatches d ON d.id = c.dispatch_id
		JOIN pick_lists p ON p.id = d.pick_list_id
		WHERE c.collection_date::date = $1
		  AND c.status <> 'CANCELLED'
		  AND p.recon_status = 'PENDING'
		ORDER BY c.id`
	rows, err := r.pool.Query(ctx, query, date.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []Pair
	for rows.Next() {
		var p Pair
		if err := rows.Scan(&p.PickListID, &p.CollectionID); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// GetPickListForUpdate locks the pick list and loads its items.
func (t *txRepository) GetPickListForUpdate(ctx context.Context, id int64) (*picklist.PickList, error) {
	query := `SELECT ` + reportColumns + ` FROM pick_lists p WHERE p.id = $1 FOR UPDATE`
	p, err := scanReport(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	rows, err := t.tx.Query(ctx, `
		SELECT id, pick_list_id, item_code, item_name, sell_qty, lo_qty, mrp
		FROM pick_list_items WHERE pick_list_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it picklist.Item
		if err := rows.Scan(&it.ID, &it.PickListID, &it.ItemCode, &it.ItemName,
			&it.SellQty, &it.LoQty, &it.MRP); err != nil {
			return nil, err
		}
		p.Items = append(p.Items, it)
	}
	return p, rows.Err()
}

// GetCollection reads the payment totals reconciliation compares against.
func (t *txRepository) GetCollection(ctx context.Context, id int64) (*collection.Collection, error) {
	var c collection.Collection
	err := t.tx.QueryRow(ctx, `
		SELECT id, dispatch_id, driver_id, status, cash_total, cheque_total,
		       online_total, credit_given, crates_returned_full,
		       crates_returned_empty
		FROM cash_collections WHERE id = $1`, id,
	).Scan(
		&c.ID, &c.DispatchID, &c.DriverID, &c.Status, &c.CashTotal,
		&c.ChequeTotal, &c.OnlineTotal, &c.CreditGiven,
		&c.CratesReturnedFull, &c.CratesReturnedEmpty,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, collection.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// SaveResult overwrites the pick list's reconciliation columns. Re-running
// a reconciliation replaces the previous outcome.
func (t *txRepository) SaveResult(ctx context.Context, res Result) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE pick_lists
		SET recon_status = $2, recon_expected = $3, recon_actual = $4,
		    recon_variance = $5, recon_variance_pct = $6,
		    recon_collection_id = $7, reconciled_at = $8, updated_at = now()
		WHERE id = $1`,
		res.PickListID, res.Status, res.ExpectedTotal, res.ActualTotal,
		res.Variance, res.VariancePct, res.CollectionID, res.ReconciledAt,
	)
	return err
}
