package sale

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-dms/meridian-dms/internal/dispatch"
	"github.com/meridian-dms/meridian-dms/internal/platform/db"
	"github.com/meridian-dms/meridian-dms/internal/shared"
)

// Repository defines sale persistence.
type Repository interface {
	// Read operations
	GetByID(ctx context.Context, id int64) (*Sale, error)
	List(ctx context.Context, filter ListFilter) ([]Sale, int, error)
	DailySummary(ctx context.Context, driverID int64, date time.Time) (*DailySummary, error)
	SettlementReport(ctx context.Context, dispatchID int64) (*SettlementReport, error)

	// Write operations (transactional)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional sale writes. The dispatch item
// decrement lives here rather than in the dispatch package because it must
// commit atomically with the sale insert.
type TxRepository interface {
	GetDispatchForUpdate(ctx context.Context, dispatchID int64) (*dispatch.Dispatch, error)
	DecrementItemRemaining(ctx context.Context, itemID int64, qty float64) error
	InsertSale(ctx context.Context, s Sale) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	InsertCheque(ctx context.Context, c Cheque) (int64, error)
	NextSaleNo(ctx context.Context, date time.Time) (string, error)
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
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction with
// serialization retry.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxRetry(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const saleColumns = `s.id, s.sale_no, s.dispatch_id, s.driver_id, s.retailer_id,
	       s.sale_date, s.total_amount, s.cash_amount, s.cheque_amount,
	       s.credit_amount, s.total_paid, s.empty_bottles,
	       s.notes, s.created_at, s.updated_at`

// GetByID retrieves a sale with its items.
func (r *repository) GetByID(ctx context.Context, id int64) (*Sale, error) {
	query := `SELECT ` + saleColumns + `, rt.name
		FROM sales s
		JOIN retailers rt ON rt.id = s.retailer_id
		WHERE s.id = $1`
	var s Sale
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.SaleNo, &s.DispatchID, &s.DriverID, &s.RetailerID,
		&s.SaleDate, &s.TotalAmount, &s.CashAmount, &s.ChequeAmount,
		&s.CreditAmount, &s.TotalPaid, &s.EmptyBottles,
		&s.Notes, &s.CreatedAt, &s.UpdatedAt, &s.RetailerName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.sale_id, i.product_id, p.name, i.quantity, i.rate, i.amount
		FROM sale_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.sale_id = $1
		ORDER BY i.id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.SaleID, &it.ProductID, &it.ProductName,
			&it.Quantity, &it.Rate, &it.Amount); err != nil {
			return nil, err
		}
		s.Items = append(s.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chequeRows, err := r.pool.Query(ctx, `
		SELECT id, sale_id, number, amount, photo_url
		FROM sale_cheques
		WHERE sale_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer chequeRows.Close()
	for chequeRows.Next() {
		var c Cheque
		if err := chequeRows.Scan(&c.ID, &c.SaleID, &c.Number, &c.Amount, &c.PhotoURL); err != nil {
			return nil, err
		}
		s.Cheques = append(s.Cheques, c)
	}
	return &s, chequeRows.Err()
}

// List returns a filtered sale page, newest first, with the total count.
func (r *repository) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.DispatchID > 0 {
		conds = append(conds, "s.dispatch_id = "+arg(filter.DispatchID))
	}
	if filter.DriverID > 0 {
		conds = append(conds, "s.driver_id = "+arg(filter.DriverID))
	}
	if filter.RetailerID > 0 {
		conds = append(conds, "s.retailer_id = "+arg(filter.RetailerID))
	}
	if !filter.From.IsZero() {
		conds = append(conds, "s.sale_date >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "s.sale_date <= "+arg(filter.To))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM sales s"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	p := shared.NewPagination(filter.Page, filter.Limit, total)
	query := `SELECT ` + saleColumns + `, rt.name
		FROM sales s
		JOIN retailers rt ON rt.id = s.retailer_id` + where +
		" ORDER BY s.sale_date DESC, s.id DESC" +
		" LIMIT " + arg(p.PerPage) + " OFFSET " + arg(p.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Sale
	for rows.Next() {
		var s Sale
		if err := rows.Scan(
			&s.ID, &s.SaleNo, &s.DispatchID, &s.DriverID, &s.RetailerID,
			&s.SaleDate, &s.TotalAmount, &s.CashAmount, &s.ChequeAmount,
			&s.CreditAmount, &s.TotalPaid, &s.EmptyBottles,
			&s.Notes, &s.CreatedAt, &s.UpdatedAt, &s.RetailerName,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// DailySummary aggregates one driver's sales for a day.
func (r *repository) DailySummary(ctx context.Context, driverID int64, date time.Time) (*DailySummary, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(total_amount), 0),
		       COALESCE(SUM(cash_amount), 0),
		       COALESCE(SUM(cheque_amount), 0),
		       COALESCE(SUM(credit_amount), 0)
		FROM sales
		WHERE driver_id = $1 AND sale_date::date = $2
	`
	s := DailySummary{DriverID: driverID, Date: date.Format("2006-01-02")}
	err := r.pool.QueryRow(ctx, query, driverID, date.Format("2006-01-02")).Scan(
		&s.Sales, &s.TotalAmount, &s.CashAmount, &s.ChequeAmount, &s.CreditAmount,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SettlementReport compares loaded vs sold per dispatch item.
func (r *repository) SettlementReport(ctx context.Context, dispatchID int64) (*SettlementReport, error) {
	var rep SettlementReport
	err := r.pool.QueryRow(ctx, `
		SELECT id, dispatch_no, driver_id FROM dispatches WHERE id = $1
	`, dispatchID).Scan(&rep.DispatchID, &rep.DispatchNo, &rep.DriverID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dispatch.ErrNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT i.product_id, p.name, i.quantity, i.remaining, i.rate
		FROM dispatch_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.dispatch_id = $1
		ORDER BY i.id
	`, dispatchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l SettlementLine
		if err := rows.Scan(&l.ProductID, &l.ProductName, &l.Loaded, &l.Remaining, &l.Rate); err != nil {
			return nil, err
		}
		l.Sold = l.Loaded - l.Remaining
		l.SoldValue = l.Sold * l.Rate
		rep.Lines = append(rep.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_amount), 0),
		       COALESCE(SUM(cash_amount), 0),
		       COALESCE(SUM(cheque_amount), 0),
		       COALESCE(SUM(credit_amount), 0)
		FROM sales WHERE dispatch_id = $1
	`, dispatchID).Scan(&rep.TotalSales, &rep.CashAmount, &rep.ChequeAmount, &rep.CreditAmount)
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

// GetDispatchForUpdate locks the dispatch header and items for the sale.
func (t *txRepository) GetDispatchForUpdate(ctx context.Context, dispatchID int64) (*dispatch.Dispatch, error) {
	var d dispatch.Dispatch
	err := t.tx.QueryRow(ctx, `
		SELECT id, dispatch_no, driver_id, dispatch_date, status, total_value
		FROM dispatches WHERE id = $1 FOR UPDATE
	`, dispatchID).Scan(&d.ID, &d.DispatchNo, &d.DriverID, &d.DispatchDate, &d.Status, &d.TotalValue)
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

// DecrementItemRemaining consumes dispatch item quantity. The WHERE guard
// mirrors the batch ledger: the service already checked remaining, so zero
// rows affected indicates a race and aborts the transaction.
func (t *txRepository) DecrementItemRemaining(ctx context.Context, itemID int64, qty float64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE dispatch_items
		SET remaining = remaining - $2
		WHERE id = $1 AND remaining >= $2
	`, itemID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: item %d", ErrInsufficientDispatchStock, itemID)
	}
	return nil
}

// InsertSale creates the sale header.
func (t *txRepository) InsertSale(ctx context.Context, s Sale) (int64, error) {
	query := `
		INSERT INTO sales (
			sale_no, dispatch_id, driver_id, retailer_id, sale_date,
			total_amount, cash_amount, cheque_amount, credit_amount,
			total_paid, empty_bottles, notes,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		s.SaleNo, s.DispatchID, s.DriverID, s.RetailerID, s.SaleDate,
		s.TotalAmount, s.CashAmount, s.ChequeAmount, s.CreditAmount,
		s.TotalPaid, s.EmptyBottles, s.Notes,
	).Scan(&id)
	return id, err
}

// InsertCheque stores one cheque received against the sale.
func (t *txRepository) InsertCheque(ctx context.Context, c Cheque) (int64, error) {
	query := `
		INSERT INTO sale_cheques (sale_id, number, amount, photo_url)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query, c.SaleID, c.Number, c.Amount, c.PhotoURL).Scan(&id)
	return id, err
}

// InsertItem creates one sale line.
func (t *txRepository) InsertItem(ctx context.Context, item Item) (int64, error) {
	query := `
		INSERT INTO sale_items (sale_id, product_id, quantity, rate, amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		item.SaleID, item.ProductID, item.Quantity, item.Rate, item.Amount,
	).Scan(&id)
	return id, err
}

// NextSaleNo issues the next sale document number for the date.
func (t *txRepository) NextSaleNo(ctx context.Context, date time.Time) (string, error) {
	return shared.NextDocNumber(ctx, t.tx, "SAL", date)
}
