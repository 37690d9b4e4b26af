package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-dms/meridian-dms/internal/platform/db"
)

// Repository defines stock batch persistence.
type Repository interface {
	// Read operations
	GetBatch(ctx context.Context, id int64) (*Batch, error)
	List(ctx context.Context, filter ListFilter) ([]Batch, error)
	Availability(ctx context.Context, productID int64) (*Availability, error)
	Summary(ctx context.Context) ([]ProductSummary, error)
	LowStock(ctx context.Context, threshold float64) ([]LowStockAlert, error)
	Stats(ctx context.Context, from, to time.Time) (*IntakeStats, error)

	// Write operations (transactional)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional batch operations. Packages that
// allocate or release stock inside their own transactions obtain one via
// NewTxStore over their pgx.Tx.
type TxRepository interface {
	InsertBatch(ctx context.Context, b Batch) (int64, error)
	GetBatchForUpdate(ctx context.Context, id int64) (*Batch, error)
	OpenBatchesForUpdate(ctx context.Context, productID int64) ([]Batch, error)
	LatestBatchForUpdate(ctx context.Context, productID int64) (*Batch, error)
	DeductFromBatch(ctx context.Context, batchID int64, qty float64) error
	AddToBatch(ctx context.Context, batchID int64, qty float64) error
	MarkDamaged(ctx context.Context, in WriteOffInput) error
}

// repository implements Repository using pgxpool.
type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// txStore implements TxRepository over a pgx transaction.
type txStore struct {
	tx pgx.Tx
}

// NewTxStore wraps an open transaction so callers outside this package can
// run ledger operations atomically with their own writes.
func NewTxStore(tx pgx.Tx) TxRepository {
	return &txStore{tx: tx}
}

// WithTx wraps callback in a repeatable-read transaction with serialization
// retry.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxRetry(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{tx: tx})
	})
}

const batchColumns = `id, product_id, batch_no, received, remaining, purchase_rate,
	       selling_rate, total_value, received_at, expires_at, is_damaged,
	       damage_reason, damaged_qty, damaged_by, damaged_at, created_at, updated_at`

func scanBatch(row pgx.Row) (*Batch, error) {
	var b Batch
	err := row.Scan(
		&b.ID, &b.ProductID, &b.BatchNo, &b.Received, &b.Remaining,
		&b.PurchaseRate, &b.SellingRate, &b.TotalValue, &b.ReceivedAt,
		&b.ExpiresAt, &b.IsDamaged, &b.DamageReason, &b.DamagedQty,
		&b.DamagedBy, &b.DamagedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}
	return &b, nil
}

// GetBatch retrieves a batch by ID.
func (r *repository) GetBatch(ctx context.Context, id int64) (*Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM stock_batches WHERE id = $1`
	return scanBatch(r.pool.QueryRow(ctx, query, id))
}

// List returns batches matching the filter, newest first.
func (r *repository) List(ctx context.Context, filter ListFilter) ([]Batch, error) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ProductID > 0 {
		conds = append(conds, "product_id = "+arg(filter.ProductID))
	}
	if filter.BatchNo != "" {
		conds = append(conds, "batch_no ILIKE "+arg("%"+filter.BatchNo+"%"))
	}
	if !filter.From.IsZero() {
		conds = append(conds, "received_at >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "received_at <= "+arg(filter.To))
	}

	query := `SELECT ` + batchColumns + ` FROM stock_batches`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY received_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

// Availability lists a product's open batches in FIFO order.
func (r *repository) Availability(ctx context.Context, productID int64) (*Availability, error) {
	query := `SELECT ` + batchColumns + `
		FROM stock_batches
		WHERE product_id = $1 AND remaining > 0 AND NOT is_damaged
		ORDER BY received_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	av := Availability{ProductID: productID}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		av.Batches = append(av.Batches, *b)
		av.TotalAvailable += b.Remaining
	}
	return &av, rows.Err()
}

// Summary aggregates open stock per product.
func (r *repository) Summary(ctx context.Context) ([]ProductSummary, error) {
	query := `
		SELECT b.product_id, p.name, p.size,
		       COALESCE(SUM(b.remaining), 0),
		       COALESCE(SUM(b.remaining * b.purchase_rate), 0),
		       COUNT(*)
		FROM stock_batches b
		JOIN products p ON p.id = b.product_id
		WHERE b.remaining > 0 AND NOT b.is_damaged
		GROUP BY b.product_id, p.name, p.size
		ORDER BY p.name
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProductSummary
	for rows.Next() {
		var s ProductSummary
		if err := rows.Scan(&s.ProductID, &s.ProductName, &s.ProductSize, &s.Quantity, &s.Value, &s.Batches); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LowStock returns products whose total remaining fell under threshold.
func (r *repository) LowStock(ctx context.Context, threshold float64) ([]LowStockAlert, error) {
	query := `
		SELECT p.id, p.name, COALESCE(SUM(b.remaining), 0) AS remaining
		FROM products p
		LEFT JOIN stock_batches b ON b.product_id = p.id AND NOT b.is_damaged
		WHERE p.is_active
		GROUP BY p.id, p.name
		HAVING COALESCE(SUM(b.remaining), 0) < $1
		ORDER BY remaining ASC
	`
	rows, err := r.pool.Query(ctx, query, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LowStockAlert
	for rows.Next() {
		var a LowStockAlert
		if err := rows.Scan(&a.ProductID, &a.ProductName, &a.Remaining); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Stats aggregates intake activity over a period.
func (r *repository) Stats(ctx context.Context, from, to time.Time) (*IntakeStats, error) {
	query := `
		SELECT COALESCE(SUM(total_value), 0),
		       COALESCE(SUM(received), 0),
		       COALESCE(SUM(remaining), 0),
		       COUNT(*)
		FROM stock_batches
		WHERE received_at >= $1 AND received_at <= $2
	`
	var s IntakeStats
	err := r.pool.QueryRow(ctx, query, from, to).Scan(
		&s.TotalValue, &s.QuantityReceived, &s.QuantityRemaining, &s.Batches,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// InsertBatch creates a batch row. A duplicate (product_id, batch_no) pair
// maps to ErrDuplicateBatch.
func (s *txStore) InsertBatch(ctx context.Context, b Batch) (int64, error) {
	query := `
		INSERT INTO stock_batches (
			product_id, batch_no, received, remaining, purchase_rate,
			selling_rate, total_value, received_at, expires_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id
	`
	var id int64
	err := s.tx.QueryRow(ctx, query,
		b.ProductID, b.BatchNo, b.Received, b.Remaining, b.PurchaseRate,
		b.SellingRate, b.TotalValue, b.ReceivedAt, b.ExpiresAt,
	).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err, "stock_batches_product_batch_no_key") {
			return 0, ErrDuplicateBatch
		}
		return 0, err
	}
	return id, nil
}

// GetBatchForUpdate locks and returns one batch.
func (s *txStore) GetBatchForUpdate(ctx context.Context, id int64) (*Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM stock_batches WHERE id = $1 FOR UPDATE`
	return scanBatch(s.tx.QueryRow(ctx, query, id))
}

// OpenBatchesForUpdate locks a product's open batches in FIFO order.
func (s *txStore) OpenBatchesForUpdate(ctx context.Context, productID int64) ([]Batch, error) {
	query := `SELECT ` + batchColumns + `
		FROM stock_batches
		WHERE product_id = $1 AND remaining > 0 AND NOT is_damaged
		ORDER BY received_at ASC, id ASC
		FOR UPDATE`
	rows, err := s.tx.Query(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

// LatestBatchForUpdate locks the most recently received batch of a product.
func (s *txStore) LatestBatchForUpdate(ctx context.Context, productID int64) (*Batch, error) {
	query := `SELECT ` + batchColumns + `
		FROM stock_batches
		WHERE product_id = $1 AND NOT is_damaged
		ORDER BY received_at DESC, id DESC
		LIMIT 1
		FOR UPDATE`
	return scanBatch(s.tx.QueryRow(ctx, query, productID))
}

// DeductFromBatch decrements a batch's remaining quantity. The guard in the
// WHERE clause keeps remaining non-negative even if the plan raced another
// writer; zero rows affected aborts the transaction.
func (s *txStore) DeductFromBatch(ctx context.Context, batchID int64, qty float64) error {
	tag, err := s.tx.Exec(ctx, `
		UPDATE stock_batches
		SET remaining = remaining - $2, updated_at = NOW()
		WHERE id = $1 AND remaining >= $2
	`, batchID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: batch %d deduct %.2f", ErrNegativeStock, batchID, qty)
	}
	return nil
}

// AddToBatch increments a batch's remaining quantity.
func (s *txStore) AddToBatch(ctx context.Context, batchID int64, qty float64) error {
	tag, err := s.tx.Exec(ctx, `
		UPDATE stock_batches
		SET remaining = remaining + $2, updated_at = NOW()
		WHERE id = $1
	`, batchID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

// MarkDamaged records a write-off against a batch and removes the damaged
// quantity from circulation.
func (s *txStore) MarkDamaged(ctx context.Context, in WriteOffInput) error {
	tag, err := s.tx.Exec(ctx, `
		UPDATE stock_batches
		SET is_damaged = TRUE,
		    damage_reason = $2,
		    damaged_qty = $3,
		    damaged_by = $4,
		    damaged_at = NOW(),
		    remaining = remaining - $3,
		    updated_at = NOW()
		WHERE id = $1 AND NOT is_damaged AND remaining >= $3
	`, in.BatchID, in.Reason, in.Quantity, in.ActorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyDamaged
	}
	return nil
}
