package rgb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-dms/meridian-dms/internal/picklist"
	"github.com/meridian-dms/meridian-dms/internal/platform/db"
	"github.com/meridian-dms/meridian-dms/internal/shared"
	"github.com/meridian-dms/meridian-dms/internal/stock"
)

// Repository defines crate tracking persistence.
type Repository interface {
	// Read operations
	GetByID(ctx context.Context, id int64) (*Tracking, error)
	GetByPickList(ctx context.Context, pickListID int64) (*Tracking, error)
	List(ctx context.Context, filter ListFilter) ([]Tracking, int, error)
	Stats(ctx context.Context) (*Stats, error)

	// Write operations (transactional)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional tracking writes plus the pick list
// and stock access return processing needs in the same scope.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (*Tracking, error)
	GetByPickListForUpdate(ctx context.Context, pickListID int64) (*Tracking, error)
	GetPickList(ctx context.Context, pickListID int64) (*picklist.PickList, error)
	InsertTracking(ctx context.Context, t Tracking) (int64, error)
	UpdateTracking(ctx context.Context, t Tracking) error
	ReplaceItems(ctx context.Context, trackingID int64, items []ItemShare) error
	SetVerified(ctx context.Context, id int64, verifiedBy int64) error
	SetSettled(ctx context.Context, id int64) error
	SetDisputed(ctx context.Context, id int64, reason string) error
	SetResolved(ctx context.Context, id int64, status Status, notes string) error
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

const trackingColumns = `t.id, t.pick_list_id, t.driver_id, t.crates_loaded,
	       t.returned_full, t.returned_empty, t.sold_crates, t.expected_empty,
	       t.missing_empty, t.unit_value, t.penalty_amount, t.released_full,
	       t.status, t.dispute_reason, t.notes, t.verified_by, t.verified_at,
	       t.settled_at, t.created_at, t.updated_at`

func scanTracking(row pgx.Row) (*Tracking, error) {
	var t Tracking
	err := row.Scan(
		&t.ID, &t.PickListID, &t.DriverID, &t.CratesLoaded,
		&t.ReturnedFull, &t.ReturnedEmpty, &t.SoldCrates, &t.ExpectedEmpty,
		&t.MissingEmpty, &t.UnitValue, &t.PenaltyAmount, &t.ReleasedFull,
		&t.Status, &t.DisputeReason, &t.Notes, &t.VerifiedBy, &t.VerifiedAt,
		&t.SettledAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// GetByID retrieves a tracking record with its item shares.
func (r *repository) GetByID(ctx context.Context, id int64) (*Tracking, error) {
	query := `SELECT ` + trackingColumns + ` FROM rgb_trackings t WHERE t.id = $1`
	t, err := scanTracking(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	t.Items, err = r.loadItems(ctx, t.ID)
	return t, err
}

// GetByPickList retrieves a tracking record by its pick list.
func (r *repository) GetByPickList(ctx context.Context, pickListID int64) (*Tracking, error) {
	query := `SELECT ` + trackingColumns + ` FROM rgb_trackings t WHERE t.pick_list_id = $1`
	t, err := scanTracking(r.pool.QueryRow(ctx, query, pickListID))
	if err != nil {
		return nil, err
	}
	t.Items, err = r.loadItems(ctx, t.ID)
	return t, err
}

func (r *repository) loadItems(ctx context.Context, trackingID int64) ([]ItemShare, error) {
	query := `
		SELECT id, tracking_id, pick_list_item_id, item_code, item_name,
		       loaded_qty, full_share, empty_share, missing_share,
		       penalty_rate, penalty
		FROM rgb_tracking_items
		WHERE tracking_id = $1
		ORDER BY id`
	rows, err := r.pool.Query(ctx, query, trackingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ItemShare
	for rows.Next() {
		var it ItemShare
		if err := rows.Scan(
			&it.ID, &it.TrackingID, &it.PickListItemID, &it.ItemCode,
			&it.ItemName, &it.LoadedQty, &it.FullShare, &it.EmptyShare,
			&it.MissingShare, &it.PenaltyRate, &it.Penalty,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// List retrieves a filtered, paginated tracking page, newest first.
func (r *repository) List(ctx context.Context, filter ListFilter) ([]Tracking, int, error) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.DriverID > 0 {
		conds = append(conds, "t.driver_id = "+arg(filter.DriverID))
	}
	if filter.Status != "" {
		conds = append(conds, "t.status = "+arg(filter.Status))
	}
	if !filter.From.IsZero() {
		conds = append(conds, "t.created_at >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "t.created_at < "+arg(filter.To.AddDate(0, 0, 1)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM rgb_trackings t"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	p := shared.NewPagination(filter.Page, filter.Limit, total)
	query := `SELECT ` + trackingColumns + ` FROM rgb_trackings t` + where +
		" ORDER BY t.created_at DESC, t.id DESC" +
		" LIMIT " + arg(p.PerPage) + " OFFSET " + arg(p.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Tracking
	for rows.Next() {
		t, err := scanTracking(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	return out, total, rows.Err()
}

// Stats aggregates tracking records across statuses.
func (r *repository) Stats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'PENDING'),
		       COUNT(*) FILTER (WHERE status = 'SUBMITTED'),
		       COUNT(*) FILTER (WHERE status = 'VERIFIED'),
		       COUNT(*) FILTER (WHERE status = 'SETTLED'),
		       COUNT(*) FILTER (WHERE status = 'DISPUTED'),
		       COALESCE(SUM(crates_loaded), 0),
		       COALESCE(SUM(missing_empty), 0),
		       COALESCE(SUM(penalty_amount), 0),
		       COALESCE(SUM(returned_full), 0),
		       COALESCE(SUM(returned_empty), 0)
		FROM rgb_trackings`
	var s Stats
	err := r.pool.QueryRow(ctx, query).Scan(
		&s.Total, &s.Pending, &s.Submitted, &s.Verified, &s.Settled,
		&s.Disputed, &s.CratesLoaded, &s.MissingEmpty, &s.TotalPenalty,
		&s.ReturnedFull, &s.ReturnedEmpty,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetForUpdate locks a tracking record with its item shares.
func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (*Tracking, error) {
	query := `SELECT ` + trackingColumns + ` FROM rgb_trackings t WHERE t.id = $1 FOR UPDATE`
	rec, err := scanTracking(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	rec.Items, err = t.loadItems(ctx, rec.ID)
	return rec, err
}

// GetByPickListForUpdate locks a pick list's tracking record if one exists.
func (t *txRepository) GetByPickListForUpdate(ctx context.Context, pickListID int64) (*Tracking, error) {
	query := `SELECT ` + trackingColumns + ` FROM rgb_trackings t WHERE t.pick_list_id = $1 FOR UPDATE`
	rec, err := scanTracking(t.tx.QueryRow(ctx, query, pickListID))
	if err != nil {
		return nil, err
	}
	rec.Items, err = t.loadItems(ctx, rec.ID)
	return rec, err
}

func (t *txRepository) loadItems(ctx context.Context, trackingID int64) ([]ItemShare, error) {
	query := `
		SELECT id, tracking_id, pick_list_item_id, item_code, item_name,
		       loaded_qty, full_share, empty_share, missing_share,
		       penalty_rate, penalty
		FROM rgb_tracking_items
		WHERE tracking_id = $1
		ORDER BY id`
	rows, err := t.tx.Query(ctx, query, trackingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ItemShare
	for rows.Next() {
		var it ItemShare
		if err := rows.Scan(
			&it.ID, &it.TrackingID, &it.PickListItemID, &it.ItemCode,
			&it.ItemName, &it.LoadedQty, &it.FullShare, &it.EmptyShare,
			&it.MissingShare, &it.PenaltyRate, &it.Penalty,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetPickList reads the pick list header and items inside the transaction.
func (t *txRepository) GetPickList(ctx context.Context, pickListID int64) (*picklist.PickList, error) {
	var p picklist.PickList
	err := t.tx.QueryRow(ctx, `
		SELECT id, number, crates_loaded, load_out_date
		FROM pick_lists WHERE id = $1`, pickListID,
	).Scan(&p.ID, &p.Number, &p.CratesLoaded, &p.LoadOutDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, picklist.ErrNotFound
		}
		return nil, err
	}

	rows, err := t.tx.Query(ctx, `
		SELECT id, pick_list_id, item_code, item_name, sell_qty, lo_qty, mrp
		FROM pick_list_items WHERE pick_list_id = $1 ORDER BY id`, pickListID)
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
	return &p, rows.Err()
}

// InsertTracking inserts a tracking record.
func (t *txRepository) InsertTracking(ctx context.Context, rec Tracking) (int64, error) {
	query := `
		INSERT INTO rgb_trackings (
			pick_list_id, driver_id, crates_loaded, returned_full,
			returned_empty, sold_crates, expected_empty, missing_empty,
			unit_value, penalty_amount, released_full, status,
			dispute_reason, notes
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING id`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		rec.PickListID, rec.DriverID, rec.CratesLoaded, rec.ReturnedFull,
		rec.ReturnedEmpty, rec.SoldCrates, rec.ExpectedEmpty, rec.MissingEmpty,
		rec.UnitValue, rec.PenaltyAmount, rec.ReleasedFull, rec.Status,
		rec.DisputeReason, rec.Notes,
	).Scan(&id)
	return id, err
}

// UpdateTracking rewrites inputs, derived quantities and notes.
func (t *txRepository) UpdateTracking(ctx context.Context, rec Tracking) error {
	query := `
		UPDATE rgb_trackings
		SET returned_full = $2, returned_empty = $3, sold_crates = $4,
		    expected_empty = $5, missing_empty = $6, unit_value = $7,
		    penalty_amount = $8, released_full = $9, status = $10,
		    notes = $11, updated_at = now()
		WHERE id = $1`
	_, err := t.tx.Exec(ctx, query,
		rec.ID, rec.ReturnedFull, rec.ReturnedEmpty, rec.SoldCrates,
		rec.ExpectedEmpty, rec.MissingEmpty, rec.UnitValue,
		rec.PenaltyAmount, rec.ReleasedFull, rec.Status, rec.Notes,
	)
	return err
}

// ReplaceItems rewrites the per-item apportionment.
func (t *txRepository) ReplaceItems(ctx context.Context, trackingID int64, items []ItemShare) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM rgb_tracking_items WHERE tracking_id = $1`, trackingID); err != nil {
		return err
	}
	for _, it := range items {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO rgb_tracking_items (
				tracking_id, pick_list_item_id, item_code, item_name,
				loaded_qty, full_share, empty_share, missing_share,
				penalty_rate, penalty
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			trackingID, it.PickListItemID, it.ItemCode, it.ItemName,
			it.LoadedQty, it.FullShare, it.EmptyShare, it.MissingShare,
			it.PenaltyRate, it.Penalty,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// SetVerified stamps verifier and timestamp.
func (t *txRepository) SetVerified(ctx context.Context, id int64, verifiedBy int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE rgb_trackings
		SET status = $2, verified_by = $3, verified_at = now(), updated_at = now()
		WHERE id = $1`, id, StatusVerified, verifiedBy)
	return err
}

// SetSettled marks the record terminal.
func (t *txRepository) SetSettled(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE rgb_trackings
		SET status = $2, settled_at = now(), updated_at = now()
		WHERE id = $1`, id, StatusSettled)
	return err
}

// SetDisputed opens the disputed branch with its reason.
func (t *txRepository) SetDisputed(ctx context.Context, id int64, reason string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE rgb_trackings
		SET status = $2, dispute_reason = $3, updated_at = now()
		WHERE id = $1`, id, StatusDisputed, reason)
	return err
}

// SetResolved closes a dispute to the given status, keeping the reason
// for the audit trail.
func (t *txRepository) SetResolved(ctx context.Context, id int64, status Status, notes string) error {
	set := `status = $2, notes = CASE WHEN $3 = '' THEN notes ELSE $3 END, updated_at = now()`
	if status == StatusSettled {
		set += `, settled_at = now()`
	}
	_, err := t.tx.Exec(ctx, `UPDATE rgb_trackings SET `+set+` WHERE id = $1`, id, status, notes)
	return err
}

// Stock exposes the batch ledger in the same transaction.
func (t *txRepository) Stock() stock.TxRepository { return t.stock }
