package retailers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads retailer master data.
type Repository interface {
	Get(ctx context.Context, id int64) (Retailer, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a retailer repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Get(ctx context.Context, id int64) (Retailer, error) {
	query := `SELECT id, name, address, phone, route, is_active, created_at, updated_at FROM retailers WHERE id = $1`
	var ret Retailer
	err := r.pool.QueryRow(ctx, query, id).Scan(&ret.ID, &ret.Name, &ret.Address, &ret.Phone, &ret.Route, &ret.IsActive, &ret.CreatedAt, &ret.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Retailer{}, ErrNotFound
		}
		return Retailer{}, err
	}
	return ret, nil
}
