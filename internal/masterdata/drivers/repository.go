package drivers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads driver master data.
type Repository interface {
	Get(ctx context.Context, id int64) (Driver, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a driver repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Get(ctx context.Context, id int64) (Driver, error) {
	query := `SELECT id, name, phone, vehicle, is_active, created_at, updated_at FROM drivers WHERE id = $1`
	var d Driver
	err := r.pool.QueryRow(ctx, query, id).Scan(&d.ID, &d.Name, &d.Phone, &d.Vehicle, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Driver{}, ErrNotFound
		}
		return Driver{}, err
	}
	return d, nil
}
