package products

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads product master data.
type Repository interface {
	Get(ctx context.Context, id int64) (Product, error)
	// FindByItemCode resolves a pick-list item code to a product. Codes on
	// compound products look like "SPR200/SPR200P", so the lookup matches
	// either side of the slash as well as the exact code.
	FindByItemCode(ctx context.Context, code string) (Product, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a product repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const productColumns = `id, code, name, size, price, is_active, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *repository) FindByItemCode(ctx context.Context, code string) (Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE code = $1
		   OR code ILIKE $1 || '/%'
		   OR code ILIKE '%/' || $1
		ORDER BY (code = $1) DESC
		LIMIT 1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, code))
}

func (r *repository) scanOne(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Size, &p.Price, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}
