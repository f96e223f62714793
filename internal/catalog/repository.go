package catalog

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads product reference data from PostgreSQL.
type Repository interface {
	GetRef(ctx context.Context, id int64) (ProductRef, bool, error)
	GetRefs(ctx context.Context, ids []int64) (map[int64]ProductRef, error)
	Exists(ctx context.Context, id int64) (bool, error)
	ListOptions(ctx context.Context, search string, limit int) ([]Option, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) GetRef(ctx context.Context, id int64) (ProductRef, bool, error) {
	refs, err := r.GetRefs(ctx, []int64{id})
	if err != nil {
		return ProductRef{}, false, err
	}
	ref, ok := refs[id]
	return ref, ok, nil
}

func (r *repository) GetRefs(ctx context.Context, ids []int64) (map[int64]ProductRef, error) {
	refs := make(map[int64]ProductRef, len(ids))
	if len(ids) == 0 {
		return refs, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(category, ''), COALESCE(image_ref, '') FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ref ProductRef
		if err := rows.Scan(&ref.ID, &ref.Name, &ref.Category, &ref.ImageRef); err != nil {
			return nil, err
		}
		refs[ref.ID] = ref
	}
	return refs, rows.Err()
}

func (r *repository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}

func (r *repository) ListOptions(ctx context.Context, search string, limit int) ([]Option, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM products WHERE ($1 = '' OR name ILIKE '%' || $1 || '%') ORDER BY name ASC LIMIT $2`, search, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	options := []Option{}
	for rows.Next() {
		var opt Option
		if err := rows.Scan(&opt.ID, &opt.Name); err != nil {
			return nil, err
		}
		options = append(options, opt)
	}
	return options, rows.Err()
}
