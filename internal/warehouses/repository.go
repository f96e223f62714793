package warehouses

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cellarkeep/cellarkeep/internal/platform/db"
	"github.com/cellarkeep/cellarkeep/internal/shared"
)

// Repository persists warehouses in PostgreSQL.
type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error)
	Get(ctx context.Context, id int64) (Warehouse, error)
	Create(ctx context.Context, w Warehouse, nameFold string) (Warehouse, error)
	Update(ctx context.Context, id int64, w Warehouse, nameFold string) error
	Delete(ctx context.Context, id int64) error
	OthersForSelect(ctx context.Context, excludeID int64) ([]Option, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error) {
	query := `SELECT id, name, COALESCE(location, ''), created_at, updated_at FROM warehouses WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM warehouses WHERE 1=1`
	args := []any{}
	countArgs := []any{}

	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		countArgs = append(countArgs, "%"+filters.Search+"%")
		query += ` AND (name ILIKE $1 OR location ILIKE $1)`
		countQuery += ` AND (name ILIKE $1 OR location ILIKE $1)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY name ASC`
	if filters.Limit > 0 {
		argCount := len(args)
		query += ` LIMIT $` + strconv.Itoa(argCount+1) + ` OFFSET $` + strconv.Itoa(argCount+2)
		args = append(args, filters.Limit, filters.Offset())
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := []Warehouse{}
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.Name, &w.Location, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, 0, err
		}
		list = append(list, w)
	}
	return list, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Warehouse, error) {
	var w Warehouse
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(location, ''), created_at, updated_at FROM warehouses WHERE id=$1`, id).
		Scan(&w.ID, &w.Name, &w.Location, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, ErrNotFound
		}
		return Warehouse{}, err
	}
	return w, nil
}

func (r *repository) Create(ctx context.Context, w Warehouse, nameFold string) (Warehouse, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO warehouses (name, name_fold, location, created_at, updated_at)
VALUES ($1, $2, NULLIF($3, ''), NOW(), NOW())
RETURNING id, created_at, updated_at`, w.Name, nameFold, w.Location).
		Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return Warehouse{}, translateUnique(err)
	}
	return w, nil
}

func (r *repository) Update(ctx context.Context, id int64, w Warehouse, nameFold string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE warehouses SET name=$2, name_fold=$3, location=NULLIF($4, ''), updated_at=NOW() WHERE id=$1`,
		id, w.Name, nameFold, w.Location)
	if err != nil {
		return translateUnique(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a warehouse only when it holds no stock and has no movement
// history. The checks and the delete share one transaction.
func (r *repository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var hasStock bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inventory_records WHERE warehouse_id=$1 AND quantity > 0)`, id).Scan(&hasStock); err != nil {
			return err
		}
		if hasStock {
			return ErrHasStock
		}
		var hasMovements bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stock_movements WHERE from_warehouse_id=$1 OR to_warehouse_id=$1)`, id).Scan(&hasMovements); err != nil {
			return err
		}
		if hasMovements {
			return ErrHasMovements
		}
		if _, err := tx.Exec(ctx, `DELETE FROM inventory_records WHERE warehouse_id=$1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM warehouses WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *repository) OthersForSelect(ctx context.Context, excludeID int64) ([]Option, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM warehouses WHERE id <> $1 ORDER BY name ASC`, excludeID)
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

func translateUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateName
	}
	return err
}
