package inventory

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cellarkeep/cellarkeep/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
// Serialization failures surface as ErrSerialization so the service can
// retry the whole operation.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if err != nil && db.IsSerializationFailure(err) {
		return ErrSerialization
	}
	return err
}

func (r *txRepository) IncrementQuantity(ctx context.Context, warehouseID, productID, delta int64) (int64, error) {
	var qty int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_records (warehouse_id, product_id, quantity, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (warehouse_id, product_id)
DO UPDATE SET quantity = inventory_records.quantity + EXCLUDED.quantity, updated_at = NOW()
RETURNING quantity`, warehouseID, productID, delta).Scan(&qty)
	return qty, err
}

func (r *txRepository) DecrementQuantity(ctx context.Context, warehouseID, productID, delta int64) (int64, error) {
	var qty int64
	err := r.tx.QueryRow(ctx, `UPDATE inventory_records
SET quantity = quantity - $3, updated_at = NOW()
WHERE warehouse_id=$1 AND product_id=$2 AND quantity >= $3
RETURNING quantity`, warehouseID, productID, delta).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the row does not exist or the guard failed; both mean
			// there is not enough stock to deduct.
			return 0, ErrInsufficientStock
		}
		return 0, err
	}
	return qty, nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m StockMovement) (int64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	occurredAt := m.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (product_id, quantity, movement_type, from_warehouse_id, to_warehouse_id, related_order_id, user_id, notes, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`, m.ProductID, m.Quantity, string(m.Type), m.FromWarehouseID, m.ToWarehouseID, nullUUID(m.RelatedOrderID), nullInt(m.UserID), nullString(m.Notes), occurredAt).Scan(&id)
	return id, err
}

func (r *Repository) GetQuantity(ctx context.Context, warehouseID, productID int64) (int64, error) {
	var qty int64
	err := r.pool.QueryRow(ctx, `SELECT quantity FROM inventory_records WHERE warehouse_id=$1 AND product_id=$2`, warehouseID, productID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return qty, err
}

func (r *Repository) ListForWarehouse(ctx context.Context, warehouseID int64) ([]InventoryRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT warehouse_id, product_id, quantity, updated_at FROM inventory_records WHERE warehouse_id=$1 ORDER BY product_id ASC`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	query := `SELECT id, product_id, quantity, movement_type, from_warehouse_id, to_warehouse_id, COALESCE(related_order_id::text, ''), COALESCE(user_id, 0), COALESCE(notes, ''), occurred_at
FROM stock_movements WHERE 1=1`
	args := []any{}

	if filter.WarehouseID != 0 {
		args = append(args, filter.WarehouseID)
		p := strconv.Itoa(len(args))
		query += ` AND (from_warehouse_id=$` + p + ` OR to_warehouse_id=$` + p + `)`
	}
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		query += ` AND product_id=$` + strconv.Itoa(len(args))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += ` AND movement_type=$` + strconv.Itoa(len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += ` AND occurred_at >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += ` AND occurred_at <= $` + strconv.Itoa(len(args))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	args = append(args, limit)
	query += ` ORDER BY occurred_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := []StockMovement{}
	for rows.Next() {
		var m StockMovement
		var mType string
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Quantity, &mType, &m.FromWarehouseID, &m.ToWarehouseID, &m.RelatedOrderID, &m.UserID, &m.Notes, &m.OccurredAt); err != nil {
			return nil, err
		}
		m.Type = MovementType(mType)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *Repository) LedgerQuantities(ctx context.Context) ([]InventoryRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT warehouse_id, product_id, quantity, updated_at FROM inventory_records ORDER BY warehouse_id, product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// MovementTotals sums movement deltas per (warehouse, product) pair:
// inbound quantities count positive, outbound negative.
func (r *Repository) MovementTotals(ctx context.Context) ([]MovementTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT warehouse_id, product_id, SUM(delta)::bigint FROM (
	SELECT to_warehouse_id AS warehouse_id, product_id, quantity AS delta FROM stock_movements WHERE to_warehouse_id IS NOT NULL
	UNION ALL
	SELECT from_warehouse_id, product_id, -quantity FROM stock_movements WHERE from_warehouse_id IS NOT NULL
) deltas GROUP BY warehouse_id, product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := []MovementTotal{}
	for rows.Next() {
		var t MovementTotal
		if err := rows.Scan(&t.WarehouseID, &t.ProductID, &t.Total); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func (r *Repository) RecordDrift(ctx context.Context, entry ReconciliationEntry) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO reconciliation_reports (warehouse_id, product_id, ledger_quantity, movement_quantity, created_at)
VALUES ($1, $2, $3, $4, NOW())`, entry.WarehouseID, entry.ProductID, entry.LedgerQty, entry.MovementQty)
	return err
}

func scanRecords(rows pgx.Rows) ([]InventoryRecord, error) {
	records := []InventoryRecord{}
	for rows.Next() {
		var rec InventoryRecord
		if err := rows.Scan(&rec.WarehouseID, &rec.ProductID, &rec.Quantity, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullUUID(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
