package inventory

import "context"

// TxRepository exposes the transactional primitives used by the operation
// engine. Both mutators are single atomic SQL statements; the quantity check
// and the write can never be separated by a concurrent writer.
type TxRepository interface {
	// IncrementQuantity adds delta to the pair's quantity, creating the row
	// lazily, and returns the new quantity.
	IncrementQuantity(ctx context.Context, warehouseID, productID, delta int64) (int64, error)
	// DecrementQuantity subtracts delta only when the resulting quantity
	// stays non-negative, returning the new quantity or ErrInsufficientStock.
	DecrementQuantity(ctx context.Context, warehouseID, productID, delta int64) (int64, error)
	// InsertMovement appends one audit record. Shape is validated, nothing else.
	InsertMovement(ctx context.Context, m StockMovement) (int64, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	// WithTx runs fn inside one database transaction; ledger mutations and
	// the movement append commit together or not at all.
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetQuantity(ctx context.Context, warehouseID, productID int64) (int64, error)
	ListForWarehouse(ctx context.Context, warehouseID int64) ([]InventoryRecord, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error)

	// LedgerQuantities and MovementTotals feed reconciliation.
	LedgerQuantities(ctx context.Context) ([]InventoryRecord, error)
	MovementTotals(ctx context.Context) ([]MovementTotal, error)
	RecordDrift(ctx context.Context, entry ReconciliationEntry) error
}
