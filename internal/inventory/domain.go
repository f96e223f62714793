package inventory

import (
	"errors"
	"time"

	"github.com/cellarkeep/cellarkeep/internal/warehouses"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementReceive adds stock from outside the system (supplier delivery).
	MovementReceive MovementType = "RECEIVE"
	// MovementTransfer moves stock between two warehouses.
	MovementTransfer MovementType = "TRANSFER"
	// MovementRemove deducts stock without a destination (loss, correction).
	MovementRemove MovementType = "REMOVE"
)

// StockMovement is an immutable audit record of a single stock change.
// Movements are append-only; the ledger is a materialized projection of them.
type StockMovement struct {
	ID              int64        `json:"id"`
	ProductID       int64        `json:"product_id"`
	Quantity        int64        `json:"quantity"`
	Type            MovementType `json:"movement_type"`
	FromWarehouseID *int64       `json:"from_warehouse_id,omitempty"`
	ToWarehouseID   *int64       `json:"to_warehouse_id,omitempty"`
	RelatedOrderID  string       `json:"related_order_id,omitempty"`
	UserID          int64        `json:"user_id,omitempty"`
	Notes           string       `json:"notes,omitempty"`
	OccurredAt      time.Time    `json:"occurred_at"`
}

// Validate checks shape consistency: quantity positive and warehouse fields
// matching the movement type.
func (m StockMovement) Validate() error {
	if m.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if m.ProductID <= 0 {
		return errors.New("inventory: movement requires product")
	}
	switch m.Type {
	case MovementReceive:
		if m.FromWarehouseID != nil || m.ToWarehouseID == nil {
			return errors.New("inventory: RECEIVE movement requires destination only")
		}
	case MovementRemove:
		if m.FromWarehouseID == nil || m.ToWarehouseID != nil {
			return errors.New("inventory: REMOVE movement requires source only")
		}
	case MovementTransfer:
		if m.FromWarehouseID == nil || m.ToWarehouseID == nil {
			return errors.New("inventory: TRANSFER movement requires source and destination")
		}
		if *m.FromWarehouseID == *m.ToWarehouseID {
			return ErrSameWarehouse
		}
	default:
		return errors.New("inventory: unknown movement type")
	}
	return nil
}

// InventoryRecord is the quantity-on-hand for one (warehouse, product) pair.
// Quantity never goes negative; rows stay at zero instead of being deleted.
type InventoryRecord struct {
	WarehouseID int64     `json:"warehouse_id"`
	ProductID   int64     `json:"product_id"`
	Quantity    int64     `json:"quantity"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ReceiveInput describes a supplier delivery into a warehouse.
type ReceiveInput struct {
	WarehouseID    int64
	ProductID      int64
	Quantity       int64
	RelatedOrderID string
	Notes          string
	ActorID        int64
	IdempotencyKey string
}

// TransferInput describes a stock move between warehouses.
type TransferInput struct {
	SourceWarehouseID int64
	DestWarehouseID   int64
	ProductID         int64
	Quantity          int64
	Notes             string
	ActorID           int64
	IdempotencyKey    string
}

// RemoveInput describes a deduction without destination.
type RemoveInput struct {
	WarehouseID    int64
	ProductID      int64
	Quantity       int64
	Notes          string
	ActorID        int64
	IdempotencyKey string
}

// TransferResult carries both updated quantities.
type TransferResult struct {
	SourceQuantity int64 `json:"source_quantity"`
	DestQuantity   int64 `json:"dest_quantity"`
}

// MovementFilter filters the movement history listing.
type MovementFilter struct {
	WarehouseID int64
	ProductID   int64
	Type        MovementType
	From        time.Time
	To          time.Time
	Limit       int
}

// InventoryItem is an inventory row joined with product reference data.
type InventoryItem struct {
	ProductID   int64     `json:"product_id"`
	Quantity    int64     `json:"quantity"`
	ProductName string    `json:"product_name"`
	Category    string    `json:"category,omitempty"`
	ImageRef    string    `json:"image_ref,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WarehouseDetail is the aggregated read model for one warehouse.
type WarehouseDetail struct {
	Warehouse warehouses.Warehouse `json:"warehouse"`
	Inventory []InventoryItem      `json:"inventory"`
}

// ReconciliationEntry reports a drift between summed movements and the
// ledger quantity for one (warehouse, product) pair.
type ReconciliationEntry struct {
	WarehouseID int64 `json:"warehouse_id"`
	ProductID   int64 `json:"product_id"`
	LedgerQty   int64 `json:"ledger_quantity"`
	MovementQty int64 `json:"movement_quantity"`
}

// MovementTotal is the summed movement delta for one pair.
type MovementTotal struct {
	WarehouseID int64
	ProductID   int64
	Total       int64
}

// unknownProductName is rendered when a product was deleted from the catalog
// after stock movements referenced it.
const unknownProductName = "unknown product"

var (
	// ErrInsufficientStock triggered when a decrement exceeds available quantity.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrSameWarehouse indicates a transfer onto itself.
	ErrSameWarehouse = errors.New("inventory: source and destination warehouse must differ")
	// ErrWarehouseNotFound indicates an unknown warehouse id.
	ErrWarehouseNotFound = errors.New("inventory: warehouse not found")
	// ErrProductNotFound indicates an unknown product id.
	ErrProductNotFound = errors.New("inventory: product not found")
	// ErrSerialization indicates a transient isolation conflict; the whole
	// operation is retried.
	ErrSerialization = errors.New("inventory: serialization conflict")
)
