package warehouses

import (
	"errors"
	"time"
)

// Warehouse represents a storage location holding wine stock.
type Warehouse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Option is the reduced shape used by select inputs.
type Option struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ErrNotFound indicates a missing warehouse row.
var ErrNotFound = errors.New("warehouses: not found")

// ErrDuplicateName indicates a name collision (case-insensitive).
var ErrDuplicateName = errors.New("warehouses: name already in use")

// ErrHasStock blocks deletion while any inventory record holds quantity.
var ErrHasStock = errors.New("warehouses: warehouse still holds stock")

// ErrHasMovements blocks deletion while movement history references the
// warehouse, so the audit trail never orphans.
var ErrHasMovements = errors.New("warehouses: warehouse has movement history")
