package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cellarkeep/cellarkeep/internal/catalog"
	"github.com/cellarkeep/cellarkeep/internal/shared"
	"github.com/cellarkeep/cellarkeep/internal/warehouses"
)

// DirectoryPort resolves warehouses from the directory.
type DirectoryPort interface {
	Get(ctx context.Context, id int64) (warehouses.Warehouse, error)
}

// CatalogPort resolves product reference data from the catalog subsystem.
type CatalogPort interface {
	Exists(ctx context.Context, id int64) (bool, error)
	Refs(ctx context.Context, ids []int64) (map[int64]catalog.ProductRef, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against duplicate submission of the same operation.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// MetricsPort counts operation outcomes.
type MetricsPort interface {
	ObserveStockOperation(opType, outcome string)
}

// Service is the stock operation engine: Receive, Transfer and Remove, each
// an atomic unit over the ledger and the movement log.
type Service struct {
	repo        RepositoryPort
	directory   DirectoryPort
	catalog     CatalogPort
	audit       AuditPort
	idempotency IdempotencyPort
	metrics     MetricsPort
}

// NewService builds Service. audit, idempotency and metrics may be nil.
func NewService(repo RepositoryPort, directory DirectoryPort, cat CatalogPort, audit AuditPort, idem IdempotencyPort, metrics MetricsPort) *Service {
	return &Service{repo: repo, directory: directory, catalog: cat, audit: audit, idempotency: idem, metrics: metrics}
}

// maxTxAttempts bounds wholesale retries on serialization conflicts.
const maxTxAttempts = 3

const idempotencyModule = "inventory"

// Receive adds stock to a warehouse from outside the system and returns the
// updated quantity.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (int64, error) {
	if err := s.checkQuantity(input.Quantity); err != nil {
		return 0, err
	}
	if err := s.checkWarehouse(ctx, input.WarehouseID); err != nil {
		return 0, err
	}
	if err := s.checkProduct(ctx, input.ProductID); err != nil {
		return 0, err
	}
	orderID, err := parseOrderID(input.RelatedOrderID)
	if err != nil {
		return 0, err
	}

	var newQty int64
	err = s.runOperation(ctx, MovementReceive, input.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		qty, err := tx.IncrementQuantity(ctx, input.WarehouseID, input.ProductID, input.Quantity)
		if err != nil {
			return err
		}
		newQty = qty
		_, err = tx.InsertMovement(ctx, StockMovement{
			ProductID:      input.ProductID,
			Quantity:       input.Quantity,
			Type:           MovementReceive,
			ToWarehouseID:  &input.WarehouseID,
			RelatedOrderID: orderID,
			UserID:         input.ActorID,
			Notes:          input.Notes,
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, input.ActorID, MovementReceive, input.ProductID, map[string]any{
		"warehouse_id": input.WarehouseID,
		"quantity":     input.Quantity,
		"notes":        input.Notes,
	})
	return newQty, nil
}

// Transfer moves stock between two warehouses as one atomic unit: the source
// decrement, the destination increment and the single TRANSFER movement
// commit together or not at all.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	if err := s.checkQuantity(input.Quantity); err != nil {
		return TransferResult{}, err
	}
	if input.SourceWarehouseID == input.DestWarehouseID {
		return TransferResult{}, shared.Wrap(shared.KindValidation, "source and destination warehouse must differ", ErrSameWarehouse)
	}
	if err := s.checkWarehouse(ctx, input.SourceWarehouseID); err != nil {
		return TransferResult{}, err
	}
	if err := s.checkWarehouse(ctx, input.DestWarehouseID); err != nil {
		return TransferResult{}, err
	}
	if err := s.checkProduct(ctx, input.ProductID); err != nil {
		return TransferResult{}, err
	}

	var result TransferResult
	err := s.runOperation(ctx, MovementTransfer, input.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		srcQty, err := tx.DecrementQuantity(ctx, input.SourceWarehouseID, input.ProductID, input.Quantity)
		if err != nil {
			return err
		}
		dstQty, err := tx.IncrementQuantity(ctx, input.DestWarehouseID, input.ProductID, input.Quantity)
		if err != nil {
			return err
		}
		result = TransferResult{SourceQuantity: srcQty, DestQuantity: dstQty}
		_, err = tx.InsertMovement(ctx, StockMovement{
			ProductID:       input.ProductID,
			Quantity:        input.Quantity,
			Type:            MovementTransfer,
			FromWarehouseID: &input.SourceWarehouseID,
			ToWarehouseID:   &input.DestWarehouseID,
			UserID:          input.ActorID,
			Notes:           input.Notes,
		})
		return err
	})
	if err != nil {
		return TransferResult{}, err
	}
	s.recordAudit(ctx, input.ActorID, MovementTransfer, input.ProductID, map[string]any{
		"from_warehouse_id": input.SourceWarehouseID,
		"to_warehouse_id":   input.DestWarehouseID,
		"quantity":          input.Quantity,
		"notes":             input.Notes,
	})
	return result, nil
}

// Remove deducts stock without a destination warehouse and returns the
// updated quantity.
func (s *Service) Remove(ctx context.Context, input RemoveInput) (int64, error) {
	if err := s.checkQuantity(input.Quantity); err != nil {
		return 0, err
	}
	if err := s.checkWarehouse(ctx, input.WarehouseID); err != nil {
		return 0, err
	}
	if err := s.checkProduct(ctx, input.ProductID); err != nil {
		return 0, err
	}

	var newQty int64
	err := s.runOperation(ctx, MovementRemove, input.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		qty, err := tx.DecrementQuantity(ctx, input.WarehouseID, input.ProductID, input.Quantity)
		if err != nil {
			return err
		}
		newQty = qty
		_, err = tx.InsertMovement(ctx, StockMovement{
			ProductID:       input.ProductID,
			Quantity:        input.Quantity,
			Type:            MovementRemove,
			FromWarehouseID: &input.WarehouseID,
			UserID:          input.ActorID,
			Notes:           input.Notes,
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, input.ActorID, MovementRemove, input.ProductID, map[string]any{
		"warehouse_id": input.WarehouseID,
		"quantity":     input.Quantity,
		"notes":        input.Notes,
	})
	return newQty, nil
}

// GetQuantity returns the current quantity-on-hand, zero when no record exists.
func (s *Service) GetQuantity(ctx context.Context, warehouseID, productID int64) (int64, error) {
	if warehouseID <= 0 || productID <= 0 {
		return 0, shared.E(shared.KindValidation, "warehouse and product are required")
	}
	qty, err := s.repo.GetQuantity(ctx, warehouseID, productID)
	if err != nil {
		return 0, shared.Wrap(shared.KindPersistence, "could not read quantity", err)
	}
	return qty, nil
}

// ListMovements returns movement history, newest first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	movements, err := s.repo.ListMovements(ctx, filter)
	if err != nil {
		return nil, shared.Wrap(shared.KindPersistence, "could not load movements", err)
	}
	return movements, nil
}

// WarehouseDetail aggregates a warehouse with its inventory rows and product
// reference data. A product deleted from the catalog renders as "unknown
// product" instead of failing the read.
func (s *Service) WarehouseDetail(ctx context.Context, warehouseID int64) (WarehouseDetail, error) {
	if warehouseID <= 0 {
		return WarehouseDetail{}, shared.E(shared.KindValidation, "invalid warehouse id")
	}

	var (
		warehouse warehouses.Warehouse
		records   []InventoryRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w, err := s.directory.Get(gctx, warehouseID)
		if err != nil {
			return err
		}
		warehouse = w
		return nil
	})
	g.Go(func() error {
		recs, err := s.repo.ListForWarehouse(gctx, warehouseID)
		if err != nil {
			return shared.Wrap(shared.KindPersistence, "could not load inventory", err)
		}
		records = recs
		return nil
	})
	if err := g.Wait(); err != nil {
		return WarehouseDetail{}, err
	}

	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ProductID)
	}
	refs, err := s.catalog.Refs(ctx, ids)
	if err != nil {
		return WarehouseDetail{}, err
	}

	items := make([]InventoryItem, 0, len(records))
	for _, rec := range records {
		item := InventoryItem{
			ProductID:   rec.ProductID,
			Quantity:    rec.Quantity,
			ProductName: unknownProductName,
			UpdatedAt:   rec.UpdatedAt,
		}
		if ref, ok := refs[rec.ProductID]; ok {
			item.ProductName = ref.Name
			item.Category = ref.Category
			item.ImageRef = ref.ImageRef
		}
		items = append(items, item)
	}
	return WarehouseDetail{Warehouse: warehouse, Inventory: items}, nil
}

// Reconcile compares summed movement deltas against ledger quantities and
// returns every drifting pair. An empty result means the ledger and the
// movement log agree.
func (s *Service) Reconcile(ctx context.Context) ([]ReconciliationEntry, error) {
	ledger, err := s.repo.LedgerQuantities(ctx)
	if err != nil {
		return nil, shared.Wrap(shared.KindPersistence, "could not read ledger", err)
	}
	totals, err := s.repo.MovementTotals(ctx)
	if err != nil {
		return nil, shared.Wrap(shared.KindPersistence, "could not sum movements", err)
	}

	type pair struct{ warehouseID, productID int64 }
	ledgerByPair := make(map[pair]int64, len(ledger))
	for _, rec := range ledger {
		ledgerByPair[pair{rec.WarehouseID, rec.ProductID}] = rec.Quantity
	}
	movementByPair := make(map[pair]int64, len(totals))
	for _, t := range totals {
		movementByPair[pair{t.WarehouseID, t.ProductID}] = t.Total
	}

	seen := make(map[pair]bool, len(ledgerByPair))
	drifts := []ReconciliationEntry{}
	for p, qty := range ledgerByPair {
		seen[p] = true
		if movementByPair[p] != qty {
			drifts = append(drifts, ReconciliationEntry{WarehouseID: p.warehouseID, ProductID: p.productID, LedgerQty: qty, MovementQty: movementByPair[p]})
		}
	}
	for p, total := range movementByPair {
		if !seen[p] && total != 0 {
			drifts = append(drifts, ReconciliationEntry{WarehouseID: p.warehouseID, ProductID: p.productID, LedgerQty: 0, MovementQty: total})
		}
	}
	sort.Slice(drifts, func(i, j int) bool {
		if drifts[i].WarehouseID != drifts[j].WarehouseID {
			return drifts[i].WarehouseID < drifts[j].WarehouseID
		}
		return drifts[i].ProductID < drifts[j].ProductID
	})
	return drifts, nil
}

// ReconcileAndRecord runs Reconcile and persists each drift for later review.
func (s *Service) ReconcileAndRecord(ctx context.Context) ([]ReconciliationEntry, error) {
	drifts, err := s.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	for _, entry := range drifts {
		if err := s.repo.RecordDrift(ctx, entry); err != nil {
			return drifts, shared.Wrap(shared.KindPersistence, "could not record drift", err)
		}
	}
	return drifts, nil
}

func (s *Service) runOperation(ctx context.Context, opType MovementType, idemKey string, fn func(context.Context, TxRepository) error) error {
	insertedKey := false
	if s.idempotency != nil && idemKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				s.observe(opType, "duplicate")
				return shared.Wrap(shared.KindConflict, "operation already processed", err)
			}
			return shared.Wrap(shared.KindPersistence, "could not reserve operation", err)
		}
		insertedKey = true
	}

	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.repo.WithTx(ctx, fn)
		if !errors.Is(err, ErrSerialization) {
			break
		}
	}
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return s.classifyOperationError(opType, err)
	}
	s.observe(opType, "success")
	return nil
}

func (s *Service) classifyOperationError(opType MovementType, err error) error {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		s.observe(opType, "insufficient_stock")
		return shared.Wrap(shared.KindInsufficientStock, "insufficient stock for this operation", err)
	case errors.Is(err, ErrSerialization):
		s.observe(opType, "conflict")
		return shared.Wrap(shared.KindConflict, "operation conflicted with another update, please retry", err)
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrSameWarehouse):
		s.observe(opType, "invalid")
		return shared.Wrap(shared.KindValidation, "invalid stock movement", err)
	default:
		s.observe(opType, "error")
		return shared.Wrap(shared.KindPersistence, "stock operation failed", err)
	}
}

func (s *Service) checkQuantity(qty int64) error {
	if qty <= 0 {
		return shared.Wrap(shared.KindValidation, "quantity must be positive", ErrInvalidQuantity)
	}
	return nil
}

func (s *Service) checkWarehouse(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.E(shared.KindValidation, "invalid warehouse id")
	}
	if _, err := s.directory.Get(ctx, id); err != nil {
		if shared.KindOf(err) == shared.KindNotFound {
			return shared.Wrap(shared.KindNotFound, fmt.Sprintf("warehouse %d not found", id), ErrWarehouseNotFound)
		}
		return shared.Wrap(shared.KindPersistence, "could not check warehouse", err)
	}
	return nil
}

func (s *Service) checkProduct(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.E(shared.KindValidation, "invalid product id")
	}
	ok, err := s.catalog.Exists(ctx, id)
	if err != nil {
		return shared.Wrap(shared.KindPersistence, "could not check product", err)
	}
	if !ok {
		return shared.Wrap(shared.KindNotFound, fmt.Sprintf("product %d not found", id), ErrProductNotFound)
	}
	return nil
}

func parseOrderID(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", shared.Wrap(shared.KindValidation, "invalid related order id", err)
	}
	return id.String(), nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, opType MovementType, productID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   fmt.Sprintf("inventory:%s", opType),
		Entity:   "stock_movement",
		EntityID: fmt.Sprintf("%s:%d", opType, productID),
		Meta:     meta,
		At:       time.Now().UTC(),
	})
}

func (s *Service) observe(opType MovementType, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveStockOperation(string(opType), outcome)
}
