package inventory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarkeep/cellarkeep/internal/catalog"
	"github.com/cellarkeep/cellarkeep/internal/shared"
	"github.com/cellarkeep/cellarkeep/internal/warehouses"
)

type pairKey struct {
	warehouseID int64
	productID   int64
}

// memoryRepo is an in-memory RepositoryPort. WithTx stages all writes and
// applies them only when the callback succeeds, mirroring transactional
// all-or-nothing semantics.
type memoryRepo struct {
	mu        sync.Mutex
	records   map[pairKey]int64
	movements []StockMovement
	drifts    []ReconciliationEntry
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: map[pairKey]int64{}}
}

type memoryTx struct {
	repo    *memoryRepo
	staged  map[pairKey]int64
	inserts []StockMovement
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r, staged: map[pairKey]int64{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for k, v := range tx.staged {
		r.records[k] = v
	}
	for _, m := range tx.inserts {
		r.nextID++
		m.ID = r.nextID
		if m.OccurredAt.IsZero() {
			m.OccurredAt = time.Now().UTC()
		}
		r.movements = append(r.movements, m)
	}
	return nil
}

func (t *memoryTx) current(k pairKey) int64 {
	if v, ok := t.staged[k]; ok {
		return v
	}
	return t.repo.records[k]
}

func (t *memoryTx) IncrementQuantity(_ context.Context, warehouseID, productID, delta int64) (int64, error) {
	k := pairKey{warehouseID, productID}
	t.staged[k] = t.current(k) + delta
	return t.staged[k], nil
}

func (t *memoryTx) DecrementQuantity(_ context.Context, warehouseID, productID, delta int64) (int64, error) {
	k := pairKey{warehouseID, productID}
	if t.current(k) < delta {
		return 0, ErrInsufficientStock
	}
	t.staged[k] = t.current(k) - delta
	return t.staged[k], nil
}

func (t *memoryTx) InsertMovement(_ context.Context, m StockMovement) (int64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	t.inserts = append(t.inserts, m)
	return int64(len(t.inserts)), nil
}

func (r *memoryRepo) GetQuantity(_ context.Context, warehouseID, productID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[pairKey{warehouseID, productID}], nil
}

func (r *memoryRepo) ListForWarehouse(_ context.Context, warehouseID int64) ([]InventoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recs := []InventoryRecord{}
	for k, qty := range r.records {
		if k.warehouseID == warehouseID {
			recs = append(recs, InventoryRecord{WarehouseID: k.warehouseID, ProductID: k.productID, Quantity: qty})
		}
	}
	return recs, nil
}

func (r *memoryRepo) ListMovements(_ context.Context, filter MovementFilter) ([]StockMovement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []StockMovement{}
	for i := len(r.movements) - 1; i >= 0; i-- {
		m := r.movements[i]
		if filter.ProductID != 0 && m.ProductID != filter.ProductID {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		if filter.WarehouseID != 0 {
			match := (m.FromWarehouseID != nil && *m.FromWarehouseID == filter.WarehouseID) ||
				(m.ToWarehouseID != nil && *m.ToWarehouseID == filter.WarehouseID)
			if !match {
				continue
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *memoryRepo) LedgerQuantities(_ context.Context) ([]InventoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recs := []InventoryRecord{}
	for k, qty := range r.records {
		recs = append(recs, InventoryRecord{WarehouseID: k.warehouseID, ProductID: k.productID, Quantity: qty})
	}
	return recs, nil
}

func (r *memoryRepo) MovementTotals(_ context.Context) ([]MovementTotal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	totals := map[pairKey]int64{}
	for _, m := range r.movements {
		if m.ToWarehouseID != nil {
			totals[pairKey{*m.ToWarehouseID, m.ProductID}] += m.Quantity
		}
		if m.FromWarehouseID != nil {
			totals[pairKey{*m.FromWarehouseID, m.ProductID}] -= m.Quantity
		}
	}
	out := []MovementTotal{}
	for k, v := range totals {
		out = append(out, MovementTotal{WarehouseID: k.warehouseID, ProductID: k.productID, Total: v})
	}
	return out, nil
}

func (r *memoryRepo) RecordDrift(_ context.Context, entry ReconciliationEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drifts = append(r.drifts, entry)
	return nil
}

func (r *memoryRepo) movementCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.movements)
}

type fakeDirectory struct {
	known map[int64]warehouses.Warehouse
}

func (d *fakeDirectory) Get(_ context.Context, id int64) (warehouses.Warehouse, error) {
	if w, ok := d.known[id]; ok {
		return w, nil
	}
	return warehouses.Warehouse{}, shared.E(shared.KindNotFound, "warehouse not found")
}

type fakeCatalog struct {
	refs map[int64]catalog.ProductRef
}

func (c *fakeCatalog) Exists(_ context.Context, id int64) (bool, error) {
	_, ok := c.refs[id]
	return ok, nil
}

func (c *fakeCatalog) Refs(_ context.Context, ids []int64) (map[int64]catalog.ProductRef, error) {
	out := map[int64]catalog.ProductRef{}
	for _, id := range ids {
		if ref, ok := c.refs[id]; ok {
			out[id] = ref
		}
	}
	return out, nil
}

type fakeIdempotency struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (f *fakeIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[key] {
		return shared.ErrIdempotencyConflict
	}
	f.seen[key] = true
	return nil
}

func (f *fakeIdempotency) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.seen, key)
	return nil
}

func newTestService(repo *memoryRepo) *Service {
	dir := &fakeDirectory{known: map[int64]warehouses.Warehouse{
		1: {ID: 1, Name: "Main Cellar"},
		2: {ID: 2, Name: "North Depot"},
	}}
	cat := &fakeCatalog{refs: map[int64]catalog.ProductRef{
		10: {ID: 10, Name: "Pinot Noir 2021", Category: "red"},
		11: {ID: 11, Name: "Riesling 2023", Category: "white"},
	}}
	return NewService(repo, dir, cat, nil, &fakeIdempotency{}, nil)
}

func TestReceiveIncrementsAndRecordsMovement(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	qty, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ProductID: 10, Quantity: 25, ActorID: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(25), qty)

	qty, err = svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ProductID: 10, Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(30), qty)

	movements, err := svc.ListMovements(ctx, MovementFilter{WarehouseID: 1})
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, MovementReceive, movements[0].Type)
	assert.Nil(t, movements[0].FromWarehouseID)
	require.NotNil(t, movements[0].ToWarehouseID)
	assert.Equal(t, int64(1), *movements[0].ToWarehouseID)
}

func TestReceiveValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ProductID: 10, Quantity: 0})
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))

	_, err = svc.Receive(ctx, ReceiveInput{WarehouseID: 99, ProductID: 10, Quantity: 5})
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))

	_, err = svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ProductID: 999, Quantity: 5})
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))

	_, err = svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ProductID: 10, Quantity: 5, RelatedOrderID: "not-a-uuid"})
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))

	assert.Equal(t, 0, repo.movementCount())
}

func TestTransferConservesStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ProductID: 10, Quantity: 40})
	require.NoError(t, err)

	result, err := svc.Transfer(ctx, TransferInput{SourceWarehouseID: 1, DestWarehouseID: 2, ProductID: 10, Quantity: 15})
	require.NoError(t, err)
	assert.Equal(t, int64(25), result.SourceQuantity)
	assert.Equal(t, int64(15), result.DestQuantity)

	// One movement row per transfer carrying both warehouses.
	movements, err := svc.ListMovements(ctx, MovementFilter{Type: MovementTransfer})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.NotNil(t, movements[0].FromWarehouseID)
	require.NotNil(t, movements[0].ToWarehouseID)
	assert.Equal(t, int64(1), *movements[0].FromWarehouseID)
	assert.Equal(t, int64(2), *movements[0].ToWarehouseID)
}

func TestTransferSameWarehouseRejected(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	_, err := svc.Transfer(context.Background(), TransferInput{SourceWarehouseID: 1, DestWarehouseID: 1, ProductID: 10, Quantity: 5})
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestInsufficientStockLeavesStateUntouched(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ProductID: 10, Quantity: 10})
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, TransferInput{SourceWarehouseID: 1, DestWarehouseID: 2, ProductID: 10, Quantity: 11})
	assert.Equal(t, shared.KindInsufficientStock, shared.KindOf(err))

	_, err = svc.Remove(ctx, RemoveInput{WarehouseID: 2, ProductID: 10, Quantity: 1})
	assert.Equal(t, shared.KindInsufficientStock, shared.KindOf(err))

	srcQty, err := svc.GetQuantity(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), srcQty)
	dstQty, err := svc.GetQuantity(ctx, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), dstQty)

	// Only the initial receive left a movement behind.
	assert.Equal(t, 1, repo.movementCount())
}

func TestRemoveToZeroKeepsRecord(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ProductID: 10, Quantity: 8})
	require.NoError(t, err)
	qty, err := svc.Remove(ctx, RemoveInput{WarehouseID: 1, ProductID: 10, Quantity: 8})
	require.NoError(t, err)
	assert.Equal(t, int64(0), qty)

	recs, err := repo.ListForWarehouse(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(0), recs[0].Quantity)
}

func TestConcurrentRemovalsNeverGoNegative(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	const initial = 10
	_, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ProductID: 10, Quantity: initial})
	require.NoError(t, err)

	const workers = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Remove(ctx, RemoveInput{WarehouseID: 1, ProductID: 10, Quantity: 1}); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, initial, successes)
	qty, err := svc.GetQuantity(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), qty)
}

func TestOperationSequence(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ProductID: 10, Quantity: 10})
	require.NoError(t, err)
	_, err = svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ProductID: 10, Quantity: 5})
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, TransferInput{SourceWarehouseID: 1, DestWarehouseID: 2, ProductID: 10, Quantity: 12})
	require.NoError(t, err)

	qty, err := svc.Remove(ctx, RemoveInput{WarehouseID: 1, ProductID: 10, Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(0), qty)

	_, err = svc.Remove(ctx, RemoveInput{WarehouseID: 1, ProductID: 10, Quantity: 1})
	assert.Equal(t, shared.KindInsufficientStock, shared.KindOf(err))

	destQty, err := svc.GetQuantity(ctx, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(12), destQty)
}

func TestIdempotencyKeyRejectsDuplicates(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	input := ReceiveInput{WarehouseID: 1, ProductID: 10, Quantity: 5, IdempotencyKey: "op-123"}
	_, err := svc.Receive(ctx, input)
	require.NoError(t, err)

	_, err = svc.Receive(ctx, input)
	assert.Equal(t, shared.KindConflict, shared.KindOf(err))
	assert.Equal(t, 1, repo.movementCount())
}

func TestIdempotencyKeyReleasedOnFailure(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	input := RemoveInput{WarehouseID: 1, ProductID: 10, Quantity: 5, IdempotencyKey: "op-456"}
	_, err := svc.Remove(ctx, input)
	assert.Equal(t, shared.KindInsufficientStock, shared.KindOf(err))

	// Failed operation releases the key so the caller can retry after fixing
	// the underlying problem.
	_, err = svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ProductID: 10, Quantity: 5})
	require.NoError(t, err)
	_, err = svc.Remove(ctx, input)
	require.NoError(t, err)
}

func TestWarehouseDetailToleratesDeletedProducts(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ProductID: 10, Quantity: 6})
	require.NoError(t, err)
	// Product 999 no longer exists in the catalog; seed its stock directly.
	repo.records[pairKey{1, 999}] = 3

	detail, err := svc.WarehouseDetail(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Main Cellar", detail.Warehouse.Name)
	require.Len(t, detail.Inventory, 2)

	byProduct := map[int64]InventoryItem{}
	for _, item := range detail.Inventory {
		byProduct[item.ProductID] = item
	}
	assert.Equal(t, "Pinot Noir 2021", byProduct[10].ProductName)
	assert.Equal(t, "unknown product", byProduct[999].ProductName)
	assert.Equal(t, int64(3), byProduct[999].Quantity)
}

func TestWarehouseDetailUnknownWarehouse(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	_, err := svc.WarehouseDetail(context.Background(), 404)
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
}

func TestReconcileFindsNoDriftAfterOperations(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ProductID: 10, Quantity: int64(i + 1)})
		require.NoError(t, err)
	}
	_, err := svc.Transfer(ctx, TransferInput{SourceWarehouseID: 1, DestWarehouseID: 2, ProductID: 10, Quantity: 7})
	require.NoError(t, err)
	_, err = svc.Remove(ctx, RemoveInput{WarehouseID: 2, ProductID: 10, Quantity: 2})
	require.NoError(t, err)

	drifts, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestReconcileDetectsAndRecordsDrift(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ProductID: 10, Quantity: 20})
	require.NoError(t, err)
	// Corrupt the ledger behind the movement log's back.
	repo.records[pairKey{1, 10}] = 17

	drifts, err := svc.ReconcileAndRecord(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, int64(17), drifts[0].LedgerQty)
	assert.Equal(t, int64(20), drifts[0].MovementQty)
	require.Len(t, repo.drifts, 1)
}

func TestSerializationConflictRetries(t *testing.T) {
	flaky := &flakyRepo{memoryRepo: newMemoryRepo(), failures: 2}
	dir := &fakeDirectory{known: map[int64]warehouses.Warehouse{1: {ID: 1, Name: "Main Cellar"}}}
	cat := &fakeCatalog{refs: map[int64]catalog.ProductRef{10: {ID: 10, Name: "Pinot Noir 2021"}}}
	svc := NewService(flaky, dir, cat, nil, nil, nil)

	qty, err := svc.Receive(context.Background(), ReceiveInput{WarehouseID: 1, ProductID: 10, Quantity: 9})
	require.NoError(t, err)
	assert.Equal(t, int64(9), qty)
	assert.Equal(t, 3, flaky.attempts)
}

func TestSerializationConflictExhaustsRetries(t *testing.T) {
	flaky := &flakyRepo{memoryRepo: newMemoryRepo(), failures: 10}
	dir := &fakeDirectory{known: map[int64]warehouses.Warehouse{1: {ID: 1, Name: "Main Cellar"}}}
	cat := &fakeCatalog{refs: map[int64]catalog.ProductRef{10: {ID: 10, Name: "Pinot Noir 2021"}}}
	svc := NewService(flaky, dir, cat, nil, nil, nil)

	_, err := svc.Receive(context.Background(), ReceiveInput{WarehouseID: 1, ProductID: 10, Quantity: 9})
	assert.Equal(t, shared.KindConflict, shared.KindOf(err))
	assert.Equal(t, maxTxAttempts, flaky.attempts)
}

// flakyRepo fails the first N transactions with a serialization conflict.
type flakyRepo struct {
	*memoryRepo
	failures int
	attempts int
}

func (f *flakyRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	f.attempts++
	if f.attempts <= f.failures {
		return ErrSerialization
	}
	return f.memoryRepo.WithTx(ctx, fn)
}

func TestMovementValidate(t *testing.T) {
	from, to := int64(1), int64(2)
	cases := []struct {
		name    string
		m       StockMovement
		wantErr bool
	}{
		{"receive ok", StockMovement{ProductID: 10, Quantity: 1, Type: MovementReceive, ToWarehouseID: &to}, false},
		{"receive with source", StockMovement{ProductID: 10, Quantity: 1, Type: MovementReceive, FromWarehouseID: &from, ToWarehouseID: &to}, true},
		{"remove ok", StockMovement{ProductID: 10, Quantity: 1, Type: MovementRemove, FromWarehouseID: &from}, false},
		{"transfer ok", StockMovement{ProductID: 10, Quantity: 1, Type: MovementTransfer, FromWarehouseID: &from, ToWarehouseID: &to}, false},
		{"transfer missing dest", StockMovement{ProductID: 10, Quantity: 1, Type: MovementTransfer, FromWarehouseID: &from}, true},
		{"transfer to itself", StockMovement{ProductID: 10, Quantity: 1, Type: MovementTransfer, FromWarehouseID: &from, ToWarehouseID: &from}, true},
		{"zero quantity", StockMovement{ProductID: 10, Quantity: 0, Type: MovementReceive, ToWarehouseID: &to}, true},
		{"unknown type", StockMovement{ProductID: 10, Quantity: 1, Type: "AUDIT"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.m.Validate()
			if tc.wantErr {
				assert.Error(t, err, fmt.Sprintf("case %s", tc.name))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
