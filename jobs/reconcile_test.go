package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarkeep/cellarkeep/internal/inventory"
)

type stubReconciler struct {
	drifts []inventory.ReconciliationEntry
	err    error
	calls  int
}

func (s *stubReconciler) ReconcileAndRecord(ctx context.Context) ([]inventory.ReconciliationEntry, error) {
	s.calls++
	return s.drifts, s.err
}

func TestStockReconcileHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	task, err := NewStockReconcileTask(time.Now().UTC())
	require.NoError(t, err)

	stub := &stubReconciler{}
	handler := NewStockReconcileHandler(logger, stub)
	require.NoError(t, handler(context.Background(), task))
	assert.Equal(t, 1, stub.calls)

	stub = &stubReconciler{drifts: []inventory.ReconciliationEntry{{WarehouseID: 1, ProductID: 10, LedgerQty: 5, MovementQty: 7}}}
	handler = NewStockReconcileHandler(logger, stub)
	require.NoError(t, handler(context.Background(), task))

	stub = &stubReconciler{err: errors.New("db down")}
	handler = NewStockReconcileHandler(logger, stub)
	assert.Error(t, handler(context.Background(), task))
}

func TestStockReconcileHandlerSkipsBadPayload(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stub := &stubReconciler{}
	handler := NewStockReconcileHandler(logger, stub)

	err := handler(context.Background(), asynq.NewTask(TaskStockReconcile, []byte("not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, 0, stub.calls)
}
