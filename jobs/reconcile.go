package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/cellarkeep/cellarkeep/internal/inventory"
)

// Reconciler compares movement sums against the ledger and persists drifts.
type Reconciler interface {
	ReconcileAndRecord(ctx context.Context) ([]inventory.ReconciliationEntry, error)
}

// NewStockReconcileHandler builds the handler for TaskStockReconcile. Any
// drift it finds is recorded for review and logged; the job itself never
// mutates stock.
func NewStockReconcileHandler(logger *slog.Logger, reconciler Reconciler) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload StockReconcilePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		started := time.Now()
		drifts, err := reconciler.ReconcileAndRecord(ctx)
		if err != nil {
			logger.Error("stock reconciliation failed", slog.Any("error", err))
			return err
		}
		if len(drifts) > 0 {
			logger.Warn("stock reconciliation found drift",
				slog.Int("pairs", len(drifts)),
				slog.Duration("took", time.Since(started)))
			return nil
		}
		logger.Info("stock reconciliation clean", slog.Duration("took", time.Since(started)))
		return nil
	}
}
