package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockReconcile triggers the nightly ledger-versus-movements check.
	TaskStockReconcile = "inventory:reconcile"
)

// StockReconcilePayload carries scheduling metadata.
type StockReconcilePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewStockReconcileTask constructs an Asynq task for stock reconciliation.
func NewStockReconcileTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(StockReconcilePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockReconcile, body, asynq.Queue(QueueDefault)), nil
}
