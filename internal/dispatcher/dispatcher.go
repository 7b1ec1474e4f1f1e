// Package dispatcher fans out one fetch task per enabled poll source.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eventfuse/eventfuse/internal/logger"
	"github.com/eventfuse/eventfuse/internal/metrics"
	"github.com/eventfuse/eventfuse/internal/models"
	"github.com/eventfuse/eventfuse/internal/queue"
	"github.com/eventfuse/eventfuse/internal/store"
)

// Summary is the result of one dispatch cycle. Callers rely on this triple
// for health checks and alerting.
type Summary struct {
	Dispatched int               `json:"dispatched"`
	Skipped    int               `json:"skipped"`
	Errors     map[string]string `json:"errors"`
}

// Dispatcher enumerates enabled sources and enqueues fetch tasks.
type Dispatcher struct {
	store     store.Store
	taskQueue queue.TaskQueue
	queueName string
}

// New creates a dispatcher
func New(st store.Store, tq queue.TaskQueue, queueName string) *Dispatcher {
	return &Dispatcher{store: st, taskQueue: tq, queueName: queueName}
}

// Run executes one dispatch cycle. Per-source enqueue failures are isolated
// and reported in the summary; only a failed source enumeration aborts the
// cycle.
func (d *Dispatcher) Run(ctx context.Context) (Summary, error) {
	summary := Summary{Errors: make(map[string]string)}

	sources, err := d.store.ListEnabledSources(ctx)
	if err != nil {
		metrics.RecordDispatch("error")
		return summary, fmt.Errorf("enumerate sources: %w", err)
	}

	for _, source := range sources {
		if source.Mode == models.ModeWebhook {
			summary.Skipped++
			continue
		}

		task := models.Task{
			ID:         uuid.New().String(),
			TenantID:   source.TenantID,
			SourceID:   source.ID,
			Platform:   source.Platform,
			Priority:   "normal",
			RetryCount: 0,
			CreatedAt:  time.Now().UTC(),
		}

		if err := d.taskQueue.Enqueue(ctx, d.queueName, task); err != nil {
			summary.Errors[source.ID] = err.Error()
			logger.Error("Failed to enqueue fetch task", "source_id", source.ID, "error", err)
			continue
		}
		summary.Dispatched++
	}

	metrics.RecordDispatch("ok")
	logger.Info("Dispatch cycle complete",
		"dispatched", summary.Dispatched,
		"skipped", summary.Skipped,
		"errors", len(summary.Errors),
	)
	return summary, nil
}
