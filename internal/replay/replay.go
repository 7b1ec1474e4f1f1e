// Package replay drains a dead letter queue back through delivery.
package replay

import (
	"context"
	"time"

	"github.com/eventfuse/eventfuse/internal/logger"
	"github.com/eventfuse/eventfuse/internal/models"
	"github.com/eventfuse/eventfuse/internal/queue"
)

// Redeliverer re-sends a dead-lettered message to its original
// destination. The deliverer implements this.
type Redeliverer interface {
	Redeliver(ctx context.Context, msg models.DLQMessage) error
}

// Summary reports one replay run. Per-message failures land in Errors; the
// run itself still completes.
type Summary struct {
	Replayed int
	Skipped  int
	Errors   int
}

// Runner feeds dead-lettered messages back into the sink. It runs as an
// on-demand tool with a bounded time budget, not a long-lived service.
type Runner struct {
	queue      queue.DLQ
	sink       Redeliverer
	maxRetries int
}

// New creates a replay runner
func New(q queue.DLQ, sink Redeliverer, maxRetries int) *Runner {
	return &Runner{queue: q, sink: sink, maxRetries: maxRetries}
}

// Run drains up to limit messages from topic's DLQ within the budget and
// hands each one to the sink for redelivery. Messages whose retry count
// already reached the max are skipped and discarded, which is what
// prevents infinite replay loops. Replayed messages carry provenance
// metadata and an incremented retry count.
func (r *Runner) Run(ctx context.Context, topic string, limit int, budget time.Duration) (Summary, error) {
	var summary Summary

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	dlqTopic := queue.DLQTopic(topic)
	startedAt := time.Now().UTC()

	for limit <= 0 || summary.Replayed+summary.Skipped+summary.Errors < limit {
		select {
		case <-ctx.Done():
			logger.Warn("Replay budget exhausted", "topic", topic, "budget", budget)
			return summary, nil
		default:
		}

		msg, err := r.queue.Pop(ctx, dlqTopic)
		if err != nil {
			logger.Error("DLQ pop failed", "topic", dlqTopic, "error", err)
			summary.Errors++
			return summary, nil
		}
		if msg == nil {
			// Drained
			return summary, nil
		}

		if msg.RetryCount >= r.maxRetries {
			logger.Info("Skipping exhausted message",
				"message_id", msg.ID,
				"retry_count", msg.RetryCount,
			)
			summary.Skipped++
			continue
		}

		replayed := *msg
		replayed.RetryCount = msg.RetryCount + 1
		replayed.Metadata = cloneMetadata(msg.Metadata)
		replayed.Metadata["__replayedFrom"] = dlqTopic
		replayed.Metadata["__replayedAt"] = startedAt.Format(time.RFC3339)

		if err := r.sink.Redeliver(ctx, replayed); err != nil {
			logger.Error("Redelivery failed", "message_id", msg.ID, "error", err)
			summary.Errors++
			continue
		}
		summary.Replayed++
	}
	return summary, nil
}

func cloneMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}
