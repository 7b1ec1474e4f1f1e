// Package queue provides the task fan-out queue and the dead letter queue.
// Both are at-least-once: a consumer crash between dequeue and completion
// loses nothing downstream because event storage is idempotent.
package queue

import (
	"context"

	"github.com/eventfuse/eventfuse/internal/models"
)

// TaskQueue carries dispatcher fan-out work to collector workers.
type TaskQueue interface {
	Enqueue(ctx context.Context, queue string, task models.Task) error
	// Dequeue returns the oldest task, or nil when the queue is empty.
	Dequeue(ctx context.Context, queue string) (*models.Task, error)
	Depth(ctx context.Context, queue string) (int64, error)
}

// DLQ is a durable holding area for messages that exhausted their retry
// budget, keyed by topic.
type DLQ interface {
	Push(ctx context.Context, topic string, msg models.DLQMessage) error
	// Pop returns the oldest message, or nil when the topic is empty.
	Pop(ctx context.Context, topic string) (*models.DLQMessage, error)
	Depth(ctx context.Context, topic string) (int64, error)
}

// DLQTopic derives the dead letter topic name for an original topic.
func DLQTopic(originalTopic string) string {
	return originalTopic + "-dlq"
}
