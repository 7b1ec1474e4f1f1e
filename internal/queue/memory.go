package queue

import (
	"context"
	"sync"

	"github.com/eventfuse/eventfuse/internal/models"
)

// InMemoryTaskQueue implements TaskQueue with process-local FIFO lists.
// Used when REDIS_URL is not configured.
type InMemoryTaskQueue struct {
	mu    sync.Mutex
	tasks map[string][]models.Task
}

// NewInMemoryTaskQueue creates a new in-memory task queue
func NewInMemoryTaskQueue() *InMemoryTaskQueue {
	return &InMemoryTaskQueue{tasks: make(map[string][]models.Task)}
}

// Enqueue appends a task to the named queue
func (q *InMemoryTaskQueue) Enqueue(ctx context.Context, queue string, task models.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks[queue] = append(q.tasks[queue], task)
	return nil
}

// Dequeue pops the oldest task from the named queue
func (q *InMemoryTaskQueue) Dequeue(ctx context.Context, queue string) (*models.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	list := q.tasks[queue]
	if len(list) == 0 {
		return nil, nil
	}
	task := list[0]
	q.tasks[queue] = list[1:]
	return &task, nil
}

// Depth returns the number of queued tasks
func (q *InMemoryTaskQueue) Depth(ctx context.Context, queue string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.tasks[queue])), nil
}

// InMemoryDLQ implements DLQ with process-local FIFO lists.
type InMemoryDLQ struct {
	mu   sync.Mutex
	dead map[string][]models.DLQMessage
}

// NewInMemoryDLQ creates a new in-memory dead letter queue
func NewInMemoryDLQ() *InMemoryDLQ {
	return &InMemoryDLQ{dead: make(map[string][]models.DLQMessage)}
}

// Push appends a message to a DLQ topic
func (q *InMemoryDLQ) Push(ctx context.Context, topic string, msg models.DLQMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead[topic] = append(q.dead[topic], msg)
	return nil
}

// Pop removes and returns the oldest message from a DLQ topic
func (q *InMemoryDLQ) Pop(ctx context.Context, topic string) (*models.DLQMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	list := q.dead[topic]
	if len(list) == 0 {
		return nil, nil
	}
	msg := list[0]
	q.dead[topic] = list[1:]
	return &msg, nil
}

// Depth returns the number of dead-lettered messages on a topic
func (q *InMemoryDLQ) Depth(ctx context.Context, topic string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.dead[topic])), nil
}
