package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/eventfuse/eventfuse/internal/models"
)

func TestDLQTopic(t *testing.T) {
	if got := DLQTopic("notifications"); got != "notifications-dlq" {
		t.Errorf("Expected notifications-dlq, got %s", got)
	}
}

func TestInMemoryTaskQueue_FIFO(t *testing.T) {
	q := NewInMemoryTaskQueue()
	ctx := context.Background()

	for _, id := range []string{"task-1", "task-2"} {
		if err := q.Enqueue(ctx, "source-fetch", models.Task{ID: id}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	depth, err := q.Depth(ctx, "source-fetch")
	if err != nil || depth != 2 {
		t.Fatalf("Expected depth 2, got %d (%v)", depth, err)
	}

	task, err := q.Dequeue(ctx, "source-fetch")
	if err != nil || task == nil {
		t.Fatalf("dequeue: %v", err)
	}
	if task.ID != "task-1" {
		t.Errorf("Expected FIFO order, got %s", task.ID)
	}

	// Drain
	if _, err := q.Dequeue(ctx, "source-fetch"); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	task, err = q.Dequeue(ctx, "source-fetch")
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if task != nil {
		t.Error("Expected nil task on empty queue")
	}
}

func TestInMemoryDLQ(t *testing.T) {
	q := NewInMemoryDLQ()
	ctx := context.Background()

	msg := models.DLQMessage{
		ID:            "dlq-1",
		OriginalTopic: "notifications",
		Error:         "telegram API 500",
		RetryCount:    3,
		Timestamp:     time.Now().UTC(),
	}
	if err := q.Push(ctx, "notifications-dlq", msg); err != nil {
		t.Fatalf("push: %v", err)
	}

	depth, _ := q.Depth(ctx, "notifications-dlq")
	if depth != 1 {
		t.Errorf("Expected depth 1, got %d", depth)
	}

	got, err := q.Pop(ctx, "notifications-dlq")
	if err != nil || got == nil {
		t.Fatalf("pop: %v", err)
	}
	if got.ID != "dlq-1" || got.RetryCount != 3 {
		t.Errorf("Unexpected message: %+v", got)
	}

	got, err = q.Pop(ctx, "notifications-dlq")
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if got != nil {
		t.Error("Expected nil on empty topic")
	}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisTaskQueue(t *testing.T) {
	client := newTestRedis(t)
	q := NewRedisTaskQueue(client)
	ctx := context.Background()

	task := models.Task{
		ID:        "task-1",
		TenantID:  "default",
		SourceID:  "src-1",
		Platform:  models.PlatformRSS,
		Priority:  "normal",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := q.Enqueue(ctx, "source-fetch", task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, "source-fetch", models.Task{ID: "task-2"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	depth, err := q.Depth(ctx, "source-fetch")
	if err != nil || depth != 2 {
		t.Fatalf("Expected depth 2, got %d (%v)", depth, err)
	}

	got, err := q.Dequeue(ctx, "source-fetch")
	if err != nil || got == nil {
		t.Fatalf("dequeue: %v", err)
	}
	if got.ID != "task-1" || got.SourceID != "src-1" {
		t.Errorf("Expected task-1 round-tripped, got %+v", got)
	}
}

func TestRedisTaskQueue_Empty(t *testing.T) {
	q := NewRedisTaskQueue(newTestRedis(t))

	task, err := q.Dequeue(context.Background(), "source-fetch")
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if task != nil {
		t.Error("Expected nil task on empty queue")
	}
}

func TestRedisDLQ(t *testing.T) {
	q := NewRedisDLQ(newTestRedis(t))
	ctx := context.Background()

	msg := models.DLQMessage{
		ID:            "dlq-1",
		OriginalTopic: "notifications",
		Data:          []byte(`{"severity":80}`),
		Error:         "webhook timeout",
		RetryCount:    3,
		Metadata:      map[string]string{"channel": "webhook"},
		Timestamp:     time.Now().UTC().Truncate(time.Second),
	}
	if err := q.Push(ctx, "notifications-dlq", msg); err != nil {
		t.Fatalf("push: %v", err)
	}

	got, err := q.Pop(ctx, "notifications-dlq")
	if err != nil || got == nil {
		t.Fatalf("pop: %v", err)
	}
	if got.Error != "webhook timeout" || string(got.Data) != `{"severity":80}` {
		t.Errorf("Unexpected message round-trip: %+v", got)
	}
	if got.Metadata["channel"] != "webhook" {
		t.Errorf("Expected metadata preserved, got %v", got.Metadata)
	}

	got, err = q.Pop(ctx, "notifications-dlq")
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if got != nil {
		t.Error("Expected nil on drained topic")
	}
}
