package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/eventfuse/eventfuse/internal/models"
	"github.com/eventfuse/eventfuse/internal/queue"
	"github.com/eventfuse/eventfuse/internal/store"
)

func testSources() []models.Source {
	return []models.Source{
		{ID: "rss-1", TenantID: "t1", Platform: models.PlatformRSS, Mode: models.ModePoll, Enabled: true, Config: map[string]string{"feedUrl": "https://example.com/feed"}},
		{ID: "fb-1", TenantID: "t1", Platform: models.PlatformFacebook, Mode: models.ModePoll, Enabled: true, Config: map[string]string{"pageId": "pg"}},
		{ID: "hook-1", TenantID: "t2", Platform: models.PlatformThreads, Mode: models.ModeWebhook, Enabled: true},
	}
}

func newTestStore(t *testing.T, sources []models.Source) store.Store {
	t.Helper()
	st := store.NewInMemoryStore()
	for _, s := range sources {
		if err := st.PutSource(context.Background(), s); err != nil {
			t.Fatalf("PutSource failed: %v", err)
		}
	}
	return st
}

func TestDispatcherRun(t *testing.T) {
	st := newTestStore(t, testSources())
	tq := queue.NewInMemoryTaskQueue()
	d := New(st, tq, "source-fetch")

	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Dispatched != 2 {
		t.Errorf("Expected 2 dispatched, got %d", summary.Dispatched)
	}
	if summary.Skipped != 1 {
		t.Errorf("Expected 1 skipped webhook source, got %d", summary.Skipped)
	}
	if len(summary.Errors) != 0 {
		t.Errorf("Expected no errors, got %v", summary.Errors)
	}

	depth, err := tq.Depth(context.Background(), "source-fetch")
	if err != nil {
		t.Fatalf("Depth failed: %v", err)
	}
	if depth != 2 {
		t.Errorf("Expected 2 queued tasks, got %d", depth)
	}

	task, err := tq.Dequeue(context.Background(), "source-fetch")
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if task == nil {
		t.Fatal("Expected a task")
	}
	if task.RetryCount != 0 {
		t.Errorf("Expected retry count 0, got %d", task.RetryCount)
	}
	if task.Priority != "normal" {
		t.Errorf("Expected normal priority, got %s", task.Priority)
	}
	if task.ID == "" {
		t.Error("Expected a generated task ID")
	}
}

func TestDispatcherSkipsDisabledSources(t *testing.T) {
	sources := testSources()
	sources[0].Enabled = false
	st := newTestStore(t, sources)
	tq := queue.NewInMemoryTaskQueue()
	d := New(st, tq, "source-fetch")

	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Dispatched != 1 {
		t.Errorf("Expected 1 dispatched (disabled source not enumerated), got %d", summary.Dispatched)
	}
}

type failingQueue struct {
	queue.TaskQueue
	failFor map[string]bool
}

func (q *failingQueue) Enqueue(ctx context.Context, name string, task models.Task) error {
	if q.failFor[task.SourceID] {
		return errors.New("queue unavailable")
	}
	return q.TaskQueue.Enqueue(ctx, name, task)
}

func TestDispatcherIsolatesPerSourceFailures(t *testing.T) {
	st := newTestStore(t, testSources())
	tq := &failingQueue{TaskQueue: queue.NewInMemoryTaskQueue(), failFor: map[string]bool{"rss-1": true}}
	d := New(st, tq, "source-fetch")

	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Expected cycle to survive per-source failure, got %v", err)
	}
	if summary.Dispatched != 1 {
		t.Errorf("Expected 1 dispatched, got %d", summary.Dispatched)
	}
	if summary.Errors["rss-1"] != "queue unavailable" {
		t.Errorf("Expected rss-1 error recorded, got %v", summary.Errors)
	}
}
