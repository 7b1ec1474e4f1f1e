package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eventfuse/eventfuse/config"
	"github.com/eventfuse/eventfuse/internal/delivery"
	"github.com/eventfuse/eventfuse/internal/models"
	"github.com/eventfuse/eventfuse/internal/queue"
	"github.com/eventfuse/eventfuse/internal/store"
)

func deadLetter(id string, retryCount int) models.DLQMessage {
	return models.DLQMessage{
		ID:            id,
		OriginalTopic: "notifications",
		Data:          []byte(`{"title": "trading halt announced", "severity": 85}`),
		Error:         "send failed",
		Timestamp:     time.Now().UTC(),
		RetryCount:    retryCount,
		Metadata: map[string]string{
			"tenant_id": "default",
			"rule_id":   "r1",
			"channel":   "webhook",
			"event_id":  "rss:src-1:a1",
		},
	}
}

type recordingSink struct {
	received []models.DLQMessage
	err      error
}

func (s *recordingSink) Redeliver(ctx context.Context, msg models.DLQMessage) error {
	if s.err != nil {
		return s.err
	}
	s.received = append(s.received, msg)
	return nil
}

func TestReplayRedelivers(t *testing.T) {
	q := queue.NewInMemoryDLQ()
	dlqTopic := queue.DLQTopic("notifications")
	q.Push(context.Background(), dlqTopic, deadLetter("m1", 3))
	q.Push(context.Background(), dlqTopic, deadLetter("m2", 3))

	sink := &recordingSink{}
	runner := New(q, sink, 5)
	summary, err := runner.Run(context.Background(), "notifications", 0, 30*time.Second)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Replayed != 2 {
		t.Errorf("Expected 2 replayed, got %d", summary.Replayed)
	}
	if summary.Skipped != 0 || summary.Errors != 0 {
		t.Errorf("Expected clean run, got %+v", summary)
	}

	// Each message goes to the sink with provenance attached
	if len(sink.received) != 2 {
		t.Fatalf("Expected 2 messages redelivered, got %d", len(sink.received))
	}
	msg := sink.received[0]
	if msg.RetryCount != 4 {
		t.Errorf("Expected retry count incremented to 4, got %d", msg.RetryCount)
	}
	if msg.Metadata["__replayedFrom"] != dlqTopic {
		t.Errorf("Expected provenance topic, got %v", msg.Metadata)
	}
	if msg.Metadata["__replayedAt"] == "" {
		t.Error("Expected replay timestamp in metadata")
	}
	if msg.Metadata["rule_id"] != "r1" {
		t.Error("Expected original metadata preserved")
	}

	depth, _ := q.Depth(context.Background(), dlqTopic)
	if depth != 0 {
		t.Errorf("Expected DLQ drained, got depth %d", depth)
	}
}

func TestReplaySkipsExhaustedMessages(t *testing.T) {
	q := queue.NewInMemoryDLQ()
	dlqTopic := queue.DLQTopic("notifications")
	q.Push(context.Background(), dlqTopic, deadLetter("m1", 5))
	q.Push(context.Background(), dlqTopic, deadLetter("m2", 2))

	sink := &recordingSink{}
	runner := New(q, sink, 5)
	summary, err := runner.Run(context.Background(), "notifications", 0, 30*time.Second)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Skipped != 1 {
		t.Errorf("Expected 1 skipped, got %d", summary.Skipped)
	}
	if summary.Replayed != 1 {
		t.Errorf("Expected 1 replayed, got %d", summary.Replayed)
	}

	// Skipped messages are discarded, not redelivered
	if len(sink.received) != 1 || sink.received[0].ID != "m2" {
		t.Errorf("Expected only the replayable message redelivered, got %+v", sink.received)
	}
}

func TestReplayHonorsLimit(t *testing.T) {
	q := queue.NewInMemoryDLQ()
	dlqTopic := queue.DLQTopic("notifications")
	for i := 0; i < 5; i++ {
		q.Push(context.Background(), dlqTopic, deadLetter("m", 1))
	}

	runner := New(q, &recordingSink{}, 5)
	summary, err := runner.Run(context.Background(), "notifications", 2, 30*time.Second)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Replayed != 2 {
		t.Errorf("Expected replay limited to 2, got %d", summary.Replayed)
	}

	depth, _ := q.Depth(context.Background(), dlqTopic)
	if depth != 3 {
		t.Errorf("Expected 3 messages left in DLQ, got %d", depth)
	}
}

func TestReplayEmptyQueue(t *testing.T) {
	runner := New(queue.NewInMemoryDLQ(), &recordingSink{}, 5)
	summary, err := runner.Run(context.Background(), "notifications", 0, time.Second)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Replayed != 0 || summary.Skipped != 0 || summary.Errors != 0 {
		t.Errorf("Expected empty summary, got %+v", summary)
	}
}

func TestReplayCountsPerMessageErrors(t *testing.T) {
	q := queue.NewInMemoryDLQ()
	q.Push(context.Background(), queue.DLQTopic("notifications"), deadLetter("m1", 1))
	q.Push(context.Background(), queue.DLQTopic("notifications"), deadLetter("m2", 1))

	sink := &recordingSink{err: errors.New("redelivery failed")}
	runner := New(q, sink, 5)
	summary, err := runner.Run(context.Background(), "notifications", 0, 30*time.Second)
	if err != nil {
		t.Fatalf("Expected run to complete despite per-message failures, got %v", err)
	}
	if summary.Errors != 2 {
		t.Errorf("Expected 2 errors, got %d", summary.Errors)
	}
	if summary.Replayed != 0 {
		t.Errorf("Expected 0 replayed, got %d", summary.Replayed)
	}
}

type capturingSender struct {
	messages []string
}

func (s *capturingSender) Channel() string { return delivery.ChannelWebhook }

func (s *capturingSender) Send(ctx context.Context, message string, config map[string]string) error {
	s.messages = append(s.messages, message)
	return nil
}

// A dead-lettered notification must come back out through its original
// channel, end to end: store, deliverer, and DLQ wired together the same
// way the replay command wires them.
func TestReplayRedeliversThroughChannel(t *testing.T) {
	st := store.NewInMemoryStore()
	rule := models.NotificationRule{
		ID:       "r1",
		TenantID: "default",
		Channel:  delivery.ChannelWebhook,
		Name:     "halt alerts",
		Enabled:  true,
	}
	if err := st.PutRule(context.Background(), rule); err != nil {
		t.Fatalf("PutRule failed: %v", err)
	}

	sender := &capturingSender{}
	dlq := queue.NewInMemoryDLQ()
	cfg := config.DeliveryConfig{
		Topic:          "notifications",
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		SendTimeout:    time.Second,
	}
	deliverer := delivery.New(st, dlq, cfg, sender)

	dlqTopic := queue.DLQTopic("notifications")
	dlq.Push(context.Background(), dlqTopic, deadLetter("m1", 3))

	runner := New(dlq, deliverer, 5)
	summary, err := runner.Run(context.Background(), "notifications", 0, 30*time.Second)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Replayed != 1 {
		t.Fatalf("Expected 1 replayed, got %+v", summary)
	}
	if len(sender.messages) != 1 {
		t.Fatalf("Expected message re-sent through the webhook channel, got %d sends", len(sender.messages))
	}
	if sender.messages[0] != "[SEV=85] trading halt announced" {
		t.Errorf("Unexpected redelivered message %q", sender.messages[0])
	}

	depth, _ := dlq.Depth(context.Background(), dlqTopic)
	if depth != 0 {
		t.Errorf("Expected DLQ drained after redelivery, got depth %d", depth)
	}

	rules, _ := st.ListRules(context.Background(), "default")
	if rules[0].TriggerCount != 1 {
		t.Errorf("Expected redelivery recorded as rule trigger, got %d", rules[0].TriggerCount)
	}
}
