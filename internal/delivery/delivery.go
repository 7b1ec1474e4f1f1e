// Package delivery evaluates notification rules against fused and raw
// high-severity events and dispatches alerts to channels with retry and
// dead-letter handling.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eventfuse/eventfuse/config"
	"github.com/eventfuse/eventfuse/internal/logger"
	"github.com/eventfuse/eventfuse/internal/metrics"
	"github.com/eventfuse/eventfuse/internal/models"
	"github.com/eventfuse/eventfuse/internal/queue"
	"github.com/eventfuse/eventfuse/internal/store"
)

// Notification is the channel-agnostic payload a rule fires with.
type Notification struct {
	TenantID string `json:"tenant_id"`
	Title    string `json:"title"`
	Severity int    `json:"severity"`
	Urgency  int    `json:"urgency"`
	EventID  string `json:"event_id"`
	Payload  []byte `json:"payload"`
}

// Message renders the wire message. Every channel message carries at least
// the severity and title in this exact shape.
func (n Notification) Message() string {
	return fmt.Sprintf("[SEV=%d] %s", n.Severity, n.Title)
}

// Deliverer fans notifications out to channel senders.
type Deliverer struct {
	store   store.Store
	dlq     queue.DLQ
	senders map[string]Sender
	cfg     config.DeliveryConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a deliverer
func New(st store.Store, dlq queue.DLQ, cfg config.DeliveryConfig, senders ...Sender) *Deliverer {
	byChannel := make(map[string]Sender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	return &Deliverer{
		store:   st,
		dlq:     dlq,
		senders: byChannel,
		cfg:     cfg,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DeliverFused evaluates rules for a fused event.
func (d *Deliverer) DeliverFused(ctx context.Context, fused models.FusedEvent) error {
	payload, err := json.Marshal(fused)
	if err != nil {
		return fmt.Errorf("marshal fused event: %w", err)
	}
	return d.deliver(ctx, Notification{
		TenantID: fused.TenantID,
		Title:    fused.NewsTitle,
		Severity: fused.Severity,
		Urgency:  urgencyForSeverity(fused.Severity),
		EventID:  fused.ID,
		Payload:  payload,
	})
}

// DeliverRaw evaluates rules for a raw event that cleared the high-severity
// passthrough threshold without fusing.
func (d *Deliverer) DeliverRaw(ctx context.Context, ev models.NormalizedEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return d.deliver(ctx, Notification{
		TenantID: ev.TenantID,
		Title:    ev.Title,
		Severity: ev.Severity,
		Urgency:  ev.Urgency,
		EventID:  ev.PostKey,
		Payload:  payload,
	})
}

func (d *Deliverer) deliver(ctx context.Context, n Notification) error {
	rules, err := d.store.ListRules(ctx, n.TenantID)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}

	for _, rule := range rules {
		if !d.ruleFires(rule, n) {
			continue
		}
		d.fireRule(ctx, rule, n)
	}
	return nil
}

// ruleFires applies the three firing conditions: severity floor, urgency
// floor, and cooldown. A rare double-fire under concurrent evaluation is an
// accepted risk, not a hard guarantee.
func (d *Deliverer) ruleFires(rule models.NotificationRule, n Notification) bool {
	if !rule.Enabled {
		return false
	}
	if n.Severity < rule.MinSeverity || n.Urgency < rule.MinUrgency {
		return false
	}
	if rule.CooldownMinutes > 0 && !rule.LastTriggeredAt.IsZero() {
		cooldown := time.Duration(rule.CooldownMinutes) * time.Minute
		if d.now().Sub(rule.LastTriggeredAt) < cooldown {
			return false
		}
	}
	return true
}

func (d *Deliverer) fireRule(ctx context.Context, rule models.NotificationRule, n Notification) {
	sender, ok := d.senders[rule.Channel]
	if !ok {
		logger.Error("No sender for channel", "channel", rule.Channel, "rule_id", rule.ID)
		// No send was ever attempted
		d.deadLetter(ctx, rule, n, fmt.Sprintf("unknown channel %q", rule.Channel), 0)
		return
	}

	err := d.sendWithRetry(ctx, sender, n.Message(), rule.Config)
	if err != nil {
		metrics.RecordDelivery(rule.Channel, "dlq")
		d.deadLetter(ctx, rule, n, err.Error(), d.cfg.MaxRetries)
		return
	}

	metrics.RecordDelivery(rule.Channel, "ok")
	if err := d.store.MarkRuleTriggered(ctx, rule.ID, d.now()); err != nil {
		logger.Error("Failed to record rule trigger", "rule_id", rule.ID, "error", err)
	}
	logger.Info("Notification delivered",
		"rule_id", rule.ID,
		"channel", rule.Channel,
		"tenant_id", rule.TenantID,
		"severity", n.Severity,
	)
}

// sendWithRetry attempts the send up to MaxRetries times with exponential
// backoff capped at MaxBackoff.
func (d *Deliverer) sendWithRetry(ctx context.Context, sender Sender, message string, config map[string]string) error {
	backoff := d.cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= d.cfg.MaxRetries; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		lastErr = sender.Send(sendCtx, message, config)
		cancel()
		if lastErr == nil {
			return nil
		}

		logger.Warn("Delivery attempt failed",
			"channel", sender.Channel(),
			"attempt", attempt,
			"error", lastErr,
		)
		metrics.RecordDelivery(sender.Channel(), "retry")

		if attempt == d.cfg.MaxRetries {
			break
		}
		if err := d.sleep(ctx, backoff); err != nil {
			return lastErr
		}
		backoff *= 2
		if backoff > d.cfg.MaxBackoff {
			backoff = d.cfg.MaxBackoff
		}
	}
	return lastErr
}

// Redeliver re-sends a dead-lettered notification through its original
// rule and channel. Firing conditions are not re-checked: they held when
// the message was first dead-lettered. A failed send re-dead-letters the
// message with its replay count intact so the replay ceiling still
// applies; that counts as handled, not as an error.
func (d *Deliverer) Redeliver(ctx context.Context, msg models.DLQMessage) error {
	tenantID := msg.Metadata["tenant_id"]
	ruleID := msg.Metadata["rule_id"]
	if tenantID == "" || ruleID == "" {
		return fmt.Errorf("dead letter %s missing rule metadata", msg.ID)
	}

	rules, err := d.store.ListRules(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}
	var rule *models.NotificationRule
	for i := range rules {
		if rules[i].ID == ruleID {
			rule = &rules[i]
			break
		}
	}
	if rule == nil {
		return fmt.Errorf("rule %s no longer exists for tenant %s", ruleID, tenantID)
	}

	sender, ok := d.senders[rule.Channel]
	if !ok {
		return fmt.Errorf("no sender for channel %q", rule.Channel)
	}

	n, err := notificationFromDeadLetter(msg, tenantID)
	if err != nil {
		return err
	}

	if err := d.sendWithRetry(ctx, sender, n.Message(), rule.Config); err != nil {
		metrics.RecordDelivery(rule.Channel, "dlq")
		d.deadLetter(ctx, *rule, n, err.Error(), msg.RetryCount)
		return nil
	}

	metrics.RecordDelivery(rule.Channel, "ok")
	if err := d.store.MarkRuleTriggered(ctx, rule.ID, d.now()); err != nil {
		logger.Error("Failed to record rule trigger", "rule_id", rule.ID, "error", err)
	}
	logger.Info("Dead letter redelivered",
		"message_id", msg.ID,
		"rule_id", rule.ID,
		"channel", rule.Channel,
	)
	return nil
}

// notificationFromDeadLetter rebuilds the wire message from the payload a
// dead letter carries. The payload is either a fused event or a raw
// normalized event; both carry severity, and the title field differs.
func notificationFromDeadLetter(msg models.DLQMessage, tenantID string) (Notification, error) {
	var payload struct {
		Title     string `json:"title"`
		NewsTitle string `json:"news_title"`
		Severity  int    `json:"severity"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return Notification{}, fmt.Errorf("decode dead letter %s payload: %w", msg.ID, err)
	}

	title := payload.NewsTitle
	if title == "" {
		title = payload.Title
	}
	return Notification{
		TenantID: tenantID,
		Title:    title,
		Severity: payload.Severity,
		Urgency:  urgencyForSeverity(payload.Severity),
		EventID:  msg.Metadata["event_id"],
		Payload:  msg.Data,
	}, nil
}

// deadLetter records the failed notification with the number of send
// attempts actually made.
func (d *Deliverer) deadLetter(ctx context.Context, rule models.NotificationRule, n Notification, errMsg string, attempts int) {
	msg := models.DLQMessage{
		ID:            uuid.New().String(),
		OriginalTopic: d.cfg.Topic,
		Data:          n.Payload,
		Error:         errMsg,
		Timestamp:     d.now().UTC(),
		RetryCount:    attempts,
		Metadata: map[string]string{
			"tenant_id": rule.TenantID,
			"rule_id":   rule.ID,
			"channel":   rule.Channel,
			"event_id":  n.EventID,
		},
	}

	topic := queue.DLQTopic(d.cfg.Topic)
	if err := d.dlq.Push(ctx, topic, msg); err != nil {
		logger.Error("Failed to write DLQ message, alert lost",
			"topic", topic, "rule_id", rule.ID, "error", err)
		return
	}

	if depth, err := d.dlq.Depth(ctx, topic); err == nil {
		metrics.SetDLQDepth(topic, float64(depth))
	}
	logger.Warn("Message dead-lettered", "topic", topic, "rule_id", rule.ID, "error", errMsg)
}

func urgencyForSeverity(severity int) int {
	u := severity / 10
	if u < 1 {
		return 1
	}
	if u > 10 {
		return 10
	}
	return u
}
