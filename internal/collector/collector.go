// Package collector consumes dispatcher fan-out tasks, fetches deltas
// through the platform adapters, persists normalized events, and feeds the
// fusion and delivery stages.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/eventfuse/eventfuse/config"
	"github.com/eventfuse/eventfuse/internal/adapters"
	"github.com/eventfuse/eventfuse/internal/classifier"
	"github.com/eventfuse/eventfuse/internal/delivery"
	"github.com/eventfuse/eventfuse/internal/fusion"
	"github.com/eventfuse/eventfuse/internal/logger"
	"github.com/eventfuse/eventfuse/internal/metrics"
	"github.com/eventfuse/eventfuse/internal/models"
	"github.com/eventfuse/eventfuse/internal/queue"
	"github.com/eventfuse/eventfuse/internal/store"
)

// Collector coordinates task consumption across a bounded worker pool.
type Collector struct {
	store        store.Store
	taskQueue    queue.TaskQueue
	registry     *adapters.Registry
	fusionEngine *fusion.Engine
	deliverer    *delivery.Deliverer
	classifier   *classifier.Classifier
	cfg          config.CollectorConfig
	queueName    string
	rawThreshold int

	limiter *rate.Limiter
	sem     *semaphore.Weighted

	mu      sync.RWMutex
	running bool
}

// New creates a collector
func New(
	st store.Store,
	tq queue.TaskQueue,
	registry *adapters.Registry,
	engine *fusion.Engine,
	deliverer *delivery.Deliverer,
	cls *classifier.Classifier,
	cfg config.CollectorConfig,
	queueName string,
	rawThreshold int,
) *Collector {
	return &Collector{
		store:        st,
		taskQueue:    tq,
		registry:     registry,
		fusionEngine: engine,
		deliverer:    deliverer,
		classifier:   cls,
		cfg:          cfg,
		queueName:    queueName,
		rawThreshold: rawThreshold,
		limiter:      rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)+1),
		sem:          semaphore.NewWeighted(int64(cfg.WorkerCount)),
	}
}

// Run consumes tasks until the context is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("collector already running")
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	logger.Info("Starting collector", "workers", c.cfg.WorkerCount, "queue", c.queueName)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Collector stopping")
			return ctx.Err()
		default:
		}

		task, err := c.taskQueue.Dequeue(ctx, c.queueName)
		if err != nil {
			logger.Error("Task dequeue failed", "error", err)
			if serr := sleepFor(ctx, c.cfg.PollInterval); serr != nil {
				return serr
			}
			continue
		}
		if task == nil {
			if serr := sleepFor(ctx, c.cfg.PollInterval); serr != nil {
				return serr
			}
			continue
		}

		if err := c.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		wg.Add(1)
		go func(task models.Task) {
			defer wg.Done()
			defer c.sem.Release(1)
			if err := c.ProcessTask(ctx, task); err != nil {
				logger.Error("Task processing failed",
					"source_id", task.SourceID,
					"platform", task.Platform,
					"error", err,
				)
			}
		}(*task)
	}
}

// IsRunning reports whether the consume loop is active
func (c *Collector) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// ProcessTask executes one fan-out task end to end. Duplicate dispatches
// are harmless: storage upserts on post key, so re-fetched items insert
// nothing and are not forwarded downstream again.
func (c *Collector) ProcessTask(ctx context.Context, task models.Task) error {
	source, err := c.store.GetSource(ctx, task.SourceID)
	if err != nil {
		return fmt.Errorf("load source %s: %w", task.SourceID, err)
	}
	if source == nil || !source.Enabled {
		logger.Debug("Skipping task for missing or disabled source", "source_id", task.SourceID)
		return nil
	}

	adapter, ok := c.registry.Get(source.Platform)
	if !ok {
		return fmt.Errorf("no adapter for platform %q", source.Platform)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	start := time.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	items, nextCursor, err := adapter.FetchDelta(fetchCtx, source.Cursor, source.Config)
	cancel()
	metrics.RecordFetch(source.Platform, time.Since(start))

	if err != nil {
		metrics.RecordEventIngested(source.Platform, "fetch_error")
		return fmt.Errorf("fetch %s: %w", source.ID, err)
	}

	if len(items) == 0 {
		logger.Debug("No new items", "source_id", source.ID)
		return nil
	}

	events := make([]models.NormalizedEvent, 0, len(items))
	for _, item := range items {
		events = append(events, adapter.Normalize(item, *source))
	}

	// Events already present are re-upserts from a duplicate dispatch or an
	// overlapping fetch; they must not re-enter fusion.
	fresh := make([]models.NormalizedEvent, 0, len(events))
	for _, ev := range events {
		existing, gerr := c.store.GetEvent(ctx, ev.PostKey)
		if gerr != nil {
			return fmt.Errorf("check event %s: %w", ev.PostKey, gerr)
		}
		if existing == nil {
			fresh = append(fresh, ev)
		}
	}

	inserted, err := c.store.UpsertEvents(ctx, events)
	if err != nil {
		metrics.RecordEventIngested(source.Platform, "store_error")
		return fmt.Errorf("upsert events: %w", err)
	}
	metrics.RecordEventIngested(source.Platform, "ok")

	if nextCursor.Advances(source.Cursor) {
		if err := c.store.AdvanceCursor(ctx, source.ID, nextCursor); err != nil {
			logger.Error("Cursor advance failed", "source_id", source.ID, "error", err)
		}
	}

	for _, ev := range fresh {
		c.forward(ctx, ev)
		c.enrichAsync(ev)
	}

	logger.Info("Task processed",
		"source_id", source.ID,
		"platform", source.Platform,
		"fetched", len(items),
		"inserted", inserted,
	)
	return nil
}

// forward runs one event through fusion and, when warranted, delivery.
func (c *Collector) forward(ctx context.Context, ev models.NormalizedEvent) {
	fused, err := c.fusionEngine.Ingest(ev)
	if err != nil {
		logger.Warn("Event rejected by fusion", "post_key", ev.PostKey, "error", err)
		return
	}

	if fused != nil {
		if err := c.store.InsertFusedEvent(ctx, *fused); err != nil {
			logger.Error("Failed to persist fused event", "fused_id", fused.ID, "error", err)
		}
		if err := c.deliverer.DeliverFused(ctx, *fused); err != nil {
			logger.Error("Fused event delivery failed", "fused_id", fused.ID, "error", err)
		}
		return
	}

	// Raw passthrough: severe events alert even without corroboration
	if c.rawThreshold > 0 && ev.Severity >= c.rawThreshold {
		if err := c.deliverer.DeliverRaw(ctx, ev); err != nil {
			logger.Error("Raw event delivery failed", "post_key", ev.PostKey, "error", err)
		}
	}
}

// enrichAsync fills sentiment and entities from the classifier without
// blocking the task.
func (c *Collector) enrichAsync(ev models.NormalizedEvent) {
	if c.classifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.FetchTimeout)
		defer cancel()

		enrichment := c.classifier.Classify(ctx, ev.Title+" "+ev.Summary)
		if err := c.store.EnrichEvent(ctx, ev.PostKey, enrichment.Sentiment, enrichment.Entities); err != nil {
			logger.Warn("Event enrichment failed", "post_key", ev.PostKey, "error", err)
		}
	}()
}

func sleepFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
