package store

import (
	"context"
	"time"

	"github.com/eventfuse/eventfuse/internal/models"
)

// Store defines the persistence interface shared by the pipeline stages.
// Event upserts are idempotent on post_key so concurrent or retried collector
// runs are safe.
type Store interface {
	// Normalized events
	UpsertEvents(ctx context.Context, events []models.NormalizedEvent) (inserted int, err error)
	QueryEvents(ctx context.Context, q models.EventQuery) ([]models.NormalizedEvent, error)
	GetEvent(ctx context.Context, postKey string) (*models.NormalizedEvent, error)
	EnrichEvent(ctx context.Context, postKey, sentiment string, entities []models.Entity) error

	// Fused events
	InsertFusedEvent(ctx context.Context, ev models.FusedEvent) error
	QueryFusedEvents(ctx context.Context, tenantID string, limit int) ([]models.FusedEvent, error)

	// Source registry
	ListEnabledSources(ctx context.Context) ([]models.Source, error)
	GetSource(ctx context.Context, id string) (*models.Source, error)
	PutSource(ctx context.Context, src models.Source) error
	DeleteSource(ctx context.Context, id string) error
	AdvanceCursor(ctx context.Context, sourceID string, cursor models.Cursor) error

	// Notification rules
	ListRules(ctx context.Context, tenantID string) ([]models.NotificationRule, error)
	PutRule(ctx context.Context, rule models.NotificationRule) error
	DeleteRule(ctx context.Context, id string) error
	MarkRuleTriggered(ctx context.Context, ruleID string, at time.Time) error

	Health(ctx context.Context) error
}

// Database interface for dependency injection
type Database interface {
	Exec(ctx context.Context, sql string, args ...any) error
	Querier
	Health(ctx context.Context) error
	IsConfigured() bool
}

// New creates a new store instance
func New(db Database) Store {
	if db.IsConfigured() {
		return NewPostgresStore(db)
	}
	// Fallback to in-memory store if no database
	return NewInMemoryStore()
}
