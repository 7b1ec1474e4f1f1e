package store

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/eventfuse/eventfuse/internal/errors"
	"github.com/eventfuse/eventfuse/internal/models"
)

// InMemoryStore implements Store using in-memory storage
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string]models.NormalizedEvent
	fused  []models.FusedEvent
	srcs   map[string]models.Source
	rules  map[string]models.NotificationRule
}

// NewInMemoryStore creates a new in-memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		events: make(map[string]models.NormalizedEvent),
		srcs:   make(map[string]models.Source),
		rules:  make(map[string]models.NotificationRule),
	}
}

// UpsertEvents stores events keyed by post key. Re-inserting an existing
// post key is a no-op for counting purposes, which is what makes duplicate
// dispatches safe.
func (s *InMemoryStore) UpsertEvents(ctx context.Context, events []models.NormalizedEvent) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, ev := range events {
		if existing, ok := s.events[ev.PostKey]; ok {
			// Keep the earlier insertion time and any enrichment already done
			ev.InsertedAt = existing.InsertedAt
			if ev.Sentiment == "" {
				ev.Sentiment = existing.Sentiment
			}
			if len(ev.Entities) == 0 {
				ev.Entities = existing.Entities
			}
		} else {
			inserted++
			if ev.InsertedAt.IsZero() {
				ev.InsertedAt = time.Now().UTC()
			}
		}
		s.events[ev.PostKey] = ev
	}

	return inserted, nil
}

// QueryEvents retrieves events matching the query, newest first
func (s *InMemoryStore) QueryEvents(ctx context.Context, q models.EventQuery) ([]models.NormalizedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.NormalizedEvent
	for _, ev := range s.events {
		if q.Matches(ev) {
			result = append(result, ev)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if q.Offset > 0 && q.Offset < len(result) {
		result = result[q.Offset:]
	} else if q.Offset >= len(result) && q.Offset > 0 {
		result = nil
	}

	if q.Limit > 0 && q.Limit < len(result) {
		result = result[:q.Limit]
	}

	return result, nil
}

// GetEvent retrieves a single event by post key
func (s *InMemoryStore) GetEvent(ctx context.Context, postKey string) (*models.NormalizedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ev, exists := s.events[postKey]; exists {
		return &ev, nil
	}
	return nil, nil
}

// EnrichEvent fills the async enrichment fields of a stored event
func (s *InMemoryStore) EnrichEvent(ctx context.Context, postKey, sentiment string, entities []models.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, exists := s.events[postKey]
	if !exists {
		return apperrors.ErrNotFound
	}
	if sentiment != "" {
		ev.Sentiment = sentiment
	}
	if len(entities) > 0 {
		ev.Entities = entities
	}
	s.events[postKey] = ev
	return nil
}

// InsertFusedEvent appends a fused event
func (s *InMemoryStore) InsertFusedEvent(ctx context.Context, ev models.FusedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fused = append(s.fused, ev)
	return nil
}

// QueryFusedEvents returns fused events for a tenant, newest first
func (s *InMemoryStore) QueryFusedEvents(ctx context.Context, tenantID string, limit int) ([]models.FusedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.FusedEvent
	for _, ev := range s.fused {
		if tenantID == "" || ev.TenantID == tenantID {
			result = append(result, ev)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Ts.After(result[j].Ts)
	})

	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// ListEnabledSources returns enabled sources across all tenants in one pass
func (s *InMemoryStore) ListEnabledSources(ctx context.Context) ([]models.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.Source
	for _, src := range s.srcs {
		if src.Enabled {
			result = append(result, src)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetSource retrieves a source by ID
func (s *InMemoryStore) GetSource(ctx context.Context, id string) (*models.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if src, exists := s.srcs[id]; exists {
		return &src, nil
	}
	return nil, nil
}

// PutSource creates or replaces a source
func (s *InMemoryStore) PutSource(ctx context.Context, src models.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.srcs[src.ID]; ok {
		src.CreatedAt = existing.CreatedAt
	} else if src.CreatedAt.IsZero() {
		src.CreatedAt = now
	}
	src.UpdatedAt = now
	s.srcs[src.ID] = src
	return nil
}

// DeleteSource removes a source
func (s *InMemoryStore) DeleteSource(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.srcs, id)
	return nil
}

// AdvanceCursor moves a source's cursor forward. Stale writes are dropped,
// not errors: a concurrent worker already advanced past this point.
func (s *InMemoryStore) AdvanceCursor(ctx context.Context, sourceID string, cursor models.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, exists := s.srcs[sourceID]
	if !exists {
		return apperrors.ErrNotFound
	}
	if !cursor.Advances(src.Cursor) {
		return nil
	}
	src.Cursor = cursor
	src.UpdatedAt = time.Now().UTC()
	s.srcs[sourceID] = src
	return nil
}

// ListRules returns enabled and disabled rules for a tenant
func (s *InMemoryStore) ListRules(ctx context.Context, tenantID string) ([]models.NotificationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.NotificationRule
	for _, rule := range s.rules {
		if tenantID == "" || rule.TenantID == tenantID {
			result = append(result, rule)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// PutRule creates or replaces a notification rule
func (s *InMemoryStore) PutRule(ctx context.Context, rule models.NotificationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.rules[rule.ID]; ok {
		rule.TriggerCount = existing.TriggerCount
		rule.LastTriggeredAt = existing.LastTriggeredAt
	}
	s.rules[rule.ID] = rule
	return nil
}

// DeleteRule removes a notification rule
func (s *InMemoryStore) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rules, id)
	return nil
}

// MarkRuleTriggered records a fire: bumps the trigger count and the cooldown
// timestamp
func (s *InMemoryStore) MarkRuleTriggered(ctx context.Context, ruleID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, exists := s.rules[ruleID]
	if !exists {
		return apperrors.ErrNotFound
	}
	rule.TriggerCount++
	rule.LastTriggeredAt = at
	s.rules[ruleID] = rule
	return nil
}

// Health always returns nil for in-memory store
func (s *InMemoryStore) Health(ctx context.Context) error {
	return nil
}
