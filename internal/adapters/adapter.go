// Package adapters implements the per-platform fetch and normalize contract.
// Each adapter turns upstream payloads into NormalizedEvents; everything
// downstream of the collector is platform-agnostic.
package adapters

import (
	"context"
	"time"

	apperrors "github.com/eventfuse/eventfuse/internal/errors"
	"github.com/eventfuse/eventfuse/internal/logger"
	"github.com/eventfuse/eventfuse/internal/models"
	"github.com/eventfuse/eventfuse/pkg/utils"
)

// Item is one upstream post/article/quote before normalization.
type Item struct {
	ID          string
	Title       string
	Summary     string
	URL         string
	Author      string
	PublishedAt time.Time
	Engagement  models.Engagement
	Symbol      string
	Severity    int
	Raw         string
}

// Adapter is the uniform per-platform contract. FetchDelta returns only
// items strictly newer than the cursor, ascending, with the cursor advanced
// to the newest item observed. Normalize is pure: the same item always
// yields the same post key and dedup hash.
type Adapter interface {
	Platform() string
	FetchDelta(ctx context.Context, cursor models.Cursor, config map[string]string) ([]Item, models.Cursor, error)
	Normalize(item Item, source models.Source) models.NormalizedEvent
}

// Registry maps platform tags to adapter instances, resolved at startup.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from adapter instances
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

// Get resolves the adapter for a platform
func (r *Registry) Get(platform string) (Adapter, bool) {
	a, ok := r.adapters[platform]
	return a, ok
}

// Platforms lists the registered platform tags
func (r *Registry) Platforms() []string {
	out := make([]string, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	return out
}

// normalize is the shared mapping from Item to NormalizedEvent. Adapters
// call it after filling platform-specific fields.
func normalize(item Item, source models.Source) models.NormalizedEvent {
	text := item.Title + " " + item.Summary

	symbol := item.Symbol
	entities := DetectEntities(text)
	if symbol == "" && len(entities) > 0 {
		symbol = entities[0].Symbol
	}

	modelEntities := make([]models.Entity, 0, len(entities))
	for _, e := range entities {
		modelEntities = append(modelEntities, models.Entity{Name: e.Name, Type: e.Type})
	}

	sentiment := LexiconSentiment(text)
	severity := item.Severity
	if severity == 0 {
		severity = ScoreSeverity(text, item.Engagement)
	}

	return models.NormalizedEvent{
		PostKey:    utils.PostKey(source.Platform, source.ID, item.ID),
		TenantID:   source.TenantID,
		SourceID:   source.ID,
		Platform:   source.Platform,
		Domain:     models.DomainForPlatform(source.Platform),
		PostID:     item.ID,
		Title:      item.Title,
		Summary:    utils.Truncate(item.Summary, 500),
		CreatedAt:  item.PublishedAt.UTC(),
		URL:        item.URL,
		Author:     item.Author,
		Engagement: item.Engagement,
		Keywords:   ExtractKeywords(text, 10),
		Symbol:     symbol,
		Sentiment:  sentiment,
		Urgency:    urgencyFor(severity),
		Severity:   severity,
		Entities:   modelEntities,
		DedupHash:  utils.DedupHash(item.Title, item.URL, item.PublishedAt),
		RawRef:     utils.Truncate(item.Raw, 2000),
	}
}

// urgencyFor maps the 0-100 severity scale onto the 1-10 urgency scale
func urgencyFor(severity int) int {
	u := severity / 10
	if u < 1 {
		return 1
	}
	if u > 10 {
		return 10
	}
	return u
}

// cursorSince parses a sinceTs cursor value. A corrupt value is logged and
// treated as no cursor, so the next fetch covers the full feed; dedup
// downstream drops the repeats.
func cursorSince(platform string, cursor models.Cursor) time.Time {
	if cursor.Value == "" {
		return time.Time{}
	}
	since, err := time.Parse(time.RFC3339, cursor.Value)
	if err != nil {
		logger.Warn("Ignoring unparseable cursor, refetching full feed",
			"platform", platform,
			"cursor_value", cursor.Value,
			"error", err,
		)
		return time.Time{}
	}
	return since
}

// requireConfig returns the named config value or a ConfigurationError
func requireConfig(platform string, config map[string]string, field string) (string, error) {
	if v, ok := config[field]; ok && v != "" {
		return v, nil
	}
	return "", apperrors.ConfigurationError{Platform: platform, Field: field}
}
