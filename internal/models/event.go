package models

import "time"

// Platform identifies the upstream system a source belongs to.
const (
	PlatformRSS       = "rss"
	PlatformNewsRSS   = "news_rss"
	PlatformFacebook  = "facebook"
	PlatformInstagram = "instagram"
	PlatformThreads   = "threads"
	PlatformMarket    = "market"
)

// Domain buckets used by the fusion engine.
const (
	DomainSocial = "social"
	DomainNews   = "news"
	DomainMarket = "market"
	DomainFusion = "fusion"
)

// Source modes.
const (
	ModePoll    = "poll"
	ModeWebhook = "webhook"
)

// Cursor types.
const (
	CursorSinceTs = "sinceTs"
	CursorSinceID = "sinceId"
)

// Sentiment labels attached to normalized events.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// Market direction labels on fused events.
const (
	DirectionBullish = "bullish"
	DirectionBearish = "bearish"
	DirectionNeutral = "neutral"
	DirectionUnknown = "unknown"
)

// Cursor is a forward-only pointer marking the last-seen item boundary for a
// source. Value is a RFC3339 timestamp for sinceTs cursors, an opaque ID for
// sinceId cursors.
type Cursor struct {
	Type  string `json:"cursor_type" yaml:"type"`
	Value string `json:"cursor_value" yaml:"value"`
}

// IsZero reports whether the cursor has never been advanced.
func (c Cursor) IsZero() bool { return c.Value == "" }

// Advances reports whether c moves strictly forward from prev. Cursors only
// ever move forward in time or ID order; a stale write must be rejected.
func (c Cursor) Advances(prev Cursor) bool {
	if c.IsZero() {
		return false
	}
	if prev.IsZero() {
		return true
	}
	if c.Type == CursorSinceTs && prev.Type == CursorSinceTs {
		ct, errC := time.Parse(time.RFC3339, c.Value)
		pt, errP := time.Parse(time.RFC3339, prev.Value)
		if errC == nil && errP == nil {
			return ct.After(pt)
		}
	}
	return c.Value > prev.Value
}

// Source is a configured origin of events with a recorded fetch cursor.
type Source struct {
	ID        string            `json:"id" yaml:"id"`
	TenantID  string            `json:"tenant_id" yaml:"tenant_id"`
	Platform  string            `json:"platform" yaml:"platform"`
	Mode      string            `json:"mode" yaml:"mode"`
	Enabled   bool              `json:"enabled" yaml:"enabled"`
	Config    map[string]string `json:"config" yaml:"config"`
	Cursor    Cursor            `json:"cursor" yaml:"cursor"`
	CreatedAt time.Time         `json:"created_at" yaml:"-"`
	UpdatedAt time.Time         `json:"updated_at" yaml:"-"`
}

// Engagement carries per-post interaction counts.
type Engagement struct {
	Likes    int `json:"likes"`
	Comments int `json:"comments"`
	Shares   int `json:"shares"`
	Views    int `json:"views"`
}

// Entity is a named thing extracted from an event (ticker, company, person).
type Entity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// NormalizedEvent is the platform-agnostic representation of one upstream
// item. Immutable after persistence except for the enrichment fields
// (Sentiment, Entities), which may be filled asynchronously.
type NormalizedEvent struct {
	PostKey    string     `json:"post_key"`
	TenantID   string     `json:"tenant_id"`
	SourceID   string     `json:"source_id"`
	Platform   string     `json:"platform"`
	Domain     string     `json:"domain"`
	PostID     string     `json:"post_id"`
	Title      string     `json:"title"`
	Summary    string     `json:"summary"`
	CreatedAt  time.Time  `json:"created_at"`
	URL        string     `json:"url"`
	Author     string     `json:"author"`
	Engagement Engagement `json:"engagement"`
	Keywords   []string   `json:"keywords"`
	Symbol     string     `json:"symbol,omitempty"`
	Sentiment  string     `json:"sentiment"`
	Urgency    int        `json:"urgency"`
	Severity   int        `json:"severity"`
	Entities   []Entity   `json:"entities"`
	DedupHash  string     `json:"dedup_hash"`
	RawRef     string     `json:"raw_ref"`
	InsertedAt time.Time  `json:"inserted_at"`
}

// Instrument identifies a tradable instrument referenced by a fused event.
type Instrument struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Evidence is one contributing item cited by a fused event.
type Evidence struct {
	Source string    `json:"source"`
	Title  string    `json:"title"`
	URL    string    `json:"url"`
	Ts     time.Time `json:"ts"`
}

// FusedEvent is emitted when correlated events from at least two domains are
// found inside the fusion window. The JSON layout is the downstream wire
// format and must not change field names.
type FusedEvent struct {
	ID               string     `json:"id"`
	Ts               time.Time  `json:"ts"`
	TenantID         string     `json:"tenantId"`
	Domain           string     `json:"domain"`
	EventType        string     `json:"eventType"`
	NewsTitle        string     `json:"news_title"`
	Severity         int        `json:"severity"`
	Instrument       Instrument `json:"instrument"`
	Sentiment        string     `json:"sentiment"`
	ImpactHypothesis []string   `json:"impact_hypothesis"`
	Evidence         []Evidence `json:"evidence"`
	Confidence       float64    `json:"confidence"`
	Direction        string     `json:"direction"`
	Rationale        string     `json:"rationale"`
	ImpactHint       string     `json:"impact_hint"`
	SourceEventIDs   []string   `json:"source_event_ids"`
}

// EventTypeMarketImpact is the only fused event type emitted today.
const EventTypeMarketImpact = "fusion.market_impact.inferred"

// NotificationRule decides whether an event reaches a channel for a tenant.
type NotificationRule struct {
	ID              string            `json:"id" yaml:"id"`
	TenantID        string            `json:"tenant_id" yaml:"tenant_id"`
	Channel         string            `json:"channel" yaml:"channel"`
	Name            string            `json:"name" yaml:"name"`
	Config          map[string]string `json:"config" yaml:"config"`
	MinSeverity     int               `json:"min_severity" yaml:"min_severity"`
	MinUrgency      int               `json:"min_urgency" yaml:"min_urgency"`
	Enabled         bool              `json:"enabled" yaml:"enabled"`
	CooldownMinutes int               `json:"cooldown_minutes" yaml:"cooldown_minutes"`
	TriggerCount    int               `json:"trigger_count" yaml:"-"`
	LastTriggeredAt time.Time         `json:"last_triggered_at" yaml:"-"`
}

// Task is one unit of fan-out work created by the dispatcher for a source.
type Task struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	SourceID   string    `json:"source_id"`
	Platform   string    `json:"platform"`
	Priority   string    `json:"priority"`
	RetryCount int       `json:"retry_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// DLQMessage holds a payload that exhausted its retry budget.
type DLQMessage struct {
	ID            string            `json:"id"`
	OriginalTopic string            `json:"original_topic"`
	Data          []byte            `json:"data"`
	Error         string            `json:"error"`
	Timestamp     time.Time         `json:"timestamp"`
	RetryCount    int               `json:"retry_count"`
	Metadata      map[string]string `json:"metadata"`
}

// EventQuery filters normalized events.
type EventQuery struct {
	TenantID  string    `json:"tenant_id"`
	SourceIDs []string  `json:"source_ids"`
	Platforms []string  `json:"platforms"`
	Domains   []string  `json:"domains"`
	Since     time.Time `json:"since"`
	Until     time.Time `json:"until"`
	Limit     int       `json:"limit"`
	Offset    int       `json:"offset"`
}

// Matches checks whether an event satisfies the query criteria.
func (q EventQuery) Matches(ev NormalizedEvent) bool {
	if q.TenantID != "" && ev.TenantID != q.TenantID {
		return false
	}
	if len(q.SourceIDs) > 0 && !contains(q.SourceIDs, ev.SourceID) {
		return false
	}
	if len(q.Platforms) > 0 && !contains(q.Platforms, ev.Platform) {
		return false
	}
	if len(q.Domains) > 0 && !contains(q.Domains, ev.Domain) {
		return false
	}
	if !q.Since.IsZero() && ev.CreatedAt.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && ev.CreatedAt.After(q.Until) {
		return false
	}
	return true
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DomainForPlatform maps a platform tag to its fusion domain.
func DomainForPlatform(platform string) string {
	switch platform {
	case PlatformFacebook, PlatformInstagram, PlatformThreads:
		return DomainSocial
	case PlatformMarket:
		return DomainMarket
	case PlatformRSS, PlatformNewsRSS:
		return DomainNews
	default:
		return DomainNews
	}
}
