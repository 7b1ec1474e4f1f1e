package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/eventfuse/eventfuse/internal/models"
)

// Querier is the read side of the database dependency.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db Database
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(db Database) *PostgresStore {
	return &PostgresStore{db: db}
}

// UpsertEvents inserts events, treating a post_key conflict as an update of
// the enrichment fields only. Returns the number of rows that were new.
func (s *PostgresStore) UpsertEvents(ctx context.Context, events []models.NormalizedEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO events (
			post_key, tenant_id, source_id, platform, domain, post_id,
			title, summary, created_at, url, author, engagement, keywords,
			symbol, sentiment, urgency, severity, entities, dedup_hash,
			raw_ref, inserted_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, NOW()
		)
		ON CONFLICT (post_key) DO UPDATE SET
			sentiment = COALESCE(NULLIF(EXCLUDED.sentiment, ''), events.sentiment),
			entities = CASE WHEN EXCLUDED.entities != '[]'::jsonb THEN EXCLUDED.entities ELSE events.entities END
	`

	inserted := 0
	for _, ev := range events {
		existing, err := s.GetEvent(ctx, ev.PostKey)
		if err != nil {
			return inserted, err
		}

		engagement, _ := json.Marshal(ev.Engagement)
		keywords, _ := json.Marshal(ev.Keywords)
		entities, _ := json.Marshal(ev.Entities)
		if ev.Entities == nil {
			entities = []byte("[]")
		}

		err = s.db.Exec(ctx, query,
			ev.PostKey, ev.TenantID, ev.SourceID, ev.Platform, ev.Domain,
			ev.PostID, ev.Title, ev.Summary, ev.CreatedAt, ev.URL, ev.Author,
			engagement, keywords, ev.Symbol, ev.Sentiment, ev.Urgency,
			ev.Severity, entities, ev.DedupHash, ev.RawRef,
		)
		if err != nil {
			return inserted, fmt.Errorf("upsert event %s: %w", ev.PostKey, err)
		}
		if existing == nil {
			inserted++
		}
	}

	return inserted, nil
}

const eventColumns = `
	post_key, tenant_id, source_id, platform, domain, post_id, title,
	summary, created_at, url, author, engagement, keywords, symbol,
	sentiment, urgency, severity, entities, dedup_hash, raw_ref, inserted_at
`

// QueryEvents retrieves events matching the query, newest first
func (s *PostgresStore) QueryEvents(ctx context.Context, q models.EventQuery) ([]models.NormalizedEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE 1=1`

	var args []interface{}
	argIndex := 1

	if q.TenantID != "" {
		query += fmt.Sprintf(" AND tenant_id = $%d", argIndex)
		args = append(args, q.TenantID)
		argIndex++
	}
	if len(q.SourceIDs) > 0 {
		query += fmt.Sprintf(" AND source_id = ANY($%d)", argIndex)
		args = append(args, q.SourceIDs)
		argIndex++
	}
	if len(q.Platforms) > 0 {
		query += fmt.Sprintf(" AND platform = ANY($%d)", argIndex)
		args = append(args, q.Platforms)
		argIndex++
	}
	if len(q.Domains) > 0 {
		query += fmt.Sprintf(" AND domain = ANY($%d)", argIndex)
		args = append(args, q.Domains)
		argIndex++
	}
	if !q.Since.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIndex)
		args = append(args, q.Since)
		argIndex++
	}
	if !q.Until.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIndex)
		args = append(args, q.Until)
		argIndex++
	}

	query += " ORDER BY created_at DESC"

	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, q.Limit)
		argIndex++
	}
	if q.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, q.Offset)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []models.NormalizedEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	return events, nil
}

func scanEvent(row pgx.Row) (models.NormalizedEvent, error) {
	var ev models.NormalizedEvent
	var engagement, keywords, entities []byte

	err := row.Scan(
		&ev.PostKey, &ev.TenantID, &ev.SourceID, &ev.Platform, &ev.Domain,
		&ev.PostID, &ev.Title, &ev.Summary, &ev.CreatedAt, &ev.URL,
		&ev.Author, &engagement, &keywords, &ev.Symbol, &ev.Sentiment,
		&ev.Urgency, &ev.Severity, &entities, &ev.DedupHash, &ev.RawRef,
		&ev.InsertedAt,
	)
	if err != nil {
		return ev, fmt.Errorf("scan event: %w", err)
	}

	_ = json.Unmarshal(engagement, &ev.Engagement)
	_ = json.Unmarshal(keywords, &ev.Keywords)
	_ = json.Unmarshal(entities, &ev.Entities)
	return ev, nil
}

// GetEvent retrieves a single event by post key
func (s *PostgresStore) GetEvent(ctx context.Context, postKey string) (*models.NormalizedEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE post_key = $1`

	row := s.db.QueryRow(ctx, query, postKey)
	if row == nil {
		return nil, fmt.Errorf("db not configured")
	}

	ev, err := scanEvent(row)
	if err != nil {
		if pgxNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

func pgxNoRows(err error) bool {
	for e := err; e != nil; {
		if e == pgx.ErrNoRows {
			return true
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}

// EnrichEvent fills the async enrichment fields of a stored event
func (s *PostgresStore) EnrichEvent(ctx context.Context, postKey, sentiment string, entities []models.Entity) error {
	entitiesJSON, _ := json.Marshal(entities)
	query := `
		UPDATE events SET
			sentiment = COALESCE(NULLIF($2, ''), sentiment),
			entities = CASE WHEN $3::jsonb != '[]'::jsonb THEN $3::jsonb ELSE entities END
		WHERE post_key = $1
	`
	if err := s.db.Exec(ctx, query, postKey, sentiment, entitiesJSON); err != nil {
		return fmt.Errorf("enrich event %s: %w", postKey, err)
	}
	return nil
}

// InsertFusedEvent stores a fused event. Fused events are immutable, so
// conflicts on id are ignored.
func (s *PostgresStore) InsertFusedEvent(ctx context.Context, ev models.FusedEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal fused event: %w", err)
	}

	query := `
		INSERT INTO fused_events (id, ts, tenant_id, severity, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	if err := s.db.Exec(ctx, query, ev.ID, ev.Ts, ev.TenantID, ev.Severity, payload); err != nil {
		return fmt.Errorf("insert fused event %s: %w", ev.ID, err)
	}
	return nil
}

// QueryFusedEvents returns fused events for a tenant, newest first
func (s *PostgresStore) QueryFusedEvents(ctx context.Context, tenantID string, limit int) ([]models.FusedEvent, error) {
	query := `SELECT payload FROM fused_events WHERE 1=1`
	var args []interface{}
	argIndex := 1

	if tenantID != "" {
		query += fmt.Sprintf(" AND tenant_id = $%d", argIndex)
		args = append(args, tenantID)
		argIndex++
	}
	query += " ORDER BY ts DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query fused events: %w", err)
	}
	defer rows.Close()

	var result []models.FusedEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan fused event: %w", err)
		}
		var ev models.FusedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal fused event: %w", err)
		}
		result = append(result, ev)
	}
	return result, nil
}

const sourceColumns = `
	id, tenant_id, platform, mode, enabled, config, cursor_type,
	cursor_value, created_at, updated_at
`

// ListEnabledSources returns enabled sources across all tenants in one
// collection-wide query
func (s *PostgresStore) ListEnabledSources(ctx context.Context) ([]models.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE enabled = true ORDER BY id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func scanSource(row pgx.Row) (models.Source, error) {
	var src models.Source
	var configJSON []byte

	err := row.Scan(
		&src.ID, &src.TenantID, &src.Platform, &src.Mode, &src.Enabled,
		&configJSON, &src.Cursor.Type, &src.Cursor.Value,
		&src.CreatedAt, &src.UpdatedAt,
	)
	if err != nil {
		return src, fmt.Errorf("scan source: %w", err)
	}
	_ = json.Unmarshal(configJSON, &src.Config)
	return src, nil
}

// GetSource retrieves a source by ID
func (s *PostgresStore) GetSource(ctx context.Context, id string) (*models.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE id = $1`

	row := s.db.QueryRow(ctx, query, id)
	if row == nil {
		return nil, fmt.Errorf("db not configured")
	}

	src, err := scanSource(row)
	if err != nil {
		if pgxNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &src, nil
}

// PutSource creates or replaces a source
func (s *PostgresStore) PutSource(ctx context.Context, src models.Source) error {
	configJSON, _ := json.Marshal(src.Config)

	query := `
		INSERT INTO sources (
			id, tenant_id, platform, mode, enabled, config,
			cursor_type, cursor_value, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			platform = EXCLUDED.platform,
			mode = EXCLUDED.mode,
			enabled = EXCLUDED.enabled,
			config = EXCLUDED.config,
			updated_at = NOW()
	`
	if err := s.db.Exec(ctx, query,
		src.ID, src.TenantID, src.Platform, src.Mode, src.Enabled,
		configJSON, src.Cursor.Type, src.Cursor.Value,
	); err != nil {
		return fmt.Errorf("put source %s: %w", src.ID, err)
	}
	return nil
}

// DeleteSource removes a source
func (s *PostgresStore) DeleteSource(ctx context.Context, id string) error {
	if err := s.db.Exec(ctx, `DELETE FROM sources WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete source %s: %w", id, err)
	}
	return nil
}

// AdvanceCursor moves a source's cursor forward, last-writer-wins per
// source. The WHERE clause drops stale writes.
func (s *PostgresStore) AdvanceCursor(ctx context.Context, sourceID string, cursor models.Cursor) error {
	query := `
		UPDATE sources SET
			cursor_type = $2,
			cursor_value = $3,
			updated_at = NOW()
		WHERE id = $1 AND (cursor_value = '' OR cursor_value < $3)
	`
	if err := s.db.Exec(ctx, query, sourceID, cursor.Type, cursor.Value); err != nil {
		return fmt.Errorf("advance cursor %s: %w", sourceID, err)
	}
	return nil
}

const ruleColumns = `
	id, tenant_id, channel, name, config, min_severity, min_urgency,
	enabled, cooldown_minutes, trigger_count, last_triggered_at
`

// ListRules returns rules for a tenant
func (s *PostgresStore) ListRules(ctx context.Context, tenantID string) ([]models.NotificationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM notification_rules WHERE 1=1`
	var args []interface{}
	if tenantID != "" {
		query += " AND tenant_id = $1"
		args = append(args, tenantID)
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []models.NotificationRule
	for rows.Next() {
		var rule models.NotificationRule
		var configJSON []byte
		err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Channel, &rule.Name, &configJSON,
			&rule.MinSeverity, &rule.MinUrgency, &rule.Enabled,
			&rule.CooldownMinutes, &rule.TriggerCount, &rule.LastTriggeredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		_ = json.Unmarshal(configJSON, &rule.Config)
		rules = append(rules, rule)
	}
	return rules, nil
}

// PutRule creates or replaces a notification rule
func (s *PostgresStore) PutRule(ctx context.Context, rule models.NotificationRule) error {
	configJSON, _ := json.Marshal(rule.Config)

	query := `
		INSERT INTO notification_rules (
			id, tenant_id, channel, name, config, min_severity, min_urgency,
			enabled, cooldown_minutes, trigger_count, last_triggered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, to_timestamp(0))
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			channel = EXCLUDED.channel,
			name = EXCLUDED.name,
			config = EXCLUDED.config,
			min_severity = EXCLUDED.min_severity,
			min_urgency = EXCLUDED.min_urgency,
			enabled = EXCLUDED.enabled,
			cooldown_minutes = EXCLUDED.cooldown_minutes
	`
	if err := s.db.Exec(ctx, query,
		rule.ID, rule.TenantID, rule.Channel, rule.Name, configJSON,
		rule.MinSeverity, rule.MinUrgency, rule.Enabled, rule.CooldownMinutes,
	); err != nil {
		return fmt.Errorf("put rule %s: %w", rule.ID, err)
	}
	return nil
}

// DeleteRule removes a notification rule
func (s *PostgresStore) DeleteRule(ctx context.Context, id string) error {
	if err := s.db.Exec(ctx, `DELETE FROM notification_rules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	return nil
}

// MarkRuleTriggered records a fire with an atomic counter increment
func (s *PostgresStore) MarkRuleTriggered(ctx context.Context, ruleID string, at time.Time) error {
	query := `
		UPDATE notification_rules SET
			trigger_count = trigger_count + 1,
			last_triggered_at = $2
		WHERE id = $1
	`
	if err := s.db.Exec(ctx, query, ruleID, at); err != nil {
		return fmt.Errorf("mark rule triggered %s: %w", ruleID, err)
	}
	return nil
}

// Health checks the database connection
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.Health(ctx)
}
