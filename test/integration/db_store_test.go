//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/eventfuse/eventfuse/config"
	"github.com/eventfuse/eventfuse/internal/database"
	"github.com/eventfuse/eventfuse/internal/models"
	"github.com/eventfuse/eventfuse/internal/store"
)

// applyMigrations reads scripts/init.sql and executes it statement by statement
func applyMigrations(ctx context.Context, db *database.DB, t *testing.T) {
	t.Helper()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	// tests run from the package dir; locate repo root by walking up to find go.mod
	root := cwd
	for i := 0; i < 5; i++ {
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
			break
		}
		root = filepath.Dir(root)
	}
	path := filepath.Join(root, "scripts", "init.sql")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read init.sql: %v", err)
	}
	for _, stmt := range strings.Split(string(b), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := db.Exec(ctx, stmt); err != nil {
			t.Fatalf("apply migration %q: %v", stmt[:min(40, len(stmt))], err)
		}
	}
}

func startPostgres(ctx context.Context, t *testing.T) *database.DB {
	t.Helper()
	if !containersAvailable() {
		t.Skip("no container runtime available; skipping integration")
	}

	req := testcontainers.ContainerRequest{
		Image: "postgres:15-alpine",
		Env: map[string]string{
			"POSTGRES_DB":       "eventfuse",
			"POSTGRES_USER":     "eventfuse",
			"POSTGRES_PASSWORD": "password",
		},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start container: %v", err)
	}
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	host, err := pg.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}

	dsn := "postgres://eventfuse:password@" + host + ":" + port.Port() + "/eventfuse?sslmode=disable"

	cfg := config.DatabaseConfig{
		URL:             dsn,
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}

	db, err := database.New(ctx, cfg)
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { db.Close(context.Background()) })

	applyMigrations(ctx, db, t)
	return db
}

func TestPostgresStore_WithContainer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := startPostgres(ctx, t)
	st := store.New(db)

	events := []models.NormalizedEvent{{
		PostKey:   "news_rss:int-src:item-1",
		TenantID:  "tenant-int",
		SourceID:  "int-src",
		Platform:  models.PlatformNewsRSS,
		Domain:    models.DomainNews,
		PostID:    "item-1",
		Title:     "Integration test event",
		Summary:   "Inserted via integration test",
		URL:       "https://example.com/item/1",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Keywords:  []string{"integration"},
		Severity:  40,
		Urgency:   4,
		DedupHash: "hash-int-1",
	}}

	inserted, err := st.UpsertEvents(ctx, events)
	if err != nil {
		t.Fatalf("UpsertEvents: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("expected 1 inserted, got %d", inserted)
	}

	// Second upsert of the same post key is a no-op insert
	inserted, err = st.UpsertEvents(ctx, events)
	if err != nil {
		t.Fatalf("UpsertEvents repeat: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("expected 0 inserted on repeat, got %d", inserted)
	}

	res, err := st.QueryEvents(ctx, models.EventQuery{TenantID: "tenant-int", Limit: 10})
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(res) != 1 {
		t.Fatalf("expected 1 event, got %d", len(res))
	}

	one, err := st.GetEvent(ctx, "news_rss:int-src:item-1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if one == nil || one.PostID != "item-1" {
		t.Fatalf("unexpected event: %+v", one)
	}

	// Async enrichment lands on the stored row
	if err := st.EnrichEvent(ctx, one.PostKey, models.SentimentNegative, []models.Entity{{Name: "2330.TW", Type: "ticker"}}); err != nil {
		t.Fatalf("EnrichEvent: %v", err)
	}
	one, err = st.GetEvent(ctx, one.PostKey)
	if err != nil {
		t.Fatalf("GetEvent after enrich: %v", err)
	}
	if one.Sentiment != models.SentimentNegative || len(one.Entities) != 1 {
		t.Fatalf("enrichment not applied: %+v", one)
	}
}

func TestPostgresStore_CursorAndRules(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := startPostgres(ctx, t)
	st := store.New(db)

	src := models.Source{
		ID:       "int-src",
		TenantID: "tenant-int",
		Platform: models.PlatformNewsRSS,
		Mode:     models.ModePoll,
		Enabled:  true,
		Config:   map[string]string{"feedUrl": "https://example.com/rss"},
	}
	if err := st.PutSource(ctx, src); err != nil {
		t.Fatalf("PutSource: %v", err)
	}

	cursor := models.Cursor{Type: models.CursorSinceTs, Value: "2026-01-15T10:00:00Z"}
	if err := st.AdvanceCursor(ctx, "int-src", cursor); err != nil {
		t.Fatalf("AdvanceCursor: %v", err)
	}

	// A stale cursor write is dropped
	stale := models.Cursor{Type: models.CursorSinceTs, Value: "2026-01-15T09:00:00Z"}
	if err := st.AdvanceCursor(ctx, "int-src", stale); err != nil {
		t.Fatalf("AdvanceCursor stale: %v", err)
	}
	got, err := st.GetSource(ctx, "int-src")
	if err != nil || got == nil {
		t.Fatalf("GetSource: %v %v", got, err)
	}
	if got.Cursor.Value != "2026-01-15T10:00:00Z" {
		t.Fatalf("expected cursor preserved, got %q", got.Cursor.Value)
	}

	rule := models.NotificationRule{
		ID:          "int-rule",
		TenantID:    "tenant-int",
		Channel:     "webhook",
		MinSeverity: 50,
		Enabled:     true,
		Config:      map[string]string{"url": "https://example.com/hook"},
	}
	if err := st.PutRule(ctx, rule); err != nil {
		t.Fatalf("PutRule: %v", err)
	}

	firedAt := time.Now().UTC().Truncate(time.Second)
	if err := st.MarkRuleTriggered(ctx, "int-rule", firedAt); err != nil {
		t.Fatalf("MarkRuleTriggered: %v", err)
	}

	rules, err := st.ListRules(ctx, "tenant-int")
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(rules) != 1 || rules[0].TriggerCount != 1 {
		t.Fatalf("expected trigger count 1, got %+v", rules)
	}

	fused := models.FusedEvent{
		ID:        "evt_int_1",
		Ts:        time.Now().UTC().Truncate(time.Second),
		TenantID:  "tenant-int",
		Domain:    models.DomainFusion,
		EventType: models.EventTypeMarketImpact,
		Severity:  80,
	}
	if err := st.InsertFusedEvent(ctx, fused); err != nil {
		t.Fatalf("InsertFusedEvent: %v", err)
	}
	// Inserting the same fused event twice is a no-op
	if err := st.InsertFusedEvent(ctx, fused); err != nil {
		t.Fatalf("InsertFusedEvent repeat: %v", err)
	}

	fusedEvents, err := st.QueryFusedEvents(ctx, "tenant-int", 10)
	if err != nil {
		t.Fatalf("QueryFusedEvents: %v", err)
	}
	if len(fusedEvents) != 1 || fusedEvents[0].ID != "evt_int_1" {
		t.Fatalf("expected one fused event, got %+v", fusedEvents)
	}
	other, err := st.QueryFusedEvents(ctx, "tenant-other", 10)
	if err != nil {
		t.Fatalf("QueryFusedEvents other tenant: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no fused events for other tenant, got %d", len(other))
	}
}
