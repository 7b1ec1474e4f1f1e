package adapters

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/eventfuse/eventfuse/internal/errors"
	"github.com/eventfuse/eventfuse/internal/models"
)

const metaFixture = `{
  "data": [
    {
      "id": "p2",
      "message": "台積電 法說會重點整理 #2330",
      "created_time": "2026-01-12T09:00:00+0000",
      "permalink_url": "https://facebook.com/p2",
      "from": {"name": "finance-page"},
      "like_count": 1200,
      "comments_count": 300,
      "share_count": 150
    },
    {
      "id": "p1",
      "message": "morning update",
      "created_time": "2026-01-12T07:00:00+0000",
      "permalink_url": "https://facebook.com/p1",
      "from": {"name": "finance-page"}
    }
  ]
}`

func TestMetaAdapterFetchDelta(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(metaFixture))
	}))
	defer server.Close()

	adapter := NewFacebookAdapter(newTestClient())
	config := map[string]string{"pageId": "finance-page", "apiBase": server.URL}

	items, next, err := adapter.FetchDelta(context.Background(), models.Cursor{}, config)
	if err != nil {
		t.Fatalf("FetchDelta failed: %v", err)
	}
	if gotPath != "/finance-page/posts" {
		t.Errorf("Expected posts edge for facebook, got %s", gotPath)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 posts, got %d", len(items))
	}

	// Ascending order regardless of upstream order
	if items[0].ID != "p1" || items[1].ID != "p2" {
		t.Errorf("Expected ascending order p1,p2, got %s,%s", items[0].ID, items[1].ID)
	}
	if items[1].Engagement.Likes != 1200 {
		t.Errorf("Expected 1200 likes, got %d", items[1].Engagement.Likes)
	}
	if next.Value != "2026-01-12T09:00:00Z" {
		t.Errorf("Expected cursor at newest post, got %s", next.Value)
	}
}

func TestMetaAdapterMissingPageID(t *testing.T) {
	for _, newAdapter := range []func() *MetaAdapter{
		func() *MetaAdapter { return NewFacebookAdapter(newTestClient()) },
		func() *MetaAdapter { return NewInstagramAdapter(newTestClient()) },
		func() *MetaAdapter { return NewThreadsAdapter(newTestClient()) },
	} {
		adapter := newAdapter()
		_, _, err := adapter.FetchDelta(context.Background(), models.Cursor{}, map[string]string{})
		if err == nil {
			t.Fatalf("Expected error for missing pageId on %s", adapter.Platform())
		}
		var cfgErr apperrors.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("Expected ConfigurationError, got %T", err)
		}
		if cfgErr.Platform != adapter.Platform() {
			t.Errorf("Expected platform %s in error, got %s", adapter.Platform(), cfgErr.Platform)
		}
	}
}

func TestMetaAdapterEdges(t *testing.T) {
	tests := []struct {
		adapter *MetaAdapter
		edge    string
	}{
		{NewFacebookAdapter(newTestClient()), "posts"},
		{NewInstagramAdapter(newTestClient()), "media"},
		{NewThreadsAdapter(newTestClient()), "threads"},
	}

	for _, tt := range tests {
		if got := tt.adapter.edge(); got != tt.edge {
			t.Errorf("Platform %s: expected edge %s, got %s", tt.adapter.Platform(), tt.edge, got)
		}
	}
}

func TestMetaAdapterGraphError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [], "error": {"message": "invalid token", "code": 190}}`))
	}))
	defer server.Close()

	adapter := NewFacebookAdapter(newTestClient())
	config := map[string]string{"pageId": "pg", "apiBase": server.URL}

	_, _, err := adapter.FetchDelta(context.Background(), models.Cursor{}, config)
	if err == nil {
		t.Fatal("Expected error for graph API error payload")
	}
	var transportErr apperrors.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("Expected TransportError, got %T", err)
	}
}

func TestMetaAdapterNormalizeSocialDomain(t *testing.T) {
	adapter := NewInstagramAdapter(newTestClient())
	source := models.Source{ID: "ig-1", TenantID: "t1", Platform: models.PlatformInstagram}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(metaFixture))
	}))
	defer server.Close()

	items, _, err := adapter.FetchDelta(context.Background(), models.Cursor{}, map[string]string{
		"pageId": "ig-1", "apiBase": server.URL,
	})
	if err != nil {
		t.Fatalf("FetchDelta failed: %v", err)
	}

	ev := adapter.Normalize(items[1], source)
	if ev.Domain != models.DomainSocial {
		t.Errorf("Expected social domain, got %s", ev.Domain)
	}
	if ev.Symbol != "2330.TW" {
		t.Errorf("Expected lexicon symbol from post text, got %s", ev.Symbol)
	}

	hasHashtag := false
	for _, kw := range ev.Keywords {
		if kw == "2330" {
			hasHashtag = true
		}
	}
	if !hasHashtag {
		t.Errorf("Expected hashtag 2330 in keywords, got %v", ev.Keywords)
	}
}
