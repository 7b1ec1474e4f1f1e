package classifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/eventfuse/eventfuse/internal/models"
)

func newTestClient() *resty.Client {
	return resty.New().SetTimeout(5 * time.Second)
}

func TestClassifyRemote(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sentiment": "negative", "confidence": 0.91, "entities": [{"name": "台積電", "type": "stock"}], "topics": ["semiconductors"]}`))
	}))
	defer server.Close()

	c := New(server.URL, "test-key", newTestClient())
	enrichment := c.Classify(context.Background(), "台積電 股價暴跌")

	if gotAuth != "Bearer test-key" {
		t.Errorf("Expected bearer auth header, got %q", gotAuth)
	}
	if enrichment.Sentiment != models.SentimentNegative {
		t.Errorf("Expected negative sentiment, got %s", enrichment.Sentiment)
	}
	if enrichment.Confidence != 0.91 {
		t.Errorf("Expected confidence 0.91, got %f", enrichment.Confidence)
	}
	if len(enrichment.Entities) != 1 || enrichment.Entities[0].Name != "台積電" {
		t.Errorf("Unexpected entities: %v", enrichment.Entities)
	}
}

func TestClassifyFallsBackOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := New(server.URL, "", newTestClient())
	enrichment := c.Classify(context.Background(), "台積電 股價暴跌")

	// Lexicon fallback still produces a usable verdict
	if enrichment.Sentiment != models.SentimentNegative {
		t.Errorf("Expected lexicon negative sentiment, got %s", enrichment.Sentiment)
	}
	if enrichment.Confidence != 0.5 {
		t.Errorf("Expected fallback confidence 0.5, got %f", enrichment.Confidence)
	}
	if len(enrichment.Entities) == 0 {
		t.Error("Expected lexicon entities in fallback")
	}
}

func TestClassifyLexiconOnlyMode(t *testing.T) {
	c := New("", "", newTestClient())
	enrichment := c.Classify(context.Background(), "record profit growth for Nvidia")

	if enrichment.Sentiment != models.SentimentPositive {
		t.Errorf("Expected positive sentiment, got %s", enrichment.Sentiment)
	}
	if len(enrichment.Entities) != 1 || enrichment.Entities[0].Type != "stock" {
		t.Errorf("Expected one stock entity, got %v", enrichment.Entities)
	}
}
