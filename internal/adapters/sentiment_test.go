package adapters

import (
	"testing"

	"github.com/eventfuse/eventfuse/internal/models"
)

func TestLexiconSentiment(t *testing.T) {
	tests := []struct {
		text     string
		expected string
	}{
		{"Market crash fears grow", models.SentimentNegative},
		{"台積電 股價暴跌", models.SentimentNegative},
		{"Record profit growth reported", models.SentimentPositive},
		{"台股飆漲創新高", models.SentimentPositive},
		{"Quarterly report released today", models.SentimentNeutral},
		{"", models.SentimentNeutral},
	}

	for _, tt := range tests {
		if got := LexiconSentiment(tt.text); got != tt.expected {
			t.Errorf("LexiconSentiment(%q) = %s, expected %s", tt.text, got, tt.expected)
		}
	}
}

func TestScoreSeverity(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		engagement models.Engagement
		expected   int
	}{
		{"baseline", "regular news item", models.Engagement{}, 30},
		{"high keyword", "trading halt announced", models.Engagement{}, 70},
		{"medium keyword", "recall issued for chips", models.Engagement{}, 50},
		{"viral high keyword", "崩盤警報", models.Engagement{Likes: 5000, Shares: 2000}, 90},
		{"viral emergency", "emergency crash", models.Engagement{Likes: 100000}, 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScoreSeverity(tt.text, tt.engagement); got != tt.expected {
				t.Errorf("Expected severity %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestDetectEntities(t *testing.T) {
	entities := DetectEntities("台積電 and Nvidia both rallied today")
	if len(entities) != 2 {
		t.Fatalf("Expected 2 entities, got %d", len(entities))
	}
	if entities[0].Symbol != "2330.TW" {
		t.Errorf("Expected 2330.TW first (lexicon order), got %s", entities[0].Symbol)
	}
	if entities[1].Symbol != "NVDA" {
		t.Errorf("Expected NVDA second, got %s", entities[1].Symbol)
	}

	if got := DetectEntities("nothing financial here"); len(got) != 0 {
		t.Errorf("Expected no entities, got %v", got)
	}
}

func TestExtractKeywords(t *testing.T) {
	kws := ExtractKeywords("#台股 盤中 $TSMC 暴跌 #2330", 10)

	want := map[string]bool{"台股": false, "tsmc": false, "2330": false, "暴跌": false}
	for _, kw := range kws {
		if _, ok := want[kw]; ok {
			want[kw] = true
		}
	}
	for kw, found := range want {
		if !found {
			t.Errorf("Expected keyword %q in %v", kw, kws)
		}
	}
}

func TestExtractKeywordsCap(t *testing.T) {
	text := "#a #b #c #d #e #f #g #h #i #j #k #l"
	kws := ExtractKeywords(text, 10)
	if len(kws) != 10 {
		t.Errorf("Expected keywords capped at 10, got %d", len(kws))
	}
}

func TestRegistry(t *testing.T) {
	client := newTestClient()
	registry := NewRegistry(
		NewRSSAdapter(client),
		NewNewsRSSAdapter(client),
		NewFacebookAdapter(client),
		NewMarketAdapter(client),
	)

	if len(registry.Platforms()) != 4 {
		t.Errorf("Expected 4 platforms, got %d", len(registry.Platforms()))
	}

	a, ok := registry.Get(models.PlatformMarket)
	if !ok {
		t.Fatal("Expected market adapter registered")
	}
	if a.Platform() != models.PlatformMarket {
		t.Errorf("Expected market platform, got %s", a.Platform())
	}

	if _, ok := registry.Get("unknown"); ok {
		t.Error("Expected lookup miss for unknown platform")
	}
}
