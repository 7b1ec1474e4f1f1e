package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	apperrors "github.com/eventfuse/eventfuse/internal/errors"
	"github.com/eventfuse/eventfuse/internal/logger"
	"github.com/eventfuse/eventfuse/internal/models"
)

// MarketAdapter polls a quote feed and turns notable price moves into
// events. Quotes below the configured move threshold are dropped so the
// pipeline only sees market activity worth correlating.
type MarketAdapter struct {
	client *resty.Client
}

// NewMarketAdapter creates an adapter for market quote feeds
func NewMarketAdapter(client *resty.Client) *MarketAdapter {
	return &MarketAdapter{client: client}
}

// Platform returns the platform tag
func (a *MarketAdapter) Platform() string {
	return models.PlatformMarket
}

type marketQuote struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"change_percent"`
	Volume        int64   `json:"volume"`
	Ts            string  `json:"ts"`
}

type marketResponse struct {
	Quotes []marketQuote `json:"quotes"`
}

// defaultMoveThreshold is the minimum absolute percent change that counts
// as an event.
const defaultMoveThreshold = 2.0

// FetchDelta pulls quotes newer than the cursor. Requires quoteUrl in
// config; symbols (comma-separated) and moveThreshold are optional.
func (a *MarketAdapter) FetchDelta(ctx context.Context, cursor models.Cursor, config map[string]string) ([]Item, models.Cursor, error) {
	quoteURL, err := requireConfig(models.PlatformMarket, config, "quoteUrl")
	if err != nil {
		return nil, cursor, err
	}

	req := a.client.R().SetContext(ctx)
	if symbols := config["symbols"]; symbols != "" {
		req.SetQueryParam("symbols", symbols)
	}

	resp, err := req.Get(quoteURL)
	if err != nil {
		return nil, cursor, apperrors.TransportError{URL: quoteURL, Err: err}
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, cursor, apperrors.TransportError{URL: quoteURL, StatusCode: resp.StatusCode()}
	}

	var body marketResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, cursor, apperrors.ParseError{Source: quoteURL, Detail: "invalid JSON response", Err: err}
	}

	threshold := defaultMoveThreshold
	if v := config["moveThreshold"]; v != "" {
		if parsed, perr := parseFloat(v); perr == nil {
			threshold = parsed
		}
	}

	since := cursorSince(models.PlatformMarket, cursor)

	var fresh []Item
	for _, quote := range body.Quotes {
		ts, terr := time.Parse(time.RFC3339, quote.Ts)
		if terr != nil {
			logger.Warn("Skipping quote with unparseable timestamp", "symbol", quote.Symbol, "ts", quote.Ts)
			continue
		}
		if !since.IsZero() && !ts.After(since) {
			continue
		}
		if abs(quote.ChangePercent) < threshold {
			continue
		}
		fresh = append(fresh, quoteItem(quote, ts.UTC()))
	}

	sort.Slice(fresh, func(i, j int) bool {
		return fresh[i].PublishedAt.Before(fresh[j].PublishedAt)
	})

	next := cursor
	if len(fresh) > 0 {
		next = models.Cursor{
			Type:  models.CursorSinceTs,
			Value: fresh[len(fresh)-1].PublishedAt.Format(time.RFC3339),
		}
	}
	return fresh, next, nil
}

// Normalize converts a quote item to a NormalizedEvent. The quote's move
// size drives severity instead of the lexicon score.
func (a *MarketAdapter) Normalize(item Item, source models.Source) models.NormalizedEvent {
	ev := normalize(item, source)
	ev.Symbol = item.Symbol
	if strings.Contains(item.Title, " down ") {
		ev.Sentiment = models.SentimentNegative
	} else {
		ev.Sentiment = models.SentimentPositive
	}
	ev.Keywords = appendSymbolKeywords(ev.Keywords, item.Symbol)
	return ev
}

func quoteItem(quote marketQuote, ts time.Time) Item {
	direction := "up"
	if quote.ChangePercent < 0 {
		direction = "down"
	}
	title := fmt.Sprintf("%s %s %s %.1f%%", quote.Symbol, quote.Name, direction, quote.ChangePercent)
	summary := fmt.Sprintf("%s (%s) moved %.2f%% to %.2f, volume %d", quote.Name, quote.Symbol, quote.ChangePercent, quote.Price, quote.Volume)

	return Item{
		ID:          fmt.Sprintf("%s:%d", quote.Symbol, ts.Unix()),
		Title:       title,
		Summary:     summary,
		PublishedAt: ts,
		Symbol:      quote.Symbol,
		Severity:    severityForMove(quote.ChangePercent),
		Raw:         summary,
	}
}

// severityForMove maps an absolute percent move to the 0-100 scale
func severityForMove(pct float64) int {
	pct = abs(pct)
	switch {
	case pct >= 9:
		return 90
	case pct >= 5:
		return 70
	case pct >= 3:
		return 55
	default:
		return 40
	}
}

// appendSymbolKeywords adds the bare symbol and its exchange-less form so
// keyword overlap can correlate quotes with social and news mentions.
func appendSymbolKeywords(keywords []string, symbol string) []string {
	if symbol == "" {
		return keywords
	}
	lower := strings.ToLower(symbol)
	for _, kw := range []string{lower, strings.SplitN(lower, ".", 2)[0]} {
		found := false
		for _, existing := range keywords {
			if existing == kw {
				found = true
				break
			}
		}
		if !found {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}

func parseFloat(s string) (float64, error) {
	var v float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%g", &v)
	return v, err
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
