package adapters

import (
	"context"
	"encoding/xml"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"

	apperrors "github.com/eventfuse/eventfuse/internal/errors"
	"github.com/eventfuse/eventfuse/internal/logger"
	"github.com/eventfuse/eventfuse/internal/models"
	"github.com/eventfuse/eventfuse/pkg/utils"
)

// RSSAdapter fetches RSS 2.0 and Atom feeds. It serves both the generic rss
// platform and news_rss; the two differ only in platform tag.
type RSSAdapter struct {
	platform string
	client   *resty.Client
}

// NewRSSAdapter creates an adapter for the rss platform
func NewRSSAdapter(client *resty.Client) *RSSAdapter {
	return &RSSAdapter{platform: models.PlatformRSS, client: client}
}

// NewNewsRSSAdapter creates an adapter for the news_rss platform
func NewNewsRSSAdapter(client *resty.Client) *RSSAdapter {
	return &RSSAdapter{platform: models.PlatformNewsRSS, client: client}
}

// Platform returns the platform tag
func (a *RSSAdapter) Platform() string {
	return a.platform
}

// FetchDelta fetches the feed and returns items strictly newer than the
// cursor, in ascending publish order.
func (a *RSSAdapter) FetchDelta(ctx context.Context, cursor models.Cursor, config map[string]string) ([]Item, models.Cursor, error) {
	feedURL, err := requireConfig(a.platform, config, "feedUrl")
	if err != nil {
		return nil, cursor, err
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml").
		Get(feedURL)
	if err != nil {
		return nil, cursor, apperrors.TransportError{URL: feedURL, Err: err}
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, cursor, apperrors.TransportError{URL: feedURL, StatusCode: resp.StatusCode()}
	}

	items, err := parseFeed(feedURL, resp.Body())
	if err != nil {
		return nil, cursor, err
	}

	since := cursorSince(a.platform, cursor)

	var fresh []Item
	for _, item := range items {
		if !since.IsZero() && !item.PublishedAt.After(since) {
			continue
		}
		fresh = append(fresh, item)
	}

	sort.Slice(fresh, func(i, j int) bool {
		return fresh[i].PublishedAt.Before(fresh[j].PublishedAt)
	})

	next := cursor
	if len(fresh) > 0 {
		next = models.Cursor{
			Type:  models.CursorSinceTs,
			Value: fresh[len(fresh)-1].PublishedAt.UTC().Format(time.RFC3339),
		}
	}
	return fresh, next, nil
}

// Normalize converts a feed item to a NormalizedEvent
func (a *RSSAdapter) Normalize(item Item, source models.Source) models.NormalizedEvent {
	return normalize(item, source)
}

// rssDocument is the RSS 2.0 feed structure
type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	Link        string `xml:"link"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
	Author      string `xml:"author"`
}

// atomDocument is the Atom feed structure
type atomDocument struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
	Links     []atomLink `xml:"link"`
	Updated   string     `xml:"updated"`
	Published string     `xml:"published"`
	ID        string     `xml:"id"`
	Author    struct {
		Name string `xml:"name"`
	} `xml:"author"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

// parseFeed handles both RSS 2.0 and Atom payloads. Items with unparseable
// dates are skipped individually rather than failing the batch.
func parseFeed(feedURL string, body []byte) ([]Item, error) {
	var rss rssDocument
	if err := xml.Unmarshal(body, &rss); err == nil && len(rss.Channel.Items) > 0 {
		return convertRSSItems(feedURL, rss.Channel.Items), nil
	}

	var atom atomDocument
	if err := xml.Unmarshal(body, &atom); err == nil && len(atom.Entries) > 0 {
		return convertAtomEntries(feedURL, atom.Entries), nil
	}

	// An empty but well-formed feed is not an error
	var probe struct {
		XMLName xml.Name
	}
	if err := xml.Unmarshal(body, &probe); err != nil {
		return nil, apperrors.ParseError{Source: feedURL, Detail: "not valid XML", Err: err}
	}
	return nil, nil
}

func convertRSSItems(feedURL string, items []rssItem) []Item {
	var out []Item
	for _, it := range items {
		published, ok := parseFeedTime(it.PubDate)
		if !ok {
			logger.Warn("Skipping feed item with unparseable date", "feed", feedURL, "title", it.Title)
			continue
		}

		id := it.GUID
		if id == "" {
			id = it.Link
		}
		if id == "" {
			id = utils.HashString(it.Title + it.PubDate)
		}

		out = append(out, Item{
			ID:          id,
			Title:       utils.StripHTML(it.Title),
			Summary:     utils.StripHTML(it.Description),
			URL:         it.Link,
			Author:      it.Author,
			PublishedAt: published,
			Raw:         it.Description,
		})
	}
	return out
}

func convertAtomEntries(feedURL string, entries []atomEntry) []Item {
	var out []Item
	for _, e := range entries {
		ts := e.Published
		if ts == "" {
			ts = e.Updated
		}
		published, ok := parseFeedTime(ts)
		if !ok {
			logger.Warn("Skipping feed entry with unparseable date", "feed", feedURL, "title", e.Title)
			continue
		}

		summary := e.Summary
		if summary == "" {
			summary = e.Content
		}

		link := ""
		for _, l := range e.Links {
			if l.Rel == "" || l.Rel == "alternate" {
				link = l.Href
				break
			}
		}

		id := e.ID
		if id == "" {
			id = link
		}
		if id == "" {
			id = utils.HashString(e.Title + ts)
		}

		out = append(out, Item{
			ID:          id,
			Title:       utils.StripHTML(e.Title),
			Summary:     utils.StripHTML(summary),
			URL:         link,
			Author:      e.Author.Name,
			PublishedAt: published,
			Raw:         summary,
		})
	}
	return out
}

var feedTimeFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"Mon, 2 Jan 2006 15:04:05 -0700",
}

func parseFeedTime(value string) (time.Time, bool) {
	for _, layout := range feedTimeFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
