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
	"github.com/eventfuse/eventfuse/pkg/utils"
)

const defaultGraphAPIBase = "https://graph.facebook.com/v19.0"

// MetaAdapter covers the Graph-style platforms (Facebook, Instagram,
// Threads). They share one wire shape and differ only in platform tag and
// which media field carries the post text.
type MetaAdapter struct {
	platform string
	client   *resty.Client
}

// NewFacebookAdapter creates an adapter for Facebook pages
func NewFacebookAdapter(client *resty.Client) *MetaAdapter {
	return &MetaAdapter{platform: models.PlatformFacebook, client: client}
}

// NewInstagramAdapter creates an adapter for Instagram business accounts
func NewInstagramAdapter(client *resty.Client) *MetaAdapter {
	return &MetaAdapter{platform: models.PlatformInstagram, client: client}
}

// NewThreadsAdapter creates an adapter for Threads profiles
func NewThreadsAdapter(client *resty.Client) *MetaAdapter {
	return &MetaAdapter{platform: models.PlatformThreads, client: client}
}

// Platform returns the platform tag
func (a *MetaAdapter) Platform() string {
	return a.platform
}

type metaPost struct {
	ID           string `json:"id"`
	Message      string `json:"message"`
	Caption      string `json:"caption"`
	Text         string `json:"text"`
	CreatedTime  string `json:"created_time"`
	Timestamp    string `json:"timestamp"`
	PermalinkURL string `json:"permalink_url"`
	Permalink    string `json:"permalink"`
	From         struct {
		Name string `json:"name"`
	} `json:"from"`
	LikeCount    int `json:"like_count"`
	CommentCount int `json:"comments_count"`
	ShareCount   int `json:"share_count"`
	ViewCount    int `json:"view_count"`
}

type metaResponse struct {
	Data  []metaPost `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// FetchDelta pulls posts for the configured page newer than the cursor.
// Requires pageId in config; accessToken and apiBase are optional.
func (a *MetaAdapter) FetchDelta(ctx context.Context, cursor models.Cursor, config map[string]string) ([]Item, models.Cursor, error) {
	pageID, err := requireConfig(a.platform, config, "pageId")
	if err != nil {
		return nil, cursor, err
	}

	base := config["apiBase"]
	if base == "" {
		base = defaultGraphAPIBase
	}
	url := fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), pageID, a.edge())

	since := cursorSince(a.platform, cursor)

	req := a.client.R().SetContext(ctx)
	if token := config["accessToken"]; token != "" {
		req.SetQueryParam("access_token", token)
	}
	if !since.IsZero() {
		req.SetQueryParam("since", fmt.Sprintf("%d", since.Unix()))
	}

	resp, err := req.Get(url)
	if err != nil {
		return nil, cursor, apperrors.TransportError{URL: url, Err: err}
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, cursor, apperrors.TransportError{URL: url, StatusCode: resp.StatusCode()}
	}

	var body metaResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, cursor, apperrors.ParseError{Source: url, Detail: "invalid JSON response", Err: err}
	}
	if body.Error != nil {
		return nil, cursor, apperrors.TransportError{URL: url, Err: fmt.Errorf("graph API error %d: %s", body.Error.Code, body.Error.Message)}
	}

	var fresh []Item
	for _, post := range body.Data {
		item, ok := a.convertPost(post)
		if !ok {
			logger.Warn("Skipping post with unparseable timestamp", "platform", a.platform, "post_id", post.ID)
			continue
		}
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

// Normalize converts a post to a NormalizedEvent
func (a *MetaAdapter) Normalize(item Item, source models.Source) models.NormalizedEvent {
	return normalize(item, source)
}

// edge is the per-platform collection path under the page/account node
func (a *MetaAdapter) edge() string {
	switch a.platform {
	case models.PlatformInstagram:
		return "media"
	case models.PlatformThreads:
		return "threads"
	default:
		return "posts"
	}
}

func (a *MetaAdapter) convertPost(post metaPost) (Item, bool) {
	text := post.Message
	if text == "" {
		text = post.Caption
	}
	if text == "" {
		text = post.Text
	}

	ts := post.CreatedTime
	if ts == "" {
		ts = post.Timestamp
	}
	published, ok := parseMetaTime(ts)
	if !ok {
		return Item{}, false
	}

	url := post.PermalinkURL
	if url == "" {
		url = post.Permalink
	}

	title := utils.Truncate(text, 120)
	return Item{
		ID:          post.ID,
		Title:       title,
		Summary:     text,
		URL:         url,
		Author:      post.From.Name,
		PublishedAt: published,
		Engagement: models.Engagement{
			Likes:    post.LikeCount,
			Comments: post.CommentCount,
			Shares:   post.ShareCount,
			Views:    post.ViewCount,
		},
		Raw: text,
	}, true
}

var metaTimeFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
}

func parseMetaTime(value string) (time.Time, bool) {
	for _, layout := range metaTimeFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
