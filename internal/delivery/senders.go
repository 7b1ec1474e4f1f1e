package delivery

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	apperrors "github.com/eventfuse/eventfuse/internal/errors"
	"github.com/eventfuse/eventfuse/internal/secrets"
)

// Channel names used in notification rules.
const (
	ChannelTelegram = "telegram"
	ChannelLine     = "line"
	ChannelSlack    = "slack"
	ChannelWebhook  = "webhook"
	ChannelEmail    = "email"
)

// Sender delivers one message to one channel. Implementations resolve
// credentials from the rule config, indirecting through the secret cache
// when the config names a secret instead of a literal value.
type Sender interface {
	Channel() string
	Send(ctx context.Context, message string, config map[string]string) error
}

// credential returns config[field], or the secret named by config[field+"Secret"].
func credential(ctx context.Context, cache *secrets.Cache, config map[string]string, field string) (string, error) {
	if v := config[field]; v != "" {
		return v, nil
	}
	if name := config[field+"Secret"]; name != "" && cache != nil {
		return cache.Get(ctx, name)
	}
	return "", fmt.Errorf("missing %s", field)
}

func checkResponse(channel, url string, resp *resty.Response, err error) error {
	if err != nil {
		return apperrors.DeliveryError{Channel: channel, Err: apperrors.TransportError{URL: url, Err: err}}
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return apperrors.DeliveryError{Channel: channel, Err: apperrors.TransportError{URL: url, StatusCode: resp.StatusCode()}}
	}
	return nil
}

// TelegramSender sends via the Telegram bot API.
type TelegramSender struct {
	client  *resty.Client
	secrets *secrets.Cache
	apiBase string
}

// NewTelegramSender creates a telegram sender. apiBase overrides the
// production endpoint in tests; empty means the real API.
func NewTelegramSender(client *resty.Client, cache *secrets.Cache, apiBase string) *TelegramSender {
	if apiBase == "" {
		apiBase = "https://api.telegram.org"
	}
	return &TelegramSender{client: client, secrets: cache, apiBase: apiBase}
}

func (s *TelegramSender) Channel() string { return ChannelTelegram }

func (s *TelegramSender) Send(ctx context.Context, message string, config map[string]string) error {
	token, err := credential(ctx, s.secrets, config, "botToken")
	if err != nil {
		return apperrors.DeliveryError{Channel: ChannelTelegram, Err: err}
	}
	chatID := config["chatId"]
	if chatID == "" {
		return apperrors.DeliveryError{Channel: ChannelTelegram, Err: fmt.Errorf("missing chatId")}
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, token)
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"chat_id": chatID, "text": message}).
		Post(url)
	return checkResponse(ChannelTelegram, s.apiBase, resp, err)
}

// LineSender sends via the LINE Messaging API push endpoint.
type LineSender struct {
	client  *resty.Client
	secrets *secrets.Cache
	apiBase string
}

// NewLineSender creates a LINE sender
func NewLineSender(client *resty.Client, cache *secrets.Cache, apiBase string) *LineSender {
	if apiBase == "" {
		apiBase = "https://api.line.me"
	}
	return &LineSender{client: client, secrets: cache, apiBase: apiBase}
}

func (s *LineSender) Channel() string { return ChannelLine }

func (s *LineSender) Send(ctx context.Context, message string, config map[string]string) error {
	token, err := credential(ctx, s.secrets, config, "channelToken")
	if err != nil {
		return apperrors.DeliveryError{Channel: ChannelLine, Err: err}
	}
	to := config["to"]
	if to == "" {
		return apperrors.DeliveryError{Channel: ChannelLine, Err: fmt.Errorf("missing to")}
	}

	url := s.apiBase + "/v2/bot/message/push"
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetBody(map[string]any{
			"to":       to,
			"messages": []map[string]string{{"type": "text", "text": message}},
		}).
		Post(url)
	return checkResponse(ChannelLine, url, resp, err)
}

// SlackSender posts to a Slack incoming webhook.
type SlackSender struct {
	client  *resty.Client
	secrets *secrets.Cache
}

// NewSlackSender creates a slack sender
func NewSlackSender(client *resty.Client, cache *secrets.Cache) *SlackSender {
	return &SlackSender{client: client, secrets: cache}
}

func (s *SlackSender) Channel() string { return ChannelSlack }

func (s *SlackSender) Send(ctx context.Context, message string, config map[string]string) error {
	url, err := credential(ctx, s.secrets, config, "webhookUrl")
	if err != nil {
		return apperrors.DeliveryError{Channel: ChannelSlack, Err: err}
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": message}).
		Post(url)
	return checkResponse(ChannelSlack, url, resp, err)
}

// WebhookSender posts the message to a tenant-supplied URL.
type WebhookSender struct {
	client *resty.Client
}

// NewWebhookSender creates a generic webhook sender
func NewWebhookSender(client *resty.Client) *WebhookSender {
	return &WebhookSender{client: client}
}

func (s *WebhookSender) Channel() string { return ChannelWebhook }

func (s *WebhookSender) Send(ctx context.Context, message string, config map[string]string) error {
	url := config["url"]
	if url == "" {
		return apperrors.DeliveryError{Channel: ChannelWebhook, Err: fmt.Errorf("missing url")}
	}

	req := s.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"message": message})
	if secret := config["signingSecret"]; secret != "" {
		req.SetHeader("X-Signature", secret)
	}
	resp, err := req.Post(url)
	return checkResponse(ChannelWebhook, url, resp, err)
}

// EmailSender sends through an HTTP mail relay.
type EmailSender struct {
	client  *resty.Client
	secrets *secrets.Cache
	apiURL  string
}

// NewEmailSender creates an email sender backed by a relay endpoint
func NewEmailSender(client *resty.Client, cache *secrets.Cache, apiURL string) *EmailSender {
	return &EmailSender{client: client, secrets: cache, apiURL: apiURL}
}

func (s *EmailSender) Channel() string { return ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, message string, config map[string]string) error {
	to := config["to"]
	if to == "" {
		return apperrors.DeliveryError{Channel: ChannelEmail, Err: fmt.Errorf("missing to")}
	}
	if s.apiURL == "" {
		return apperrors.DeliveryError{Channel: ChannelEmail, Err: fmt.Errorf("mail relay not configured")}
	}

	req := s.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"to":      to,
			"subject": config["subject"],
			"body":    message,
		})
	if key, err := credential(ctx, s.secrets, config, "apiKey"); err == nil {
		req.SetHeader("Authorization", "Bearer "+key)
	}
	resp, err := req.Post(s.apiURL)
	return checkResponse(ChannelEmail, s.apiURL, resp, err)
}
