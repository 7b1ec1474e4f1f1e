// Package classifier enriches normalized events with sentiment and entity
// data from an external classification service, falling back to the local
// lexicon when the service is unavailable.
package classifier

import (
	"context"
	"encoding/json"

	"github.com/go-resty/resty/v2"

	"github.com/eventfuse/eventfuse/internal/adapters"
	apperrors "github.com/eventfuse/eventfuse/internal/errors"
	"github.com/eventfuse/eventfuse/internal/logger"
	"github.com/eventfuse/eventfuse/internal/models"
)

// Enrichment is the classifier service's verdict on a piece of text.
type Enrichment struct {
	Sentiment  string          `json:"sentiment"`
	Confidence float64         `json:"confidence"`
	Entities   []models.Entity `json:"entities"`
	Topics     []string        `json:"topics"`
}

// Classifier enriches event text. With no endpoint configured it runs in
// lexicon-only mode.
type Classifier struct {
	endpoint string
	apiKey   string
	client   *resty.Client
}

// New creates a classifier. An empty endpoint disables the remote call.
func New(endpoint, apiKey string, client *resty.Client) *Classifier {
	return &Classifier{endpoint: endpoint, apiKey: apiKey, client: client}
}

type classifyRequest struct {
	Text string `json:"text"`
}

// Classify returns an enrichment for text. Remote failures degrade to the
// lexicon rather than surfacing an error to the pipeline.
func (c *Classifier) Classify(ctx context.Context, text string) Enrichment {
	if c.endpoint == "" {
		return c.lexiconEnrichment(text)
	}

	enrichment, err := c.classifyRemote(ctx, text)
	if err != nil {
		logger.Warn("Classifier service unavailable, using lexicon fallback", "error", err)
		return c.lexiconEnrichment(text)
	}
	return enrichment
}

func (c *Classifier) classifyRemote(ctx context.Context, text string) (Enrichment, error) {
	req := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(classifyRequest{Text: text})
	if c.apiKey != "" {
		req.SetHeader("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := req.Post(c.endpoint)
	if err != nil {
		return Enrichment{}, apperrors.TransportError{URL: c.endpoint, Err: err}
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return Enrichment{}, apperrors.TransportError{URL: c.endpoint, StatusCode: resp.StatusCode()}
	}

	var enrichment Enrichment
	if err := json.Unmarshal(resp.Body(), &enrichment); err != nil {
		return Enrichment{}, apperrors.ParseError{Source: c.endpoint, Detail: "invalid classifier response", Err: err}
	}
	if enrichment.Sentiment == "" {
		enrichment.Sentiment = models.SentimentNeutral
	}
	return enrichment, nil
}

func (c *Classifier) lexiconEnrichment(text string) Enrichment {
	detected := adapters.DetectEntities(text)
	entities := make([]models.Entity, 0, len(detected))
	for _, d := range detected {
		entities = append(entities, models.Entity{Name: d.Name, Type: d.Type})
	}
	return Enrichment{
		Sentiment:  adapters.LexiconSentiment(text),
		Confidence: 0.5,
		Entities:   entities,
		Topics:     adapters.ExtractKeywords(text, 10),
	}
}
