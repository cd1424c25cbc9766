package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/vitrine/connectivity"
	"github.com/hazyhaar/vitrine/horosafe"
)

// Webhook POSTs each request as JSON and retries with exponential backoff.
// A JSON Receipt in the response body is returned as is; an empty body
// means the request was accepted.
type Webhook struct {
	url  string
	call connectivity.Handler
}

// WebhookOption configures a Webhook.
type WebhookOption func(*webhookConfig)

type webhookConfig struct {
	client     *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// WithWebhookRetries sets the maximum number of retries. Default: 3.
func WithWebhookRetries(n int) WebhookOption {
	return func(c *webhookConfig) { c.maxRetries = n }
}

// WithWebhookBackoff sets the first retry delay. Default: 1s.
func WithWebhookBackoff(d time.Duration) WebhookOption {
	return func(c *webhookConfig) { c.backoff = d }
}

// WithWebhookClient sets the HTTP client.
func WithWebhookClient(hc *http.Client) WebhookOption {
	return func(c *webhookConfig) { c.client = hc }
}

// WithWebhookLogger sets a custom logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(c *webhookConfig) { c.logger = l }
}

// NewWebhook creates a Webhook generator targeting url.
func NewWebhook(url string, opts ...WebhookOption) (*Webhook, error) {
	if err := horosafe.ValidateURL(url); err != nil {
		return nil, fmt.Errorf("artifact: webhook url: %w", err)
	}
	cfg := webhookConfig{
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		backoff:    time.Second,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	call := connectivity.WithRetry(cfg.maxRetries, cfg.backoff, cfg.logger)(
		connectivity.HTTPPost(url, connectivity.HTTPOptions{Client: cfg.client}),
	)
	return &Webhook{url: url, call: call}, nil
}

func (w *Webhook) Generate(ctx context.Context, req Request) (Receipt, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("artifact: marshal: %w", err)
	}
	resp, err := w.call(ctx, body)
	if err != nil {
		return Receipt{}, fmt.Errorf("artifact: webhook %s: %w", w.url, err)
	}

	rec := Receipt{RequestID: req.ID, Status: "accepted"}
	if len(resp) > 0 {
		if err := json.Unmarshal(resp, &rec); err != nil {
			return Receipt{}, fmt.Errorf("artifact: decode receipt: %w", err)
		}
		if rec.RequestID == "" {
			rec.RequestID = req.ID
		}
	}
	return rec, nil
}
