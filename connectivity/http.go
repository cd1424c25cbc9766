package connectivity

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hazyhaar/vitrine/horosafe"
)

// DefaultMaxResponse caps remote response bodies.
const DefaultMaxResponse int64 = 1 << 20

// HTTPOptions configures HTTPGet and HTTPPost.
type HTTPOptions struct {
	Client      *http.Client
	UserAgent   string
	ContentType string // POST only; default application/json
	MaxResponse int64
}

func (o *HTTPOptions) defaults() {
	if o.Client == nil {
		o.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if o.ContentType == "" {
		o.ContentType = "application/json"
	}
	if o.MaxResponse <= 0 {
		o.MaxResponse = DefaultMaxResponse
	}
}

// HTTPGet returns a Handler that GETs the URL given as payload.
func HTTPGet(opts HTTPOptions) Handler {
	opts.defaults()
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, string(payload), nil)
		if err != nil {
			return nil, fmt.Errorf("connectivity/http: create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		return do(req, opts)
	}
}

// HTTPPost returns a Handler that POSTs the payload to endpoint.
func HTTPPost(endpoint string, opts HTTPOptions) Handler {
	opts.defaults()
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("connectivity/http: create request: %w", err)
		}
		req.Header.Set("Content-Type", opts.ContentType)
		return do(req, opts)
	}
}

func do(req *http.Request, opts HTTPOptions) ([]byte, error) {
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}
	resp, err := opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connectivity/http: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := horosafe.LimitedReadAll(resp.Body, opts.MaxResponse)
	if err != nil {
		return nil, fmt.Errorf("connectivity/http: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > 256 {
			body = body[:256]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
