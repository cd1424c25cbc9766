package bridge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/html"
)

// maxDocumentSize caps a fetched catalog page.
const maxDocumentSize = 10 << 20

// Fetcher retrieves catalog pages over plain HTTP for the in-process bridge.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
}

// Fetch GETs pageURL and parses the body. The returned URL is the final
// one after redirects, which is what the document sees as its location.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, *html.Node, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("bridge: new request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("bridge: fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", nil, fmt.Errorf("bridge: fetch %s: status %d", pageURL, resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return "", nil, fmt.Errorf("bridge: parse %s: %w", pageURL, err)
	}
	return resp.Request.URL.String(), doc, nil
}

// LoadURL fetches pageURL and installs it as the bridge's document.
func (b *Bridge) LoadURL(ctx context.Context, f *Fetcher, pageURL string) error {
	finalURL, doc, err := f.Fetch(ctx, pageURL)
	if err != nil {
		return err
	}
	return b.Load(ctx, finalURL, doc)
}
