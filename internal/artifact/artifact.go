// Package artifact hands a generation request, the selection plus the
// captured filters, to whatever renders the PDF or static page.
package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/vitrine/filter"
)

// Kind is the artifact format.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindPage Kind = "page"
)

// ParseKind accepts "pdf" and "page". Empty means pdf.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindPDF:
		return KindPDF, nil
	case KindPage:
		return KindPage, nil
	}
	return "", fmt.Errorf("artifact: unknown kind %q", s)
}

// Request is what the generator receives.
type Request struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	ItemIDs     []int64         `json:"itemIds"`
	Filters     filter.Snapshot `json:"filters"`
	RequestedAt time.Time       `json:"requestedAt"`
}

// Receipt is the generator's answer.
type Receipt struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
	Location  string `json:"location,omitempty"`
}

// Generator produces artifacts.
type Generator interface {
	Generate(ctx context.Context, req Request) (Receipt, error)
}

// Func adapts an in-process function to Generator.
type Func func(ctx context.Context, req Request) (Receipt, error)

func (f Func) Generate(ctx context.Context, req Request) (Receipt, error) {
	return f(ctx, req)
}

// LogOnly is the generator used when nothing downstream is configured: it
// records the request and accepts it.
func LogOnly(logger *slog.Logger) Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return Func(func(ctx context.Context, req Request) (Receipt, error) {
		logger.InfoContext(ctx, "artifact: generation requested",
			"id", req.ID, "kind", req.Kind, "items", len(req.ItemIDs), "filtered", !req.Filters.IsEmpty())
		return Receipt{RequestID: req.ID, Status: "logged"}, nil
	})
}
