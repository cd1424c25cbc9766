package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/vitrine/internal/artifact"
	"github.com/hazyhaar/vitrine/kit"
)

// RegisterMCP registers the vitrine tools on srv.
func (c *Controller) RegisterMCP(srv *mcp.Server) {
	c.registerModeTool(srv)
	c.registerClickTool(srv)
	c.registerSelectAllTool(srv)
	c.registerClearTool(srv)
	c.registerSelectionTool(srv)
	c.registerFiltersTool(srv)
	c.registerGenerateTool(srv)
	c.registerGeocodeTool(srv)
}

func (c *Controller) register(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	kit.RegisterMCPTool(srv, tool, kit.Logging(tool.Name, c.logger)(endpoint), decode)
}

var queryProperty = map[string]any{
	"type":        "string",
	"description": "Query string of the host page, e.g. cidade=Rio de Janeiro&bairro=Leblon,Ipanema",
}

// hostQuery parses the query argument; a leading "?" is tolerated.
func hostQuery(raw string) (url.Values, error) {
	q, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return q, nil
}

type modeRequest struct {
	Active *bool `json:"active"`
}

func (c *Controller) registerModeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vitrine_selection_mode",
		Description: "Turn selection mode on or off in the embedded catalog. Turning it off clears the selection.",
		InputSchema: kit.InputSchema(map[string]any{
			"active": map[string]any{"type": "boolean", "description": "true to start selecting items"},
		}, "active"),
	}
	c.register(srv, tool, func(_ context.Context, req any) (any, error) {
		r := req.(*modeRequest)
		if r.Active == nil {
			return nil, errors.New("active is required")
		}
		return c.SetSelectionMode(*r.Active), nil
	}, kit.DecodeArgs[modeRequest]())
}

type clickRequest struct {
	ItemID int64 `json:"itemId"`
}

func (c *Controller) registerClickTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vitrine_click",
		Description: "Click a property card in the embedded catalog, as the operator would.",
		InputSchema: kit.InputSchema(map[string]any{
			"itemId": map[string]any{"type": "integer", "description": "Property ID (data-property-id)"},
		}, "itemId"),
	}
	c.register(srv, tool, func(ctx context.Context, req any) (any, error) {
		return c.Click(ctx, req.(*clickRequest).ItemID)
	}, kit.DecodeArgs[clickRequest]())
}

type scopeRequest struct {
	Query string `json:"query"`
}

func (c *Controller) registerSelectAllTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vitrine_select_all",
		Description: "Select every property matching the host-page filters, or clear the selection if all of them are already selected.",
		InputSchema: kit.InputSchema(map[string]any{"query": queryProperty}),
	}
	c.register(srv, tool, func(ctx context.Context, req any) (any, error) {
		q, err := hostQuery(req.(*scopeRequest).Query)
		if err != nil {
			return nil, err
		}
		return c.SelectAll(ctx, q)
	}, kit.DecodeArgs[scopeRequest]())
}

type emptyRequest struct{}

func (c *Controller) registerClearTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vitrine_clear",
		Description: "Clear the selection.",
		InputSchema: kit.InputSchema(map[string]any{}),
	}
	c.register(srv, tool, func(context.Context, any) (any, error) {
		c.ClearSelection()
		return c.State(), nil
	}, kit.DecodeArgs[emptyRequest]())
}

func (c *Controller) registerSelectionTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vitrine_selection",
		Description: "Show selection mode, embedded page readiness and the selected property IDs.",
		InputSchema: kit.InputSchema(map[string]any{}),
	}
	c.register(srv, tool, func(context.Context, any) (any, error) {
		return c.State(), nil
	}, kit.DecodeArgs[emptyRequest]())
}

func (c *Controller) registerFiltersTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vitrine_filters",
		Description: "Capture the filters active in the embedded catalog merged with the host-page filters.",
		InputSchema: kit.InputSchema(map[string]any{"query": queryProperty}),
	}
	c.register(srv, tool, func(ctx context.Context, req any) (any, error) {
		q, err := hostQuery(req.(*scopeRequest).Query)
		if err != nil {
			return nil, err
		}
		res := c.Filters(ctx, q)
		return map[string]any{"filters": res.Filters, "outcome": res.Outcome}, nil
	}, kit.DecodeArgs[scopeRequest]())
}

type generateRequest struct {
	Kind  string `json:"kind"`
	Query string `json:"query"`
}

func (c *Controller) registerGenerateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vitrine_generate",
		Description: "Generate a PDF or static page from the selection and the active filters.",
		InputSchema: kit.InputSchema(map[string]any{
			"kind":  map[string]any{"type": "string", "enum": []any{"pdf", "page"}, "description": "Artifact format (default pdf)"},
			"query": queryProperty,
		}),
	}
	c.register(srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*generateRequest)
		kind, err := artifact.ParseKind(r.Kind)
		if err != nil {
			return nil, err
		}
		q, err := hostQuery(r.Query)
		if err != nil {
			return nil, err
		}
		return c.Generate(ctx, q, kind)
	}, kit.DecodeArgs[generateRequest]())
}

type geocodeRequest struct {
	Address string `json:"address"`
}

func (c *Controller) registerGeocodeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vitrine_geocode",
		Description: "Resolve a property address to coordinates (cached 24h).",
		InputSchema: kit.InputSchema(map[string]any{
			"address": map[string]any{"type": "string", "description": "Street address"},
		}, "address"),
	}
	c.register(srv, tool, func(ctx context.Context, req any) (any, error) {
		return c.Geocode(ctx, req.(*geocodeRequest).Address)
	}, kit.DecodeArgs[geocodeRequest]())
}
