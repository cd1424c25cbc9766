// Package catalog is the controller side of vitrine. It owns the selection
// mode, dispatches envelopes coming from the embedded catalog, and hands
// {selection, filters} to the artifact generator.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/hazyhaar/vitrine/bridge"
	"github.com/hazyhaar/vitrine/capture"
	"github.com/hazyhaar/vitrine/filter"
	"github.com/hazyhaar/vitrine/geocache"
	"github.com/hazyhaar/vitrine/idgen"
	"github.com/hazyhaar/vitrine/internal/artifact"
	"github.com/hazyhaar/vitrine/internal/store"
	"github.com/hazyhaar/vitrine/message"
	"github.com/hazyhaar/vitrine/selection"
)

var (
	// ErrNoClicker is returned by Click when the embedded runtime cannot
	// click items on the operator's behalf.
	ErrNoClicker = errors.New("catalog: no click runtime")
	// ErrNoResolver is returned by Geocode and Map when address resolution
	// is not configured.
	ErrNoResolver = errors.New("catalog: no address resolver")
	// ErrModeInactive is returned by SelectAll outside selection mode.
	ErrModeInactive = errors.New("catalog: selection mode is off")
)

// Clicker clicks an item inside the embedded document. Both bridge
// runtimes implement it.
type Clicker interface {
	ClickItem(ctx context.Context, id int64) (bridge.ClickResult, error)
}

// Deps are the collaborators of a Controller. Clicker, Resolver and
// Generator are optional.
type Deps struct {
	Conn      message.Conn
	Store     *store.Store
	Clicker   Clicker
	Resolver  *geocache.Resolver
	Generator artifact.Generator
}

// Options tunes a Controller.
type Options struct {
	CaptureTimeout time.Duration
	MaxItems       int
	NewArtifactID  idgen.Generator
	Logger         *slog.Logger
}

// State is the controller's view of the session.
type State struct {
	Active   bool    `json:"active"`
	Ready    bool    `json:"ready"`
	URL      string  `json:"url,omitempty"`
	Selected []int64 `json:"selectedIds"`
}

// Controller drives one embedded catalog.
type Controller struct {
	conn     message.Conn
	store    *store.Store
	clicker  Clicker
	resolver *geocache.Resolver
	gen      artifact.Generator
	sel      *selection.Synchronizer
	capturer *capture.Capturer
	newID    idgen.Generator
	logger   *slog.Logger

	mu     sync.RWMutex
	active bool
	ready  bool
	url    string
}

// New creates a Controller. Run must be started for inbound envelopes to be
// processed.
func New(deps Deps, opts Options) (*Controller, error) {
	if deps.Conn == nil {
		return nil, errors.New("catalog: nil conn")
	}
	if deps.Store == nil {
		return nil, errors.New("catalog: nil store")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewArtifactID == nil {
		opts.NewArtifactID = idgen.Prefixed("art_", idgen.UUIDv7())
	}
	if deps.Generator == nil {
		deps.Generator = artifact.LogOnly(opts.Logger)
	}
	return &Controller{
		conn:     deps.Conn,
		store:    deps.Store,
		clicker:  deps.Clicker,
		resolver: deps.Resolver,
		gen:      deps.Generator,
		sel: selection.New(deps.Conn, deps.Store, selection.Config{
			MaxItems: opts.MaxItems,
			Logger:   opts.Logger,
		}),
		capturer: capture.New(deps.Conn, capture.Config{
			Timeout: opts.CaptureTimeout,
			Logger:  opts.Logger,
		}),
		newID:  opts.NewArtifactID,
		logger: opts.Logger,
	}, nil
}

// Run drains the inbox until ctx ends or the inbox is closed.
func (c *Controller) Run(ctx context.Context) error {
	inbox := c.conn.Inbox()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-inbox:
			if !ok {
				return nil
			}
			c.dispatch(env)
		}
	}
}

func (c *Controller) dispatch(env message.Envelope) {
	switch env.Type {
	case message.PropertyCardClick:
		click, err := message.Decode[message.CardClick](env)
		if err != nil {
			c.logger.Debug("catalog: malformed click", "error", err)
			return
		}
		// The read lock spans the check and the update so a concurrent
		// SetSelectionMode(false) cannot clear the set in between.
		c.mu.RLock()
		defer c.mu.RUnlock()
		if !c.active {
			c.logger.Debug("catalog: click outside selection mode", "item_id", click.ItemID)
			return
		}
		c.sel.HandleClick(click)

	case message.ActiveFiltersResponse:
		resp, err := message.Decode[message.FiltersResponse](env)
		if err != nil {
			c.logger.Debug("catalog: malformed filters response", "error", err)
			return
		}
		c.capturer.Deliver(resp)

	case message.BridgeReady:
		ready, err := message.Decode[message.Ready](env)
		if err != nil {
			c.logger.Debug("catalog: malformed ready", "error", err)
			return
		}
		c.mu.Lock()
		wasReady := c.ready
		c.ready, c.url, c.active = true, ready.URL, false
		c.mu.Unlock()
		// The reloaded document starts unmarked with selection mode off.
		if c.sel.Len() > 0 {
			c.sel.Clear()
		}
		c.logger.Info("catalog: embedded document loaded", "url", ready.URL, "reload", wasReady)

	default:
		c.logger.Debug("catalog: unexpected envelope", "type", env.Type)
	}
}

// SetSelectionMode turns selection mode on or off. Turning it off clears
// the selection.
func (c *Controller) SetSelectionMode(active bool) State {
	c.mu.Lock()
	c.active = active
	c.mu.Unlock()

	if !c.conn.Post(message.MustNew(message.SetSelectionMode, message.SelectionMode{Active: active})) {
		c.logger.Warn("catalog: bridge unreachable", "op", "set_selection_mode")
	}
	if !active {
		c.sel.Clear()
	}
	return c.State()
}

// Active reports whether selection mode is on.
func (c *Controller) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// State returns mode, readiness and the selection.
func (c *Controller) State() State {
	c.mu.RLock()
	s := State{Active: c.active, Ready: c.ready, URL: c.url}
	c.mu.RUnlock()
	s.Selected = c.sel.IDs()
	if s.Selected == nil {
		s.Selected = []int64{}
	}
	return s
}

// Selection returns the sorted selection.
func (c *Controller) Selection() []int64 { return c.sel.IDs() }

// Click clicks item id inside the embedded document as the operator would.
// The selection changes once the resulting PROPERTY_CARD_CLICK is processed.
func (c *Controller) Click(ctx context.Context, id int64) (bridge.ClickResult, error) {
	if c.clicker == nil {
		return bridge.ClickResult{}, ErrNoClicker
	}
	res, err := c.clicker.ClickItem(ctx, id)
	if err != nil {
		return res, fmt.Errorf("catalog: click: %w", err)
	}
	return res, nil
}

// SelectAll toggles every item matching the page-level scope taken from
// hostQuery.
func (c *Controller) SelectAll(ctx context.Context, hostQuery url.Values) (selection.ToggleResult, error) {
	if !c.Active() {
		return selection.ToggleResult{}, ErrModeInactive
	}
	res, err := c.sel.ToggleAll(ctx, filter.FromQuery(hostQuery))
	if err != nil {
		return res, fmt.Errorf("catalog: select all: %w", err)
	}
	return res, nil
}

// ClearSelection empties the selection.
func (c *Controller) ClearSelection() {
	c.sel.Clear()
}

// Filters runs the filter capture protocol.
func (c *Controller) Filters(ctx context.Context, hostQuery url.Values) capture.Result {
	return c.capturer.Capture(ctx, hostQuery)
}

// Generation is the outcome of Generate.
type Generation struct {
	Request artifact.Request `json:"request"`
	Receipt artifact.Receipt `json:"receipt"`
	Outcome capture.Outcome  `json:"filtersOutcome"`
}

// Generate captures the active filters and hands them, with the selection,
// to the artifact generator.
func (c *Controller) Generate(ctx context.Context, hostQuery url.Values, kind artifact.Kind) (Generation, error) {
	captured := c.capturer.Capture(ctx, hostQuery)
	req := artifact.Request{
		ID:          c.newID(),
		Kind:        kind,
		ItemIDs:     c.sel.IDs(),
		Filters:     captured.Filters,
		RequestedAt: time.Now().UTC(),
	}
	if req.ItemIDs == nil {
		req.ItemIDs = []int64{}
	}
	gen := Generation{Request: req, Outcome: captured.Outcome}
	receipt, err := c.gen.Generate(ctx, req)
	if err != nil {
		return gen, fmt.Errorf("catalog: generate: %w", err)
	}
	gen.Receipt = receipt
	c.logger.Info("catalog: artifact requested",
		"request_id", req.ID, "kind", kind, "items", len(req.ItemIDs), "filters", captured.Outcome)
	return gen, nil
}

// Geocode resolves an address through the caches.
func (c *Controller) Geocode(ctx context.Context, address string) (geocache.Coordinates, error) {
	if c.resolver == nil {
		return geocache.Coordinates{}, ErrNoResolver
	}
	return c.resolver.Coordinates(ctx, address)
}

// MapPNG renders the map of an address as PNG.
func (c *Controller) MapPNG(ctx context.Context, address string) ([]byte, error) {
	if c.resolver == nil {
		return nil, ErrNoResolver
	}
	h, err := c.resolver.Map(ctx, address)
	if err != nil {
		return nil, err
	}
	return h.PNG(ctx)
}
