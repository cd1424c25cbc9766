// Package bridge is the handler that lives inside the embedded catalog
// document. It answers filter requests from its own URL and DOM, mirrors the
// controller's selection as visual marks, and, while selection mode is on,
// turns item clicks into PROPERTY_CARD_CLICK reports.
//
// Two runtimes implement the same protocol. Bridge is an in-process actor
// over a parsed x/net/html tree. bridge.js (see Script) is installed into a
// real browser tab by internal/browser.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/net/html"

	"github.com/hazyhaar/vitrine/filter"
	"github.com/hazyhaar/vitrine/message"
)

// Defaults for Config.
const (
	DefaultItemAttr      = "data-property-id"
	DefaultSelectedClass = "property-selected"
	DefaultModeClass     = "vitrine-selection-mode"
)

// ErrStopped is returned by calls made after Run has returned.
var ErrStopped = errors.New("bridge: stopped")

// ErrUnknownItem is returned by ClickItem when no element carries the ID.
var ErrUnknownItem = errors.New("bridge: unknown item")

// Config for creating a Bridge.
type Config struct {
	ItemAttr      string
	SelectedClass string
	ModeClass     string
	Strategies    []filter.Strategy // nil means filter.DefaultStrategies
	Logger        *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.ItemAttr == "" {
		c.ItemAttr = DefaultItemAttr
	}
	if c.SelectedClass == "" {
		c.SelectedClass = DefaultSelectedClass
	}
	if c.ModeClass == "" {
		c.ModeClass = DefaultModeClass
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ClickResult reports what happened to a click.
type ClickResult struct {
	// Intercepted is true when the click was consumed by selection mode.
	// A click that is not intercepted proceeds with its default action.
	Intercepted bool  `json:"intercepted"`
	ItemID      int64 `json:"itemId"`
	Selected    bool  `json:"selected"`
}

// Bridge owns one embedded document. All state is touched only by the Run
// goroutine; public methods submit closures to it.
type Bridge struct {
	cfg  Config
	conn message.Conn
	ops  chan func()
	done chan struct{}

	// Owned by Run.
	url    string
	doc    *html.Node
	active bool
	mirror map[int64]bool
}

// New creates a Bridge speaking over conn. Call Run to start it.
func New(conn message.Conn, cfg Config) *Bridge {
	cfg.applyDefaults()
	return &Bridge{
		cfg:    cfg,
		conn:   conn,
		ops:    make(chan func()),
		done:   make(chan struct{}),
		mirror: make(map[int64]bool),
	}
}

// Run processes inbound envelopes and submitted operations until ctx ends
// or the connection's inbox closes.
func (b *Bridge) Run(ctx context.Context) error {
	defer close(b.done)
	inbox := b.conn.Inbox()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-inbox:
			if !ok {
				return nil
			}
			b.handle(env)
		case op := <-b.ops:
			op()
		}
	}
}

func (b *Bridge) handle(env message.Envelope) {
	switch env.Type {
	case message.GetActiveFilters:
		req, err := message.Decode[message.FiltersRequest](env)
		if err != nil {
			b.cfg.Logger.Debug("bridge: malformed filters request", "error", err)
			return
		}
		b.conn.Post(message.MustNew(message.ActiveFiltersResponse, message.FiltersResponse{
			Filters:   filter.FromDocument(b.url, b.doc, b.cfg.Strategies),
			RequestID: req.RequestID,
		}))

	case message.UpdateSelections:
		sel, err := message.Decode[message.Selections](env)
		if err != nil {
			b.cfg.Logger.Debug("bridge: malformed selection update", "error", err)
			return
		}
		b.mirror = make(map[int64]bool, len(sel.SelectedIDs))
		for _, id := range sel.SelectedIDs {
			b.mirror[id] = true
		}
		b.reconcile()

	case message.SetSelectionMode:
		mode, err := message.Decode[message.SelectionMode](env)
		if err != nil {
			b.cfg.Logger.Debug("bridge: malformed selection mode", "error", err)
			return
		}
		b.setMode(mode.Active)

	default:
		b.cfg.Logger.Debug("bridge: ignoring envelope", "type", env.Type)
	}
}

func (b *Bridge) setMode(active bool) {
	b.active = active
	if body := findBody(b.doc); body != nil {
		setClass(body, b.cfg.ModeClass, active)
	}
	if !active {
		clear(b.mirror)
		b.reconcile()
	}
}

// reconcile applies the mirror to every item element.
func (b *Bridge) reconcile() {
	for _, it := range items(b.doc, b.cfg.ItemAttr) {
		setClass(it.node, b.cfg.SelectedClass, b.mirror[it.id])
	}
}

func (b *Bridge) click(target *html.Node) ClickResult {
	if !b.active {
		return ClickResult{}
	}
	node, id, ok := enclosingItem(target, b.cfg.ItemAttr)
	if !ok {
		return ClickResult{}
	}
	selected := !b.mirror[id]
	if selected {
		b.mirror[id] = true
	} else {
		delete(b.mirror, id)
	}
	setClass(node, b.cfg.SelectedClass, selected)
	b.conn.Post(message.MustNew(message.PropertyCardClick, message.CardClick{ItemID: id, IsSelected: selected}))
	return ClickResult{Intercepted: true, ItemID: id, Selected: selected}
}

// do runs fn on the Run goroutine and waits for it.
func (b *Bridge) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	op := func() {
		fn()
		close(finished)
	}
	select {
	case b.ops <- op:
	case <-b.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load installs a freshly loaded document. A load resets selection mode and
// the mirror, and announces the document with BRIDGE_READY.
func (b *Bridge) Load(ctx context.Context, pageURL string, doc *html.Node) error {
	return b.do(ctx, func() {
		b.url = pageURL
		b.doc = doc
		b.active = false
		clear(b.mirror)
		b.conn.Post(message.MustNew(message.BridgeReady, message.Ready{URL: pageURL}))
		b.cfg.Logger.Debug("bridge: document loaded", "url", pageURL)
	})
}

// Click dispatches a click on target, which must belong to the loaded
// document.
func (b *Bridge) Click(ctx context.Context, target *html.Node) (ClickResult, error) {
	var res ClickResult
	err := b.do(ctx, func() { res = b.click(target) })
	return res, err
}

// ClickItem clicks the first element carrying item id.
func (b *Bridge) ClickItem(ctx context.Context, id int64) (ClickResult, error) {
	var (
		res   ClickResult
		found bool
	)
	err := b.do(ctx, func() {
		for _, it := range items(b.doc, b.cfg.ItemAttr) {
			if it.id == id {
				found = true
				res = b.click(it.node)
				return
			}
		}
	})
	if err != nil {
		return res, err
	}
	if !found {
		return res, fmt.Errorf("%w: %d", ErrUnknownItem, id)
	}
	return res, nil
}

// Marked returns the sorted IDs of items currently carrying the selected
// class in the DOM.
func (b *Bridge) Marked(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := b.do(ctx, func() {
		for _, it := range items(b.doc, b.cfg.ItemAttr) {
			if hasClass(it.node, b.cfg.SelectedClass) && !slices.Contains(ids, it.id) {
				ids = append(ids, it.id)
			}
		}
	})
	slices.Sort(ids)
	return ids, err
}

// Active reports whether selection mode is on.
func (b *Bridge) Active(ctx context.Context) (bool, error) {
	var active bool
	err := b.do(ctx, func() { active = b.active })
	return active, err
}

// ItemIDs lists the item IDs rendered in the document, in document order.
func (b *Bridge) ItemIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := b.do(ctx, func() {
		for _, it := range items(b.doc, b.cfg.ItemAttr) {
			ids = append(ids, it.id)
		}
	})
	return ids, err
}
