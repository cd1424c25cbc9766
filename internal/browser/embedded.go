package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/vitrine/bridge"
	"github.com/hazyhaar/vitrine/message"
)

// BindingName is the Runtime binding the injected bridge reports through.
const BindingName = "__vitrine_binding"

// evalTimeout bounds a single call into the page.
const evalTimeout = 5 * time.Second

// EmbeddedConfig describes the catalog tab.
type EmbeddedConfig struct {
	URL              string
	ControllerOrigin string
	EmbeddedOrigin   string
	ItemAttr         string
	SelectedClass    string
	Buffer           int
	Logger           *slog.Logger
}

// EmbeddedPage is the catalog document running in Chrome with bridge.js
// injected. It is the controller's message.Conn: frames posted to it are
// evaluated in the page, frames reported by the page land in Inbox after the
// origin check.
type EmbeddedPage struct {
	page   *rod.Page
	cfg    EmbeddedConfig
	inbox  chan message.Envelope
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// OpenEmbedded opens the catalog tab. The bridge script is registered
// before navigation so it also runs after every reload.
func (m *Manager) OpenEmbedded(ctx context.Context, cfg EmbeddedConfig) (*EmbeddedPage, error) {
	if cfg.Buffer <= 0 {
		cfg.Buffer = message.DefaultBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = m.cfg.Logger
	}

	page, err := m.newPage(true)
	if err != nil {
		return nil, err
	}
	if err := (proto.RuntimeAddBinding{Name: BindingName}).Call(page); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: add binding: %w", err)
	}
	script := bridge.Script(bridge.ScriptConfig{
		ControllerOrigin: cfg.ControllerOrigin,
		ItemAttr:         cfg.ItemAttr,
		SelectedClass:    cfg.SelectedClass,
		Binding:          BindingName,
	})
	if _, err := page.EvalOnNewDocument(script); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: install bridge: %w", err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	e := &EmbeddedPage{
		page:   page,
		cfg:    cfg,
		inbox:  make(chan message.Envelope, cfg.Buffer),
		cancel: cancel,
	}
	go page.Context(listenCtx).EachEvent(func(ev *proto.RuntimeBindingCalled) {
		if ev.Name == BindingName {
			e.deliver([]byte(ev.Payload))
		}
	})()

	if err := m.navigate(ctx, page, cfg.URL); err != nil {
		e.Close()
		return nil, err
	}
	cfg.Logger.Info("browser: catalog tab ready", "url", cfg.URL)
	return e, nil
}

func (e *EmbeddedPage) deliver(frame []byte) {
	env, err := message.Accept(frame, e.cfg.EmbeddedOrigin)
	if err != nil {
		e.cfg.Logger.Debug("browser: drop frame from page", "error", err)
		return
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	select {
	case e.inbox <- env:
	default:
		e.cfg.Logger.Debug("browser: inbox full, drop frame", "type", env.Type)
	}
}

// Post evaluates the frame inside the page. It returns false when the page
// is gone or the bridge is not installed yet.
func (e *EmbeddedPage) Post(env message.Envelope) bool {
	frame, err := message.Encode(env, e.cfg.ControllerOrigin)
	if err != nil {
		e.cfg.Logger.Debug("browser: drop outbound envelope", "type", env.Type, "error", err)
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()
	res, err := e.page.Context(ctx).Eval(`(f) => {
		if (!window.__vitrineBridge) return false;
		window.__vitrineBridge.receive(f);
		return true;
	}`, string(frame))
	if err != nil {
		e.cfg.Logger.Debug("browser: post to page", "type", env.Type, "error", err)
		return false
	}
	return res.Value.Bool()
}

// Inbox yields envelopes reported by the page.
func (e *EmbeddedPage) Inbox() <-chan message.Envelope { return e.inbox }

type clickReply struct {
	Found       bool  `json:"found"`
	Intercepted bool  `json:"intercepted"`
	ItemID      int64 `json:"itemId"`
	Selected    bool  `json:"selected"`
}

// ClickItem dispatches a real click on the first element carrying id.
func (e *EmbeddedPage) ClickItem(ctx context.Context, id int64) (bridge.ClickResult, error) {
	var reply clickReply
	if err := e.eval(ctx, `(id) => window.__vitrineBridge ? window.__vitrineBridge.clickItem(id) : {found: false}`, &reply, id); err != nil {
		return bridge.ClickResult{}, err
	}
	if !reply.Found {
		return bridge.ClickResult{}, fmt.Errorf("%w: %d", bridge.ErrUnknownItem, id)
	}
	return bridge.ClickResult{Intercepted: reply.Intercepted, ItemID: reply.ItemID, Selected: reply.Selected}, nil
}

// Marked returns the IDs currently carrying the selected class.
func (e *EmbeddedPage) Marked(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := e.eval(ctx, `() => window.__vitrineBridge ? window.__vitrineBridge.marked() : []`, &ids)
	return ids, err
}

// Reload navigates the tab again; the page announces itself with a fresh
// BRIDGE_READY.
func (e *EmbeddedPage) Reload(ctx context.Context) error {
	if err := e.page.Context(ctx).Reload(); err != nil {
		return fmt.Errorf("browser: reload: %w", err)
	}
	return nil
}

func (e *EmbeddedPage) eval(ctx context.Context, js string, out any, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()
	res, err := e.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return fmt.Errorf("browser: eval: %w", err)
	}
	raw, err := json.Marshal(res.Value)
	if err != nil {
		return fmt.Errorf("browser: eval result: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("browser: eval result: %w", err)
	}
	return nil
}

// Close stops listening and closes the tab. Safe to call twice.
func (e *EmbeddedPage) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	e.cancel()
	return e.page.Close()
}
