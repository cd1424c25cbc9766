// Package capture implements the controller half of filter capture: derive
// the host page's snapshot, ask the embedded bridge for its own, and merge
// the two if the answer arrives before the deadline.
package capture

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/hazyhaar/vitrine/filter"
	"github.com/hazyhaar/vitrine/idgen"
	"github.com/hazyhaar/vitrine/message"
)

// DefaultTimeout bounds the wait for ACTIVE_FILTERS_RESPONSE.
const DefaultTimeout = 2 * time.Second

// Poster sends envelopes to the embedded bridge.
type Poster interface {
	Post(env message.Envelope) bool
}

// Config for creating a Capturer.
type Config struct {
	Timeout time.Duration
	NewID   idgen.Generator
	Logger  *slog.Logger
}

// Outcome says where a captured snapshot came from.
type Outcome string

const (
	OutcomeMerged   Outcome = "merged"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeNoPeer   Outcome = "no_peer"
	OutcomeCanceled Outcome = "canceled"
)

// Result is a captured snapshot.
type Result struct {
	Filters filter.Snapshot
	Outcome Outcome
}

// Capturer correlates GET_ACTIVE_FILTERS requests with their responses.
type Capturer struct {
	poster Poster
	cfg    Config

	mu      sync.Mutex
	waiters map[string]chan filter.Snapshot
}

// New creates a Capturer that posts through p. Responses must be handed
// to Deliver by whoever drains the controller's inbox.
func New(p Poster, cfg Config) *Capturer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.NewID == nil {
		cfg.NewID = idgen.Prefixed("cap_", idgen.UUIDv7())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Capturer{
		poster:  p,
		cfg:     cfg,
		waiters: make(map[string]chan filter.Snapshot),
	}
}

// Capture returns the active filters. hostQuery is the query string of the
// page hosting the controller. The host snapshot is returned unchanged when
// the bridge does not answer within the timeout or ctx ends first.
func (c *Capturer) Capture(ctx context.Context, hostQuery url.Values) Result {
	host := filter.FromQuery(hostQuery)

	id := c.cfg.NewID()
	ch := make(chan filter.Snapshot, 1)
	c.mu.Lock()
	c.waiters[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiters, id)
		c.mu.Unlock()
	}()

	env := message.MustNew(message.GetActiveFilters, message.FiltersRequest{RequestID: id})
	if !c.poster.Post(env) {
		c.cfg.Logger.Debug("capture: bridge unreachable, using host filters", "request_id", id)
		return Result{Filters: host, Outcome: OutcomeNoPeer}
	}

	timer := time.NewTimer(c.cfg.Timeout)
	defer timer.Stop()

	select {
	case embedded := <-ch:
		return Result{Filters: filter.Merge(host, embedded), Outcome: OutcomeMerged}
	case <-timer.C:
		c.cfg.Logger.Debug("capture: bridge did not answer in time", "request_id", id, "timeout", c.cfg.Timeout)
		return Result{Filters: host, Outcome: OutcomeTimeout}
	case <-ctx.Done():
		return Result{Filters: host, Outcome: OutcomeCanceled}
	}
}

// Deliver routes a response to its waiter. A response without a request ID
// satisfies every pending capture. Late or unknown responses are dropped.
func (c *Capturer) Deliver(resp message.FiltersResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if resp.RequestID == "" {
		for _, ch := range c.waiters {
			offer(ch, resp.Filters.Clone())
		}
		return
	}
	ch, ok := c.waiters[resp.RequestID]
	if !ok {
		c.cfg.Logger.Debug("capture: response for no pending request", "request_id", resp.RequestID)
		return
	}
	offer(ch, resp.Filters)
}

// Pending returns the number of captures waiting for a response.
func (c *Capturer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func offer(ch chan filter.Snapshot, s filter.Snapshot) {
	select {
	case ch <- s:
	default:
	}
}
