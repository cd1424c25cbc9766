package message

import (
	"log/slog"
	"sync"
)

// Conn is one side of a cross-context link. Post never blocks: when the
// peer is closed or saturated the envelope is dropped and Post returns false.
// Inbox yields envelopes that already passed the origin check, in order.
type Conn interface {
	Post(env Envelope) bool
	Inbox() <-chan Envelope
}

// DefaultBuffer is the inbox capacity of a Pipe port.
const DefaultBuffer = 256

// Port is an in-memory Conn. Frames cross as JSON bytes so the two sides
// share no memory.
type Port struct {
	origin     string
	peerOrigin string
	peer       *Port
	logger     *slog.Logger

	mu     sync.RWMutex
	closed bool
	inbox  chan Envelope
}

// Pipe returns two connected ports: one for the controller context and one
// for the embedded context. Each stamps its own origin on outbound frames
// and only accepts frames stamped with the other's.
func Pipe(controllerOrigin, embeddedOrigin string, logger *slog.Logger) (controller, embedded *Port) {
	if logger == nil {
		logger = slog.Default()
	}
	controller = newPort(controllerOrigin, embeddedOrigin, logger)
	embedded = newPort(embeddedOrigin, controllerOrigin, logger)
	controller.peer = embedded
	embedded.peer = controller
	return controller, embedded
}

func newPort(origin, peerOrigin string, logger *slog.Logger) *Port {
	return &Port{
		origin:     origin,
		peerOrigin: peerOrigin,
		logger:     logger,
		inbox:      make(chan Envelope, DefaultBuffer),
	}
}

// Origin is the origin this port stamps on outbound frames.
func (p *Port) Origin() string { return p.origin }

// Post encodes env with this port's origin and hands it to the peer.
func (p *Port) Post(env Envelope) bool {
	frame, err := Encode(env, p.origin)
	if err != nil {
		p.logger.Debug("message: drop outbound envelope", "type", env.Type, "error", err)
		return false
	}
	return p.peer.Deliver(frame)
}

// Deliver is the receive side: any context may call it with a raw frame,
// which is accepted only if it carries the expected peer origin.
func (p *Port) Deliver(frame []byte) bool {
	env, err := Accept(frame, p.peerOrigin)
	if err != nil {
		p.logger.Debug("message: drop inbound frame", "origin", p.origin, "error", err)
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.inbox <- env:
		return true
	default:
		p.logger.Debug("message: inbox full, dropping", "origin", p.origin, "type", env.Type)
		return false
	}
}

// Inbox returns the channel of accepted envelopes. It is closed by Close.
func (p *Port) Inbox() <-chan Envelope { return p.inbox }

// Close stops delivery to this port. Safe to call more than once.
func (p *Port) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}
