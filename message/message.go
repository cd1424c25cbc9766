// Package message defines the envelope protocol spoken between the catalog
// controller and the bridge living inside the embedded document.
//
// Envelopes travel as JSON frames. The sender's transport stamps its own
// origin on every frame; receivers drop any frame whose origin is not the
// expected peer, or that exceeds MaxFrameSize.
package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hazyhaar/vitrine/filter"
)

// Type names an envelope kind.
type Type string

const (
	GetActiveFilters      Type = "GET_ACTIVE_FILTERS"
	ActiveFiltersResponse Type = "ACTIVE_FILTERS_RESPONSE"
	PropertyCardClick     Type = "PROPERTY_CARD_CLICK"
	UpdateSelections      Type = "UPDATE_SELECTIONS"
	SetSelectionMode      Type = "SET_SELECTION_MODE"
	BridgeReady           Type = "BRIDGE_READY"
)

// MaxFrameSize bounds an encoded envelope. Larger frames are dropped.
const MaxFrameSize = 1 << 20

var (
	ErrFrameTooLarge = errors.New("message: frame too large")
	ErrForeignOrigin = errors.New("message: unexpected origin")
)

// Envelope is the unit of cross-context traffic.
type Envelope struct {
	Type    Type            `json:"type"`
	Origin  string          `json:"origin,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// FiltersRequest is the GET_ACTIVE_FILTERS payload.
type FiltersRequest struct {
	RequestID string `json:"requestId,omitempty"`
}

// FiltersResponse is the ACTIVE_FILTERS_RESPONSE payload.
type FiltersResponse struct {
	Filters   filter.Snapshot `json:"filters"`
	RequestID string          `json:"requestId,omitempty"`
}

// CardClick is the PROPERTY_CARD_CLICK payload. IsSelected is the bridge's
// view after the toggle; the controller treats it as the requested state.
type CardClick struct {
	ItemID     int64 `json:"itemId"`
	IsSelected bool  `json:"isSelected"`
}

// Selections is the UPDATE_SELECTIONS payload: the complete selection set.
type Selections struct {
	SelectedIDs []int64 `json:"selectedIds"`
}

// SelectionMode is the SET_SELECTION_MODE payload.
type SelectionMode struct {
	Active bool `json:"active"`
}

// Ready is the BRIDGE_READY payload, posted each time a document loads.
type Ready struct {
	URL string `json:"url"`
}

// New builds an envelope with payload encoded as JSON.
func New(t Type, payload any) (Envelope, error) {
	env := Envelope{Type: t}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("message: encode %s: %w", t, err)
	}
	env.Payload = raw
	return env, nil
}

// MustNew is New for payload types that always encode.
func MustNew(t Type, payload any) Envelope {
	env, err := New(t, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// Decode unmarshals the payload of env into a T.
func Decode[T any](env Envelope) (T, error) {
	var v T
	if len(env.Payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		return v, fmt.Errorf("message: decode %s: %w", env.Type, err)
	}
	return v, nil
}

// Encode stamps origin on env and returns its frame.
func Encode(env Envelope, origin string) ([]byte, error) {
	env.Origin = origin
	frame, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("message: encode frame: %w", err)
	}
	if len(frame) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	return frame, nil
}

// Accept parses a received frame and checks its origin against want.
func Accept(frame []byte, want string) (Envelope, error) {
	if len(frame) > MaxFrameSize {
		return Envelope{}, ErrFrameTooLarge
	}
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("message: parse frame: %w", err)
	}
	if env.Origin != want {
		return Envelope{}, fmt.Errorf("%w: got %q, want %q", ErrForeignOrigin, env.Origin, want)
	}
	if env.Type == "" {
		return Envelope{}, errors.New("message: frame has no type")
	}
	return env, nil
}
