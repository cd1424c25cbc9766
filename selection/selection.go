// Package selection holds the controller's authoritative selection set and
// keeps the embedded bridge's marks in step with it by pushing the full set
// after every change.
package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/hazyhaar/vitrine/filter"
	"github.com/hazyhaar/vitrine/message"
)

// DefaultMaxItems caps a toggle-all result.
const DefaultMaxItems = 5000

// ErrSelectionTooLarge is returned by ToggleAll when the scope matches more
// items than the configured cap. The selection is left unchanged.
var ErrSelectionTooLarge = errors.New("selection: too many items in scope")

// Poster sends envelopes to the embedded bridge.
type Poster interface {
	Post(env message.Envelope) bool
}

// IDSource lists the item IDs matching a page-level scope.
type IDSource interface {
	IDs(ctx context.Context, scope filter.Snapshot) ([]int64, error)
}

// Config for creating a Synchronizer.
type Config struct {
	MaxItems int
	Logger   *slog.Logger
}

// Synchronizer is the only writer of the selection set.
type Synchronizer struct {
	poster Poster
	source IDSource
	cfg    Config

	mu  sync.Mutex
	set map[int64]struct{}
}

// New creates an empty Synchronizer.
func New(p Poster, src IDSource, cfg Config) *Synchronizer {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Synchronizer{
		poster: p,
		source: src,
		cfg:    cfg,
		set:    make(map[int64]struct{}),
	}
}

// HandleClick applies a PROPERTY_CARD_CLICK: the item is added when the
// bridge reports it selected and removed otherwise. The full set is pushed
// back either way.
func (s *Synchronizer) HandleClick(c message.CardClick) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.IsSelected {
		s.set[c.ItemID] = struct{}{}
	} else {
		delete(s.set, c.ItemID)
	}
	return s.pushLocked()
}

// ToggleResult reports the effect of ToggleAll.
type ToggleResult struct {
	// Selected is true when the scope was selected, false when the
	// selection was cleared because the scope was already fully selected.
	Selected bool    `json:"selected"`
	Matched  int     `json:"matched"`
	IDs      []int64 `json:"selectedIds"`
}

// ToggleAll selects every item matching scope, or clears the selection if
// all of them are already selected. An empty scope leaves the selection
// untouched and pushes nothing.
func (s *Synchronizer) ToggleAll(ctx context.Context, scope filter.Snapshot) (ToggleResult, error) {
	ids, err := s.source.IDs(ctx, scope)
	if err != nil {
		return ToggleResult{}, fmt.Errorf("selection: toggle all: %w", err)
	}
	if len(ids) > s.cfg.MaxItems {
		return ToggleResult{}, fmt.Errorf("%w: %d matched, limit %d", ErrSelectionTooLarge, len(ids), s.cfg.MaxItems)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) == 0 {
		s.cfg.Logger.Debug("selection: toggle all matched nothing")
		return ToggleResult{Matched: 0, IDs: s.sortedLocked()}, nil
	}

	all := true
	for _, id := range ids {
		if _, ok := s.set[id]; !ok {
			all = false
			break
		}
	}
	s.set = make(map[int64]struct{}, len(ids))
	if !all {
		for _, id := range ids {
			s.set[id] = struct{}{}
		}
	}
	s.cfg.Logger.Debug("selection: toggle all", "matched", len(ids), "selected", !all)
	return ToggleResult{Selected: !all, Matched: len(ids), IDs: s.pushLocked()}, nil
}

// Clear empties the selection and pushes the empty set.
func (s *Synchronizer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.set)
	s.pushLocked()
}

// Push re-sends the current set without changing it.
func (s *Synchronizer) Push() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushLocked()
}

// IDs returns the selection in ascending order.
func (s *Synchronizer) IDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// Contains reports whether id is selected.
func (s *Synchronizer) Contains(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.set[id]
	return ok
}

// Len returns the selection size.
func (s *Synchronizer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.set)
}

func (s *Synchronizer) sortedLocked() []int64 {
	ids := make([]int64, 0, len(s.set))
	for id := range s.set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// pushLocked posts UPDATE_SELECTIONS while holding mu so pushes leave in
// the order the mutations happened.
func (s *Synchronizer) pushLocked() []int64 {
	ids := s.sortedLocked()
	if !s.poster.Post(message.MustNew(message.UpdateSelections, message.Selections{SelectedIDs: ids})) {
		s.cfg.Logger.Debug("selection: push dropped", "count", len(ids))
	}
	return ids
}
