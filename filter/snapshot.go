// Package filter models the search criteria active on a catalog page.
//
// A Snapshot is an attribute bag where every field is optional: a nil pointer
// or an empty slice means "unconstrained", never false or zero. Snapshots are
// derived from URL query strings (FromQuery, FromURL) and from a rendered DOM
// (ScrapeNeighborhoods), and two of them are combined with Merge.
package filter

import "slices"

// Snapshot is the set of filters active at one point in time.
type Snapshot struct {
	City             *string  `json:"city,omitempty"`
	Neighborhoods    []string `json:"neighborhoods,omitempty"`
	PriceMin         *float64 `json:"priceMin,omitempty"`
	PriceMax         *float64 `json:"priceMax,omitempty"`
	AuctionType      *string  `json:"auctionType,omitempty"`
	SearchText       *string  `json:"searchText,omitempty"`
	FGTS             *bool    `json:"fgts,omitempty"`
	Financing        *bool    `json:"financing,omitempty"`
	Installments     *bool    `json:"installments,omitempty"`
	HasSecondAuction *bool    `json:"hasSecondAuction,omitempty"`
}

// IsEmpty reports whether the snapshot constrains nothing.
func (s Snapshot) IsEmpty() bool {
	return s.City == nil && len(s.Neighborhoods) == 0 &&
		s.PriceMin == nil && s.PriceMax == nil &&
		s.AuctionType == nil && s.SearchText == nil &&
		s.FGTS == nil && s.Financing == nil &&
		s.Installments == nil && s.HasSecondAuction == nil
}

// Clone returns a deep copy. Snapshots cross context boundaries by value;
// a clone shares no pointers with the original.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		City:             clonePtr(s.City),
		Neighborhoods:    slices.Clone(s.Neighborhoods),
		PriceMin:         clonePtr(s.PriceMin),
		PriceMax:         clonePtr(s.PriceMax),
		AuctionType:      clonePtr(s.AuctionType),
		SearchText:       clonePtr(s.SearchText),
		FGTS:             clonePtr(s.FGTS),
		Financing:        clonePtr(s.Financing),
		Installments:     clonePtr(s.Installments),
		HasSecondAuction: clonePtr(s.HasSecondAuction),
	}
}

// String returns a pointer to v, for building snapshots in code.
func String(v string) *string { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
