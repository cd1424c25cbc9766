package filter

// Merge combines the host-page snapshot with the one reported by the
// embedded document.
//
// The embedded snapshot is the base. Neighborhoods come from the host
// whenever the host list is non-empty. Every other field keeps the embedded
// value when present and falls back to the host value otherwise.
func Merge(host, embedded Snapshot) Snapshot {
	out := embedded.Clone()
	h := host.Clone()

	if len(h.Neighborhoods) > 0 {
		out.Neighborhoods = h.Neighborhoods
	}
	out.City = firstSet(out.City, h.City)
	out.PriceMin = firstSet(out.PriceMin, h.PriceMin)
	out.PriceMax = firstSet(out.PriceMax, h.PriceMax)
	out.AuctionType = firstSet(out.AuctionType, h.AuctionType)
	out.SearchText = firstSet(out.SearchText, h.SearchText)
	out.FGTS = firstSet(out.FGTS, h.FGTS)
	out.Financing = firstSet(out.Financing, h.Financing)
	out.Installments = firstSet(out.Installments, h.Installments)
	out.HasSecondAuction = firstSet(out.HasSecondAuction, h.HasSecondAuction)
	return out
}

func firstSet[T any](a, b *T) *T {
	if a != nil {
		return a
	}
	return b
}
