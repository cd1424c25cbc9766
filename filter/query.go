package filter

import (
	"net/url"
	"strconv"
	"strings"
)

// Query parameter names understood on both sides of the bridge.
const (
	KeyCity           = "cidade"
	KeyAuctionType    = "tipo_leilao"
	KeyPriceMin       = "preco_min"
	KeyPriceMax       = "preco_max"
	KeySearchText     = "palavra_chave"
	KeyFGTS           = "fgts"
	KeyFinancing      = "financiamento"
	KeyInstallments   = "parcelamento"
	KeySecondAuction  = "segundo_leilao"
	KeyNeighborhood   = "bairro"
	KeyNeighborhoods  = "bairros"
	KeyNeighborhoodEN = "neighborhood"
)

// NeighborhoodAliases lists the neighborhood keys in priority order.
// The first alias that yields a non-empty list wins; aliases are never merged.
var NeighborhoodAliases = []string{KeyNeighborhood, KeyNeighborhoods, KeyNeighborhoodEN}

// FromURL parses rawURL and derives a snapshot from its query string.
// An unparseable URL yields an empty snapshot.
func FromURL(rawURL string) Snapshot {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Snapshot{}
	}
	return FromQuery(u.Query())
}

// FromQuery derives a snapshot from query parameters. Unknown keys are
// ignored and malformed values leave their field absent.
func FromQuery(q url.Values) Snapshot {
	var s Snapshot
	s.City = textParam(q, KeyCity)
	s.AuctionType = textParam(q, KeyAuctionType)
	s.SearchText = textParam(q, KeySearchText)
	s.PriceMin = numberParam(q, KeyPriceMin)
	s.PriceMax = numberParam(q, KeyPriceMax)
	s.FGTS = boolParam(q, KeyFGTS)
	s.Financing = boolParam(q, KeyFinancing)
	s.Installments = boolParam(q, KeyInstallments)
	s.HasSecondAuction = boolParam(q, KeySecondAuction)
	s.Neighborhoods = NeighborhoodsFromQuery(q)
	return s
}

// NeighborhoodsFromQuery applies the alias rule. Each alias may carry a
// comma-separated list and may be repeated (?bairro=A&bairro=B,C).
func NeighborhoodsFromQuery(q url.Values) []string {
	for _, key := range NeighborhoodAliases {
		var parts []string
		for _, v := range q[key] {
			parts = append(parts, strings.Split(v, ",")...)
		}
		if list := dedupe(parts); len(list) > 0 {
			return list
		}
	}
	return nil
}

func textParam(q url.Values, key string) *string {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil
	}
	return &v
}

// numberParam accepts "1500000", "1500000.50" and the comma-decimal form
// "1500000,50".
func numberParam(q url.Values, key string) *float64 {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil
	}
	if strings.Contains(v, ",") && !strings.Contains(v, ".") {
		v = strings.ReplaceAll(v, ",", ".")
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

func boolParam(q url.Values, key string) *bool {
	switch strings.ToLower(strings.TrimSpace(q.Get(key))) {
	case "1", "true", "sim", "on", "yes":
		return Bool(true)
	case "0", "false", "nao", "não", "off", "no":
		return Bool(false)
	}
	return nil
}

// dedupe trims, drops empties and removes duplicates, keeping first-seen order.
func dedupe(values []string) []string {
	var out []string
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
