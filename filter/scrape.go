package filter

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// neighborhoodKeywords identify filter controls that carry neighborhoods.
var neighborhoodKeywords = []string{"bairro", "neighborhood"}

var textPolicy = bluemonday.StrictPolicy()

// Strategy is one DOM heuristic for discovering neighborhood selections.
// Find returns false when the strategy found nothing.
type Strategy struct {
	Name string
	Find func(doc *html.Node) ([]string, bool)
}

// DefaultStrategies is the ordered list used when the URL carries no
// neighborhood. The first strategy with a non-empty result wins.
var DefaultStrategies = []Strategy{
	{Name: "checked-input-name", Find: checkedInputs(func(n *html.Node) bool {
		return containsKeyword(attr(n, "name"))
	})},
	{Name: "checked-input-id", Find: checkedInputs(func(n *html.Node) bool {
		return containsKeyword(attr(n, "id"))
	})},
	{Name: "checked-input-data", Find: checkedInputs(dataAttrNamesKeyword)},
	{Name: "selected-option", Find: selectedOptions},
}

// ScrapeNeighborhoods runs strategies in order and returns the first
// non-empty result, deduplicated and reduced to plain text. Nil strategies
// means DefaultStrategies.
func ScrapeNeighborhoods(doc *html.Node, strategies []Strategy) []string {
	if doc == nil {
		return nil
	}
	if strategies == nil {
		strategies = DefaultStrategies
	}
	for _, st := range strategies {
		values, ok := st.Find(doc)
		if !ok {
			continue
		}
		if list := dedupe(sanitize(values)); len(list) > 0 {
			return list
		}
	}
	return nil
}

// FromDocument derives the snapshot an embedded document reports: its URL
// query first, then the DOM scrape when the URL names no neighborhood.
func FromDocument(pageURL string, doc *html.Node, strategies []Strategy) Snapshot {
	s := FromURL(pageURL)
	if len(s.Neighborhoods) == 0 {
		s.Neighborhoods = ScrapeNeighborhoods(doc, strategies)
	}
	return s
}

func checkedInputs(match func(*html.Node) bool) func(*html.Node) ([]string, bool) {
	return func(doc *html.Node) ([]string, bool) {
		var out []string
		walk(doc, func(n *html.Node) {
			if n.Type != html.ElementNode || n.DataAtom != atom.Input {
				return
			}
			if !hasAttr(n, "checked") || !match(n) {
				return
			}
			if v := attr(n, "value"); v != "" {
				out = append(out, v)
			}
		})
		return out, len(out) > 0
	}
}

// selectedOptions collects <option selected> elements whose nearest
// container (select, fieldset, div...) names a neighborhood control.
func selectedOptions(doc *html.Node) ([]string, bool) {
	var out []string
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.DataAtom != atom.Option || !hasAttr(n, "selected") {
			return
		}
		if !insideNeighborhoodContainer(n) {
			return
		}
		v := attr(n, "value")
		if v == "" {
			v = textContent(n)
		}
		if v != "" {
			out = append(out, v)
		}
	})
	return out, len(out) > 0
}

func insideNeighborhoodContainer(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if containsKeyword(attr(p, "name")) || containsKeyword(attr(p, "id")) || dataAttrNamesKeyword(p) {
			return true
		}
	}
	return false
}

func dataAttrNamesKeyword(n *html.Node) bool {
	for _, a := range n.Attr {
		if !strings.HasPrefix(a.Key, "data-") {
			continue
		}
		if containsKeyword(a.Key) || containsKeyword(a.Val) {
			return true
		}
	}
	return false
}

func containsKeyword(s string) bool {
	s = strings.ToLower(s)
	for _, kw := range neighborhoodKeywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func sanitize(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(v))))
	}
	return out
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return strings.Join(strings.Fields(b.String()), " ")
}
