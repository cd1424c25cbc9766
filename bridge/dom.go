package bridge

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type item struct {
	id   int64
	node *html.Node
}

// items lists element nodes carrying a parseable item ID, in document order.
func items(doc *html.Node, attrName string) []item {
	var out []item
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if id, ok := itemID(n, attrName); ok {
			out = append(out, item{id: id, node: n})
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if doc != nil {
		walk(doc)
	}
	return out
}

func itemID(n *html.Node, attrName string) (int64, bool) {
	if n.Type != html.ElementNode {
		return 0, false
	}
	for _, a := range n.Attr {
		if a.Key != attrName {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(a.Val), 10, 64)
		return id, err == nil
	}
	return 0, false
}

// enclosingItem walks from target up to the nearest item element.
func enclosingItem(target *html.Node, attrName string) (*html.Node, int64, bool) {
	for n := target; n != nil; n = n.Parent {
		if id, ok := itemID(n, attrName); ok {
			return n, id, true
		}
	}
	return nil, 0, false
}

func findBody(doc *html.Node) *html.Node {
	if doc == nil {
		return nil
	}
	if doc.Type == html.ElementNode && doc.DataAtom == atom.Body {
		return doc
	}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

func classes(n *html.Node) []string {
	for _, a := range n.Attr {
		if a.Key == "class" {
			return strings.Fields(a.Val)
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range classes(n) {
		if c == class {
			return true
		}
	}
	return false
}

// setClass adds or removes class on n, leaving other classes in place.
func setClass(n *html.Node, class string, on bool) {
	if hasClass(n, class) == on {
		return
	}
	list := classes(n)
	if on {
		list = append(list, class)
	} else {
		kept := list[:0]
		for _, c := range list {
			if c != class {
				kept = append(kept, c)
			}
		}
		list = kept
	}
	value := strings.Join(list, " ")
	for i, a := range n.Attr {
		if a.Key == "class" {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: "class", Val: value})
}
