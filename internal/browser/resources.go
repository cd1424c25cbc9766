package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockResources fails requests whose resource type is listed in types.
func blockResources(page *rod.Page, types []string) {
	blocked := blockSet(types)
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if blocked[strings.ToLower(string(h.Request.Type()))] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}

// blockSet maps configuration names (plural or CDP singular) to CDP
// resource types.
func blockSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		switch t = strings.ToLower(strings.TrimSpace(t)); t {
		case "images", "image":
			set["image"] = true
		case "fonts", "font":
			set["font"] = true
		case "stylesheets", "stylesheet", "css":
			set["stylesheet"] = true
		case "":
		default:
			set[strings.TrimSuffix(t, "s")] = true
			set[t] = true
		}
	}
	return set
}
