package catalog

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/vitrine/bridge"
	"github.com/hazyhaar/vitrine/filter"
	"github.com/hazyhaar/vitrine/geocache"
	"github.com/hazyhaar/vitrine/internal/artifact"
	"github.com/hazyhaar/vitrine/internal/geocode"
	"github.com/hazyhaar/vitrine/internal/store"
	"github.com/hazyhaar/vitrine/selection"
	"github.com/hazyhaar/vitrine/shield"
)

// RouterOptions configures the HTTP surface.
type RouterOptions struct {
	// EmbeddedOrigin is admitted by the CSP frame-src directive.
	EmbeddedOrigin string
	RateLimits     map[string]shield.RateLimitConfig
	Logger         *slog.Logger
}

// Router returns the HTTP API. Endpoints that act on the catalog page read
// the host-page filters from the request's own query string.
func (c *Controller) Router(opts RouterOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = c.logger
	}
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(shield.Options{
		EmbeddedOrigin: opts.EmbeddedOrigin,
		RateLimits:     opts.RateLimits,
		Logger:         opts.Logger,
	}) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		s := c.State()
		writeJSON(w, 200, map[string]any{"status": "ok", "ready": s.Ready})
	})

	r.Route("/api/selection", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, 200, c.State())
		})
		r.Delete("/", func(w http.ResponseWriter, _ *http.Request) {
			c.ClearSelection()
			writeJSON(w, 200, c.State())
		})
		r.Post("/mode", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Active *bool `json:"active"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			if req.Active == nil {
				writeError(w, 400, errors.New("active is required"))
				return
			}
			writeJSON(w, 200, c.SetSelectionMode(*req.Active))
		})
		r.Post("/click", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				ItemID int64 `json:"itemId"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			res, err := c.Click(r.Context(), req.ItemID)
			if err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			writeJSON(w, 200, res)
		})
		r.Post("/all", func(w http.ResponseWriter, r *http.Request) {
			res, err := c.SelectAll(r.Context(), r.URL.Query())
			if err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			writeJSON(w, 200, res)
		})
	})

	r.Get("/api/filters", func(w http.ResponseWriter, r *http.Request) {
		res := c.Filters(r.Context(), r.URL.Query())
		writeJSON(w, 200, map[string]any{"filters": res.Filters, "outcome": res.Outcome})
	})

	r.Post("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Kind string `json:"kind"`
		}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
		}
		kind, err := artifact.ParseKind(req.Kind)
		if err != nil {
			writeError(w, 400, err)
			return
		}
		gen, err := c.Generate(r.Context(), r.URL.Query(), kind)
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}
		writeJSON(w, 202, gen)
	})

	r.Get("/api/geocode", func(w http.ResponseWriter, r *http.Request) {
		coords, err := c.Geocode(r.Context(), addressParam(r))
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}
		writeJSON(w, 200, coords)
	})

	r.Get("/api/map", func(w http.ResponseWriter, r *http.Request) {
		img, err := c.MapPNG(r.Context(), addressParam(r))
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "private, max-age=300")
		w.Write(img)
	})

	r.Route("/api/items", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			items, err := c.store.List(r.Context(), filter.FromQuery(q), queryInt(q.Get("limit"), 50), queryInt(q.Get("offset"), 0))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			if items == nil {
				items = []*store.Item{}
			}
			writeJSON(w, 200, items)
		})
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var it store.Item
			if err := json.NewDecoder(r.Body).Decode(&it); err != nil {
				writeError(w, 400, err)
				return
			}
			if err := c.store.Insert(r.Context(), &it); err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			writeJSON(w, 201, it)
		})
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := itemID(w, r)
			if !ok {
				return
			}
			it, err := c.store.Get(r.Context(), id)
			if err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			writeJSON(w, 200, it)
		})
		r.Put("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := itemID(w, r)
			if !ok {
				return
			}
			var it store.Item
			if err := json.NewDecoder(r.Body).Decode(&it); err != nil {
				writeError(w, 400, err)
				return
			}
			it.ID = id
			if err := c.store.Update(r.Context(), &it); err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			writeJSON(w, 200, it)
		})
		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := itemID(w, r)
			if !ok {
				return
			}
			if err := c.store.Delete(r.Context(), id); err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "deleted"})
		})
	})

	return r
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	var open *geocode.ErrCircuitOpen
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, bridge.ErrUnknownItem),
		errors.Is(err, geocode.ErrNoResult):
		return http.StatusNotFound
	case errors.Is(err, ErrModeInactive):
		return http.StatusConflict
	case errors.Is(err, selection.ErrSelectionTooLarge):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNoClicker),
		errors.Is(err, ErrNoResolver),
		errors.Is(err, geocache.ErrNoRenderer),
		errors.As(err, &open):
		return http.StatusServiceUnavailable
	case errors.Is(err, geocache.ErrEmptyAddress):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func addressParam(r *http.Request) string {
	q := r.URL.Query()
	if a := q.Get("address"); a != "" {
		return a
	}
	return q.Get("endereco")
}

func itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, 400, errors.New("invalid item id"))
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return def
	}
	return v
}
