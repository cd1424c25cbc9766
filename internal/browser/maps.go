package browser

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"math"
	"strconv"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/vitrine/geocache"
)

const tileSize = 256

// MapConfig controls rendered maps.
type MapConfig struct {
	// TileURL is a slippy-map template with {z}, {x} and {y} placeholders.
	TileURL string
	Width   int
	Height  int
	Zoom    int
}

func (c *MapConfig) applyDefaults() {
	if c.TileURL == "" {
		c.TileURL = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"
	}
	if c.Width <= 0 {
		c.Width = 800
	}
	if c.Height <= 0 {
		c.Height = 600
	}
	if c.Zoom <= 0 || c.Zoom > 19 {
		c.Zoom = 16
	}
}

// MapRenderer renders maps as live Chrome tabs. It satisfies
// geocache.Renderer; the resource cache owns every handle it returns.
type MapRenderer struct {
	mgr *Manager
	cfg MapConfig
}

// NewMapRenderer creates a renderer backed by mgr.
func NewMapRenderer(mgr *Manager, cfg MapConfig) *MapRenderer {
	cfg.applyDefaults()
	return &MapRenderer{mgr: mgr, cfg: cfg}
}

// Render opens a tab showing the tiles around c with a marker on it.
func (r *MapRenderer) Render(ctx context.Context, c geocache.Coordinates) (geocache.MapHandle, error) {
	doc, err := mapDocument(r.cfg, c)
	if err != nil {
		return nil, err
	}
	page, err := r.mgr.newPage(false)
	if err != nil {
		return nil, err
	}
	if err := setViewport(page, r.cfg.Width, r.cfg.Height); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: map viewport: %w", err)
	}
	if err := page.Context(ctx).SetDocumentContent(doc); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: map document: %w", err)
	}
	h := &MapHandle{page: page, coords: c}
	if err := h.waitTiles(ctx); err != nil {
		r.mgr.cfg.Logger.Warn("browser: map tiles incomplete", "lat", c.Lat, "lon", c.Lon, "error", err)
	}
	return h, nil
}

// MapHandle is one rendered map tab.
type MapHandle struct {
	page   *rod.Page
	coords geocache.Coordinates
}

// Coordinates is the map centre.
func (h *MapHandle) Coordinates() geocache.Coordinates { return h.coords }

// PNG captures the viewport.
func (h *MapHandle) PNG(ctx context.Context) ([]byte, error) {
	img, err := h.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: map screenshot: %w", err)
	}
	return img, nil
}

// Dispose closes the tab.
func (h *MapHandle) Dispose() error {
	return h.page.Close()
}

func (h *MapHandle) waitTiles(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, NavigateTimeout)
	defer cancel()
	_, err := h.page.Context(ctx).Eval(`() => Promise.all(Array.from(document.images).map(
		(img) => img.complete ? 0 : new Promise((done) => { img.onload = img.onerror = done; })))`)
	return err
}

// tile is one positioned slippy-map tile.
type tile struct {
	URL       string
	Left, Top int
}

// tilePoint converts coordinates to fractional tile numbers at zoom z.
func tilePoint(lat, lon float64, z int) (x, y float64) {
	n := math.Exp2(float64(z))
	lat = math.Max(-85.05112878, math.Min(85.05112878, lat))
	rad := lat * math.Pi / 180
	x = (lon + 180) / 360 * n
	y = (1 - math.Asinh(math.Tan(rad))/math.Pi) / 2 * n
	return x, y
}

// layoutTiles returns the tiles covering a width×height viewport centred on
// (lat, lon), positioned in viewport pixels.
func layoutTiles(cfg MapConfig, lat, lon float64) []tile {
	fx, fy := tilePoint(lat, lon, cfg.Zoom)
	cx, cy := fx*tileSize, fy*tileSize
	originX := cx - float64(cfg.Width)/2
	originY := cy - float64(cfg.Height)/2
	n := 1 << cfg.Zoom

	var tiles []tile
	for ty := int(math.Floor(originY / tileSize)); float64(ty*tileSize) < originY+float64(cfg.Height); ty++ {
		if ty < 0 || ty >= n {
			continue
		}
		for tx := int(math.Floor(originX / tileSize)); float64(tx*tileSize) < originX+float64(cfg.Width); tx++ {
			wx := ((tx % n) + n) % n
			tiles = append(tiles, tile{
				URL:  tileURL(cfg.TileURL, cfg.Zoom, wx, ty),
				Left: int(math.Round(float64(tx*tileSize) - originX)),
				Top:  int(math.Round(float64(ty*tileSize) - originY)),
			})
		}
	}
	return tiles
}

func tileURL(tmpl string, z, x, y int) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
	).Replace(tmpl)
}

var mapTemplate = template.Must(template.New("map").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><style>
html,body{margin:0;padding:0;overflow:hidden;background:#ddd}
#map{position:relative;width:{{.Width}}px;height:{{.Height}}px}
#map img{position:absolute;width:256px;height:256px}
#pin{position:absolute;left:{{.PinX}}px;top:{{.PinY}}px;width:16px;height:16px;margin:-8px 0 0 -8px;border-radius:50%;background:#d32f2f;border:3px solid #fff;box-shadow:0 0 4px #000}
</style></head><body><div id="map">
{{range .Tiles}}<img src="{{.URL}}" style="left:{{.Left}}px;top:{{.Top}}px" alt="">
{{end}}<div id="pin" title="{{.Label}}"></div></div></body></html>`))

func mapDocument(cfg MapConfig, c geocache.Coordinates) (string, error) {
	var buf bytes.Buffer
	err := mapTemplate.Execute(&buf, struct {
		Width, Height int
		PinX, PinY    int
		Label         string
		Tiles         []tile
	}{
		Width:  cfg.Width,
		Height: cfg.Height,
		PinX:   cfg.Width / 2,
		PinY:   cfg.Height / 2,
		Label:  c.DisplayName,
		Tiles:  layoutTiles(cfg, c.Lat, c.Lon),
	})
	if err != nil {
		return "", fmt.Errorf("browser: map template: %w", err)
	}
	return buf.String(), nil
}
