// Command vitrine serves the catalog selection controller over HTTP, or
// over MCP on stdio with -mcp.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/redis/go-redis/v9"

	"github.com/hazyhaar/vitrine/bridge"
	"github.com/hazyhaar/vitrine/catalog"
	"github.com/hazyhaar/vitrine/geocache"
	"github.com/hazyhaar/vitrine/internal/artifact"
	"github.com/hazyhaar/vitrine/internal/browser"
	"github.com/hazyhaar/vitrine/internal/geocode"
	"github.com/hazyhaar/vitrine/internal/store"
	"github.com/hazyhaar/vitrine/message"
	"github.com/hazyhaar/vitrine/shield"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "vitrine.yaml", "path to the YAML configuration")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	mcpStdio := flag.Bool("mcp", false, "serve MCP on stdin/stdout instead of HTTP")
	flag.Parse()

	var lvl slog.Level
	switch *logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// stdout belongs to MCP in -mcp mode.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg, err := catalog.LoadFile(*configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *mcpStdio, logger); err != nil {
		logger.Error("vitrine", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *catalog.Config, mcpStdio bool, logger *slog.Logger) error {
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	// Coordinates: in-memory, fronting Redis when configured.
	var coords geocache.CoordinateStore = geocache.NewMemoryStore(
		geocache.NewDataCache[geocache.Coordinates](cfg.Cache.DataTTL, nil))
	if cfg.Cache.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, continuing with local cache only", "addr", cfg.Cache.RedisAddr, "error", err)
		}
		coords = geocache.Tiered{
			Local:  coords,
			Shared: geocache.NewRedisStore(rdb, cfg.Cache.RedisPrefix, cfg.Cache.DataTTL, logger),
		}
	}

	geocoder, err := geocode.New(geocode.Config{
		Endpoint:         cfg.Geocoder.Endpoint,
		FallbackEndpoint: cfg.Geocoder.FallbackEndpoint,
		Timeout:          cfg.Geocoder.Timeout,
		MaxRetries:       cfg.Geocoder.MaxRetries,
		UserAgent:        cfg.Geocoder.UserAgent,
		Logger:           logger,
	})
	if err != nil {
		return err
	}
	resolverCfg := geocache.ResolverConfig{Geocoder: geocoder, Coords: coords, Logger: logger}

	var (
		conn    message.Conn
		clicker catalog.Clicker
	)
	if cfg.Browser.Enabled {
		mode, err := browser.ParseMode(cfg.Browser.Stealth)
		if err != nil {
			return err
		}
		mgr := browser.NewManager(browser.Config{
			RemoteURL:        cfg.Browser.Remote,
			Mode:             mode,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			Logger:           logger,
		})
		if err := mgr.Start(ctx); err != nil {
			return err
		}
		defer mgr.Close()

		maps := geocache.NewResourceCache[geocache.MapHandle](geocache.ResourceConfig{
			TTL:           cfg.Cache.ResourceTTL,
			SweepInterval: cfg.Cache.SweepInterval,
			Logger:        logger,
		})
		defer maps.Clear()
		go maps.Run(ctx)
		resolverCfg.Maps = maps
		resolverCfg.Renderer = browser.NewMapRenderer(mgr, browser.MapConfig{
			TileURL: cfg.Map.TileURL,
			Width:   cfg.Map.Width,
			Height:  cfg.Map.Height,
			Zoom:    cfg.Map.Zoom,
		})

		if cfg.CatalogURL != "" {
			page, err := mgr.OpenEmbedded(ctx, browser.EmbeddedConfig{
				URL:              cfg.CatalogURL,
				ControllerOrigin: cfg.Origins.Controller,
				EmbeddedOrigin:   cfg.Origins.Embedded,
				ItemAttr:         cfg.Selection.ItemAttr,
				SelectedClass:    cfg.Selection.SelectedClass,
				Logger:           logger,
			})
			if err != nil {
				return err
			}
			defer page.Close()
			conn, clicker = page, page
		}
	}
	if conn == nil {
		ctrlPort, embPort := message.Pipe(cfg.Origins.Controller, cfg.Origins.Embedded, logger)
		b := bridge.New(embPort, bridge.Config{
			ItemAttr:      cfg.Selection.ItemAttr,
			SelectedClass: cfg.Selection.SelectedClass,
			Logger:        logger,
		})
		go b.Run(ctx)
		if cfg.CatalogURL != "" {
			go func() {
				f := &bridge.Fetcher{UserAgent: cfg.Geocoder.UserAgent}
				if err := b.LoadURL(ctx, f, cfg.CatalogURL); err != nil {
					logger.Error("load catalog", "url", cfg.CatalogURL, "error", err)
				}
			}()
		}
		conn, clicker = ctrlPort, b
	}

	var gen artifact.Generator = artifact.LogOnly(logger)
	if cfg.Artifact.WebhookURL != "" {
		w, err := artifact.NewWebhook(cfg.Artifact.WebhookURL, artifact.WithWebhookLogger(logger))
		if err != nil {
			return err
		}
		gen = w
	}

	ctrl, err := catalog.New(catalog.Deps{
		Conn:      conn,
		Store:     st,
		Clicker:   clicker,
		Resolver:  geocache.NewResolver(resolverCfg),
		Generator: gen,
	}, catalog.Options{
		CaptureTimeout: cfg.CaptureTimeout,
		MaxItems:       cfg.Selection.MaxItems,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	go ctrl.Run(ctx)

	if mcpStdio {
		srv := mcp.NewServer(&mcp.Implementation{Name: "vitrine", Version: version}, nil)
		ctrl.RegisterMCP(srv)
		logger.Info("vitrine: serving MCP on stdio")
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			return fmt.Errorf("mcp: %w", err)
		}
		return nil
	}

	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: ctrl.Router(catalog.RouterOptions{
			EmbeddedOrigin: cfg.Origins.Embedded,
			// Nominatim's usage policy allows one request per second.
			RateLimits: map[string]shield.RateLimitConfig{
				"GET /api/geocode": {MaxRequests: 1, Window: time.Second},
				"GET /api/map":     {MaxRequests: 1, Window: time.Second},
			},
			Logger: logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("vitrine: listening", "addr", cfg.Listen, "catalog", cfg.CatalogURL, "browser", cfg.Browser.Enabled)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("vitrine: shutting down")
	return srv.Shutdown(shutdownCtx)
}
