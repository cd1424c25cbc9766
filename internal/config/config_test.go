package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
origins:
  controller: https://painel.example.com
catalog_url: https://catalogo.example.com/imoveis?cidade=Rio
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Origins.Embedded != "https://catalogo.example.com" {
		t.Errorf("embedded origin: got %q", cfg.Origins.Embedded)
	}
	if cfg.CaptureTimeout != 2*time.Second {
		t.Errorf("capture timeout: got %v", cfg.CaptureTimeout)
	}
	if cfg.Cache.DataTTL != 24*time.Hour || cfg.Cache.ResourceTTL != 30*time.Minute || cfg.Cache.SweepInterval != 10*time.Minute {
		t.Errorf("cache: got %+v", cfg.Cache)
	}
	if cfg.Selection.MaxItems != 5000 || cfg.Selection.ItemAttr != "data-property-id" {
		t.Errorf("selection: got %+v", cfg.Selection)
	}
	if cfg.Listen != ":8080" || cfg.Browser.Stealth != "headless" {
		t.Errorf("listen=%q stealth=%q", cfg.Listen, cfg.Browser.Stealth)
	}
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(`
listen: 127.0.0.1:9000
origins:
  controller: http://localhost:9000
  embedded: http://localhost:9100
capture_timeout: 500ms
selection:
  max_items: 200
cache:
  data_ttl: 1h
  redis_addr: 127.0.0.1:6379
browser:
  enabled: true
  stealth: headful
  resource_blocking: [image, font]
artifact:
  webhook_url: http://localhost:9200/render
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CaptureTimeout != 500*time.Millisecond || cfg.Selection.MaxItems != 200 || cfg.Cache.DataTTL != time.Hour {
		t.Fatalf("got %+v", cfg)
	}
	if !cfg.Browser.Enabled || len(cfg.Browser.ResourceBlocking) != 2 {
		t.Fatalf("browser: %+v", cfg.Browser)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing controller": `catalog_url: https://c.example.com/`,
		"origin with path":   "origins:\n  controller: https://p.example.com/app\n  embedded: https://c.example.com",
		"same origins":       "origins:\n  controller: https://p.example.com\n  embedded: https://p.example.com",
		"bad stealth":        "origins:\n  controller: https://p.example.com\n  embedded: https://c.example.com\nbrowser:\n  stealth: invisible",
		"not yaml":           "origins: [",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(src)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vitrine.yaml")
	os.WriteFile(path, []byte("origins:\n  controller: https://p.example.com\n  embedded: https://c.example.com\n"), 0o644)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Origins.Embedded != "https://c.example.com" {
		t.Fatalf("got %+v", cfg.Origins)
	}

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.HasPrefix(err.Error(), "config:") {
		t.Fatalf("got %v", err)
	}
}
