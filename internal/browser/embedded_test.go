package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"golang.org/x/net/html"

	"github.com/hazyhaar/vitrine/filter"
	"github.com/hazyhaar/vitrine/message"
)

const testControllerOrigin = "https://painel.example.com"

var testPages = map[string]string{
	"/imoveis": `<html><body>
<div data-property-id="1"><a id="link" href="/elsewhere">Casa em Copacabana</a></div>
<div data-property-id="2">Apto no Leblon</div>
<script>document.getElementById('link').addEventListener('click', function () { window.__reached = true; });</script>
</body></html>`,
	"/filtros": `<html><body>
<form>
  <input type="checkbox" name="bairro[]" value="Leblon" checked>
  <input type="checkbox" name="bairro[]" value="Gávea">
  <input type="checkbox" name="bairro[]" value="Leblon" checked>
  <select name="ordem"><option value="preco" selected>Preço</option></select>
</form>
<div data-property-id="5">Sala na Gávea</div>
</body></html>`,
}

// startChrome launches a headless Chrome, or skips when none is installed.
func startChrome(t *testing.T) *Manager {
	t.Helper()
	if testing.Short() {
		t.Skip("chrome tests skipped in -short mode")
	}
	if _, ok := launcher.LookPath(); !ok {
		t.Skip("no chrome binary found")
	}
	m := NewManager(Config{Mode: Headless})
	if err := m.Start(context.Background()); err != nil {
		t.Skipf("chrome unavailable: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func catalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := testPages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func openTab(t *testing.T, m *Manager, srv *httptest.Server, path string) *EmbeddedPage {
	t.Helper()
	e, err := m.OpenEmbedded(context.Background(), EmbeddedConfig{
		URL:              srv.URL + path,
		ControllerOrigin: testControllerOrigin,
		EmbeddedOrigin:   srv.URL,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	waitEnvelope(t, e, message.BridgeReady)
	return e
}

func waitEnvelope(t *testing.T, e *EmbeddedPage, typ message.Type) message.Envelope {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case env := <-e.Inbox():
			if env.Type == typ {
				return env
			}
		case <-timeout:
			t.Fatalf("no %s from the page", typ)
		}
	}
}

func pageFilters(t *testing.T, e *EmbeddedPage) filter.Snapshot {
	t.Helper()
	if !e.Post(message.MustNew(message.GetActiveFilters, message.FiltersRequest{RequestID: "r1"})) {
		t.Fatal("post rejected by the page")
	}
	resp, err := message.Decode[message.FiltersResponse](waitEnvelope(t, e, message.ActiveFiltersResponse))
	if err != nil {
		t.Fatal(err)
	}
	if resp.RequestID != "r1" {
		t.Fatalf("request id: got %q", resp.RequestID)
	}
	return resp.Filters
}

func TestEmbeddedFiltersMatchGoRules(t *testing.T) {
	m := startChrome(t)
	srv := catalogServer(t)

	tests := []string{
		"/imoveis?cidade=Rio+de+Janeiro&bairro=Leblon,Ipanema&bairros=Centro",
		"/imoveis?bairro=&bairros=Botafogo&bairros=Flamengo,Botafogo",
		"/imoveis?neighborhood=+Urca+&preco_min=150000&preco_max=300000,50",
		"/imoveis?fgts=sim&financiamento=0&parcelamento=talvez&segundo_leilao=true&tipo_leilao=Judicial&palavra_chave=casa+com+piscina",
		"/imoveis",
		"/filtros?cidade=Rio+de+Janeiro",
		"/filtros?cidade=Rio+de+Janeiro&bairro=Humaita",
	}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			e := openTab(t, m, srv, path)
			got := pageFilters(t, e)

			page := testPages[strings.SplitN(path, "?", 2)[0]]
			doc, err := html.Parse(strings.NewReader(page))
			if err != nil {
				t.Fatal(err)
			}
			want := filter.FromDocument(srv.URL+path, doc, nil)
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("page reported %+v, Go derives %+v", got, want)
			}
		})
	}
}

func TestEmbeddedClickInterception(t *testing.T) {
	m := startChrome(t)
	e := openTab(t, m, catalogServer(t), "/imoveis")
	ctx := context.Background()

	res, err := e.ClickItem(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Intercepted {
		t.Fatal("click intercepted with selection mode off")
	}

	e.Post(message.MustNew(message.SetSelectionMode, message.SelectionMode{Active: true}))
	res, err = e.ClickItem(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Intercepted || !res.Selected || res.ItemID != 1 {
		t.Fatalf("got %+v", res)
	}
	click, err := message.Decode[message.CardClick](waitEnvelope(t, e, message.PropertyCardClick))
	if err != nil {
		t.Fatal(err)
	}
	if click.ItemID != 1 || !click.IsSelected {
		t.Fatalf("reported %+v", click)
	}

	var reached bool
	if err := e.eval(ctx, `() => !!window.__reached`, &reached); err != nil {
		t.Fatal(err)
	}
	if reached {
		t.Fatal("intercepted click reached the link's own handler")
	}
	info, err := e.page.Info()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(info.URL, "/imoveis") {
		t.Fatalf("page navigated to %s", info.URL)
	}
	if marked, _ := e.Marked(ctx); !reflect.DeepEqual(marked, []int64{1}) {
		t.Fatalf("marked %v", marked)
	}

	e.Post(message.MustNew(message.SetSelectionMode, message.SelectionMode{Active: false}))
	if marked, _ := e.Marked(ctx); len(marked) != 0 {
		t.Fatalf("marks survived mode off: %v", marked)
	}
}

func TestEmbeddedDropsForeignController(t *testing.T) {
	m := startChrome(t)
	e := openTab(t, m, catalogServer(t), "/imoveis")
	ctx := context.Background()

	frame, err := message.Encode(message.MustNew(message.SetSelectionMode, message.SelectionMode{Active: true}), "https://intruso.example.com")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.eval(ctx, `(f) => { window.__vitrineBridge.receive(f); return true; }`, new(bool), string(frame)); err != nil {
		t.Fatal(err)
	}
	res, err := e.ClickItem(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Intercepted {
		t.Fatal("foreign frame switched selection mode on")
	}
}
