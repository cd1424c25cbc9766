package catalog

import (
	"context"
	"errors"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/vitrine/bridge"
	"github.com/hazyhaar/vitrine/capture"
	"github.com/hazyhaar/vitrine/filter"
	"github.com/hazyhaar/vitrine/geocache"
	"github.com/hazyhaar/vitrine/internal/artifact"
	"github.com/hazyhaar/vitrine/internal/store"
	"github.com/hazyhaar/vitrine/message"
)

const (
	controllerOrigin = "https://painel.example.com"
	embeddedOrigin   = "https://catalogo.example.com"
	catalogURL       = "https://catalogo.example.com/imoveis?cidade=Niteroi&bairro=Icarai"
)

const catalogHTML = `<html><body>
<div class="card" data-property-id="1"><a href="/imovel/1">Casa em Copacabana</a></div>
<div class="card" data-property-id="2"><a href="/imovel/2">Apto no Leblon</a></div>
<div class="card" data-property-id="3">Loja em Moema</div>
</body></html>`

type env struct {
	ctrl   *Controller
	bridge *bridge.Bridge
	port   *message.Port
	store  *store.Store
	gen    *recordingGenerator
	ctx    context.Context
}

type recordingGenerator struct {
	mu   sync.Mutex
	reqs []artifact.Request
}

func (g *recordingGenerator) Generate(_ context.Context, req artifact.Request) (artifact.Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	return artifact.Receipt{RequestID: req.ID, Status: "queued", Location: "/artifacts/" + req.ID + ".pdf"}, nil
}

type fakeGeocoder struct {
	mu    sync.Mutex
	calls int
}

func (g *fakeGeocoder) Geocode(_ context.Context, address string) (geocache.Coordinates, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if strings.Contains(address, "Atlantis") {
		return geocache.Coordinates{}, errors.New("geocode: no result")
	}
	return geocache.Coordinates{Lat: -22.9711, Lon: -43.1822, DisplayName: address}, nil
}

func seed(t *testing.T, st *store.Store) {
	t.Helper()
	items := []store.Item{
		{ID: 1, Title: "Casa em Copacabana", Address: "Av. Atlântica 1702", City: "Rio de Janeiro", Neighborhood: "Copacabana", Price: 850000, AuctionType: "judicial"},
		{ID: 2, Title: "Apto no Leblon", Address: "Rua Dias Ferreira 50", City: "Rio de Janeiro", Neighborhood: "Leblon", Price: 1200000, AuctionType: "extrajudicial"},
		{ID: 3, Title: "Loja em Moema", Address: "Av. Ibirapuera 2000", City: "São Paulo", Neighborhood: "Moema", Price: 400000, AuctionType: "judicial"},
	}
	for i := range items {
		if err := st.Insert(context.Background(), &items[i]); err != nil {
			t.Fatal(err)
		}
	}
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()
	ctrlPort, embPort := message.Pipe(controllerOrigin, embeddedOrigin, nil)
	b := bridge.New(embPort, bridge.Config{})
	st := store.OpenMemory(t)
	seed(t, st)
	gen := &recordingGenerator{}

	if opts.CaptureTimeout == 0 {
		opts.CaptureTimeout = time.Second
	}
	c, err := New(Deps{
		Conn:      ctrlPort,
		Store:     st,
		Clicker:   b,
		Resolver:  geocache.NewResolver(geocache.ResolverConfig{Geocoder: &fakeGeocoder{}}),
		Generator: gen,
	}, opts)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); b.Run(ctx) }()
	go func() { defer wg.Done(); c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	e := &env{ctrl: c, bridge: b, port: ctrlPort, store: st, gen: gen, ctx: ctx}
	e.load(t)
	return e
}

func (e *env) load(t *testing.T) {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(catalogHTML))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.bridge.Load(e.ctx, catalogURL, doc); err != nil {
		t.Fatal(err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (e *env) marked(t *testing.T) []int64 {
	t.Helper()
	ids, err := e.bridge.Marked(e.ctx)
	if err != nil {
		t.Fatal(err)
	}
	return ids
}

func (e *env) activate(t *testing.T) {
	t.Helper()
	eventually(t, "bridge ready", func() bool { return e.ctrl.State().Ready })
	e.ctrl.SetSelectionMode(true)
	eventually(t, "bridge active", func() bool {
		active, _ := e.bridge.Active(e.ctx)
		return active
	})
}

func TestClickRoundTrip(t *testing.T) {
	e := newEnv(t, Options{})
	e.activate(t)

	res, err := e.ctrl.Click(e.ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Intercepted || !res.Selected || res.ItemID != 2 {
		t.Fatalf("click: %+v", res)
	}
	eventually(t, "selection [2]", func() bool { return reflect.DeepEqual(e.ctrl.Selection(), []int64{2}) })
	eventually(t, "mark on 2", func() bool { return reflect.DeepEqual(e.marked(t), []int64{2}) })

	// Two rapid clicks on the same item end where they started.
	e.ctrl.Click(e.ctx, 1)
	e.ctrl.Click(e.ctx, 1)
	eventually(t, "selection back to [2]", func() bool {
		return reflect.DeepEqual(e.ctrl.Selection(), []int64{2}) && reflect.DeepEqual(e.marked(t), []int64{2})
	})
}

func TestClickOutsideSelectionMode(t *testing.T) {
	e := newEnv(t, Options{})
	res, err := e.ctrl.Click(e.ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Intercepted {
		t.Fatal("click intercepted with mode off")
	}
	if _, err := e.ctrl.Click(e.ctx, 99); !errors.Is(err, bridge.ErrUnknownItem) {
		t.Fatalf("unknown item: got %v", err)
	}
	if got := e.ctrl.Selection(); len(got) != 0 {
		t.Fatalf("selection: %v", got)
	}
}

func TestModeOffClears(t *testing.T) {
	e := newEnv(t, Options{})
	e.activate(t)
	e.ctrl.Click(e.ctx, 3)
	eventually(t, "selection [3]", func() bool { return len(e.ctrl.Selection()) == 1 })

	state := e.ctrl.SetSelectionMode(false)
	if state.Active || len(state.Selected) != 0 {
		t.Fatalf("state after off: %+v", state)
	}
	eventually(t, "marks cleared", func() bool { return len(e.marked(t)) == 0 })
}

func TestClickRacingModeOffLeavesNothingSelected(t *testing.T) {
	ctrlPort, _ := message.Pipe(controllerOrigin, embeddedOrigin, nil)
	c, err := New(Deps{Conn: ctrlPort, Store: store.OpenMemory(t)}, Options{})
	if err != nil {
		t.Fatal(err)
	}

	for i := int64(1); i <= 200; i++ {
		c.SetSelectionMode(true)
		click := message.MustNew(message.PropertyCardClick, message.CardClick{ItemID: i, IsSelected: true})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); c.dispatch(click) }()
		go func() { defer wg.Done(); c.SetSelectionMode(false) }()
		wg.Wait()

		if got := c.Selection(); len(got) != 0 {
			t.Fatalf("round %d: selection %v survived mode off", i, got)
		}
	}
}

func TestReloadClearsSelection(t *testing.T) {
	e := newEnv(t, Options{})
	e.activate(t)
	e.ctrl.Click(e.ctx, 1)
	eventually(t, "selection [1]", func() bool { return len(e.ctrl.Selection()) == 1 })

	e.load(t)
	eventually(t, "reload handled", func() bool {
		s := e.ctrl.State()
		return !s.Active && len(s.Selected) == 0
	})
	if got := e.ctrl.State().URL; got != catalogURL {
		t.Fatalf("url: %q", got)
	}
}

func TestSelectAll(t *testing.T) {
	e := newEnv(t, Options{})
	rio := url.Values{"cidade": {"Rio de Janeiro"}}

	if _, err := e.ctrl.SelectAll(e.ctx, rio); !errors.Is(err, ErrModeInactive) {
		t.Fatalf("mode off: got %v", err)
	}

	e.activate(t)
	res, err := e.ctrl.SelectAll(e.ctx, rio)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Selected || res.Matched != 2 || !reflect.DeepEqual(res.IDs, []int64{1, 2}) {
		t.Fatalf("first toggle: %+v", res)
	}
	eventually(t, "marks [1 2]", func() bool { return reflect.DeepEqual(e.marked(t), []int64{1, 2}) })

	res, err = e.ctrl.SelectAll(e.ctx, rio)
	if err != nil {
		t.Fatal(err)
	}
	if res.Selected || len(res.IDs) != 0 {
		t.Fatalf("second toggle: %+v", res)
	}
}

func TestSelectAllTooLarge(t *testing.T) {
	e := newEnv(t, Options{MaxItems: 1})
	e.activate(t)
	e.ctrl.Click(e.ctx, 3)
	eventually(t, "selection [3]", func() bool { return len(e.ctrl.Selection()) == 1 })

	_, err := e.ctrl.SelectAll(e.ctx, url.Values{})
	if err == nil || !strings.Contains(err.Error(), "too many items") {
		t.Fatalf("got %v", err)
	}
	if got := e.ctrl.Selection(); !reflect.DeepEqual(got, []int64{3}) {
		t.Fatalf("selection changed: %v", got)
	}
}

func TestFiltersMerged(t *testing.T) {
	e := newEnv(t, Options{})
	res := e.ctrl.Filters(e.ctx, url.Values{"bairro": {"Leblon"}, "cidade": {"Rio de Janeiro"}})
	if res.Outcome != capture.OutcomeMerged {
		t.Fatalf("outcome %s", res.Outcome)
	}
	if !reflect.DeepEqual(res.Filters.Neighborhoods, []string{"Leblon"}) {
		t.Fatalf("neighborhoods: %v", res.Filters.Neighborhoods)
	}
	if res.Filters.City == nil || *res.Filters.City != "Niteroi" {
		t.Fatalf("city: %v", res.Filters.City)
	}
}

func TestFiltersTimeoutFallsBackToHost(t *testing.T) {
	ctrlPort, _ := message.Pipe(controllerOrigin, embeddedOrigin, nil)
	c, err := New(Deps{Conn: ctrlPort, Store: store.OpenMemory(t)}, Options{CaptureTimeout: 30 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	host := url.Values{"bairros": {"Leblon,Ipanema"}, "fgts": {"true"}}
	res := c.Filters(context.Background(), host)
	if res.Outcome != capture.OutcomeTimeout {
		t.Fatalf("outcome %s", res.Outcome)
	}
	if !reflect.DeepEqual(res.Filters, filter.FromQuery(host)) {
		t.Fatalf("got %+v", res.Filters)
	}
}

func TestForeignOriginIgnored(t *testing.T) {
	e := newEnv(t, Options{})
	e.activate(t)

	forged := message.MustNew(message.PropertyCardClick, message.CardClick{ItemID: 1, IsSelected: true})
	frame, err := message.Encode(forged, "https://evil.example.com")
	if err != nil {
		t.Fatal(err)
	}
	if e.port.Deliver(frame) {
		t.Fatal("foreign frame accepted")
	}
	// Barrier: a capture round trip proves the inbox has been drained.
	e.ctrl.Filters(e.ctx, nil)
	if got := e.ctrl.Selection(); len(got) != 0 {
		t.Fatalf("selection changed: %v", got)
	}
}

func TestGenerate(t *testing.T) {
	e := newEnv(t, Options{})
	e.activate(t)
	e.ctrl.Click(e.ctx, 2)
	e.ctrl.Click(e.ctx, 1)
	eventually(t, "selection [1 2]", func() bool { return len(e.ctrl.Selection()) == 2 })

	gen, err := e.ctrl.Generate(e.ctx, url.Values{"bairro": {"Leblon"}}, artifact.KindPage)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(gen.Request.ID, "art_") || gen.Receipt.Status != "queued" {
		t.Fatalf("generation: %+v", gen)
	}
	if len(e.gen.reqs) != 1 {
		t.Fatalf("generator calls: %d", len(e.gen.reqs))
	}
	req := e.gen.reqs[0]
	if req.Kind != artifact.KindPage || !reflect.DeepEqual(req.ItemIDs, []int64{1, 2}) {
		t.Fatalf("request: %+v", req)
	}
	if !reflect.DeepEqual(req.Filters.Neighborhoods, []string{"Leblon"}) || req.Filters.City == nil {
		t.Fatalf("filters: %+v", req.Filters)
	}
}

func TestGeocodeCached(t *testing.T) {
	geo := &fakeGeocoder{}
	ctrlPort, _ := message.Pipe(controllerOrigin, embeddedOrigin, nil)
	c, err := New(Deps{
		Conn:     ctrlPort,
		Store:    store.OpenMemory(t),
		Resolver: geocache.NewResolver(geocache.ResolverConfig{Geocoder: geo}),
	}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	for _, addr := range []string{"Av. Atlântica 1702", "  av. atlântica   1702 "} {
		coords, err := c.Geocode(context.Background(), addr)
		if err != nil {
			t.Fatal(err)
		}
		if coords.Lat != -22.9711 {
			t.Fatalf("coords: %+v", coords)
		}
	}
	if geo.calls != 1 {
		t.Fatalf("geocoder calls: %d", geo.calls)
	}
	if _, err := c.MapPNG(context.Background(), "x"); !errors.Is(err, geocache.ErrNoRenderer) {
		t.Fatalf("map without renderer: %v", err)
	}
}

func TestNewRequiresConnAndStore(t *testing.T) {
	if _, err := New(Deps{}, Options{}); err == nil {
		t.Fatal("nil conn accepted")
	}
	ctrlPort, _ := message.Pipe(controllerOrigin, embeddedOrigin, nil)
	if _, err := New(Deps{Conn: ctrlPort}, Options{}); err == nil {
		t.Fatal("nil store accepted")
	}
}
