package capture

import (
	"context"
	"net/url"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/vitrine/filter"
	"github.com/hazyhaar/vitrine/idgen"
	"github.com/hazyhaar/vitrine/message"
)

// fakeBridge records requests and optionally answers them.
type fakeBridge struct {
	mu       sync.Mutex
	requests []message.FiltersRequest
	refuse   bool
	answer   func(req message.FiltersRequest)
}

func (f *fakeBridge) Post(env message.Envelope) bool {
	if f.refuse {
		return false
	}
	req, _ := message.Decode[message.FiltersRequest](env)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.answer != nil {
		go f.answer(req)
	}
	return true
}

func mustQuery(t *testing.T, raw string) url.Values {
	t.Helper()
	q, err := url.ParseQuery(raw)
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func TestCapture_MergesResponse(t *testing.T) {
	fb := &fakeBridge{}
	c := New(fb, Config{NewID: idgen.Sequence("req")})
	fb.answer = func(req message.FiltersRequest) {
		c.Deliver(message.FiltersResponse{
			RequestID: req.RequestID,
			Filters: filter.Snapshot{
				Neighborhoods: []string{"Ipanema"},
				City:          filter.String("Rio de Janeiro"),
			},
		})
	}

	res := c.Capture(context.Background(), mustQuery(t, "bairro=Leblon"))
	want := filter.Snapshot{Neighborhoods: []string{"Leblon"}, City: filter.String("Rio de Janeiro")}
	if res.Outcome != OutcomeMerged {
		t.Fatalf("outcome: got %s", res.Outcome)
	}
	if !reflect.DeepEqual(res.Filters, want) {
		t.Fatalf("got %+v, want %+v", res.Filters, want)
	}
	if fb.requests[0].RequestID != "req1" {
		t.Fatalf("request id: got %q", fb.requests[0].RequestID)
	}
	if c.Pending() != 0 {
		t.Fatal("waiter leaked")
	}
}

func TestCapture_TimeoutReturnsHostExactly(t *testing.T) {
	fb := &fakeBridge{}
	c := New(fb, Config{Timeout: 20 * time.Millisecond})

	q := mustQuery(t, "cidade=Niteroi&bairros=Icarai,Inga&fgts=1")
	res := c.Capture(context.Background(), q)
	if res.Outcome != OutcomeTimeout {
		t.Fatalf("outcome: got %s", res.Outcome)
	}
	if !reflect.DeepEqual(res.Filters, filter.FromQuery(q)) {
		t.Fatalf("got %+v, want host snapshot", res.Filters)
	}
}

func TestCapture_EmptyEverywhere(t *testing.T) {
	fb := &fakeBridge{}
	c := New(fb, Config{Timeout: 10 * time.Millisecond})
	if res := c.Capture(context.Background(), nil); !res.Filters.IsEmpty() {
		t.Fatalf("got %+v, want {}", res.Filters)
	}
}

func TestCapture_NoPeer(t *testing.T) {
	c := New(&fakeBridge{refuse: true}, Config{Timeout: time.Hour})
	res := c.Capture(context.Background(), mustQuery(t, "cidade=Rio"))
	if res.Outcome != OutcomeNoPeer || *res.Filters.City != "Rio" {
		t.Fatalf("got %+v", res)
	}
}

func TestCapture_ContextCanceled(t *testing.T) {
	c := New(&fakeBridge{}, Config{Timeout: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if res := c.Capture(ctx, nil); res.Outcome != OutcomeCanceled {
		t.Fatalf("outcome: got %s", res.Outcome)
	}
}

func TestDeliver_UncorrelatedSatisfiesAll(t *testing.T) {
	fb := &fakeBridge{}
	c := New(fb, Config{Timeout: 2 * time.Second})

	var wg sync.WaitGroup
	results := make([]Result, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.Capture(context.Background(), nil)
		}()
	}

	deadline := time.Now().Add(time.Second)
	for c.Pending() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("captures never registered")
		}
		time.Sleep(time.Millisecond)
	}
	c.Deliver(message.FiltersResponse{Filters: filter.Snapshot{AuctionType: filter.String("extrajudicial")}})
	wg.Wait()

	for i, r := range results {
		if r.Outcome != OutcomeMerged || *r.Filters.AuctionType != "extrajudicial" {
			t.Fatalf("capture %d: got %+v", i, r)
		}
	}
}

func TestDeliver_UnknownIDDropped(t *testing.T) {
	c := New(&fakeBridge{}, Config{Timeout: 20 * time.Millisecond})
	c.Deliver(message.FiltersResponse{RequestID: "stale"})

	res := c.Capture(context.Background(), nil)
	if res.Outcome != OutcomeTimeout {
		t.Fatalf("stale response satisfied a new capture: %s", res.Outcome)
	}
}
