package artifact

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/vitrine/filter"
)

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"": KindPDF, "pdf": KindPDF, "page": KindPage} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseKind("docx"); err == nil {
		t.Error("unknown kind accepted")
	}
}

func TestWebhook_PostsRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Write([]byte(`{"status":"queued","location":"/artifacts/a1.pdf"}`))
	}))
	defer srv.Close()

	wh, err := NewWebhook(srv.URL, WithWebhookClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}
	rec, err := wh.Generate(context.Background(), Request{
		ID:          "a1",
		Kind:        KindPDF,
		ItemIDs:     []int64{4, 8},
		Filters:     filter.Snapshot{City: filter.String("Rio de Janeiro")},
		RequestedAt: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.RequestID != "a1" || rec.Status != "queued" || rec.Location != "/artifacts/a1.pdf" {
		t.Fatalf("receipt: %+v", rec)
	}
	if got["kind"] != "pdf" || got["requestedAt"] != "2026-05-01T09:00:00Z" {
		t.Fatalf("payload: %v", got)
	}
	if ids, _ := got["itemIds"].([]any); len(ids) != 2 {
		t.Fatalf("itemIds: %v", got["itemIds"])
	}
	if f, _ := got["filters"].(map[string]any); f["city"] != "Rio de Janeiro" {
		t.Fatalf("filters: %v", got["filters"])
	}
}

func TestWebhook_Retries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	wh, _ := NewWebhook(srv.URL, WithWebhookClient(srv.Client()), WithWebhookBackoff(time.Millisecond))
	rec, err := wh.Generate(context.Background(), Request{ID: "a2"})
	if err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 2 || rec.Status != "accepted" || rec.RequestID != "a2" {
		t.Fatalf("hits=%d receipt=%+v", hits.Load(), rec)
	}
}

func TestWebhook_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh, _ := NewWebhook(srv.URL, WithWebhookClient(srv.Client()), WithWebhookRetries(1), WithWebhookBackoff(time.Millisecond))
	if _, err := wh.Generate(context.Background(), Request{ID: "a3"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestFuncAndLogOnly(t *testing.T) {
	var seen Request
	g := Func(func(_ context.Context, req Request) (Receipt, error) {
		seen = req
		return Receipt{RequestID: req.ID, Status: "done"}, nil
	})
	g.Generate(context.Background(), Request{ID: "x", ItemIDs: []int64{1}})
	if seen.ID != "x" {
		t.Fatal("func not called")
	}

	rec, err := LogOnly(nil).Generate(context.Background(), Request{ID: "y"})
	if err != nil || rec.Status != "logged" {
		t.Fatalf("got %+v, %v", rec, err)
	}
}
