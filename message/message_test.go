package message

import (
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/vitrine/filter"
)

const (
	controllerOrigin = "https://painel.example.com"
	embeddedOrigin   = "https://catalogo.example.com"
)

func recv(t *testing.T, p *Port) Envelope {
	t.Helper()
	select {
	case env := <-p.Inbox():
		return env
	default:
		t.Fatal("inbox empty")
	}
	return Envelope{}
}

func TestPipe_RoundTrip(t *testing.T) {
	ctrl, emb := Pipe(controllerOrigin, embeddedOrigin, nil)

	if !ctrl.Post(MustNew(UpdateSelections, Selections{SelectedIDs: []int64{3, 7}})) {
		t.Fatal("post failed")
	}
	env := recv(t, emb)
	if env.Type != UpdateSelections || env.Origin != controllerOrigin {
		t.Fatalf("got %s from %q", env.Type, env.Origin)
	}
	sel, err := Decode[Selections](env)
	if err != nil {
		t.Fatal(err)
	}
	if len(sel.SelectedIDs) != 2 || sel.SelectedIDs[1] != 7 {
		t.Fatalf("got %v", sel.SelectedIDs)
	}

	emb.Post(MustNew(ActiveFiltersResponse, FiltersResponse{
		Filters:   filter.Snapshot{City: filter.String("Rio")},
		RequestID: "r1",
	}))
	resp, err := Decode[FiltersResponse](recv(t, ctrl))
	if err != nil {
		t.Fatal(err)
	}
	if resp.RequestID != "r1" || *resp.Filters.City != "Rio" {
		t.Fatalf("got %+v", resp)
	}
}

func TestPort_ForeignOriginDropped(t *testing.T) {
	ctrl, _ := Pipe(controllerOrigin, embeddedOrigin, nil)

	frame, err := Encode(MustNew(PropertyCardClick, CardClick{ItemID: 1, IsSelected: true}), "https://evil.example.net")
	if err != nil {
		t.Fatal(err)
	}
	if ctrl.Deliver(frame) {
		t.Fatal("foreign frame accepted")
	}
	if len(ctrl.Inbox()) != 0 {
		t.Fatal("foreign frame reached the inbox")
	}
}

func TestAccept(t *testing.T) {
	big := `{"type":"BRIDGE_READY","origin":"` + embeddedOrigin + `","payload":{"url":"` + strings.Repeat("a", MaxFrameSize) + `"}}`

	tests := []struct {
		name    string
		frame   string
		wantErr error
	}{
		{"ok", `{"type":"BRIDGE_READY","origin":"` + embeddedOrigin + `"}`, nil},
		{"wrong origin", `{"type":"BRIDGE_READY","origin":"https://x"}`, ErrForeignOrigin},
		{"missing origin", `{"type":"BRIDGE_READY"}`, ErrForeignOrigin},
		{"too large", big, ErrFrameTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Accept([]byte(tc.frame), embeddedOrigin)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}

	if _, err := Accept([]byte("not json"), embeddedOrigin); err == nil {
		t.Fatal("malformed frame accepted")
	}
	if _, err := Accept([]byte(`{"origin":"`+embeddedOrigin+`"}`), embeddedOrigin); err == nil {
		t.Fatal("frame without type accepted")
	}
}

func TestPort_ClosedAndFull(t *testing.T) {
	ctrl, emb := Pipe(controllerOrigin, embeddedOrigin, nil)

	for i := 0; i < DefaultBuffer; i++ {
		if !ctrl.Post(MustNew(SetSelectionMode, SelectionMode{Active: true})) {
			t.Fatalf("post %d dropped before buffer was full", i)
		}
	}
	if ctrl.Post(MustNew(SetSelectionMode, SelectionMode{Active: true})) {
		t.Fatal("post to a full inbox must be dropped")
	}

	emb.Close()
	emb.Close()
	if ctrl.Post(MustNew(SetSelectionMode, SelectionMode{})) {
		t.Fatal("post to a closed port must be dropped")
	}
}

func TestDecode_EmptyPayload(t *testing.T) {
	req, err := Decode[FiltersRequest](MustNew(GetActiveFilters, nil))
	if err != nil || req.RequestID != "" {
		t.Fatalf("got %+v, %v", req, err)
	}
	if _, err := Decode[CardClick](Envelope{Type: PropertyCardClick, Payload: []byte(`{"itemId":"x"}`)}); err == nil {
		t.Fatal("bad payload decoded")
	}
}
