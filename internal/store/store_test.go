package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/hazyhaar/vitrine/filter"
)

func seed(t *testing.T, s *Store) {
	t.Helper()
	items := []*Item{
		{ID: 1, Title: "Cobertura duplex", City: "Rio de Janeiro", Neighborhood: "Leblon", Price: 2_500_000, AuctionType: "judicial", FGTS: true},
		{ID: 2, Title: "Apartamento 2 quartos", City: "Rio de Janeiro", Neighborhood: "Ipanema", Price: 900_000, AuctionType: "extrajudicial", Financing: true},
		{ID: 3, Title: "Casa com quintal", City: "Niterói", Neighborhood: "Icaraí", Price: 650_000, AuctionType: "judicial", SecondAuction: true},
		{ID: 4, Title: "Sala comercial", City: "rio de janeiro", Neighborhood: "Centro", Price: 300_000, AuctionType: "judicial", Description: "próxima ao metrô"},
	}
	for _, it := range items {
		if err := s.Insert(context.Background(), it); err != nil {
			t.Fatalf("insert %d: %v", it.ID, err)
		}
	}
}

func TestItemCRUD(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()

	it := &Item{Title: "Lote", City: "Maricá", Price: 120_000}
	if err := s.Insert(ctx, it); err != nil {
		t.Fatal(err)
	}
	if it.ID == 0 || it.CreatedAt == 0 {
		t.Fatalf("insert did not assign id/timestamps: %+v", it)
	}

	got, err := s.Get(ctx, it.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Lote" || got.City != "Maricá" || got.FGTS {
		t.Fatalf("got %+v", got)
	}

	got.Price = 99_000
	got.Installments = true
	if err := s.Update(ctx, got); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Get(ctx, it.ID)
	if got.Price != 99_000 || !got.Installments {
		t.Fatalf("update lost: %+v", got)
	}

	if err := s.Delete(ctx, it.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, it.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
	if err := s.Delete(ctx, it.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	if err := s.Update(ctx, &Item{ID: 404, Title: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update missing: %v", err)
	}
}

func TestIDs_Scope(t *testing.T) {
	s := OpenMemory(t)
	seed(t, s)
	ctx := context.Background()

	tests := []struct {
		name  string
		scope filter.Snapshot
		want  []int64
	}{
		{"unconstrained", filter.Snapshot{}, []int64{1, 2, 3, 4}},
		{"city ignores case", filter.Snapshot{City: filter.String("Rio de Janeiro")}, []int64{1, 2, 4}},
		{"neighborhoods", filter.Snapshot{Neighborhoods: []string{"leblon", "Centro"}}, []int64{1, 4}},
		{"price range", filter.Snapshot{PriceMin: filter.Float(500_000), PriceMax: filter.Float(1_000_000)}, []int64{2, 3}},
		{"auction type", filter.Snapshot{AuctionType: filter.String("judicial")}, []int64{1, 3, 4}},
		{"search text", filter.Snapshot{SearchText: filter.String("metrô")}, []int64{4}},
		{"flag true", filter.Snapshot{FGTS: filter.Bool(true)}, []int64{1}},
		{"flag false", filter.Snapshot{Financing: filter.Bool(false)}, []int64{1, 3, 4}},
		{"combined", filter.Snapshot{City: filter.String("Niterói"), HasSecondAuction: filter.Bool(true)}, []int64{3}},
		{"nothing", filter.Snapshot{City: filter.String("Recife")}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.IDs(ctx, tc.scope)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestList_Paging(t *testing.T) {
	s := OpenMemory(t)
	seed(t, s)
	ctx := context.Background()

	page, err := s.List(ctx, filter.Snapshot{}, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != 2 || page[1].ID != 3 {
		t.Fatalf("got %d items starting at %d", len(page), page[0].ID)
	}

	all, _ := s.List(ctx, filter.Snapshot{FGTS: filter.Bool(true)}, 0, 0)
	if len(all) != 1 || all[0].Neighborhood != "Leblon" {
		t.Fatalf("got %+v", all)
	}
}
