package spatialindex

import (
	"errors"
	"testing"
)

func TestH3Resolution_MonotonicAndClamped(t *testing.T) {
	prev := -1
	for z := 0.0; z <= 24; z++ {
		r := H3Resolution(Params{Zoom: z, Latitude: 40})
		if r < prev {
			t.Fatalf("resolution decreased at zoom %v: %d < %d", z, r, prev)
		}
		if r < 0 || r > 15 {
			t.Fatalf("resolution %d out of range", r)
		}
		prev = r
	}
	if r := H3Resolution(Params{Zoom: 0}); r != 0 {
		t.Fatalf("zoom 0 = %d, want 0", r)
	}
	if r := H3Resolution(Params{Zoom: 30}); r != 15 {
		t.Fatalf("zoom 30 = %d, want clamp to 15", r)
	}
	// larger tiles lower the effective zoom
	if H3Resolution(Params{Zoom: 10, TileSize: 1024}) > H3Resolution(Params{Zoom: 10, TileSize: 256}) {
		t.Fatalf("tile size offset applied in the wrong direction")
	}
}

func TestQuadbinResolution(t *testing.T) {
	tests := []struct {
		p    Params
		want int
	}{
		{Params{Zoom: 3}, 9},
		{Params{Zoom: 3.7, TileSize: 256}, 8},
		{Params{Zoom: 4, AggregationResLevel: 2}, 6},
		{Params{Zoom: 25}, 26},
	}
	for _, tc := range tests {
		if got := QuadbinResolution(tc.p); got != tc.want {
			t.Fatalf("QuadbinResolution(%+v)=%d want %d", tc.p, got, tc.want)
		}
	}
}

func TestExpander_MemoizedAndBounded(t *testing.T) {
	ex := NewExpander(Quadbin{}, 8)
	root := "480fffffffffffff"

	cells, err := ex.Expand(root, 2)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(cells) != 16 {
		t.Fatalf("expected 16 cells, got %d", len(cells))
	}
	again, _ := ex.Expand(root, 2)
	if &again[0] != &cells[0] {
		t.Fatalf("second expansion should be served from memo")
	}

	same, err := ex.Expand(cells[3], 1)
	if err != nil || len(same) != 1 || same[0] != cells[3] {
		t.Fatalf("cell finer than target must return itself: %v %v", same, err)
	}

	if _, err := ex.Expand(root, 26); !errors.Is(err, ErrExpansionTooLarge) {
		t.Fatalf("expected ErrExpansionTooLarge, got %v", err)
	}
}
