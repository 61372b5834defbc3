package spatialindex

import (
	"errors"
	"testing"

	"github.com/paulmach/orb/maptile"
)

func TestQuadbin_KnownIDs(t *testing.T) {
	q := Quadbin{}
	if got := q.FromTile(maptile.New(0, 0, 0)); got != "480fffffffffffff" {
		t.Fatalf("z0 cell = %s", got)
	}
	// 5209574053332910079 in decimal
	if got := q.FromTile(maptile.New(9, 8, 4)); got != "484c1fffffffffff" {
		t.Fatalf("4/9/8 cell = %s", got)
	}
}

func TestQuadbin_TileRoundTrip(t *testing.T) {
	q := Quadbin{}
	for _, tl := range []maptile.Tile{
		maptile.New(0, 0, 0),
		maptile.New(1, 0, 1),
		maptile.New(9, 8, 4),
		maptile.New(1234, 4321, 13),
		maptile.New(1<<26-1, 1<<26-1, 26),
	} {
		id := q.FromTile(tl)
		got, err := q.Tile(id)
		if err != nil {
			t.Fatalf("Tile(%s): %v", id, err)
		}
		if got != tl {
			t.Fatalf("round trip %v -> %s -> %v", tl, id, got)
		}
		res, err := q.Resolution(id)
		if err != nil || res != int(tl.Z) {
			t.Fatalf("Resolution(%s)=%d err=%v", id, res, err)
		}
	}
}

func TestQuadbin_ParentChildren(t *testing.T) {
	q := Quadbin{}
	cell := q.FromTile(maptile.New(9, 8, 4))

	kids, err := q.Children(cell, 6)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(kids) != 16 {
		t.Fatalf("expected 16 children, got %d", len(kids))
	}
	first, _ := q.Tile(kids[0])
	last, _ := q.Tile(kids[15])
	if first != maptile.New(36, 32, 6) || last != maptile.New(39, 35, 6) {
		t.Fatalf("children not row-major: first=%v last=%v", first, last)
	}
	for _, k := range kids {
		p, err := q.Parent(k, 4)
		if err != nil || p != cell {
			t.Fatalf("Parent(%s)=%s err=%v", k, p, err)
		}
	}
}

func TestQuadbin_Invalid(t *testing.T) {
	q := Quadbin{}
	for _, id := range []string{"", "zz", "0", "480ffffffffffff0"} {
		if _, err := q.Resolution(id); !errors.Is(err, ErrInvalidCell) {
			t.Fatalf("%q: expected ErrInvalidCell, got %v", id, err)
		}
	}
}

func TestQuadbin_BlockPixels(t *testing.T) {
	q := Quadbin{}
	origin := q.FromTile(maptile.New(0, 0, 0))
	px, err := q.BlockPixels(origin, 4)
	if err != nil {
		t.Fatalf("BlockPixels: %v", err)
	}
	if len(px) != 16 || px[5] != maptile.New(1, 1, 2) || px[6] != maptile.New(2, 1, 2) {
		t.Fatalf("unexpected pixel layout %v", px)
	}
	if _, err := q.BlockPixels(origin, 3); err == nil {
		t.Fatalf("expected error for non power of two block")
	}
}
