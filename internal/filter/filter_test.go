package filter

import (
	"errors"
	"reflect"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/tilestats/internal/spatialindex"
)

func square(x0, y0, x1, y1 float64) orb.Ring {
	return orb.Ring{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}
}

func TestContainsPoint_BoundaryMatches(t *testing.T) {
	f := FromPolygon(orb.Polygon{square(0, 0, 10, 10), square(4, 4, 6, 6)})

	tests := []struct {
		name string
		p    orb.Point
		want bool
	}{
		{"interior", orb.Point{1, 1}, true},
		{"outer edge", orb.Point{10, 5}, true},
		{"outer vertex", orb.Point{0, 0}, true},
		{"inside hole", orb.Point{5, 5}, false},
		{"hole edge", orb.Point{4, 5}, true},
		{"outside", orb.Point{11, 5}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := f.ContainsPoint(tc.p); got != tc.want {
				t.Fatalf("ContainsPoint(%v)=%v want %v", tc.p, got, tc.want)
			}
		})
	}
}

func TestDegenerateFilterMatchesNothing(t *testing.T) {
	f := FromPolygon(orb.Polygon{{{0, 0}, {5, 5}, {10, 10}, {0, 0}}})
	if !f.Degenerate() {
		t.Fatalf("collinear ring must be degenerate")
	}
	if f.ContainsPoint(orb.Point{5, 5}) {
		t.Fatalf("degenerate filter must not match a point on its ring")
	}
	if f.IntersectsLine(orb.LineString{{0, 10}, {10, 0}}) {
		t.Fatalf("degenerate filter must not match lines")
	}
}

func TestIntersectsLineAndPolygon(t *testing.T) {
	f := FromPolygon(orb.Polygon{square(0, 0, 10, 10)})

	if !f.IntersectsLine(orb.LineString{{-5, 5}, {15, 5}}) {
		t.Fatalf("line crossing the filter with no vertex inside must match")
	}
	if f.IntersectsLine(orb.LineString{{-5, 11}, {15, 11}}) {
		t.Fatalf("line above the filter must not match")
	}
	if !f.IntersectsPolygon(orb.Polygon{square(-10, -10, 20, 20)}) {
		t.Fatalf("polygon containing the filter must match")
	}
	if !f.IntersectsPolygon(orb.Polygon{square(9, 9, 12, 12)}) {
		t.Fatalf("overlapping polygon must match")
	}
	if f.IntersectsPolygon(orb.Polygon{square(20, 20, 30, 30)}) {
		t.Fatalf("disjoint polygon must not match")
	}
}

func TestParseGeoJSON_KeyAndEqual(t *testing.T) {
	a, err := ParseGeoJSON([]byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	b, err := ParseGeoJSON([]byte(`{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}}`))
	if err != nil {
		t.Fatalf("parse feature: %v", err)
	}
	if !a.Equal(b) || a.Key() != b.Key() {
		t.Fatalf("same coordinates must produce equal filters")
	}
	c := FromBound(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{2, 1}})
	if a.Equal(c) || a.Key() == c.Key() {
		t.Fatalf("different coordinates must not be equal")
	}
	if _, err := ParseGeoJSON([]byte(`{"type":"Point","coordinates":[0,0]}`)); !errors.Is(err, ErrUnsupportedGeometry) {
		t.Fatalf("expected ErrUnsupportedGeometry, got %v", err)
	}
}

func TestMatchRasterBlock_Offsets(t *testing.T) {
	q := spatialindex.Quadbin{}
	origin := q.FromTile(maptile.New(0, 0, 0))

	f := FromBound(orb.Bound{Min: orb.Point{-45, -30}, Max: orb.Point{45, 30}})
	got, err := f.MatchRasterBlock(q, origin, 4)
	if err != nil {
		t.Fatalf("MatchRasterBlock: %v", err)
	}
	if want := []int{5, 6, 9, 10}; !reflect.DeepEqual(got, want) {
		t.Fatalf("offsets=%v want %v", got, want)
	}

	east := FromBound(orb.Bound{Min: orb.Point{10, 10}, Max: orb.Point{100, 20}})
	got, err = east.MatchRasterBlock(q, origin, 4)
	if err != nil {
		t.Fatalf("MatchRasterBlock: %v", err)
	}
	if want := []int{6, 7}; !reflect.DeepEqual(got, want) {
		t.Fatalf("offsets=%v want %v", got, want)
	}
}

func TestMatchCell_ExpandsToTarget(t *testing.T) {
	ex := spatialindex.NewExpander(spatialindex.H3{}, 0)
	parent, err := h3.LatLngToCell(h3.LatLng{Lat: 48.8566, Lng: 2.3522}, 5)
	if err != nil {
		t.Fatalf("LatLngToCell: %v", err)
	}
	kids, err := spatialindex.H3{}.Children(parent.String(), 7)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}

	world := FromBound(orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}})
	all, err := world.MatchCell(ex, parent.String(), 7)
	if err != nil {
		t.Fatalf("MatchCell: %v", err)
	}
	if !reflect.DeepEqual(all, kids) {
		t.Fatalf("covering filter must match every child: %d vs %d", len(all), len(kids))
	}

	target := kids[10]
	c, err := spatialindex.H3{}.Center(target)
	if err != nil {
		t.Fatalf("Center: %v", err)
	}
	tiny := FromBound(orb.Bound{Min: orb.Point{c[0] - 1e-4, c[1] - 1e-4}, Max: orb.Point{c[0] + 1e-4, c[1] + 1e-4}})
	one, err := tiny.MatchCell(ex, parent.String(), 7)
	if err != nil {
		t.Fatalf("MatchCell: %v", err)
	}
	if len(one) != 1 || one[0] != target {
		t.Fatalf("expected only %s, got %v", target, one)
	}
}

func TestMatchCell_DeepExpansionReachesTarget(t *testing.T) {
	ex := spatialindex.NewExpander(spatialindex.H3{}, 0)
	leaf, err := h3.LatLngToCell(h3.LatLng{Lat: 48.8566, Lng: 2.3522}, 10)
	if err != nil {
		t.Fatalf("LatLngToCell: %v", err)
	}
	parent, err := spatialindex.H3{}.Parent(leaf.String(), 3)
	if err != nil {
		t.Fatalf("Parent: %v", err)
	}
	if ex.Fits(3, 10) {
		t.Fatalf("res 3 to 10 must exceed the single expansion limit")
	}

	c, err := spatialindex.H3{}.Center(leaf.String())
	if err != nil {
		t.Fatalf("Center: %v", err)
	}
	tiny := FromBound(orb.Bound{Min: orb.Point{c[0] - 1e-4, c[1] - 1e-4}, Max: orb.Point{c[0] + 1e-4, c[1] + 1e-4}})
	got, err := tiny.MatchCell(ex, parent, 10)
	if err != nil {
		t.Fatalf("MatchCell: %v", err)
	}
	if len(got) != 1 || got[0] != leaf.String() {
		t.Fatalf("expected only %s, got %v", leaf.String(), got)
	}

	far := FromBound(orb.Bound{Min: orb.Point{-120, -40}, Max: orb.Point{-119, -39}})
	none, err := far.MatchCell(ex, parent, 10)
	if err != nil || len(none) != 0 {
		t.Fatalf("distant filter: got %v err %v", none, err)
	}
}
