package filter

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ContainsPoint reports whether p is inside the filter or on its boundary.
func (f *Filter) ContainsPoint(p orb.Point) bool {
	if f.Degenerate() || !f.bound.Contains(p) {
		return false
	}
	for _, poly := range f.geom {
		for _, r := range poly {
			if onRing(r, p) {
				return true
			}
		}
	}
	return planar.MultiPolygonContains(f.geom, p)
}

// IntersectsLine reports whether any part of ls touches the filter.
func (f *Filter) IntersectsLine(ls orb.LineString) bool {
	if f.Degenerate() || len(ls) == 0 || !f.bound.Intersects(ls.Bound()) {
		return false
	}
	for _, p := range ls {
		if f.ContainsPoint(p) {
			return true
		}
	}
	for i := 1; i < len(ls); i++ {
		if f.crossesSegment(ls[i-1], ls[i]) {
			return true
		}
	}
	return false
}

// IntersectsPolygon reports whether the polygon and the filter share any point.
func (f *Filter) IntersectsPolygon(poly orb.Polygon) bool {
	if f.Degenerate() || len(poly) == 0 || len(poly[0]) == 0 || !f.bound.Intersects(poly.Bound()) {
		return false
	}
	for _, p := range poly[0] {
		if f.ContainsPoint(p) {
			return true
		}
	}
	// filter entirely inside the polygon
	for _, fp := range f.geom {
		if len(fp) > 0 && len(fp[0]) > 0 && planar.PolygonContains(poly, fp[0][0]) {
			return true
		}
	}
	for _, r := range poly {
		for i := 1; i < len(r); i++ {
			if f.crossesSegment(r[i-1], r[i]) {
				return true
			}
		}
	}
	return false
}

// IntersectsBound is a cheap rectangle test used before exact checks.
func (f *Filter) IntersectsBound(b orb.Bound) bool {
	return !f.Degenerate() && f.bound.Intersects(b)
}

func (f *Filter) crossesSegment(a, b orb.Point) bool {
	for _, poly := range f.geom {
		for _, r := range poly {
			for i := 1; i < len(r); i++ {
				if segmentsIntersect(a, b, r[i-1], r[i]) {
					return true
				}
			}
		}
	}
	return false
}

func onRing(r orb.Ring, p orb.Point) bool {
	for i := 1; i < len(r); i++ {
		if onSegment(r[i-1], r[i], p) {
			return true
		}
	}
	if n := len(r); n > 1 && r[0] != r[n-1] {
		return onSegment(r[n-1], r[0], p)
	}
	return false
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func onSegment(a, b, p orb.Point) bool {
	if cross(a, b, p) != 0 {
		return false
	}
	return min(a[0], b[0]) <= p[0] && p[0] <= max(a[0], b[0]) &&
		min(a[1], b[1]) <= p[1] && p[1] <= max(a[1], b[1])
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := sign(cross(q1, q2, p1))
	d2 := sign(cross(q1, q2, p2))
	d3 := sign(cross(p1, p2, q1))
	d4 := sign(cross(p1, p2, q2))
	if d1*d2 < 0 && d3*d4 < 0 {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) ||
		(d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) ||
		(d4 == 0 && onSegment(p1, p2, q2))
}
