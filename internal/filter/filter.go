// Package filter evaluates a polygonal spatial filter against points, lines,
// polygons, grid cells and raster blocks.
//
// A point exactly on any ring segment of the filter, outer ring or hole, is
// inside. A filter with zero area matches nothing.
package filter

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

var ErrUnsupportedGeometry = errors.New("unsupported filter geometry")

// Filter is an immutable polygon or multipolygon in lon/lat degrees.
type Filter struct {
	geom  orb.MultiPolygon
	bound orb.Bound
	area  float64
	key   string
}

func New(mp orb.MultiPolygon) *Filter {
	f := &Filter{geom: mp}
	if len(mp) > 0 {
		f.bound = mp.Bound()
	}
	for _, p := range mp {
		f.area += math.Abs(planar.Area(p))
	}
	f.key = hashGeometry(mp)
	return f
}

func FromPolygon(p orb.Polygon) *Filter { return New(orb.MultiPolygon{p}) }

// FromBound builds a rectangular filter, used for viewport fallback.
func FromBound(b orb.Bound) *Filter { return FromPolygon(b.ToPolygon()) }

// ParseGeoJSON accepts a Polygon or MultiPolygon geometry, or a Feature
// wrapping one.
func ParseGeoJSON(data []byte) (*Filter, error) {
	var hdr struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &hdr); err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}
	var g orb.Geometry
	if hdr.Type == "Feature" {
		feat, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("parse feature: %w", err)
		}
		g = feat.Geometry
	} else {
		geom, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("parse geometry: %w", err)
		}
		g = geom.Geometry()
	}
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) == 0 {
			return nil, errors.New("empty polygon")
		}
		return FromPolygon(v), nil
	case orb.MultiPolygon:
		if len(v) == 0 {
			return nil, errors.New("empty multipolygon")
		}
		return New(v), nil
	case nil:
		return nil, fmt.Errorf("%w: missing geometry", ErrUnsupportedGeometry)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, g.GeoJSONType())
	}
}

func (f *Filter) MarshalJSON() ([]byte, error) {
	if len(f.geom) == 1 {
		return geojson.NewGeometry(f.geom[0]).MarshalJSON()
	}
	return geojson.NewGeometry(f.geom).MarshalJSON()
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	g, err := ParseGeoJSON(data)
	if err != nil {
		return err
	}
	*f = *g
	return nil
}

func (f *Filter) Geometry() orb.MultiPolygon { return f.geom }
func (f *Filter) Bound() orb.Bound           { return f.bound }

// Degenerate reports a filter that can never match.
func (f *Filter) Degenerate() bool { return f == nil || f.area == 0 }

// Key is a stable content hash of the filter coordinates.
func (f *Filter) Key() string {
	if f == nil {
		return ""
	}
	return f.key
}

// Equal compares filters by coordinates.
func (f *Filter) Equal(o *Filter) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.key == o.key && f.geom.Equal(o.geom)
}

func hashGeometry(mp orb.MultiPolygon) string {
	h := xxhash.New()
	var buf [8]byte
	for _, p := range mp {
		for _, r := range p {
			for _, pt := range r {
				binary.LittleEndian.PutUint64(buf[:], math.Float64bits(pt[0]))
				_, _ = h.Write(buf[:])
				binary.LittleEndian.PutUint64(buf[:], math.Float64bits(pt[1]))
				_, _ = h.Write(buf[:])
			}
			_, _ = h.WriteString("|")
		}
		_, _ = h.WriteString("#")
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
