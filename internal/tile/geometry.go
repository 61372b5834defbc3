package tile

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Positions is a flat coordinate buffer with Size components per vertex.
type Positions struct {
	Value []float64 `json:"value"`
	Size  int       `json:"size"`
}

func (p Positions) Len() int {
	if p.Size < 2 {
		return 0
	}
	return len(p.Value) / p.Size
}

func (p Positions) At(v int) orb.Point {
	o := v * p.Size
	return orb.Point{p.Value[o], p.Value[o+1]}
}

// Geometry is the binary layout of one geometry type within a vector tile.
// FeatureIDs maps each vertex to the property row of its feature.
// PathIndices delimit lines; PolygonIndices delimit polygons and
// PrimitivePolygonIndices delimit their rings.
type Geometry struct {
	Positions               Positions `json:"positions"`
	FeatureIDs              []int     `json:"featureIds,omitempty"`
	PathIndices             []int     `json:"pathIndices,omitempty"`
	PolygonIndices          []int     `json:"polygonIndices,omitempty"`
	PrimitivePolygonIndices []int     `json:"primitivePolygonIndices,omitempty"`
	Columns                 Columns   `json:"columns"`
}

// FeatureAt returns the property row of vertex v.
func (g *Geometry) FeatureAt(v int) int {
	if g.FeatureIDs == nil {
		return v
	}
	return g.FeatureIDs[v]
}

func (g *Geometry) Ring(start, end int) orb.Ring {
	r := make(orb.Ring, 0, end-start)
	for v := start; v < end; v++ {
		r = append(r, g.Positions.At(v))
	}
	return r
}

func (g *Geometry) validate(kind string) error {
	n := g.Positions.Len()
	if g.Positions.Size < 2 || len(g.Positions.Value)%g.Positions.Size != 0 {
		return fmt.Errorf("%w: %s positions size %d with %d values",
			ErrMalformedTile, kind, g.Positions.Size, len(g.Positions.Value))
	}
	if g.FeatureIDs != nil && len(g.FeatureIDs) != n {
		return fmt.Errorf("%w: %s has %d feature ids for %d vertices", ErrMalformedTile, kind, len(g.FeatureIDs), n)
	}
	rows := g.Columns.Rows()
	for _, id := range g.FeatureIDs {
		if id < 0 || (rows > 0 && id >= rows) {
			return fmt.Errorf("%w: %s feature id %d out of range", ErrMalformedTile, kind, id)
		}
	}
	for _, idx := range [][]int{g.PathIndices, g.PolygonIndices, g.PrimitivePolygonIndices} {
		if err := checkOffsets(idx, n); err != nil {
			return fmt.Errorf("%w: %s %v", ErrMalformedTile, kind, err)
		}
	}
	return g.Columns.Validate()
}

func checkOffsets(idx []int, n int) error {
	for i, o := range idx {
		if o < 0 || o > n {
			return fmt.Errorf("offset %d out of range [0,%d]", o, n)
		}
		if i > 0 && o < idx[i-1] {
			return fmt.Errorf("offsets not ascending at %d", i)
		}
	}
	return nil
}

// Geometries holds the three geometry sections of a vector tile.
type Geometries struct {
	Points   *Geometry `json:"points,omitempty"`
	Lines    *Geometry `json:"lines,omitempty"`
	Polygons *Geometry `json:"polygons,omitempty"`
}

func (g *Geometries) Validate() error {
	if g.Points != nil {
		if err := g.Points.validate("points"); err != nil {
			return err
		}
	}
	if g.Lines != nil {
		if err := g.Lines.validate("lines"); err != nil {
			return err
		}
		if len(g.Lines.PathIndices) < 2 && g.Lines.Positions.Len() > 0 {
			return fmt.Errorf("%w: lines without path indices", ErrMalformedTile)
		}
	}
	if g.Polygons != nil {
		p := g.Polygons
		if err := p.validate("polygons"); err != nil {
			return err
		}
		if p.Positions.Len() > 0 && (len(p.PolygonIndices) < 2 || len(p.PrimitivePolygonIndices) < 2) {
			return fmt.Errorf("%w: polygons without polygon indices", ErrMalformedTile)
		}
	}
	return nil
}
