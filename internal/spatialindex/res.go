package spatialindex

import (
	"math"
)

const defaultTileSize = 512

// Params describe the view a dataset is being rendered for.
type Params struct {
	Zoom                float64 `json:"zoom"`
	Latitude            float64 `json:"latitude,omitempty"`
	TileSize            int     `json:"tileSize,omitempty"`
	AggregationResLevel int     `json:"aggregationResLevel,omitempty"`
}

// IsZero reports whether no view was supplied.
func (p Params) IsZero() bool { return p == Params{} }

func (p Params) tileSize() float64 {
	if p.TileSize <= 0 {
		return defaultTileSize
	}
	return float64(p.TileSize)
}

// H3Resolution picks the H3 resolution whose hexagons roughly match the
// on-screen tile pixel grid at the given zoom and latitude.
func H3Resolution(p Params) int {
	zoomOffset := math.Log2(p.tileSize() / defaultTileSize)
	hexScale := 2.0 / 3.0 * (p.Zoom - zoomOffset)
	latFactor := 0.0
	if c := math.Cos(p.Latitude * math.Pi / 180); c > 1e-9 {
		latFactor = math.Log(1 / c)
	}
	return clamp(int(math.Floor(hexScale+latFactor-2)), 0, h3MaxRes)
}

// QuadbinResolution is the view zoom plus the aggregation level, which
// defaults to log2(tileSize) - 3.
func QuadbinResolution(p Params) int {
	level := p.AggregationResLevel
	if level <= 0 {
		level = int(math.Log2(p.tileSize())) - 3
	}
	return clamp(int(math.Floor(p.Zoom))+level, 0, quadbinMaxRes)
}

// TileResolution is the resolution of raster tile indexes for a zoom.
func TileResolution(p Params) int {
	return clamp(int(math.Floor(p.Zoom)), 0, quadbinMaxRes)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
