// Package tile models loaded map tiles and the columnar rows they carry.
package tile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// ErrMalformedTile marks a tile whose payload is structurally inconsistent.
var ErrMalformedTile = errors.New("malformed tile")

type Kind string

const (
	KindGeo     Kind = "geo"
	KindH3      Kind = "h3"
	KindQuadbin Kind = "quadbin"
	KindRaster  Kind = "raster"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindGeo, KindH3, KindQuadbin, KindRaster:
		return k, nil
	case "":
		return "", errors.New("tile kind is required")
	default:
		return "", fmt.Errorf("unknown tile kind %q", s)
	}
}

// Indexed reports whether tiles of this kind are addressed by a cell id.
func (k Kind) Indexed() bool {
	return k == KindH3 || k == KindQuadbin || k == KindRaster
}

// BBox is a WGS84 bounding box. The zero value means unknown.
type BBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

func (b BBox) IsZero() bool { return b == BBox{} }

func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.West, b.South}, Max: orb.Point{b.East, b.North}}
}

// Tile is one loaded tile. Exactly one of Geometries, Cells and Raster is
// populated, matching the dataset kind. Payload holds an Arrow IPC stream
// that is decoded into Cells or Raster before extraction.
type Tile struct {
	ID         string       `json:"id"`
	Zoom       int          `json:"zoom"`
	BBox       BBox         `json:"bbox"`
	IsVisible  bool         `json:"isVisible"`
	Index      string       `json:"index,omitempty"`
	Geometries *Geometries  `json:"geometries,omitempty"`
	Cells      *Cells       `json:"cells,omitempty"`
	Raster     *RasterBlock `json:"raster,omitempty"`
	Payload    []byte       `json:"payload,omitempty"`

	decodeErr error
}

// MarkUndecodable records why Payload could not be decoded. Validate then
// reports the tile as malformed.
func (t *Tile) MarkUndecodable(err error) {
	t.Payload = nil
	t.decodeErr = err
}

// Identity is the key used to collapse duplicate tiles of the same dataset.
func (t *Tile) Identity(k Kind) string {
	if (k == KindH3 || k == KindQuadbin) && t.Index != "" {
		return t.Index
	}
	return t.ID
}

// Validate checks the payload against the dataset kind.
func (t *Tile) Validate(k Kind) error {
	if t.decodeErr != nil {
		return fmt.Errorf("%w: tile %q payload: %v", ErrMalformedTile, t.ID, t.decodeErr)
	}
	switch k {
	case KindGeo:
		if t.Geometries == nil {
			return nil
		}
		return t.Geometries.Validate()
	case KindH3, KindQuadbin:
		if t.Index == "" {
			return fmt.Errorf("%w: tile %q has no index", ErrMalformedTile, t.ID)
		}
		if t.Cells == nil {
			return nil
		}
		return t.Cells.Validate()
	case KindRaster:
		if t.Index == "" {
			return fmt.Errorf("%w: raster tile %q has no index", ErrMalformedTile, t.ID)
		}
		if t.Raster == nil {
			return nil
		}
		return t.Raster.Validate()
	default:
		return fmt.Errorf("unknown tile kind %q", k)
	}
}

// Cells is the payload of an H3 or quadbin tile: one row per cell id.
type Cells struct {
	IDs     []string `json:"ids"`
	Columns Columns  `json:"columns"`
}

func (c *Cells) Validate() error {
	if rows := c.Columns.Rows(); rows != 0 && rows != len(c.IDs) {
		return fmt.Errorf("%w: %d cell ids but %d column rows", ErrMalformedTile, len(c.IDs), rows)
	}
	return c.Columns.Validate()
}
