// Package spatialindex wraps the hierarchical cell systems used by tiled
// datasets (H3 and quadbin) behind one interface.
package spatialindex

import (
	"errors"

	"github.com/paulmach/orb"
)

var ErrInvalidCell = errors.New("invalid cell")

// Interface is a hierarchical discrete global grid addressed by string ids.
type Interface interface {
	Name() string
	MaxResolution() int
	Resolution(cell string) (int, error)
	Parent(cell string, res int) (string, error)
	Children(cell string, res int) ([]string, error)
	// Center returns the cell center as lon/lat.
	Center(cell string) (orb.Point, error)
	Boundary(cell string) (orb.Polygon, error)
	// Branching is the number of children one level down.
	Branching() int
}

// IsAncestor reports whether a strictly contains b.
func IsAncestor(ix Interface, a, b string) (bool, error) {
	ra, err := ix.Resolution(a)
	if err != nil {
		return false, err
	}
	rb, err := ix.Resolution(b)
	if err != nil {
		return false, err
	}
	if ra >= rb {
		return false, nil
	}
	p, err := ix.Parent(b, ra)
	if err != nil {
		return false, err
	}
	return p == a, nil
}
