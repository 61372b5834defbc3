package spatialindex

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"
)

const h3MaxRes = 15

type H3 struct{}

var _ Interface = H3{}

func (H3) Name() string       { return "h3" }
func (H3) MaxResolution() int { return h3MaxRes }
func (H3) Branching() int     { return 7 }

func parseH3(cell string) (h3.Cell, error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(cell)); err != nil {
		return 0, fmt.Errorf("%w: parse h3 %q: %v", ErrInvalidCell, cell, err)
	}
	if !c.IsValid() {
		return 0, fmt.Errorf("%w: h3 %q", ErrInvalidCell, cell)
	}
	return c, nil
}

func (H3) Resolution(cell string) (int, error) {
	c, err := parseH3(cell)
	if err != nil {
		return 0, err
	}
	return c.Resolution(), nil
}

func (H3) Parent(cell string, parentRes int) (string, error) {
	if err := validateRes(parentRes, h3MaxRes); err != nil {
		return "", err
	}
	c, err := parseH3(cell)
	if err != nil {
		return "", err
	}
	curRes := c.Resolution()
	if parentRes > curRes {
		return "", fmt.Errorf("parent resolution %d must be <= cell resolution %d", parentRes, curRes)
	}
	if parentRes == curRes {
		return cell, nil
	}
	p, err := c.Parent(parentRes)
	if err != nil {
		return "", fmt.Errorf("h3 parent: %w", err)
	}
	return p.String(), nil
}

// Children returns the unique descendants of cell at childRes, sorted.
func (H3) Children(cell string, childRes int) ([]string, error) {
	if err := validateRes(childRes, h3MaxRes); err != nil {
		return nil, err
	}
	c, err := parseH3(cell)
	if err != nil {
		return nil, err
	}
	curRes := c.Resolution()
	if childRes < curRes {
		return nil, fmt.Errorf("child resolution %d must be >= cell resolution %d", childRes, curRes)
	}
	if childRes == curRes {
		return []string{cell}, nil
	}

	kids, err := c.Children(childRes)
	if err != nil {
		return nil, fmt.Errorf("h3 children: %w", err)
	}
	seen := make(map[string]struct{}, len(kids))
	out := make([]string, 0, len(kids))
	for _, k := range kids {
		s := k.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func (H3) Center(cell string) (orb.Point, error) {
	c, err := parseH3(cell)
	if err != nil {
		return orb.Point{}, err
	}
	ll, err := h3.CellToLatLng(c)
	if err != nil {
		return orb.Point{}, fmt.Errorf("h3 center: %w", err)
	}
	return orb.Point{ll.Lng, ll.Lat}, nil
}

func (H3) Boundary(cell string) (orb.Polygon, error) {
	c, err := parseH3(cell)
	if err != nil {
		return nil, err
	}
	b, err := h3.CellToBoundary(c)
	if err != nil {
		return nil, fmt.Errorf("h3 boundary: %w", err)
	}
	ring := make(orb.Ring, 0, len(b)+1)
	for _, ll := range b {
		ring = append(ring, orb.Point{ll.Lng, ll.Lat})
	}
	if len(ring) > 0 {
		ring = append(ring, ring[0])
	}
	return orb.Polygon{ring}, nil
}

func validateRes(res, maxRes int) error {
	if res < 0 || res > maxRes {
		return fmt.Errorf("invalid resolution %d (must be 0..%d)", res, maxRes)
	}
	return nil
}
