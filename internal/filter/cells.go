package filter

import (
	"fmt"
	"math"
	"sort"

	"github.com/mohammed-shakir/tilestats/internal/spatialindex"
)

// MatchCell expands cell to res and returns the descendants whose centers
// are inside the filter, sorted. A cell already at or below res is tested
// as itself. Expansions too large to materialize at once are walked level
// by level, skipping branches whose padded boundary misses the filter.
func (f *Filter) MatchCell(ex *spatialindex.Expander, cell string, res int) ([]string, error) {
	if f.Degenerate() {
		return nil, nil
	}
	out, err := f.matchCell(ex, cell, res)
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (f *Filter) matchCell(ex *spatialindex.Expander, cell string, res int) ([]string, error) {
	ix := ex.Index()
	cur, err := ix.Resolution(cell)
	if err != nil {
		return nil, err
	}
	if cur < res && !ex.Fits(cur, res) {
		boundary, err := ix.Boundary(cell)
		if err != nil {
			return nil, fmt.Errorf("boundary of %s: %w", cell, err)
		}
		// H3 descendants overhang their ancestor slightly.
		b := boundary.Bound()
		if !f.IntersectsBound(b.Pad(math.Max(b.Right()-b.Left(), b.Top()-b.Bottom()) / 2)) {
			return nil, nil
		}
		kids, err := ix.Children(cell, cur+1)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, k := range kids {
			sub, err := f.matchCell(ex, k, res)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
		return out, nil
	}

	cells, err := ex.Expand(cell, res)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, c := range cells {
		center, err := ix.Center(c)
		if err != nil {
			return nil, fmt.Errorf("center of %s: %w", c, err)
		}
		if f.ContainsPoint(center) {
			out = append(out, c)
		}
	}
	return out, nil
}

// MatchRasterBlock returns the row-major offsets of the block pixels whose
// footprint intersects the filter.
func (f *Filter) MatchRasterBlock(q spatialindex.Quadbin, origin string, blockSize int) ([]int, error) {
	if f.Degenerate() {
		return nil, nil
	}
	block, err := q.Boundary(origin)
	if err != nil {
		return nil, err
	}
	if !f.IntersectsBound(block.Bound()) {
		return nil, nil
	}
	pixels, err := q.BlockPixels(origin, blockSize)
	if err != nil {
		return nil, err
	}
	var out []int
	for i, px := range pixels {
		b := px.Bound()
		if !f.IntersectsBound(b) {
			continue
		}
		if f.IntersectsPolygon(b.ToPolygon()) {
			out = append(out, i)
		}
	}
	return out, nil
}
