package extract

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/tilestats/internal/filter"
	"github.com/mohammed-shakir/tilestats/internal/spatialindex"
	"github.com/mohammed-shakir/tilestats/internal/tile"
)

func uniqueKey(rec tile.Record, props []string) string {
	for _, p := range props {
		if v, ok := rec.Get(p); ok && v != nil {
			return fmt.Sprintf("%s=%v", p, v)
		}
	}
	return ""
}

func geoRows(t *tile.Tile, f *filter.Filter, uniqueIDs []string) []row {
	g := t.Geometries
	if g == nil {
		return nil
	}
	var out []row
	add := func(cols *tile.Columns, id int) {
		rec := cols.Record(id)
		out = append(out, row{rec: rec, key: uniqueKey(rec, uniqueIDs)})
	}

	if p := g.Points; p != nil {
		seen := map[int]struct{}{}
		for v := range p.Positions.Len() {
			id := p.FeatureAt(v)
			if _, ok := seen[id]; ok {
				continue
			}
			if f == nil || f.ContainsPoint(p.Positions.At(v)) {
				seen[id] = struct{}{}
				add(&p.Columns, id)
			}
		}
	}

	if l := g.Lines; l != nil {
		seen := map[int]struct{}{}
		for i := 0; i+1 < len(l.PathIndices); i++ {
			start, end := l.PathIndices[i], l.PathIndices[i+1]
			if start == end {
				continue
			}
			id := l.FeatureAt(start)
			if _, ok := seen[id]; ok {
				continue
			}
			if f == nil || f.IntersectsLine(orb.LineString(l.Ring(start, end))) {
				seen[id] = struct{}{}
				add(&l.Columns, id)
			}
		}
	}

	if p := g.Polygons; p != nil {
		seen := map[int]struct{}{}
		ring := 0
		for i := 0; i+1 < len(p.PolygonIndices); i++ {
			start, end := p.PolygonIndices[i], p.PolygonIndices[i+1]
			var poly orb.Polygon
			for ; ring+1 < len(p.PrimitivePolygonIndices); ring++ {
				rs, re := p.PrimitivePolygonIndices[ring], p.PrimitivePolygonIndices[ring+1]
				if rs >= end {
					break
				}
				if rs >= start && re > rs {
					poly = append(poly, p.Ring(rs, re))
				}
			}
			if start == end || len(poly) == 0 {
				continue
			}
			id := p.FeatureAt(start)
			if _, ok := seen[id]; ok {
				continue
			}
			if f == nil || f.IntersectsPolygon(poly) {
				seen[id] = struct{}{}
				add(&p.Columns, id)
			}
		}
	}
	return out
}

func cellRows(t *tile.Tile, f *filter.Filter, ex *spatialindex.Expander, target int, cellColumn string) ([]row, error) {
	if t.Cells == nil {
		return nil, nil
	}
	out := make([]row, 0, len(t.Cells.IDs))
	for i, id := range t.Cells.IDs {
		rec := t.Cells.Columns.Record(i).WithCell(cellColumn, id)
		if f == nil {
			out = append(out, row{rec: rec, key: id, cells: []string{id}})
			continue
		}
		matched, err := f.MatchCell(ex, id, target)
		if err != nil {
			return nil, fmt.Errorf("%w: cell %q: %v", tile.ErrMalformedTile, id, err)
		}
		if len(matched) > 0 {
			out = append(out, row{rec: rec, key: id, cells: matched})
		}
	}
	return out, nil
}

func rasterRows(t *tile.Tile, f *filter.Filter, cellColumn string) ([]row, error) {
	b := t.Raster
	if b == nil {
		return nil, nil
	}
	q := spatialindex.Quadbin{}
	pixels, err := q.BlockPixels(t.Index, b.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tile.ErrMalformedTile, err)
	}
	var offsets []int
	if f == nil {
		offsets = make([]int, len(pixels))
		for i := range offsets {
			offsets[i] = i
		}
	} else if offsets, err = f.MatchRasterBlock(q, t.Index, b.BlockSize); err != nil {
		return nil, fmt.Errorf("%w: %v", tile.ErrMalformedTile, err)
	}

	out := make([]row, 0, len(offsets))
	for _, i := range offsets {
		if b.IsNoData(i) {
			continue
		}
		id := q.FromTile(pixels[i])
		out = append(out, row{rec: b.Bands.Record(i).WithCell(cellColumn, id), key: id, cells: []string{id}})
	}
	return out, nil
}
