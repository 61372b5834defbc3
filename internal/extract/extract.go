// Package extract selects the records of loaded tiles that fall inside a
// spatial filter.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/tilestats/internal/core/observability"
	"github.com/mohammed-shakir/tilestats/internal/filter"
	"github.com/mohammed-shakir/tilestats/internal/spatialindex"
	"github.com/mohammed-shakir/tilestats/internal/tile"
)

var defaultUniqueIDs = []string{"cartodb_id", "geoid"}

type Options struct {
	// TargetResolution fixes the cell resolution. When nil it is derived
	// from Resolution, or from the data when Resolution is zero.
	TargetResolution *int
	Resolution       spatialindex.Params
	// UniqueIDProperty de-duplicates vector features across tiles.
	UniqueIDProperty string
	// CellColumn names the column exposing the cell id of indexed rows.
	// Defaults to the index name.
	CellColumn  string
	Parallelism int
}

// Diagnostic reports a tile skipped during extraction.
type Diagnostic struct {
	TileID string `json:"tileId"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Result holds the matched records in tile order then row order. Cells
// lists the matched cell ids of indexed datasets.
type Result struct {
	Records     []tile.Record
	Cells       []string
	Diagnostics []Diagnostic
}

type Extractor struct {
	log      *slog.Logger
	memoSize int
	h3       *spatialindex.Expander
	quadbin  *spatialindex.Expander
}

type Option func(*Extractor)

func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.log = l
		}
	}
}

// WithCellCacheSize sets how many cell expansions are memoized per index.
func WithCellCacheSize(n int) Option {
	return func(e *Extractor) { e.memoSize = n }
}

func New(opts ...Option) *Extractor {
	e := &Extractor{log: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	e.h3 = spatialindex.NewExpander(spatialindex.H3{}, e.memoSize)
	e.quadbin = spatialindex.NewExpander(spatialindex.Quadbin{}, e.memoSize)
	return e
}

func (e *Extractor) expander(k tile.Kind) *spatialindex.Expander {
	switch k {
	case tile.KindH3:
		return e.h3
	case tile.KindQuadbin, tile.KindRaster:
		return e.quadbin
	}
	return nil
}

type row struct {
	rec   tile.Record
	key   string
	cells []string
}

type tileOutput struct {
	rows []row
	diag *Diagnostic
}

// Extract returns the records of tiles matching f. A nil filter accepts
// every row. Malformed tiles are skipped and reported in Diagnostics. The
// context is only checked on entry.
func (e *Extractor) Extract(ctx context.Context, tiles []tile.Tile, kind tile.Kind, f *filter.Filter, opts Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if _, err := tile.ParseKind(string(kind)); err != nil {
		return Result{}, err
	}
	start := time.Now()
	var res Result

	kept := e.selectTiles(ctx, tiles, kind, &res)
	ex := e.expander(kind)
	target := 0
	if ex != nil {
		target = e.targetResolution(kind, kept, opts)
		kept = e.dropOverlaps(ctx, ex.Index(), kept, kind, target, &res)
	}
	if f != nil {
		if f.Degenerate() {
			kept = nil
		} else {
			cand := candidates(kept, f.Bound())
			n := 0
			for i, t := range kept {
				if cand[i] {
					kept[n] = t
					n++
				}
			}
			kept = kept[:n]
		}
	}

	cellColumn := opts.CellColumn
	if cellColumn == "" && ex != nil {
		cellColumn = ex.Index().Name()
	}
	uniqueIDs := defaultUniqueIDs
	if opts.UniqueIDProperty != "" {
		uniqueIDs = []string{opts.UniqueIDProperty}
	}

	outputs := make([]tileOutput, len(kept))
	process := func(i int) {
		t := kept[i]
		var (
			rows []row
			err  error
		)
		switch kind {
		case tile.KindGeo:
			rows = geoRows(t, f, uniqueIDs)
		case tile.KindH3, tile.KindQuadbin:
			rows, err = cellRows(t, f, ex, target, cellColumn)
		case tile.KindRaster:
			rows, err = rasterRows(t, f, cellColumn)
		}
		if err != nil {
			outputs[i].diag = &Diagnostic{TileID: t.ID, Reason: err.Error(), Err: err}
			return
		}
		outputs[i].rows = rows
	}
	if opts.Parallelism > 1 && len(kept) > 1 {
		var g errgroup.Group
		g.SetLimit(opts.Parallelism)
		for i := range kept {
			g.Go(func() error {
				process(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range kept {
			process(i)
		}
	}

	seen := map[string]struct{}{}
	for i, out := range outputs {
		if out.diag != nil {
			e.malformed(ctx, kind, kept[i], out.diag.Err)
			res.Diagnostics = append(res.Diagnostics, *out.diag)
			continue
		}
		for _, r := range out.rows {
			if r.key != "" {
				if _, dup := seen[r.key]; dup {
					continue
				}
				seen[r.key] = struct{}{}
			}
			res.Records = append(res.Records, r.rec)
			res.Cells = append(res.Cells, r.cells...)
		}
	}

	observability.ObserveExtraction(string(kind), len(kept), len(res.Diagnostics), len(res.Records), time.Since(start).Seconds())
	return res, nil
}

// selectTiles drops invisible, duplicated and malformed tiles.
func (e *Extractor) selectTiles(ctx context.Context, tiles []tile.Tile, kind tile.Kind, res *Result) []*tile.Tile {
	seen := make(map[string]struct{}, len(tiles))
	out := make([]*tile.Tile, 0, len(tiles))
	for i := range tiles {
		t := &tiles[i]
		if !t.IsVisible {
			continue
		}
		id := t.Identity(kind)
		if _, dup := seen[id]; dup {
			continue
		}
		if err := t.Validate(kind); err != nil {
			e.malformed(ctx, kind, t, err)
			res.Diagnostics = append(res.Diagnostics, Diagnostic{TileID: t.ID, Reason: err.Error(), Err: err})
			continue
		}
		seen[id] = struct{}{}
		out = append(out, t)
	}
	return out
}

func (e *Extractor) targetResolution(kind tile.Kind, tiles []*tile.Tile, opts Options) int {
	if opts.TargetResolution != nil {
		return *opts.TargetResolution
	}
	if !opts.Resolution.IsZero() {
		switch kind {
		case tile.KindH3:
			return spatialindex.H3Resolution(opts.Resolution)
		case tile.KindQuadbin:
			return spatialindex.QuadbinResolution(opts.Resolution)
		default:
			return spatialindex.TileResolution(opts.Resolution)
		}
	}
	ix := e.expander(kind).Index()
	if kind != tile.KindRaster {
		for _, t := range tiles {
			if t.Cells == nil || len(t.Cells.IDs) == 0 {
				continue
			}
			if r, err := ix.Resolution(t.Cells.IDs[0]); err == nil {
				return r
			}
		}
	}
	best := 0
	for _, t := range tiles {
		if r, err := ix.Resolution(t.Index); err == nil && r > best {
			best = r
		}
	}
	return best
}

// dropOverlaps resolves tiles covering each other at different resolutions:
// the ancestor goes when the descendant is at or below target, otherwise
// the descendant goes.
func (e *Extractor) dropOverlaps(ctx context.Context, ix spatialindex.Interface, tiles []*tile.Tile, kind tile.Kind, target int, res *Result) []*tile.Tile {
	resolutions := make([]int, len(tiles))
	bad := make([]bool, len(tiles))
	for i, t := range tiles {
		r, err := ix.Resolution(t.Index)
		if err != nil {
			err = fmt.Errorf("%w: %v", tile.ErrMalformedTile, err)
			e.malformed(ctx, kind, t, err)
			res.Diagnostics = append(res.Diagnostics, Diagnostic{TileID: t.ID, Reason: err.Error(), Err: err})
			bad[i] = true
			continue
		}
		resolutions[i] = r
	}

	drop := make([]bool, len(tiles))
	for i := range tiles {
		for j := range tiles {
			if bad[i] || bad[j] || resolutions[i] >= resolutions[j] {
				continue
			}
			anc, err := spatialindex.IsAncestor(ix, tiles[i].Index, tiles[j].Index)
			if err != nil || !anc {
				continue
			}
			if resolutions[j] <= target {
				drop[i] = true
			} else {
				drop[j] = true
			}
		}
	}

	out := tiles[:0]
	for i, t := range tiles {
		if !bad[i] && !drop[i] {
			out = append(out, t)
		}
	}
	return out
}

func (e *Extractor) malformed(ctx context.Context, kind tile.Kind, t *tile.Tile, err error) {
	observability.IncMalformedTile(string(kind))
	e.log.WarnContext(ctx, "skipping tile", "tile_id", t.ID, "kind", string(kind), "err", err)
}
