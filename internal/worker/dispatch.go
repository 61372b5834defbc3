package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"time"

	"github.com/mohammed-shakir/tilestats/internal/aggregate"
	"github.com/mohammed-shakir/tilestats/internal/cache"
	"github.com/mohammed-shakir/tilestats/internal/cache/keys"
	"github.com/mohammed-shakir/tilestats/internal/core/observability"
	"github.com/mohammed-shakir/tilestats/internal/extract"
	"github.com/mohammed-shakir/tilestats/internal/logger"
	"github.com/mohammed-shakir/tilestats/internal/tile"
	"github.com/mohammed-shakir/tilestats/internal/tile/arrowcodec"
)

type handler func(d *Dispatcher, ctx context.Context, ds *Dataset, params json.RawMessage) (any, error)

var handlers = map[Method]handler{
	MethodExtract:     (*Dispatcher).extractRows,
	MethodFormula:     (*Dispatcher).formula,
	MethodGroupBy:     (*Dispatcher).groupBy,
	MethodGroupByDate: (*Dispatcher).groupByDate,
	MethodHistogram:   (*Dispatcher).histogram,
	MethodRange:       (*Dispatcher).minMax,
	MethodScatter:     (*Dispatcher).scatter,
	MethodTable:       (*Dispatcher).table,
}

// Dispatcher executes init and method-call messages against a Registry.
// It keeps no per-call state, so calls may run concurrently.
type Dispatcher struct {
	reg         *Registry
	ex          *extract.Extractor
	cache       cache.Interface
	log         *slog.Logger
	parallelism int
	uniqueID    string
	tileSize    int
	resLevel    int
}

type Option func(*Dispatcher)

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

func WithCache(c cache.Interface) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.cache = c
		}
	}
}

func WithExtractor(e *extract.Extractor) Option {
	return func(d *Dispatcher) {
		if e != nil {
			d.ex = e
		}
	}
}

// WithParallelism sets the per-tile fan-out of extraction.
func WithParallelism(n int) Option {
	return func(d *Dispatcher) { d.parallelism = n }
}

// WithUniqueIDProperty sets the feature id property for datasets that do
// not name their own.
func WithUniqueIDProperty(p string) Option {
	return func(d *Dispatcher) { d.uniqueID = p }
}

// WithViewDefaults fills the tile size and aggregation level of view
// parameters that leave them unset.
func WithViewDefaults(tileSize, aggregationResLevel int) Option {
	return func(d *Dispatcher) {
		d.tileSize = tileSize
		d.resLevel = aggregationResLevel
	}
}

func NewDispatcher(reg *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{reg: reg, cache: cache.Nop{}, log: slog.Default()}
	for _, o := range opts {
		o(d)
	}
	if d.ex == nil {
		d.ex = extract.New(extract.WithLogger(d.log))
	}
	return d
}

func (d *Dispatcher) Registry() *Registry { return d.reg }

type initResult struct {
	DatasetKey string `json:"datasetKey"`
	Version    uint64 `json:"version"`
	Tiles      int    `json:"tiles"`
	// MalformedTiles lists tiles whose payload could not be decoded.
	MalformedTiles []string `json:"malformedTiles,omitempty"`
}

// Init registers msg.Dataset under msg.DatasetKey. Arrow payloads are
// decoded here, once per dataset.
func (d *Dispatcher) Init(ctx context.Context, msg InitMessage) Response {
	if msg.DatasetKey == "" {
		return failure(msg.RequestID, fmt.Errorf("%w: datasetKey is required", ErrBadParams))
	}
	spec := msg.Dataset
	if _, err := tile.ParseKind(string(spec.Kind)); err != nil {
		return failure(msg.RequestID, err)
	}
	tiles := slices.Clone(spec.Tiles)
	var malformed []string
	for i := range tiles {
		if err := arrowcodec.Decode(&tiles[i], spec.Kind); err != nil {
			observability.IncMalformedTile(string(spec.Kind))
			d.log.WarnContext(ctx, "undecodable tile payload", "dataset", msg.DatasetKey, "tile_id", tiles[i].ID, "err", err)
			tiles[i].MarkUndecodable(err)
			malformed = append(malformed, tiles[i].ID)
		}
	}
	spec.Tiles = tiles

	ds := d.reg.Init(msg.DatasetKey, spec)
	observability.SetRegistrySize(d.reg.Len())
	d.dropResults(ctx, msg.DatasetKey)
	d.log.InfoContext(ctx, "dataset registered",
		"dataset", ds.Key, "kind", string(spec.Kind), "tiles", len(tiles), "version", ds.Version)

	b, _ := json.Marshal(initResult{DatasetKey: ds.Key, Version: ds.Version, Tiles: len(tiles), MalformedTiles: malformed})
	return Response{RequestID: msg.RequestID, OK: true, Result: b}
}

// Invalidate gives the dataset a new version so cached results stop
// matching. Unknown datasets are ignored.
func (d *Dispatcher) Invalidate(ctx context.Context, key string) error {
	v, ok := d.reg.Touch(key)
	if !ok {
		d.log.DebugContext(ctx, "invalidate for unknown dataset", "dataset", key)
		return nil
	}
	d.log.InfoContext(ctx, "dataset invalidated", "dataset", key, "version", v)
	return d.cache.DropPrefix(ctx, keys.DatasetPrefix(key))
}

// Drop unregisters the dataset and its cached results.
func (d *Dispatcher) Drop(ctx context.Context, key string) error {
	removed := d.reg.Remove(key)
	observability.SetRegistrySize(d.reg.Len())
	if removed {
		d.log.InfoContext(ctx, "dataset dropped", "dataset", key)
	}
	return d.cache.DropPrefix(ctx, keys.DatasetPrefix(key))
}

func (d *Dispatcher) dropResults(ctx context.Context, key string) {
	if err := d.cache.DropPrefix(ctx, keys.DatasetPrefix(key)); err != nil {
		d.log.WarnContext(ctx, "result cache drop failed", "dataset", key, "err", err)
	}
}

// Call answers one method-call message. It never returns a nil Response;
// failures are reported through Response.Error.
func (d *Dispatcher) Call(ctx context.Context, req Request) Response {
	ctx = logger.WithCall(ctx, req.DatasetKey, string(req.Method))
	if err := ctx.Err(); err != nil {
		return failure(req.RequestID, err)
	}
	h, ok := handlers[req.Method]
	if !ok {
		observability.IncWorkerRequest("unknown", "unknown_method")
		return failure(req.RequestID, fmt.Errorf("%w: %q", ErrUnknownMethod, req.Method))
	}
	method := string(req.Method)
	ds, ok := d.reg.Get(req.DatasetKey)
	if !ok {
		observability.IncWorkerRequest(method, "unknown_dataset")
		return failure(req.RequestID, fmt.Errorf("%w: %q", ErrUnknownDataset, req.DatasetKey))
	}

	_, nop := d.cache.(cache.Nop)
	key := keys.ResultKey(ds.Key, ds.Version, method, req.Params)
	if !nop {
		b, hit, err := d.cache.Get(ctx, key)
		switch {
		case err != nil:
			d.log.WarnContext(ctx, "result cache get failed", "err", err)
		case hit:
			observability.IncCacheHit()
			observability.IncWorkerRequest(method, "cached")
			return Response{RequestID: req.RequestID, OK: true, Result: b}
		default:
			observability.IncCacheMiss()
		}
	}

	start := time.Now()
	result, err := d.run(ctx, h, ds, req.Params)
	observability.ObserveAggregation(method, err, time.Since(start).Seconds())
	if err != nil {
		observability.IncWorkerRequest(method, "error")
		d.log.WarnContext(ctx, "call failed", "err", err)
		return failure(req.RequestID, err)
	}
	b, err := json.Marshal(result)
	if err != nil {
		observability.IncWorkerRequest(method, "error")
		return failure(req.RequestID, fmt.Errorf("encode result: %w", err))
	}
	if !nop {
		if err := d.cache.Set(ctx, key, b); err != nil {
			d.log.WarnContext(ctx, "result cache set failed", "err", err)
		}
	}
	observability.IncWorkerRequest(method, "ok")
	return Response{RequestID: req.RequestID, OK: true, Result: b}
}

func (d *Dispatcher) run(ctx context.Context, h handler, ds *Dataset, params json.RawMessage) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.ErrorContext(ctx, "panic in call", "panic", r, "stack", string(debug.Stack()))
			res, err = nil, fmt.Errorf("internal error: %v", r)
		}
	}()
	return h(d, ctx, ds, params)
}

func decode[T any](raw json.RawMessage) (T, error) {
	var p T
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrBadParams, err)
	}
	return p, nil
}

func (d *Dispatcher) records(ctx context.Context, ds *Dataset, fp FilterParams) (extract.Result, error) {
	f, err := fp.filter()
	if err != nil {
		return extract.Result{}, err
	}
	opts := extract.Options{
		TargetResolution: ds.Spec.TargetResolution,
		Resolution:       ds.Spec.Resolution,
		UniqueIDProperty: ds.Spec.UniqueIDProperty,
		CellColumn:       ds.Spec.CellColumn,
		Parallelism:      d.parallelism,
	}
	if fp.Resolution != nil {
		opts.Resolution = *fp.Resolution
	}
	if !opts.Resolution.IsZero() {
		if opts.Resolution.TileSize <= 0 {
			opts.Resolution.TileSize = d.tileSize
		}
		if opts.Resolution.AggregationResLevel <= 0 {
			opts.Resolution.AggregationResLevel = d.resLevel
		}
	}
	if opts.UniqueIDProperty == "" {
		opts.UniqueIDProperty = d.uniqueID
	}
	return d.ex.Extract(ctx, ds.Spec.Tiles, ds.Spec.Kind, f, opts)
}

func (d *Dispatcher) extractRows(ctx context.Context, ds *Dataset, raw json.RawMessage) (any, error) {
	p, err := decode[ExtractParams](raw)
	if err != nil {
		return nil, err
	}
	res, err := d.records(ctx, ds, p.FilterParams)
	if err != nil {
		return nil, err
	}
	out := ExtractResult{Rows: []map[string]any{}, Cells: res.Cells, TotalCount: len(res.Records)}
	recs := res.Records
	if p.Limit > 0 && len(recs) > p.Limit {
		recs = recs[:p.Limit]
	}
	for _, rec := range recs {
		m := rec.Map()
		if len(p.Columns) > 0 {
			sel := make(map[string]any, len(p.Columns))
			for _, c := range p.Columns {
				if v, ok := m[c]; ok {
					sel[c] = v
				}
			}
			m = sel
		}
		out.Rows = append(out.Rows, m)
	}
	for _, dg := range res.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, Diagnostic{TileID: dg.TileID, Reason: dg.Reason})
	}
	return out, nil
}

func (d *Dispatcher) formula(ctx context.Context, ds *Dataset, raw json.RawMessage) (any, error) {
	p, err := decode[FormulaParams](raw)
	if err != nil {
		return nil, err
	}
	cols, op, err := p.parse()
	if err != nil {
		return nil, err
	}
	res, err := d.records(ctx, ds, p.FilterParams)
	if err != nil {
		return nil, err
	}
	return aggregate.Formula(res.Records, aggregate.FormulaParams{Columns: cols, Operation: op})
}

func (d *Dispatcher) groupBy(ctx context.Context, ds *Dataset, raw json.RawMessage) (any, error) {
	p, err := decode[GroupByParams](raw)
	if err != nil {
		return nil, err
	}
	cols, op, err := p.parse()
	if err != nil {
		return nil, err
	}
	res, err := d.records(ctx, ds, p.FilterParams)
	if err != nil {
		return nil, err
	}
	return aggregate.GroupBy(res.Records, aggregate.GroupByParams{
		KeysColumn:      p.KeysColumn,
		Columns:         cols,
		Operation:       op,
		OthersThreshold: p.OthersThreshold,
		OrderBy:         aggregate.OrderBy(p.OrderBy),
	})
}

func (d *Dispatcher) groupByDate(ctx context.Context, ds *Dataset, raw json.RawMessage) (any, error) {
	p, err := decode[GroupByDateParams](raw)
	if err != nil {
		return nil, err
	}
	cols, op, err := p.parse()
	if err != nil {
		return nil, err
	}
	res, err := d.records(ctx, ds, p.FilterParams)
	if err != nil {
		return nil, err
	}
	return aggregate.GroupByDate(res.Records, aggregate.GroupByDateParams{
		KeysColumn: p.KeysColumn,
		Columns:    cols,
		Operation:  op,
		Interval:   aggregate.Interval(p.Interval),
	})
}

func (d *Dispatcher) histogram(ctx context.Context, ds *Dataset, raw json.RawMessage) (any, error) {
	p, err := decode[HistogramParams](raw)
	if err != nil {
		return nil, err
	}
	cols, op, err := p.parse()
	if err != nil {
		return nil, err
	}
	res, err := d.records(ctx, ds, p.FilterParams)
	if err != nil {
		return nil, err
	}
	return aggregate.Histogram(res.Records, aggregate.HistogramParams{Columns: cols, Operation: op, Ticks: p.Ticks})
}

func (d *Dispatcher) minMax(ctx context.Context, ds *Dataset, raw json.RawMessage) (any, error) {
	p, err := decode[RangeParams](raw)
	if err != nil {
		return nil, err
	}
	res, err := d.records(ctx, ds, p.FilterParams)
	if err != nil {
		return nil, err
	}
	return aggregate.MinMax(res.Records, p.Column)
}

func (d *Dispatcher) scatter(ctx context.Context, ds *Dataset, raw json.RawMessage) (any, error) {
	p, err := decode[ScatterParams](raw)
	if err != nil {
		return nil, err
	}
	res, err := d.records(ctx, ds, p.FilterParams)
	if err != nil {
		return nil, err
	}
	return aggregate.Scatter(res.Records, p.XAxisColumn, p.YAxisColumn)
}

func (d *Dispatcher) table(ctx context.Context, ds *Dataset, raw json.RawMessage) (any, error) {
	p, err := decode[TableParams](raw)
	if err != nil {
		return nil, err
	}
	res, err := d.records(ctx, ds, p.FilterParams)
	if err != nil {
		return nil, err
	}
	return aggregate.TablePage(res.Records, aggregate.TableParams{
		Columns:       p.Columns,
		SortBy:        p.SortBy,
		SortDirection: p.SortDirection,
		Offset:        p.Offset,
		Limit:         p.Limit,
	})
}
