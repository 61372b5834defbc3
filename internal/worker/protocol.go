// Package worker registers datasets and answers widget calls against them
// through a request/response message boundary.
package worker

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/tilestats/internal/aggregate"
	"github.com/mohammed-shakir/tilestats/internal/filter"
	"github.com/mohammed-shakir/tilestats/internal/spatialindex"
	"github.com/mohammed-shakir/tilestats/internal/tile"
)

var (
	ErrUnknownDataset = errors.New("dataset not registered")
	ErrUnknownMethod  = errors.New("unknown method")
	ErrBadParams      = errors.New("invalid params")
)

type Method string

const (
	MethodExtract     Method = "extract"
	MethodFormula     Method = "formula"
	MethodGroupBy     Method = "groupBy"
	MethodGroupByDate Method = "groupByDate"
	MethodHistogram   Method = "histogram"
	MethodRange       Method = "range"
	MethodScatter     Method = "scatter"
	MethodTable       Method = "table"
)

// DatasetSpec is the extraction context registered by an init message.
type DatasetSpec struct {
	Kind             tile.Kind           `json:"kind"`
	Tiles            []tile.Tile         `json:"tiles"`
	Resolution       spatialindex.Params `json:"resolution,omitzero"`
	TargetResolution *int                `json:"targetResolution,omitempty"`
	UniqueIDProperty string              `json:"uniqueIdProperty,omitempty"`
	CellColumn       string              `json:"cellColumn,omitempty"`
}

type InitMessage struct {
	DatasetKey string      `json:"datasetKey"`
	RequestID  string      `json:"requestId,omitempty"`
	Dataset    DatasetSpec `json:"dataset"`
}

type Request struct {
	DatasetKey string          `json:"datasetKey"`
	RequestID  string          `json:"requestId"`
	Method     Method          `json:"method"`
	Params     json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	RequestID string          `json:"requestId"`
	OK        bool            `json:"ok"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func failure(id string, err error) Response {
	return Response{RequestID: id, Error: err.Error()}
}

// FilterParams are shared by every method. An explicit spatial filter wins
// over the viewport; neither means no filter.
type FilterParams struct {
	SpatialFilter json.RawMessage      `json:"spatialFilter,omitempty"`
	Viewport      *tile.BBox           `json:"viewport,omitempty"`
	Resolution    *spatialindex.Params `json:"resolution,omitempty"`
}

func (p FilterParams) filter() (*filter.Filter, error) {
	if len(p.SpatialFilter) > 0 && string(p.SpatialFilter) != "null" {
		f, err := filter.ParseGeoJSON(p.SpatialFilter)
		if err != nil {
			return nil, fmt.Errorf("%w: spatialFilter: %w", ErrBadParams, err)
		}
		return f, nil
	}
	if p.Viewport != nil {
		b := p.Viewport.Bound()
		if b.Max[0] < b.Min[0] {
			// antimeridian crossing viewport
			return filter.New(orb.MultiPolygon{
				orb.Bound{Min: b.Min, Max: orb.Point{180, b.Max[1]}}.ToPolygon(),
				orb.Bound{Min: orb.Point{-180, b.Min[1]}, Max: b.Max}.ToPolygon(),
			}), nil
		}
		return filter.FromBound(b), nil
	}
	return nil, nil
}

// ValueParams select the aggregated column(s) and the operations.
type ValueParams struct {
	Column        string   `json:"column,omitempty"`
	Columns       []string `json:"columns,omitempty"`
	JoinOperation string   `json:"joinOperation,omitempty"`
	Operation     string   `json:"operation"`
	OperationExp  string   `json:"operationExp,omitempty"`
}

func (p ValueParams) parse() (aggregate.Columns, aggregate.Operation, error) {
	op, err := aggregate.ParseOperation(p.Operation, p.OperationExp)
	if err != nil {
		return aggregate.Columns{}, aggregate.Operation{}, err
	}
	cols := aggregate.Columns{Names: p.Columns}
	if len(cols.Names) == 0 && p.Column != "" {
		cols.Names = []string{p.Column}
	}
	if p.JoinOperation != "" {
		if cols.Join, err = aggregate.ParseOperation(p.JoinOperation, ""); err != nil {
			return aggregate.Columns{}, aggregate.Operation{}, err
		}
	}
	return cols, op, nil
}

type ExtractParams struct {
	FilterParams
	Columns []string `json:"columns,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

type FormulaParams struct {
	FilterParams
	ValueParams
}

type GroupByParams struct {
	FilterParams
	ValueParams
	KeysColumn      string `json:"keysColumn"`
	OthersThreshold int    `json:"othersThreshold,omitempty"`
	OrderBy         string `json:"orderBy,omitempty"`
}

type GroupByDateParams struct {
	FilterParams
	ValueParams
	KeysColumn string `json:"keysColumn"`
	Interval   string `json:"interval"`
}

type HistogramParams struct {
	FilterParams
	ValueParams
	Ticks []float64 `json:"ticks"`
}

type RangeParams struct {
	FilterParams
	Column string `json:"column"`
}

type ScatterParams struct {
	FilterParams
	XAxisColumn string `json:"xAxisColumn"`
	YAxisColumn string `json:"yAxisColumn"`
}

type TableParams struct {
	FilterParams
	Columns       []string `json:"columns,omitempty"`
	SortBy        string   `json:"sortBy,omitempty"`
	SortDirection string   `json:"sortDirection,omitempty"`
	Offset        int      `json:"offset,omitempty"`
	Limit         int      `json:"limit,omitempty"`
}

// ExtractResult is the wire form of an extraction.
type ExtractResult struct {
	Rows        []map[string]any `json:"rows"`
	Cells       []string         `json:"cells,omitempty"`
	TotalCount  int              `json:"totalCount"`
	Diagnostics []Diagnostic     `json:"diagnostics,omitempty"`
}

type Diagnostic struct {
	TileID string `json:"tileId"`
	Reason string `json:"reason"`
}
