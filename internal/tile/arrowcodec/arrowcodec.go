// Package arrowcodec converts Arrow IPC stream payloads into tile columns.
package arrowcodec

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strconv"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"github.com/mohammed-shakir/tilestats/internal/tile"
)

// IDColumn holds the cell id of each row of an indexed payload.
const IDColumn = "id"

// Decode replaces t.Payload with the decoded Cells or Raster block.
// Geo tiles and tiles without a payload are left untouched.
func Decode(t *tile.Tile, kind tile.Kind) error {
	if len(t.Payload) == 0 {
		return nil
	}
	switch kind {
	case tile.KindH3, tile.KindQuadbin:
		c, err := DecodeCells(t.Payload)
		if err != nil {
			return fmt.Errorf("tile %q: %w", t.ID, err)
		}
		t.Cells = c
	case tile.KindRaster:
		blockSize := 0
		if t.Raster != nil {
			blockSize = t.Raster.BlockSize
		}
		r, err := DecodeRaster(t.Payload, blockSize)
		if err != nil {
			return fmt.Errorf("tile %q: %w", t.ID, err)
		}
		t.Raster = r
	default:
		return nil
	}
	t.Payload = nil
	return nil
}

type table struct {
	names  []string
	arrays [][]arrow.Array
	rows   int
}

func (tb *table) release() {
	for _, cols := range tb.arrays {
		for _, a := range cols {
			a.Release()
		}
	}
}

func readTable(payload []byte) (*table, error) {
	rdr, err := ipc.NewReader(bytes.NewReader(payload), ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, fmt.Errorf("%w: arrow stream: %v", tile.ErrMalformedTile, err)
	}
	defer rdr.Release()

	schema := rdr.Schema()
	tb := &table{names: make([]string, schema.NumFields()), arrays: make([][]arrow.Array, schema.NumFields())}
	for i, f := range schema.Fields() {
		tb.names[i] = f.Name
	}
	for rdr.Next() {
		rec := rdr.Record()
		for i := range tb.names {
			col := rec.Column(i)
			col.Retain()
			tb.arrays[i] = append(tb.arrays[i], col)
		}
		tb.rows += int(rec.NumRows())
	}
	if err := rdr.Err(); err != nil {
		tb.release()
		return nil, fmt.Errorf("%w: arrow stream: %v", tile.ErrMalformedTile, err)
	}
	return tb, nil
}

// DecodeCells reads a cell payload: an id column plus attribute columns.
// Numeric columns become numeric columns, anything else becomes properties.
func DecodeCells(payload []byte) (*tile.Cells, error) {
	tb, err := readTable(payload)
	if err != nil {
		return nil, err
	}
	defer tb.release()

	out := &tile.Cells{IDs: make([]string, 0, tb.rows)}
	var (
		numeric []tile.NumericColumn
		props   []map[string]any
		fields  []string
		hasID   bool
	)
	for i, name := range tb.names {
		if name == IDColumn {
			hasID = true
			for _, a := range tb.arrays[i] {
				ids, err := cellIDs(a)
				if err != nil {
					return nil, err
				}
				out.IDs = append(out.IDs, ids...)
			}
			continue
		}
		if col, ok := numericColumn(name, tb.arrays[i], tb.rows); ok {
			numeric = append(numeric, col)
			continue
		}
		if props == nil {
			props = make([]map[string]any, tb.rows)
			for r := range props {
				props[r] = map[string]any{}
			}
		}
		fields = append(fields, name)
		row := 0
		for _, a := range tb.arrays[i] {
			for j := 0; j < a.Len(); j++ {
				if !a.IsNull(j) {
					props[row][name] = scalar(a, j)
				}
				row++
			}
		}
	}
	if !hasID {
		return nil, fmt.Errorf("%w: cell payload without %q column", tile.ErrMalformedTile, IDColumn)
	}
	out.Columns = tile.NewColumns(numeric, props, fields)
	return out, nil
}

// DecodeRaster reads a raster payload with one numeric column per band.
// A zero blockSize is inferred from the row count.
func DecodeRaster(payload []byte, blockSize int) (*tile.RasterBlock, error) {
	tb, err := readTable(payload)
	if err != nil {
		return nil, err
	}
	defer tb.release()

	if blockSize == 0 {
		side := int(math.Sqrt(float64(tb.rows)))
		if side*side != tb.rows || bits.OnesCount(uint(side)) != 1 {
			return nil, fmt.Errorf("%w: %d pixels is not a square power-of-two block", tile.ErrMalformedTile, tb.rows)
		}
		blockSize = side
	}
	bands := make([]tile.NumericColumn, 0, len(tb.names))
	for i, name := range tb.names {
		col, ok := numericColumn(name, tb.arrays[i], tb.rows)
		if !ok {
			return nil, fmt.Errorf("%w: band %q is not numeric", tile.ErrMalformedTile, name)
		}
		bands = append(bands, col)
	}
	return &tile.RasterBlock{BlockSize: blockSize, Bands: tile.NewColumns(bands, nil, nil)}, nil
}

func cellIDs(a arrow.Array) ([]string, error) {
	out := make([]string, a.Len())
	switch arr := a.(type) {
	case *array.String:
		for i := range out {
			out[i] = arr.Value(i)
		}
	case *array.Uint64:
		for i := range out {
			out[i] = strconv.FormatUint(arr.Value(i), 16)
		}
	case *array.Int64:
		for i := range out {
			out[i] = strconv.FormatUint(uint64(arr.Value(i)), 16)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported id type %s", tile.ErrMalformedTile, a.DataType())
	}
	for i := range out {
		if a.IsNull(i) {
			return nil, fmt.Errorf("%w: null cell id at row %d", tile.ErrMalformedTile, i)
		}
	}
	return out, nil
}

func numericColumn(name string, chunks []arrow.Array, rows int) (tile.NumericColumn, bool) {
	vals := make([]float64, 0, rows)
	for _, a := range chunks {
		if !isNumeric(a.DataType()) {
			return tile.NumericColumn{}, false
		}
		for i := 0; i < a.Len(); i++ {
			if a.IsNull(i) {
				vals = append(vals, math.NaN())
				continue
			}
			v, _ := scalar(a, i).(float64)
			vals = append(vals, v)
		}
	}
	return tile.NumericColumn{Name: name, Value: vals}, true
}

func isNumeric(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT32, arrow.FLOAT64:
		return true
	}
	return false
}

func scalar(a arrow.Array, i int) any {
	switch arr := a.(type) {
	case *array.Float64:
		return arr.Value(i)
	case *array.Float32:
		return float64(arr.Value(i))
	case *array.Int64:
		return float64(arr.Value(i))
	case *array.Int32:
		return float64(arr.Value(i))
	case *array.Int16:
		return float64(arr.Value(i))
	case *array.Int8:
		return float64(arr.Value(i))
	case *array.Uint64:
		return float64(arr.Value(i))
	case *array.Uint32:
		return float64(arr.Value(i))
	case *array.Uint16:
		return float64(arr.Value(i))
	case *array.Uint8:
		return float64(arr.Value(i))
	case *array.String:
		return arr.Value(i)
	case *array.Boolean:
		return arr.Value(i)
	default:
		return a.ValueStr(i)
	}
}

// EncodeCells writes c as a single-batch Arrow IPC stream. Numeric columns
// are float64 with nulls for NaN, properties listed in Fields are strings.
func EncodeCells(c *tile.Cells) ([]byte, error) {
	if c == nil {
		return nil, errors.New("nil cells")
	}
	fields := []arrow.Field{{Name: IDColumn, Type: arrow.BinaryTypes.String}}
	for _, n := range c.Columns.Numeric {
		fields = append(fields, arrow.Field{Name: n.Name, Type: arrow.PrimitiveTypes.Float64, Nullable: true})
	}
	for _, f := range c.Columns.Fields {
		fields = append(fields, arrow.Field{Name: f, Type: arrow.BinaryTypes.String, Nullable: true})
	}
	schema := arrow.NewSchema(fields, nil)

	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	b.Field(0).(*array.StringBuilder).AppendValues(c.IDs, nil)
	for i, n := range c.Columns.Numeric {
		fb := b.Field(i + 1).(*array.Float64Builder)
		for row := range c.IDs {
			if v, ok := n.At(row); ok {
				fb.Append(v)
			} else {
				fb.AppendNull()
			}
		}
	}
	off := 1 + len(c.Columns.Numeric)
	for i, f := range c.Columns.Fields {
		sb := b.Field(off + i).(*array.StringBuilder)
		for row := range c.IDs {
			v, ok := c.Columns.Get(row, f)
			if !ok || v == nil {
				sb.AppendNull()
				continue
			}
			sb.Append(fmt.Sprint(v))
		}
	}
	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(memory.DefaultAllocator))
	if err := w.Write(rec); err != nil {
		return nil, fmt.Errorf("arrow write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("arrow close: %w", err)
	}
	return buf.Bytes(), nil
}
