package arrowcodec

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"github.com/mohammed-shakir/tilestats/internal/tile"
)

func TestCells_RoundTrip(t *testing.T) {
	in := &tile.Cells{
		IDs: []string{"8928308280fffff", "8928308280bffff"},
		Columns: tile.NewColumns(
			[]tile.NumericColumn{{Name: "pop", Value: []float64{10, math.NaN()}}},
			[]map[string]any{{"name": "a"}, {}},
			[]string{"name"},
		),
	}
	payload, err := EncodeCells(in)
	if err != nil {
		t.Fatalf("EncodeCells: %v", err)
	}
	tl := tile.Tile{ID: "t", Index: "8528308ffffffff", Payload: payload}
	if err := Decode(&tl, tile.KindH3); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if tl.Payload != nil || tl.Cells == nil {
		t.Fatalf("payload not replaced: %+v", tl)
	}
	if !reflect.DeepEqual(tl.Cells.IDs, in.IDs) {
		t.Fatalf("ids=%v", tl.Cells.IDs)
	}
	if v, ok := tl.Cells.Columns.Number(0, "pop"); !ok || v != 10 {
		t.Fatalf("pop[0]=%v %v", v, ok)
	}
	if v, ok := tl.Cells.Columns.Get(1, "pop"); !ok || v != nil {
		t.Fatalf("pop[1] must be a present null, got %v %v", v, ok)
	}
	if v, _ := tl.Cells.Columns.Get(0, "name"); v != "a" {
		t.Fatalf("name[0]=%v", v)
	}
	if _, ok := tl.Cells.Columns.Get(1, "name"); ok {
		t.Fatalf("null string must be absent")
	}
}

func rasterPayload(t *testing.T, vals []float32, valid []bool) []byte {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{{Name: "band_1", Type: arrow.PrimitiveTypes.Float32, Nullable: true}}, nil)
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	b.Field(0).(*array.Float32Builder).AppendValues(vals, valid)
	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	if err := w.Write(rec); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeRaster_InfersBlockSize(t *testing.T) {
	vals := make([]float32, 16)
	valid := make([]bool, 16)
	for i := range vals {
		vals[i], valid[i] = float32(i), i != 3
	}
	r, err := DecodeRaster(rasterPayload(t, vals, valid), 0)
	if err != nil {
		t.Fatalf("DecodeRaster: %v", err)
	}
	if r.BlockSize != 4 {
		t.Fatalf("block size=%d", r.BlockSize)
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v, ok := r.Bands.Number(5, "band_1"); !ok || v != 5 {
		t.Fatalf("pixel 5=%v %v", v, ok)
	}
	if !r.IsNoData(3) {
		t.Fatalf("null pixel must be nodata")
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, err := DecodeCells([]byte("not arrow")); !errors.Is(err, tile.ErrMalformedTile) {
		t.Fatalf("garbage payload: %v", err)
	}
	if _, err := DecodeRaster(rasterPayload(t, make([]float32, 6), nil), 0); !errors.Is(err, tile.ErrMalformedTile) {
		t.Fatalf("non square block: %v", err)
	}
	noID := rasterPayload(t, []float32{1}, nil)
	if _, err := DecodeCells(noID); !errors.Is(err, tile.ErrMalformedTile) {
		t.Fatalf("missing id column: %v", err)
	}
}
