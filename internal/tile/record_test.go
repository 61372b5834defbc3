package tile

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
)

func sampleColumns() Columns {
	return NewColumns(
		[]NumericColumn{
			{Name: "pop", Value: []float64{10, math.NaN(), 30}},
			{Name: "area", Value: []float64{1, 1, 2, 2, 3, 3}, Size: 2},
		},
		[]map[string]any{
			{"name": "a", "pop": 999.0},
			{"name": "b", "score": "4.5"},
			{"name": "c"},
		},
		nil,
	)
}

func TestRecord_NumericColumnsTakePrecedence(t *testing.T) {
	cols := sampleColumns()
	r := cols.Record(0)

	v, ok := r.Number("pop")
	if !ok || v != 10 {
		t.Fatalf("pop=%v ok=%v, want 10 from numeric column", v, ok)
	}
	a, ok := r.Number("area")
	if !ok || a != 1 {
		t.Fatalf("area=%v ok=%v, want first value of row", a, ok)
	}
	if a2, _ := cols.Record(2).Number("area"); a2 != 3 {
		t.Fatalf("row 2 area=%v, want 3", a2)
	}
	name, ok := r.Get("name")
	if !ok || name != "a" {
		t.Fatalf("name=%v ok=%v", name, ok)
	}
}

func TestRecord_NullAndMissing(t *testing.T) {
	cols := sampleColumns()
	r := cols.Record(1)

	if _, ok := r.Number("pop"); ok {
		t.Fatalf("null numeric value must not be a number")
	}
	if !r.Has("pop") {
		t.Fatalf("null value is still present")
	}
	if r.Has("missing") {
		t.Fatalf("unknown property must be absent")
	}
	if v, ok := r.Number("score"); !ok || v != 4.5 {
		t.Fatalf("numeric string property: v=%v ok=%v", v, ok)
	}
	if _, ok := r.Number("name"); ok {
		t.Fatalf("text must not parse as number")
	}
}

func TestRecord_CellColumnAndKeys(t *testing.T) {
	cols := sampleColumns()
	r := cols.Record(2).WithCell("h3", "8928308280fffff")

	if v, ok := r.Get("h3"); !ok || v != "8928308280fffff" {
		t.Fatalf("cell column: %v %v", v, ok)
	}
	want := []string{"pop", "area", "name", "h3"}
	if got := r.Keys(); !reflect.DeepEqual(got, want) {
		t.Fatalf("keys=%v want %v", got, want)
	}
	m := r.Map()
	if m["pop"] != 30.0 || m["h3"] != "8928308280fffff" {
		t.Fatalf("unexpected map %v", m)
	}

	// a property already named like the cell column is listed once
	shadowed := NewColumns(
		[]NumericColumn{{Name: "v", Value: []float64{1}}},
		[]map[string]any{{"h3": "stale"}},
		nil,
	)
	sr := shadowed.Record(0).WithCell("h3", "8928308280fffff")
	if got, want := sr.Keys(), []string{"v", "h3"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("keys=%v want %v", got, want)
	}
	if v, _ := sr.Get("h3"); v != "8928308280fffff" {
		t.Fatalf("cell id must shadow the property, got %v", v)
	}
}

func TestColumns_JSONNullsBecomeNaN(t *testing.T) {
	raw := `{"numericProps":[{"name":"v","value":[1,null,3]}],"properties":[{},{},{}]}`
	var cols Columns
	if err := json.Unmarshal([]byte(raw), &cols); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := cols.Number(1, "v"); ok {
		t.Fatalf("null must decode as missing number")
	}
	if v, ok := cols.Number(2, "v"); !ok || v != 3 {
		t.Fatalf("v[2]=%v ok=%v", v, ok)
	}
	out, err := json.Marshal(cols)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !json.Valid(out) {
		t.Fatalf("invalid json %s", out)
	}
}

func TestColumns_ValidateRowMismatch(t *testing.T) {
	cols := NewColumns([]NumericColumn{
		{Name: "a", Value: []float64{1, 2}},
		{Name: "b", Value: []float64{1, 2, 3}},
	}, nil, nil)
	if err := cols.Validate(); !errors.Is(err, ErrMalformedTile) {
		t.Fatalf("expected ErrMalformedTile, got %v", err)
	}
}

func TestRasterBlock_NoData(t *testing.T) {
	b := RasterBlock{
		BlockSize: 2,
		Bands: NewColumns([]NumericColumn{
			{Name: "band_1", Value: []float64{0, 5, 0, math.NaN()}},
			{Name: "band_2", Value: []float64{0, 0, 7, math.NaN()}},
		}, nil, nil),
		NoData: map[string]float64{"band_1": 0, "band_2": 0},
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	want := []bool{true, false, false, true}
	for i, w := range want {
		if got := b.IsNoData(i); got != w {
			t.Fatalf("pixel %d nodata=%v want %v", i, got, w)
		}
	}

	bad := RasterBlock{BlockSize: 3}
	if err := bad.Validate(); !errors.Is(err, ErrMalformedTile) {
		t.Fatalf("block size 3 must be rejected, got %v", err)
	}
}

func TestGeometries_ValidateOffsets(t *testing.T) {
	g := Geometries{Lines: &Geometry{
		Positions:   Positions{Value: []float64{0, 0, 1, 1}, Size: 2},
		FeatureIDs:  []int{0, 0},
		PathIndices: []int{0, 5},
	}}
	if err := g.Validate(); !errors.Is(err, ErrMalformedTile) {
		t.Fatalf("out-of-range path index must be malformed, got %v", err)
	}
}
