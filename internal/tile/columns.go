package tile

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// NumericColumn is a flat numeric array with Size values per row. The first
// value of each row is the one exposed to readers. NaN marks a null.
type NumericColumn struct {
	Name  string    `json:"name"`
	Value []float64 `json:"value"`
	Size  int       `json:"size,omitempty"`
}

func (c NumericColumn) stride() int {
	if c.Size <= 0 {
		return 1
	}
	return c.Size
}

func (c NumericColumn) Rows() int { return len(c.Value) / c.stride() }

func (c NumericColumn) At(row int) (float64, bool) {
	i := row * c.stride()
	if row < 0 || i >= len(c.Value) {
		return math.NaN(), false
	}
	v := c.Value[i]
	return v, !math.IsNaN(v)
}

type numericWire struct {
	Name  string     `json:"name"`
	Value []*float64 `json:"value"`
	Size  int        `json:"size,omitempty"`
}

func (c NumericColumn) MarshalJSON() ([]byte, error) {
	w := numericWire{Name: c.Name, Size: c.Size, Value: make([]*float64, len(c.Value))}
	for i := range c.Value {
		if v := c.Value[i]; !math.IsNaN(v) && !math.IsInf(v, 0) {
			w.Value[i] = &v
		}
	}
	return json.Marshal(w)
}

func (c *NumericColumn) UnmarshalJSON(data []byte) error {
	var w numericWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.Name, c.Size = w.Name, w.Size
	c.Value = make([]float64, len(w.Value))
	for i, v := range w.Value {
		if v == nil {
			c.Value[i] = math.NaN()
			continue
		}
		c.Value[i] = *v
	}
	return nil
}

// Columns stores per-row attributes of a tile section. Numeric columns are
// consulted before the free-form Properties rows.
type Columns struct {
	Numeric    []NumericColumn
	Properties []map[string]any
	Fields     []string

	lookup map[string]int
}

func NewColumns(numeric []NumericColumn, properties []map[string]any, fields []string) Columns {
	c := Columns{Numeric: numeric, Properties: properties, Fields: fields}
	c.index()
	return c
}

func (c *Columns) index() {
	c.lookup = make(map[string]int, len(c.Numeric))
	for i, col := range c.Numeric {
		if _, dup := c.lookup[col.Name]; !dup {
			c.lookup[col.Name] = i
		}
	}
}

type columnsWire struct {
	Numeric    []NumericColumn  `json:"numericProps,omitempty"`
	Properties []map[string]any `json:"properties,omitempty"`
	Fields     []string         `json:"fields,omitempty"`
}

func (c Columns) MarshalJSON() ([]byte, error) {
	return json.Marshal(columnsWire{Numeric: c.Numeric, Properties: c.Properties, Fields: c.Fields})
}

func (c *Columns) UnmarshalJSON(data []byte) error {
	var w columnsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = NewColumns(w.Numeric, w.Properties, w.Fields)
	return nil
}

func (c *Columns) numeric(name string) int {
	if c.lookup != nil {
		if i, ok := c.lookup[name]; ok {
			return i
		}
		return -1
	}
	for i := range c.Numeric {
		if c.Numeric[i].Name == name {
			return i
		}
	}
	return -1
}

// Rows is the number of addressable rows across numeric columns and properties.
func (c *Columns) Rows() int {
	n := len(c.Properties)
	for _, col := range c.Numeric {
		if r := col.Rows(); r > n {
			n = r
		}
	}
	return n
}

func (c *Columns) Validate() error {
	rows := -1
	for _, col := range c.Numeric {
		if col.Size < 0 {
			return fmt.Errorf("%w: column %q has negative size", ErrMalformedTile, col.Name)
		}
		if len(col.Value)%col.stride() != 0 {
			return fmt.Errorf("%w: column %q length %d not a multiple of size %d",
				ErrMalformedTile, col.Name, len(col.Value), col.stride())
		}
		switch r := col.Rows(); {
		case rows < 0:
			rows = r
		case r != rows:
			return fmt.Errorf("%w: column %q has %d rows, want %d", ErrMalformedTile, col.Name, r, rows)
		}
	}
	if rows >= 0 && len(c.Properties) != 0 && len(c.Properties) != rows {
		return fmt.Errorf("%w: %d property rows but %d numeric rows", ErrMalformedTile, len(c.Properties), rows)
	}
	return nil
}

// Get returns the raw value of name at row. Nulls in numeric columns are
// reported as present with a nil value.
func (c *Columns) Get(row int, name string) (any, bool) {
	if i := c.numeric(name); i >= 0 {
		if v, ok := c.Numeric[i].At(row); ok {
			return v, true
		}
		return nil, row >= 0 && row < c.Numeric[i].Rows()
	}
	if row < 0 || row >= len(c.Properties) {
		return nil, false
	}
	v, ok := c.Properties[row][name]
	return v, ok
}

// Number returns name at row as a float. Null and non-numeric values report false.
func (c *Columns) Number(row int, name string) (float64, bool) {
	if i := c.numeric(name); i >= 0 {
		return c.Numeric[i].At(row)
	}
	if row < 0 || row >= len(c.Properties) {
		return 0, false
	}
	return AsNumber(c.Properties[row][name])
}

func (c *Columns) Has(row int, name string) bool {
	_, ok := c.Get(row, name)
	return ok
}

// Keys lists the property names visible at row: numeric columns first, then
// properties in Fields order, or sorted when Fields is empty.
func (c *Columns) Keys(row int) []string {
	keys := make([]string, 0, len(c.Numeric))
	seen := make(map[string]struct{}, len(c.Numeric))
	for _, col := range c.Numeric {
		if _, dup := seen[col.Name]; dup {
			continue
		}
		seen[col.Name] = struct{}{}
		keys = append(keys, col.Name)
	}
	if row >= 0 && row < len(c.Properties) && len(c.Fields) > 0 {
		for _, f := range c.Fields {
			if _, dup := seen[f]; dup {
				continue
			}
			if _, ok := c.Properties[row][f]; ok {
				seen[f] = struct{}{}
				keys = append(keys, f)
			}
		}
	} else if row >= 0 && row < len(c.Properties) {
		extra := make([]string, 0, len(c.Properties[row]))
		for k := range c.Properties[row] {
			if _, dup := seen[k]; !dup {
				extra = append(extra, k)
			}
		}
		sort.Strings(extra)
		keys = append(keys, extra...)
	}
	return keys
}

// AsNumber converts decoded property values into a float.
func AsNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil && !math.IsNaN(f)
	default:
		return 0, false
	}
}
