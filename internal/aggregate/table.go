package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mohammed-shakir/tilestats/internal/tile"
)

type Range struct {
	Min Scalar `json:"min"`
	Max Scalar `json:"max"`
}

// MinMax returns the bounds of the non-null values of column.
func MinMax(records []tile.Record, column string) (Range, error) {
	if column == "" {
		return Range{}, ErrMissingColumn
	}
	var out Range
	for _, rec := range records {
		v, ok := rec.Number(column)
		if !ok {
			continue
		}
		if !out.Min.Valid || v < out.Min.Value {
			out.Min = Value(v)
		}
		if !out.Max.Valid || v > out.Max.Value {
			out.Max = Value(v)
		}
	}
	return out, nil
}

// Scatter pairs the x and y columns of records where both are numeric.
func Scatter(records []tile.Record, x, y string) ([][2]float64, error) {
	if x == "" || y == "" {
		return nil, ErrMissingColumn
	}
	out := make([][2]float64, 0, len(records))
	for _, rec := range records {
		xv, okx := rec.Number(x)
		yv, oky := rec.Number(y)
		if okx && oky {
			out = append(out, [2]float64{xv, yv})
		}
	}
	return out, nil
}

type TableParams struct {
	Columns       []string
	SortBy        string
	SortDirection string
	Offset        int
	Limit         int
}

type Table struct {
	Rows       []map[string]any `json:"rows"`
	TotalCount int              `json:"totalCount"`
}

// TablePage sorts records by one column and returns a page of rows.
// Nulls sort last in either direction.
func TablePage(records []tile.Record, p TableParams) (Table, error) {
	desc := false
	switch strings.ToLower(p.SortDirection) {
	case "", "asc":
	case "desc":
		desc = true
	default:
		return Table{}, fmt.Errorf("unknown sort direction %q", p.SortDirection)
	}
	if p.Offset < 0 || p.Limit < 0 {
		return Table{}, fmt.Errorf("negative offset %d or limit %d", p.Offset, p.Limit)
	}

	rows := records
	if p.SortBy != "" {
		rows = make([]tile.Record, len(records))
		copy(rows, records)
		sort.SliceStable(rows, func(i, j int) bool {
			a, _ := rows[i].Get(p.SortBy)
			b, _ := rows[j].Get(p.SortBy)
			return compareCells(a, b, desc) < 0
		})
	}

	start := min(p.Offset, len(rows))
	end := len(rows)
	if p.Limit > 0 {
		end = min(start+p.Limit, len(rows))
	}
	out := Table{Rows: make([]map[string]any, 0, end-start), TotalCount: len(records)}
	for _, rec := range rows[start:end] {
		if len(p.Columns) == 0 {
			out.Rows = append(out.Rows, rec.Map())
			continue
		}
		row := make(map[string]any, len(p.Columns))
		for _, c := range p.Columns {
			row[c], _ = rec.Get(c)
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func compareCells(a, b any, desc bool) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return 1
		default:
			return -1
		}
	}
	var c int
	af, aok := tile.AsNumber(a)
	bf, bok := tile.AsNumber(b)
	switch {
	case aok && bok:
		switch {
		case af < bf:
			c = -1
		case af > bf:
			c = 1
		}
	default:
		c = strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
	if desc {
		return -c
	}
	return c
}
