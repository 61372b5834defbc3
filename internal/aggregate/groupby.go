package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mohammed-shakir/tilestats/internal/tile"
)

// OthersName labels the synthetic row that collects groups beyond the threshold.
const OthersName = "_carto_others"

type OrderBy string

const (
	OrderByFrequencyDesc  OrderBy = "frequency_desc"
	OrderByFrequencyAsc   OrderBy = "frequency_asc"
	OrderByAlphabeticDesc OrderBy = "alphabetical_desc"
	OrderByAlphabeticAsc  OrderBy = "alphabetical_asc"
)

type GroupByParams struct {
	KeysColumn string
	Columns    Columns
	Operation  Operation
	// OthersThreshold keeps the top N groups and folds the rest into one
	// row. Zero disables the others row.
	OthersThreshold int
	OrderBy         OrderBy
}

type Category struct {
	Name  any    `json:"name"`
	Value Scalar `json:"value"`
}

type group struct {
	name   any
	values []float64
	value  Scalar
}

// GroupBy buckets records by the keys column. With count every record that
// carries the value column counts, nulls included; without a value column
// every record counts. Other operations skip records whose value is null.
// Keys are compared after normalization, so 1 and 1.0 share a group.
func GroupBy(records []tile.Record, p GroupByParams) ([]Category, error) {
	if p.KeysColumn == "" {
		return nil, fmt.Errorf("%w: keys column", ErrMissingColumn)
	}
	r, err := newReducer(p.Operation)
	if err != nil {
		return nil, err
	}
	counting := p.Operation.Kind == OpCount
	if !counting {
		if err := p.Columns.check(); err != nil {
			return nil, err
		}
	}
	if len(records) == 0 {
		return []Category{}, nil
	}

	index := map[any]int{}
	var groups []*group
	for _, rec := range records {
		raw, _ := rec.Get(p.KeysColumn)
		k := groupKey(raw)
		gi, ok := index[k]
		if !ok {
			gi = len(groups)
			index[k] = gi
			groups = append(groups, &group{name: k})
		}
		if counting {
			if len(p.Columns.Names) == 0 || rec.Has(p.Columns.Names[0]) {
				groups[gi].values = append(groups[gi].values, 1)
			}
			continue
		}
		if v, ok := p.Columns.value(rec); ok {
			groups[gi].values = append(groups[gi].values, v)
		}
	}

	for _, g := range groups {
		if g.value, err = r.reduce(g.values); err != nil {
			return nil, err
		}
	}
	sortGroups(groups, p.OrderBy)

	keep := len(groups)
	if p.OthersThreshold > 0 && p.OthersThreshold < len(groups) {
		keep = p.OthersThreshold
	}
	out := make([]Category, 0, keep+1)
	for _, g := range groups[:keep] {
		out = append(out, Category{Name: g.name, Value: g.value})
	}
	if keep < len(groups) {
		var rest []float64
		for _, g := range groups[keep:] {
			rest = append(rest, g.values...)
		}
		others, err := r.reduce(rest)
		if err != nil {
			return nil, err
		}
		out = append(out, Category{Name: OthersName, Value: others})
	}
	return out, nil
}

func groupKey(v any) any {
	switch k := v.(type) {
	case nil, string, bool, float64:
		return k
	}
	if f, ok := tile.AsNumber(v); ok {
		return f
	}
	return fmt.Sprint(v)
}

func less(a, b Scalar) bool {
	if a.Valid != b.Valid {
		return !a.Valid
	}
	return a.Value < b.Value
}

func sortGroups(groups []*group, order OrderBy) {
	switch order {
	case OrderByFrequencyAsc:
		sort.SliceStable(groups, func(i, j int) bool { return less(groups[i].value, groups[j].value) })
	case OrderByAlphabeticAsc:
		sort.SliceStable(groups, func(i, j int) bool {
			return strings.Compare(fmt.Sprint(groups[i].name), fmt.Sprint(groups[j].name)) < 0
		})
	case OrderByAlphabeticDesc:
		sort.SliceStable(groups, func(i, j int) bool {
			return strings.Compare(fmt.Sprint(groups[i].name), fmt.Sprint(groups[j].name)) > 0
		})
	default:
		sort.SliceStable(groups, func(i, j int) bool {
			a, b := groups[i], groups[j]
			if a.value != b.value {
				return less(b.value, a.value)
			}
			return fmt.Sprint(a.name) < fmt.Sprint(b.name)
		})
	}
}
