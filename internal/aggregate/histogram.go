package aggregate

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/mohammed-shakir/tilestats/internal/tile"
)

type HistogramParams struct {
	Columns   Columns
	Operation Operation
	Ticks     []float64
}

// Histogram returns len(ticks)+1 bins. Bin 0 holds values below the first
// tick and bin i holds ticks[i-1] <= v < ticks[i]. Ticks are sorted and
// de-duplicated first. Null values are excluded and empty bins are 0.
func Histogram(records []tile.Record, p HistogramParams) ([]float64, error) {
	r, err := newReducer(p.Operation)
	if err != nil {
		return nil, err
	}
	if err := p.Columns.check(); err != nil {
		return nil, err
	}
	ticks, err := normalizeTicks(p.Ticks)
	if err != nil {
		return nil, err
	}

	bins := make([][]float64, len(ticks)+1)
	for _, rec := range records {
		v, ok := p.Columns.value(rec)
		if !ok {
			continue
		}
		i := sort.Search(len(ticks), func(i int) bool { return ticks[i] > v })
		bins[i] = append(bins[i], v)
	}

	out := make([]float64, len(bins))
	for i, vals := range bins {
		if len(vals) == 0 {
			continue
		}
		s, err := r.reduce(vals)
		if err != nil {
			return nil, err
		}
		if s.Valid {
			out[i] = s.Value
		}
	}
	return out, nil
}

func normalizeTicks(ticks []float64) ([]float64, error) {
	out := make([]float64, 0, len(ticks))
	for _, t := range ticks {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, fmt.Errorf("invalid histogram tick %v", t)
		}
		out = append(out, t)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
