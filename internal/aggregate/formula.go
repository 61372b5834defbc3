package aggregate

import (
	"github.com/mohammed-shakir/tilestats/internal/tile"
)

type FormulaParams struct {
	Columns   Columns
	Operation Operation
}

// Formula reduces every record to one scalar. Count counts records and
// ignores the columns; other operations skip null values.
func Formula(records []tile.Record, p FormulaParams) (Scalar, error) {
	r, err := newReducer(p.Operation)
	if err != nil {
		return Null, err
	}
	if p.Operation.Kind == OpCount {
		return Value(float64(len(records))), nil
	}
	if err := p.Columns.check(); err != nil {
		return Null, err
	}
	values := make([]float64, 0, len(records))
	for _, rec := range records {
		if v, ok := p.Columns.value(rec); ok {
			values = append(values, v)
		}
	}
	return r.reduce(values)
}
