package aggregate

import (
	"fmt"

	"github.com/mohammed-shakir/tilestats/internal/tile"
)

// Columns names the value columns of an aggregate and how several of them
// combine into one value per record.
type Columns struct {
	Names []string
	Join  Operation
}

func (c Columns) check() error {
	if len(c.Names) == 0 {
		return ErrMissingColumn
	}
	if len(c.Names) > 1 {
		switch c.Join.Kind {
		case OpCount, OpAvg, OpMin, OpMax, OpSum:
		case 0:
			return ErrMissingJoin
		default:
			return fmt.Errorf("%w: %v cannot join columns", ErrUnknownOperation, c.Join)
		}
	}
	return nil
}

// value returns the record's value: the single column itself, or the join
// of the non-null values of every column. ok is false for null.
func (c Columns) value(r tile.Record) (float64, bool) {
	if len(c.Names) == 1 {
		return r.Number(c.Names[0])
	}
	vals := make([]float64, 0, len(c.Names))
	for _, n := range c.Names {
		if v, ok := r.Number(n); ok {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return 0, false
	}
	s, _ := (&reducer{op: c.Join}).reduce(vals)
	return s.Value, s.Valid
}
