// Package aggregate computes widget statistics over extracted records:
// formula, category, time series, histogram, range, scatter and table.
// Every function is pure over its input records.
package aggregate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mohammed-shakir/tilestats/internal/aggregate/expr"
)

var (
	ErrUnknownOperation = errors.New("unknown aggregation operation")
	ErrMissingColumn    = errors.New("aggregation column required")
	ErrMissingJoin      = errors.New("join operation required for multiple columns")
)

type OpKind int

const (
	OpCount OpKind = iota + 1
	OpAvg
	OpMin
	OpMax
	OpSum
	OpCustom
)

// Operation reduces a list of values to one. Custom operations carry an
// expression evaluated by package expr.
type Operation struct {
	Kind OpKind
	Expr string
}

var (
	Count = Operation{Kind: OpCount}
	Avg   = Operation{Kind: OpAvg}
	Min   = Operation{Kind: OpMin}
	Max   = Operation{Kind: OpMax}
	Sum   = Operation{Kind: OpSum}
)

func Custom(expression string) Operation { return Operation{Kind: OpCustom, Expr: expression} }

func ParseOperation(name, expression string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "count":
		return Count, nil
	case "avg", "average":
		return Avg, nil
	case "min":
		return Min, nil
	case "max":
		return Max, nil
	case "sum":
		return Sum, nil
	case "custom":
		if expression == "" {
			return Operation{}, fmt.Errorf("%w: custom without expression", ErrUnknownOperation)
		}
		return Custom(expression), nil
	default:
		return Operation{}, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
}

func (o Operation) IsZero() bool { return o.Kind == 0 }

func (o Operation) String() string {
	switch o.Kind {
	case OpCount:
		return "count"
	case OpAvg:
		return "avg"
	case OpMin:
		return "min"
	case OpMax:
		return "max"
	case OpSum:
		return "sum"
	case OpCustom:
		return "custom(" + o.Expr + ")"
	default:
		return fmt.Sprintf("op(%d)", int(o.Kind))
	}
}

// Scalar is a nullable number. Invalid scalars encode as JSON null.
type Scalar struct {
	Value float64
	Valid bool
}

func Value(v float64) Scalar { return Scalar{Value: v, Valid: !math.IsNaN(v)} }

var Null = Scalar{}

func (s Scalar) MarshalJSON() ([]byte, error) {
	if !s.Valid || math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}

func (s *Scalar) UnmarshalJSON(data []byte) error {
	var v *float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*s = Null
		return nil
	}
	*s = Value(*v)
	return nil
}

// reducer is an operation prepared for repeated use within one call.
type reducer struct {
	op   Operation
	prog *expr.Program
}

func newReducer(op Operation) (*reducer, error) {
	switch op.Kind {
	case OpCount, OpAvg, OpMin, OpMax, OpSum:
		return &reducer{op: op}, nil
	case OpCustom:
		p, err := expr.Compile(op.Expr)
		if err != nil {
			return nil, err
		}
		return &reducer{op: op, prog: p}, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownOperation, op)
	}
}

// reduce folds non-null values. Empty input yields 0 for count and sum and
// null otherwise.
func (r *reducer) reduce(values []float64) (Scalar, error) {
	switch r.op.Kind {
	case OpCount:
		return Value(float64(len(values))), nil
	case OpSum:
		return Value(sum(values)), nil
	case OpAvg:
		if len(values) == 0 {
			return Null, nil
		}
		return Value(sum(values) / float64(len(values))), nil
	case OpMin, OpMax:
		if len(values) == 0 {
			return Null, nil
		}
		m := values[0]
		for _, v := range values[1:] {
			if (r.op.Kind == OpMin && v < m) || (r.op.Kind == OpMax && v > m) {
				m = v
			}
		}
		return Value(m), nil
	case OpCustom:
		v, ok, err := r.prog.Eval(values)
		if err != nil {
			return Null, err
		}
		if !ok {
			return Null, nil
		}
		return Value(v), nil
	}
	return Null, fmt.Errorf("%w: %v", ErrUnknownOperation, r.op)
}

func sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}
