// Package expr compiles user supplied aggregation expressions. An expression
// sees the non-null values of one group as the list `values` and may call
// the builtins len, min, max, sum and avg.
package expr

import (
	"errors"
	"fmt"
	"math"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

var ErrNonNumeric = errors.New("expression result is not a number")

// Program is a compiled expression. Safe for concurrent use.
type Program struct {
	src string
	fn  starlark.Callable
}

var builtins = starlark.StringDict{
	"sum": starlark.NewBuiltin("sum", builtinSum),
	"avg": starlark.NewBuiltin("avg", builtinAvg),
}

func Compile(src string) (*Program, error) {
	if src == "" {
		return nil, errors.New("empty expression")
	}
	thread := newThread("compile")
	v, err := starlark.EvalOptions(&syntax.FileOptions{}, thread, "custom", "lambda values: ("+src+")", builtins)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	fn, ok := v.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("compile %q: not callable", src)
	}
	v.Freeze()
	return &Program{src: src, fn: fn}, nil
}

func (p *Program) String() string { return p.src }

// Eval runs the expression over values. A None result reports valid=false.
func (p *Program) Eval(values []float64) (result float64, valid bool, err error) {
	elems := make([]starlark.Value, len(values))
	for i, v := range values {
		elems[i] = starlark.Float(v)
	}
	out, err := starlark.Call(newThread(p.src), p.fn, starlark.Tuple{starlark.NewList(elems)}, nil)
	if err != nil {
		return 0, false, fmt.Errorf("eval %q: %w", p.src, err)
	}
	switch v := out.(type) {
	case starlark.NoneType:
		return 0, false, nil
	case starlark.Float:
		f := float64(v)
		return f, !math.IsNaN(f), nil
	case starlark.Int:
		i, ok := v.Int64()
		if !ok {
			return 0, false, fmt.Errorf("eval %q: integer overflow", p.src)
		}
		return float64(i), true, nil
	case starlark.Bool:
		if v {
			return 1, true, nil
		}
		return 0, true, nil
	default:
		return 0, false, fmt.Errorf("%w: %s", ErrNonNumeric, out.Type())
	}
}

func newThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name:  name,
		Print: func(_ *starlark.Thread, _ string) {},
	}
}

func floats(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) ([]float64, error) {
	var it starlark.Iterable
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &it); err != nil {
		return nil, err
	}
	iter := it.Iterate()
	defer iter.Done()
	var (
		out []float64
		x   starlark.Value
	)
	for iter.Next(&x) {
		f, ok := starlark.AsFloat(x)
		if !ok {
			return nil, fmt.Errorf("%s: non-numeric element %s", b.Name(), x.Type())
		}
		out = append(out, f)
	}
	return out, nil
}

func builtinSum(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	xs, err := floats(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	var total float64
	for _, x := range xs {
		total += x
	}
	return starlark.Float(total), nil
}

func builtinAvg(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	xs, err := floats(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	if len(xs) == 0 {
		return starlark.None, nil
	}
	var total float64
	for _, x := range xs {
		total += x
	}
	return starlark.Float(total / float64(len(xs))), nil
}
