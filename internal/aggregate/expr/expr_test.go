package expr

import (
	"errors"
	"testing"
)

func TestProgram_Eval(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		values    []float64
		want      float64
		wantValid bool
	}{
		{"sum", "sum(values)", []float64{1, 2, 3}, 6, true},
		{"range", "max(values) - min(values)", []float64{4, 9, 2}, 7, true},
		{"avg builtin", "avg(values)", []float64{2, 4}, 3, true},
		{"avg of nothing", "avg(values)", nil, 0, false},
		{"count", "len(values)", []float64{1, 1, 1, 1}, 4, true},
		{"conditional", "None if len(values) == 0 else values[0]", nil, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Compile(tc.src)
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			got, valid, err := p.Eval(tc.values)
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}
			if valid != tc.wantValid || (valid && got != tc.want) {
				t.Fatalf("Eval=%v,%v want %v,%v", got, valid, tc.want, tc.wantValid)
			}
		})
	}
}

func TestProgram_Errors(t *testing.T) {
	if _, err := Compile(""); err == nil {
		t.Fatalf("empty expression must fail")
	}
	if _, err := Compile("sum(values"); err == nil {
		t.Fatalf("syntax error must fail at compile time")
	}
	p, err := Compile(`"text"`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, _, err := p.Eval([]float64{1}); !errors.Is(err, ErrNonNumeric) {
		t.Fatalf("expected ErrNonNumeric, got %v", err)
	}
}
