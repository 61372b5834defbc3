package spatialindex

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
)

var ErrExpansionTooLarge = errors.New("cell expansion too large")

const (
	defaultMemoSize = 4096
	defaultMaxCells = 1 << 16
	// larger expansions are recomputed rather than memoized
	memoMaxCells = 1 << 12
)

// Expander resolves cells to their descendants at a target resolution and
// memoizes the results. Safe for concurrent use.
type Expander struct {
	ix       Interface
	memo     *lru.Cache[string, []string]
	maxCells int
}

func NewExpander(ix Interface, memoSize int) *Expander {
	if memoSize <= 0 {
		memoSize = defaultMemoSize
	}
	memo, err := lru.New[string, []string](memoSize)
	if err != nil {
		panic(fmt.Sprintf("expander memo: %v", err))
	}
	return &Expander{ix: ix, memo: memo, maxCells: defaultMaxCells}
}

func (e *Expander) Index() Interface { return e.ix }

// Fits reports whether expanding one cell from resolution cur to res stays
// within the size Expand accepts.
func (e *Expander) Fits(cur, res int) bool {
	return cur >= res || math.Pow(float64(e.ix.Branching()), float64(res-cur)) <= float64(e.maxCells)
}

// Expand returns cell itself when it is at or below res, otherwise its
// descendants at res. Callers must not modify the returned slice.
func (e *Expander) Expand(cell string, res int) ([]string, error) {
	cur, err := e.ix.Resolution(cell)
	if err != nil {
		return nil, err
	}
	if cur >= res {
		return []string{cell}, nil
	}
	if !e.Fits(cur, res) {
		n := math.Pow(float64(e.ix.Branching()), float64(res-cur))
		return nil, fmt.Errorf("%w: %s from %d to %d yields %.0f cells", ErrExpansionTooLarge, cell, cur, res, n)
	}

	key := cell + "/" + strconv.Itoa(res)
	if v, ok := e.memo.Get(key); ok {
		return v, nil
	}
	kids, err := e.ix.Children(cell, cur+1)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range kids {
		sub, err := e.Expand(k, res)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	if len(out) <= memoMaxCells {
		e.memo.Add(key, out)
	}
	return out, nil
}
