package extract

import (
	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/tilestats/internal/tile"
)

const minExtent = 1e-9

type tileEntry struct {
	pos  int
	rect rtreego.Rect
}

func (e *tileEntry) Bounds() rtreego.Rect { return e.rect }

func boundRect(b orb.Bound) (rtreego.Rect, error) {
	w := max(b.Max[0]-b.Min[0], minExtent)
	h := max(b.Max[1]-b.Min[1], minExtent)
	return rtreego.NewRect(rtreego.Point{b.Min[0], b.Min[1]}, []float64{w, h})
}

// candidates returns the positions of tiles whose bbox intersects bound.
// Tiles without a bbox are always candidates.
func candidates(tiles []*tile.Tile, bound orb.Bound) map[int]bool {
	out := make(map[int]bool, len(tiles))
	tree := rtreego.NewTree(2, 25, 50)
	indexed := 0
	for i, t := range tiles {
		if t.BBox.IsZero() {
			out[i] = true
			continue
		}
		r, err := boundRect(t.BBox.Bound())
		if err != nil {
			out[i] = true
			continue
		}
		tree.Insert(&tileEntry{pos: i, rect: r})
		indexed++
	}
	if indexed == 0 {
		return out
	}
	q, err := boundRect(bound)
	if err != nil {
		for i := range tiles {
			out[i] = true
		}
		return out
	}
	for _, s := range tree.SearchIntersect(q) {
		out[s.(*tileEntry).pos] = true
	}
	return out
}
