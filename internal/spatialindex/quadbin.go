package spatialindex

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

const (
	quadbinMaxRes = 26

	qbHeader uint64 = 0x4000000000000000
	qbMode   uint64 = 1 << 59
	qbFooter uint64 = 0xfffffffffffff
)

var (
	qbMasks  = [6]uint64{0x5555555555555555, 0x3333333333333333, 0x0f0f0f0f0f0f0f0f, 0x00ff00ff00ff00ff, 0x0000ffff0000ffff, 0x00000000ffffffff}
	qbShifts = [6]uint64{0, 1, 2, 4, 8, 16}
)

// Quadbin is the 64-bit web mercator quadtree index. Ids are lowercase hex.
type Quadbin struct{}

var _ Interface = Quadbin{}

func (Quadbin) Name() string       { return "quadbin" }
func (Quadbin) MaxResolution() int { return quadbinMaxRes }
func (Quadbin) Branching() int     { return 4 }

// FromTile encodes a slippy map tile.
func (Quadbin) FromTile(t maptile.Tile) string {
	return strconv.FormatUint(tileToQuadbin(t), 16)
}

// Tile decodes a cell id into its slippy map tile.
func (Quadbin) Tile(cell string) (maptile.Tile, error) {
	q, err := parseQuadbin(cell)
	if err != nil {
		return maptile.Tile{}, err
	}
	return quadbinToTile(q), nil
}

func (q Quadbin) Resolution(cell string) (int, error) {
	t, err := q.Tile(cell)
	if err != nil {
		return 0, err
	}
	return int(t.Z), nil
}

func (q Quadbin) Parent(cell string, parentRes int) (string, error) {
	if err := validateRes(parentRes, quadbinMaxRes); err != nil {
		return "", err
	}
	t, err := q.Tile(cell)
	if err != nil {
		return "", err
	}
	if parentRes > int(t.Z) {
		return "", fmt.Errorf("parent resolution %d must be <= cell resolution %d", parentRes, t.Z)
	}
	if parentRes == int(t.Z) {
		return cell, nil
	}
	dz := t.Z - maptile.Zoom(parentRes)
	return q.FromTile(maptile.New(t.X>>dz, t.Y>>dz, maptile.Zoom(parentRes))), nil
}

// Children returns the descendants of cell at childRes in row-major order.
func (q Quadbin) Children(cell string, childRes int) ([]string, error) {
	if err := validateRes(childRes, quadbinMaxRes); err != nil {
		return nil, err
	}
	t, err := q.Tile(cell)
	if err != nil {
		return nil, err
	}
	if childRes < int(t.Z) {
		return nil, fmt.Errorf("child resolution %d must be >= cell resolution %d", childRes, t.Z)
	}
	tiles := childTiles(t, childRes-int(t.Z))
	out := make([]string, len(tiles))
	for i, c := range tiles {
		out[i] = q.FromTile(c)
	}
	return out, nil
}

func (q Quadbin) Center(cell string) (orb.Point, error) {
	t, err := q.Tile(cell)
	if err != nil {
		return orb.Point{}, err
	}
	return t.Center(), nil
}

func (q Quadbin) Boundary(cell string) (orb.Polygon, error) {
	t, err := q.Tile(cell)
	if err != nil {
		return nil, err
	}
	return t.Bound().ToPolygon(), nil
}

// BlockPixels returns the tiles of a blockSize x blockSize raster block
// anchored at cell, in row-major order.
func (q Quadbin) BlockPixels(cell string, blockSize int) ([]maptile.Tile, error) {
	t, err := q.Tile(cell)
	if err != nil {
		return nil, err
	}
	levels := 0
	for n := blockSize; n > 1; n >>= 1 {
		if n&1 != 0 {
			return nil, fmt.Errorf("block size %d is not a power of two", blockSize)
		}
		levels++
	}
	if blockSize <= 0 || int(t.Z)+levels > quadbinMaxRes {
		return nil, fmt.Errorf("block size %d at resolution %d exceeds max resolution", blockSize, t.Z)
	}
	return childTiles(t, levels), nil
}

func childTiles(t maptile.Tile, dz int) []maptile.Tile {
	n := uint32(1) << dz
	out := make([]maptile.Tile, 0, n*n)
	z := t.Z + maptile.Zoom(dz)
	for y := range n {
		for x := range n {
			out = append(out, maptile.New(t.X<<dz+x, t.Y<<dz+y, z))
		}
	}
	return out
}

func parseQuadbin(cell string) (uint64, error) {
	q, err := strconv.ParseUint(cell, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse quadbin %q: %v", ErrInvalidCell, cell, err)
	}
	if !quadbinValid(q) {
		return 0, fmt.Errorf("%w: quadbin %q", ErrInvalidCell, cell)
	}
	return q, nil
}

func quadbinValid(q uint64) bool {
	z := (q >> 52) & 0x1f
	unused := qbFooter >> (z * 2)
	return q&qbHeader == qbHeader &&
		(q>>59)&7 == 1 &&
		z <= quadbinMaxRes &&
		q&unused == unused
}

func tileToQuadbin(t maptile.Tile) uint64 {
	z := uint64(t.Z)
	x := uint64(t.X) << (32 - z)
	y := uint64(t.Y) << (32 - z)
	for i := range 5 {
		s, b := qbShifts[5-i], qbMasks[4-i]
		x = (x | x<<s) & b
		y = (y | y<<s) & b
	}
	return qbHeader | qbMode | z<<52 | (x|y<<1)>>12 | qbFooter>>(z*2)
}

func quadbinToTile(q uint64) maptile.Tile {
	z := (q >> 52) & 0x1f
	v := (q & qbFooter) << 12
	x, y := v, v>>1
	for i := range 6 {
		s, b := qbShifts[i], qbMasks[i]
		x = (x | x>>s) & b
		y = (y | y>>s) & b
	}
	return maptile.New(uint32(x>>(32-z)), uint32(y>>(32-z)), maptile.Zoom(z))
}
