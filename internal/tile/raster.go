package tile

import (
	"fmt"
	"math"
	"math/bits"
)

// RasterBlock is a BlockSize x BlockSize grid of pixels stored row-major,
// one numeric column per band.
type RasterBlock struct {
	BlockSize int                `json:"blockSize"`
	Bands     Columns            `json:"bands"`
	NoData    map[string]float64 `json:"nodata,omitempty"`
}

func (b *RasterBlock) Pixels() int { return b.BlockSize * b.BlockSize }

// Levels is log2(BlockSize): how many resolutions the pixels sit below the tile.
func (b *RasterBlock) Levels() int { return bits.TrailingZeros(uint(b.BlockSize)) }

func (b *RasterBlock) Validate() error {
	if b.BlockSize <= 0 || b.BlockSize&(b.BlockSize-1) != 0 {
		return fmt.Errorf("%w: block size %d is not a power of two", ErrMalformedTile, b.BlockSize)
	}
	for _, band := range b.Bands.Numeric {
		if band.Rows() != b.Pixels() {
			return fmt.Errorf("%w: band %q has %d pixels, want %d",
				ErrMalformedTile, band.Name, band.Rows(), b.Pixels())
		}
	}
	if n := len(b.Bands.Properties); n != 0 && n != b.Pixels() {
		return fmt.Errorf("%w: %d property rows for %d pixels", ErrMalformedTile, n, b.Pixels())
	}
	return b.Bands.Validate()
}

// IsNoData reports whether every band of the pixel is null or equal to its
// band's nodata value.
func (b *RasterBlock) IsNoData(pixel int) bool {
	if len(b.Bands.Numeric) == 0 {
		return false
	}
	for _, band := range b.Bands.Numeric {
		v, ok := band.At(pixel)
		if !ok {
			continue
		}
		if nd, has := b.NoData[band.Name]; has && (v == nd || (math.IsNaN(nd) && math.IsNaN(v))) {
			continue
		}
		return false
	}
	return true
}
