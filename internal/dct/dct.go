// Package dct implements the 8x8 inverse discrete cosine transform used by
// the JPEG pipeline.
//
// The integer path is a two-pass separable IDCT with fixed-point
// coefficients. The per-pass 0.5 scale factor of the reference algorithm is
// folded into the coefficient table, accumulation uses 64-bit sums, and each
// pass descales with round-to-nearest. The float64 path is the reference
// implementation; the integer output stays within |error| < 2 of it.
package dct

import (
	"math"
	"sync"
)

// fracBits is the fixed-point precision of the coefficient table.
const fracBits = 20

const half = int64(1) << (fracBits - 1)

var (
	coefOnce sync.Once
	coef     [8][8]int32
)

// coefTable returns the fixed-point cosine table, built on first use and
// immutable afterwards.
func coefTable() *[8][8]int32 {
	coefOnce.Do(func() {
		scale := float64(int64(1) << fracBits)
		for u := 0; u < 8; u++ {
			cu := 1.0
			if u == 0 {
				cu = 1.0 / math.Sqrt2
			}
			for x := 0; x < 8; x++ {
				c := cu * math.Cos((2.0*float64(x)+1.0)*float64(u)*math.Pi/16.0) * 0.5
				coef[u][x] = int32(math.Round(c * scale))
			}
		}
	})
	return &coef
}

// Inverse transforms one dequantized 8x8 block (natural order) into spatial
// samples, before level shift.
func Inverse(in, out *[64]int32) {
	c := coefTable()
	var tmp [64]int32

	// Rows
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			var sum int64
			for u := 0; u < 8; u++ {
				sum += int64(in[y*8+u]) * int64(c[u][x])
			}
			tmp[y*8+x] = int32((sum + half) >> fracBits)
		}
	}

	// Columns
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			var sum int64
			for v := 0; v < 8; v++ {
				sum += int64(tmp[v*8+x]) * int64(c[v][y])
			}
			out[y*8+x] = int32((sum + half) >> fracBits)
		}
	}
}

// InverseFloat is the float64 reference transform.
func InverseFloat(in, out *[64]float64) {
	var tmp [64]float64

	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			s := 0.0
			for u := 0; u < 8; u++ {
				cu := 1.0
				if u == 0 {
					cu = 1.0 / math.Sqrt2
				}
				s += cu * in[y*8+u] * math.Cos((2.0*float64(x)+1.0)*float64(u)*math.Pi/16.0)
			}
			tmp[y*8+x] = s * 0.5
		}
	}

	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			s := 0.0
			for v := 0; v < 8; v++ {
				cv := 1.0
				if v == 0 {
					cv = 1.0 / math.Sqrt2
				}
				s += cv * tmp[v*8+x] * math.Cos((2.0*float64(y)+1.0)*float64(v)*math.Pi/16.0)
			}
			out[y*8+x] = s * 0.5
		}
	}
}
