package rastercodec

import (
	"math"

	"github.com/mrjoshuak/go-rastercodec/internal/fault"
)

// Pixel holds one integer value per channel of some PixelFormat.
type Pixel []uint64

// Color is a Pixel with every channel normalized into [0, 1].
type Color []float64

// Equal reports whether two pixels have identical channel values.
func (p Pixel) Equal(other Pixel) bool {
	if len(p) != len(other) {
		return false
	}
	for i, v := range p {
		if v != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the pixel.
func (p Pixel) Clone() Pixel {
	if p == nil {
		return nil
	}
	return append(Pixel(nil), p...)
}

// toInt denormalizes x into channel c's integer range, rounding half to
// even.
func toInt(x float64, c Channel) uint64 {
	fault.Check(0 <= x && x <= 1, "normalized channel value out of [0, 1]")
	max := c.Max()
	if max == 0 {
		return 0
	}
	return uint64(math.RoundToEven(x * float64(max)))
}

// toFloat normalizes x from channel c's integer range into [0, 1].
func toFloat(x uint64, c Channel) float64 {
	max := c.Max()
	fault.Check(x <= max || max == 0, "channel value exceeds channel width")
	if max == 0 {
		return 0
	}
	return float64(x) / float64(max)
}

// resolveSource finds the source channel feeding destination channel dstID,
// falling back to the destination's replacement rules. When no source
// channel applies, the rule's constant is returned instead.
func resolveSource(dstID int, tag byte, srcFmt, dstFmt *PixelFormat) (srcID int, constant uint64, useConst bool) {
	if id, ok := srcFmt.ID(tag); ok {
		return id, 0, false
	}
	rule, id, ok := dstFmt.replace(dstID, srcFmt)
	if ok {
		return id, 0, false
	}
	fault.Checkf(rule != nil && rule.HasConst, "no source channel or replacement for destination channel %q", tag)
	return 0, rule.Const, true
}

// ConvertPixel maps a pixel from srcFmt's layout to dstFmt's. Matching
// channels of equal width pass through; differing widths round-trip through
// a normalized float64.
func ConvertPixel(src Pixel, srcFmt, dstFmt *PixelFormat) Pixel {
	dst := make(Pixel, 0, len(dstFmt.Channels))
	for i, ch := range dstFmt.Channels {
		if ch.Tag == '_' {
			dst = append(dst, 0)
			continue
		}
		srcID, c, useConst := resolveSource(i, ch.Tag, srcFmt, dstFmt)
		if useConst {
			dst = append(dst, c)
			continue
		}
		sc := srcFmt.Channels[srcID]
		if sc.Bits == ch.Bits {
			dst = append(dst, src[srcID])
			continue
		}
		dst = append(dst, toInt(toFloat(src[srcID], sc), ch))
	}
	return dst
}

// PixelToColor maps an integer pixel in srcFmt's layout to a normalized
// color in dstFmt's.
func PixelToColor(src Pixel, srcFmt, dstFmt *PixelFormat) Color {
	dst := make(Color, 0, len(dstFmt.Channels))
	for i, ch := range dstFmt.Channels {
		if ch.Tag == '_' {
			dst = append(dst, 0)
			continue
		}
		srcID, c, useConst := resolveSource(i, ch.Tag, srcFmt, dstFmt)
		if useConst {
			dst = append(dst, toFloat(c, ch))
			continue
		}
		dst = append(dst, toFloat(src[srcID], srcFmt.Channels[srcID]))
	}
	return dst
}

// ColorToPixel maps a normalized color in srcFmt's layout to an integer
// pixel in dstFmt's.
func ColorToPixel(src Color, srcFmt, dstFmt *PixelFormat) Pixel {
	dst := make(Pixel, 0, len(dstFmt.Channels))
	for i, ch := range dstFmt.Channels {
		if ch.Tag == '_' {
			dst = append(dst, 0)
			continue
		}
		srcID, c, useConst := resolveSource(i, ch.Tag, srcFmt, dstFmt)
		if useConst {
			dst = append(dst, c)
			continue
		}
		dst = append(dst, toInt(src[srcID], ch))
	}
	return dst
}

// ConvertColor maps a normalized color from srcFmt's layout to dstFmt's.
// Values are already normalized, so matching channels pass through.
func ConvertColor(src Color, srcFmt, dstFmt *PixelFormat) Color {
	dst := make(Color, 0, len(dstFmt.Channels))
	for i, ch := range dstFmt.Channels {
		if ch.Tag == '_' {
			dst = append(dst, 0)
			continue
		}
		srcID, c, useConst := resolveSource(i, ch.Tag, srcFmt, dstFmt)
		if useConst {
			dst = append(dst, toFloat(c, ch))
			continue
		}
		dst = append(dst, src[srcID])
	}
	return dst
}
