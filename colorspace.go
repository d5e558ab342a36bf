// Color space conversions for the JPEG pipeline.
//
// JPEG stores spatial samples level-shifted around zero; every conversion
// here takes centered int16 samples and produces 8-bit output. The YCbCr
// matrix is the ITU-R BT.601 inverse used by JFIF; YCCK and CMYK follow
// Adobe's conventions, with K applied as a 1-k scale on the RGB result.
package rastercodec

import "math"

// clamp8 clamps v into the 8-bit sample range.
func clamp8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// levelShift8 recenters a spatial sample and clamps it to 8 bits.
func levelShift8(v int16) uint8 {
	return clamp8(int(v) + 128)
}

// ycbcrToRGB converts one centered YCbCr sample triple to RGB, scaled by k
// in [0, 1] for the YCCK route (k = 1 elsewhere).
func ycbcrToRGB(yc, cb, cr int16, k float64) (uint8, uint8, uint8) {
	y := float64(yc) + 128.0

	r := y + 1.402*float64(cr)
	g := y - 0.344136*float64(cb) - 0.714136*float64(cr)
	b := y + 1.772*float64(cb)

	return clamp8(int(math.Round(k * r))),
		clamp8(int(math.Round(k * g))),
		clamp8(int(math.Round(k * b)))
}

// cmykToRGB converts one centered CMYK sample quadruple to RGB.
func cmykToRGB(cs, ms, ys, ks int16) (uint8, uint8, uint8) {
	c := (float64(cs) + 128.0) / 255.0
	m := (float64(ms) + 128.0) / 255.0
	y := (float64(ys) + 128.0) / 255.0
	k := (float64(ks) + 128.0) / 255.0

	r := (1.0 - c) * (1.0 - k) * 255.0
	g := (1.0 - m) * (1.0 - k) * 255.0
	b := (1.0 - y) * (1.0 - k) * 255.0

	return clamp8(int(math.Round(r))),
		clamp8(int(math.Round(g))),
		clamp8(int(math.Round(b)))
}

// inverseK returns the 1-k scale of a centered K sample.
func inverseK(ks int16) float64 {
	return 1.0 - (float64(ks)+128.0)/255.0
}
