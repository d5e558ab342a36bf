package rastercodec

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestTranslateBMPToPNGRoundTrip(t *testing.T) {
	c := qt.New(t)

	// The 2x2 BI_RGB bitmap from the BMP tests, pushed through a PNG
	// encode and decoded again.
	pixels := []byte{
		0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00, 0, 0,
		0xFF, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0, 0,
	}
	bmp := buildBMP(2, 2, 24, biRGB, nil, pixels)

	src := &Reference{Format: ".BMP", Link: bmp, Bytes: len(bmp)}
	png := new(Reference)
	png.Fill()
	png.Format = "R8G8B8A8*PAD1.PNG"

	c.Assert(Translate(src, png, false), qt.IsNil)
	c.Assert(png.Link[:8], qt.DeepEquals, pngSignature[:])

	raw := new(Reference)
	raw.Fill()
	raw.Format = "R8G8B8A8*PAD1"
	c.Assert(Translate(png, raw, false), qt.IsNil)

	want := []byte{
		0, 0, 255, 255, 255, 255, 255, 255,
		255, 0, 0, 255, 0, 255, 0, 255,
	}
	c.Assert(raw.Link[:raw.Bytes], qt.DeepEquals, want)
	c.Assert(raw.W, qt.Equals, 2)
	c.Assert(raw.H, qt.Equals, 2)
}

func TestTranslateAdam7RoundTrip(t *testing.T) {
	c := qt.New(t)

	// 7x7 RGBA with a distinct value per position exercises all seven
	// passes.
	const n = 7
	raw := make([]byte, n*n*4)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			i := (y*n + x) * 4
			raw[i+0] = byte(x * 30)
			raw[i+1] = byte(y * 30)
			raw[i+2] = byte(x*10 + y)
			raw[i+3] = byte(200 + x + y)
		}
	}

	src := &Reference{Format: "R8G8B8A8*PAD1", Link: raw, Bytes: len(raw), W: n, H: n}

	png := new(Reference)
	png.Fill()
	png.Format = "*PAD1.PNG"
	c.Assert(Translate(src, png, false), qt.IsNil)

	// IHDR declares truecolor-alpha, depth 8, Adam7.
	ihdr := png.Link[8+8 : 8+8+pngIHDRSize]
	c.Assert(ihdr[8], qt.Equals, byte(8))
	c.Assert(ihdr[9], qt.Equals, byte(pngTruecolorAlpha))
	c.Assert(ihdr[12], qt.Equals, byte(1))

	back := new(Reference)
	back.Fill()
	back.Format = "R8G8B8A8*PAD1"
	c.Assert(Translate(png, back, false), qt.IsNil)

	c.Assert(back.Link[:back.Bytes], qt.DeepEquals, raw)
}

func TestTranslatePNGToPNGVerbatim(t *testing.T) {
	c := qt.New(t)

	raw := make([]byte, 7*7*4)
	for i := range raw {
		raw[i] = byte(i * 7)
	}
	src := &Reference{Format: "R8G8B8A8*PAD1", Link: raw, Bytes: len(raw), W: 7, H: 7}

	png := new(Reference)
	png.Fill()
	png.Format = "*PAD1.PNG"
	c.Assert(Translate(src, png, false), qt.IsNil)

	// Equal source and destination formats copy the payload verbatim.
	encoded := append([]byte(nil), png.Link[:png.Bytes]...)
	out := new(Reference)
	out.Fill()
	out.Format = "*PAD1.PNG"
	out.W, out.H = 7, 7

	c.Assert(Translate(png, out, false), qt.IsNil)
	c.Assert(out.Link[:out.Bytes], qt.DeepEquals, encoded)
}

func TestTranslateScaleCheckerboard(t *testing.T) {
	c := qt.New(t)

	// A 4x4 black and white checkerboard averaged down to 2x2. Each
	// destination pixel covers two black and two white cells: the 127.5
	// tie rounds half to even, landing on 128.
	raw := make([]byte, 16)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if (x+y)%2 == 0 {
				raw[y*4+x] = 255
			}
		}
	}

	src := &Reference{Format: "G8*PAD1*ALPHA_", Link: raw, Bytes: len(raw), W: 4, H: 4}
	dst := new(Reference)
	dst.Fill()
	dst.Format = "G8*PAD1*ALPHA_"
	dst.W, dst.H = 2, 2

	c.Assert(Translate(src, dst, true), qt.IsNil)
	c.Assert(dst.Link[:dst.Bytes], qt.DeepEquals, []byte{128, 128, 128, 128})
}

func TestTranslateScaleAlphaWeighting(t *testing.T) {
	c := qt.New(t)

	// Two source pixels shrink to one: the transparent white pixel
	// contributes nothing to color, only to coverage.
	raw := []byte{
		0, 0, 0, 255, // opaque black
		255, 255, 255, 0, // transparent white
	}
	src := &Reference{Format: "R8G8B8A8*PAD1", Link: raw, Bytes: len(raw), W: 2, H: 1}

	dst := new(Reference)
	dst.Fill()
	dst.Format = "R8G8B8A8*PAD1"
	dst.W, dst.H = 1, 1

	c.Assert(Translate(src, dst, true), qt.IsNil)
	c.Assert(dst.Link[:dst.Bytes], qt.DeepEquals, []byte{0, 0, 0, 128})
}

func TestTranslateIdentityScaleMatchesDirect(t *testing.T) {
	c := qt.New(t)

	raw := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	src := &Reference{Format: "R8G8B8*PAD1", Link: raw, Bytes: len(raw), W: 2, H: 2}

	// A channel swap keeps the formats unequal so the identity-sized
	// scale really runs the resampler's direct shortcut.
	scaled := new(Reference)
	scaled.Fill()
	scaled.Format = "B8G8R8*PAD1"
	scaled.W, scaled.H = 2, 2
	c.Assert(Translate(src, scaled, true), qt.IsNil)

	direct := new(Reference)
	direct.Fill()
	direct.Format = "B8G8R8*PAD1"
	c.Assert(Translate(src, direct, false), qt.IsNil)

	want := []byte{3, 2, 1, 6, 5, 4, 9, 8, 7, 12, 11, 10}
	c.Assert(scaled.Link[:scaled.Bytes], qt.DeepEquals, want)
	c.Assert(scaled.Link[:scaled.Bytes], qt.DeepEquals, direct.Link[:direct.Bytes])
}

func TestTranslateANYFSniffing(t *testing.T) {
	c := qt.New(t)

	pixels := []byte{10, 20, 30, 0, 0, 0, 0, 0}
	bmp := buildBMP(1, 1, 24, biRGB, nil, pixels[:4])

	src := &Reference{Format: ".ANYF", Link: bmp, Bytes: len(bmp)}
	dst := new(Reference)
	dst.Fill()
	dst.Format = "R8G8B8*PAD1"

	c.Assert(Translate(src, dst, false), qt.IsNil)
	c.Assert(dst.Link[:dst.Bytes], qt.DeepEquals, []byte{30, 20, 10})
}

func TestTranslateMissingFormat(t *testing.T) {
	c := qt.New(t)

	src := &Reference{Link: []byte{1}, Bytes: 1}
	dst := new(Reference)
	dst.Fill()

	c.Assert(Translate(src, dst, false), qt.IsNotNil)
}

func TestTranslateDestinationInheritsSourceFormat(t *testing.T) {
	c := qt.New(t)

	raw := []byte{9, 8, 7, 6}
	src := &Reference{Format: "G8*PAD1", Link: raw, Bytes: len(raw), W: 2, H: 2}
	dst := new(Reference)
	dst.Fill()

	c.Assert(Translate(src, dst, false), qt.IsNil)
	c.Assert(dst.Format, qt.Equals, "G8*PAD1")
	c.Assert(dst.Link[:dst.Bytes], qt.DeepEquals, raw)
}
