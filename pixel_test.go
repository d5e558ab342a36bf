package rastercodec

import "testing"

func rgbaFormat(bits uint) *PixelFormat {
	f := &PixelFormat{Alpha: 'A'}
	f.Channels = []Channel{{'R', bits}, {'G', bits}, {'B', bits}, {'A', bits}}
	f.CalculateBits()
	return f
}

func TestConvertIdentity(t *testing.T) {
	f := rgbaFormat(8)
	pixels := []Pixel{
		{0, 0, 0, 0},
		{255, 0, 128, 7},
		{1, 2, 3, 4},
	}
	for _, p := range pixels {
		if got := ConvertPixel(p, f, f); !got.Equal(p) {
			t.Errorf("identity: got %v, want %v", got, p)
		}
	}
}

func TestConvertWidths(t *testing.T) {
	var src, dst PixelFormat
	src.Channels = []Channel{{'R', 5}, {'G', 6}, {'B', 5}}
	src.CalculateBits()
	dst.Channels = []Channel{{'R', 8}, {'G', 8}, {'B', 8}}
	dst.CalculateBits()

	// Full-scale 5- and 6-bit values map to full-scale 8-bit.
	got := ConvertPixel(Pixel{31, 0, 31}, &src, &dst)
	if !got.Equal(Pixel{255, 0, 255}) {
		t.Fatalf("got %v, want [255 0 255]", got)
	}

	// Mid-scale values round through the normalized space.
	got = ConvertPixel(Pixel{15, 32, 16}, &src, &dst)
	// 15/31*255 = 123.39, 32/63*255 = 129.52, 16/31*255 = 131.61
	if !got.Equal(Pixel{123, 130, 132}) {
		t.Fatalf("got %v, want [123 130 132]", got)
	}
}

func TestConvertReservedChannel(t *testing.T) {
	var src, dst PixelFormat
	src.Channels = []Channel{{'B', 5}, {'G', 5}, {'R', 5}, {'_', 1}}
	src.CalculateBits()
	dst.Channels = []Channel{{'R', 5}, {'_', 3}, {'B', 5}}
	dst.CalculateBits()

	// The reserved source bit is ignored; the reserved destination
	// channel is written as zero regardless of the source.
	got := ConvertPixel(Pixel{9, 22, 31, 1}, &src, &dst)
	if !got.Equal(Pixel{31, 0, 9}) {
		t.Fatalf("got %v, want [31 0 9]", got)
	}
}

func TestToIntRoundsHalfToEven(t *testing.T) {
	c8 := Channel{'G', 8}
	// 0.5 * 255 = 127.5 lands on the even neighbor 128.
	if got := toInt(0.5, c8); got != 128 {
		t.Fatalf("0.5 over 8 bits: got %d, want 128", got)
	}

	c1 := Channel{'G', 1}
	// 0.5 * 1 = 0.5 lands on 0.
	if got := toInt(0.5, c1); got != 0 {
		t.Fatalf("0.5 over 1 bit: got %d, want 0", got)
	}

	if got := toInt(1, c8); got != 255 {
		t.Fatalf("1.0: got %d, want 255", got)
	}
	if got := toInt(0, c8); got != 0 {
		t.Fatalf("0.0: got %d, want 0", got)
	}
}

func TestPixelColorRoundTrip(t *testing.T) {
	f := rgbaFormat(8)
	p := Pixel{255, 128, 0, 64}

	c := PixelToColor(p, f, f)
	if c[0] != 1 || c[2] != 0 {
		t.Fatalf("normalized: got %v", c)
	}

	back := ColorToPixel(c, f, f)
	if !back.Equal(p) {
		t.Fatalf("round trip: got %v, want %v", back, p)
	}
}

func TestConvertColorPassthrough(t *testing.T) {
	src := rgbaFormat(8)
	var dst PixelFormat
	dst.Channels = []Channel{{'B', 16}, {'G', 16}, {'R', 16}}
	dst.CalculateBits()

	// Normalized values cross layouts untouched, whatever the widths.
	c := ConvertColor(Color{0.25, 0.5, 0.75, 1}, src, &dst)
	if c[0] != 0.75 || c[1] != 0.5 || c[2] != 0.25 {
		t.Fatalf("got %v, want [0.75 0.5 0.25]", c)
	}
}
