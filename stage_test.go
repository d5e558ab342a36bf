package rastercodec

import "testing"

func TestMiscFlipYDecompress(t *testing.T) {
	// Two bottom-up rows of single-byte pixels become top-down.
	inner := testRaster([]Channel{{'G', 8}}, 0, 2, 2, PackMSBFirst)
	misc := NewMisc(4, false, true, nil, &inner.PixelFormat)

	f := *inner
	f.pushFront(misc)

	src := &Reference{Link: []byte{1, 2, 3, 4}, Bytes: 4}
	dst := new(Reference)
	dst.Fill()

	misc.Decompress(&f, src, dst)

	if f.W != 2 || f.H != 2 {
		t.Fatalf("dimensions: got %dx%d, want 2x2", f.W, f.H)
	}
	if len(f.Compression) != 0 {
		t.Fatal("stage must pop itself")
	}

	want := []byte{3, 4, 1, 2}
	for i, b := range want {
		if dst.Link[i] != b {
			t.Fatalf("byte %d: got %d, want %d", i, dst.Link[i], b)
		}
	}
}

func TestMiscFlipRoundTrip(t *testing.T) {
	inner := testRaster([]Channel{{'G', 8}}, 0, 3, 2, PackMSBFirst)
	misc := NewMisc(6, true, true, nil, &inner.PixelFormat)

	data := []byte{1, 2, 3, 4, 5, 6}

	f := *inner
	f.pushFront(misc)
	src := &Reference{Link: data, Bytes: 6}
	mid := new(Reference)
	mid.Fill()
	misc.Decompress(&f, src, mid)

	back := *inner
	back.pushFront(misc)
	out := new(Reference)
	out.Fill()
	misc.Compress(&back, mid, out)

	for i, b := range data {
		if out.Link[i] != b {
			t.Fatalf("byte %d: got %d, want %d", i, out.Link[i], b)
		}
	}
}

func TestMiscChromaKey(t *testing.T) {
	// Grayscale with key 7: matching pixels get alpha 0, others alpha max.
	var withAlpha PixelFormat
	withAlpha.Channels = []Channel{{'G', 8}, {'A', 8}}
	withAlpha.CalculateBits()

	misc := NewMisc(3, false, false, Pixel{7}, &withAlpha)

	outer := testRaster([]Channel{{'G', 8}}, 0, 3, 1, PackMSBFirst)
	f := *outer
	f.pushFront(misc)

	src := &Reference{Link: []byte{5, 7, 9}, Bytes: 3}
	dst := new(Reference)
	dst.Fill()

	misc.Decompress(&f, src, dst)

	want := []byte{5, 255, 7, 0, 9, 255}
	if dst.Bytes < len(want) {
		t.Fatalf("buffer: got %d bytes, want at least %d", dst.Bytes, len(want))
	}
	for i, b := range want {
		if dst.Link[i] != b {
			t.Fatalf("byte %d: got %d, want %d", i, dst.Link[i], b)
		}
	}
}

func TestPaletteDecode(t *testing.T) {
	var rgb PixelFormat
	rgb.Channels = []Channel{{'R', 8}, {'G', 8}, {'B', 8}}
	rgb.CalculateBits()

	p := NewPalette(4, &rgb)
	p.Samples = []Pixel{
		{255, 0, 0},
		{0, 255, 0},
		{0, 0, 255},
	}

	outer := testRaster([]Channel{{'#', 8}}, 0, 2, 2, PackMSBFirst)
	f := *outer
	f.pushFront(p)

	src := &Reference{Link: []byte{0, 1, 2, 0}, Bytes: 4}
	dst := new(Reference)
	dst.Fill()

	p.Decompress(&f, src, dst)

	want := []byte{255, 0, 0, 0, 255, 0, 0, 0, 255, 255, 0, 0}
	for i, b := range want {
		if dst.Link[i] != b {
			t.Fatalf("byte %d: got %d, want %d", i, dst.Link[i], b)
		}
	}
}

func TestPaletteIndexOutOfRange(t *testing.T) {
	var rgb PixelFormat
	rgb.Channels = []Channel{{'R', 8}, {'G', 8}, {'B', 8}}
	rgb.CalculateBits()

	p := NewPalette(1, &rgb)
	p.Samples = []Pixel{{1, 2, 3}, {4, 5, 6}}

	outer := testRaster([]Channel{{'#', 8}}, 0, 1, 1, PackMSBFirst)
	f := *outer
	f.pushFront(p)

	// Index 2 equals the palette length and must be rejected.
	src := &Reference{Link: []byte{2}, Bytes: 1}
	dst := new(Reference)
	dst.Fill()

	defer func() {
		if recover() == nil {
			t.Fatal("index at palette length must be fatal")
		}
	}()
	p.Decompress(&f, src, dst)
}

func TestPaletteCompressUnimplemented(t *testing.T) {
	var rgb PixelFormat
	rgb.Channels = []Channel{{'R', 8}}
	rgb.CalculateBits()
	p := NewPalette(0, &rgb)

	defer func() {
		if recover() == nil {
			t.Fatal("palette compression must fail fast")
		}
	}()
	f := newFormat()
	p.Compress(&f, &Reference{}, &Reference{})
}

func TestStageEquals(t *testing.T) {
	var g PixelFormat
	g.Channels = []Channel{{'G', 8}}
	g.CalculateBits()

	a := NewMisc(0, false, true, nil, &g)
	b := NewMisc(9, false, true, nil, &g)
	if !a.Equals(b) {
		t.Fatal("size must not distinguish stages")
	}

	c := NewMisc(0, true, true, nil, &g)
	if a.Equals(c) {
		t.Fatal("flip axes must distinguish stages")
	}

	d := NewMisc(0, false, true, Pixel{1}, &g)
	if a.Equals(d) {
		t.Fatal("chroma keys must distinguish stages")
	}

	p := NewPalette(0, &g)
	if a.Equals(p) {
		t.Fatal("stage kinds must distinguish stages")
	}

	r4 := NewRleBmp(0, &g, 4)
	r8 := NewRleBmp(0, &g, 8)
	if r4.Equals(r8) {
		t.Fatal("granules must distinguish RLE stages")
	}
}
