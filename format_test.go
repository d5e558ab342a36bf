package rastercodec

import "testing"

func TestChannelMax(t *testing.T) {
	tests := []struct {
		bits uint
		want uint64
	}{
		{0, 0},
		{1, 1},
		{5, 31},
		{8, 255},
		{16, 65535},
		{32, 0xFFFFFFFF},
	}
	for _, tt := range tests {
		if got := (Channel{'R', tt.bits}).Max(); got != tt.want {
			t.Errorf("Max(%d bits): got %d, want %d", tt.bits, got, tt.want)
		}
	}
}

func TestCalculateBits(t *testing.T) {
	var f PixelFormat
	f.Channels = []Channel{{'R', 5}, {'G', 6}, {'B', 5}, {'_', 0}}
	f.CalculateBits()
	if f.Bits != 16 {
		t.Fatalf("Bits: got %d, want 16", f.Bits)
	}

	f.Channels = append(f.Channels, Channel{'A', 4})
	f.CalculateBits()
	if f.Bits != 20 {
		t.Fatalf("Bits after append: got %d, want 20", f.Bits)
	}
}

func TestLineSize(t *testing.T) {
	f := newFormat()
	f.Channels = []Channel{{'B', 8}, {'G', 8}, {'R', 8}}
	f.CalculateBits()
	f.W, f.H = 2, 2
	f.Pad = 4

	if got := f.LineSize(0); got != 8 {
		t.Fatalf("padded line: got %d, want 8", got)
	}

	f.Pad = 0
	if got := f.LineSize(0); got != 6 {
		t.Fatalf("unpadded line: got %d, want 6", got)
	}

	// Extra bits count toward the row before padding.
	f.Pad = 1
	if got := f.LineSize(8); got != 7 {
		t.Fatalf("line with filter byte: got %d, want 7", got)
	}
}

func TestBufferSizeZeroDimensions(t *testing.T) {
	f := newFormat()
	f.Channels = []Channel{{'G', 8}}
	f.CalculateBits()
	f.Offset = 54
	f.Pad = 4
	f.W, f.H = 0, 10

	if got := f.BufferSize(); got != f.Offset {
		t.Fatalf("zero width: got %d, want %d", got, f.Offset)
	}

	f.W, f.H = 10, 0
	if got := f.BufferSize(); got != f.Offset {
		t.Fatalf("zero height: got %d, want %d", got, f.Offset)
	}
}

func TestBufferSizeUsesFrontStage(t *testing.T) {
	f := newFormat()
	f.Channels = []Channel{{'G', 8}}
	f.CalculateBits()
	f.Offset = 10
	f.W, f.H = 4, 4

	f.pushFront(NewZlibPng(123, &f.PixelFormat))
	if got := f.BufferSize(); got != 133 {
		t.Fatalf("got %d, want 133", got)
	}
}

func TestParseFormatChannels(t *testing.T) {
	ref := &Reference{Format: "R8G8B8A8", W: 3, H: 2}
	f := parseFormat(ref, nil, nil)

	want := []Channel{{'R', 8}, {'G', 8}, {'B', 8}, {'A', 8}}
	if len(f.Channels) != len(want) {
		t.Fatalf("channels: got %v, want %v", f.Channels, want)
	}
	for i, c := range want {
		if f.Channels[i] != c {
			t.Fatalf("channel %d: got %v, want %v", i, f.Channels[i], c)
		}
	}
	if f.Bits != 32 {
		t.Fatalf("bits: got %d, want 32", f.Bits)
	}
	if f.Alpha != 'A' {
		t.Fatalf("alpha: got %q, want 'A'", f.Alpha)
	}
	if f.W != 3 || f.H != 2 {
		t.Fatalf("dimensions: got %dx%d, want 3x2", f.W, f.H)
	}
	// Raw data defaults to DIB row alignment.
	if f.Pad != 4 {
		t.Fatalf("pad: got %d, want 4", f.Pad)
	}
}

func TestParseFormatSettings(t *testing.T) {
	ref := &Reference{Format: "R3G3B2*PAD1*ALPHA_"}
	f := parseFormat(ref, nil, nil)

	if f.Pad != 1 {
		t.Fatalf("pad: got %d, want 1", f.Pad)
	}
	if f.Alpha != '_' {
		t.Fatalf("alpha: got %q, want '_'", f.Alpha)
	}
	if f.Bits != 8 {
		t.Fatalf("bits: got %d, want 8", f.Bits)
	}
}

func TestParseFormatReplacement(t *testing.T) {
	src := parseFormat(&Reference{Format: "R8G8B8"}, nil, nil)

	// Constant replacement for a missing alpha.
	dst := parseFormat(&Reference{Format: "R8G8B8A8*REPA255"}, nil, &src)
	if len(dst.Replacements) != 1 {
		t.Fatalf("replacements: got %d, want 1", len(dst.Replacements))
	}
	rep := dst.Replacements[0]
	if rep.Index != 3 || !rep.HasConst || rep.Const != 255 {
		t.Fatalf("rule: got %+v", rep)
	}

	got := ConvertPixel(Pixel{10, 20, 30}, &src.PixelFormat, &dst.PixelFormat)
	if !got.Equal(Pixel{10, 20, 30, 255}) {
		t.Fatalf("converted: got %v", got)
	}

	// Channel replacement: gray output borrows the red channel when the
	// source has no G of its own.
	gray := parseFormat(&Reference{Format: "G8*REPGR"}, nil, &src)
	if gray.Replacements[0].Source != 'R' {
		t.Fatalf("rule source: got %q", gray.Replacements[0].Source)
	}
	rb := parseFormat(&Reference{Format: "R8B8"}, nil, nil)
	if got := ConvertPixel(Pixel{10, 30}, &rb.PixelFormat, &gray.PixelFormat); !got.Equal(Pixel{10}) {
		t.Fatalf("borrowed channel: got %v, want [10]", got)
	}

	// A rule whose named source is also missing, with no constant, is
	// fatal.
	bgr := parseFormat(&Reference{Format: "B8"}, nil, nil)
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected a fatal conversion")
			}
		}()
		ConvertPixel(Pixel{77}, &bgr.PixelFormat, &gray.PixelFormat)
	}()
}

func TestParseFormatSame(t *testing.T) {
	src := parseFormat(&Reference{Format: "R5G6B5*PAD2"}, nil, nil)
	dst := parseFormat(&Reference{Format: "*SAME"}, nil, &src)

	if !dst.Equal(&src) {
		t.Fatalf("dst = %+v, want a copy of src", dst)
	}
}

func TestFormatEqual(t *testing.T) {
	a := parseFormat(&Reference{Format: "R8G8B8*PAD4", W: 2, H: 2}, nil, nil)
	b := parseFormat(&Reference{Format: "R8G8B8*PAD4", W: 2, H: 2}, nil, nil)
	if !a.Equal(&b) {
		t.Fatal("identical formats must compare equal")
	}

	c := parseFormat(&Reference{Format: "R8G8B8*PAD2", W: 2, H: 2}, nil, nil)
	if a.Equal(&c) {
		t.Fatal("padding must distinguish formats")
	}

	d := parseFormat(&Reference{Format: "B8G8R8*PAD4", W: 2, H: 2}, nil, nil)
	if a.Equal(&d) {
		t.Fatal("channel order must distinguish formats")
	}

	// Stage stacks compare pairwise.
	e, g := a, b
	e.pushFront(NewZlibPng(0, &e.PixelFormat))
	if e.Equal(&g) {
		t.Fatal("stack length must distinguish formats")
	}
	g.pushFront(NewZlibPng(99, &g.PixelFormat))
	if !e.Equal(&g) {
		t.Fatal("stage sizes must not distinguish formats")
	}
	h := a
	h.Compression = []Compression{NewFracturePng(0, &h.PixelFormat)}
	if e.Equal(&h) {
		t.Fatal("stage kinds must distinguish formats")
	}
}
