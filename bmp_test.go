package rastercodec

import (
	"encoding/binary"
	"testing"
)

// buildBMP assembles a BMP file from a 40-byte info header description and
// raw pixel data.
func buildBMP(w, h int32, bitCount uint16, compression uint32, palette []byte, pixelData []byte) []byte {
	headerSize := bmpFileHeaderSize + bmpInfoHeaderSize
	total := headerSize + len(palette) + len(pixelData)

	out := make([]byte, total)
	out[0], out[1] = 'B', 'M'
	binary.LittleEndian.PutUint32(out[2:], uint32(total))
	binary.LittleEndian.PutUint32(out[10:], uint32(headerSize+len(palette)))

	info := out[bmpFileHeaderSize:]
	binary.LittleEndian.PutUint32(info[0:], bmpInfoHeaderSize)
	binary.LittleEndian.PutUint32(info[4:], uint32(w))
	binary.LittleEndian.PutUint32(info[8:], uint32(h))
	binary.LittleEndian.PutUint16(info[12:], 1)
	binary.LittleEndian.PutUint16(info[14:], bitCount)
	binary.LittleEndian.PutUint32(info[16:], compression)
	binary.LittleEndian.PutUint32(info[20:], uint32(len(pixelData)))
	binary.LittleEndian.PutUint32(info[32:], uint32(len(palette)/4))

	copy(out[headerSize:], palette)
	copy(out[headerSize+len(palette):], pixelData)
	return out
}

// decodeToRaw runs a full translate into a raw channel layout.
func decodeToRaw(t *testing.T, data []byte, srcFormat, dstFormat string) *Reference {
	t.Helper()

	src := &Reference{Format: srcFormat, Link: data, Bytes: len(data)}
	dst := new(Reference)
	dst.Fill()
	dst.Format = dstFormat

	if err := Translate(src, dst, false); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	return dst
}

func TestBMP24BitDecode(t *testing.T) {
	// 2x2 BI_RGB, bottom-up, rows padded to 4 bytes:
	// bottom row red green, top row blue white.
	pixels := []byte{
		0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00, 0, 0, // bottom: red, green
		0xFF, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0, 0, // top: blue, white
	}
	data := buildBMP(2, 2, 24, biRGB, nil, pixels)

	dst := decodeToRaw(t, data, ".BMP", "R8G8B8A8*PAD1*REPA255")

	want := []byte{
		0, 0, 255, 255, 255, 255, 255, 255, // top-down: blue, white
		255, 0, 0, 255, 0, 255, 0, 255, // red, green
	}
	if dst.W != 2 || dst.H != 2 {
		t.Fatalf("dimensions: got %dx%d, want 2x2", dst.W, dst.H)
	}
	if dst.Bytes != len(want) {
		t.Fatalf("bytes: got %d, want %d", dst.Bytes, len(want))
	}
	for i, b := range want {
		if dst.Link[i] != b {
			t.Fatalf("byte %d: got %d, want %d", i, dst.Link[i], b)
		}
	}
}

func TestBMPBitfields565(t *testing.T) {
	// One RGB565 pixel 0xF81F: red and blue at full scale.
	masks := make([]byte, 12)
	binary.LittleEndian.PutUint32(masks[0:], 0xF800)
	binary.LittleEndian.PutUint32(masks[4:], 0x07E0)
	binary.LittleEndian.PutUint32(masks[8:], 0x001F)

	pixel := []byte{0x1F, 0xF8, 0, 0}
	data := buildBMP(1, 1, 16, biBitfields, masks, pixel)

	dst := decodeToRaw(t, data, ".BMP", "R8G8B8*PAD1")

	want := []byte{255, 0, 255}
	for i, b := range want {
		if dst.Link[i] != b {
			t.Fatalf("byte %d: got %d, want %d", i, dst.Link[i], b)
		}
	}
}

func TestBMPBitfieldsChannels(t *testing.T) {
	masks := []uint32{0xF800, 0x07E0, 0x001F}
	channels := extractBmpChannels(masks, 16)

	want := []Channel{{'B', 5}, {'G', 6}, {'R', 5}}
	if len(channels) != len(want) {
		t.Fatalf("channels: got %v, want %v", channels, want)
	}
	for i, c := range want {
		if channels[i] != c {
			t.Fatalf("channel %d: got %v, want %v", i, channels[i], c)
		}
	}

	// Unclaimed high bits collect into a trailing reserved channel.
	channels = extractBmpChannels([]uint32{0x00FF0000, 0x0000FF00, 0x000000FF}, 32)
	want = []Channel{{'B', 8}, {'G', 8}, {'R', 8}, {'_', 8}}
	for i, c := range want {
		if channels[i] != c {
			t.Fatalf("32bpp channel %d: got %v, want %v", i, channels[i], c)
		}
	}
}

func TestBMPPalettedDecode(t *testing.T) {
	// 2x1, 8bpp, four-entry BGRA palette, bottom-up (single row).
	palette := []byte{
		255, 0, 0, 0, // blue
		0, 255, 0, 0, // green
		0, 0, 255, 0, // red
		255, 255, 255, 0, // white
	}
	pixels := []byte{2, 3, 0, 0}
	data := buildBMP(2, 1, 8, biRGB, palette, pixels)

	dst := decodeToRaw(t, data, ".BMP", "R8G8B8*PAD1")

	want := []byte{255, 0, 0, 255, 255, 255} // red, white
	for i, b := range want {
		if dst.Link[i] != b {
			t.Fatalf("byte %d: got %d, want %d", i, dst.Link[i], b)
		}
	}
}

func TestBMPRLE8Decode(t *testing.T) {
	palette := make([]byte, 8*4)
	for i := 0; i < 8; i++ {
		palette[i*4] = byte(i * 10) // blue channel carries the index
	}

	// Bottom row: encoded run of four 2s. Top row: literal run of three,
	// padded to 16 bits, then an encoded run of one.
	rle := []byte{
		0x04, 0x02, // run: 2 2 2 2
		0x00, 0x00, // end of line
		0x00, 0x03, 0x05, 0x06, 0x07, 0x00, // literal: 5 6 7 (+pad)
		0x01, 0x04, // run: 4
		0x00, 0x01, // end of bitmap
	}
	data := buildBMP(4, 2, 8, biRLE8, palette, rle)

	dst := decodeToRaw(t, data, ".BMP", "B8*PAD1")

	// Top-down after the flip: literal row first.
	want := []byte{50, 60, 70, 40, 20, 20, 20, 20}
	for i, b := range want {
		if dst.Link[i] != b {
			t.Fatalf("byte %d: got %d, want %d", i, dst.Link[i], b)
		}
	}
}

func TestBMPRLE8Delta(t *testing.T) {
	palette := make([]byte, 4*4)
	for i := 0; i < 4; i++ {
		palette[i*4] = byte(i + 1)
	}

	// One pixel, a (2, 1) delta, then one pixel at the new position.
	rle := []byte{
		0x01, 0x01, // run: 1
		0x00, 0x02, 0x02, 0x01, // delta +2 +1
		0x01, 0x03, // run: 3
		0x00, 0x01, // end of bitmap
	}
	data := buildBMP(4, 2, 8, biRLE8, palette, rle)

	dst := decodeToRaw(t, data, ".BMP", "B8*PAD1")

	// Bottom-up coordinates: (0,0) holds index 1, the delta zero-fills
	// through (3,1) which holds index 3; the palette maps index i to
	// i+1, and the rows flip top-down on output.
	want := []byte{1, 1, 1, 4, 2, 1, 1, 1}
	for i, b := range want {
		if dst.Link[i] != b {
			t.Fatalf("byte %d: got %d, want %d", i, dst.Link[i], b)
		}
	}
}

func TestBMPEncodeHeader(t *testing.T) {
	// Raw RGBA in, .BMP out: file header, V4 header, BGRA bottom-up.
	src := &Reference{
		Format: "R8G8B8A8*PAD1",
		Link:   []byte{1, 2, 3, 4, 5, 6, 7, 8},
		Bytes:  8,
		W:      2,
		H:      1,
	}
	dst := new(Reference)
	dst.Fill()
	dst.Format = ".BMP"

	if err := Translate(src, dst, false); err != nil {
		t.Fatalf("Translate: %v", err)
	}

	if dst.Bytes != bmpFileHeaderSize+bmpV4HeaderSize+8 {
		t.Fatalf("bytes: got %d", dst.Bytes)
	}
	out := dst.Link
	if out[0] != 'B' || out[1] != 'M' {
		t.Fatal("missing BM signature")
	}
	if got := binary.LittleEndian.Uint32(out[2:]); got != uint32(dst.Bytes) {
		t.Fatalf("file size: got %d, want %d", got, dst.Bytes)
	}

	v4 := out[bmpFileHeaderSize:]
	if got := binary.LittleEndian.Uint32(v4[0:]); got != bmpV4HeaderSize {
		t.Fatalf("header size: got %d", got)
	}
	if got := binary.LittleEndian.Uint16(v4[14:]); got != 32 {
		t.Fatalf("bit count: got %d", got)
	}
	if got := binary.LittleEndian.Uint32(v4[16:]); got != biBitfields {
		t.Fatalf("compression: got %d", got)
	}
	if got := binary.LittleEndian.Uint32(v4[40:]); got != 0x00FF0000 {
		t.Fatalf("red mask: got %#x", got)
	}
	if got := binary.LittleEndian.Uint32(v4[56:]); got != 0x73524742 {
		t.Fatalf("colorspace: got %#x", got)
	}

	// Pixels: BGRA of (1,2,3,4) then (5,6,7,8).
	pix := out[bmpFileHeaderSize+bmpV4HeaderSize:]
	want := []byte{3, 2, 1, 4, 7, 6, 5, 8}
	for i, b := range want {
		if pix[i] != b {
			t.Fatalf("pixel byte %d: got %d, want %d", i, pix[i], b)
		}
	}
}
