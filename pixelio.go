package rastercodec

import (
	"github.com/mrjoshuak/go-rastercodec/internal/bitio"
	"github.com/mrjoshuak/go-rastercodec/internal/fault"
)

// PixelReader iterates pixels over a Reference, honoring the format's
// dimensions, bit width and row padding. Row padding is skipped when rows
// advance; Set and Add reposition the cursor for formats that encode
// position deltas.
type PixelReader struct {
	r   *bitio.Reader
	fmt Format

	x, y          int
	width, height int

	totalLineBits  uint64
	previousBitPos uint64
	linePixelBits  uint64
}

// NewPixelReader creates a reader over r's payload in format f.
func NewPixelReader(f *Format, r *Reference) *PixelReader {
	fault.Check(f.Bits > 0, "pixel format has no bits")
	return &PixelReader{
		r:      bitio.NewReaderOrder(r.data(), f.Offset, f.Packing.order()),
		fmt:    *f,
		width:  abs(f.W),
		height: abs(f.H),
	}
}

// Read exposes raw bit reads at the cursor, for stages that interleave
// commands with pixel data.
func (p *PixelReader) Read(bits uint, v *uint64) bool {
	return p.r.Read(bits, v)
}

// NextLine advances to the start of the next row, skipping padding.
func (p *PixelReader) NextLine() {
	lineBits := p.r.BitPosition() - p.previousBitPos

	if p.totalLineBits == 0 {
		p.totalLineBits = uint64(p.fmt.LineSize(uint(lineBits-p.linePixelBits))) * 8
	}
	fault.Check(p.totalLineBits >= p.linePixelBits, "row overflows the padded line size")

	delta := p.totalLineBits - lineBits
	fault.Check(p.r.Skip(delta), "row padding runs past the buffer")
	p.linePixelBits = 0
	p.x = 0
	p.y++

	p.previousBitPos = p.r.BitPosition()
}

// GetPixel reads one pixel's channels at the cursor into *pixel, reusing its
// storage.
func (p *PixelReader) GetPixel(pixel *Pixel) bool {
	*pixel = (*pixel)[:0]
	var v uint64
	for _, ch := range p.fmt.Channels {
		if !p.r.Read(ch.Bits, &v) {
			return false
		}
		*pixel = append(*pixel, v)
	}

	p.linePixelBits += uint64(p.fmt.Bits)
	p.x++
	return true
}

// GetPixelLn is GetPixel with an automatic row advance once the current row
// is exhausted.
func (p *PixelReader) GetPixelLn(pixel *Pixel) bool {
	if p.x >= p.width {
		p.NextLine()
	}
	return p.GetPixel(pixel)
}

// Set seeks the cursor to pixel (x0, y0).
func (p *PixelReader) Set(x0, y0 int) {
	p.x, p.y = x0, y0

	if p.totalLineBits == 0 {
		fault.Check(p.r.BitPosition() == p.linePixelBits, "seek before the first row advance must start at the row head")
		p.totalLineBits = uint64(p.fmt.LineSize(0)) * 8
	}

	fault.Checkf(x0 >= 0 && x0 < p.width, "x %d outside width %d", x0, p.width)
	fault.Checkf(y0 >= 0 && y0 < p.height, "y %d outside height %d", y0, p.height)

	p.linePixelBits = uint64(x0) * uint64(p.fmt.Bits)
	p.previousBitPos = uint64(y0) * p.totalLineBits
	p.r.Seek(p.previousBitPos + p.linePixelBits)
}

// Add seeks the cursor by a relative pixel delta.
func (p *PixelReader) Add(dx, dy int) {
	p.Set(p.x+dx, p.y+dy)
}

// PixelWriter is the writing counterpart of PixelReader. Row padding is
// zero-filled when rows advance; forward seeks zero-fill the gap.
type PixelWriter struct {
	w   *bitio.Writer
	fmt Format

	x, y          int
	width, height int

	lineBits      uint64
	linePixelBits uint64
}

// NewPixelWriter creates a writer over r's payload in format f.
func NewPixelWriter(f *Format, r *Reference) *PixelWriter {
	fault.Check(f.Bits > 0, "pixel format has no bits")
	return &PixelWriter{
		w:      bitio.NewWriterOrder(r.data(), f.Offset, f.Packing.order()),
		fmt:    *f,
		width:  abs(f.W),
		height: abs(f.H),
	}
}

// Write exposes raw bit writes at the cursor.
func (p *PixelWriter) Write(bits uint, v uint64) bool {
	return p.w.Write(bits, v)
}

// NextLine advances to the next row, zero-filling the padding.
func (p *PixelWriter) NextLine() {
	if p.lineBits == 0 {
		p.lineBits = uint64(p.fmt.LineSize(uint(p.w.BitPosition()-p.linePixelBits))) * 8
	}
	fault.Check(p.lineBits >= p.linePixelBits, "row overflows the padded line size")

	delta := p.lineBits - p.linePixelBits
	fault.Check(p.w.WriteZeros(delta), "row padding runs past the buffer")
	p.linePixelBits = 0
	p.x = 0
	p.y++
}

// PutPixel writes one pixel's channels at the cursor.
func (p *PixelWriter) PutPixel(pixel Pixel) bool {
	for i, ch := range p.fmt.Channels {
		if !p.w.Write(ch.Bits, pixel[i]) {
			return false
		}
	}

	p.linePixelBits += uint64(p.fmt.Bits)
	p.x++
	return true
}

// PutPixelLn is PutPixel with an automatic row advance once the current row
// is full.
func (p *PixelWriter) PutPixelLn(pixel Pixel) bool {
	if p.x >= p.width {
		p.NextLine()
	}
	return p.PutPixel(pixel)
}

// Set seeks the cursor to pixel (x0, y0), zero-filling any skipped bits when
// moving forward.
func (p *PixelWriter) Set(x0, y0 int) {
	if p.lineBits == 0 {
		fault.Check(p.w.BitPosition() == p.linePixelBits, "seek before the first row advance must start at the row head")
		p.lineBits = uint64(p.fmt.LineSize(0)) * 8
	}

	fault.Checkf(x0 >= 0 && x0 < p.width, "x %d outside width %d", x0, p.width)
	fault.Checkf(y0 >= 0 && y0 < p.height, "y %d outside height %d", y0, p.height)

	p.x, p.y = x0, y0
	p.linePixelBits = uint64(x0) * uint64(p.fmt.Bits)
	newBitPos := uint64(y0)*p.lineBits + p.linePixelBits

	if newBitPos > p.w.BitPosition() {
		fault.Check(p.w.WriteZeros(newBitPos-p.w.BitPosition()), "seek runs past the buffer")
	} else {
		p.w.Seek(newBitPos)
	}
}

// Add seeks the cursor by a relative pixel delta.
func (p *PixelWriter) Add(dx, dy int) {
	p.Set(p.x+dx, p.y+dy)
}
