package rastercodec

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/mrjoshuak/go-rastercodec/internal/bitio"
	"github.com/mrjoshuak/go-rastercodec/internal/fault"
)

// PNG color types.
const (
	pngGrayscale      = 0
	pngTruecolor      = 2
	pngIndexed        = 3
	pngGrayscaleAlpha = 4
	pngTruecolorAlpha = 6
)

// PNG scanline filter types.
const (
	pngFilterNone    = 0
	pngFilterSub     = 1
	pngFilterUp      = 2
	pngFilterAverage = 3
	pngFilterPaeth   = 4
	pngFilterCount   = 5
)

var pngSignature = [8]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

const (
	pngChunkOverhead = 12 // length + type + crc
	pngIHDRSize      = 13
	pngMaxChunkSize  = 64 * 1024
)

// pngChunk is one (length, type, data, crc) chunk.
type pngChunk struct {
	length uint32
	typ    [4]byte
	data   []byte
	crc    uint32
}

func (c *pngChunk) is(name string) bool {
	return len(name) == 4 && string(c.typ[:]) == name
}

func (c *pngChunk) setType(name string) {
	fault.Check(len(name) == 4, "chunk type must be 4 bytes")
	copy(c.typ[:], name)
}

// read parses one chunk. The body is retained and CRC-verified only when
// include is nil or returns true; otherwise it is skipped. A false return
// means the stream ended; a short or corrupt retained chunk is fatal.
func (c *pngChunk) read(r *bitio.Reader, include func(typ [4]byte, length uint32) bool) bool {
	var word [4]byte
	if !r.ReadBytes(word[:]) {
		return false
	}
	c.length = binary.BigEndian.Uint32(word[:])

	if !r.ReadBytes(c.typ[:]) {
		return false
	}

	retained := include == nil || include(c.typ, c.length)
	if retained {
		c.data = make([]byte, c.length)
		fault.Check(r.ReadBytes(c.data), "chunk body runs past the buffer")
	} else {
		c.data = nil
		fault.Check(r.Skip(uint64(c.length)*8), "chunk body runs past the buffer")
	}

	if !r.ReadBytes(word[:]) {
		return false
	}
	c.crc = binary.BigEndian.Uint32(word[:])

	fault.Check(!retained || c.crc == c.calculateCRC(), "chunk CRC mismatch")
	return true
}

func (c *pngChunk) write(w *bitio.Writer) bool {
	var word [4]byte
	binary.BigEndian.PutUint32(word[:], c.length)
	if !w.WriteBytes(word[:]) {
		return false
	}
	if !w.WriteBytes(c.typ[:]) {
		return false
	}
	fault.Check(w.WriteBytes(c.data), "chunk body overflows the buffer")
	binary.BigEndian.PutUint32(word[:], c.crc)
	return w.WriteBytes(word[:])
}

func (c *pngChunk) updateCRC() {
	c.crc = c.calculateCRC()
}

// calculateCRC is the PNG CRC-32 over type and data.
func (c *pngChunk) calculateCRC() uint32 {
	crc := crc32.Update(0, crc32.IEEETable, c.typ[:])
	return crc32.Update(crc, crc32.IEEETable, c.data)
}

func (c *pngChunk) size() int {
	return pngChunkOverhead + int(c.length)
}

// FracturePng splits a compressed stream into IDAT chunks and back: decode
// concatenates every IDAT body up to IEND, encode fractures the stream into
// CRC-stamped IDAT chunks of at most 64 KiB plus a trailing IEND.
type FracturePng struct {
	stageBase
}

// NewFracturePng creates the chunk stage.
func NewFracturePng(size int, pf *PixelFormat) *FracturePng {
	return &FracturePng{stageBase: makeStageBase(size, pf)}
}

func (s *FracturePng) Compress(f *Format, src *Reference, dst *Reference) {
	fault.Check(f.front() == Compression(s), "stage is not at the front of the queue")

	r := bitio.NewReader(src.data(), f.Offset)

	s.layout.CopyFrom(&f.PixelFormat)
	f.Offset = 0
	s.size = f.bufferSizePeeling(s)
	f.ClearLayout()

	chunks := (s.size+pngMaxChunkSize-1)/pngMaxChunkSize + 1
	s.size += chunks * pngChunkOverhead

	sync(f, dst)

	w := bitio.NewWriter(dst.data(), f.Offset)

	var chunk pngChunk
	chunk.setType("IDAT")
	for {
		n := r.BytesLeft(pngMaxChunkSize)
		if n == 0 {
			break
		}
		chunk.length = uint32(n)
		chunk.data = make([]byte, n)
		fault.Check(r.ReadBytes(chunk.data), "compressed stream runs past the buffer")
		chunk.updateCRC()
		fault.Check(chunk.write(w), "chunk overflows the buffer")
	}

	chunk.setType("IEND")
	chunk.length = 0
	chunk.data = nil
	chunk.updateCRC()
	fault.Check(chunk.write(w), "chunk overflows the buffer")
}

func (s *FracturePng) Decompress(f *Format, src *Reference, dst *Reference) {
	fault.Check(f.front() == Compression(s), "stage is not at the front of the queue")

	r := bitio.NewReader(src.data(), f.Offset)

	f.Offset = 0
	f.popFront(s)
	f.CopyFrom(&s.layout)
	sync(f, dst)

	w := bitio.NewWriter(dst.data(), 0)

	var chunk pngChunk
	for chunk.read(r, nil) {
		if chunk.is("IDAT") {
			fault.Check(w.WriteBytes(chunk.data), "compressed stream overflows the buffer")
		} else if chunk.is("IEND") {
			break
		}
	}
}

func (s *FracturePng) Equals(other Compression) bool {
	o, ok := other.(*FracturePng)
	return ok && s.sameLayout(o)
}

// ZlibPng inflates and deflates the concatenated IDAT stream.
type ZlibPng struct {
	stageBase
}

// NewZlibPng creates the zlib stage.
func NewZlibPng(size int, pf *PixelFormat) *ZlibPng {
	return &ZlibPng{stageBase: makeStageBase(size, pf)}
}

func (s *ZlibPng) Compress(f *Format, src *Reference, dst *Reference) {
	fault.Check(f.front() == Compression(s), "stage is not at the front of the queue")

	raw := src.data()[f.Offset:]

	s.layout.CopyFrom(&f.PixelFormat)
	f.Offset = 0
	f.ClearLayout()

	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	fault.Check(err == nil, "zlib writer init failed")
	_, err = zw.Write(raw)
	fault.Check(err == nil && zw.Close() == nil, "zlib deflate failed")

	s.size = buf.Len()
	sync(f, dst)

	copy(dst.data(), buf.Bytes())
}

func (s *ZlibPng) Decompress(f *Format, src *Reference, dst *Reference) {
	fault.Check(f.front() == Compression(s), "stage is not at the front of the queue")

	zr, err := zlib.NewReader(bytes.NewReader(src.data()[f.Offset:]))
	fault.Check(err == nil, "zlib stream header is invalid")

	f.Offset = 0
	f.popFront(s)
	f.CopyFrom(&s.layout)
	sync(f, dst)

	out, err := io.ReadAll(zr)
	fault.Check(err == nil, "zlib inflate failed")
	fault.Checkf(len(out) >= dst.Bytes, "inflated stream holds %d bytes, need %d", len(out), dst.Bytes)

	copy(dst.data(), out)
}

func (s *ZlibPng) Equals(other Compression) bool {
	o, ok := other.(*ZlibPng)
	return ok && s.sameLayout(o)
}

// Adam7 pass geometry: starting offsets and increments per pass.
var (
	adam7Start = [7][2]int{{0, 0}, {4, 0}, {0, 4}, {2, 0}, {0, 2}, {1, 0}, {0, 1}}
	adam7Inc   = [7][2]int{{8, 8}, {8, 8}, {4, 8}, {4, 4}, {2, 4}, {2, 2}, {1, 2}}
)

// adam7Step maps pass-local coordinates to image coordinates.
type adam7Step struct {
	startX, startY int
	incX, incY     int
}

func newAdam7Step(pass int) adam7Step {
	return adam7Step{
		startX: adam7Start[pass][0],
		startY: adam7Start[pass][1],
		incX:   adam7Inc[pass][0],
		incY:   adam7Inc[pass][1],
	}
}

func (s adam7Step) x(orig int) int { return s.startX + s.incX*orig }
func (s adam7Step) y(orig int) int { return s.startY + s.incY*orig }

// passSize is the row count and row pixel count of one pass.
type passSize struct {
	rows   int
	pixels int
}

func fullPassSize(w, h int) passSize {
	return passSize{rows: h, pixels: w}
}

func stepPassSize(step adam7Step, w, h int) passSize {
	var s passSize
	if w > step.startX {
		s.pixels = (w - step.startX + step.incX - 1) / step.incX
	}
	if h > step.startY {
		s.rows = (h - step.startY + step.incY - 1) / step.incY
	}
	return s
}

// lineBytes is the byte count of one pass row: the filter byte plus the
// packed pixels.
func (s passSize) lineBytes(bits uint) int {
	return 1 + (s.pixels*int(bits)+7)/8
}

func (s passSize) bytes(bits uint) int {
	return s.rows * s.lineBytes(bits)
}

func (s passSize) empty() bool {
	return s.pixels <= 0 || s.rows <= 0
}

// paethPredictor picks the neighbor closest to left + up - upLeft, with ties
// resolved left, then up.
func paethPredictor(a, b, c int) int {
	p := a + b - c
	pa, pb, pc := abs(p-a), abs(p-b), abs(p-c)
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

// scoreFilterCandidate sums the absolute values of the row's bytes
// reinterpreted as signed int8.
func scoreFilterCandidate(row []byte) int {
	score := 0
	for _, v := range row {
		score += abs(int(int8(v)))
	}
	return score
}

// FilterAndInterlacePng undoes and applies the per-scanline PNG filters and,
// when interlaced, reassembles or emits the seven Adam7 passes.
type FilterAndInterlacePng struct {
	stageBase

	Interlaced bool
	W, H       int
}

// NewFilterAndInterlacePng creates the filter stage for a w by h image whose
// scanline pixels use layout pf.
func NewFilterAndInterlacePng(interlaced bool, w, h int, pf *PixelFormat) *FilterAndInterlacePng {
	s := &FilterAndInterlacePng{
		stageBase:  makeStageBase(0, pf),
		Interlaced: interlaced,
		W:          w,
		H:          h,
	}
	s.calculateSize()
	return s
}

// calculateSize sums the filtered byte count over the emitted passes.
func (s *FilterAndInterlacePng) calculateSize() {
	s.size = 0
	if s.Interlaced {
		for pass := 0; pass < 7; pass++ {
			ps := stepPassSize(newAdam7Step(pass), s.W, s.H)
			if ps.empty() {
				continue
			}
			s.size += ps.bytes(s.layout.Bits)
		}
	} else {
		s.size = fullPassSize(s.W, s.H).bytes(s.layout.Bits)
	}
}

// applyFilter filters (apply) or reconstructs (undo) one row against the
// previous reconstructed row. previous is nil on the first row of a pass.
func (s *FilterAndInterlacePng) applyFilter(line, previous []byte, filterType int, apply bool) []byte {
	width := len(line)
	result := make([]byte, width)

	// The predictor reads raw bytes when filtering and reconstructed bytes
	// when undoing.
	orig := line
	if !apply {
		orig = result
	}

	pixelBytes := int(s.layout.Bits+7) / 8

	sub := func(a, b int) byte {
		if apply {
			b = 0x100 - b
		}
		return byte(a + b)
	}

	switch filterType {
	case pngFilterNone:
		copy(result, line)
	case pngFilterSub:
		for i := 0; i < width; i++ {
			left := 0
			if i >= pixelBytes {
				left = int(orig[i-pixelBytes])
			}
			result[i] = sub(int(line[i]), left)
		}
	case pngFilterUp:
		for i := 0; i < width; i++ {
			up := 0
			if previous != nil {
				up = int(previous[i])
			}
			result[i] = sub(int(line[i]), up)
		}
	case pngFilterAverage:
		for i := 0; i < width; i++ {
			left, up := 0, 0
			if i >= pixelBytes {
				left = int(orig[i-pixelBytes])
			}
			if previous != nil {
				up = int(previous[i])
			}
			result[i] = sub(int(line[i]), (left+up)/2)
		}
	case pngFilterPaeth:
		for i := 0; i < width; i++ {
			left, up, upLeft := 0, 0, 0
			if i >= pixelBytes {
				left = int(orig[i-pixelBytes])
			}
			if previous != nil {
				up = int(previous[i])
				if i >= pixelBytes {
					upLeft = int(previous[i-pixelBytes])
				}
			}
			result[i] = sub(int(line[i]), paethPredictor(left, up, upLeft))
		}
	default:
		fault.Checkf(false, "unknown filter type %d", filterType)
	}
	return result
}

func (s *FilterAndInterlacePng) Compress(f *Format, src *Reference, dst *Reference) {
	fault.Check(f.front() == Compression(s), "stage is not at the front of the queue")

	fmtSrc := *f
	reader := NewPixelReader(&fmtSrc, src)
	fmtSrc.Offset = 0

	width, height := abs(f.W), abs(f.H)
	s.W, s.H = width, height

	s.layout.CopyFrom(&f.PixelFormat)
	s.calculateSize()
	f.Offset = 0
	f.ClearLayout()

	sync(&fmtSrc, dst)

	writer := NewPixelWriter(&fmtSrc, dst)
	dstReader := bitio.NewReader(dst.data(), 0)
	dstWriter := bitio.NewWriter(dst.data(), 0)

	image := make([][]Pixel, height)
	for y := 0; y < height; y++ {
		image[y] = make([]Pixel, width)
		for x := 0; x < width; x++ {
			fault.Check(reader.GetPixelLn(&image[y][x]), "pixel data runs past the buffer")
		}
	}

	bits := s.layout.Bits

	putPass := func(ps passSize, position func(x, y int) (int, int, bool)) {
		rowBytes := ps.lineBytes(bits) - 1
		padding := uint(8*rowBytes - ps.pixels*int(bits))

		// Raw rows first: filter byte placeholder, pixels, pad bits.
		for py := 0; py < ps.rows; py++ {
			fault.Check(writer.Write(8, 0), "pass row overflows the buffer")
			for px := 0; px < ps.pixels; px++ {
				if x, y, ok := position(px, py); ok {
					fault.Check(writer.PutPixel(image[y][x]), "pass row overflows the buffer")
				}
			}
			fault.Check(writer.Write(padding, 0), "pass row overflows the buffer")
		}

		// Filter in place: the reader stays ahead of the writer.
		var previous []byte
		for n := ps.rows; n > 0; n-- {
			var filterByte uint64
			fault.Check(dstReader.Read(8, &filterByte), "pass row runs past the buffer")
			line := make([]byte, rowBytes)
			fault.Check(dstReader.ReadBytes(line), "pass row runs past the buffer")

			best, bestScore := 0, 0
			var bestRow []byte
			for filter := 0; filter < pngFilterCount; filter++ {
				candidate := s.applyFilter(line, previous, filter, true)
				score := scoreFilterCandidate(candidate)
				if filter == 0 || score < bestScore {
					best, bestScore, bestRow = filter, score, candidate
				}
			}

			fault.Check(dstWriter.Write(8, uint64(best)), "pass row overflows the buffer")
			fault.Check(dstWriter.WriteBytes(bestRow), "pass row overflows the buffer")
			previous = line
		}
	}

	if s.Interlaced {
		for pass := 0; pass < 7; pass++ {
			step := newAdam7Step(pass)
			ps := stepPassSize(step, width, height)
			if ps.empty() {
				continue
			}
			putPass(ps, func(x, y int) (int, int, bool) {
				ix, iy := step.x(x), step.y(y)
				return ix, iy, ix < width && iy < height
			})
		}
	} else {
		putPass(fullPassSize(width, height), func(x, y int) (int, int, bool) {
			return x, y, true
		})
	}
}

func (s *FilterAndInterlacePng) Decompress(f *Format, src *Reference, dst *Reference) {
	fault.Check(f.front() == Compression(s), "stage is not at the front of the queue")

	sourceReader := bitio.NewReader(src.data(), f.Offset)

	f.Offset = 0

	var unfiltered Reference
	unfiltered.Fill()
	sync(f, &unfiltered)
	unfWriter := bitio.NewWriter(unfiltered.data(), 0)

	f.popFront(s)
	f.CopyFrom(&s.layout)
	sync(f, dst)

	unfReader := NewPixelReader(f, &unfiltered)
	writer := NewPixelWriter(f, dst)

	width, height := abs(f.W), abs(f.H)
	bits := s.layout.Bits

	image := make([][]Pixel, height)
	for y := range image {
		image[y] = make([]Pixel, width)
	}

	getPass := func(ps passSize, position func(x, y int) (int, int, bool)) {
		rowBytes := ps.lineBytes(bits) - 1

		// Undo the filters into the intermediate buffer.
		var previous []byte
		for n := ps.rows; n > 0; n-- {
			var filterByte uint64
			fault.Check(sourceReader.Read(8, &filterByte), "pass row runs past the buffer")
			line := make([]byte, rowBytes)
			fault.Check(sourceReader.ReadBytes(line), "pass row runs past the buffer")

			line = s.applyFilter(line, previous, int(filterByte), false)

			fault.Check(unfWriter.Write(8, 0), "pass row overflows the buffer")
			fault.Check(unfWriter.WriteBytes(line), "pass row overflows the buffer")
			previous = line
		}

		// Scatter the pass pixels into the image grid.
		padding := uint(8*rowBytes - ps.pixels*int(bits))
		for py := 0; py < ps.rows; py++ {
			var skip uint64
			fault.Check(unfReader.Read(8, &skip), "pass row runs past the buffer")
			for px := 0; px < ps.pixels; px++ {
				if x, y, ok := position(px, py); ok {
					fault.Check(unfReader.GetPixel(&image[y][x]), "pass row runs past the buffer")
				}
			}
			fault.Check(unfReader.Read(padding, &skip), "pass row runs past the buffer")
		}
	}

	if s.Interlaced {
		for pass := 0; pass < 7; pass++ {
			step := newAdam7Step(pass)
			ps := stepPassSize(step, width, height)
			if ps.empty() {
				continue
			}
			getPass(ps, func(x, y int) (int, int, bool) {
				ix, iy := step.x(x), step.y(y)
				return ix, iy, ix < width && iy < height
			})
		}
	} else {
		getPass(fullPassSize(width, height), func(x, y int) (int, int, bool) {
			return x, y, true
		})
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			fault.Check(writer.PutPixelLn(image[y][x]), "pixel data overflows the buffer")
		}
	}
}

func (s *FilterAndInterlacePng) Equals(other Compression) bool {
	o, ok := other.(*FilterAndInterlacePng)
	if !ok {
		return false
	}
	return s.Interlaced == o.Interlaced && s.W == o.W && s.H == o.H && s.sameLayout(o)
}

// extractPng parses a PNG container and builds its decode stack:
// chunks, zlib, filter+interlace, misc (chroma key), palette.
func extractPng(f *Format, r *bitio.Reader) {
	var sig [8]byte
	fault.Check(r.ReadBytes(sig[:]) && sig == pngSignature, "missing PNG signature")

	var ihdrChunk pngChunk
	fault.Check(ihdrChunk.read(r, nil), "missing IHDR chunk")
	fault.Check(ihdrChunk.length == pngIHDRSize && ihdrChunk.is("IHDR"), "first chunk must be a 13-byte IHDR")

	f.W = int(binary.BigEndian.Uint32(ihdrChunk.data[0:4]))
	f.H = int(binary.BigEndian.Uint32(ihdrChunk.data[4:8]))
	bitDepth := uint(ihdrChunk.data[8])
	colorType := ihdrChunk.data[9]
	interlaceMethod := ihdrChunk.data[12]

	include := func(typ [4]byte, _ uint32) bool {
		name := string(typ[:])
		return name == "PLTE" || name == "tRNS"
	}

	// Collect metadata chunks and the compressed stream volume.
	var chunk pngChunk
	var plte, trns *pngChunk
	volume, chunks := 0, 0
	for chunk.read(r, include) {
		chunks += chunk.size()
		switch {
		case chunk.is("IDAT"):
			volume += int(chunk.length)
		case chunk.is("PLTE"):
			fault.Check(plte == nil, "duplicate PLTE chunk")
			c := chunk
			plte = &c
		case chunk.is("tRNS"):
			fault.Check(trns == nil, "duplicate tRNS chunk")
			c := chunk
			trns = &c
		}
	}

	if colorType == pngTruecolor || colorType == pngTruecolorAlpha {
		plte = nil
	}

	fault.Check((plte != nil) == (colorType == pngIndexed), "PLTE is required exactly for indexed color")
	fault.Check(trns == nil || (colorType != pngGrayscaleAlpha && colorType != pngTruecolorAlpha), "tRNS conflicts with an alpha channel")

	f.ClearLayout()
	f.Pad = 1
	f.Bits = bitDepth
	f.Offset = len(sig) + ihdrChunk.size()

	depthOK := func(depths ...uint) {
		for _, d := range depths {
			if bitDepth == d {
				return
			}
		}
		fault.Checkf(false, "bit depth %d invalid for color type %d", bitDepth, colorType)
	}

	switch colorType {
	case pngGrayscale:
		depthOK(1, 2, 4, 8, 16)
		f.Channels = append(f.Channels, Channel{'G', bitDepth})
		if trns != nil {
			f.Channels = append(f.Channels, Channel{'A', bitDepth})
		}
	case pngTruecolor:
		depthOK(8, 16)
		f.Channels = append(f.Channels, Channel{'R', bitDepth}, Channel{'G', bitDepth}, Channel{'B', bitDepth})
		if trns != nil {
			f.Channels = append(f.Channels, Channel{'A', bitDepth})
		}
	case pngIndexed:
		depthOK(1, 2, 4, 8)
		f.Channels = append(f.Channels, Channel{'R', 8}, Channel{'G', 8}, Channel{'B', 8})
		if trns != nil {
			f.Channels = append(f.Channels, Channel{'A', 8})
		}
	case pngGrayscaleAlpha:
		depthOK(8, 16)
		f.Channels = append(f.Channels, Channel{'G', bitDepth}, Channel{'A', bitDepth})
	case pngTruecolorAlpha:
		depthOK(8, 16)
		f.Channels = append(f.Channels, Channel{'R', bitDepth}, Channel{'G', bitDepth}, Channel{'B', bitDepth}, Channel{'A', bitDepth})
	default:
		fault.Checkf(false, "unknown color type %d", colorType)
	}

	f.CalculateBits()

	if plte != nil {
		alphaBytes := 0
		alphaNumber := 0
		if trns != nil {
			alphaBytes = 1
			alphaNumber = int(trns.length)
		}

		fault.Check(int(f.Bits) > alphaBytes*8, "palette sample layout too narrow")

		colorBytes := int(f.Bits)/8 - alphaBytes
		colorNumber := int(plte.length) / colorBytes
		fault.Check(int(plte.length)%colorBytes == 0, "PLTE length is not a whole number of entries")

		palette := NewPalette(0, &f.PixelFormat)

		f.ClearLayout()
		f.Channels = append(f.Channels, Channel{'#', bitDepth})
		f.CalculateBits()
		palette.size = f.BufferSize()

		for i := 0; i < colorNumber; i++ {
			pixel := make(Pixel, 0, colorBytes+alphaBytes)
			for j := 0; j < colorBytes; j++ {
				pixel = append(pixel, uint64(plte.data[i*colorBytes+j]))
			}
			if trns != nil {
				if i < alphaNumber {
					pixel = append(pixel, uint64(trns.data[i]))
				} else {
					pixel = append(pixel, 255)
				}
			}
			palette.Samples = append(palette.Samples, pixel)
		}
		fault.Check(alphaNumber <= colorNumber, "tRNS has more entries than the palette")

		f.pushFront(palette)
		f.pushFront(NewMisc(f.BufferSize(), false, false, nil, &f.PixelFormat))
	} else if trns != nil {
		// A chroma key: the Misc stage synthesizes the alpha channel the
		// layout above declared.
		var key Pixel
		switch colorType {
		case pngGrayscale:
			fault.Check(bitDepth == 8 || bitDepth == 16, "grayscale chroma key requires bit depth 8 or 16")
			fault.Check(trns.length == 2, "grayscale tRNS must hold one 16-bit sample")
			v := uint64(binary.BigEndian.Uint16(trns.data))
			fault.Check(v <= Channel{'G', bitDepth}.Max(), "chroma key sample exceeds bit depth")
			key = Pixel{v}
		case pngTruecolor:
			fault.Check(bitDepth == 8 || bitDepth == 16, "truecolor chroma key requires bit depth 8 or 16")
			fault.Check(trns.length == 6, "truecolor tRNS must hold three 16-bit samples")
			for j := 0; j < 3; j++ {
				v := uint64(binary.BigEndian.Uint16(trns.data[2*j:]))
				fault.Check(v <= Channel{0, bitDepth}.Max(), "chroma key sample exceeds bit depth")
				key = append(key, v)
			}
		default:
			fault.Fail("tRNS chroma key requires grayscale or truecolor")
		}

		f.pushFront(NewMisc(f.BufferSize(), false, false, key, &f.PixelFormat))
		f.Channels = f.Channels[:len(f.Channels)-1]
		f.CalculateBits()
	} else {
		f.pushFront(NewMisc(f.BufferSize(), false, false, nil, &f.PixelFormat))
	}

	f.pushFront(NewFilterAndInterlacePng(interlaceMethod == 1, abs(f.W), abs(f.H), &f.PixelFormat))
	f.ClearLayout()

	f.pushFront(NewZlibPng(volume, &f.PixelFormat))
	f.ClearLayout()

	f.pushFront(NewFracturePng(chunks, &f.PixelFormat))
	f.ClearLayout()
}

// makePng configures a Format for reading (write == nil) or writing a PNG.
// The write side always emits truecolor-alpha 8-bit Adam7; sources without
// alpha are written opaque.
func makePng(ref *Reference, f *Format, write *headerWriter) {
	f.W = ref.W
	f.H = ref.H

	if write == nil {
		extractPng(f, bitio.NewReader(ref.data(), 0))
		return
	}

	f.Offset += len(pngSignature) + pngChunkOverhead + pngIHDRSize
	f.Channels = append(f.Channels,
		Channel{'R', 8}, Channel{'G', 8}, Channel{'B', 8}, Channel{'A', 8})
	f.CalculateBits()
	f.Replacements = append(f.Replacements, Replacement{Index: 3, Const: 255, HasConst: true})

	f.pushFront(NewMisc(f.BufferSize(), false, false, nil, &f.PixelFormat))

	f.pushFront(NewFilterAndInterlacePng(true, abs(f.W), abs(f.H), &f.PixelFormat))
	f.ClearLayout()

	f.pushFront(NewZlibPng(0, &f.PixelFormat))
	f.ClearLayout()

	f.pushFront(NewFracturePng(0, &f.PixelFormat))
	f.ClearLayout()

	*write = func(fmt *Format, dst *Reference) {
		w := bitio.NewWriter(dst.data(), 0)
		fault.Check(w.WriteBytes(pngSignature[:]), "destination too small for the PNG signature")

		var ihdr pngChunk
		ihdr.setType("IHDR")
		ihdr.length = pngIHDRSize
		ihdr.data = make([]byte, pngIHDRSize)
		binary.BigEndian.PutUint32(ihdr.data[0:4], uint32(fmt.W))
		binary.BigEndian.PutUint32(ihdr.data[4:8], uint32(fmt.H))
		ihdr.data[8] = 8
		ihdr.data[9] = pngTruecolorAlpha
		ihdr.data[10] = 0 // compression method
		ihdr.data[11] = 0 // filter method
		ihdr.data[12] = 1 // Adam7
		ihdr.updateCRC()

		fault.Check(ihdr.write(w), "destination too small for the IHDR chunk")
	}
}
