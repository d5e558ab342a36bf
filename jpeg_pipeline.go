package rastercodec

import (
	"encoding/binary"
	"math"

	"github.com/mrjoshuak/go-rastercodec/internal/bitio"
	"github.com/mrjoshuak/go-rastercodec/internal/dct"
	"github.com/mrjoshuak/go-rastercodec/internal/fault"
)

// Little-endian field helpers for the serialized inter-stage streams.

func readU32le(r *bitio.Reader, v *uint32) bool {
	var b [4]byte
	if !r.ReadBytes(b[:]) {
		return false
	}
	*v = binary.LittleEndian.Uint32(b[:])
	return true
}

func readU16le(r *bitio.Reader, v *uint16) bool {
	var b [2]byte
	if !r.ReadBytes(b[:]) {
		return false
	}
	*v = binary.LittleEndian.Uint16(b[:])
	return true
}

func readI32le(r *bitio.Reader, v *int32) bool {
	var u uint32
	if !readU32le(r, &u) {
		return false
	}
	*v = int32(u)
	return true
}

func readI16le(r *bitio.Reader, v *int16) bool {
	var u uint16
	if !readU16le(r, &u) {
		return false
	}
	*v = int16(u)
	return true
}

func writeU32le(w *bitio.Writer, v uint32) bool {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return w.WriteBytes(b[:])
}

func writeU16le(w *bitio.Writer, v uint16) bool {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return w.WriteBytes(b[:])
}

func writeI32le(w *bitio.Writer, v int32) bool { return writeU32le(w, uint32(v)) }
func writeI16le(w *bitio.Writer, v int16) bool { return writeU16le(w, uint16(v)) }

// zigzagIndex maps a natural 8x8 position to its zig-zag sequence number.
var zigzagIndex = [64]int{
	0, 1, 5, 6, 14, 15, 27, 28,
	2, 4, 7, 13, 16, 26, 29, 42,
	3, 8, 12, 17, 25, 30, 41, 43,
	9, 11, 18, 24, 31, 40, 44, 53,
	10, 19, 23, 32, 39, 45, 52, 54,
	20, 22, 33, 38, 46, 51, 55, 60,
	21, 34, 37, 47, 50, 56, 59, 61,
	35, 36, 48, 49, 57, 58, 62, 63,
}

// frameGeometry is the MCU grid of a frame, with any DNL height override
// applied.
type frameGeometry struct {
	w, h         int
	maxH, maxV   int
	mcusX, mcusY int
}

func newFrameGeometry(img *jpegImage, sof *segmentSOF) frameGeometry {
	g := frameGeometry{
		w: int(sof.imageWidth),
		h: int(sof.imageHeight),
	}
	if dnl, ok := findSingleSegment[*segmentDNL](img); ok {
		g.h = int(dnl.numberOfLines)
	}
	fault.Check(g.w > 0 && g.h > 0, "frame dimensions must be positive")

	g.maxH, g.maxV = sof.maxSampling()
	g.mcusX = (g.w + 8*g.maxH - 1) / (8 * g.maxH)
	g.mcusY = (g.h + 8*g.maxV - 1) / (8 * g.maxV)
	return g
}

// mcuBlocks is the total block count of one fully interleaved MCU.
func (g frameGeometry) mcuBlocks(sof *segmentSOF) int {
	n := 0
	for _, c := range sof.components {
		n += c.h() * c.v()
	}
	return n
}

// huffTable is a derived Huffman decoding table per ITU-T T.81 F.2.2.3:
// minCode, maxCode and valPtr per code length.
type huffTable struct {
	minCode [17]uint32
	maxCode [17]uint32
	valPtr  [17]int
	symbols []uint8
	maxLen  int
}

// buildHuffTable derives the decode arrays from a DHT definition.
func buildHuffTable(t *dhtTable) *huffTable {
	table := &huffTable{symbols: append([]uint8(nil), t.symbols...)}

	// Code lengths in symbol order.
	var lengths []int
	for l := 1; l <= 16; l++ {
		for i := 0; i < int(t.counts[l-1]); i++ {
			lengths = append(lengths, l)
		}
	}
	fault.Check(len(lengths) == len(table.symbols), "DHT symbol count disagrees with the length counts")

	// Canonical codes in symbol order.
	codes := make([]uint32, len(lengths))
	code := uint32(0)
	p := 0
	for p < len(lengths) {
		length := lengths[p]
		for p < len(lengths) && lengths[p] == length {
			codes[p] = code
			p++
			code++
			fault.Check(code <= uint32(1)<<uint(length), "Huffman code overflows its length")
		}
		if p < len(lengths) {
			code <<= uint(lengths[p] - length)
		}
	}

	p = 0
	for l := 1; l <= 16; l++ {
		count := int(t.counts[l-1])
		if count > 0 {
			table.valPtr[l] = p
			table.minCode[l] = codes[p]
			p += count
			table.maxCode[l] = codes[p-1]
			table.maxLen = l
		} else {
			// Empty length
			table.valPtr[l] = 0
			table.minCode[l] = 1
			table.maxCode[l] = 0
		}
	}
	fault.Check(p == len(table.symbols), "Huffman table is inconsistent")

	return table
}

func (t *huffTable) contains(code uint32, length int) bool {
	if length <= 0 || length > 16 {
		return false
	}
	mc, xc := t.minCode[length], t.maxCode[length]
	return mc <= xc && mc <= code && code <= xc
}

// decodeSymbol shifts in bits MSB-first until the accumulated code lands in
// a populated code range.
func (t *huffTable) decodeSymbol(r *bitio.Reader) uint8 {
	fault.Check(len(t.symbols) > 0 && t.maxLen > 0, "Huffman table has no symbols")

	code := uint32(0)
	length := 0
	for {
		var bit uint64
		fault.Check(r.Read(1, &bit), "entropy stream runs past the buffer")
		code = code<<1 | uint32(bit)
		length++
		fault.Check(length <= t.maxLen, "invalid Huffman code")
		if t.contains(code, length) {
			break
		}
	}

	index := t.valPtr[length] + int(code-t.minCode[length])
	fault.Check(index < len(t.symbols), "Huffman code indexes past the symbol list")
	return t.symbols[index]
}

// receiveExtend reads a category-bit amplitude and sign-extends it per
// JPEG's HUFF_EXTEND.
func receiveExtend(r *bitio.Reader, category uint) int32 {
	if category == 0 {
		return 0
	}
	fault.Check(category <= 31, "amplitude category out of range")

	var a uint64
	fault.Check(r.Read(category, &a), "entropy stream runs past the buffer")

	if a < 1<<(category-1) {
		return int32(int64(a) - (1<<category - 1))
	}
	return int32(a)
}

// Huffman decodes the entropy-coded scans of a frame into dequantizable
// coefficient blocks: baseline sequential and progressive DCT, with restart
// intervals and successive approximation. The encode direction is not
// implemented.
type Huffman struct {
	stageBase

	image *jpegImage
	sof   *segmentSOF
	dri   *segmentDRI
	dht   []*segmentDHT
	sos   []*segmentSOS
}

// NewHuffman creates the entropy stage over a parsed container.
func NewHuffman(img *jpegImage, size int, pf *PixelFormat) *Huffman {
	s := &Huffman{
		stageBase: makeStageBase(size, pf),
		image:     img,
		dht:       findSegments[*segmentDHT](img),
		sos:       findSegments[*segmentSOS](img),
	}
	s.sof, _ = findSingleSegment[*segmentSOF](img)
	s.dri, _ = findSingleSegment[*segmentDRI](img)
	fault.Check(s.sof != nil && len(s.dht) > 0 && len(s.sos) > 0, "frame is missing SOF, DHT or SOS segments")
	return s
}

func (s *Huffman) Compress(f *Format, src *Reference, dst *Reference) {
	fault.Fail("JPEG encoding is not implemented")
}

// compGrid is one component's full block raster at MCU granularity; block
// coefficients stay in zig-zag order here.
type compGrid struct {
	w, h   int
	blocks [][64]int32
}

func (s *Huffman) Decompress(f *Format, src *Reference, dst *Reference) {
	fault.Check(f.front() == Compression(s), "stage is not at the front of the queue")

	geo := newFrameGeometry(s.image, s.sof)
	comps := s.sof.components

	// Table definitions take effect for the scans that follow them, so
	// walk the segment list in container order and snapshot per scan.
	scanTables := make(map[*segmentSOS]map[[2]uint8]*huffTable)
	current := make(map[[2]uint8]*huffTable)
	for _, seg := range s.image.segments {
		switch t := seg.(type) {
		case *segmentDHT:
			for i := range t.tables {
				tbl := &t.tables[i]
				key := [2]uint8{tbl.tcth >> 4 & 0x0F, tbl.tcth & 0x0F}
				current[key] = buildHuffTable(tbl)
			}
		case *segmentSOS:
			snapshot := make(map[[2]uint8]*huffTable, len(current))
			for k, v := range current {
				snapshot[k] = v
			}
			scanTables[t] = snapshot
		}
	}

	grids := make([]compGrid, len(comps))
	for i, c := range comps {
		g := &grids[i]
		g.w = geo.mcusX * c.h()
		g.h = geo.mcusY * c.v()
		g.blocks = make([][64]int32, g.w*g.h)
	}

	restartInterval := 0
	if s.dri != nil {
		restartInterval = int(s.dri.restartInterval)
	}

	for _, scan := range s.sos {
		tables := scanTables[scan]

		ss := int(scan.spectralStart)
		se := int(scan.spectralEnd)
		ah := int(scan.successiveApproximation >> 4 & 0x0F)
		al := int(scan.successiveApproximation & 0x0F)

		fault.Check(ss <= se && se <= 63, "invalid spectral band")
		fault.Check(al <= 30, "invalid successive approximation shift")

		// DC predictors keyed by component id, and the progressive
		// end-of-band run, both reset at every restart marker.
		lastDC := make(map[uint8]int32)
		var eobRun uint32

		fault.Check(len(scan.entropy) > 0, "scan has no entropy data")
		sliceIdx := 0
		reader := bitio.NewReader(scan.entropy[0].data, 0)

		nextSlice := func() {
			sliceIdx++
			fault.Checkf(sliceIdx < len(scan.entropy), "restart interval expects a slice %d", sliceIdx)
			fault.Check(scan.entropy[sliceIdx].hasRestartMarker, "restart slice is missing its marker")
			reader = bitio.NewReader(scan.entropy[sliceIdx].data, 0)
			lastDC = make(map[uint8]int32)
			eobRun = 0
		}

		dcTable := func(sc sosComponent) *huffTable {
			t := tables[[2]uint8{0, sc.dcTableID()}]
			fault.Checkf(t != nil, "scan selects undefined DC table %d", sc.dcTableID())
			return t
		}
		acTable := func(sc sosComponent) *huffTable {
			t := tables[[2]uint8{1, sc.acTableID()}]
			fault.Checkf(t != nil, "scan selects undefined AC table %d", sc.acTableID())
			return t
		}

		decodeDC := func(blk *[64]int32, sc sosComponent) {
			if ah == 0 {
				symbol := dcTable(sc).decodeSymbol(reader)
				fault.Check(symbol <= 31, "DC category out of range")
				diff := receiveExtend(reader, uint(symbol)) << al

				dc := lastDC[sc.componentID] + diff
				blk[0] = dc
				lastDC[sc.componentID] = dc
			} else {
				// Refinement appends one bit to the DC coefficient.
				var bit uint64
				fault.Check(reader.Read(1, &bit), "entropy stream runs past the buffer")
				if bit != 0 {
					blk[0] |= 1 << al
				}
			}
		}

		// refineNonZeroes advances over nz zero-history coefficients,
		// consuming one correction bit for every nonzero passed. nz < 0
		// means no zero budget (end-of-band correction sweep).
		refineNonZeroes := func(blk *[64]int32, zig, nz int, delta int32) int {
			for ; zig <= se; zig++ {
				if blk[zig] == 0 {
					if nz == 0 {
						break
					}
					nz--
					continue
				}
				var bit uint64
				fault.Check(reader.Read(1, &bit), "entropy stream runs past the buffer")
				if bit != 0 && blk[zig]&delta == 0 {
					if blk[zig] >= 0 {
						blk[zig] += delta
					} else {
						blk[zig] -= delta
					}
				}
			}
			return zig
		}

		decodeAC := func(blk *[64]int32, sc sosComponent) {
			startK := ss
			if startK == 0 {
				startK = 1
			}

			if ah == 0 {
				// Initial scan for this band.
				if eobRun > 0 {
					eobRun--
					return
				}
				table := acTable(sc)
				for k := startK; k <= se; k++ {
					symbol := table.decodeSymbol(reader)
					run := int(symbol >> 4 & 0x0F)
					size := uint(symbol & 0x0F)

					if size == 0 {
						if run == 15 {
							k += 15 // ZRL
							continue
						}
						eobRun = 1 << run
						if run > 0 {
							var extra uint64
							fault.Check(reader.Read(uint(run), &extra), "entropy stream runs past the buffer")
							eobRun += uint32(extra)
						}
						eobRun--
						break
					}

					k += run
					fault.Check(k <= se, "AC run leaves the spectral band")
					blk[k] = receiveExtend(reader, size) << al
				}
				return
			}

			// Refinement scan: the correction-bit protocol over already
			// nonzero coefficients, new nonzeros arrive via their sign bit.
			delta := int32(1) << al

			zig := startK
			if eobRun == 0 {
				table := acTable(sc)
				for ; zig <= se; zig++ {
					z := int32(0)
					symbol := table.decodeSymbol(reader)
					run := int(symbol >> 4 & 0x0F)
					size := symbol & 0x0F

					done := false
					switch size {
					case 0:
						if run != 15 {
							eobRun = 1 << run
							if run > 0 {
								var extra uint64
								fault.Check(reader.Read(uint(run), &extra), "entropy stream runs past the buffer")
								eobRun += uint32(extra)
							}
							done = true
						}
					case 1:
						var bit uint64
						fault.Check(reader.Read(1, &bit), "entropy stream runs past the buffer")
						if bit != 0 {
							z = delta
						} else {
							z = -delta
						}
					default:
						fault.Fail("refinement symbol must carry a one-bit amplitude")
					}
					if done {
						break
					}

					zig = refineNonZeroes(blk, zig, run, delta)
					if z != 0 && zig <= se {
						blk[zig] = z
					}
				}
			}

			if eobRun > 0 {
				refineNonZeroes(blk, zig, -1, delta)
				eobRun--
			}
		}

		decodeBlock := func(blk *[64]int32, sc sosComponent) {
			if ss == 0 {
				decodeDC(blk, sc)
			}
			if se >= 1 {
				decodeAC(blk, sc)
			}
		}

		sofIndex := func(id uint8) int {
			for i, c := range comps {
				if c.componentID == id {
					return i
				}
			}
			fault.Checkf(false, "scan references unknown component %d", id)
			return -1
		}

		if len(scan.components) > 1 {
			// Interleaved: MCU order, H*V blocks per scan component.
			for m := 0; m < geo.mcusX*geo.mcusY; m++ {
				if restartInterval > 0 && m > 0 && m%restartInterval == 0 {
					nextSlice()
				}
				mx, my := m%geo.mcusX, m/geo.mcusX

				for _, sc := range scan.components {
					ci := sofIndex(sc.componentID)
					c := comps[ci]
					g := &grids[ci]

					for by := 0; by < c.v(); by++ {
						for bx := 0; bx < c.h(); bx++ {
							blk := &g.blocks[(my*c.v()+by)*g.w+mx*c.h()+bx]
							decodeBlock(blk, sc)
						}
					}
				}
			}
		} else {
			// Non-interleaved: raster order over the component's own
			// block grid, sized from its sample dimensions.
			fault.Check(len(scan.components) == 1, "scan has no components")
			sc := scan.components[0]
			ci := sofIndex(sc.componentID)
			c := comps[ci]
			g := &grids[ci]

			compW := (geo.w*c.h() + geo.maxH - 1) / geo.maxH
			compH := (geo.h*c.v() + geo.maxV - 1) / geo.maxV
			bw := (compW + 7) / 8
			bh := (compH + 7) / 8

			for u := 0; u < bw*bh; u++ {
				if restartInterval > 0 && u > 0 && u%restartInterval == 0 {
					nextSlice()
				}
				blk := &g.blocks[(u/bw)*g.w+u%bw]
				decodeBlock(blk, sc)
			}
		}
	}

	// Serialize every block in MCU scan order.
	totalBlocks := geo.mcusX * geo.mcusY * geo.mcuBlocks(s.sof)

	f.Offset = 0
	f.popFront(s)
	f.CopyFrom(&s.layout)
	syncSize(4+totalBlocks*(1+64*4), f, dst)

	w := bitio.NewWriter(dst.data(), 0)
	fault.Check(writeU32le(w, uint32(totalBlocks)), "block stream overflows the buffer")

	for my := 0; my < geo.mcusY; my++ {
		for mx := 0; mx < geo.mcusX; mx++ {
			for ci, c := range comps {
				g := &grids[ci]
				for by := 0; by < c.v(); by++ {
					for bx := 0; bx < c.h(); bx++ {
						blk := &g.blocks[(my*c.v()+by)*g.w+mx*c.h()+bx]
						fault.Check(w.WriteBytes([]byte{c.componentID}), "block stream overflows the buffer")
						for _, v := range blk {
							fault.Check(writeI32le(w, v), "block stream overflows the buffer")
						}
					}
				}
			}
		}
	}
}

func (s *Huffman) Equals(other Compression) bool {
	o, ok := other.(*Huffman)
	return ok && s.image == o.image && s.sameLayout(o)
}

// Arithmetic is the declared stage for arithmetic-coded frames; decoding is
// not implemented and every entry fails fast.
type Arithmetic struct {
	stageBase

	image *jpegImage
}

// NewArithmetic creates the placeholder arithmetic stage.
func NewArithmetic(img *jpegImage, size int, pf *PixelFormat) *Arithmetic {
	return &Arithmetic{stageBase: makeStageBase(size, pf), image: img}
}

func (s *Arithmetic) Compress(f *Format, src *Reference, dst *Reference) {
	fault.Fail("JPEG arithmetic coding is not implemented")
}

func (s *Arithmetic) Decompress(f *Format, src *Reference, dst *Reference) {
	fault.Fail("JPEG arithmetic coding is not implemented")
}

func (s *Arithmetic) Equals(other Compression) bool {
	o, ok := other.(*Arithmetic)
	return ok && s.image == o.image && s.sameLayout(o)
}

// Quantization multiplies each coefficient by its component's quantization
// table entry and drops the zig-zag order into natural order.
type Quantization struct {
	stageBase

	image *jpegImage
	sof   *segmentSOF
	dqt   []*segmentDQT
}

// NewQuantization creates the dequantization stage.
func NewQuantization(img *jpegImage, size int, pf *PixelFormat) *Quantization {
	s := &Quantization{
		stageBase: makeStageBase(size, pf),
		image:     img,
		dqt:       findSegments[*segmentDQT](img),
	}
	s.sof, _ = findSingleSegment[*segmentSOF](img)
	fault.Check(s.sof != nil && len(s.dqt) > 0, "frame is missing SOF or DQT segments")
	return s
}

func (s *Quantization) Compress(f *Format, src *Reference, dst *Reference) {
	fault.Fail("JPEG encoding is not implemented")
}

func (s *Quantization) Decompress(f *Format, src *Reference, dst *Reference) {
	fault.Check(f.front() == Compression(s), "stage is not at the front of the queue")

	quant := make(map[int]*[64]uint16)
	for _, seg := range s.dqt {
		for i := range seg.tables {
			t := &seg.tables[i]
			quant[int(t.pqtq&0x0F)] = &t.values
		}
	}

	r := bitio.NewReader(src.data(), f.Offset)

	var count uint32
	fault.Check(readU32le(r, &count), "block stream runs past the buffer")

	f.Offset = 0
	f.popFront(s)
	f.CopyFrom(&s.layout)
	syncSize(4+int(count)*(1+64*4), f, dst)

	w := bitio.NewWriter(dst.data(), 0)
	fault.Check(writeU32le(w, count), "block stream overflows the buffer")

	var compID [1]byte
	for bi := uint32(0); bi < count; bi++ {
		fault.Check(r.ReadBytes(compID[:]), "block stream runs past the buffer")

		comp, ok := s.sof.findComponent(compID[0])
		fault.Checkf(ok, "block references unknown component %d", compID[0])

		q := quant[int(comp.quantTableID)]
		fault.Checkf(q != nil, "component selects undefined quantization table %d", comp.quantTableID)

		var coef [64]int32
		for i := range coef {
			var v int32
			fault.Check(readI32le(r, &v), "block stream runs past the buffer")
			deq := int64(v) * int64(q[i])
			fault.Check(math.MinInt32 <= deq && deq <= math.MaxInt32, "dequantized coefficient overflows")
			coef[i] = int32(deq)
		}

		fault.Check(w.WriteBytes(compID[:]), "block stream overflows the buffer")
		for i := 0; i < 64; i++ {
			fault.Check(writeI32le(w, coef[zigzagIndex[i]]), "block stream overflows the buffer")
		}
	}
}

func (s *Quantization) Equals(other Compression) bool {
	o, ok := other.(*Quantization)
	return ok && s.image == o.image && s.sameLayout(o)
}

// DCT runs the inverse 8x8 transform on each dequantized block.
type DCT struct {
	stageBase

	image *jpegImage
	sof   *segmentSOF
}

// NewDCT creates the inverse-transform stage.
func NewDCT(img *jpegImage, size int, pf *PixelFormat) *DCT {
	s := &DCT{stageBase: makeStageBase(size, pf), image: img}
	s.sof, _ = findSingleSegment[*segmentSOF](img)
	fault.Check(s.sof != nil, "frame is missing its SOF segment")
	return s
}

func (s *DCT) Compress(f *Format, src *Reference, dst *Reference) {
	fault.Fail("JPEG encoding is not implemented")
}

func (s *DCT) Decompress(f *Format, src *Reference, dst *Reference) {
	fault.Check(f.front() == Compression(s), "stage is not at the front of the queue")

	r := bitio.NewReader(src.data(), f.Offset)

	var count uint32
	fault.Check(readU32le(r, &count), "block stream runs past the buffer")

	f.Offset = 0
	f.popFront(s)
	f.CopyFrom(&s.layout)
	syncSize(4+int(count)*(1+64*4), f, dst)

	w := bitio.NewWriter(dst.data(), 0)
	fault.Check(writeU32le(w, count), "block stream overflows the buffer")

	var compID [1]byte
	var in, out [64]int32
	for bi := uint32(0); bi < count; bi++ {
		fault.Check(r.ReadBytes(compID[:]), "block stream runs past the buffer")
		for i := range in {
			fault.Check(readI32le(r, &in[i]), "block stream runs past the buffer")
		}

		dct.Inverse(&in, &out)

		fault.Check(w.WriteBytes(compID[:]), "block stream overflows the buffer")
		for _, v := range out {
			fault.Check(writeI32le(w, v), "block stream overflows the buffer")
		}
	}
}

func (s *DCT) Equals(other Compression) bool {
	o, ok := other.(*DCT)
	return ok && s.image == o.image && s.sameLayout(o)
}

// BlockGrouping reassembles the MCU-interleaved block stream into raster
// ordered per-component block planes.
type BlockGrouping struct {
	stageBase

	image *jpegImage
	sof   *segmentSOF
}

// NewBlockGrouping creates the regrouping stage.
func NewBlockGrouping(img *jpegImage, size int, pf *PixelFormat) *BlockGrouping {
	s := &BlockGrouping{stageBase: makeStageBase(size, pf), image: img}
	s.sof, _ = findSingleSegment[*segmentSOF](img)
	fault.Check(s.sof != nil, "frame is missing its SOF segment")
	return s
}

func (s *BlockGrouping) Compress(f *Format, src *Reference, dst *Reference) {
	fault.Fail("JPEG encoding is not implemented")
}

func (s *BlockGrouping) Decompress(f *Format, src *Reference, dst *Reference) {
	fault.Check(f.front() == Compression(s), "stage is not at the front of the queue")

	r := bitio.NewReader(src.data(), f.Offset)

	var count uint32
	fault.Check(readU32le(r, &count), "block stream runs past the buffer")

	type block struct {
		compID uint8
		v      [64]int32
	}
	blocks := make([]block, count)
	for i := range blocks {
		var compID [1]byte
		fault.Check(r.ReadBytes(compID[:]), "block stream runs past the buffer")
		blocks[i].compID = compID[0]
		for j := range blocks[i].v {
			fault.Check(readI32le(r, &blocks[i].v[j]), "block stream runs past the buffer")
		}
	}

	geo := newFrameGeometry(s.image, s.sof)
	comps := s.sof.components

	compBlockW := make([]int, len(comps))
	compBlockH := make([]int, len(comps))
	compBlocks := make([][]int16, len(comps))
	for i, c := range comps {
		compBlockW[i] = geo.mcusX * c.h()
		compBlockH[i] = geo.mcusY * c.v()
		compBlocks[i] = make([]int16, compBlockW[i]*compBlockH[i]*64)
	}

	inIndex := 0
	for my := 0; my < geo.mcusY; my++ {
		for mx := 0; mx < geo.mcusX; mx++ {
			placed := make([]int, len(comps))

			for _, c := range comps {
				for n := 0; n < c.h()*c.v(); n++ {
					fault.Check(inIndex < len(blocks), "block stream is shorter than the MCU grid")
					blk := &blocks[inIndex]

					target := -1
					for k := range comps {
						if comps[k].componentID == blk.compID {
							target = k
							break
						}
					}
					fault.Checkf(target >= 0, "block references unknown component %d", blk.compID)

					ht := comps[target].h()
					idx := placed[target]
					placed[target]++

					blockX := mx*ht + idx%ht
					blockY := my*comps[target].v() + idx/ht

					dest := compBlocks[target][(blockY*compBlockW[target]+blockX)*64:]
					for k, v := range blk.v {
						fault.Check(math.MinInt16 <= v && v <= math.MaxInt16, "spatial sample overflows 16 bits")
						dest[k] = int16(v)
					}

					inIndex++
				}
			}
		}
	}

	byteCount := 2 + 2 + 1
	for i := range comps {
		byteCount += 1 + 1 + 1 + 4 + 64*2*compBlockW[i]*compBlockH[i]
	}

	f.Offset = 0
	f.popFront(s)
	f.CopyFrom(&s.layout)
	syncSize(byteCount, f, dst)

	w := bitio.NewWriter(dst.data(), 0)

	fault.Check(writeU16le(w, uint16(geo.mcusX*geo.maxH)), "block planes overflow the buffer")
	fault.Check(writeU16le(w, uint16(geo.mcusY*geo.maxV)), "block planes overflow the buffer")
	fault.Check(w.WriteBytes([]byte{uint8(len(comps))}), "block planes overflow the buffer")

	for i, c := range comps {
		numBlocks := compBlockW[i] * compBlockH[i]
		ok := w.WriteBytes([]byte{c.componentID, c.samplingFactors, c.quantTableID}) &&
			writeU32le(w, uint32(numBlocks))
		fault.Check(ok, "block planes overflow the buffer")

		for _, v := range compBlocks[i] {
			fault.Check(writeI16le(w, v), "block planes overflow the buffer")
		}
	}
}

func (s *BlockGrouping) Equals(other Compression) bool {
	o, ok := other.(*BlockGrouping)
	return ok && s.image == o.image && s.sameLayout(o)
}

// Scale up-samples each component's block plane to the frame dimensions
// with bilinear interpolation.
type Scale struct {
	stageBase

	image *jpegImage
	sof   *segmentSOF
}

// NewScale creates the chroma up-sampling stage.
func NewScale(img *jpegImage, size int, pf *PixelFormat) *Scale {
	s := &Scale{stageBase: makeStageBase(size, pf), image: img}
	s.sof, _ = findSingleSegment[*segmentSOF](img)
	fault.Check(s.sof != nil, "frame is missing its SOF segment")
	return s
}

func (s *Scale) Compress(f *Format, src *Reference, dst *Reference) {
	fault.Fail("JPEG encoding is not implemented")
}

func (s *Scale) Decompress(f *Format, src *Reference, dst *Reference) {
	fault.Check(f.front() == Compression(s), "stage is not at the front of the queue")

	r := bitio.NewReader(src.data(), f.Offset)

	var widthBlocks, heightBlocks uint16
	fault.Check(readU16le(r, &widthBlocks), "block planes run past the buffer")
	fault.Check(readU16le(r, &heightBlocks), "block planes run past the buffer")

	var componentCount [1]byte
	fault.Check(r.ReadBytes(componentCount[:]), "block planes run past the buffer")

	type component struct {
		compID    uint8
		numBlocks uint32
		blocks    []int16
	}
	components := make([]component, componentCount[0])
	for i := range components {
		c := &components[i]
		var hdr [3]byte
		fault.Check(r.ReadBytes(hdr[:]), "block planes run past the buffer")
		c.compID = hdr[0]
		fault.Check(readU32le(r, &c.numBlocks), "block planes run past the buffer")

		c.blocks = make([]int16, int(c.numBlocks)*64)
		for k := range c.blocks {
			fault.Check(readI16le(r, &c.blocks[k]), "block planes run past the buffer")
		}
	}

	geo := newFrameGeometry(s.image, s.sof)

	type plane struct {
		compID uint8
		w, h   int
		pixels []int16
	}
	planes := make([]plane, 0, len(components))

	for _, c := range components {
		comp, ok := s.sof.findComponent(c.compID)
		fault.Checkf(ok, "plane references unknown component %d", c.compID)

		blockW := geo.mcusX * comp.h()
		blockH := geo.mcusY * comp.v()
		fault.Check(int(c.numBlocks) == blockW*blockH, "plane block count disagrees with the frame geometry")

		p := plane{compID: c.compID, w: blockW * 8, h: blockH * 8}
		p.pixels = make([]int16, p.w*p.h)

		for by := 0; by < blockH; by++ {
			for bx := 0; bx < blockW; bx++ {
				blk := c.blocks[(by*blockW+bx)*64:]
				for ry := 0; ry < 8; ry++ {
					row := p.pixels[(by*8+ry)*p.w+bx*8:]
					copy(row[:8], blk[ry*8:ry*8+8])
				}
			}
		}

		planes = append(planes, p)
	}

	imageW, imageH := geo.w, geo.h

	f.Offset = 0
	f.popFront(s)
	f.CopyFrom(&s.layout)
	syncSize(2+2+1+len(planes)*(1+1+2*imageW*imageH), f, dst)

	w := bitio.NewWriter(dst.data(), 0)
	fault.Check(writeU16le(w, uint16(imageW)), "sample planes overflow the buffer")
	fault.Check(writeU16le(w, uint16(imageH)), "sample planes overflow the buffer")
	fault.Check(w.WriteBytes([]byte{uint8(len(planes))}), "sample planes overflow the buffer")

	for _, p := range planes {
		fault.Check(w.WriteBytes([]byte{p.compID, 2}), "sample planes overflow the buffer")

		// Sample coordinates map pixel centers: sx = (x+0.5)*srcW/dstW - 0.5,
		// clamped to the plane bounds.
		sxFactor := float64(p.w) / float64(imageW)
		syFactor := float64(p.h) / float64(imageH)

		for y := 0; y < imageH; y++ {
			sy := (float64(y)+0.5)*syFactor - 0.5
			if sy < 0 {
				sy = 0
			}
			if sy > float64(p.h-1) {
				sy = float64(p.h - 1)
			}
			y0 := int(math.Floor(sy))
			y1 := y0 + 1
			if y1 > p.h-1 {
				y1 = p.h - 1
			}
			wy := sy - float64(y0)

			for x := 0; x < imageW; x++ {
				sx := (float64(x)+0.5)*sxFactor - 0.5
				if sx < 0 {
					sx = 0
				}
				if sx > float64(p.w-1) {
					sx = float64(p.w - 1)
				}
				x0 := int(math.Floor(sx))
				x1 := x0 + 1
				if x1 > p.w-1 {
					x1 = p.w - 1
				}
				wx := sx - float64(x0)

				v00 := float64(p.pixels[y0*p.w+x0])
				v10 := float64(p.pixels[y0*p.w+x1])
				v01 := float64(p.pixels[y1*p.w+x0])
				v11 := float64(p.pixels[y1*p.w+x1])

				value := (1-wx)*(1-wy)*v00 + wx*(1-wy)*v10 + (1-wx)*wy*v01 + wx*wy*v11

				rounded := int(math.Round(value))
				fault.Check(math.MinInt16 <= rounded && rounded <= math.MaxInt16, "up-sampled value overflows 16 bits")
				fault.Check(writeI16le(w, int16(rounded)), "sample planes overflow the buffer")
			}
		}
	}
}

func (s *Scale) Equals(other Compression) bool {
	o, ok := other.(*Scale)
	return ok && s.image == o.image && s.sameLayout(o)
}

// colorRoute selects the color model conversion the frame needs, per the
// SOF component count and the Adobe APP14 transform.
type colorRoute int

const (
	routeGray colorRoute = iota
	routeRGB
	routeYCbCr
	routeCMYK
	routeYCCK
)

// planeSet is the parsed output of the Scale stage.
type planeSet struct {
	w, h    int
	ids     []uint8
	samples [][]int16
}

func readPlaneSet(r *bitio.Reader) planeSet {
	var ps planeSet

	var w16, h16 uint16
	fault.Check(readU16le(r, &w16), "sample planes run past the buffer")
	fault.Check(readU16le(r, &h16), "sample planes run past the buffer")
	ps.w, ps.h = int(w16), int(h16)

	var count [1]byte
	fault.Check(r.ReadBytes(count[:]), "sample planes run past the buffer")

	for i := 0; i < int(count[0]); i++ {
		var hdr [2]byte
		fault.Check(r.ReadBytes(hdr[:]), "sample planes run past the buffer")
		fault.Check(hdr[1] == 2, "sample planes must hold 16-bit elements")

		samples := make([]int16, ps.w*ps.h)
		for k := range samples {
			fault.Check(readI16le(r, &samples[k]), "sample planes run past the buffer")
		}

		ps.ids = append(ps.ids, hdr[0])
		ps.samples = append(ps.samples, samples)
	}
	return ps
}

// index returns the plane with the given component id, falling back to the
// container order when ids do not follow the 1, 2, 3(, 4) convention.
func (ps *planeSet) index(id uint8, fallback int) []int16 {
	for i, pid := range ps.ids {
		if pid == id {
			return ps.samples[i]
		}
	}
	fault.Checkf(fallback < len(ps.samples), "missing component plane %d", id)
	return ps.samples[fallback]
}

// YCbCrK converts luma-chroma sample planes to 8-bit output. The route
// covers grayscale passthrough, RGB passthrough (Adobe transform 0), YCbCr
// and four-component YCCK.
type YCbCrK struct {
	stageBase

	image *jpegImage
	Route colorRoute
}

// NewYCbCrK creates the color conversion stage for one route.
func NewYCbCrK(img *jpegImage, route colorRoute, size int, pf *PixelFormat) *YCbCrK {
	return &YCbCrK{stageBase: makeStageBase(size, pf), image: img, Route: route}
}

func (s *YCbCrK) Compress(f *Format, src *Reference, dst *Reference) {
	fault.Fail("JPEG encoding is not implemented")
}

func (s *YCbCrK) Decompress(f *Format, src *Reference, dst *Reference) {
	fault.Check(f.front() == Compression(s), "stage is not at the front of the queue")

	ps := readPlaneSet(bitio.NewReader(src.data(), f.Offset))
	pixelCount := ps.w * ps.h

	outChannels := 3
	if s.Route == routeGray {
		outChannels = 1
	}

	f.Offset = 0
	f.popFront(s)
	f.CopyFrom(&s.layout)
	syncSize(pixelCount*outChannels, f, dst)

	out := dst.data()

	switch s.Route {
	case routeGray:
		fault.Check(len(ps.samples) >= 1, "grayscale output requires one plane")
		y := ps.index(1, 0)
		for i := 0; i < pixelCount; i++ {
			out[i] = levelShift8(y[i])
		}

	case routeRGB:
		fault.Check(len(ps.samples) >= 3, "RGB output requires three planes")
		rp, gp, bp := ps.index(1, 0), ps.index(2, 1), ps.index(3, 2)
		for i := 0; i < pixelCount; i++ {
			out[3*i+0] = levelShift8(rp[i])
			out[3*i+1] = levelShift8(gp[i])
			out[3*i+2] = levelShift8(bp[i])
		}

	case routeYCbCr, routeYCCK:
		fault.Check(len(ps.samples) >= 3, "YCbCr output requires three planes")
		y, cb, cr := ps.index(1, 0), ps.index(2, 1), ps.index(3, 2)

		var kp []int16
		if s.Route == routeYCCK {
			fault.Check(len(ps.samples) >= 4, "YCCK output requires four planes")
			kp = ps.index(4, 3)
		}

		for i := 0; i < pixelCount; i++ {
			k := 1.0
			if kp != nil {
				k = inverseK(kp[i])
			}
			r, g, b := ycbcrToRGB(y[i], cb[i], cr[i], k)
			out[3*i+0] = r
			out[3*i+1] = g
			out[3*i+2] = b
		}

	default:
		fault.Fail("unexpected color route")
	}
}

func (s *YCbCrK) Equals(other Compression) bool {
	o, ok := other.(*YCbCrK)
	return ok && s.image == o.image && s.Route == o.Route && s.sameLayout(o)
}

// CMYK converts four subtractive sample planes to 8-bit RGB.
type CMYK struct {
	stageBase

	image *jpegImage
}

// NewCMYK creates the CMYK conversion stage.
func NewCMYK(img *jpegImage, size int, pf *PixelFormat) *CMYK {
	return &CMYK{stageBase: makeStageBase(size, pf), image: img}
}

func (s *CMYK) Compress(f *Format, src *Reference, dst *Reference) {
	fault.Fail("JPEG encoding is not implemented")
}

func (s *CMYK) Decompress(f *Format, src *Reference, dst *Reference) {
	fault.Check(f.front() == Compression(s), "stage is not at the front of the queue")

	ps := readPlaneSet(bitio.NewReader(src.data(), f.Offset))
	fault.Check(len(ps.samples) == 4, "CMYK requires four planes")

	pixelCount := ps.w * ps.h

	f.Offset = 0
	f.popFront(s)
	f.CopyFrom(&s.layout)
	syncSize(pixelCount*3, f, dst)

	out := dst.data()

	cp, mp, yp, kp := ps.index(1, 0), ps.index(2, 1), ps.index(3, 2), ps.index(4, 3)
	for i := 0; i < pixelCount; i++ {
		r, g, b := cmykToRGB(cp[i], mp[i], yp[i], kp[i])
		out[3*i+0] = r
		out[3*i+1] = g
		out[3*i+2] = b
	}
}

func (s *CMYK) Equals(other Compression) bool {
	o, ok := other.(*CMYK)
	return ok && s.image == o.image && s.sameLayout(o)
}

// extractColorModel maps the SOF component count and the optional Adobe
// APP14 transform to a color route.
func extractColorModel(size int, img *jpegImage) colorRoute {
	adobe, _ := findSingleSegment[*segmentAdobe](img)

	switch size {
	case 1:
		return routeGray
	case 3:
		if adobe != nil {
			switch adobe.colorTransform {
			case 0:
				return routeRGB
			case 1:
				return routeYCbCr
			default:
				fault.Checkf(false, "unsupported Adobe color transform %d", adobe.colorTransform)
			}
		}
		return routeYCbCr
	case 4:
		if adobe != nil {
			switch adobe.colorTransform {
			case 0:
				return routeCMYK
			case 2:
				return routeYCCK
			default:
				fault.Checkf(false, "unsupported Adobe color transform %d", adobe.colorTransform)
			}
		}
		return routeCMYK
	default:
		fault.Checkf(false, "unsupported component count %d", size)
	}
	return routeGray
}

// extractJpg parses a JPEG container and builds its decode stack: entropy
// decode, dequantization, inverse DCT, block regrouping, chroma up-sampling
// and color conversion.
func extractJpg(f *Format, r *bitio.Reader) {
	img := &jpegImage{}
	img.read(r)

	sof, ok := findSingleSegment[*segmentSOF](img)
	fault.Check(ok, "frame must carry exactly one SOF segment")

	switch sof.marker {
	case markerSOF0, markerSOF2:
	case 0xC9, 0xCA, 0xCB, 0xCD, 0xCE, 0xCF:
		fault.Fail("JPEG arithmetic coding is not implemented")
	default:
		fault.Checkf(false, "unsupported frame type %#x", sof.marker)
	}
	fault.Check(sof.samplePrecision == 8, "only 8-bit sample precision is supported")

	geo := newFrameGeometry(img, sof)
	f.W, f.H = geo.w, geo.h

	sampleBits := uint(sof.samplePrecision)

	f.ClearLayout()
	f.Pad = 1
	f.Offset = 0
	f.Channels = append(f.Channels,
		Channel{'R', sampleBits}, Channel{'G', sampleBits}, Channel{'B', sampleBits})
	f.CalculateBits()

	switch extractColorModel(len(sof.components), img) {
	case routeGray:
		f.ClearLayout()
		f.Channels = append(f.Channels, Channel{'G', sampleBits})
		f.CalculateBits()
		f.pushFront(NewYCbCrK(img, routeGray, 0, &f.PixelFormat))
		f.ClearLayout()
		f.Channels = append(f.Channels, Channel{'Y', sampleBits})
		f.CalculateBits()

	case routeRGB:
		f.pushFront(NewYCbCrK(img, routeRGB, 0, &f.PixelFormat))

	case routeYCbCr:
		f.pushFront(NewYCbCrK(img, routeYCbCr, 0, &f.PixelFormat))
		f.ClearLayout()
		f.Channels = append(f.Channels,
			Channel{'Y', sampleBits}, Channel{'B', sampleBits}, Channel{'R', sampleBits})
		f.CalculateBits()

	case routeCMYK:
		f.pushFront(NewCMYK(img, 0, &f.PixelFormat))
		f.ClearLayout()
		f.Channels = append(f.Channels,
			Channel{'C', sampleBits}, Channel{'M', sampleBits}, Channel{'Y', sampleBits}, Channel{'K', sampleBits})
		f.CalculateBits()

	case routeYCCK:
		f.pushFront(NewYCbCrK(img, routeYCCK, 0, &f.PixelFormat))
		f.ClearLayout()
		f.Channels = append(f.Channels,
			Channel{'Y', sampleBits}, Channel{'B', sampleBits}, Channel{'R', sampleBits}, Channel{'K', sampleBits})
		f.CalculateBits()
	}

	f.pushFront(NewScale(img, 0, &f.PixelFormat))
	f.pushFront(NewBlockGrouping(img, 0, &f.PixelFormat))
	f.pushFront(NewDCT(img, 0, &f.PixelFormat))
	f.pushFront(NewQuantization(img, 0, &f.PixelFormat))
	f.pushFront(NewHuffman(img, 0, &f.PixelFormat))
}

// makeJpg configures a Format for reading JPEG data. Encoding to JPEG is
// not implemented.
func makeJpg(ref *Reference, f *Format, write *headerWriter) {
	f.W = ref.W
	f.H = ref.H

	if write == nil {
		extractJpg(f, bitio.NewReader(ref.data(), 0))
		return
	}

	fault.Fail("JPEG encoding is not implemented")
}
