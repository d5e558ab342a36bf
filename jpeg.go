package rastercodec

import (
	"encoding/binary"

	"github.com/mrjoshuak/go-rastercodec/internal/bitio"
	"github.com/mrjoshuak/go-rastercodec/internal/fault"
)

// JPEG marker bytes handled by the container parser.
const (
	markerTEM = 0x01
	markerSOI = 0xD8
	markerEOI = 0xD9
	markerSOS = 0xDA
	markerDQT = 0xDB
	markerDNL = 0xDC
	markerDRI = 0xDD
	markerDHT = 0xC4
	markerDAC = 0xCC
	markerCOM = 0xFE

	markerSOF0 = 0xC0
	markerSOF2 = 0xC2

	markerAPP0  = 0xE0 // JFIF
	markerAPP1  = 0xE1 // EXIF
	markerAPP2  = 0xE2 // ICC
	markerAPP14 = 0xEE // Adobe
)

func readU8(r *bitio.Reader, v *uint8) bool {
	var b [1]byte
	if !r.ReadBytes(b[:]) {
		return false
	}
	*v = b[0]
	return true
}

func readU16be(r *bitio.Reader, v *uint16) bool {
	var b [2]byte
	if !r.ReadBytes(b[:]) {
		return false
	}
	*v = binary.BigEndian.Uint16(b[:])
	return true
}

func writeU16be(w *bitio.Writer, v uint16) bool {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return w.WriteBytes(b[:])
}

func writeMarker(w *bitio.Writer, marker byte) bool {
	return w.WriteBytes([]byte{0xFF, marker})
}

// jpegSegment is one parsed container segment. read consumes exactly length
// body bytes; write emits the whole segment including marker and length.
type jpegSegment interface {
	read(r *bitio.Reader, length int) bool
	write(w *bitio.Writer) bool
}

// jpegImage is the parsed segment list of one JPEG stream.
type jpegImage struct {
	segments []jpegSegment
}

// findSegments returns every segment of type S in container order.
func findSegments[S jpegSegment](j *jpegImage) []S {
	var result []S
	for _, s := range j.segments {
		if t, ok := s.(S); ok {
			result = append(result, t)
		}
	}
	return result
}

// findSingleSegment returns the segment of type S, or false when there are
// zero or several.
func findSingleSegment[S jpegSegment](j *jpegImage) (S, bool) {
	var found S
	ok := false
	for _, s := range j.segments {
		if t, is := s.(S); is {
			if ok {
				var zero S
				return zero, false
			}
			found, ok = t, true
		}
	}
	return found, ok
}

// readNextMarker seeks the next inter-segment marker byte, collapsing 0xFF
// padding. Byte-stuffing and restart markers are invalid between segments
// and end the search.
func readNextMarker(r *bitio.Reader, marker *byte) bool {
	var b uint8

	for {
		if !readU8(r, &b) {
			return false
		}
		if b == 0xFF {
			break
		}
	}

	for {
		if !readU8(r, &b) {
			return false
		}
		if b == 0xFF {
			continue // padding
		}
		if b == 0x00 || (b >= 0xD0 && b <= 0xD7) {
			return false
		}
		*marker = b
		return true
	}
}

// segmentGeneric retains an unrecognized segment's raw body.
type segmentGeneric struct {
	marker    byte
	hasLength bool
	data      []byte
}

func (s *segmentGeneric) read(r *bitio.Reader, length int) bool {
	s.data = nil
	if length == 0 {
		return true
	}
	s.data = make([]byte, length)
	return r.ReadBytes(s.data)
}

func (s *segmentGeneric) write(w *bitio.Writer) bool {
	if !writeMarker(w, s.marker) {
		return false
	}
	if s.hasLength {
		if !writeU16be(w, uint16(len(s.data)+2)) {
			return false
		}
		if len(s.data) > 0 && !w.WriteBytes(s.data) {
			return false
		}
	}
	return true
}

type segmentSOI struct{}

func (s *segmentSOI) read(*bitio.Reader, int) bool { return true }
func (s *segmentSOI) write(w *bitio.Writer) bool   { return writeMarker(w, markerSOI) }

type segmentEOI struct{}

func (s *segmentEOI) read(*bitio.Reader, int) bool { return true }
func (s *segmentEOI) write(w *bitio.Writer) bool   { return writeMarker(w, markerEOI) }

type segmentTEM struct{}

func (s *segmentTEM) read(*bitio.Reader, int) bool { return true }
func (s *segmentTEM) write(w *bitio.Writer) bool   { return writeMarker(w, markerTEM) }

// segmentJFIF is the APP0 JFIF header with its optional RGB thumbnail.
type segmentJFIF struct {
	identifier   [5]byte
	versionMajor uint8
	versionMinor uint8
	units        uint8
	xDensity     uint16
	yDensity     uint16
	xThumbnail   uint8
	yThumbnail   uint8
	thumbnail    []byte
}

const jfifHeaderSize = 14

func (s *segmentJFIF) read(r *bitio.Reader, length int) bool {
	if !r.ReadBytes(s.identifier[:]) ||
		!readU8(r, &s.versionMajor) || !readU8(r, &s.versionMinor) ||
		!readU8(r, &s.units) ||
		!readU16be(r, &s.xDensity) || !readU16be(r, &s.yDensity) ||
		!readU8(r, &s.xThumbnail) || !readU8(r, &s.yThumbnail) {
		return false
	}

	thumbBytes := 3 * int(s.xThumbnail) * int(s.yThumbnail)
	if thumbBytes > 0 {
		s.thumbnail = make([]byte, thumbBytes)
		if !r.ReadBytes(s.thumbnail) {
			return false
		}
	}

	return jfifHeaderSize+thumbBytes == length
}

func (s *segmentJFIF) write(w *bitio.Writer) bool {
	if !writeMarker(w, markerAPP0) {
		return false
	}
	if !writeU16be(w, uint16(jfifHeaderSize+len(s.thumbnail)+2)) {
		return false
	}
	ok := w.WriteBytes(s.identifier[:]) &&
		w.WriteBytes([]byte{s.versionMajor, s.versionMinor, s.units}) &&
		writeU16be(w, s.xDensity) && writeU16be(w, s.yDensity) &&
		w.WriteBytes([]byte{s.xThumbnail, s.yThumbnail})
	if !ok {
		return false
	}
	if len(s.thumbnail) > 0 && !w.WriteBytes(s.thumbnail) {
		return false
	}
	return true
}

// segmentEXIF retains the APP1 TIFF payload.
type segmentEXIF struct {
	tiffData []byte
}

func (s *segmentEXIF) read(r *bitio.Reader, length int) bool {
	s.tiffData = nil
	if length == 0 {
		return true
	}
	s.tiffData = make([]byte, length)
	return r.ReadBytes(s.tiffData)
}

func (s *segmentEXIF) write(w *bitio.Writer) bool {
	if !writeMarker(w, markerAPP1) {
		return false
	}
	if !writeU16be(w, uint16(len(s.tiffData)+2)) {
		return false
	}
	if len(s.tiffData) > 0 && !w.WriteBytes(s.tiffData) {
		return false
	}
	return true
}

// segmentICC is one APP2 ICC profile chunk.
type segmentICC struct {
	identifier  [12]byte
	seqNumber   uint8
	totalChunks uint8
	chunkData   []byte
}

const iccHeaderSize = 14

func (s *segmentICC) read(r *bitio.Reader, length int) bool {
	if length < iccHeaderSize {
		return false
	}
	if !r.ReadBytes(s.identifier[:]) || !readU8(r, &s.seqNumber) || !readU8(r, &s.totalChunks) {
		return false
	}

	s.chunkData = nil
	if rem := length - iccHeaderSize; rem > 0 {
		s.chunkData = make([]byte, rem)
		if !r.ReadBytes(s.chunkData) {
			return false
		}
	}
	return true
}

func (s *segmentICC) write(w *bitio.Writer) bool {
	if !writeMarker(w, markerAPP2) {
		return false
	}
	if !writeU16be(w, uint16(iccHeaderSize+len(s.chunkData)+2)) {
		return false
	}
	if !w.WriteBytes(s.identifier[:]) || !w.WriteBytes([]byte{s.seqNumber, s.totalChunks}) {
		return false
	}
	if len(s.chunkData) > 0 && !w.WriteBytes(s.chunkData) {
		return false
	}
	return true
}

// segmentAdobe is the APP14 Adobe marker; colorTransform selects the color
// model route.
type segmentAdobe struct {
	identifier     [5]byte
	version        uint16
	flags0         uint16
	flags1         uint16
	colorTransform uint8
	extraData      []byte
}

const adobeHeaderSize = 12

func (s *segmentAdobe) read(r *bitio.Reader, length int) bool {
	if length < adobeHeaderSize {
		return false
	}
	if !r.ReadBytes(s.identifier[:]) ||
		!readU16be(r, &s.version) || !readU16be(r, &s.flags0) || !readU16be(r, &s.flags1) ||
		!readU8(r, &s.colorTransform) {
		return false
	}

	if string(s.identifier[:]) != "Adobe" {
		return false
	}

	s.extraData = nil
	if rem := length - adobeHeaderSize; rem > 0 {
		s.extraData = make([]byte, rem)
		if !r.ReadBytes(s.extraData) {
			return false
		}
	}
	return true
}

func (s *segmentAdobe) write(w *bitio.Writer) bool {
	if !writeMarker(w, markerAPP14) {
		return false
	}
	if !writeU16be(w, uint16(adobeHeaderSize+len(s.extraData)+2)) {
		return false
	}
	ok := w.WriteBytes(s.identifier[:]) &&
		writeU16be(w, s.version) && writeU16be(w, s.flags0) && writeU16be(w, s.flags1) &&
		w.WriteBytes([]byte{s.colorTransform})
	if !ok {
		return false
	}
	if len(s.extraData) > 0 && !w.WriteBytes(s.extraData) {
		return false
	}
	return true
}

// segmentCOM is a comment.
type segmentCOM struct {
	commentary string
}

func (s *segmentCOM) read(r *bitio.Reader, length int) bool {
	s.commentary = ""
	if length == 0 {
		return true
	}
	buf := make([]byte, length)
	if !r.ReadBytes(buf) {
		return false
	}
	s.commentary = string(buf)
	return true
}

func (s *segmentCOM) write(w *bitio.Writer) bool {
	if !writeMarker(w, markerCOM) {
		return false
	}
	if !writeU16be(w, uint16(len(s.commentary)+2)) {
		return false
	}
	if len(s.commentary) > 0 && !w.WriteBytes([]byte(s.commentary)) {
		return false
	}
	return true
}

// sofComponent is one frame component: its id, packed sampling factors and
// quantization table selector.
type sofComponent struct {
	componentID     uint8
	samplingFactors uint8
	quantTableID    uint8
}

func (c sofComponent) h() int { return int(c.samplingFactors>>4) & 0x0F }
func (c sofComponent) v() int { return int(c.samplingFactors) & 0x0F }

// segmentSOF is any start-of-frame segment; marker distinguishes the frame
// type (baseline, progressive, arithmetic, ...).
type segmentSOF struct {
	marker          byte
	samplePrecision uint8
	imageHeight     uint16
	imageWidth      uint16
	components      []sofComponent
}

func (s *segmentSOF) read(r *bitio.Reader, length int) bool {
	var numComponents uint8
	if !readU8(r, &s.samplePrecision) ||
		!readU16be(r, &s.imageHeight) || !readU16be(r, &s.imageWidth) ||
		!readU8(r, &numComponents) {
		return false
	}

	s.components = make([]sofComponent, numComponents)
	for i := range s.components {
		c := &s.components[i]
		if !readU8(r, &c.componentID) || !readU8(r, &c.samplingFactors) || !readU8(r, &c.quantTableID) {
			return false
		}
	}

	return 6+3*int(numComponents) == length
}

func (s *segmentSOF) write(w *bitio.Writer) bool {
	if !writeMarker(w, s.marker) {
		return false
	}
	if !writeU16be(w, uint16(6+3*len(s.components)+2)) {
		return false
	}
	ok := w.WriteBytes([]byte{s.samplePrecision}) &&
		writeU16be(w, s.imageHeight) && writeU16be(w, s.imageWidth) &&
		w.WriteBytes([]byte{uint8(len(s.components))})
	if !ok {
		return false
	}
	for _, c := range s.components {
		if !w.WriteBytes([]byte{c.componentID, c.samplingFactors, c.quantTableID}) {
			return false
		}
	}
	return true
}

// maxSampling returns the frame's maxH and maxV sampling factors.
func (s *segmentSOF) maxSampling() (int, int) {
	maxH, maxV := 0, 0
	for _, c := range s.components {
		if c.h() > maxH {
			maxH = c.h()
		}
		if c.v() > maxV {
			maxV = c.v()
		}
	}
	fault.Check(maxH > 0 && maxV > 0, "frame sampling factors must be positive")
	return maxH, maxV
}

// findComponent returns the frame component with the given id.
func (s *segmentSOF) findComponent(id uint8) (sofComponent, bool) {
	for _, c := range s.components {
		if c.componentID == id {
			return c, true
		}
	}
	return sofComponent{}, false
}

// segmentDNL overrides the frame height declared in the SOF.
type segmentDNL struct {
	numberOfLines uint16
}

func (s *segmentDNL) read(r *bitio.Reader, length int) bool {
	if length != 2 {
		return false
	}
	return readU16be(r, &s.numberOfLines)
}

func (s *segmentDNL) write(w *bitio.Writer) bool {
	return writeMarker(w, markerDNL) && writeU16be(w, 4) && writeU16be(w, s.numberOfLines)
}

// dacTable is one arithmetic conditioning table.
type dacTable struct {
	tb uint8
	cs uint8
	tc uint8
}

// segmentDAC defines arithmetic conditioning; it is parsed and validated
// even though arithmetic decoding itself is not implemented.
type segmentDAC struct {
	tables []dacTable
}

func (s *segmentDAC) read(r *bitio.Reader, length int) bool {
	if length%3 != 0 {
		return false
	}

	s.tables = make([]dacTable, length/3)
	for i := range s.tables {
		t := &s.tables[i]
		if !readU8(r, &t.tb) || !readU8(r, &t.cs) || !readU8(r, &t.tc) {
			return false
		}

		// Range validation per ITU-T T.81.
		if t.tb > 3 || t.tc > 1 {
			return false
		}
		if t.tc == 1 {
			if t.cs < 1 || t.cs > 63 {
				return false
			}
		} else {
			u, l := t.cs>>4, t.cs&0x0F
			if l > u || u > 15 {
				return false
			}
		}
	}
	return true
}

func (s *segmentDAC) write(w *bitio.Writer) bool {
	if !writeMarker(w, markerDAC) {
		return false
	}
	if !writeU16be(w, uint16(3*len(s.tables)+2)) {
		return false
	}
	for _, t := range s.tables {
		if !w.WriteBytes([]byte{t.tb, t.cs, t.tc}) {
			return false
		}
	}
	return true
}

// dqtTable is one quantization table; wide selects 16-bit entries.
type dqtTable struct {
	pqtq   uint8
	wide   bool
	values [64]uint16
}

// segmentDQT defines one or more quantization tables.
type segmentDQT struct {
	tables []dqtTable
}

func (s *segmentDQT) read(r *bitio.Reader, length int) bool {
	s.tables = nil
	remaining := length

	for remaining > 0 {
		var t dqtTable
		if !readU8(r, &t.pqtq) {
			return false
		}
		remaining--

		t.wide = (t.pqtq>>4)&0x0F != 0
		entrySize := 1
		if t.wide {
			entrySize = 2
		}

		for i := range t.values {
			if remaining < entrySize {
				return false
			}
			if t.wide {
				if !readU16be(r, &t.values[i]) {
					return false
				}
			} else {
				var b uint8
				if !readU8(r, &b) {
					return false
				}
				t.values[i] = uint16(b)
			}
			remaining -= entrySize
		}

		s.tables = append(s.tables, t)
	}
	return true
}

func (s *segmentDQT) write(w *bitio.Writer) bool {
	if !writeMarker(w, markerDQT) {
		return false
	}

	bodySize := 0
	for _, t := range s.tables {
		if t.wide {
			bodySize += 1 + 128
		} else {
			bodySize += 1 + 64
		}
	}
	if !writeU16be(w, uint16(bodySize+2)) {
		return false
	}

	for _, t := range s.tables {
		if !w.WriteBytes([]byte{t.pqtq}) {
			return false
		}
		for _, v := range t.values {
			if t.wide {
				if !writeU16be(w, v) {
					return false
				}
			} else if !w.WriteBytes([]byte{uint8(v)}) {
				return false
			}
		}
	}
	return true
}

// dhtTable is one Huffman table definition: the per-length code counts and
// the symbols in code order.
type dhtTable struct {
	tcth    uint8
	counts  [16]uint8
	symbols []uint8
}

// segmentDHT defines one or more Huffman tables.
type segmentDHT struct {
	tables []dhtTable
}

func (s *segmentDHT) read(r *bitio.Reader, length int) bool {
	s.tables = nil
	remaining := length

	for remaining > 0 {
		var t dhtTable
		if !readU8(r, &t.tcth) {
			return false
		}
		remaining--

		total := 0
		for i := 0; i < 16; i++ {
			if !readU8(r, &t.counts[i]) {
				return false
			}
			remaining--
			total += int(t.counts[i])
		}

		if total > remaining {
			return false
		}
		t.symbols = make([]uint8, total)
		if total > 0 && !r.ReadBytes(t.symbols) {
			return false
		}
		remaining -= total

		s.tables = append(s.tables, t)
	}
	return true
}

func (s *segmentDHT) write(w *bitio.Writer) bool {
	if !writeMarker(w, markerDHT) {
		return false
	}

	bodySize := 0
	for _, t := range s.tables {
		bodySize += 1 + 16 + len(t.symbols)
	}
	if !writeU16be(w, uint16(bodySize+2)) {
		return false
	}

	for _, t := range s.tables {
		if !w.WriteBytes([]byte{t.tcth}) || !w.WriteBytes(t.counts[:]) {
			return false
		}
		if len(t.symbols) > 0 && !w.WriteBytes(t.symbols) {
			return false
		}
	}
	return true
}

// segmentDRI sets the restart interval.
type segmentDRI struct {
	restartInterval uint16
}

func (s *segmentDRI) read(r *bitio.Reader, length int) bool {
	if length != 2 {
		return false
	}
	return readU16be(r, &s.restartInterval)
}

func (s *segmentDRI) write(w *bitio.Writer) bool {
	return writeMarker(w, markerDRI) && writeU16be(w, 4) && writeU16be(w, s.restartInterval)
}

// sosComponent selects one scan component's Huffman tables: DC id in the
// high selector nibble, AC id in the low one.
type sosComponent struct {
	componentID      uint8
	huffmanSelectors uint8
}

func (c sosComponent) dcTableID() uint8 { return c.huffmanSelectors >> 4 & 0x0F }
func (c sosComponent) acTableID() uint8 { return c.huffmanSelectors & 0x0F }

// entropySlice is a run of entropy-coded bytes with byte-stuffing removed,
// starting at the scan head or at a restart marker.
type entropySlice struct {
	restartMarker    byte
	hasRestartMarker bool
	data             []byte
}

// segmentSOS is one scan: its header, the entropy-coded data split at
// restart markers, and the marker byte that terminated the stream.
type segmentSOS struct {
	components []sosComponent

	spectralStart           uint8
	spectralEnd             uint8
	successiveApproximation uint8

	// rawEntropy keeps the entropy bytes as stored, stuffing included, so
	// the scan can be rewritten verbatim.
	rawEntropy []byte

	entropy []entropySlice

	nextMarker    byte
	hasNextMarker bool
}

func (s *segmentSOS) read(r *bitio.Reader, length int) bool {
	var numScanComponents uint8
	if !readU8(r, &numScanComponents) {
		return false
	}
	consumed := 1

	s.components = make([]sosComponent, numScanComponents)
	for i := range s.components {
		c := &s.components[i]
		if !readU8(r, &c.componentID) || !readU8(r, &c.huffmanSelectors) {
			return false
		}
	}
	consumed += 2 * int(numScanComponents)

	if !readU8(r, &s.spectralStart) || !readU8(r, &s.spectralEnd) || !readU8(r, &s.successiveApproximation) {
		return false
	}
	consumed += 3

	if consumed > length {
		return false
	}
	// Some encoders pad the scan header; discard the excess.
	if extra := length - consumed; extra > 0 {
		if !r.Skip(uint64(extra) * 8) {
			return false
		}
	}

	s.entropy = []entropySlice{{}}
	s.rawEntropy = nil
	s.hasNextMarker = false

	slice := &s.entropy[0]
	for {
		var b uint8
		if !readU8(r, &b) {
			return false
		}

		if b != 0xFF {
			slice.data = append(slice.data, b)
			s.rawEntropy = append(s.rawEntropy, b)
			continue
		}

		for {
			var c uint8
			if !readU8(r, &c) {
				return false
			}

			if c == 0x00 {
				// Byte-stuffing: 0xFF is stored as 0xFF 0x00.
				slice.data = append(slice.data, b)
				s.rawEntropy = append(s.rawEntropy, b, c)
				break
			}

			if c == 0xFF {
				// Padding
				s.rawEntropy = append(s.rawEntropy, c)
				continue
			}

			if c >= 0xD0 && c <= 0xD7 {
				s.entropy = append(s.entropy, entropySlice{restartMarker: c, hasRestartMarker: true})
				slice = &s.entropy[len(s.entropy)-1]
				s.rawEntropy = append(s.rawEntropy, b, c)
				break
			}

			// A terminating marker, not part of the entropy data.
			s.nextMarker = c
			s.hasNextMarker = true
			return true
		}
	}
}

func (s *segmentSOS) write(w *bitio.Writer) bool {
	if !writeMarker(w, markerSOS) {
		return false
	}
	if !writeU16be(w, uint16(1+2*len(s.components)+3+2)) {
		return false
	}
	if !w.WriteBytes([]byte{uint8(len(s.components))}) {
		return false
	}
	for _, c := range s.components {
		if !w.WriteBytes([]byte{c.componentID, c.huffmanSelectors}) {
			return false
		}
	}
	if !w.WriteBytes([]byte{s.spectralStart, s.spectralEnd, s.successiveApproximation}) {
		return false
	}
	if len(s.rawEntropy) > 0 && !w.WriteBytes(s.rawEntropy) {
		return false
	}
	return true
}

// read parses the whole container. Segments that fail to parse and unknown
// markers outside the APPn range are fatal; the marker that terminates each scan's entropy stream
// feeds the loop in place of a fresh marker search.
func (j *jpegImage) read(r *bitio.Reader) {
	j.segments = nil

	var marker byte
	haveMarker := false
	var sos *segmentSOS
	length := 0

	addSegment := func(s jpegSegment) {
		fault.Check(s.read(r, length), "malformed JPEG segment")
		j.segments = append(j.segments, s)

		haveMarker = false
		if sos != nil {
			fault.Check(sos.hasNextMarker, "entropy stream ended without a marker")
			marker = sos.nextMarker
			haveMarker = true
			sos = nil
		}
	}

	var soi [2]byte
	fault.Check(r.ReadBytes(soi[:]) && soi[0] == 0xFF && soi[1] == markerSOI, "missing SOI marker")
	addSegment(&segmentSOI{})

	for {
		if !haveMarker {
			fault.Check(readNextMarker(r, &marker), "missing segment marker")
			haveMarker = true
		}

		length = 0

		if marker == markerEOI {
			addSegment(&segmentEOI{})
			break
		}

		if marker == markerTEM {
			addSegment(&segmentTEM{})
			continue
		}

		var rawLength uint16
		fault.Check(readU16be(r, &rawLength), "missing segment length")
		fault.Check(rawLength >= 2, "segment length below the length field size")
		length = int(rawLength) - 2

		switch marker {
		case markerAPP0:
			addSegment(&segmentJFIF{})
		case markerAPP1:
			addSegment(&segmentEXIF{})
		case markerAPP2:
			addSegment(&segmentICC{})
		case markerAPP14:
			addSegment(&segmentAdobe{})
		case markerCOM:
			addSegment(&segmentCOM{})
		case 0xC0, 0xC1, 0xC2, 0xC3, 0xC5, 0xC6, 0xC7, 0xC9, 0xCA, 0xCB, 0xCD, 0xCE, 0xCF:
			addSegment(&segmentSOF{marker: marker})
		case markerDNL:
			addSegment(&segmentDNL{})
		case markerDAC:
			addSegment(&segmentDAC{})
		case markerDQT:
			addSegment(&segmentDQT{})
		case markerDHT:
			addSegment(&segmentDHT{})
		case markerDRI:
			addSegment(&segmentDRI{})
		case markerSOS:
			sos = &segmentSOS{}
			addSegment(sos)
		default:
			fault.Checkf(marker >= 0xE0 && marker <= 0xEF, "unknown JPEG marker %#x", marker)
			addSegment(&segmentGeneric{marker: marker, hasLength: true})
		}
	}
}

func (j *jpegImage) write(w *bitio.Writer) {
	for _, s := range j.segments {
		fault.Check(s.write(w), "segment overflows the buffer")
	}
}
