package rastercodec

import (
	"encoding/binary"
	"math/bits"
	"sort"

	"github.com/mrjoshuak/go-rastercodec/internal/fault"
)

// BMP compression tags.
const (
	biRGB       = 0
	biRLE8      = 1
	biRLE4      = 2
	biBitfields = 3
)

// Header sizes double as the header-type discriminant.
const (
	bmpFileHeaderSize  = 14
	bmpCoreHeaderSize  = 12
	bmpInfoHeaderSize  = 40
	bmpV2HeaderSize    = 52
	bmpV3HeaderSize    = 56
	bmpCoreHeader2Size = 64
	bmpV4HeaderSize    = 108
	bmpV5HeaderSize    = 124
)

// bmpInfoHeader is the common shape of every post-CORE header.
type bmpInfoHeader struct {
	size        uint32
	width       int32
	height      int32
	bitCount    uint16
	compression uint32
	sizeImage   uint32
	clrUsed     uint32
}

// RleBmp decodes BMP run-length data at a 1, 4 or 8-bit granule. Only the
// decode direction is implemented.
type RleBmp struct {
	stageBase

	Granule uint
}

// NewRleBmp creates an RLE stage over single-index pixels of the given
// granule.
func NewRleBmp(size int, pf *PixelFormat, granule uint) *RleBmp {
	return &RleBmp{stageBase: makeStageBase(size, pf), Granule: granule}
}

func (s *RleBmp) Compress(f *Format, src *Reference, dst *Reference) {
	fault.Fail("BMP run-length encoding is not implemented")
}

func (s *RleBmp) Decompress(f *Format, src *Reference, dst *Reference) {
	fault.Check(s.Granule > 0 && 8%s.Granule == 0 && f.Bits == s.Granule, "RLE granule must match the pixel width")
	fault.Check(f.front() == Compression(s), "stage is not at the front of the queue")

	reader := NewPixelReader(f, src)

	f.Offset = 0
	f.popFront(s)
	f.CopyFrom(&s.layout)
	sync(f, dst)

	writer := NewPixelWriter(f, dst)

	read := func(bitCount uint, v *uint64) {
		fault.Check(reader.Read(bitCount, v), "RLE stream runs past the buffer")
	}

	var count, command uint64
	for {
		read(8, &count)

		if count > 0 {
			// Encoded run: repeat a cycle of 8/granule indices.
			cycle := make([]Pixel, 8/s.Granule)
			for i := range cycle {
				fault.Check(reader.GetPixel(&cycle[i]), "RLE stream runs past the buffer")
			}

			for i := 0; count > 0; count-- {
				fault.Check(writer.PutPixelLn(cycle[i]), "RLE output overflows the buffer")
				i = (i + 1) % len(cycle)
			}
		} else {
			read(8, &command)

			if command > 2 {
				// Literal run, padded up to 16-bit alignment.
				count = command
				pad := uint(16*((count*uint64(s.Granule)+15)/16) - count*uint64(s.Granule))

				var pixel Pixel
				for ; count > 0; count-- {
					fault.Check(reader.GetPixel(&pixel), "RLE stream runs past the buffer")
					fault.Check(writer.PutPixelLn(pixel), "RLE output overflows the buffer")
				}

				var padding uint64
				read(pad, &padding)
			}

			switch command {
			case 0:
				// End of line
				writer.NextLine()
			case 1:
				// End of bitmap
			case 2:
				// Delta
				var dx, dy uint64
				read(8, &dx)
				read(8, &dy)
				writer.Add(int(dx), int(dy))
			}
		}

		if command == 1 {
			break
		}
	}
}

func (s *RleBmp) Equals(other Compression) bool {
	o, ok := other.(*RleBmp)
	return ok && s.Granule == o.Granule && s.sameLayout(o)
}

// offsetChannel is a channel with its bit offset within a packed pixel mask.
type offsetChannel struct {
	Channel
	offset int
}

// extractBmpChannels derives the channel vector from DWORD bitfield masks,
// ordered by trailing-zero offset with unclaimed high bits as a trailing
// reserved channel.
func extractBmpChannels(masks []uint32, totalBits uint) []Channel {
	names := "RGBA"
	fault.Check(len(masks) <= 4, "at most four bitfield masks")

	var channels []offsetChannel
	for i, mask := range masks {
		width := uint(bits.OnesCount32(mask))
		fault.Checkf(width <= totalBits, "bitfield mask %#x wider than the remaining %d bits", mask, totalBits)
		totalBits -= width
		if width > 0 {
			channels = append(channels, offsetChannel{
				Channel: Channel{names[i], width},
				offset:  bits.TrailingZeros32(mask),
			})
		}
	}

	sort.Slice(channels, func(a, b int) bool {
		return channels[a].offset < channels[b].offset
	})

	result := make([]Channel, 0, len(channels)+1)
	for _, c := range channels {
		result = append(result, c.Channel)
	}
	if totalBits > 0 {
		result = append(result, Channel{'_', totalBits})
	}
	return result
}

// extractBmpPixels finishes extraction once the header fields are known:
// palette expansion for indexed depths, fixed channel layouts otherwise,
// plus the row-order Misc stage.
func extractBmpPixels(f *Format, palette []byte, colorNumber int, reserved, alpha bool) {
	// Positive heights store rows bottom-up; negative heights are already
	// top-down and only need the sign normalized.
	misc := func() {
		flipY := f.H > 0
		f.H = abs(f.H)
		f.pushFront(NewMisc(f.BufferSize()-f.Offset, false, flipY, nil, &f.PixelFormat))
	}

	switch f.Bits {
	case 1, 4, 8:
		f.Channels = append(f.Channels, Channel{'#', f.Bits})

		colorBytes := 3
		if reserved {
			colorBytes = 4
		}
		fault.Checkf(colorNumber <= 1<<f.Bits, "%d palette entries exceed a %d-bit index", colorNumber, f.Bits)

		var paletteFmt PixelFormat
		paletteFmt.Channels = append(paletteFmt.Channels,
			Channel{'B', 8}, Channel{'G', 8}, Channel{'R', 8})
		if reserved {
			tag := byte('_')
			if alpha {
				tag = 'A'
			}
			paletteFmt.Channels = append(paletteFmt.Channels, Channel{tag, 8})
		}
		paletteFmt.CalculateBits()

		p := NewPalette(f.BufferSize()-f.Offset, &paletteFmt)
		f.pushFront(p)

		fault.Check(len(palette) >= colorBytes*colorNumber, "palette region runs past the buffer")
		for i := 0; i < colorNumber; i++ {
			pixel := make(Pixel, 0, colorBytes)
			for j := 0; j < colorBytes; j++ {
				pixel = append(pixel, uint64(palette[i*colorBytes+j]))
			}
			p.Samples = append(p.Samples, pixel)
		}

		f.Offset += colorBytes * colorNumber

		misc()

	case 16:
		// 16bpp BI_RGB is the implicit 5-5-5 layout with a reserved top bit.
		f.Channels = append(f.Channels,
			Channel{'B', 5}, Channel{'G', 5}, Channel{'R', 5}, Channel{'_', 1})
		f.Packing = PackLSBFirst
		misc()

	case 24:
		f.Channels = append(f.Channels,
			Channel{'B', 8}, Channel{'G', 8}, Channel{'R', 8})
		f.Packing = PackLSBFirst
		misc()

	case 32:
		f.Channels = append(f.Channels,
			Channel{'B', 8}, Channel{'G', 8}, Channel{'R', 8}, Channel{'_', 8})
		f.Packing = PackLSBFirst
		misc()

	default:
		fault.Checkf(false, "unsupported BMP bit depth %d", f.Bits)
	}
}

// extractBmpInfo handles every INFO-shaped header. masks carries in-header
// bitfield masks; nil means they follow the header in the file.
func extractBmpInfo(f *Format, data []byte, h *bmpInfoHeader, numMasks int, masks []uint32, reserved, alpha bool) {
	f.Offset += int(h.size)
	f.Bits = uint(h.bitCount)
	f.W = int(h.width)
	f.H = int(h.height)
	f.Pad = 4

	fault.Check(f.Offset <= len(data), "header runs past the buffer")

	paletteCount := func() int {
		if h.clrUsed > 0 {
			return int(h.clrUsed)
		}
		if h.bitCount < 16 {
			return 1 << h.bitCount
		}
		return 0
	}

	switch h.compression {
	case biRGB:
		extractBmpPixels(f, data[f.Offset:], paletteCount(), reserved, alpha)

	case biRLE4:
		fault.Check(f.Bits == 4, "BI_RLE4 requires 4 bits per pixel")
		extractBmpPixels(f, data[f.Offset:], paletteCount(), reserved, alpha)
		f.pushFront(NewRleBmp(int(h.sizeImage), &f.PixelFormat, 4))

	case biRLE8:
		fault.Check(f.Bits == 8, "BI_RLE8 requires 8 bits per pixel")
		extractBmpPixels(f, data[f.Offset:], paletteCount(), reserved, alpha)
		f.pushFront(NewRleBmp(int(h.sizeImage), &f.PixelFormat, 8))

	case biBitfields:
		if masks == nil {
			fault.Check(f.Offset+4*numMasks <= len(data), "bitfield masks run past the buffer")
			masks = make([]uint32, numMasks)
			for i := range masks {
				masks[i] = binary.LittleEndian.Uint32(data[f.Offset+4*i:])
			}
			f.Offset += 4 * numMasks
		}

		f.Channels = extractBmpChannels(masks, f.Bits)
		f.CalculateBits()
		f.Packing = PackLSBFirst

		flipY := f.H > 0
		f.H = abs(f.H)
		f.pushFront(NewMisc(f.BufferSize()-f.Offset, false, flipY, nil, &f.PixelFormat))

	default:
		fault.Checkf(false, "unsupported BMP compression %d", h.compression)
	}
}

// extractBmp dispatches on the header-size discriminant and builds the
// decode stack.
func extractBmp(f *Format, data []byte) {
	fault.Check(f.Offset+4 <= len(data), "missing BMP info header")
	h := data[f.Offset:]
	size := binary.LittleEndian.Uint32(h)

	readMasks := func(at, n int) []uint32 {
		masks := make([]uint32, n)
		for i := range masks {
			masks[i] = binary.LittleEndian.Uint32(h[at+4*i:])
		}
		return masks
	}

	switch size {
	case bmpCoreHeaderSize:
		fault.Check(f.Offset+bmpCoreHeaderSize <= len(data), "core header runs past the buffer")
		f.Offset += bmpCoreHeaderSize
		f.W = int(binary.LittleEndian.Uint16(h[4:]))
		f.H = int(binary.LittleEndian.Uint16(h[6:]))
		f.Bits = uint(binary.LittleEndian.Uint16(h[10:]))
		f.Pad = 4

		rest := f.BufferSize()
		fault.Check(rest <= len(data), "pixel data runs past the buffer")

		// Trailing palette bytes beyond whole entries are ignored; some
		// writers pad the region.
		colorNumber := (len(data) - rest) / 3
		extractBmpPixels(f, data[f.Offset:], colorNumber, false, false)

	case bmpCoreHeader2Size:
		fault.Check(f.Offset+bmpCoreHeader2Size <= len(data), "core header runs past the buffer")
		info := &bmpInfoHeader{
			size:        size,
			width:       int32(binary.LittleEndian.Uint32(h[4:])),
			height:      int32(binary.LittleEndian.Uint32(h[8:])),
			bitCount:    binary.LittleEndian.Uint16(h[14:]),
			compression: binary.LittleEndian.Uint32(h[16:]),
			sizeImage:   binary.LittleEndian.Uint32(h[20:]),
			clrUsed:     binary.LittleEndian.Uint32(h[32:]),
		}
		extractBmpInfo(f, data, info, 3, readMasks(bmpCoreHeader2Size, 3), false, false)

	case bmpInfoHeaderSize, bmpV2HeaderSize, bmpV3HeaderSize, bmpV4HeaderSize, bmpV5HeaderSize:
		fault.Check(f.Offset+int(size) <= len(data), "info header runs past the buffer")
		info := &bmpInfoHeader{
			size:        size,
			width:       int32(binary.LittleEndian.Uint32(h[4:])),
			height:      int32(binary.LittleEndian.Uint32(h[8:])),
			bitCount:    binary.LittleEndian.Uint16(h[14:]),
			compression: binary.LittleEndian.Uint32(h[16:]),
			sizeImage:   binary.LittleEndian.Uint32(h[20:]),
			clrUsed:     binary.LittleEndian.Uint32(h[32:]),
		}

		switch size {
		case bmpInfoHeaderSize:
			// Bitfield masks, if any, follow the header.
			extractBmpInfo(f, data, info, 3, nil, true, false)
		case bmpV2HeaderSize:
			extractBmpInfo(f, data, info, 3, readMasks(bmpInfoHeaderSize, 3), true, false)
		case bmpV3HeaderSize:
			extractBmpInfo(f, data, info, 4, readMasks(bmpInfoHeaderSize, 4), true, false)
		default: // V4, V5
			extractBmpInfo(f, data, info, 4, readMasks(bmpInfoHeaderSize, 4), true, true)
		}

	default:
		fault.Checkf(false, "unsupported BMP header size %d", size)
	}
}

// makeBmp configures a Format for reading (write == nil) or writing BMP
// data. fileHeader selects the BITMAPFILEHEADER prefix; bmpHeader is false
// for headerless raw data. The write side always emits 32bpp BGRA
// BI_BITFIELDS under a V4 header; sources without alpha are written opaque.
func makeBmp(ref *Reference, fileHeader, bmpHeader bool, f *Format, write *headerWriter) {
	f.W = ref.W
	f.H = ref.H
	f.Offset = 0
	if fileHeader {
		f.Offset = bmpFileHeaderSize
	}
	f.Pad = 4

	if write == nil {
		if bmpHeader {
			extractBmp(f, ref.data())
		}
		return
	}

	if bmpHeader {
		f.Offset += bmpV4HeaderSize
		f.Channels = append(f.Channels,
			Channel{'B', 8}, Channel{'G', 8}, Channel{'R', 8}, Channel{'A', 8})
		f.CalculateBits()
		f.Replacements = append(f.Replacements, Replacement{Index: 3, Const: 255, HasConst: true})
		f.Packing = PackLSBFirst

		f.pushFront(NewMisc(0, false, true, nil, &f.PixelFormat))
	}

	*write = func(fmt *Format, dst *Reference) {
		out := dst.data()
		offset := 0

		if fileHeader {
			fault.Check(len(out) >= bmpFileHeaderSize, "destination too small for the file header")
			out[0], out[1] = 'B', 'M'
			binary.LittleEndian.PutUint32(out[2:], uint32(dst.Bytes))
			binary.LittleEndian.PutUint16(out[6:], 0)
			binary.LittleEndian.PutUint16(out[8:], 0)
			binary.LittleEndian.PutUint32(out[10:], bmpFileHeaderSize+bmpV4HeaderSize)
			offset = bmpFileHeaderSize
		}

		if bmpHeader {
			fault.Check(len(out) >= offset+bmpV4HeaderSize, "destination too small for the info header")
			v4 := out[offset : offset+bmpV4HeaderSize]
			for i := range v4 {
				v4[i] = 0
			}
			binary.LittleEndian.PutUint32(v4[0:], bmpV4HeaderSize)
			binary.LittleEndian.PutUint32(v4[4:], uint32(fmt.W))
			binary.LittleEndian.PutUint32(v4[8:], uint32(fmt.H))
			binary.LittleEndian.PutUint16(v4[12:], 1)  // planes
			binary.LittleEndian.PutUint16(v4[14:], 32) // bit count
			binary.LittleEndian.PutUint32(v4[16:], biBitfields)
			binary.LittleEndian.PutUint32(v4[40:], 0x00FF0000) // red mask
			binary.LittleEndian.PutUint32(v4[44:], 0x0000FF00) // green mask
			binary.LittleEndian.PutUint32(v4[48:], 0x000000FF) // blue mask
			binary.LittleEndian.PutUint32(v4[52:], 0xFF000000) // alpha mask
			binary.LittleEndian.PutUint32(v4[56:], 0x73524742) // sRGB
		}
	}
}
