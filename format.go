package rastercodec

import (
	"github.com/mrjoshuak/go-rastercodec/internal/bitio"
	"github.com/mrjoshuak/go-rastercodec/internal/fault"
)

// Channel is one field of a pixel: a tag drawn from 'A'..'Z', '_' or '#',
// and its width in bits. '_' marks reserved bits, ignored when read and
// written as zero. '#' marks a palette index.
type Channel struct {
	Tag  byte
	Bits uint
}

// Max returns the largest value the channel can hold, or 0 for a zero-width
// channel.
func (c Channel) Max() uint64 {
	if c.Bits == 0 {
		return 0
	}
	return 1<<c.Bits - 1
}

// Replacement supplies a value for a destination channel that has no
// same-tag source channel: either another source tag, or a constant.
type Replacement struct {
	// Index of the destination channel the rule applies to.
	Index int

	// Source names a source channel tag, 0 when the rule carries none.
	Source byte

	Const    uint64
	HasConst bool
}

// PixelFormat is an ordered sequence of channels plus the replacement rules
// and alpha tag used during conversion.
type PixelFormat struct {
	Channels []Channel

	// Bits caches the sum of the channel widths.
	Bits uint

	Replacements []Replacement

	// Alpha names the channel treated as alpha during area-weighted
	// scaling. '_' disables alpha weighting.
	Alpha byte
}

// CalculateBits refreshes the cached total bit width.
func (f *PixelFormat) CalculateBits() {
	f.Bits = 0
	for _, c := range f.Channels {
		f.Bits += c.Bits
	}
}

// CopyFrom replaces the channel layout and replacement rules with deep
// copies of other's. The alpha tag is not part of the layout and is kept.
func (f *PixelFormat) CopyFrom(other *PixelFormat) {
	f.Channels = append([]Channel(nil), other.Channels...)
	f.Replacements = append([]Replacement(nil), other.Replacements...)
	f.Bits = other.Bits
}

// ClearLayout drops the channels and replacement rules.
func (f *PixelFormat) ClearLayout() {
	f.Channels = nil
	f.Replacements = nil
	f.Bits = 0
}

// ID returns the index of the first channel with the given tag.
func (f *PixelFormat) ID(tag byte) (int, bool) {
	for i, c := range f.Channels {
		if c.Tag == tag {
			return i, true
		}
	}
	return 0, false
}

// replace looks up the first replacement rule for destination channel index
// that can be satisfied against source: a named source channel if present,
// else a constant. srcOK reports whether srcID is valid.
func (f *PixelFormat) replace(index int, source *PixelFormat) (rule *Replacement, srcID int, srcOK bool) {
	for i := range f.Replacements {
		r := &f.Replacements[i]
		if r.Index != index {
			continue
		}
		if r.Source != 0 {
			if id, ok := source.ID(r.Source); ok {
				return r, id, true
			}
		}
		if r.HasConst {
			return r, 0, false
		}
	}
	return nil, 0, false
}

// SameChannels reports whether both formats have identical channel vectors.
func (f *PixelFormat) SameChannels(other *PixelFormat) bool {
	if len(f.Channels) != len(other.Channels) {
		return false
	}
	for i, c := range f.Channels {
		if c != other.Channels[i] {
			return false
		}
	}
	return true
}

// Compression is one reversible stage of a codec pipeline. Decompress peels
// the stage: it reads the stage's compressed representation from src, writes
// the decompressed representation to dst, pops itself from the front of f's
// stage queue and installs its own pixel layout into f. Compress is the
// inverse and may update the stage's recorded size.
type Compression interface {
	// Layout is the pixel layout of the decompressed side of the stage.
	Layout() *PixelFormat

	// Size is the byte count of the stage's compressed representation.
	Size() int

	Compress(f *Format, src *Reference, dst *Reference)
	Decompress(f *Format, src *Reference, dst *Reference)

	// Equals reports whether other is a stage of the same kind with the
	// same parameters.
	Equals(other Compression) bool
}

// stageBase carries the decompressed-side layout and compressed size common
// to every stage.
type stageBase struct {
	layout PixelFormat
	size   int
}

func makeStageBase(size int, pf *PixelFormat) stageBase {
	var b stageBase
	b.layout.CopyFrom(pf)
	b.size = size
	return b
}

func (b *stageBase) Layout() *PixelFormat { return &b.layout }
func (b *stageBase) Size() int            { return b.size }

// sameLayout is the stage-level part of Equals shared by all stages.
func (b *stageBase) sameLayout(other Compression) bool {
	return b.layout.SameChannels(other.Layout())
}

// Packing selects the bit order of packed pixel data. Sub-byte palette
// indices and PNG scanlines pack MSB-first; BMP multi-byte pixels are
// little-endian integers whose fields ascend from bit zero.
type Packing int

const (
	PackMSBFirst Packing = iota
	PackLSBFirst
)

func (p Packing) order() bitio.Order {
	if p == PackLSBFirst {
		return bitio.LSBFirst
	}
	return bitio.MSBFirst
}

// Format describes image data at one point of a pipeline: the pixel layout,
// the stack of compression stages between the bytes and the pixels (front =
// outermost, closest to the raw bytes), the metadata offset preceding the
// payload, row padding, and signed dimensions. Negative width flips X;
// negative height flips Y (bottom-up rows).
type Format struct {
	PixelFormat

	Compression []Compression

	// Offset is the byte count of container metadata preceding the pixel
	// payload.
	Offset int

	// Pad is the row byte alignment; 0 disables padding.
	Pad int

	W, H int

	Packing Packing
}

// newFormat returns a Format with the default alpha tag.
func newFormat() Format {
	return Format{PixelFormat: PixelFormat{Alpha: 'A'}}
}

// popFront removes the outermost stage, which must be s.
func (f *Format) popFront(s Compression) {
	fault.Check(len(f.Compression) > 0 && f.Compression[0] == s, "stage is not at the front of the queue")
	f.Compression = f.Compression[1:]
}

// pushFront adds a stage as the new outermost layer.
func (f *Format) pushFront(s Compression) {
	f.Compression = append([]Compression{s}, f.Compression...)
}

// front returns the outermost stage or nil.
func (f *Format) front() Compression {
	if len(f.Compression) == 0 {
		return nil
	}
	return f.Compression[0]
}

// LineSize returns the byte count of one padded row holding the pixels plus
// extraBits of row overhead.
func (f *Format) LineSize(extraBits uint) int {
	bytes := (abs(f.W)*int(f.Bits) + int(extraBits) + 7) / 8
	if f.Pad > 0 {
		if rem := bytes % f.Pad; rem > 0 {
			bytes += f.Pad - rem
		}
	}
	return bytes
}

// BufferSize returns the byte count of the data in this format: the offset
// plus the outermost stage's compressed size, or the padded raster size when
// no stages remain.
func (f *Format) BufferSize() int {
	return f.bufferSizePeeling(nil)
}

// bufferSizePeeling is BufferSize with peel treated as already removed from
// the front of the queue, so a stage can size its own compressed output from
// the layer beneath it.
func (f *Format) bufferSizePeeling(peel Compression) int {
	if len(f.Compression) > 0 {
		layer := f.Compression[0]
		if layer == peel {
			layer = nil
			if len(f.Compression) > 1 {
				layer = f.Compression[1]
			}
		}
		if layer != nil {
			return f.Offset + layer.Size()
		}
	}

	if f.Pad <= 0 {
		return f.Offset + (abs(f.W)*abs(f.H)*int(f.Bits)+7)/8
	}
	return f.Offset + abs(f.H)*f.LineSize(0)
}

// Equal reports whether two formats match in padding, signed dimensions,
// packing, channel vector and compression stack.
func (f *Format) Equal(other *Format) bool {
	if f.Pad != other.Pad || f.W != other.W || f.H != other.H || f.Packing != other.Packing {
		return false
	}
	if !f.SameChannels(&other.PixelFormat) {
		return false
	}
	if len(f.Compression) != len(other.Compression) {
		return false
	}
	for i, s := range f.Compression {
		if !s.Equals(other.Compression[i]) {
			return false
		}
	}
	return true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
