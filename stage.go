package rastercodec

import "github.com/mrjoshuak/go-rastercodec/internal/fault"

// Misc is the odd-jobs stage shared by the BMP and PNG pipelines: it flips
// row or column order between the container's convention and top-down
// raster order, and expands a chroma key into an explicit alpha channel.
type Misc struct {
	stageBase

	// Transparent, when non-nil, is the pixel value treated as fully
	// transparent; matching pixels gain alpha 0, all others alpha max.
	Transparent Pixel

	FlipX, FlipY bool
}

// NewMisc creates a Misc stage whose decompressed side has layout pf.
func NewMisc(size int, flipX, flipY bool, transparent Pixel, pf *PixelFormat) *Misc {
	return &Misc{
		stageBase:   makeStageBase(size, pf),
		Transparent: transparent.Clone(),
		FlipX:       flipX,
		FlipY:       flipY,
	}
}

// put writes the image back out, reversed along the stage's flip axes. The
// mapping is its own inverse, so compression and decompression share it.
func (m *Misc) put(writer *PixelWriter, image [][]Pixel, width, height int) {
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			fx, fy := x, y
			if m.FlipX {
				fx = width - 1 - x
			}
			if m.FlipY {
				fy = height - 1 - y
			}
			fault.Check(writer.PutPixelLn(image[fy][fx]), "pixel data overflows the buffer")
		}
	}
}

func (m *Misc) Compress(f *Format, src *Reference, dst *Reference) {
	fault.Check(f.front() == Compression(m), "stage is not at the front of the queue")

	reader := NewPixelReader(f, src)

	alphaID, alphaOK := f.ID('A')

	f.Offset = 0
	m.layout.CopyFrom(&f.PixelFormat)
	m.size = f.bufferSizePeeling(m)

	if m.Transparent != nil {
		fault.Check(alphaOK, "chroma key requires an alpha channel")
		f.Channels = append(f.Channels[:alphaID:alphaID], f.Channels[alphaID+1:]...)
		f.CalculateBits()
	}

	sync(f, dst)
	writer := NewPixelWriter(f, dst)

	width, height := abs(f.W), abs(f.H)

	image := make([][]Pixel, height)
	for y := 0; y < height; y++ {
		image[y] = make([]Pixel, width)
		for x := 0; x < width; x++ {
			pixel := &image[y][x]
			fault.Check(reader.GetPixelLn(pixel), "pixel data runs past the buffer")

			if m.Transparent != nil {
				*pixel = append((*pixel)[:alphaID:alphaID], (*pixel)[alphaID+1:]...)
			}
		}
	}

	m.put(writer, image, width, height)
}

func (m *Misc) Decompress(f *Format, src *Reference, dst *Reference) {
	fault.Check(f.front() == Compression(m), "stage is not at the front of the queue")

	reader := NewPixelReader(f, src)

	f.Offset = 0
	f.popFront(m)
	f.CopyFrom(&m.layout)
	sync(f, dst)

	writer := NewPixelWriter(f, dst)

	width, height := abs(f.W), abs(f.H)
	alphaID, alphaOK := f.ID('A')

	image := make([][]Pixel, height)
	for y := 0; y < height; y++ {
		image[y] = make([]Pixel, width)
		for x := 0; x < width; x++ {
			pixel := &image[y][x]
			fault.Check(reader.GetPixelLn(pixel), "pixel data runs past the buffer")

			if m.Transparent != nil {
				fault.Check(alphaOK, "chroma key requires an alpha channel")
				alpha := f.Channels[alphaID].Max()
				if pixel.Equal(m.Transparent) {
					alpha = 0
				}
				*pixel = append(*pixel, 0)
				copy((*pixel)[alphaID+1:], (*pixel)[alphaID:])
				(*pixel)[alphaID] = alpha
			}
		}
	}

	m.put(writer, image, width, height)
}

func (m *Misc) Equals(other Compression) bool {
	o, ok := other.(*Misc)
	if !ok {
		return false
	}
	if m.FlipX != o.FlipX || m.FlipY != o.FlipY {
		return false
	}
	if (m.Transparent == nil) != (o.Transparent == nil) {
		return false
	}
	if m.Transparent != nil && !m.Transparent.Equal(o.Transparent) {
		return false
	}
	return m.sameLayout(o)
}

// Palette maps single-channel palette indices to sample pixels. Only the
// decode direction is implemented.
type Palette struct {
	stageBase

	// Samples holds one pixel per palette entry, in the stage's layout.
	Samples []Pixel
}

// NewPalette creates a Palette stage whose samples use layout pf.
func NewPalette(size int, pf *PixelFormat) *Palette {
	return &Palette{stageBase: makeStageBase(size, pf)}
}

func (p *Palette) Compress(f *Format, src *Reference, dst *Reference) {
	fault.Fail("palette compression is not implemented")
}

func (p *Palette) Decompress(f *Format, src *Reference, dst *Reference) {
	fault.Check(f.front() == Compression(p), "stage is not at the front of the queue")

	reader := NewPixelReader(f, src)

	f.Offset = 0
	f.popFront(p)
	f.CopyFrom(&p.layout)
	sync(f, dst)

	writer := NewPixelWriter(f, dst)

	area := abs(f.W) * abs(f.H)

	var pixel Pixel
	for ; area > 0; area-- {
		fault.Check(reader.GetPixelLn(&pixel), "index data runs past the buffer")
		fault.Check(len(pixel) == 1, "palette input must have a single index channel")
		fault.Checkf(pixel[0] < uint64(len(p.Samples)), "palette index %d outside %d-entry palette", pixel[0], len(p.Samples))

		out := ConvertPixel(p.Samples[pixel[0]], &p.layout, &f.PixelFormat)
		fault.Check(writer.PutPixelLn(out), "pixel data overflows the buffer")
	}
}

func (p *Palette) Equals(other Compression) bool {
	o, ok := other.(*Palette)
	if !ok {
		return false
	}
	if len(p.Samples) != len(o.Samples) {
		return false
	}
	for i, s := range p.Samples {
		if !s.Equal(o.Samples[i]) {
			return false
		}
	}
	return p.sameLayout(o)
}
