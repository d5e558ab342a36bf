package rastercodec

import (
	"math"

	"github.com/mrjoshuak/go-rastercodec/internal/fault"
)

// copyTranslate copies the compressed payload verbatim, honoring any header
// offset difference between the formats.
func copyTranslate(srcFmt *Format, source *Reference, dstFmt *Format, destination *Reference) {
	fault.Check(source.Bytes >= srcFmt.Offset, "source is shorter than its header offset")
	imageBytes := source.Bytes - srcFmt.Offset
	byteCount := imageBytes + dstFmt.Offset

	dstFmt.W = srcFmt.W
	dstFmt.H = srcFmt.H
	sync(dstFmt, destination)
	fault.Check(destination.Bytes <= byteCount, "destination claims more data than the source holds")
	fault.Check(destination.Bytes >= dstFmt.Offset, "destination is shorter than its header offset")

	if dstFmt.Offset != srcFmt.Offset {
		copy(destination.Link[dstFmt.Offset:destination.Bytes], source.Link[srcFmt.Offset:source.Bytes])
	} else {
		copy(destination.Link[:destination.Bytes], source.Link[:source.Bytes])
	}
}

// directTranslate converts per pixel between equal-sized rasters, flipping
// when the signed dimension conventions differ and flip is allowed.
func directTranslate(srcFmt *Format, source *Reference, dstFmt *Format, destination *Reference, flip bool) {
	fault.Check(len(srcFmt.Compression) == 0 && len(dstFmt.Compression) == 0, "direct translation requires bare pixel formats")

	if srcFmt.Equal(dstFmt) {
		copyTranslate(srcFmt, source, dstFmt, destination)
		return
	}

	width, height := abs(srcFmt.W), abs(srcFmt.H)

	srcPixels := make([]Pixel, width*height)
	reader := NewPixelReader(srcFmt, source)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			fault.Check(reader.GetPixelLn(&srcPixels[y*width+x]), "pixel data runs past the buffer")
		}
	}

	flipX := (srcFmt.W < 0) != (dstFmt.W < 0)
	flipY := (srcFmt.H < 0) != (dstFmt.H < 0)

	if width != abs(dstFmt.W) || height != abs(dstFmt.H) || (!flip && (flipX || flipY)) {
		dstFmt.W = srcFmt.W
		dstFmt.H = srcFmt.H
		flipX, flipY = false, false
	}
	sync(dstFmt, destination)

	writer := NewPixelWriter(dstFmt, destination)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			srcX, srcY := x, y
			if flipX {
				srcX = width - 1 - x
			}
			if flipY {
				srcY = height - 1 - y
			}

			dstPixel := ConvertPixel(srcPixels[srcY*width+srcX], &srcFmt.PixelFormat, &dstFmt.PixelFormat)
			fault.Check(writer.PutPixelLn(dstPixel), "pixel data overflows the buffer")
		}
	}
}

// scaleTranslate resamples the source into the destination dimensions with
// area weighting in normalized space, premultiplying by the destination's
// alpha channel when one is configured.
func scaleTranslate(srcFmt *Format, source *Reference, dstFmt *Format, destination *Reference) {
	fault.Check(len(srcFmt.Compression) == 0 && len(dstFmt.Compression) == 0, "scaling requires bare pixel formats")

	// Zero destination dimensions inherit the source's.
	if dstFmt.W == 0 {
		dstFmt.W = srcFmt.W
	}
	if dstFmt.H == 0 {
		dstFmt.H = srcFmt.H
	}

	srcWidth, srcHeight := abs(srcFmt.W), abs(srcFmt.H)
	dstWidth, dstHeight := abs(dstFmt.W), abs(dstFmt.H)

	if srcWidth == dstWidth && srcHeight == dstHeight {
		directTranslate(srcFmt, source, dstFmt, destination, true)
		return
	}

	scaleX := float64(srcWidth) / float64(dstWidth)
	scaleY := float64(srcHeight) / float64(dstHeight)

	flipX := (srcFmt.W < 0) != (dstFmt.W < 0)
	flipY := (srcFmt.H < 0) != (dstFmt.H < 0)

	srcColors := make([]Color, srcWidth*srcHeight)
	reader := NewPixelReader(srcFmt, source)
	var pixel Pixel
	for y := 0; y < srcHeight; y++ {
		for x := 0; x < srcWidth; x++ {
			fault.Check(reader.GetPixelLn(&pixel), "pixel data runs past the buffer")
			srcColors[y*srcWidth+x] = PixelToColor(pixel, &srcFmt.PixelFormat, &srcFmt.PixelFormat)
		}
	}

	sync(dstFmt, destination)

	alphaID := -1
	if dstFmt.Alpha != '_' {
		if id, ok := dstFmt.ID(dstFmt.Alpha); ok {
			alphaID = id
		}
	}

	writer := NewPixelWriter(dstFmt, destination)
	channels := len(dstFmt.Channels)

	for dy := 0; dy < dstHeight; dy++ {
		for dx := 0; dx < dstWidth; dx++ {
			// The source region covered by this destination pixel.
			var srcX0, srcX1, srcY0, srcY1 float64
			if flipX {
				srcX0 = float64(srcWidth) - float64(dx+1)*scaleX
				srcX1 = float64(srcWidth) - float64(dx)*scaleX
			} else {
				srcX0 = float64(dx) * scaleX
				srcX1 = float64(dx+1) * scaleX
			}
			if flipY {
				srcY0 = float64(srcHeight) - float64(dy+1)*scaleY
				srcY1 = float64(srcHeight) - float64(dy)*scaleY
			} else {
				srcY0 = float64(dy) * scaleY
				srcY1 = float64(dy+1) * scaleY
			}

			sx0 := maxInt(0, int(math.Floor(srcX0)))
			sy0 := maxInt(0, int(math.Floor(srcY0)))
			sx1 := minInt(srcWidth, int(math.Ceil(srcX1)))
			sy1 := minInt(srcHeight, int(math.Ceil(srcY1)))

			accum := make(Color, channels)
			areaSum := make(Color, channels)

			for sy := sy0; sy < sy1; sy++ {
				for sx := sx0; sx < sx1; sx++ {
					overlapX := math.Min(srcX1, float64(sx+1)) - math.Max(srcX0, float64(sx))
					overlapY := math.Min(srcY1, float64(sy+1)) - math.Max(srcY0, float64(sy))
					area := overlapX * overlapY
					if area <= 0 {
						continue
					}

					dstColor := ConvertColor(srcColors[sy*srcWidth+sx], &srcFmt.PixelFormat, &dstFmt.PixelFormat)
					for i := range dstColor {
						alpha := 1.0
						if alphaID >= 0 && alphaID != i {
							alpha = dstColor[alphaID]
						}
						alpha *= area
						accum[i] += dstColor[i] * alpha
						areaSum[i] += alpha
					}
				}
			}

			dstColor := make(Color, 0, channels)
			for i := range accum {
				v := 0.0
				if areaSum[i] > 0 {
					v = accum[i] / areaSum[i]
				}
				// Guard the normalized range against rounding drift.
				dstColor = append(dstColor, math.Min(math.Max(v, 0), 1))
			}

			fault.Check(writer.PutPixelLn(ColorToPixel(dstColor, &dstFmt.PixelFormat, &dstFmt.PixelFormat)), "pixel data overflows the buffer")
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// translate runs the full pipeline: parse both formats, peel the source's
// stages front to back, convert or scale the bare pixels, push the
// destination's stages back to front, then stamp the container header.
func translate(source *Reference, destination *Reference, scale bool) {
	fault.Check(source.Format != "" && source.Link != nil, "source needs a format and data")
	fault.Check(len(source.Link) >= source.Bytes, "source buffer is shorter than its byte count")
	fault.Check(destination.Reset != nil, "destination needs a reset hook")

	if destination.Format == "" {
		destination.Format = source.Format
	}

	var write headerWriter
	srcFmt := parseFormat(source, nil, nil)
	dstFmt := parseFormat(destination, &write, &srcFmt)

	fault.Check(source.Bytes >= srcFmt.BufferSize(), "source is shorter than its format requires")

	if srcFmt.Equal(&dstFmt) {
		// Equal formats: copy the compressed payload verbatim, honoring
		// any header offset difference. The write side's stage sizes are
		// still unset, so size from the source instead of the format.
		fault.Check(source.Bytes >= srcFmt.Offset, "source is shorter than its header offset")
		imageBytes := source.Bytes - srcFmt.Offset

		dstFmt.W = srcFmt.W
		dstFmt.H = srcFmt.H
		syncSize(imageBytes+dstFmt.Offset, &dstFmt, destination)

		if dstFmt.Offset != srcFmt.Offset {
			copy(destination.Link[dstFmt.Offset:destination.Bytes], source.Link[srcFmt.Offset:source.Bytes])
		} else {
			copy(destination.Link[:destination.Bytes], source.Link[:source.Bytes])
		}

		if write != nil {
			write(&dstFmt, destination)
		}
		return
	}

	var intermediateFmt, resultFmt Format
	var intermediate, result Reference

	next := func() {
		intermediateFmt = resultFmt
		intermediate.Take(&result)
		result.Fill()
	}

	next()
	resultFmt = srcFmt
	resultFmt.Offset = 0
	copyTranslate(&srcFmt, source, &resultFmt, &result)

	for _, stage := range srcFmt.Compression {
		next()
		resultFmt = intermediateFmt
		stage.Decompress(&resultFmt, &intermediate, &result)
	}

	next()
	resultFmt = dstFmt
	resultFmt.Offset = 0
	if inner := len(resultFmt.Compression); inner > 0 {
		resultFmt.CopyFrom(resultFmt.Compression[inner-1].Layout())
	}
	resultFmt.Compression = nil

	if scale {
		scaleTranslate(&intermediateFmt, &intermediate, &resultFmt, &result)
	} else {
		directTranslate(&intermediateFmt, &intermediate, &resultFmt, &result, false)
	}

	for i := len(dstFmt.Compression) - 1; i >= 0; i-- {
		next()
		stage := dstFmt.Compression[i]
		resultFmt = intermediateFmt
		resultFmt.pushFront(stage)
		stage.Compress(&resultFmt, &intermediate, &result)
	}

	copyTranslate(&resultFmt, &result, &dstFmt, destination)
	if write != nil {
		write(&dstFmt, destination)
	}

	intermediate.Release()
	result.Release()
}
