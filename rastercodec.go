// Package rastercodec decodes and re-encodes raster images across
// heterogeneous on-disk representations (BMP, PNG, baseline and progressive
// JPEG) through a common in-memory pixel model, converting between arbitrary
// channel layouts with optional area-weighted resampling.
//
// Images travel as a Reference: a byte buffer plus a format string that
// names the channel layout or container, for example "R8G8B8A8" for raw
// 32-bit pixels or ".PNG" for a PNG file. A Format parsed from that string
// carries a stack of Compression stages between the raw bytes and the
// logical pixels; Translate peels the source's stages, converts or rescales
// the bare pixels, and pushes the destination's stages.
//
// Converting a BMP file into a PNG file:
//
//	src := &rastercodec.Reference{Format: ".BMP", Link: data, Bytes: len(data)}
//	dst := new(rastercodec.Reference)
//	dst.Fill()
//	dst.Format = ".PNG"
//	if err := rastercodec.Translate(src, dst, false); err != nil {
//	    log.Fatal(err)
//	}
//
// The write side emits truecolor-alpha Adam7 PNG and 32-bit BGRA
// BI_BITFIELDS BMP; encoding to JPEG is not implemented. ".ANYF" sniffs the
// container by its magic bytes on read and defaults to PNG on write.
package rastercodec

import "github.com/mrjoshuak/go-rastercodec/internal/fault"

// Translate converts the source image into the destination image, decoding
// and re-encoding through the formats named by the References' format
// strings. When scale is true and the destination requests different
// dimensions, pixels are resampled with area weighting in normalized space;
// otherwise the destination inherits the source dimensions.
//
// Recoverable refusals and fatal invariant violations (malformed
// containers, CRC mismatches, palette overruns) are returned as errors
// carrying the source location of the failed check.
func Translate(source *Reference, destination *Reference, scale bool) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if fe, ok := r.(*fault.Error); ok {
			err = fe
			return
		}
		panic(r)
	}()

	translate(source, destination, scale)
	return nil
}
