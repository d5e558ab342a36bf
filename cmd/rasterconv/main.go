// Command rasterconv converts raster images between BMP, PNG and JPEG from
// the command line.
//
// Usage:
//
//	rasterconv [options] <input>
//
// The input container is sniffed by its magic bytes unless -sf overrides
// it. The output format defaults to the -o extension. Containers the codec
// core does not parse (GIF, TIFF, WebP) fall back to image.Decode and enter
// the pipeline as raw RGBA.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"strings"

	"github.com/mrjoshuak/go-rastercodec"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "rasterconv: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("rasterconv", flag.ContinueOnError)
	output := fs.String("o", "", "output file (default: input with a .png extension)")
	dstFormat := fs.String("f", "", `destination format string (default: from the -o extension)`)
	srcFormat := fs.String("sf", ".ANYF", "source format string")
	width := fs.Int("w", 0, "target width (enables area-weighted scaling)")
	height := fs.Int("h", 0, "target height (enables area-weighted scaling)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("expected one input file")
	}
	input := fs.Arg(0)

	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	if *output == "" {
		ext := filepath.Ext(input)
		*output = strings.TrimSuffix(input, ext) + ".png"
	}
	if *dstFormat == "" {
		*dstFormat = formatForExtension(filepath.Ext(*output))
	}

	dst := new(rastercodec.Reference)
	dst.Fill()
	dst.Format = *dstFormat
	dst.W = *width
	dst.H = *height
	scale := *width != 0 || *height != 0

	src := &rastercodec.Reference{
		Format: *srcFormat,
		Link:   data,
		Bytes:  len(data),
	}

	if err := rastercodec.Translate(src, dst, scale); err != nil {
		// Containers outside the core: decode through image.Decode and
		// re-enter the pipeline as raw RGBA.
		raw, rawErr := decodeFallback(data)
		if rawErr != nil {
			return fmt.Errorf("translating %s: %w", input, err)
		}
		if err := rastercodec.Translate(raw, dst, scale); err != nil {
			return fmt.Errorf("translating %s: %w", input, err)
		}
	}

	if err := os.WriteFile(*output, dst.Link[:dst.Bytes], 0o644); err != nil {
		return err
	}

	fmt.Printf("%s: %dx%d -> %s (%d bytes)\n", input, dst.W, dst.H, *output, dst.Bytes)
	return nil
}

// formatForExtension maps an output file extension to a format string.
func formatForExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".bmp":
		return ".BMP"
	case ".dib":
		return ".DIB"
	case ".png":
		return ".PNG"
	case ".jpg", ".jpeg":
		return ".JPG"
	default:
		return ".PNG"
	}
}

// decodeFallback decodes through the registered image formats and hands the
// pixels back as a raw RGBA reference.
func decodeFallback(data []byte) (*rastercodec.Reference, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	rgba := image.NewNRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	return &rastercodec.Reference{
		Format: "R8G8B8A8*PAD0",
		Link:   rgba.Pix,
		Bytes:  len(rgba.Pix),
		W:      bounds.Dx(),
		H:      bounds.Dy(),
	}, nil
}
