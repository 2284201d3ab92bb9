package imageio

import (
	"bytes"
	"image"
	"image/png"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/cardex/internal/ocr"
)

// PreprocessOptions controls image enhancement before OCR.
type PreprocessOptions struct {
	Enabled   bool
	MaxSide   int // longest side after downscaling; 0 keeps the size
	Grayscale bool
	Contrast  float64 // percentage passed to imaging.AdjustContrast
	Sharpen   float64 // sigma passed to imaging.Sharpen; 0 skips
}

// DefaultPreprocessOptions returns the enhancement used for photographed
// cards.
func DefaultPreprocessOptions() PreprocessOptions {
	return PreprocessOptions{
		Enabled:   true,
		MaxSide:   2000,
		Grayscale: true,
		Contrast:  20,
		Sharpen:   1.0,
	}
}

// engineFormats are the encodings every engine is expected to read directly.
var engineFormats = map[string]bool{"png": true, "jpeg": true, "tiff": true, "bmp": true}

// Prepare applies preprocessing when enabled. Otherwise it only re-encodes
// formats that OCR engines commonly cannot read (gif, webp) as PNG. Images
// with an unknown format are left to the engine.
func Prepare(img ocr.Image, opts PreprocessOptions) (ocr.Image, error) {
	if !opts.Enabled && (img.Format == "" || engineFormats[img.Format]) {
		return img, nil
	}

	src, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return ocr.Image{}, &LoadError{Operation: "decode", Path: img.Name, Err: err}
	}

	var out image.Image = src
	if opts.Enabled {
		out = enhance(src, opts)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return ocr.Image{}, &LoadError{Operation: "encode", Path: img.Name, Err: err}
	}
	return ocr.Image{Data: buf.Bytes(), Format: "png", Name: img.Name}, nil
}

func enhance(src image.Image, opts PreprocessOptions) image.Image {
	var out image.Image = src
	if opts.MaxSide > 0 {
		b := src.Bounds()
		if b.Dx() > opts.MaxSide || b.Dy() > opts.MaxSide {
			out = imaging.Fit(out, opts.MaxSide, opts.MaxSide, imaging.Lanczos)
		}
	}
	if opts.Grayscale {
		out = imaging.Grayscale(out)
	}
	if opts.Contrast != 0 {
		out = imaging.AdjustContrast(out, opts.Contrast)
	}
	if opts.Sharpen > 0 {
		out = imaging.Sharpen(out, opts.Sharpen)
	}
	return out
}
