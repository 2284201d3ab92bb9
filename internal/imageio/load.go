// Package imageio loads card images from disk, including scans delivered as
// PDF, and prepares them for OCR.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/MeKo-Tech/cardex/internal/ocr"
)

// SupportedExtensions lists the accepted card file extensions.
var SupportedExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp", ".pdf"}

// ErrUnsupportedFormat is wrapped when a file's extension or content is not
// an accepted image format.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// IsSupported reports whether path has an accepted extension.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Metadata describes a loaded image.
type Metadata struct {
	Path      string
	Format    string
	SizeBytes int64
	Width     int
	Height    int
	FromPDF   bool
}

// Load reads a card image. PDF files yield their first embedded image.
func Load(path string) (ocr.Image, Metadata, error) {
	if path == "" {
		return ocr.Image{}, Metadata{}, &LoadError{Operation: "read", Err: errors.New("empty path")}
	}
	if !IsSupported(path) {
		return ocr.Image{}, Metadata{}, &LoadError{
			Operation: "read", Path: path,
			Err: fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path)),
		}
	}

	fromPDF := strings.EqualFold(filepath.Ext(path), ".pdf")
	var (
		data []byte
		err  error
	)
	if fromPDF {
		data, err = firstPDFImage(path)
		if err != nil {
			return ocr.Image{}, Metadata{}, &LoadError{Operation: "pdf", Path: path, Err: err}
		}
	} else {
		data, err = os.ReadFile(path) //nolint:gosec // G304: reading a user-provided card path is expected
		if err != nil {
			return ocr.Image{}, Metadata{}, &LoadError{Operation: "read", Path: path, Err: err}
		}
	}

	img, meta, err := FromBytes(filepath.Base(path), data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
		}
		return ocr.Image{}, Metadata{}, err
	}
	meta.Path = path
	meta.FromPDF = fromPDF
	return img, meta, nil
}

// FromBytes wraps encoded image bytes, detecting the format from content.
func FromBytes(name string, data []byte) (ocr.Image, Metadata, error) {
	if len(data) == 0 {
		return ocr.Image{}, Metadata{}, &LoadError{Operation: "detect", Err: errors.New("empty image data")}
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ocr.Image{}, Metadata{}, &LoadError{Operation: "detect", Err: fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ocr.Image{}, Metadata{}, &LoadError{Operation: "detect", Err: fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)}
	}
	return ocr.Image{Data: data, Format: format, Name: name},
		Metadata{Format: format, SizeBytes: int64(len(data)), Width: cfg.Width, Height: cfg.Height},
		nil
}

// firstPDFImage extracts the images of page 1 with pdfcpu and returns the
// first one's encoded bytes.
func firstPDFImage(path string) ([]byte, error) {
	tempDir, err := os.MkdirTemp("", "cardex-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	if err := api.ExtractImagesFile(path, tempDir, []string{"1"}, nil); err != nil {
		return nil, fmt.Errorf("extract images: %w", err)
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(tempDir, name)) //nolint:gosec // G304: file created by pdfcpu in our temp dir
		if err != nil {
			continue
		}
		if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			return data, nil
		}
	}
	return nil, errors.New("no decodable image on page 1")
}
