package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/MeKo-Tech/cardex/internal/ocr"
)

// Card dimensions of a rendered test card before scaling.
const (
	CardWidth  = 350
	CardHeight = 200
)

// RenderCard draws lines of black text on a white card and scales it up so
// that real OCR engines can read it.
func RenderCard(lines ...string) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, CardWidth, CardHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil() + 6
	d := &font.Drawer{Dst: img, Src: image.NewUniform(color.Black), Face: face}
	for i, line := range lines {
		d.Dot = fixed.P(12, 24+i*lineHeight)
		d.DrawString(line)
	}
	return imaging.Resize(img, CardWidth*3, 0, imaging.NearestNeighbor)
}

// CardPNG renders a card and encodes it as PNG.
func CardPNG(t *testing.T, lines ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, RenderCard(lines...)))
	return buf.Bytes()
}

// CardImage renders a card as an ocr.Image.
func CardImage(t *testing.T, name string, lines ...string) ocr.Image {
	t.Helper()
	return ocr.Image{Data: CardPNG(t, lines...), Format: "png", Name: name}
}

// WriteCard renders a card into dir/name and returns the path.
func WriteCard(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	return WriteFile(t, dir, name, CardPNG(t, lines...))
}
