//go:build !notesseract

package tesseract

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/MeKo-Tech/cardex/internal/ocr"
)

func renderText(t *testing.T, text string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8*len(text)+20, 30))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, 20),
	}
	d.DrawString(text)
	big := imaging.Resize(img, img.Bounds().Dx()*4, 0, imaging.NearestNeighbor)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, big))
	return buf.Bytes()
}

func TestEngine_Recognize(t *testing.T) {
	if !Available("en") {
		t.Skip("eng traineddata not installed")
	}
	e, err := New("en")
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	tokens, err := e.Recognize(context.Background(), ocr.Image{Data: renderText(t, "HELLO WORLD"), Format: "png"})
	require.NoError(t, err)
	for _, tk := range tokens {
		assert.True(t, tk.Box.Valid(), "token %q has a degenerate box", tk.Text)
		assert.GreaterOrEqual(t, tk.Confidence, 0.0)
		assert.LessOrEqual(t, tk.Confidence, 1.0)
	}
}

func TestEngine_CanceledContext(t *testing.T) {
	if !Available("en") {
		t.Skip("eng traineddata not installed")
	}
	e, err := New("en")
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Recognize(ctx, ocr.Image{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestEngine_ClosedEngineFails(t *testing.T) {
	if !Available("en") {
		t.Skip("eng traineddata not installed")
	}
	e, err := New("en")
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.Recognize(context.Background(), ocr.Image{})
	require.Error(t, err)
}
