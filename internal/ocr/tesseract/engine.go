//go:build !notesseract

package tesseract

import (
	"context"
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/MeKo-Tech/cardex/internal/ocr"
)

// Engine recognizes words in one language. The gosseract client is not safe
// for concurrent use, so calls are serialized.
type Engine struct {
	language string

	mu     sync.Mutex
	client *gosseract.Client
}

// New creates an engine for a card language code such as "en" or "jp".
func New(code string) (*Engine, error) {
	name := TraineddataName(code)
	c := gosseract.NewClient()
	if err := c.SetLanguage(name); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("set language %s: %w", name, err)
	}
	return &Engine{language: name, client: c}, nil
}

// Factory adapts New to ocr.Factory for use with ocr.Registry.
func Factory(code string) (ocr.Engine, error) {
	e, err := New(code)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Recognize returns one token per recognized word. Tesseract reports
// confidence on a 0-100 scale; tokens carry it scaled to [0,1].
func (e *Engine) Recognize(ctx context.Context, img ocr.Image) ([]ocr.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil, fmt.Errorf("tesseract %s: engine closed", e.language)
	}

	if err := e.client.SetImageFromBytes(img.Data); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("recognize %s: %w", e.language, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := make([]ocr.Token, 0, len(boxes))
	for _, b := range boxes {
		tokens = append(tokens, ocr.Token{
			Text: b.Word,
			Box: ocr.QuadFromRect(
				float64(b.Box.Min.X), float64(b.Box.Min.Y),
				float64(b.Box.Max.X), float64(b.Box.Max.Y)),
			Confidence: clamp01(b.Confidence / 100.0),
		})
	}
	return tokens, nil
}

// Close releases the underlying client.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

// Available reports whether traineddata for code is installed.
func Available(code string) bool {
	langs, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return false
	}
	name := TraineddataName(code)
	for _, l := range langs {
		if l == name {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
