//go:build notesseract

package tesseract

import (
	"context"

	"github.com/MeKo-Tech/cardex/internal/ocr"
)

// Engine is a placeholder when Tesseract is not linked.
type Engine struct{}

// New always fails in this build.
func New(code string) (*Engine, error) { return nil, ErrUnavailable }

// Factory always fails in this build.
func Factory(code string) (ocr.Engine, error) { return nil, ErrUnavailable }

// Recognize always fails in this build.
func (e *Engine) Recognize(context.Context, ocr.Image) ([]ocr.Token, error) {
	return nil, ErrUnavailable
}

// Close is a no-op.
func (e *Engine) Close() error { return nil }

// Available is always false in this build.
func Available(string) bool { return false }
