package ocr

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Point represents a 2D coordinate in image space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Quad is a four-point bounding polygon as reported by an OCR engine,
// clockwise from the top-left corner. Axis-aligned boxes are expressed as
// quads via QuadFromRect.
type Quad [4]Point

// QuadFromRect builds an axis-aligned quad from min/max coordinates.
func QuadFromRect(x1, y1, x2, y2 float64) Quad {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	return Quad{{x1, y1}, {x2, y1}, {x2, y2}, {x1, y2}}
}

// Bounds returns the axis-aligned extent of the quad.
func (q Quad) Bounds() (minX, minY, maxX, maxY float64) {
	minX, minY = q[0].X, q[0].Y
	maxX, maxY = q[0].X, q[0].Y
	for _, p := range q[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return minX, minY, maxX, maxY
}

// Valid reports whether all points are finite and the quad encloses a
// positive area.
func (q Quad) Valid() bool {
	for _, p := range q {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return false
		}
	}
	minX, minY, maxX, maxY := q.Bounds()
	return maxX > minX && maxY > minY
}

// Token is one OCR detection. Tokens are values: once a pass produced them
// they are only copied, never modified.
type Token struct {
	Text       string  `json:"text"`
	Box        Quad    `json:"box"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

// Validate checks the token invariants: non-empty text, confidence in [0,1]
// and a non-degenerate box.
func (t Token) Validate() error {
	if t.Text == "" {
		return errors.New("empty text")
	}
	if math.IsNaN(t.Confidence) || t.Confidence < 0 || t.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", t.Confidence)
	}
	if !t.Box.Valid() {
		return errors.New("degenerate bounding box")
	}
	return nil
}

// Image is the encoded card image handed to every pass. Decoding is left to
// the engines.
type Image struct {
	Data   []byte
	Format string // "png", "jpeg", ...
	Name   string // optional, for logging
}

// Engine is an OCR capability bound to one language.
type Engine interface {
	Recognize(ctx context.Context, img Image) ([]Token, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, img Image) ([]Token, error)

// Recognize calls f.
func (f EngineFunc) Recognize(ctx context.Context, img Image) ([]Token, error) { return f(ctx, img) }

// LanguageProfile binds a language code to the engine that reads it.
type LanguageProfile struct {
	Code   string
	Engine Engine
}
