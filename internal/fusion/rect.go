package fusion

import (
	"math"

	"github.com/MeKo-Tech/cardex/internal/ocr"
)

// Rect is an axis-aligned rectangle in image coordinates.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// RectFromQuad returns the bounding rectangle of an engine quad.
func RectFromQuad(q ocr.Quad) Rect {
	minX, minY, maxX, maxY := q.Bounds()
	return Rect{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

// Width returns the rectangle width.
func (r Rect) Width() float64 { return r.MaxX - r.MinX }

// Height returns the rectangle height.
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// Area returns width times height.
func (r Rect) Area() float64 { return r.Width() * r.Height() }

// CenterY returns the vertical centre.
func (r Rect) CenterY() float64 { return (r.MinY + r.MaxY) / 2 }

// IoU computes intersection over union of two rectangles. Disjoint or
// touching rectangles yield 0.
func IoU(a, b Rect) float64 {
	left := math.Max(a.MinX, b.MinX)
	top := math.Max(a.MinY, b.MinY)
	right := math.Min(a.MaxX, b.MaxX)
	bottom := math.Min(a.MaxY, b.MaxY)

	if left >= right || top >= bottom {
		return 0.0
	}

	inter := (right - left) * (bottom - top)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0.0
	}
	return inter / union
}
