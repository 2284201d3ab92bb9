// Package confidence derives the advisory overall confidence of a result.
package confidence

import (
	"errors"
	"math"
	"unicode/utf8"

	"github.com/MeKo-Tech/cardex/internal/ocr"
)

// Weights are the relative weights of the OCR and structuring confidences.
type Weights struct {
	OCR         float64 `json:"ocr_weight" yaml:"ocr_weight"`
	Structuring float64 `json:"structuring_weight" yaml:"structuring_weight"`
}

// DefaultWeights weighs both stages equally.
func DefaultWeights() Weights { return Weights{OCR: 0.5, Structuring: 0.5} }

// Validate requires non-negative weights with a positive sum.
func (w Weights) Validate() error {
	if math.IsNaN(w.OCR) || math.IsNaN(w.Structuring) || w.OCR < 0 || w.Structuring < 0 {
		return errors.New("aggregator weights must be non-negative")
	}
	if w.OCR+w.Structuring <= 0 {
		return errors.New("aggregator weights must not both be zero")
	}
	return nil
}

// Aggregate combines the two confidences as a weighted geometric mean, so a
// weak stage pulls the result down more than an arithmetic mean would. Inputs
// are clamped to [0,1]; a zero input with positive weight yields 0.
func Aggregate(ocrConf, structuring float64, w Weights) float64 {
	if w.Validate() != nil {
		w = DefaultWeights()
	}
	vals := [2]float64{clamp(ocrConf), clamp(structuring)}
	ws := [2]float64{w.OCR, w.Structuring}

	var sumW, sumLog float64
	for i := range vals {
		if ws[i] == 0 {
			continue
		}
		if vals[i] == 0 {
			return 0
		}
		sumW += ws[i]
		sumLog += ws[i] * math.Log(vals[i])
	}
	return clamp(math.Exp(sumLog / sumW))
}

// OCRConfidence is the mean token confidence weighted by text length in
// runes. It is 0 for no tokens.
func OCRConfidence(tokens []ocr.Token) float64 {
	var sum, weight float64
	for _, t := range tokens {
		n := float64(utf8.RuneCountInString(t.Text))
		sum += n * t.Confidence
		weight += n
	}
	if weight == 0 {
		return 0
	}
	return clamp(sum / weight)
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
