package pipeline

import (
	"github.com/MeKo-Tech/cardex/internal/extract"
	"github.com/MeKo-Tech/cardex/internal/fusion"
)

// Status is the overall outcome of one card.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Failure reasons. Partial results carry the AI outcome reason from
// extract.AIOutcome.Reason.
const (
	ReasonOCRUnavailable      = "ocr_unavailable"
	ReasonNoExtractableFields = "no_extractable_fields"
)

// PassReport summarizes one language pass.
type PassReport struct {
	Language   string `json:"language"`
	Tokens     int    `json:"tokens"`
	Dropped    int    `json:"dropped"`
	Error      string `json:"error,omitempty"`
	TimedOut   bool   `json:"timed_out,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// StructuringReport records which structuring path produced the record.
type StructuringReport struct {
	Path     extract.Path      `json:"path"`
	Outcome  extract.AIOutcome `json:"outcome"`
	Attempts int               `json:"attempts"`
	Error    string            `json:"error,omitempty"`
}

// Timings are per-stage wall-clock durations in milliseconds.
type Timings struct {
	PreprocessMs  int64 `json:"preprocess_ms"`
	OCRMs         int64 `json:"ocr_ms"`
	FusionMs      int64 `json:"fusion_ms"`
	StructuringMs int64 `json:"structuring_ms"`
	TotalMs       int64 `json:"total_ms"`
}

// Result is the outcome of processing one card image. Record is never nil;
// absent fields are nil.
type Result struct {
	RequestID         string                 `json:"request_id"`
	Source            string                 `json:"source,omitempty"`
	Status            Status                 `json:"status"`
	Reason            string                 `json:"reason,omitempty"`
	Record            *extract.ContactRecord `json:"record"`
	OverallConfidence float64                `json:"overall_confidence"`
	OCRConfidence     float64                `json:"ocr_confidence"`
	Text              string                 `json:"extracted_text"`
	DominantLanguage  string                 `json:"dominant_language,omitempty"`
	Passes            []PassReport           `json:"passes"`
	Fusion            fusion.Stats           `json:"fusion"`
	Structuring       *StructuringReport     `json:"structuring,omitempty"`
	Timings           Timings                `json:"timings"`
}

// DisplayName returns the record's display name, falling back to the source
// name and then to the request ID.
func (r *Result) DisplayName() string {
	fallback := r.Source
	if fallback == "" {
		fallback = r.RequestID
	}
	return r.Record.DisplayName(fallback)
}
