// Package export renders processed cards as text, JSON, YAML, CSV or vCard.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/cardex/internal/extract"
	"github.com/MeKo-Tech/cardex/internal/pipeline"
)

// Format is an output format.
type Format string

const (
	FormatText  Format = "text"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatCSV   Format = "csv"
	FormatVCard Format = "vcard"
)

// Formats lists the supported formats.
var Formats = []Format{FormatText, FormatJSON, FormatYAML, FormatCSV, FormatVCard}

// ErrUnknownFormat is returned for unsupported format names.
var ErrUnknownFormat = errors.New("unknown output format")

// ParseFormat resolves a format name. "yml" and "vcf" are accepted aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "csv":
		return FormatCSV, nil
	case "vcard", "vcf":
		return FormatVCard, nil
	}
	return "", fmt.Errorf("%w: %q (supported: text, json, yaml, csv, vcard)", ErrUnknownFormat, s)
}

// Extension returns the file extension for f, without the dot.
func (f Format) Extension() string {
	switch f {
	case FormatVCard:
		return "vcf"
	case FormatText:
		return "txt"
	}
	return string(f)
}

// Options tune the rendering.
type Options struct {
	// Details includes the full pipeline result (passes, timings, fusion
	// stats) in JSON and YAML output.
	Details bool
}

// Write renders results to w in format f.
func Write(w io.Writer, f Format, results []*pipeline.Result, opts Options) error {
	switch f {
	case FormatText:
		return WriteText(w, results)
	case FormatJSON:
		return WriteJSON(w, results, opts)
	case FormatYAML:
		return WriteYAML(w, results, opts)
	case FormatCSV:
		return WriteCSV(w, results)
	case FormatVCard:
		return WriteVCard(w, results)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

func documents(results []*pipeline.Result, details bool) []Document {
	docs := make([]Document, 0, len(results))
	for _, r := range results {
		if r != nil {
			docs = append(docs, NewDocument(r, details))
		}
	}
	return docs
}

// WriteJSON writes one indented object for a single result and an array
// otherwise.
func WriteJSON(w io.Writer, results []*pipeline.Result, opts Options) error {
	docs := documents(results, opts.Details)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if len(docs) == 1 {
		return enc.Encode(docs[0])
	}
	return enc.Encode(docs)
}

// WriteYAML writes one YAML document per result.
func WriteYAML(w io.Writer, results []*pipeline.Result, opts Options) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, d := range documents(results, opts.Details) {
		if err := enc.Encode(d); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
	}
	return enc.Close()
}

// csvHeader is the CSV column order: card metadata then every record field.
func csvHeader() []string {
	h := []string{"source", "status", "reason", "confidence"}
	return append(h, extract.FieldNames...)
}

// WriteCSV writes one row per result with a header.
func WriteCSV(w io.Writer, results []*pipeline.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader()); err != nil {
		return err
	}
	for _, r := range results {
		if r == nil {
			continue
		}
		row := []string{r.Source, string(r.Status), r.Reason, strconv.FormatFloat(r.OverallConfidence, 'f', 3, 64)}
		for _, n := range extract.FieldNames {
			row = append(row, r.Record.Value(n))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteText writes a human-readable summary per result.
func WriteText(w io.Writer, results []*pipeline.Result) error {
	for i, r := range results {
		if r == nil {
			continue
		}
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, Text(r)); err != nil {
			return err
		}
	}
	return nil
}

// Text renders one result for the terminal.
func Text(r *pipeline.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", r.String())
	width := 0
	for _, n := range extract.FieldNames {
		if r.Record.Get(n) != nil && len(n)+1 > width {
			width = len(n) + 1
		}
	}
	for _, n := range extract.FieldNames {
		f := r.Record.Get(n)
		if f == nil {
			continue
		}
		value := strings.ReplaceAll(f.Value, "\n", " / ")
		fmt.Fprintf(&b, "  %-*s  %s  [%s %.2f]\n", width, n+":", value, f.Source, f.Confidence)
	}
	if r.Status != pipeline.StatusFailed {
		fmt.Fprintf(&b, "  confidence: %.2f (ocr %.2f)\n", r.OverallConfidence, r.OCRConfidence)
	}
	return b.String()
}
