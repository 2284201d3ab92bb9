package ocr

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// CleanOptions controls how raw engine text is normalized before fusion.
type CleanOptions struct {
	NormalizeForm string            // "NFC" (default), "NFKC", "" to disable
	ReplaceMap    map[string]string // applied after normalization, nil = typographic defaults
}

// DefaultCleanOptions returns the normalization used by the pass runner.
func DefaultCleanOptions() CleanOptions {
	return CleanOptions{NormalizeForm: "NFC"}
}

// typographic replacements that commonly break e-mail and URL matching.
var defaultReplacements = strings.NewReplacer(
	"\u2018", "'",
	"\u2019", "'",
	"\u201C", "\"",
	"\u201D", "\"",
	"\u2013", "-",
	"\u2014", "-",
	"\uFF20", "@", // fullwidth commercial at, frequent on Japanese cards
	"\u00A0", " ",
	"\u2009", " ",
	"\u3000", " ", // ideographic space
)

// CleanText normalizes OCR text: Unicode normalization, zero-width and
// control character removal, typographic replacements and whitespace
// collapse. A token is single-line, so newlines become spaces.
func CleanText(s string, opts CleanOptions) string {
	if s == "" {
		return s
	}
	switch strings.ToUpper(opts.NormalizeForm) {
	case "NFC":
		s = norm.NFC.String(s)
	case "NFKC":
		s = norm.NFKC.String(s)
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\u200B', '\u200C', '\u200D', '\uFEFF':
			return -1
		case '\n', '\r', '\t':
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	if opts.ReplaceMap != nil {
		s = applyReplaceMap(s, opts.ReplaceMap)
	} else {
		s = defaultReplacements.Replace(s)
	}
	return strings.Join(strings.Fields(s), " ")
}

func applyReplaceMap(s string, m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Replacer compares in argument order: longer keys first.
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return strings.NewReplacer(pairs...).Replace(s)
}
