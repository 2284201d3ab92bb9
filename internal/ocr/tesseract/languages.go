package tesseract

import (
	"errors"
	"strings"
)

// ErrUnavailable is returned when the binary was built without Tesseract.
var ErrUnavailable = errors.New("tesseract: engine not linked; rebuild without -tags=notesseract")

// languageCodes maps card language codes to Tesseract traineddata names.
var languageCodes = map[string]string{
	"en": "eng",
	"jp": "jpn",
	"ja": "jpn",
	"vi": "vie",
	"de": "deu",
	"fr": "fra",
	"es": "spa",
	"zh": "chi_sim",
	"ko": "kor",
}

// TraineddataName resolves a language code. Codes that are not in the table
// are passed through, so "jpn_vert" or "eng+jpn" work unchanged.
func TraineddataName(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if name, ok := languageCodes[code]; ok {
		return name
	}
	return code
}
