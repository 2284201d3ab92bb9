// Package tesseract provides the bundled OCR engine, one Tesseract client per
// language.
//
// The default build links libtesseract through gosseract (cgo). Build with
// the tag `notesseract` to compile without it; New then returns
// ErrUnavailable and every pass using it fails.
//
// Example:
//
//	go build -tags=notesseract ./...
package tesseract
