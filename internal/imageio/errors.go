package imageio

import "fmt"

// LoadError reports a failure while loading or preparing a card image.
type LoadError struct {
	Operation string // "read", "detect", "pdf", "decode", "encode"
	Path      string
	Err       error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("image %s failed: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("image %s failed for %s: %v", e.Operation, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
