package fusion

import (
	"errors"
	"fmt"
	"math"
)

// Config holds fusion parameters.
type Config struct {
	// IoUThreshold: two tokens whose rectangles overlap above it are the same
	// detection and only one survives.
	IoUThreshold float64 `json:"iou_threshold" yaml:"iou_threshold"`
	// LineTolerance is the fraction of a token's height its centre may
	// deviate from a line's mean centre and still join that line.
	LineTolerance float64 `json:"line_tolerance" yaml:"line_tolerance"`
	// LanguagePriority breaks ties between equally confident, equally long
	// tokens. Earlier entries win; unlisted languages come last.
	LanguagePriority []string `json:"language_priority" yaml:"language_priority"`
}

// DefaultConfig returns the fusion defaults.
func DefaultConfig() Config {
	return Config{
		IoUThreshold:     0.5,
		LineTolerance:    0.5,
		LanguagePriority: []string{"en", "vi", "jp"},
	}
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if math.IsNaN(c.IoUThreshold) || c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("iou_threshold must be in [0,1], got %v", c.IoUThreshold)
	}
	if math.IsNaN(c.LineTolerance) || c.LineTolerance <= 0 {
		return errors.New("line_tolerance must be positive")
	}
	seen := make(map[string]bool, len(c.LanguagePriority))
	for _, l := range c.LanguagePriority {
		if l == "" {
			return errors.New("language_priority contains an empty code")
		}
		if seen[l] {
			return fmt.Errorf("language_priority lists %q twice", l)
		}
		seen[l] = true
	}
	return nil
}

func (c Config) priorityIndex() func(string) int {
	idx := make(map[string]int, len(c.LanguagePriority))
	for i, l := range c.LanguagePriority {
		idx[l] = i
	}
	return func(lang string) int {
		if i, ok := idx[lang]; ok {
			return i
		}
		return len(c.LanguagePriority)
	}
}
