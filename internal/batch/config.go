package batch

import (
	"fmt"
	"io"
	"time"

	"github.com/MeKo-Tech/cardex/internal/config"
	"github.com/MeKo-Tech/cardex/internal/export"
)

// Config holds all configuration for batch processing.
type Config struct {
	// Parallel processing settings
	Workers         int
	ContinueOnError bool

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Output settings
	Format      export.Format
	OutputFile  string
	Details     bool
	MetricsFile string

	// Progress settings
	ShowProgress     bool
	Quiet            bool
	ShowStats        bool
	ProgressInterval time.Duration
	ProgressOutput   io.Writer // defaults to os.Stderr
}

// DefaultConfig returns the batch defaults.
func DefaultConfig() *Config {
	cfg := config.DefaultConfig()
	return FromConfig(&cfg)
}

// FromConfig derives batch settings from the application configuration.
func FromConfig(cfg *config.Config) *Config {
	format, err := export.ParseFormat(cfg.Output.Format)
	if err != nil {
		format = export.FormatText
	}
	return &Config{
		Workers:          cfg.Batch.Workers,
		ContinueOnError:  cfg.Batch.ContinueOnError,
		Recursive:        cfg.Batch.Recursive,
		IncludePatterns:  cfg.Batch.Include,
		ExcludePatterns:  cfg.Batch.Exclude,
		Format:           format,
		OutputFile:       cfg.Output.File,
		Details:          cfg.Output.Details,
		MetricsFile:      cfg.Output.MetricsFile,
		ShowProgress:     true,
		ShowStats:        true,
		ProgressInterval: 100 * time.Millisecond,
	}
}

// Validate checks the batch settings.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("invalid workers: %d (must be positive)", c.Workers)
	}
	if _, err := export.ParseFormat(string(c.Format)); err != nil {
		return err
	}
	return nil
}
