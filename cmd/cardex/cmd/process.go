package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/cardex/internal/batch"
	"github.com/MeKo-Tech/cardex/internal/export"
	"github.com/MeKo-Tech/cardex/internal/pipeline"
)

func newProcessCommand(a *app) *cobra.Command {
	var noAI bool

	cmd := &cobra.Command{
		Use:   "process <image...>",
		Short: "Extract the contact record from one or more card images",
		Long: `Process runs every configured language pass over each image, fuses the
readings and structures them into a contact record.

Supported formats: PNG, JPEG, GIF, BMP, TIFF, WebP and PDF (first image)

Examples:
  cardex process card.jpg
  cardex process card.jpg --languages en,vi --format json
  cardex process card.jpg --no-ai --format vcard --output card.vcf
  cardex process card.jpg --provider openai --model gpt-4o-mini`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if noAI {
				a.cfg.Structuring.Enabled = false
			}
			return a.runProcess(cmd, args)
		},
	}

	f := cmd.Flags()
	f.StringSlice("languages", nil, "OCR languages to run, in order (e.g. en,jp,vi)")
	f.StringP("format", "f", "text", "output format: text, json, yaml, csv, vcard")
	f.StringP("output", "o", "", "output file (default: stdout)")
	f.Bool("details", false, "include passes, timings and fusion statistics in json/yaml output")
	f.String("provider", "", "AI provider: ollama, openai, huggingface, mistral, anthropic, none")
	f.String("model", "", "AI model name")
	f.BoolVar(&noAI, "no-ai", false, "skip the AI model and use keyword rules only")
	f.Float64("iou-threshold", 0, "overlap above which tokens from different passes are merged (0-1)")
	f.Float64("line-tolerance", 0, "line grouping tolerance as a fraction of token height")
	f.Bool("preprocess", false, "enhance images (grayscale, contrast, sharpen) before OCR")
	bindKey(f, "languages", "languages")
	bindKey(f, "format", "output.format")
	bindKey(f, "output", "output.file")
	bindKey(f, "details", "output.details")
	bindKey(f, "provider", "structuring.provider")
	bindKey(f, "model", "structuring.model")
	bindKey(f, "iou-threshold", "fusion.iou_threshold")
	bindKey(f, "line-tolerance", "fusion.line_tolerance")
	bindKey(f, "preprocess", "ocr.preprocess")
	return cmd
}

func (a *app) runProcess(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(a.cfg.Output.Format)
	if err != nil {
		return err
	}
	deps, err := a.dependencies()
	if err != nil {
		return err
	}
	pl, err := batch.BuildPipeline(a.cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() {
		if err := pl.Close(); err != nil {
			a.logger.Warn("Failed to close engines", "error", err)
		}
	}()

	ctx := cmd.Context()
	results := make([]*pipeline.Result, 0, len(args))
	unreadable := 0
	for _, path := range args {
		res, err := pl.ProcessFile(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			unreadable++
			a.logger.Error("Failed to process card", "file", path, "error", err)
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			continue
		}
		results = append(results, res)
	}

	if len(results) > 0 {
		if err := writeResults(cmd.OutOrStdout(), a.cfg.Output.File, format, results,
			export.Options{Details: a.cfg.Output.Details}); err != nil {
			return err
		}
	}
	if unreadable > 0 {
		return fmt.Errorf("%d of %d images could not be processed", unreadable, len(args))
	}
	return nil
}

// writeResults writes to file when set, else to stdout.
func writeResults(stdout io.Writer, file string, format export.Format, results []*pipeline.Result,
	opts export.Options) error {
	if file == "" {
		return export.Write(stdout, format, results, opts)
	}
	f, err := os.Create(file) //nolint:gosec // G304: output path comes from the user
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := export.Write(f, format, results, opts); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
