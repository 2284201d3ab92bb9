package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/cardex/internal/batch"
	"github.com/MeKo-Tech/cardex/internal/config"
	"github.com/MeKo-Tech/cardex/internal/extract"
	"github.com/MeKo-Tech/cardex/internal/llm"
	"github.com/MeKo-Tech/cardex/internal/ocr"
	"github.com/MeKo-Tech/cardex/internal/ocr/tesseract"
	"github.com/MeKo-Tech/cardex/internal/version"
)

// configKeyAnnotation marks flags that override a configuration key.
const configKeyAnnotation = "cardex_config_key"

// app holds the state shared by the commands of one root command.
type app struct {
	v       *viper.Viper
	cfgFile string
	envFile string

	cfg    *config.Config
	logger *slog.Logger

	engines ocr.Factory
	ai      extract.AIClient // overrides the configured provider when set
}

// Option customizes the root command.
type Option func(*app)

// WithEngineFactory replaces the Tesseract engines.
func WithEngineFactory(f ocr.Factory) Option {
	return func(a *app) { a.engines = f }
}

// WithAIClient replaces the configured AI provider.
func WithAIClient(c extract.AIClient) Option {
	return func(a *app) { a.ai = c }
}

// NewRootCommand creates the cardex command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &app{v: viper.New(), engines: tesseract.Factory}
	for _, opt := range opts {
		opt(a)
	}

	rootCmd := &cobra.Command{
		Use:   "cardex",
		Short: "Extract contact records from business card images",
		Long: `cardex reads business card images, runs one OCR pass per language,
fuses the passes into a single reading and structures it into a contact
record, using an AI model when one is configured and keyword rules otherwise.

Examples:
  cardex process card.jpg
  cardex process card.png --format vcard --output jane.vcf
  cardex batch scans/ --workers 8 --format csv --output contacts.csv
  cardex config init`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initConfig(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is search in ., $HOME, $HOME/.config/cardex, /etc/cardex)")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file with API keys (ignored when missing unless set explicitly)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "json", "log format (json, text)")
	bindKey(pf, "verbose", "verbose")
	bindKey(pf, "log-level", "log_level")
	bindKey(pf, "log-format", "log_format")

	rootCmd.AddCommand(
		newProcessCommand(a),
		newBatchCommand(a),
		newConfigCommand(a),
	)
	return rootCmd
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context) int {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

// bindKey annotates flag name so that it overrides key when set.
func bindKey(fs *pflag.FlagSet, name, key string) {
	_ = fs.SetAnnotation(name, configKeyAnnotation, []string{key})
}

// initConfig loads .env, binds the executing command's flags, reads the
// configuration and installs the logger.
func (a *app) initConfig(cmd *cobra.Command) error {
	if err := godotenv.Load(a.envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("env-file") {
			return fmt.Errorf("failed to load env file %s: %w", a.envFile, err)
		}
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if keys := f.Annotations[configKeyAnnotation]; len(keys) > 0 && bindErr == nil {
			bindErr = a.v.BindPFlag(keys[0], f)
		}
	})
	if bindErr != nil {
		return bindErr
	}

	loader := config.NewLoaderWith(a.v)
	cfg, err := loader.LoadWithFile(a.cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	a.cfg = cfg
	a.logger = newLogger(cmd.ErrOrStderr(), cfg)
	slog.SetDefault(a.logger)
	if used := loader.GetConfigFileUsed(); used != "" {
		a.logger.Debug("Configuration loaded", "file", used)
	}
	return nil
}

// newLogger builds the slog handler for cfg. Logs go to stderr so that
// stdout carries only results.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	} else {
		switch strings.ToLower(cfg.LogLevel) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// dependencies assembles the pipeline collaborators for the loaded config.
func (a *app) dependencies() (batch.Dependencies, error) {
	deps := batch.Dependencies{Engines: a.engines, Logger: a.logger}
	switch {
	case !a.cfg.AIEnabled():
	case a.ai != nil:
		deps.AI = a.ai
	default:
		client, err := llm.New(a.cfg.ToLLMConfig(), a.logger)
		if err != nil {
			return deps, fmt.Errorf("failed to create AI client: %w", err)
		}
		if client != nil {
			deps.AI = client
		}
	}
	return deps, nil
}
