package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "cardex"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "CARDEX"
)

// Loader handles loading configuration from files, the environment and
// bound flags.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so that flags
// bound by the CLI are visible.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWith creates a loader on v.
func NewLoaderWith(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load reads cardex.yaml from the search paths (a missing file is fine),
// applies defaults and CARDEX_* variables, and validates the result.
func (l *Loader) Load() (*Config, error) {
	return l.load("", true)
}

// LoadWithoutValidation is Load without the validation step.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.load("", false)
}

// LoadWithFile loads configuration from a specific file path. An empty path
// falls back to Load.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	return l.load(configFile, true)
}

// LoadWithFileWithoutValidation is LoadWithFile without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	return l.load(configFile, false)
}

func (l *Loader) load(configFile string, validate bool) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if validate {
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return &config, nil
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// GetResolvedConfig returns the current resolved settings for debugging.
func (l *Loader) GetResolvedConfig() map[string]any {
	return l.v.AllSettings()
}

func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	// fusion.iou_threshold -> CARDEX_FUSION_IOU_THRESHOLD
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key. AutomaticEnv only resolves keys viper
// knows about, so a key without a default cannot be set from the environment.
func (l *Loader) setDefaults() {
	for key, value := range defaultSettings() {
		l.v.SetDefault(key, value)
	}
}

func defaultSettings() map[string]any {
	d := DefaultConfig()
	return map[string]any{
		"log_level":  d.LogLevel,
		"log_format": d.LogFormat,
		"verbose":    d.Verbose,
		"languages":  d.Languages,

		"ocr.pass_timeout":   d.OCR.PassTimeout,
		"ocr.min_confidence": d.OCR.MinConfidence,
		"ocr.max_parallel":   d.OCR.MaxParallel,
		"ocr.normalize":      d.OCR.Normalize,
		"ocr.preprocess":     d.OCR.Preprocess,
		"ocr.max_side":       d.OCR.MaxSide,

		"fusion.iou_threshold":     d.Fusion.IoUThreshold,
		"fusion.line_tolerance":    d.Fusion.LineTolerance,
		"fusion.language_priority": d.Fusion.LanguagePriority,

		"structuring.enabled":             d.Structuring.Enabled,
		"structuring.provider":            d.Structuring.Provider,
		"structuring.model":               d.Structuring.Model,
		"structuring.base_url":            d.Structuring.BaseURL,
		"structuring.api_key_env":         d.Structuring.APIKeyEnv,
		"structuring.timeout":             d.Structuring.Timeout,
		"structuring.retry_backoff":       d.Structuring.RetryBackoff,
		"structuring.requests_per_second": d.Structuring.RequestsPerSecond,
		"structuring.burst":               d.Structuring.Burst,
		"structuring.ai_confidence":       d.Structuring.AIConfidence,
		"structuring.temperature":         d.Structuring.Temperature,

		"rules.title_keywords":   d.Rules.TitleKeywords,
		"rules.company_suffixes": d.Rules.CompanySuffixes,
		"rules.mobile_keywords":  d.Rules.MobileKeywords,

		"aggregator.ocr_weight":         d.Aggregator.OCRWeight,
		"aggregator.structuring_weight": d.Aggregator.StructuringWeight,

		"output.format":       d.Output.Format,
		"output.file":         d.Output.File,
		"output.details":      d.Output.Details,
		"output.metrics_file": d.Output.MetricsFile,

		"batch.workers":           d.Batch.Workers,
		"batch.recursive":         d.Batch.Recursive,
		"batch.include":           nonNil(d.Batch.Include),
		"batch.exclude":           nonNil(d.Batch.Exclude),
		"batch.continue_on_error": d.Batch.ContinueOnError,
	}
}

// GenerateDefaultConfigFile writes the defaults as YAML to filename
// (cardex.yaml when empty).
func GenerateDefaultConfigFile(filename string) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	if err := WriteDefaultConfig(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteDefaultConfig writes the defaults as YAML to w.
func WriteDefaultConfig(w io.Writer) error {
	return WriteConfig(w, DefaultConfig())
}

// WriteConfig writes cfg as YAML to w.
func WriteConfig(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// GetConfigSearchPaths returns the directories searched for cardex.yaml,
// in order.
func GetConfigSearchPaths() []string {
	paths := []string{"."}
	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		paths = append(paths, home)
	}
	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && configDir != "" {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if homeErr == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}
	return append(paths, filepath.Join("/etc", ConfigFileName))
}

// nonNil keeps empty list keys registered with viper.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
