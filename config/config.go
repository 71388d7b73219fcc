package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pdf_compactor/compress"
	"pdf_compactor/pdf"
	"pdf_compactor/pipeline"
	"pdf_compactor/split"
)

// Defaults shared by the CLI, the HTTP server and the watcher.
const (
	DefaultOutputDir   = "output"
	DefaultMaxMB       = 1.9
	DefaultPort        = "8080"
	DefaultMaxFileSize = 100 << 20 // 100MB
	DefaultRunsDir     = "./temp"
	DefaultRunTTL      = 15 * time.Minute
	DefaultDebounce    = 500 * time.Millisecond
)

// Config holds the configuration of every command.
type Config struct {
	OutputDir     string
	Mode          string
	Level         string
	MaxMB         float64
	Probe         string
	PreferSmaller bool
	TempDir       string

	DPI             int
	ThresholdFactor float64
	GSBinaries      []string
	GSTimeout       time.Duration

	Port        string
	MaxFileSize int64
	RunsDir     string
	RunTTL      time.Duration

	Debounce time.Duration

	LogLevel  string
	LogFormat string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		OutputDir:       DefaultOutputDir,
		Mode:            "compress+split",
		Level:           "standard",
		MaxMB:           DefaultMaxMB,
		Probe:           "linear",
		DPI:             pdf.DefaultDPI,
		ThresholdFactor: compress.DefaultThresholdFactor,
		GSBinaries:      append([]string(nil), compress.GhostscriptBinaries...),
		GSTimeout:       compress.DefaultBackendTimeout,
		Port:            DefaultPort,
		MaxFileSize:     DefaultMaxFileSize,
		RunsDir:         DefaultRunsDir,
		RunTTL:          DefaultRunTTL,
		Debounce:        DefaultDebounce,
		LogLevel:        "info",
		LogFormat:       "console",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.OutputDir == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if _, err := pipeline.ParseMode(c.Mode); err != nil {
		errs = append(errs, err)
	}
	if _, err := compress.ParseLevel(c.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := split.ParseProbe(c.Probe); err != nil {
		errs = append(errs, err)
	}
	if c.MaxMB <= 0 {
		errs = append(errs, fmt.Errorf("max-mb must be positive, got %v", c.MaxMB))
	}
	if c.DPI <= 0 {
		errs = append(errs, fmt.Errorf("dpi must be positive, got %d", c.DPI))
	}
	if c.ThresholdFactor <= 0 {
		errs = append(errs, fmt.Errorf("threshold factor must be positive, got %v", c.ThresholdFactor))
	}
	if c.GSTimeout <= 0 {
		errs = append(errs, errors.New("gs-timeout must be positive"))
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p <= 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %q", c.Port))
	}
	if c.MaxFileSize <= 0 {
		errs = append(errs, errors.New("max file size must be positive"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q (supported: console, json)", c.LogFormat))
	}

	return errors.Join(errs...)
}

// MaxPartBytes converts MaxMB into the split budget in bytes.
func (c *Config) MaxPartBytes() int64 {
	return int64(c.MaxMB * 1024 * 1024)
}

// Pipeline returns the pipeline configuration. Validate must have passed.
func (c *Config) Pipeline() pipeline.Config {
	mode, _ := pipeline.ParseMode(c.Mode)
	level, _ := compress.ParseLevel(c.Level)
	return pipeline.Config{
		OutputDir:     c.OutputDir,
		Mode:          mode,
		Level:         level,
		MaxPartBytes:  c.MaxPartBytes(),
		TempDir:       c.TempDir,
		PreferSmaller: c.PreferSmaller,
	}
}

// Compress returns the compressor configuration using r for rasterization.
func (c *Config) Compress(r pdf.Renderer) compress.Config {
	return compress.Config{
		Backends:        c.GSBinaries,
		BackendTimeout:  c.GSTimeout,
		Renderer:        r,
		DPI:             c.DPI,
		ThresholdFactor: c.ThresholdFactor,
	}
}

// SplitProbe returns the parsed probe. Validate must have passed.
func (c *Config) SplitProbe() split.Probe {
	p, _ := split.ParseProbe(c.Probe)
	return p
}

// configSetter applies values while respecting flag precedence: a value is
// only applied when the corresponding flag was not set explicitly.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt64(flag string, value int64, dst *int64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses environment values; non-positive values are ignored.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	s.setInt(flag, i, dst)
	return nil
}

func (s *configSetter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	s.setInt64(flag, i, dst)
	return nil
}

func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	s.setFloat(flag, f, dst)
	return nil
}

// setBoolFromString treats "true" and "1" as true and anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
