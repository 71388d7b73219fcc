package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config with TOML friendly types; durations are strings.
type FileConfig struct {
	OutputDir     string  `toml:"output_dir"`
	Mode          string  `toml:"mode"`
	Level         string  `toml:"level"`
	MaxMB         float64 `toml:"max_mb"`
	Probe         string  `toml:"probe"`
	PreferSmaller *bool   `toml:"prefer_smaller"`
	TempDir       string  `toml:"temp_dir"`

	DPI             int      `toml:"dpi"`
	ThresholdFactor float64  `toml:"threshold_factor"`
	GSBinaries      []string `toml:"gs_binaries"`
	GSTimeout       string   `toml:"gs_timeout"`

	Port        string `toml:"port"`
	MaxFileSize int64  `toml:"max_file_size"`
	RunsDir     string `toml:"runs_dir"`
	RunTTL      string `toml:"run_ttl"`

	Debounce string `toml:"debounce"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// LoadFileConfig reads and parses a TOML config file.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.pdf_compactor/config.toml, or "" when the
// home directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".pdf_compactor", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies fc to cfg, skipping explicitly set flags.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("out", fc.OutputDir, &cfg.OutputDir)
	s.setString("mode", fc.Mode, &cfg.Mode)
	s.setString("level", fc.Level, &cfg.Level)
	s.setFloat("max-mb", fc.MaxMB, &cfg.MaxMB)
	s.setString("probe", fc.Probe, &cfg.Probe)
	s.setBool("prefer-smaller", fc.PreferSmaller, &cfg.PreferSmaller)
	s.setString("temp-dir", fc.TempDir, &cfg.TempDir)

	s.setInt("dpi", fc.DPI, &cfg.DPI)
	s.setFloat("threshold", fc.ThresholdFactor, &cfg.ThresholdFactor)
	s.setStrings("gs-binary", fc.GSBinaries, &cfg.GSBinaries)
	if err := s.setDuration("gs-timeout", fc.GSTimeout, &cfg.GSTimeout); err != nil {
		return err
	}

	s.setString("port", fc.Port, &cfg.Port)
	s.setInt64("max-file-size", fc.MaxFileSize, &cfg.MaxFileSize)
	s.setString("runs-dir", fc.RunsDir, &cfg.RunsDir)
	if err := s.setDuration("run-ttl", fc.RunTTL, &cfg.RunTTL); err != nil {
		return err
	}

	if err := s.setDuration("debounce", fc.Debounce, &cfg.Debounce); err != nil {
		return err
	}

	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)

	return nil
}

// FileExists reports whether a file exists at p.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
