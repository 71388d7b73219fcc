package config

import (
	"os"
	"strings"
)

// ApplyEnvConfig applies PDFC_* environment variables to cfg, skipping
// explicitly set flags.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("out", os.Getenv("PDFC_OUTPUT_DIR"), &cfg.OutputDir)
	s.setString("mode", os.Getenv("PDFC_MODE"), &cfg.Mode)
	s.setString("level", os.Getenv("PDFC_LEVEL"), &cfg.Level)
	if err := s.setFloatFromString("max-mb", os.Getenv("PDFC_MAX_MB"), &cfg.MaxMB); err != nil {
		return err
	}
	s.setString("probe", os.Getenv("PDFC_PROBE"), &cfg.Probe)
	s.setBoolFromString("prefer-smaller", os.Getenv("PDFC_PREFER_SMALLER"), &cfg.PreferSmaller)
	s.setString("temp-dir", os.Getenv("PDFC_TEMP_DIR"), &cfg.TempDir)

	if err := s.setIntFromString("dpi", os.Getenv("PDFC_DPI"), &cfg.DPI); err != nil {
		return err
	}
	if err := s.setFloatFromString("threshold", os.Getenv("PDFC_THRESHOLD_FACTOR"), &cfg.ThresholdFactor); err != nil {
		return err
	}
	s.setStrings("gs-binary", splitList(os.Getenv("PDFC_GS_BINARIES")), &cfg.GSBinaries)
	if err := s.setDuration("gs-timeout", os.Getenv("PDFC_GS_TIMEOUT"), &cfg.GSTimeout); err != nil {
		return err
	}

	s.setString("port", os.Getenv("PDFC_PORT"), &cfg.Port)
	if err := s.setInt64FromString("max-file-size", os.Getenv("PDFC_MAX_FILE_SIZE"), &cfg.MaxFileSize); err != nil {
		return err
	}
	s.setString("runs-dir", os.Getenv("PDFC_RUNS_DIR"), &cfg.RunsDir)
	if err := s.setDuration("run-ttl", os.Getenv("PDFC_RUN_TTL"), &cfg.RunTTL); err != nil {
		return err
	}

	if err := s.setDuration("debounce", os.Getenv("PDFC_DEBOUNCE"), &cfg.Debounce); err != nil {
		return err
	}

	s.setString("log-level", os.Getenv("PDFC_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", os.Getenv("PDFC_LOG_FORMAT"), &cfg.LogFormat)

	return nil
}

// splitList splits a comma separated list, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
