// Package settings loads the process-wide ananke settings.yaml document,
// following the teacher's viper-backed config.Load convention (see
// SPEC_FULL.md §4.A).
package settings

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/doubleverify/ananke/internal/model"
)

// EnvConfigDir is the environment variable naming the root of the settings
// and per-target variable tree (spec.md §6).
const EnvConfigDir = "ANANKE_CONFIG"

// requiredFields are the top-level settings keys that must be present for a
// deploy to be attempted at all (spec.md §4.A "fail fast").
var requiredFields = []string{"write-methods"}

// Load reads settings.yaml from configDir and validates required fields.
func Load(configDir string) (*model.Settings, error) {
	if configDir == "" {
		return nil, fmt.Errorf("%s must be set", EnvConfigDir)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(configDir, "settings.yaml"))
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading settings.yaml: %w", err)
	}

	var s model.Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decoding settings.yaml: %w", err)
	}

	if err := Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the required top-level settings are present.
func Validate(s *model.Settings) error {
	for _, field := range requiredFields {
		switch field {
		case "write-methods":
			if s.WriteMethods == nil {
				return fmt.Errorf("settings.yaml: missing required key %q", field)
			}
			if _, ok := s.WriteMethods["default"]; !ok {
				return fmt.Errorf("settings.yaml: write-methods.default is required")
			}
		}
	}
	return nil
}
