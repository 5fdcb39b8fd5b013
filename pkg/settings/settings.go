// Package settings manages persistent user settings for the sfctest CLI.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultScenariosDir is searched when no scenario directory is configured.
const DefaultScenariosDir = "scenarios"

// Settings holds persistent user preferences
type Settings struct {
	// ConfigPath is the testbed config used when --config is not given
	ConfigPath string `json:"config_path,omitempty"`

	// ScenariosDir is the default directory searched by `sfctest run`
	ScenariosDir string `json:"scenarios_dir,omitempty"`

	// ResultsDir overrides the results_dir of the testbed config
	ResultsDir string `json:"results_dir,omitempty"`
}

// Names lists the settings accepted by Field, in display order.
var Names = []string{"config", "scenarios", "results"}

// Field returns a pointer to the named setting.
func (s *Settings) Field(name string) (*string, error) {
	switch name {
	case "config", "config_path":
		return &s.ConfigPath, nil
	case "scenarios", "scenarios_dir":
		return &s.ScenariosDir, nil
	case "results", "results_dir":
		return &s.ResultsDir, nil
	}
	return nil, fmt.Errorf("unknown setting: %s (valid: config, scenarios, results)", name)
}

// DefaultSettingsPath returns ~/.sfctest/settings.json, or a file in the
// working directory when there is no home directory.
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "sfctest_settings.json"
	}
	return filepath.Join(home, ".sfctest", "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from path. A missing file yields empty settings.
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to path, creating its directory.
func (s *Settings) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// GetScenariosDir returns the scenarios directory (with fallback)
func (s *Settings) GetScenariosDir() string {
	if s.ScenariosDir != "" {
		return s.ScenariosDir
	}
	return DefaultScenariosDir
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
