package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/newtron-network/sfctest/pkg/config"
	"github.com/newtron-network/sfctest/pkg/settings"
	"github.com/newtron-network/sfctest/pkg/util"
)

// loadConfig reads the testbed config from: --config > settings > defaults,
// then applies flag and SFCTEST_* overrides.
func loadConfig() (*config.Config, error) {
	s, err := settings.Load()
	if err != nil {
		util.Warnf("ignoring settings: %v", err)
		s = &settings.Settings{}
	}

	path := configFlag
	if path == "" {
		path = s.ConfigPath
	}

	var cfg *config.Config
	if path == "" {
		cfg = config.Default()
	} else if cfg, err = config.Load(path); err != nil {
		return nil, err
	}

	if s.ResultsDir != "" {
		cfg.ResultsDir = s.ResultsDir
	}
	applyOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config) {
	if overrides.IsSet("installer.ip") {
		cfg.Installer.IP = overrides.GetString("installer.ip")
	}
	if overrides.IsSet("installer.password") {
		cfg.Installer.Password = overrides.GetString("installer.password")
	}
	if overrides.IsSet("controller.endpoint") {
		cfg.Controller.Endpoint = overrides.GetString("controller.endpoint")
	}
	if overrides.IsSet("topology.seed") {
		cfg.TopologySeed = overrides.GetInt("topology.seed")
	}
}

// installerPassword returns the configured installer password, prompting
// for one when none is set and stdin is a terminal.
func installerPassword(cfg *config.Config) (string, error) {
	if cfg.Installer.Password != "" || cfg.Installer.KeyFile != "" {
		return cfg.Installer.Password, nil
	}
	if cfg.Installer.Type != config.InstallerFuel {
		return "", nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}
	fmt.Fprintf(os.Stderr, "Password for %s@%s: ", cfg.Installer.User, cfg.Installer.IP)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

// resolveScenariosDir resolves the scenario directory from: flag > env >
// settings > default.
func resolveScenariosDir(cmd *cobra.Command, flagVal string) string {
	if cmd.Flags().Changed("dir") {
		return flagVal
	}
	if v := os.Getenv("SFCTEST_SCENARIOS"); v != "" {
		return v
	}
	s, err := settings.Load()
	if err != nil {
		s = &settings.Settings{}
	}
	return s.GetScenariosDir()
}

// newRunID names the result directory of one invocation.
func newRunID() string {
	return time.Now().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}
