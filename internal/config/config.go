// SPDX-License-Identifier: MPL-2.0

// Package config loads and saves the tool's global configuration. The file
// lives in the platform config directory and carries defaults for settings
// every run shares: the environment work directory, the parallelism default,
// and UI preferences. Command-line flags always win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/chr1043086360/envmatrix/internal/issue"
)

const (
	// AppName is the application name, also the config subdirectory name.
	AppName = "envmatrix"
	// ConfigFileName is the config file name without extension.
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "toml"
)

// configDirOverride lets tests point the loader at a temporary directory.
var configDirOverride = ""

type (
	// Config is the global tool configuration.
	Config struct {
		// WorkDir overrides the default environment directory root
		// (<matrix dir>/.envmatrix). Empty keeps the default.
		WorkDir string `mapstructure:"work_dir" toml:"work_dir"`
		// Parallel is the default maximum number of environments run
		// at once. Values below 2 mean sequential.
		Parallel int `mapstructure:"parallel" toml:"parallel"`
		// SkipMissingInterpreters makes missing interpreters a skip
		// rather than a failure, matrix-file setting permitting aside.
		SkipMissingInterpreters bool `mapstructure:"skip_missing_interpreters" toml:"skip_missing_interpreters"`
		// UI groups presentation settings.
		UI UIConfig `mapstructure:"ui" toml:"ui"`
	}

	// UIConfig groups presentation settings.
	UIConfig struct {
		// Verbose enables debug logging.
		Verbose bool `mapstructure:"verbose" toml:"verbose"`
		// Color enables styled output. Disable for dumb terminals.
		Color bool `mapstructure:"color" toml:"color"`
	}

	// LoadOptions controls one Load call.
	LoadOptions struct {
		// ConfigFilePath loads an explicit file instead of the platform
		// default location. The file must exist.
		ConfigFilePath string
	}
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Parallel: 1,
		UI: UIConfig{
			Color: true,
		},
	}
}

// ConfigDir returns the tool's configuration directory using
// platform-specific conventions: Windows uses %APPDATA%, macOS uses
// ~/Library/Application Support, and Linux/others use $XDG_CONFIG_HOME
// (defaulting to ~/.config).
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string
	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(configDir, AppName), nil
}

// SetConfigDirOverride points config loading at dir. Tests use it with
// t.TempDir(); an empty string restores platform resolution.
func SetConfigDirOverride(dir string) {
	configDirOverride = dir
}

// DefaultPath returns where the config file lives (whether or not it exists).
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}

// Load reads the configuration: built-in defaults, overlaid by the config
// file when one exists. It returns the config and the path of the file it
// read (empty when running on pure defaults).
func Load(opts LoadOptions) (*Config, string, error) {
	v := viper.New()
	v.SetConfigType(ConfigFileExt)

	defaults := DefaultConfig()
	v.SetDefault("work_dir", defaults.WorkDir)
	v.SetDefault("parallel", defaults.Parallel)
	v.SetDefault("skip_missing_interpreters", defaults.SkipMissingInterpreters)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)
	v.SetDefault("ui.color", defaults.UI.Color)

	resolvedPath := ""
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Run 'envmatrix config path' to see the default location").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		v.SetConfigFile(opts.ConfigFilePath)
		if err := v.ReadInConfig(); err != nil {
			return nil, "", wrapReadError(opts.ConfigFilePath, err)
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		path, err := DefaultPath()
		if err != nil {
			return nil, "", err
		}
		if fileExists(path) {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, "", wrapReadError(path, err)
			}
			resolvedPath = path
		}
		// No file means pure defaults, not an error.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Parallel < 0 {
		return nil, "", errors.New("config: parallel must not be negative")
	}
	return &cfg, resolvedPath, nil
}

// Save writes the configuration to its default location, creating the
// directory when needed.
func Save(cfg *Config) error {
	path, err := DefaultPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func wrapReadError(path string, err error) error {
	return issue.NewErrorContext().
		WithOperation("load configuration").
		WithResource(path).
		WithSuggestion("Check that the file contains valid TOML").
		WithSuggestion("Delete the file to fall back to defaults").
		Wrap(err).
		BuildError()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
