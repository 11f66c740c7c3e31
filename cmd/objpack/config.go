package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tailscale/hujson"
)

// Config holds the tunables a pack run reads when not overridden on the
// command line.
type Config struct {
	ThrottleMultiplier float64 `json:"throttle_multiplier,omitempty"` //nolint:tagliatelle
	LockTimeoutSeconds float64 `json:"lock_timeout_seconds,omitempty"` //nolint:tagliatelle
	TailReleaseEvery   int     `json:"tail_release_every,omitempty"`   //nolint:tagliatelle
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".objpack.json"

// DefaultConfig returns the tunables a pack run uses absent any config
// file or CLI override.
func DefaultConfig() Config {
	return Config{
		ThrottleMultiplier: 0,
		LockTimeoutSeconds: 5,
		TailReleaseEvery:   64,
	}
}

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("failed to read config file")
	errConfigInvalid      = errors.New("invalid config file")
)

// getGlobalConfigPath returns $XDG_CONFIG_HOME/objpack/config.json, falling
// back to ~/.config/objpack/config.json. Returns "" if neither can be
// determined.
func getGlobalConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "objpack", "config.json")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "objpack", "config.json")
}

// LoadConfig resolves configuration with the following precedence (highest
// wins): defaults, global config, project config (.objpack.json in workDir,
// or an explicit --config path), CLI overrides are applied by the caller
// after LoadConfig returns.
func LoadConfig(workDir, configPath string) (Config, error) {
	cfg := DefaultConfig()

	globalCfg, _, err := loadConfigFile(getGlobalConfigPath(), false)
	if err != nil {
		return Config{}, err
	}

	cfg = mergeConfig(cfg, globalCfg)

	projectPath := configPath
	mustExist := configPath != ""

	if projectPath == "" {
		projectPath = filepath.Join(workDir, ConfigFileName)
	} else if !filepath.IsAbs(projectPath) {
		projectPath = filepath.Join(workDir, projectPath)
	}

	projectCfg, loaded, err := loadConfigFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = mergeConfig(cfg, projectCfg)
	}

	return cfg, nil
}

func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	if path == "" {
		return Config{}, false, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return Config{}, false, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
			}

			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s", errConfigFileRead, path)
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parseConfig(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.ThrottleMultiplier != 0 {
		base.ThrottleMultiplier = overlay.ThrottleMultiplier
	}

	if overlay.LockTimeoutSeconds != 0 {
		base.LockTimeoutSeconds = overlay.LockTimeoutSeconds
	}

	if overlay.TailReleaseEvery != 0 {
		base.TailReleaseEvery = overlay.TailReleaseEvery
	}

	return base
}

// FormatConfig renders cfg as indented JSON, for `objpack config`.
func FormatConfig(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}

	return string(data), nil
}

// parseTagUint64 parses a decimal cutoff TID given on the command line,
// rejecting the forms a forgetful caller might pass (hex 0x..., negative).
func parseTagUint64(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty cutoff")
	}

	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cutoff %q: %w", s, err)
	}

	return v, nil
}
