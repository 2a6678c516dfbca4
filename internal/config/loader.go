package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// checkConfigFilePermissions rejects a config file with overly permissive
// permissions. Config files may reference a local identity key path.
// Returns an error if any group or other permission bit is set.
func checkConfigFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // file access errors are handled by the caller
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("config file %s has overly permissive mode %04o; expected 0600 — fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// LoadNodeConfig loads node configuration from a YAML file.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	if err := checkConfigFilePermissions(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Parse YAML with custom unmarshaling for the scan_interval duration.
	var rawConfig struct {
		Version   int            `yaml:"version,omitempty"`
		Identity  IdentityConfig `yaml:"identity"`
		Discovery struct {
			ServiceName  string `yaml:"service_name"`
			ScanInterval string `yaml:"scan_interval,omitempty"`
			MDNSEnabled  *bool  `yaml:"mdns_enabled,omitempty"`
		} `yaml:"discovery"`
		Settings  SettingsConfig  `yaml:"settings,omitempty"`
		Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
	}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Default version to 1 for configs written before versioning was added.
	version := rawConfig.Version
	if version == 0 {
		version = 1
	}
	if version > CurrentConfigVersion {
		return nil, fmt.Errorf("%w: version %d is newer than supported version %d; please upgrade nearbyd", ErrConfigVersionTooNew, version, CurrentConfigVersion)
	}

	scanInterval := 5 * time.Second
	if rawConfig.Discovery.ScanInterval != "" {
		scanInterval, err = time.ParseDuration(rawConfig.Discovery.ScanInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid scan_interval: %w", err)
		}
	}

	cfg := &NodeConfig{
		Version:  version,
		Identity: rawConfig.Identity,
		Discovery: DiscoveryConfig{
			ServiceName:  rawConfig.Discovery.ServiceName,
			ScanInterval: scanInterval,
			MDNSEnabled:  rawConfig.Discovery.MDNSEnabled,
		},
		Settings:  rawConfig.Settings,
		Telemetry: rawConfig.Telemetry,
	}
	return cfg, nil
}

// ValidateNodeConfig validates node configuration.
func ValidateNodeConfig(cfg *NodeConfig) error {
	if cfg.Identity.KeyFile == "" {
		return fmt.Errorf("identity.key_file is required")
	}
	if cfg.Discovery.ServiceName == "" {
		return fmt.Errorf("discovery.service_name is required")
	}
	if cfg.Settings.StateFile == "" {
		return fmt.Errorf("settings.state_file is required")
	}
	return nil
}

// FindConfigFile searches for a nearbyd config file in standard locations.
// Search order: explicitPath (if given), ./nearbyd.yaml,
// ~/.config/nearbyd/config.yaml, /etc/nearbyd/config.yaml.
func FindConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, explicitPath)
		}
		return explicitPath, nil
	}

	searchPaths := []string{
		"nearbyd.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "nearbyd", "config.yaml"))
	}

	searchPaths = append(searchPaths, filepath.Join("/etc", "nearbyd", "config.yaml"))

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w; searched:\n  %s\n\nRun 'nearbyd init' to create one, or use --config <path>", ErrConfigNotFound, strings.Join(searchPaths, "\n  "))
}

// ResolveConfigPaths resolves relative file paths in the config to be
// relative to the config file's directory.
func ResolveConfigPaths(cfg *NodeConfig, configDir string) {
	if cfg.Identity.KeyFile != "" && !filepath.IsAbs(cfg.Identity.KeyFile) {
		cfg.Identity.KeyFile = filepath.Join(configDir, cfg.Identity.KeyFile)
	}
	if cfg.Settings.StateFile != "" && !filepath.IsAbs(cfg.Settings.StateFile) {
		cfg.Settings.StateFile = filepath.Join(configDir, cfg.Settings.StateFile)
	}
}

// DefaultConfigDir returns the default nearbyd config directory
// (~/.config/nearbyd).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "nearbyd"), nil
}
