package config

import (
	"time"
)

// CurrentConfigVersion is the latest configuration schema version.
// Bump this when adding fields that require migration.
const CurrentConfigVersion = 1

// NodeConfig is the unified configuration for a nearbyd node: the local
// identity key, radio discovery tuning, persisted-state file locations,
// and telemetry.
type NodeConfig struct {
	Version   int             `yaml:"version,omitempty"`
	Identity  IdentityConfig  `yaml:"identity"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Settings  SettingsConfig  `yaml:"settings,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// TelemetryConfig holds observability settings.
// All features are disabled by default (opt-in).
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
	Audit   AuditConfig   `yaml:"audit,omitempty"`
}

// MetricsConfig controls Prometheus metrics exposure.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"` // default: "127.0.0.1:9091"
}

// AuditConfig controls structured audit logging.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

// IdentityConfig holds identity-related configuration.
type IdentityConfig struct {
	KeyFile string `yaml:"key_file"`
}

// DiscoveryConfig holds radio/mDNS discovery tuning.
type DiscoveryConfig struct {
	// ServiceName scopes mDNS browse/register to this service instance
	// name, so unrelated nearbyd deployments on the same LAN segment don't
	// see each other.
	ServiceName string `yaml:"service_name"`
	// ScanInterval is how often a fresh mDNS browse round is issued while
	// scanning (default: 5s). Parsed from a duration string by
	// LoadNodeConfig; never unmarshaled directly from YAML.
	ScanInterval time.Duration `yaml:"-"`
	// MDNSEnabled toggles LAN peer discovery (default: true).
	MDNSEnabled *bool `yaml:"mdns_enabled,omitempty"`
}

// IsMDNSEnabled returns whether mDNS local discovery is enabled.
// Defaults to true when not explicitly set in config.
func (d *DiscoveryConfig) IsMDNSEnabled() bool {
	if d.MDNSEnabled == nil {
		return true
	}
	return *d.MDNSEnabled
}

// SettingsConfig holds the persisted-state file location for the
// Settings Service.
type SettingsConfig struct {
	StateFile string `yaml:"state_file"`
}
