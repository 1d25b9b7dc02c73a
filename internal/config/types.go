// Package config provides configuration loading for the dnsperf load
// generator using Viper. Configuration is loaded from an optional YAML
// file with automatic environment variable binding; command-line flags
// (parsed in cmd/dnsperf) are applied as a final override pass.
//
// Environment variables use the DNSPERF_ prefix and underscore-separated
// keys, e.g. DNSPERF_SERVER maps to server, DNSPERF_MAX_OUTSTANDING maps
// to max_outstanding.
package config

import (
	"os"
	"strings"
	"time"
)

// Mode selects the transport used to reach the target server.
type Mode string

const (
	ModeUDP Mode = "udp"
	ModeTCP Mode = "tcp"
	ModeTLS Mode = "tls"
)

// Family restricts DNS transport to an address family.
type Family string

const (
	FamilyAny   Family = "any"
	FamilyInet  Family = "inet"
	FamilyInet6 Family = "inet6"
)

// Config is the root configuration for a dnsperf run, mirroring the
// CLI flag table: one field per flag plus the ambient logging/archive/
// status-API settings this rewrite adds on top of it.
type Config struct {
	Family Family `yaml:"family" mapstructure:"family"`
	Mode   Mode   `yaml:"mode"   mapstructure:"mode"`

	Server     string `yaml:"server"     mapstructure:"server"`
	Port       int    `yaml:"port"       mapstructure:"port"`
	LocalAddr  string `yaml:"local_addr" mapstructure:"local_addr"`
	LocalPort  int    `yaml:"local_port" mapstructure:"local_port"`
	InputFile  string `yaml:"input_file" mapstructure:"input_file"`

	Clients uint32 `yaml:"clients" mapstructure:"clients"`
	Threads uint32 `yaml:"threads" mapstructure:"threads"`
	MaxRuns uint32 `yaml:"maxruns" mapstructure:"maxruns"`

	TimeLimit  time.Duration `yaml:"time_limit"  mapstructure:"time_limit"`
	BufferSize int           `yaml:"buffer_size" mapstructure:"buffer_size"`
	Timeout    time.Duration `yaml:"timeout"     mapstructure:"timeout"`

	EDNS       bool   `yaml:"edns"        mapstructure:"edns"`
	EDNSOption string `yaml:"edns_option" mapstructure:"edns_option"`
	DNSSEC     bool   `yaml:"dnssec"      mapstructure:"dnssec"`
	TSIGKey    string `yaml:"tsig_key"    mapstructure:"tsig_key"`

	MaxOutstanding uint32        `yaml:"max_outstanding" mapstructure:"max_outstanding"`
	MaxQPS         uint32        `yaml:"max_qps"         mapstructure:"max_qps"`
	StatsInterval  time.Duration `yaml:"stats_interval"  mapstructure:"stats_interval"`

	Updates bool `yaml:"updates" mapstructure:"updates"`
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`

	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Archive ArchiveConfig `yaml:"archive" mapstructure:"archive"`
	Status  StatusConfig  `yaml:"status"  mapstructure:"status"`
}

// LoggingConfig contains structured-logging settings, carried regardless
// of any feature Non-goals since logging is ambient plumbing.
type LoggingConfig struct {
	Level      string `yaml:"level"      mapstructure:"level"`
	Structured bool   `yaml:"structured" mapstructure:"structured"`
	Format     string `yaml:"format"     mapstructure:"format"`
}

// ArchiveConfig configures the optional SQLite run-history store (-A/-history).
type ArchiveConfig struct {
	Path    string `yaml:"path"    mapstructure:"path"`
	History int    `yaml:"history" mapstructure:"history"`
}

// StatusConfig configures the optional HTTP status API (-H).
type StatusConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("DNSPERF_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from an optional YAML file with environment
// variable overrides layered on top of built-in defaults.
//
// Configuration priority (highest to lowest) up to this point:
//  1. Environment variables (DNSPERF_*)
//  2. Config file values
//  3. Default values
//
// Command-line flags are applied afterward by ApplyFlagOverrides.
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
