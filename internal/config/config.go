// Package config provides configuration loading and validation for the
// dnsperf load generator.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Command-line flags (not handled here, see cmd/dnsperf/main.go)
//  2. Environment variables (DNSPERF_* prefix)
//  3. YAML config file (if specified with -C)
//  4. Hardcoded defaults
//
// All configuration is validated during Load() to ensure correctness early.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// initConfig sets up the config loader with defaults, env binding, and config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variable binding
	// Uses DNSPERF_ prefix: DNSPERF_MAX_OUTSTANDING -> max_outstanding
	v.SetEnvPrefix("DNSPERF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// setDefaults configures all default values, mirroring the CLI flag
// table's defaults exactly so a flagless invocation behaves identically
// to the original tool.
func setDefaults(v *viper.Viper) {
	v.SetDefault("family", "any")
	v.SetDefault("mode", "udp")
	v.SetDefault("server", "127.0.0.1")
	v.SetDefault("port", 0) // 0 means "pick 53/853 from mode"
	v.SetDefault("local_addr", "")
	v.SetDefault("local_port", 0)
	v.SetDefault("input_file", "")

	v.SetDefault("clients", 1)
	v.SetDefault("threads", 1)
	v.SetDefault("maxruns", 0)

	v.SetDefault("time_limit", 0.0)
	v.SetDefault("buffer_size", 0)
	v.SetDefault("timeout", 5.0)

	v.SetDefault("edns", false)
	v.SetDefault("edns_option", "")
	v.SetDefault("dnssec", false)
	v.SetDefault("tsig_key", "")

	v.SetDefault("max_outstanding", 100)
	v.SetDefault("max_qps", 0)
	v.SetDefault("stats_interval", 0.0)

	v.SetDefault("updates", false)
	v.SetDefault("verbose", false)

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.format", "text")

	v.SetDefault("archive.path", "")
	v.SetDefault("archive.history", 0)

	v.SetDefault("status.addr", "")
}

// loadFromSource loads configuration from file and environment.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.Family = Family(strings.ToLower(v.GetString("family")))
	cfg.Mode = Mode(strings.ToLower(v.GetString("mode")))
	cfg.Server = v.GetString("server")
	cfg.Port = v.GetInt("port")
	cfg.LocalAddr = v.GetString("local_addr")
	cfg.LocalPort = v.GetInt("local_port")
	cfg.InputFile = v.GetString("input_file")

	cfg.Clients = uint32(v.GetUint("clients"))
	cfg.Threads = uint32(v.GetUint("threads"))
	cfg.MaxRuns = uint32(v.GetUint("maxruns"))

	cfg.TimeLimit = secondsToDuration(v.GetFloat64("time_limit"))
	cfg.BufferSize = v.GetInt("buffer_size")
	cfg.Timeout = secondsToDuration(v.GetFloat64("timeout"))

	cfg.EDNS = v.GetBool("edns")
	cfg.EDNSOption = v.GetString("edns_option")
	cfg.DNSSEC = v.GetBool("dnssec")
	cfg.TSIGKey = v.GetString("tsig_key")

	cfg.MaxOutstanding = uint32(v.GetUint("max_outstanding"))
	cfg.MaxQPS = uint32(v.GetUint("max_qps"))
	cfg.StatsInterval = secondsToDuration(v.GetFloat64("stats_interval"))

	cfg.Updates = v.GetBool("updates")
	cfg.Verbose = v.GetBool("verbose")

	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.Format = v.GetString("logging.format")

	cfg.Archive.Path = v.GetString("archive.path")
	cfg.Archive.History = v.GetInt("archive.history")

	cfg.Status.Addr = v.GetString("status.addr")

	normalize(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// normalize applies cross-field defaults: port falls back to
// mode-specific defaults, and maxruns defaults to 1 when no time limit
// was given either.
func normalize(cfg *Config) {
	if cfg.Port == 0 {
		if cfg.Mode == ModeTLS {
			cfg.Port = 853
		} else {
			cfg.Port = 53
		}
	}
	if cfg.MaxRuns == 0 && cfg.TimeLimit == 0 {
		cfg.MaxRuns = 1
	}
	if cfg.DNSSEC || cfg.EDNSOption != "" {
		cfg.EDNS = true
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}

	// If we'd run more threads than the QPS cap allows, some threads
	// would otherwise be unlimited; cap threads at max_qps instead.
	if cfg.MaxQPS > 0 && cfg.Threads > cfg.MaxQPS {
		cfg.Threads = cfg.MaxQPS
	}
	// Can't run more worker threads than client sockets.
	if cfg.Threads > cfg.Clients {
		cfg.Threads = cfg.Clients
	}
	if cfg.Threads == 0 {
		cfg.Threads = 1
	}
}

// FlagOverrides holds the subset of CLI flags a caller actually set,
// applied over a loaded Config as the final, highest-priority layer.
// Pointer fields are nil when the corresponding flag was left at its
// flag.Parse default, so only flags the user actually passed take
// effect; string/bool/numeric flags that have no "unset" value of
// their own (e.g. -e, -D, -u, -v) are plain values the caller only
// includes when true.
type FlagOverrides struct {
	Family    *string
	Mode      *string
	Server    *string
	Port      *int
	LocalAddr *string
	LocalPort *int
	InputFile *string

	Clients *uint32
	Threads *uint32
	MaxRuns *uint32

	TimeLimitSeconds *float64
	BufferSize       *int
	TimeoutSeconds   *float64

	EDNS       bool
	EDNSOption *string
	DNSSEC     bool
	TSIGKey    *string

	MaxOutstanding *uint32
	MaxQPS         *uint32
	StatsInterval  *float64

	Updates bool
	Verbose bool

	ArchivePath    *string
	ArchiveHistory *int
	StatusAddr     *string
}

// ApplyFlagOverrides layers parsed CLI flags on top of a loaded Config,
// re-running normalize/validate so cross-field defaults and bounds
// still apply after the override pass.
func ApplyFlagOverrides(cfg *Config, o FlagOverrides) error {
	if o.Family != nil {
		cfg.Family = Family(strings.ToLower(*o.Family))
	}
	if o.Mode != nil {
		cfg.Mode = Mode(strings.ToLower(*o.Mode))
		if o.Port == nil {
			// Let normalize re-derive the mode-specific default port
			// (53 vs 853) when the mode changed but -p did not.
			cfg.Port = 0
		}
	}
	if o.Server != nil {
		cfg.Server = *o.Server
	}
	if o.Port != nil {
		cfg.Port = *o.Port
	}
	if o.LocalAddr != nil {
		cfg.LocalAddr = *o.LocalAddr
	}
	if o.LocalPort != nil {
		cfg.LocalPort = *o.LocalPort
	}
	if o.InputFile != nil {
		cfg.InputFile = *o.InputFile
	}
	if o.Clients != nil {
		cfg.Clients = *o.Clients
	}
	if o.Threads != nil {
		cfg.Threads = *o.Threads
	}
	if o.MaxRuns != nil {
		cfg.MaxRuns = *o.MaxRuns
	}
	if o.TimeLimitSeconds != nil {
		cfg.TimeLimit = secondsToDuration(*o.TimeLimitSeconds)
	}
	if o.BufferSize != nil {
		cfg.BufferSize = *o.BufferSize
	}
	if o.TimeoutSeconds != nil {
		cfg.Timeout = secondsToDuration(*o.TimeoutSeconds)
	}
	if o.EDNS {
		cfg.EDNS = true
	}
	if o.EDNSOption != nil {
		cfg.EDNSOption = *o.EDNSOption
	}
	if o.DNSSEC {
		cfg.DNSSEC = true
	}
	if o.TSIGKey != nil {
		cfg.TSIGKey = *o.TSIGKey
	}
	if o.MaxOutstanding != nil {
		cfg.MaxOutstanding = *o.MaxOutstanding
	}
	if o.MaxQPS != nil {
		cfg.MaxQPS = *o.MaxQPS
	}
	if o.StatsInterval != nil {
		cfg.StatsInterval = secondsToDuration(*o.StatsInterval)
	}
	if o.Updates {
		cfg.Updates = true
	}
	if o.Verbose {
		cfg.Verbose = true
	}
	if o.ArchivePath != nil {
		cfg.Archive.Path = *o.ArchivePath
	}
	if o.ArchiveHistory != nil {
		cfg.Archive.History = *o.ArchiveHistory
	}
	if o.StatusAddr != nil {
		cfg.Status.Addr = *o.StatusAddr
	}

	normalize(cfg)
	return validate(cfg)
}

func validate(cfg *Config) error {
	switch cfg.Family {
	case FamilyAny, FamilyInet, FamilyInet6:
	default:
		return fmt.Errorf("family must be any, inet, or inet6, got %q", cfg.Family)
	}
	switch cfg.Mode {
	case ModeUDP, ModeTCP, ModeTLS:
	default:
		return fmt.Errorf("mode must be udp, tcp, or tls, got %q", cfg.Mode)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return errors.New("port must be 1..65535")
	}
	if cfg.Clients == 0 {
		return errors.New("clients must be >= 1")
	}
	if cfg.Timeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	if cfg.MaxOutstanding == 0 {
		return errors.New("max_outstanding must be >= 1")
	}
	return nil
}
