package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		envValue string
		want     string
	}{
		{"flag takes precedence", "/path/from/flag", "/path/from/env", "/path/from/flag"},
		{"env when no flag", "", "/path/from/env", "/path/from/env"},
		{"empty when neither", "", "", ""},
		{"whitespace flag", "  ", "/path/from/env", "/path/from/env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DNSPERF_CONFIG", tt.envValue)
			got := ResolveConfigPath(tt.flag)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, FamilyAny, cfg.Family)
	assert.Equal(t, ModeUDP, cfg.Mode)
	assert.Equal(t, "127.0.0.1", cfg.Server)
	assert.Equal(t, 53, cfg.Port)
	assert.Equal(t, uint32(1), cfg.Clients)
	assert.Equal(t, uint32(1), cfg.Threads)
	assert.Equal(t, uint32(1), cfg.MaxRuns, "maxruns defaults to 1 when no time limit is set")
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, uint32(100), cfg.MaxOutstanding)
	assert.False(t, cfg.EDNS)
	assert.False(t, cfg.Updates)
}

func TestLoadTLSDefaultPort(t *testing.T) {
	content := "mode: tls\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "tls.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 853, cfg.Port)
}

func TestLoadFromFile(t *testing.T) {
	content := `
server: "9.9.9.9"
port: 5353
clients: 4
threads: 2
timeout: 2.5
max_outstanding: 200
edns_option: "10:abcd"
logging:
  level: "DEBUG"
  structured: true
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test-config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9.9.9.9", cfg.Server)
	assert.Equal(t, 5353, cfg.Port)
	assert.Equal(t, uint32(4), cfg.Clients)
	assert.Equal(t, uint32(2), cfg.Threads)
	assert.Equal(t, 2500*time.Millisecond, cfg.Timeout)
	assert.Equal(t, uint32(200), cfg.MaxOutstanding)
	assert.True(t, cfg.EDNS, "edns_option implies edns")
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Structured)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [invalid"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeInvalidFamily(t *testing.T) {
	content := "family: \"bogus\"\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeThreadsCappedByQPS(t *testing.T) {
	content := `
threads: 8
max_qps: 3
clients: 8
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), cfg.Threads, "threads above max_qps should be capped")
}

func TestNormalizeThreadsCappedByClients(t *testing.T) {
	content := `
threads: 8
clients: 2
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), cfg.Threads)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DNSPERF_SERVER", "192.168.1.1")
	t.Setenv("DNSPERF_PORT", "8053")
	t.Setenv("DNSPERF_THREADS", "4")
	t.Setenv("DNSPERF_CLIENTS", "4")
	t.Setenv("DNSPERF_VERBOSE", "true")
	t.Setenv("DNSPERF_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.1", cfg.Server)
	assert.Equal(t, 8053, cfg.Port)
	assert.Equal(t, uint32(4), cfg.Threads)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestApplyFlagOverridesOnlyTouchesSetFields(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	server := "203.0.113.9"
	err = ApplyFlagOverrides(cfg, FlagOverrides{Server: &server})
	require.NoError(t, err)

	assert.Equal(t, "203.0.113.9", cfg.Server)
	assert.Equal(t, uint32(1), cfg.Clients) // untouched, stays at loaded default
}

func TestApplyFlagOverridesModeChangeRederivesPort(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 53, cfg.Port)

	mode := "tls"
	err = ApplyFlagOverrides(cfg, FlagOverrides{Mode: &mode})
	require.NoError(t, err)

	assert.Equal(t, ModeTLS, cfg.Mode)
	assert.Equal(t, 853, cfg.Port)
}

func TestApplyFlagOverridesModeChangeKeepsExplicitPort(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	mode := "tls"
	port := 9999
	err = ApplyFlagOverrides(cfg, FlagOverrides{Mode: &mode, Port: &port})
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port)
}

func TestApplyFlagOverridesDNSSECImpliesEDNS(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	err = ApplyFlagOverrides(cfg, FlagOverrides{DNSSEC: true})
	require.NoError(t, err)

	assert.True(t, cfg.DNSSEC)
	assert.True(t, cfg.EDNS)
}

func TestApplyFlagOverridesRejectsInvalidResult(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	var zero uint32
	err = ApplyFlagOverrides(cfg, FlagOverrides{MaxOutstanding: &zero})
	assert.Error(t, err)
}
