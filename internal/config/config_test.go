package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, 30*time.Second, cfg.RequestTimeout())
	require.Equal(t, 50*time.Millisecond, cfg.RenderThrottle())
}

func TestLoadOverridesAndKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "port: 12345\nrenderThrottleMs: 80\nlogLevel: debug\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.Host)
	require.Equal(t, 12345, cfg.Port)
	require.Equal(t, 80*time.Millisecond, cfg.RenderThrottle())
	require.Equal(t, 2*time.Second, cfg.LivenessInterval())
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "prt: 9999\n")
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "empty host",
			mutate:  func(c *Config) { c.Host = "" },
			wantErr: "host",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Port = 70000 },
			wantErr: "port",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.RequestTimeoutMS = 0 },
			wantErr: "requestTimeoutMs",
		},
		{
			name:    "negative liveness delay",
			mutate:  func(c *Config) { c.LivenessDelayMS = -1 },
			wantErr: "livenessDelayMs",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "loud" },
			wantErr: "level",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
