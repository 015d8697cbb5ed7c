package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waveroom/waveroom/internal/app/ratelimit"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  addr: \":9000\"\n"))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Limits.MaxConnectionsPerSession)
	assert.Equal(t, 5, cfg.Limits.MaxConnectionsPerIP)
	assert.Equal(t, 3600, cfg.Limits.DailyLimitSeconds)
	assert.Equal(t, 5*time.Second, cfg.SyncInterval())
	assert.Equal(t, time.Hour, cfg.RoomTTL())
	assert.Equal(t, "waveroom.db", cfg.Catalog.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid with throttles",
			yaml: `
limits:
  throttles:
    burst:
      enabled: true
      settings:
        limit: 20
        window_sec: 10
    minute:
      enabled: true
      settings:
        limit: 60
        window_sec: 60
`,
			wantErr: false,
		},
		{
			name: "unknown throttle rule",
			yaml: `
limits:
  throttles:
    hourly:
      enabled: true
`,
			wantErr: true,
			errMsg:  "unknown throttle rule",
		},
		{
			name: "invalid throttle settings",
			yaml: `
limits:
  throttles:
    burst:
      enabled: true
      settings:
        limit: 0
`,
			wantErr: true,
			errMsg:  "burst",
		},
		{
			name: "negative connection cap",
			yaml: `
limits:
  max_connections_per_ip: -1
`,
			wantErr: true,
			errMsg:  "MaxConnectionsPerIP",
		},
		{
			name: "room ttl too small",
			yaml: `
sync:
  room_ttl_sec: 10
`,
			wantErr: true,
			errMsg:  "RoomTTLSec",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))

			if tt.wantErr {
				require.Error(t, err, "expected validation to fail")
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err, "expected validation to pass")
			}
		})
	}
}

func TestLimiterOptions(t *testing.T) {
	t.Run("defaults when no throttles configured", func(t *testing.T) {
		cfg, err := Default()
		require.NoError(t, err)

		opts, err := cfg.LimiterOptions()
		require.NoError(t, err)
		assert.Equal(t, ratelimit.DefaultBurst(), opts.Burst)
		assert.Equal(t, ratelimit.DefaultMinute(), opts.Minute)
		assert.Equal(t, 3, opts.MaxConnectionsPerSession)
	})

	t.Run("explicit settings win", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, `
limits:
  throttles:
    burst:
      enabled: true
      settings:
        limit: 20
        window_sec: 5
`))
		require.NoError(t, err)

		opts, err := cfg.LimiterOptions()
		require.NoError(t, err)
		assert.Equal(t, ratelimit.WindowConfig{Limit: 20, WindowSec: 5}, opts.Burst)
		assert.Equal(t, ratelimit.DefaultMinute(), opts.Minute)
	})

	t.Run("disabled rule turns off", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, `
limits:
  throttles:
    minute:
      enabled: false
`))
		require.NoError(t, err)

		opts, err := cfg.LimiterOptions()
		require.NoError(t, err)
		assert.Zero(t, opts.Minute.Limit)
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WAVEROOM_ADDR", ":7777")
	t.Setenv("WAVEROOM_AUTH_TOKENS", "tok-a,tok-b")
	t.Setenv("WAVEROOM_DAILY_LIMIT_SECONDS", "120")

	cfg, err := Load(writeConfig(t, "server:\n  addr: \":9000\"\n"))
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.Server.Addr)
	assert.Equal(t, []string{"tok-a", "tok-b"}, cfg.Auth.Tokens)
	assert.Equal(t, 120, cfg.Limits.DailyLimitSeconds)
}

func TestExplicitZeroDailyLimitSurvives(t *testing.T) {
	cfg, err := Load(writeConfig(t, "limits:\n  daily_limit_seconds: 0\n"))
	require.NoError(t, err)
	assert.Zero(t, cfg.Limits.DailyLimitSeconds, "explicit zero disables the quota and must not be re-defaulted")

	// Same through the environment, without a file.
	t.Setenv("WAVEROOM_DAILY_LIMIT_SECONDS", "0")
	cfg, err = Default()
	require.NoError(t, err)
	assert.Zero(t, cfg.Limits.DailyLimitSeconds)
}
