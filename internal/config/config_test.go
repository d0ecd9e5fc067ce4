package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// chdir changes the working directory for the duration of the test
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "memory", cfg.Storage.Driver)
	require.Equal(t, 5, cfg.Bidding.MaxCommitAttempts)
	require.Equal(t, time.Second, cfg.Bidding.SweepInterval)
	require.Equal(t, "auction.events", cfg.Events.AMQP.Exchange)
	require.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "config.yaml")
	yaml := []byte(`
log_level: debug
server:
  port: 9000
bidding:
  sweep_interval: 250ms
events:
  redis:
    enabled: true
    addr: redis:6379
`)
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	t.Setenv("AUCTION_SERVER__PORT", "9100")
	t.Setenv("AUCTION_BIDDING__MAX_COMMIT_ATTEMPTS", "8")
	t.Setenv("AUCTION_EVENTS__NATS__ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, 8, cfg.Bidding.MaxCommitAttempts)
	require.Equal(t, 250*time.Millisecond, cfg.Bidding.SweepInterval)
	require.True(t, cfg.Events.Redis.Enabled)
	require.Equal(t, "redis:6379", cfg.Events.Redis.Addr)
	require.True(t, cfg.Events.NATS.Enabled)
}

func TestLoad_DotEnvAndPort(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("AUCTION_LOG_LEVEL=warn\n"), 0o600))

	t.Setenv("PORT", "7070")
	// godotenv never overrides variables that are already set, so register
	// the key with t.Setenv for cleanup and then clear it
	t.Setenv("AUCTION_LOG_LEVEL", "")
	require.NoError(t, os.Unsetenv("AUCTION_LOG_LEVEL"))

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "warn", cfg.LogLevel)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad_port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "unknown_driver", mutate: func(c *Config) { c.Storage.Driver = "mongo" }, wantErr: true},
		{name: "postgres_without_url", mutate: func(c *Config) { c.Storage.Driver = "postgres" }, wantErr: true},
		{name: "postgres_with_url", mutate: func(c *Config) {
			c.Storage.Driver = "postgres"
			c.Storage.Postgres.URL = "postgres://localhost/auction"
		}},
		{name: "zero_attempts", mutate: func(c *Config) { c.Bidding.MaxCommitAttempts = 0 }, wantErr: true},
		{name: "zero_sweep", mutate: func(c *Config) { c.Bidding.SweepInterval = 0 }, wantErr: true},
		{name: "production_without_secret", mutate: func(c *Config) { c.Environment = "production" }, wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
