package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when nothing is configured", func(t *testing.T) {
		t.Chdir(t.TempDir())

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "procurement-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "procurement", cfg.Database.DBName)
		assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
		assert.Equal(t, "memory", cfg.Lock.Backend)
		assert.Equal(t, 10*time.Second, cfg.Lock.Timeout)
		assert.Equal(t, 5*time.Second, cfg.Notify.Timeout)
		assert.Equal(t, "0 0 */6 * * *", cfg.Scheduler.FeedSyncSchedule)
		assert.False(t, cfg.Telemetry.Enabled)
	})

	t.Run("environment overrides the config file", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
[app]
port = "9000"

[cache]
ttl = "1m"

[lock]
timeout = "3s"
`), 0o600))
		t.Setenv("PROCUREMENT_APP_PORT", "9100")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "9100", cfg.App.Port)
		assert.Equal(t, time.Minute, cfg.Cache.TTL)
		assert.Equal(t, 3*time.Second, cfg.Lock.Timeout)
	})

	t.Run("reads a .env file", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
			[]byte("PROCUREMENT_DATABASE_DRIVER=sqlite\nPROCUREMENT_DATABASE_SQLITE_PATH=dev.db\n"), 0o600))
		t.Cleanup(func() {
			os.Unsetenv("PROCUREMENT_DATABASE_DRIVER")
			os.Unsetenv("PROCUREMENT_DATABASE_SQLITE_PATH")
		})

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, "dev.db", cfg.Database.SQLitePath)
	})
}

func TestValidate(t *testing.T) {
	valid := Default

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"idle exceeds open", func(c *Config) { c.Database.MaxIdleConns = 100 }, "max_idle_conns"},
		{"redis locks without redis", func(c *Config) { c.Lock.Backend = "redis" }, "redis.enabled"},
		{"redis locks with redis", func(c *Config) { c.Lock.Backend = "redis"; c.Redis.Enabled = true }, ""},
		{"webhook without url", func(c *Config) { c.Notify.Webhook.Enabled = true }, "notify.webhook.url"},
		{"rabbitmq without url", func(c *Config) { c.Notify.RabbitMQ.Enabled = true }, "notify.rabbitmq.url"},
		{"sqlite in production", func(c *Config) {
			c.App.Env = "production"
			c.Database.Driver = "sqlite"
		}, "sqlite"},
		{"production needs password", func(c *Config) { c.App.Env = "production" }, "database.password"},
		{"sampling ratio out of range", func(c *Config) { c.Telemetry.SamplingRatio = 1.5 }, "sampling_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "mysql"
	cfg.Lock.Timeout = 0

	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
	assert.Contains(t, err.Error(), "lock.timeout")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}, cfg.HTTP.CORSAllowMethods)
	assert.Equal(t, int64(20<<20), cfg.Ingestion.MaxDocSize)
	assert.Equal(t, 200*time.Millisecond, cfg.Telemetry.DBSlowQueryThresh)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "secret", DBName: "procurement", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:secret@db:5432/procurement?sslmode=disable", cfg.DSN())
}
