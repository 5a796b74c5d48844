package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SERVER_HOST", "SERVER_PORT", "STORE_DRIVER", "MIGRATE", "LOCK_TIMEOUT",
		"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB", "POSTGRES_HOST", "POSTGRES_PORT",
		"POSTGRES_SSLMODE", "POSTGRES_MAX_CONNS",
		"MYSQL_USER", "MYSQL_PASSWORD", "MYSQL_ADDR", "MYSQL_DB", "MYSQL_MAX_CONNS",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "RABBITMQ_URL",
		"HOLD_TTL", "HOLD_TTL_MIN", "HOLD_TTL_MAX", "HOLD_RATE_LIMIT", "HOLD_RATE_WINDOW",
		"EXPIRY_SWEEP_INTERVAL", "COMPLETION_SWEEP_INTERVAL", "SWEEP_BATCH_SIZE", "SEED_COUPON",
	} {
		t.Setenv(k, "")
	}
}

func TestNewMemoryDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.True(t, cfg.Store.Migrate)
	assert.Equal(t, 5*time.Second, cfg.Store.LockTimeout)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.RabbitMQ.Enabled())
	assert.Equal(t, 10*time.Minute, cfg.Holds.DefaultTTL)
	assert.Equal(t, time.Minute, cfg.Holds.MinTTL)
	assert.Equal(t, 30*time.Minute, cfg.Holds.MaxTTL)
	assert.Equal(t, time.Minute, cfg.Sweeps.ExpiryInterval)
	assert.Equal(t, time.Minute, cfg.Sweeps.CompletionInterval)
	assert.True(t, cfg.SeedCoupon)
}

func TestNewPostgresRequiresCredentials(t *testing.T) {
	clearEnv(t)

	_, err := New()
	require.ErrorContains(t, err, "POSTGRES_USER")

	t.Setenv("POSTGRES_USER", "oneday")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "oneday")
	t.Setenv("POSTGRES_PORT", "5433")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 5433, cfg.Postgres.Port)
	assert.Equal(t, "disable", cfg.Postgres.SSLMode)
	assert.True(t, cfg.Redis.Enabled())
}

func TestNewMySQL(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "MySQL")
	t.Setenv("MYSQL_USER", "oneday")
	t.Setenv("MYSQL_DB", "oneday")
	t.Setenv("LOCK_TIMEOUT", "3s")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, DriverMySQL, cfg.Store.Driver)
	assert.Equal(t, "localhost:3306", cfg.MySQL.Addr)
	assert.Equal(t, 25, cfg.MySQL.MaxConns)
	assert.Equal(t, 3*time.Second, cfg.Store.LockTimeout)
}

func TestNewRejectsBadValues(t *testing.T) {
	tests := map[string]map[string]string{
		"driver":   {"STORE_DRIVER": "sqlite"},
		"port":     {"STORE_DRIVER": "memory", "SERVER_PORT": "http"},
		"duration": {"STORE_DRIVER": "memory", "HOLD_TTL": "ten minutes"},
		"negative": {"STORE_DRIVER": "memory", "LOCK_TIMEOUT": "-1s"},
		"bool":     {"STORE_DRIVER": "memory", "MIGRATE": "maybe"},
		"ttl range": {
			"STORE_DRIVER": "memory", "HOLD_TTL_MIN": "20m", "HOLD_TTL_MAX": "5m",
		},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := New()
			assert.Error(t, err)
		})
	}
}
