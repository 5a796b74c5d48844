package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMemory   = "memory"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Postgres PostgresConfig
	MySQL    MySQLConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Holds    HoldsConfig
	Sweeps   SweepsConfig
	// SeedCoupon creates the default reward template at startup when no
	// template is active.
	SeedCoupon bool
}

type ServerConfig struct {
	Host string
	Port int
}

type StoreConfig struct {
	Driver      string
	Migrate     bool
	LockTimeout time.Duration
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	MaxConns int32
}

type MySQLConfig struct {
	User     string
	Password string
	Addr     string
	Name     string
	MaxConns int
}

// RedisConfig is disabled when Addr is empty; the service then runs
// without cache, idempotency keys, rate limiting and cross-instance
// change notifications.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// RabbitMQConfig is disabled when URL is empty.
type RabbitMQConfig struct {
	URL string
}

func (c RabbitMQConfig) Enabled() bool { return c.URL != "" }

type HoldsConfig struct {
	DefaultTTL time.Duration
	MinTTL     time.Duration
	MaxTTL     time.Duration
	// RateLimit is the number of holds a user may request per RateWindow;
	// zero disables the limiter.
	RateLimit  int
	RateWindow time.Duration
}

type SweepsConfig struct {
	ExpiryInterval     time.Duration
	CompletionInterval time.Duration
	BatchSize          int
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	var (
		cfg Config
		err error
	)

	cfg.Server.Host = getEnv("SERVER_HOST", "localhost")
	if cfg.Server.Port, err = getInt("SERVER_PORT", 8080); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.Store.Driver = strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres))
	if cfg.Store.Migrate, err = getBool("MIGRATE", true); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Store.LockTimeout, err = getDuration("LOCK_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch cfg.Store.Driver {
	case DriverPostgres:
		if cfg.Postgres, err = postgresFromEnv(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	case DriverMySQL:
		if cfg.MySQL, err = mysqlFromEnv(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	case DriverMemory:
	default:
		return nil, fmt.Errorf("%s: unknown STORE_DRIVER %q", op, cfg.Store.Driver)
	}

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if cfg.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.RabbitMQ.URL = os.Getenv("RABBITMQ_URL")

	if cfg.Holds.DefaultTTL, err = getDuration("HOLD_TTL", 10*time.Minute); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Holds.MinTTL, err = getDuration("HOLD_TTL_MIN", time.Minute); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Holds.MaxTTL, err = getDuration("HOLD_TTL_MAX", 30*time.Minute); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Holds.MinTTL > cfg.Holds.MaxTTL {
		return nil, fmt.Errorf("%s: HOLD_TTL_MIN %s exceeds HOLD_TTL_MAX %s", op, cfg.Holds.MinTTL, cfg.Holds.MaxTTL)
	}
	if cfg.Holds.RateLimit, err = getInt("HOLD_RATE_LIMIT", 10); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Holds.RateWindow, err = getDuration("HOLD_RATE_WINDOW", time.Minute); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.Sweeps.ExpiryInterval, err = getDuration("EXPIRY_SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Sweeps.CompletionInterval, err = getDuration("COMPLETION_SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Sweeps.BatchSize, err = getInt("SWEEP_BATCH_SIZE", 500); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.SeedCoupon, err = getBool("SEED_COUPON", true); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

func postgresFromEnv() (PostgresConfig, error) {
	port, err := getInt("POSTGRES_PORT", 5432)
	if err != nil {
		return PostgresConfig{}, err
	}

	maxConns, err := getInt("POSTGRES_MAX_CONNS", 0)
	if err != nil {
		return PostgresConfig{}, err
	}

	cfg := PostgresConfig{
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Name:     os.Getenv("POSTGRES_DB"),
		Host:     getEnv("POSTGRES_HOST", "localhost"),
		Port:     port,
		SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		MaxConns: int32(maxConns),
	}

	if cfg.User == "" {
		return cfg, fmt.Errorf("missing POSTGRES_USER")
	}

	if cfg.Password == "" {
		return cfg, fmt.Errorf("missing POSTGRES_PASSWORD")
	}

	if cfg.Name == "" {
		return cfg, fmt.Errorf("missing POSTGRES_DB")
	}

	return cfg, nil
}

func mysqlFromEnv() (MySQLConfig, error) {
	maxConns, err := getInt("MYSQL_MAX_CONNS", 25)
	if err != nil {
		return MySQLConfig{}, err
	}

	cfg := MySQLConfig{
		User:     os.Getenv("MYSQL_USER"),
		Password: os.Getenv("MYSQL_PASSWORD"),
		Addr:     getEnv("MYSQL_ADDR", "localhost:3306"),
		Name:     os.Getenv("MYSQL_DB"),
		MaxConns: maxConns,
	}

	if cfg.User == "" {
		return cfg, fmt.Errorf("missing MYSQL_USER")
	}

	if cfg.Name == "" {
		return cfg, fmt.Errorf("missing MYSQL_DB")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}

	return b, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	if d < 0 {
		return 0, fmt.Errorf("invalid %s: negative duration", key)
	}

	return d, nil
}
