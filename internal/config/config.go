package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	DatabaseURL    string
	StoreBackend   string
	Port           string
	AllowedOrigins string
	LogLevel       string
	LogFormat      string
	RedisAddr      string // empty disables the posting guard
	TxMaxRetries   int
	LockTimeout    time.Duration
	GuardTTL       time.Duration
	MigrationsDir  string
}

// Load reads configuration from the environment, after loading .env files if
// present. Precedence: explicit env var > .env file > default.
func Load(envFiles ...string) (Config, error) {
	_ = godotenv.Load(envFiles...)

	cfg := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StoreBackend:   strings.ToLower(getEnv("STORE_BACKEND", BackendPostgres)),
		Port:           getEnv("SERVER_PORT", "8080"),
		AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		MigrationsDir:  getEnv("MIGRATIONS_DIR", "migrations"),
	}

	var err error
	if cfg.TxMaxRetries, err = getInt("TX_MAX_RETRIES", 5); err != nil {
		return Config{}, err
	}
	if cfg.LockTimeout, err = getDuration("LOCK_TIMEOUT", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.GuardTTL, err = getDuration("GUARD_TTL", 10*time.Second); err != nil {
		return Config{}, err
	}

	switch cfg.StoreBackend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when STORE_BACKEND=%s", BackendPostgres)
		}
	case BackendMemory:
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q (want %s or %s)", cfg.StoreBackend, BackendPostgres, BackendMemory)
	}
	if cfg.TxMaxRetries < 1 {
		return Config{}, fmt.Errorf("TX_MAX_RETRIES must be at least 1, got %d", cfg.TxMaxRetries)
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
		return 0, fmt.Errorf("invalid integer for %s: %q", key, v)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q", key, v)
	}
	return d, nil
}
