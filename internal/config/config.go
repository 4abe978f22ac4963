package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIBaseURL   string
	APITimeout   time.Duration
	SessionToken string
	RateLimitRPS float64 // 0 disables client-side throttling
	Telemetry    bool

	Storage StorageConfig
	Log     LogConfig
}

type StorageConfig struct {
	Backend       string // file, redis or memory
	Dir           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment, preloading an optional .env
// file. Missing variables fall back to defaults usable against a local
// storefront.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIBaseURL:   getEnv("CART_API_URL", "http://localhost:8080"),
		APITimeout:   getDuration("CART_API_TIMEOUT", 10*time.Second),
		SessionToken: getEnv("CART_SESSION_TOKEN", ""),
		RateLimitRPS: getFloat("CART_RATE_LIMIT_RPS", 0),
		Telemetry:    getBool("CART_TELEMETRY", false),
		Storage: StorageConfig{
			Backend:       getEnv("CART_STORAGE_BACKEND", "file"),
			Dir:           getEnv("CART_STORAGE_DIR", ".cartsync"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getInt("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}

	switch cfg.Storage.Backend {
	case "file", "redis", "memory":
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
