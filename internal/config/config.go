package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the chat relay.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogLevel         string
	LogFormat        string

	CORSAllowedOrigins []string

	DatabaseURL string
	RedisURL    string
	UserLockTTL time.Duration

	CompletionMode        string
	CompletionAPIKey      string
	CompletionBaseURL     string
	CompletionModel       string
	CompletionTemperature float64
	CompletionTimeout     time.Duration

	HistoryLimit int
}

// LoadDotEnv reads key=value pairs from path into the environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:              envOrDefault("APP_BIND_ADDR", ":8000"),
		MetricsNamespace:      envOrDefault("APP_METRICS_NAMESPACE", "miku"),
		LogLevel:              strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		LogFormat:             strings.ToLower(envOrDefault("LOG_FORMAT", "text")),
		CORSAllowedOrigins:    splitList(envOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		DatabaseURL:           stringsTrimSpace("DATABASE_URL"),
		RedisURL:              stringsTrimSpace("REDIS_URL"),
		CompletionMode:        strings.ToLower(envOrDefault("COMPLETION_MODE", "auto")),
		CompletionAPIKey:      stringsTrimSpace("GROQ_API_KEY"),
		CompletionBaseURL:     envOrDefault("COMPLETION_BASE_URL", "https://api.groq.com/openai/v1"),
		CompletionModel:       envOrDefault("COMPLETION_MODEL", "openai/gpt-oss-120b"),
		CompletionTemperature: 0.7,
		CompletionTimeout:     60 * time.Second,
		ShutdownTimeout:       15 * time.Second,
		UserLockTTL:           2 * time.Minute,
		HistoryLimit:          6,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CompletionTimeout, err = durationFromEnv("COMPLETION_TIMEOUT", cfg.CompletionTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.UserLockTTL, err = durationFromEnv("USER_LOCK_TTL", cfg.UserLockTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.CompletionTemperature, err = floatFromEnv("COMPLETION_TEMPERATURE", cfg.CompletionTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryLimit, err = intFromEnv("HISTORY_LIMIT", cfg.HistoryLimit)
	if err != nil {
		return Config{}, err
	}

	if cfg.CompletionTimeout <= 0 {
		return Config{}, fmt.Errorf("COMPLETION_TIMEOUT must be positive")
	}
	if cfg.CompletionTemperature < 0 || cfg.CompletionTemperature > 2 {
		return Config{}, fmt.Errorf("COMPLETION_TEMPERATURE must be within [0, 2]")
	}
	if cfg.HistoryLimit <= 0 {
		return Config{}, fmt.Errorf("HISTORY_LIMIT must be positive")
	}
	if cfg.UserLockTTL < cfg.CompletionTimeout {
		return Config{}, fmt.Errorf("USER_LOCK_TTL must be at least COMPLETION_TIMEOUT")
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("LOG_FORMAT must be text or json")
	}
	switch cfg.CompletionMode {
	case "auto", "langchain", "groq", "mock":
	default:
		return Config{}, fmt.Errorf("invalid COMPLETION_MODE: %q (expected auto|langchain|mock)", cfg.CompletionMode)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}
