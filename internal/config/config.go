package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the chat dispatch service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool
	AuthSecret     string

	DatabaseURL string

	ClassifierMode    string
	ClassifierURL     string
	ClassifierTimeout time.Duration

	TaskAPIURL     string
	TaskAPIToken   string
	TaskAPITimeout time.Duration

	ContextWindow int
	LockIdleTTL   time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "taskchat"),
		AllowAnyOrigin:   false,
		AuthSecret:       envTrimmed("APP_AUTH_SECRET"),
		DatabaseURL:      envTrimmed("DATABASE_URL"),
		// auto resolves to http when CLASSIFIER_URL is set, keyword-only otherwise.
		ClassifierMode:    envOrDefault("CLASSIFIER_MODE", "auto"),
		ClassifierURL:     envTrimmed("CLASSIFIER_URL"),
		ClassifierTimeout: 10 * time.Second,
		TaskAPIURL:        envTrimmed("TASK_API_URL"),
		TaskAPIToken:      envTrimmed("TASK_API_TOKEN"),
		TaskAPITimeout:    3 * time.Second,
		ContextWindow:     10,
		LockIdleTTL:       5 * time.Minute,
		ShutdownTimeout:   15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ClassifierTimeout, err = durationFromEnv("CLASSIFIER_TIMEOUT", cfg.ClassifierTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TaskAPITimeout, err = durationFromEnv("TASK_API_TIMEOUT", cfg.TaskAPITimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LockIdleTTL, err = durationFromEnv("CHAT_LOCK_IDLE_TTL", cfg.LockIdleTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextWindow, err = intFromEnv("CHAT_CONTEXT_WINDOW", cfg.ContextWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.ClassifierMode)) {
	case "", "auto", "http", "mock", "disabled":
	default:
		return Config{}, fmt.Errorf("CLASSIFIER_MODE must be auto|http|mock|disabled, got %q", cfg.ClassifierMode)
	}
	if cfg.ClassifierTimeout < time.Second {
		return Config{}, fmt.Errorf("CLASSIFIER_TIMEOUT must be at least 1s")
	}
	if cfg.TaskAPITimeout <= 0 {
		return Config{}, fmt.Errorf("TASK_API_TIMEOUT must be positive")
	}
	if cfg.ContextWindow <= 0 {
		return Config{}, fmt.Errorf("CHAT_CONTEXT_WINDOW must be positive")
	}
	if cfg.LockIdleTTL < time.Minute {
		return Config{}, fmt.Errorf("CHAT_LOCK_IDLE_TTL must be at least 1m")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
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
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
