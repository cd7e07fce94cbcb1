package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.ClassifierMode != "auto" {
		t.Fatalf("ClassifierMode = %q, want %q", cfg.ClassifierMode, "auto")
	}
	if cfg.ClassifierTimeout != 10*time.Second {
		t.Fatalf("ClassifierTimeout = %v, want 10s", cfg.ClassifierTimeout)
	}
	if cfg.TaskAPITimeout != 3*time.Second {
		t.Fatalf("TaskAPITimeout = %v, want 3s", cfg.TaskAPITimeout)
	}
	if cfg.ContextWindow != 10 {
		t.Fatalf("ContextWindow = %d, want 10", cfg.ContextWindow)
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")
	t.Setenv("CLASSIFIER_MODE", "http")
	t.Setenv("CLASSIFIER_URL", "http://localhost:7000/classify")
	t.Setenv("CLASSIFIER_TIMEOUT", "5s")
	t.Setenv("CHAT_CONTEXT_WINDOW", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.ClassifierURL != "http://localhost:7000/classify" {
		t.Fatalf("ClassifierURL = %q, want explicit value", cfg.ClassifierURL)
	}
	if cfg.ClassifierTimeout != 5*time.Second {
		t.Fatalf("ClassifierTimeout = %v, want 5s", cfg.ClassifierTimeout)
	}
	if cfg.ContextWindow != 4 {
		t.Fatalf("ContextWindow = %d, want 4", cfg.ContextWindow)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("CLASSIFIER_MODE", "psychic")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want classifier mode error")
	}

	setCoreEnvEmpty(t)
	t.Setenv("CLASSIFIER_TIMEOUT", "100ms")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want classifier timeout error")
	}

	setCoreEnvEmpty(t)
	t.Setenv("CHAT_CONTEXT_WINDOW", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want context window error")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_AUTH_SECRET",
		"DATABASE_URL",
		"CLASSIFIER_MODE",
		"CLASSIFIER_URL",
		"CLASSIFIER_TIMEOUT",
		"TASK_API_URL",
		"TASK_API_TOKEN",
		"TASK_API_TIMEOUT",
		"CHAT_CONTEXT_WINDOW",
		"CHAT_LOCK_IDLE_TTL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
