package application

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STREAM_CONFIG", "")
	t.Setenv("STREAM_INACTIVITY_THRESHOLD", "")
	t.Setenv("STREAM_WARNING_WINDOW", "")
	t.Setenv("STREAM_MONITOR_INTERVAL", "")
	t.Setenv("STREAM_CAS_RETRIES", "")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Policy().InactivityThreshold != 2_592_000 {
		t.Fatalf("expected 30 day threshold, got %d", cfg.Policy().InactivityThreshold)
	}
	if cfg.MonitorInterval != time.Minute || cfg.CASRetries != 3 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadConfigEnvAndYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stream.yaml")
	body := "inactivity_threshold: 2h\nwarning_window: 90m\nwebhook_url: http://hooks.local/stream\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STREAM_INACTIVITY_THRESHOLD", "")
	t.Setenv("STREAM_WARNING_WINDOW", "")
	t.Setenv("STREAM_MONITOR_INTERVAL", "15s")
	t.Setenv("STREAM_WEBHOOK_URL", "")
	t.Setenv("STREAM_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Policy().InactivityThreshold != 7200 {
		t.Fatalf("expected yaml threshold, got %d", cfg.Policy().InactivityThreshold)
	}
	if cfg.WarningWindow != 90*time.Minute || cfg.MonitorInterval != 15*time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.WebhookURL != "http://hooks.local/stream" {
		t.Fatalf("unexpected webhook url %q", cfg.WebhookURL)
	}
}

func TestLoadConfigEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stream.yaml")
	body := "inactivity_threshold: 2h\nwarning_window: 90m\nwebhook_url: http://hooks.local/file\ncas_retries: 7\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STREAM_CONFIG", path)
	t.Setenv("STREAM_INACTIVITY_THRESHOLD", "3h")
	t.Setenv("STREAM_WARNING_WINDOW", "")
	t.Setenv("STREAM_MONITOR_INTERVAL", "")
	t.Setenv("STREAM_WEBHOOK_URL", "http://hooks.local/env")
	t.Setenv("STREAM_CAS_RETRIES", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.InactivityThreshold != 3*time.Hour || cfg.WebhookURL != "http://hooks.local/env" {
		t.Fatalf("expected env to win, got %+v", cfg)
	}
	if cfg.WarningWindow != 90*time.Minute || cfg.CASRetries != 7 {
		t.Fatalf("expected unset env to keep file values, got %+v", cfg)
	}
}

func TestLoadConfigRejectsWarningPastThreshold(t *testing.T) {
	t.Setenv("STREAM_CONFIG", "")
	t.Setenv("STREAM_INACTIVITY_THRESHOLD", "1h")
	t.Setenv("STREAM_WARNING_WINDOW", "2h")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected validation error")
	}
}
