package application

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	stream "cascade/internal/stream/domain"
)

// Config defines stream lifecycle configuration. It is fixed at process start.
type Config struct {
	InactivityThreshold time.Duration `yaml:"inactivity_threshold"`
	WarningWindow       time.Duration `yaml:"warning_window"`
	MonitorInterval     time.Duration `yaml:"monitor_interval"`
	WebhookURL          string        `yaml:"webhook_url"`
	CASRetries          int           `yaml:"cas_retries"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		InactivityThreshold: time.Duration(stream.DefaultInactivityThreshold) * time.Second,
		WarningWindow:       25 * 24 * time.Hour,
		MonitorInterval:     time.Minute,
		CASRetries:          3,
	}
}

// LoadConfig starts from DefaultConfig, applies the yaml file named by
// STREAM_CONFIG, then the STREAM_* env vars. A set env var wins over the file.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if path := os.Getenv("STREAM_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.InactivityThreshold = getenvDuration("STREAM_INACTIVITY_THRESHOLD", cfg.InactivityThreshold)
	cfg.WarningWindow = getenvDuration("STREAM_WARNING_WINDOW", cfg.WarningWindow)
	cfg.MonitorInterval = getenvDuration("STREAM_MONITOR_INTERVAL", cfg.MonitorInterval)
	if url := strings.TrimSpace(os.Getenv("STREAM_WEBHOOK_URL")); url != "" {
		cfg.WebhookURL = url
	}
	cfg.CASRetries = getenvIntDefault("STREAM_CAS_RETRIES", cfg.CASRetries)
	return cfg, cfg.Validate()
}

// Validate checks the config is usable.
func (c Config) Validate() error {
	if c.InactivityThreshold < time.Second {
		return errors.New("stream config: inactivity threshold must be at least 1s")
	}
	if c.WarningWindow <= 0 || c.WarningWindow > c.InactivityThreshold {
		return errors.New("stream config: warning window must be within the inactivity threshold")
	}
	if c.MonitorInterval <= 0 {
		return errors.New("stream config: monitor interval must be positive")
	}
	if c.CASRetries < 0 {
		return errors.New("stream config: cas retries must not be negative")
	}
	return nil
}

// Policy returns the transition policy in ledger seconds.
func (c Config) Policy() stream.Policy {
	return stream.Policy{InactivityThreshold: int64(c.InactivityThreshold / time.Second)}
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
