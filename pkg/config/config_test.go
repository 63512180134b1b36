package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("Default config must validate: %v", err)
	}

	if _, ok := config.RateLimits[DefaultDestination]; !ok {
		t.Error("Expected a default rate limit entry")
	}
	if config.RateLimits["twitter"].RequestsPerMinute != 15 {
		t.Errorf("Expected twitter requests per minute to be 15, got %d", config.RateLimits["twitter"].RequestsPerMinute)
	}
	if config.Dispatcher.MaxAttempts != 3 {
		t.Errorf("Expected default max attempts to be 3, got %d", config.Dispatcher.MaxAttempts)
	}
	if config.Proxy.FailThreshold != 3 {
		t.Errorf("Expected default proxy fail threshold to be 3, got %d", config.Proxy.FailThreshold)
	}
	if config.Output.BaseDirectory != "./data/scraped" {
		t.Errorf("Expected default output directory to be ./data/scraped, got %s", config.Output.BaseDirectory)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SMSCRAPER_USE_PROXIES", "true")
	t.Setenv("SMSCRAPER_MAX_CONCURRENT_REQUESTS", "8")
	t.Setenv("SMSCRAPER_MAX_ATTEMPTS", "5")
	t.Setenv("SMSCRAPER_OUTPUT_DIR", "/tmp/test-records")
	t.Setenv("SMSCRAPER_LOG_LEVEL", "debug")

	config := DefaultConfig()
	if err := config.LoadFromEnv(); err != nil {
		t.Fatalf("Failed to load from environment: %v", err)
	}

	if !config.Proxy.Enabled {
		t.Error("Expected proxies to be enabled")
	}
	if config.Dispatcher.MaxConcurrentRequests != 8 {
		t.Errorf("Expected max concurrent requests to be 8, got %d", config.Dispatcher.MaxConcurrentRequests)
	}
	if config.Dispatcher.MaxAttempts != 5 {
		t.Errorf("Expected max attempts to be 5, got %d", config.Dispatcher.MaxAttempts)
	}
	if config.Output.BaseDirectory != "/tmp/test-records" {
		t.Errorf("Expected output directory to be /tmp/test-records, got %s", config.Output.BaseDirectory)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Expected log level to be debug, got %s", config.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name: "missing default rate limit entry",
			mutate: func(c *Config) {
				delete(c.RateLimits, DefaultDestination)
			},
			wantError: true,
		},
		{
			name: "burst limit above requests per minute",
			mutate: func(c *Config) {
				rl := c.RateLimits["twitter"]
				rl.BurstLimit = rl.RequestsPerMinute + 1
				c.RateLimits["twitter"] = rl
			},
			wantError: true,
		},
		{
			name: "non-positive window ceiling",
			mutate: func(c *Config) {
				rl := c.RateLimits["twitter"]
				rl.RequestsPerHour = 0
				c.RateLimits["twitter"] = rl
			},
			wantError: true,
		},
		{
			name: "jitter fraction out of range",
			mutate: func(c *Config) {
				rl := c.RateLimits[DefaultDestination]
				rl.JitterFraction = 1.0
				c.RateLimits[DefaultDestination] = rl
			},
			wantError: true,
		},
		{
			name: "proxies enabled without test URLs",
			mutate: func(c *Config) {
				c.Proxy.Enabled = true
				c.Proxy.TestURLs = nil
			},
			wantError: true,
		},
		{
			name: "retry delay bounds inverted",
			mutate: func(c *Config) {
				c.Dispatcher.RetryBaseDelay = 10 * time.Second
				c.Dispatcher.RetryMaxDelay = 4 * time.Second
			},
			wantError: true,
		},
		{
			name: "invalid log level",
			mutate: func(c *Config) {
				c.Logging.Level = "verbose"
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantError && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.wantError && err != nil {
				t.Errorf("Expected config to validate, got %v", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "smscraper.yaml")

	content := `
rate_limits:
  twitter:
    requests_per_minute: 5
    requests_per_hour: 100
    requests_per_day: 400
    burst_limit: 2
    cooldown_period: 4s
    jitter_fraction: 0.2
dispatcher:
  max_attempts: 7
logging:
  level: warn
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	config := DefaultConfig()
	if err := config.LoadFromFile(path); err != nil {
		t.Fatalf("Failed to load config file: %v", err)
	}

	if config.RateLimits["twitter"].RequestsPerMinute != 5 {
		t.Errorf("Expected twitter requests per minute to be 5, got %d", config.RateLimits["twitter"].RequestsPerMinute)
	}
	if config.RateLimits["twitter"].CooldownPeriod != 4*time.Second {
		t.Errorf("Expected twitter cooldown to be 4s, got %v", config.RateLimits["twitter"].CooldownPeriod)
	}
	if config.Dispatcher.MaxAttempts != 7 {
		t.Errorf("Expected max attempts to be 7, got %d", config.Dispatcher.MaxAttempts)
	}
	if config.Logging.Level != "warn" {
		t.Errorf("Expected log level to be warn, got %s", config.Logging.Level)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	config := DefaultConfig()
	if err := config.LoadFromFile(filepath.Join(t.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Error("Expected an error for an explicitly named missing file")
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	config := DefaultConfig()
	config.MergeCommandLineFlags(map[string]interface{}{
		"output":       "/tmp/flag-records",
		"concurrent":   2,
		"max-attempts": 4,
		"proxies":      true,
		"log-level":    "error",
	})

	if config.Output.BaseDirectory != "/tmp/flag-records" {
		t.Errorf("Expected output directory to be /tmp/flag-records, got %s", config.Output.BaseDirectory)
	}
	if config.Dispatcher.MaxConcurrentRequests != 2 {
		t.Errorf("Expected max concurrent requests to be 2, got %d", config.Dispatcher.MaxConcurrentRequests)
	}
	if config.Dispatcher.MaxAttempts != 4 {
		t.Errorf("Expected max attempts to be 4, got %d", config.Dispatcher.MaxAttempts)
	}
	if !config.Proxy.Enabled {
		t.Error("Expected proxies to be enabled")
	}
	if config.Logging.Level != "error" {
		t.Errorf("Expected log level to be error, got %s", config.Logging.Level)
	}
}

func TestRateLimitFor(t *testing.T) {
	config := DefaultConfig()

	if got := config.RateLimitFor("Twitter"); got.RequestsPerMinute != 15 {
		t.Errorf("Expected the twitter entry regardless of case, got %+v", got)
	}
	if got := config.RateLimitFor("mastodon"); got != config.RateLimits[DefaultDestination] {
		t.Errorf("Expected unknown keys to fall back to the default entry, got %+v", got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "smscraper.yaml")

	original := DefaultConfig()
	original.Logging.Level = "debug"
	if err := original.Save(path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded := DefaultConfig()
	if err := loaded.LoadFromFile(path); err != nil {
		t.Fatalf("Failed to reload config: %v", err)
	}
	if loaded.Logging.Level != "debug" {
		t.Errorf("Expected reloaded log level to be debug, got %s", loaded.Logging.Level)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("Reloaded config must validate: %v", err)
	}
}
