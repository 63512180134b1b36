package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultDestination is the fallback destination key used when a request names
// a destination without an explicit rate limit entry.
const DefaultDestination = "default"

// Config holds all configuration options for the scraper dispatch core
type Config struct {
	// Per-destination rate limiting configuration, keyed by destination
	// (platform) name. Must contain a "default" entry.
	RateLimits map[string]RateLimitConfig `yaml:"rate_limits" json:"rate_limits"`

	// Proxy pool configuration
	Proxy ProxyConfig `yaml:"proxy" json:"proxy"`

	// Dispatcher settings
	Dispatcher DispatcherConfig `yaml:"dispatcher" json:"dispatcher"`

	// User agent rotation settings
	UserAgent UserAgentConfig `yaml:"user_agent" json:"user_agent"`

	// Output settings for scraped records
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// RateLimitConfig holds the sliding-window ceilings and cooldown behaviour for
// one destination key
type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int           `yaml:"requests_per_hour" json:"requests_per_hour"`
	RequestsPerDay    int           `yaml:"requests_per_day" json:"requests_per_day"`
	BurstLimit        int           `yaml:"burst_limit" json:"burst_limit"`
	CooldownPeriod    time.Duration `yaml:"cooldown_period" json:"cooldown_period"`
	JitterFraction    float64       `yaml:"jitter_fraction" json:"jitter_fraction"`
}

// ProxyConfig holds proxy pool configuration
type ProxyConfig struct {
	Enabled               bool          `yaml:"enabled" json:"enabled"`
	CacheFile             string        `yaml:"cache_file" json:"cache_file"`
	CacheMaxAge           time.Duration `yaml:"cache_max_age" json:"cache_max_age"`
	ValidationTimeout     time.Duration `yaml:"validation_timeout" json:"validation_timeout"`
	ValidationConcurrency int           `yaml:"validation_concurrency" json:"validation_concurrency"`
	FailThreshold         int           `yaml:"fail_threshold" json:"fail_threshold"`
	RotationInterval      time.Duration `yaml:"rotation_interval" json:"rotation_interval"`
	TestURLs              []string      `yaml:"test_urls" json:"test_urls"`
	StaticProxies         []string      `yaml:"static_proxies" json:"static_proxies"`
}

// DispatcherConfig holds request dispatcher configuration
type DispatcherConfig struct {
	MaxConcurrentRequests int           `yaml:"max_concurrent_requests" json:"max_concurrent_requests"`
	MaxAttempts           int           `yaml:"max_attempts" json:"max_attempts"`
	RetryBaseDelay        time.Duration `yaml:"retry_base_delay" json:"retry_base_delay"`
	RetryMaxDelay         time.Duration `yaml:"retry_max_delay" json:"retry_max_delay"`
	RequestTimeout        time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// UserAgentConfig holds identity rotation configuration
type UserAgentConfig struct {
	RotationRequests int           `yaml:"rotation_requests" json:"rotation_requests"`
	RotationInterval time.Duration `yaml:"rotation_interval" json:"rotation_interval"`
}

// OutputConfig holds output directory configuration for scraped records
type OutputConfig struct {
	BaseDirectory       string `yaml:"base_directory" json:"base_directory"`
	CreateTargetFolders bool   `yaml:"create_target_folders" json:"create_target_folders"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults.
// The rate limit table ships one entry per supported platform plus the
// required "default" fallback.
func DefaultConfig() *Config {
	return &Config{
		RateLimits: map[string]RateLimitConfig{
			"twitter": {
				RequestsPerMinute: 15,
				RequestsPerHour:   300,
				RequestsPerDay:    1000,
				BurstLimit:        5,
				CooldownPeriod:    2 * time.Second,
				JitterFraction:    0.1,
			},
			"instagram": {
				RequestsPerMinute: 10,
				RequestsPerHour:   200,
				RequestsPerDay:    500,
				BurstLimit:        3,
				CooldownPeriod:    3 * time.Second,
				JitterFraction:    0.1,
			},
			"facebook": {
				RequestsPerMinute: 20,
				RequestsPerHour:   400,
				RequestsPerDay:    1000,
				BurstLimit:        8,
				CooldownPeriod:    2500 * time.Millisecond,
				JitterFraction:    0.1,
			},
			"linkedin": {
				RequestsPerMinute: 8,
				RequestsPerHour:   150,
				RequestsPerDay:    300,
				BurstLimit:        2,
				CooldownPeriod:    3 * time.Second,
				JitterFraction:    0.1,
			},
			"tiktok": {
				RequestsPerMinute: 12,
				RequestsPerHour:   250,
				RequestsPerDay:    600,
				BurstLimit:        4,
				CooldownPeriod:    2500 * time.Millisecond,
				JitterFraction:    0.1,
			},
			DefaultDestination: {
				RequestsPerMinute: 30,
				RequestsPerHour:   500,
				RequestsPerDay:    2000,
				BurstLimit:        10,
				CooldownPeriod:    time.Second,
				JitterFraction:    0.1,
			},
		},
		Proxy: ProxyConfig{
			Enabled:               false,
			CacheFile:             "data/proxy_cache.json",
			CacheMaxAge:           7 * 24 * time.Hour,
			ValidationTimeout:     10 * time.Second,
			ValidationConcurrency: 10,
			FailThreshold:         3,
			RotationInterval:      5 * time.Minute,
			TestURLs: []string{
				"http://httpbin.org/ip",
				"https://httpbin.org/ip",
			},
		},
		Dispatcher: DispatcherConfig{
			MaxConcurrentRequests: 5,
			MaxAttempts:           3,
			RetryBaseDelay:        4 * time.Second,
			RetryMaxDelay:         10 * time.Second,
			RequestTimeout:        30 * time.Second,
		},
		UserAgent: UserAgentConfig{
			RotationRequests: 100,
			RotationInterval: 10 * time.Minute,
		},
		Output: OutputConfig{
			BaseDirectory:       "./data/scraped",
			CreateTargetFolders: true,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if cacheFile := os.Getenv("SMSCRAPER_PROXY_CACHE"); cacheFile != "" {
		c.Proxy.CacheFile = cacheFile
	}
	if enabled := os.Getenv("SMSCRAPER_USE_PROXIES"); enabled != "" {
		c.Proxy.Enabled = strings.ToLower(enabled) == "true"
	}

	if concurrent := os.Getenv("SMSCRAPER_MAX_CONCURRENT_REQUESTS"); concurrent != "" {
		var val int
		fmt.Sscanf(concurrent, "%d", &val)
		if val > 0 {
			c.Dispatcher.MaxConcurrentRequests = val
		}
	}
	if attempts := os.Getenv("SMSCRAPER_MAX_ATTEMPTS"); attempts != "" {
		var val int
		fmt.Sscanf(attempts, "%d", &val)
		if val > 0 {
			c.Dispatcher.MaxAttempts = val
		}
	}

	if outputDir := os.Getenv("SMSCRAPER_OUTPUT_DIR"); outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}

	if logLevel := os.Getenv("SMSCRAPER_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	// Check in order of precedence
	locations := []string{
		".smscraper.yaml",
		".smscraper.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "smscraper", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "smscraper", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".smscraper.yaml"),
		filepath.Join(os.Getenv("HOME"), ".smscraper.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	// Validate rate limits
	if _, ok := c.RateLimits[DefaultDestination]; !ok {
		errs = append(errs, errors.New("rate limit table must contain a \"default\" entry"))
	}
	for key, rl := range c.RateLimits {
		if rl.RequestsPerMinute <= 0 || rl.RequestsPerHour <= 0 || rl.RequestsPerDay <= 0 {
			errs = append(errs, fmt.Errorf("rate limit windows for %q must be positive", key))
		}
		if rl.BurstLimit <= 0 {
			errs = append(errs, fmt.Errorf("burst limit for %q must be positive", key))
		}
		if rl.BurstLimit > rl.RequestsPerMinute {
			errs = append(errs, fmt.Errorf("burst limit for %q cannot exceed requests per minute", key))
		}
		if rl.CooldownPeriod <= 0 {
			errs = append(errs, fmt.Errorf("cooldown period for %q must be positive", key))
		}
		if rl.JitterFraction < 0 || rl.JitterFraction >= 1 {
			errs = append(errs, fmt.Errorf("jitter fraction for %q must be in [0, 1)", key))
		}
	}

	// Validate proxy settings
	if c.Proxy.ValidationConcurrency <= 0 {
		errs = append(errs, errors.New("proxy validation concurrency must be positive"))
	}
	if c.Proxy.FailThreshold <= 0 {
		errs = append(errs, errors.New("proxy fail threshold must be positive"))
	}
	if c.Proxy.ValidationTimeout <= 0 {
		errs = append(errs, errors.New("proxy validation timeout must be positive"))
	}
	if c.Proxy.Enabled && len(c.Proxy.TestURLs) == 0 {
		errs = append(errs, errors.New("at least one proxy test URL is required when proxies are enabled"))
	}

	// Validate dispatcher settings
	if c.Dispatcher.MaxConcurrentRequests <= 0 {
		errs = append(errs, errors.New("max concurrent requests must be positive"))
	}
	if c.Dispatcher.MaxAttempts <= 0 {
		errs = append(errs, errors.New("max attempts must be positive"))
	}
	if c.Dispatcher.RetryBaseDelay <= 0 || c.Dispatcher.RetryMaxDelay < c.Dispatcher.RetryBaseDelay {
		errs = append(errs, errors.New("retry delay bounds must be positive and ordered"))
	}
	if c.Dispatcher.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	// Validate output settings
	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	// Validate logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// RateLimitFor returns the rate limit entry for a destination key, falling
// back to the "default" entry for unknown keys.
func (c *Config) RateLimitFor(key string) RateLimitConfig {
	if rl, ok := c.RateLimits[strings.ToLower(key)]; ok {
		return rl
	}
	return c.RateLimits[DefaultDestination]
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if concurrent, ok := flags["concurrent"].(int); ok && concurrent > 0 {
		c.Dispatcher.MaxConcurrentRequests = concurrent
	}
	if attempts, ok := flags["max-attempts"].(int); ok && attempts > 0 {
		c.Dispatcher.MaxAttempts = attempts
	}
	if useProxies, ok := flags["proxies"].(bool); ok {
		c.Proxy.Enabled = useProxies
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".smscraper.env"))

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	// Validate final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
