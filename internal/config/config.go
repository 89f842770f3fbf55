package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds configuration for both binaries, loaded from YAML and env.
type Config struct {
	DatabaseURL string

	ServerPort string

	Stations []StationConfig

	RefreshRate        time.Duration
	OutputMode         string // "postgres" or "stdout"
	MaxRetries         int
	RetryDelay         time.Duration
	BreakerMaxFailures int
	BreakerCooldown    time.Duration

	CacheRetention       time.Duration
	StalenessThreshold   time.Duration
	MonitorInterval      time.Duration
	ReconnectBaseDelay   time.Duration
	ReconnectMaxAttempts int
	WSIdleTimeout        time.Duration
	RateLimitRPS         int
	RateLimitBurst       int
	ShutdownTimeout      time.Duration
	SuspendCheckInterval time.Duration
	SuspendThreshold     time.Duration
	DefaultStation       string
}

// StationConfig describes one upstream feed.
type StationConfig struct {
	Name             string
	URL              string
	Timeout          time.Duration
	Headers          map[string]string
	Timezone         string
	TimeFormat       string
	StaleDataTimeout time.Duration
}

type fileConfig struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`

	Server struct {
		Port                 string `yaml:"port"`
		CacheRetention       string `yaml:"cache_retention"`
		StalenessThreshold   string `yaml:"staleness_threshold"`
		MonitorInterval      string `yaml:"monitor_interval"`
		ReconnectBaseDelay   string `yaml:"reconnect_base_delay"`
		ReconnectMaxAttempts int    `yaml:"reconnect_max_attempts"`
		WSIdleTimeout        string `yaml:"ws_idle_timeout"`
		RateLimitRPS         int    `yaml:"rate_limit_rps"`
		RateLimitBurst       int    `yaml:"rate_limit_burst"`
		ShutdownTimeout      string `yaml:"shutdown_timeout"`
		SuspendCheckInterval string `yaml:"suspend_check_interval"`
		SuspendThreshold     string `yaml:"suspend_threshold"`
		DefaultStation       string `yaml:"default_station"`
	} `yaml:"server"`

	Scraper struct {
		RefreshRate        string `yaml:"refresh_rate"`
		OutputMode         string `yaml:"output_mode"`
		MaxRetries         int    `yaml:"max_retries"`
		RetryDelay         string `yaml:"retry_delay"`
		BreakerMaxFailures int    `yaml:"breaker_max_failures"`
		BreakerCooldown    string `yaml:"breaker_cooldown"`
	} `yaml:"scraper"`

	Stations []struct {
		Name             string            `yaml:"name"`
		URL              string            `yaml:"url"`
		Timeout          string            `yaml:"timeout"`
		Headers          map[string]string `yaml:"headers"`
		Timezone         string            `yaml:"timezone"`
		TimeFormat       string            `yaml:"time_format"`
		StaleDataTimeout string            `yaml:"stale_data_timeout"`
	} `yaml:"stations"`
}

// Load reads configuration from the given YAML file. DATABASE_URL and
// PORT env vars override their file counterparts.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = strings.TrimSpace(fc.Database.URL)
	}

	cfg.ServerPort = strings.TrimSpace(os.Getenv("PORT"))
	if cfg.ServerPort == "" {
		cfg.ServerPort = fc.Server.Port
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	for _, s := range fc.Stations {
		cfg.Stations = append(cfg.Stations, StationConfig{
			Name:             strings.TrimSpace(s.Name),
			URL:              strings.TrimSpace(s.URL),
			Timeout:          parseDuration(s.Timeout, 10*time.Second),
			Headers:          s.Headers,
			Timezone:         strings.TrimSpace(s.Timezone),
			TimeFormat:       strings.TrimSpace(s.TimeFormat),
			StaleDataTimeout: parseDuration(s.StaleDataTimeout, 5*time.Minute),
		})
	}

	cfg.RefreshRate = parseDuration(fc.Scraper.RefreshRate, time.Minute)
	cfg.OutputMode = strings.TrimSpace(strings.ToLower(fc.Scraper.OutputMode))
	if cfg.OutputMode == "" {
		cfg.OutputMode = "postgres"
	}
	cfg.MaxRetries = fc.Scraper.MaxRetries
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	cfg.RetryDelay = parseDuration(fc.Scraper.RetryDelay, 5*time.Second)
	cfg.BreakerMaxFailures = fc.Scraper.BreakerMaxFailures
	if cfg.BreakerMaxFailures <= 0 {
		cfg.BreakerMaxFailures = 5
	}
	cfg.BreakerCooldown = parseDuration(fc.Scraper.BreakerCooldown, time.Minute)

	cfg.CacheRetention = parseDuration(fc.Server.CacheRetention, 24*time.Hour)
	cfg.StalenessThreshold = parseDuration(fc.Server.StalenessThreshold, 5*time.Minute)
	cfg.MonitorInterval = parseDuration(fc.Server.MonitorInterval, 10*time.Second)
	cfg.ReconnectBaseDelay = parseDuration(fc.Server.ReconnectBaseDelay, 2*time.Second)
	cfg.ReconnectMaxAttempts = fc.Server.ReconnectMaxAttempts
	if cfg.ReconnectMaxAttempts <= 0 {
		cfg.ReconnectMaxAttempts = 5
	}
	cfg.WSIdleTimeout = parseDuration(fc.Server.WSIdleTimeout, 90*time.Second)
	cfg.RateLimitRPS = fc.Server.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Server.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}
	cfg.ShutdownTimeout = parseDuration(fc.Server.ShutdownTimeout, 30*time.Second)
	cfg.SuspendCheckInterval = parseDuration(fc.Server.SuspendCheckInterval, 30*time.Second)
	cfg.SuspendThreshold = parseDuration(fc.Server.SuspendThreshold, 2*time.Minute)
	cfg.DefaultStation = strings.TrimSpace(fc.Server.DefaultStation)
	if cfg.DefaultStation == "" {
		cfg.DefaultStation = "CYTZ"
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if
// parsing fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	switch cfg.OutputMode {
	case "postgres", "stdout":
		// valid
	default:
		return fmt.Errorf("scraper.output_mode must be postgres or stdout, got %q", cfg.OutputMode)
	}
	if cfg.OutputMode == "postgres" && cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL required (set env or database.url)")
	}
	for _, s := range cfg.Stations {
		if s.Name == "" {
			return fmt.Errorf("station with empty name")
		}
		if s.URL == "" {
			return fmt.Errorf("station %s: url required", s.Name)
		}
	}
	return nil
}
