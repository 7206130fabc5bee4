// Package config loads application configuration from environment variables,
// with an optional .env file picked up from the working directory or
// NETSEC_ENV_FILE.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Host    string
	Port    int
	Reload  bool
	Workers int

	// Database settings
	DatabaseURL  string
	DatabaseEcho bool

	// Logging settings
	LogLevel  string
	LogFormat string

	// Scheduler settings
	SchedulerEnabled  bool
	SchedulerTimezone string

	// Auth settings
	AuthEnabled bool
	APIKey      string

	// Alert pipeline settings
	DedupWindowSeconds int
	MaxAlertsPerMinute int
	Dispatch           DispatchConfig

	// Tool settings
	ScanTimeout        time.Duration
	MaxConcurrentScans int

	// Monitoring settings
	OfflineThresholdMinutes int
}

// DispatchConfig configures alert notification channels.
type DispatchConfig struct {
	WebhookURL    string
	EmailEnabled  bool
	EmailSMTPHost string
	EmailSMTPPort int
	EmailFrom     string
	EmailTo       string
}

// Load reads configuration from the environment. A .env file, when present,
// is loaded first without overriding variables already set.
func Load() (*Config, error) {
	envFile := os.Getenv("NETSEC_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			log.Warn().Err(err).Str("file", envFile).Msg("Failed to load .env file")
		}
	}

	cfg := &Config{
		Host:    getEnvString("NETSEC_HOST", "127.0.0.1"),
		Port:    getEnvInt("NETSEC_PORT", 8420),
		Reload:  getEnvBool("NETSEC_RELOAD", false),
		Workers: getEnvInt("NETSEC_WORKERS", 1),

		DatabaseURL:  getEnvString("NETSEC_DATABASE_URL", "netsec.db"),
		DatabaseEcho: getEnvBool("NETSEC_DATABASE_ECHO", false),

		LogLevel:  getEnvString("NETSEC_LOG_LEVEL", "info"),
		LogFormat: getEnvString("NETSEC_LOG_FORMAT", "auto"),

		SchedulerEnabled:  getEnvBool("NETSEC_SCHEDULER_ENABLED", true),
		SchedulerTimezone: getEnvString("NETSEC_SCHEDULER_TIMEZONE", "UTC"),

		AuthEnabled: getEnvBool("NETSEC_AUTH_ENABLED", false),
		APIKey:      getEnvString("NETSEC_API_KEY", ""),

		DedupWindowSeconds: getEnvInt("NETSEC_ALERTS_DEDUP_WINDOW_SECONDS", 300),
		MaxAlertsPerMinute: getEnvInt("NETSEC_ALERTS_MAX_PER_MINUTE", 100),
		Dispatch: DispatchConfig{
			WebhookURL:    getEnvString("NETSEC_DISPATCH_WEBHOOK_URL", ""),
			EmailEnabled:  getEnvBool("NETSEC_DISPATCH_EMAIL_ENABLED", false),
			EmailSMTPHost: getEnvString("NETSEC_DISPATCH_EMAIL_SMTP_HOST", ""),
			EmailSMTPPort: getEnvInt("NETSEC_DISPATCH_EMAIL_SMTP_PORT", 587),
			EmailFrom:     getEnvString("NETSEC_DISPATCH_EMAIL_FROM", ""),
			EmailTo:       getEnvString("NETSEC_DISPATCH_EMAIL_TO", ""),
		},

		ScanTimeout:        getEnvDuration("NETSEC_TOOLS_SCAN_TIMEOUT", 300*time.Second),
		MaxConcurrentScans: getEnvInt("NETSEC_TOOLS_MAX_CONCURRENT_SCANS", 3),

		OfflineThresholdMinutes: getEnvInt("NETSEC_OFFLINE_THRESHOLD_MINUTES", 15),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.DedupWindowSeconds <= 0 {
		return fmt.Errorf("dedup window must be positive, got %d", c.DedupWindowSeconds)
	}
	if c.MaxConcurrentScans < 1 {
		return fmt.Errorf("max concurrent scans must be at least 1, got %d", c.MaxConcurrentScans)
	}
	if c.AuthEnabled && c.APIKey == "" {
		return fmt.Errorf("auth enabled but no API key configured")
	}
	if c.Dispatch.EmailEnabled && c.Dispatch.EmailSMTPHost == "" {
		return fmt.Errorf("email dispatch enabled but no SMTP host configured")
	}
	return nil
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DedupWindow returns the dedup window as a duration.
func (c *Config) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowSeconds) * time.Second
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid integer in environment, using default")
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid boolean in environment, using default")
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	// Accept plain seconds or Go duration syntax.
	if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid duration in environment, using default")
		return fallback
	}
	return d
}
