package conf

import (
	"os"
	"strconv"
	"time"
)

// Config represents application configuration
type Config struct {
	// Bsky configuration
	Bsky BskyConfig

	// Mistral configuration
	Mistral MistralConfig

	// Poll configuration
	Poll PollConfig

	// Audit configuration (optional)
	Audit AuditConfig

	// Metrics configuration (optional)
	Metrics MetricsConfig

	// Debug mode
	Debug bool
}

// BskyConfig contains AT Protocol account configuration
type BskyConfig struct {
	PDSHost  string
	Handle   string
	Password string
}

// MistralConfig contains Mistral API configuration
type MistralConfig struct {
	APIKey         string
	Model          string
	Categories     []string
	RateLimitDelay time.Duration
}

// PollConfig contains poll loop configuration
type PollConfig struct {
	Interval      time.Duration
	RecoveryDelay time.Duration
}

// AuditConfig contains the optional audit store configuration
type AuditConfig struct {
	DBPath string
}

// MetricsConfig contains the optional Prometheus listener configuration
type MetricsConfig struct {
	Addr string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	pdsHost := os.Getenv("ATP_PDS_HOST")
	if pdsHost == "" {
		pdsHost = "https://bsky.social"
	}

	// Poll interval
	pollSeconds := 60
	if val := os.Getenv("POLL_INTERVAL_SECONDS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			pollSeconds = parsed
		}
	}

	// Recovery delay after an unexpected cycle error
	recoverySeconds := 10
	if val := os.Getenv("RECOVERY_DELAY_SECONDS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			recoverySeconds = parsed
		}
	}

	// Pre-attempt pacing for Mistral requests
	rateLimitDelay := 1500 * time.Millisecond
	if val := os.Getenv("RATE_LIMIT_DELAY_SECONDS"); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil && parsed >= 0 {
			rateLimitDelay = time.Duration(parsed * float64(time.Second))
		}
	}

	return &Config{
		Bsky: BskyConfig{
			PDSHost:  pdsHost,
			Handle:   os.Getenv("ATP_AUTH_HANDLE"),
			Password: os.Getenv("ATP_AUTH_PASSWORD"),
		},
		Mistral: MistralConfig{
			APIKey:         os.Getenv("MISTRAL_API_KEY"),
			Model:          os.Getenv("MISTRAL_MODEL"),
			Categories:     LoadCategories(os.Getenv("CATEGORIES_CONFIG_PATH")),
			RateLimitDelay: rateLimitDelay,
		},
		Poll: PollConfig{
			Interval:      time.Duration(pollSeconds) * time.Second,
			RecoveryDelay: time.Duration(recoverySeconds) * time.Second,
		},
		Audit: AuditConfig{
			DBPath: os.Getenv("AUDIT_DB_PATH"),
		},
		Metrics: MetricsConfig{
			Addr: os.Getenv("METRICS_ADDR"),
		},
		Debug: os.Getenv("DEBUG") == "true",
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Bsky.Handle == "" || c.Bsky.Password == "" {
		return &ConfigError{Field: "ATP_AUTH_HANDLE/ATP_AUTH_PASSWORD", Message: "required"}
	}
	if c.Mistral.APIKey == "" {
		return &ConfigError{Field: "MISTRAL_API_KEY", Message: "required"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
