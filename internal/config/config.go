// Package config loads client settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"eitc-assistant/internal/integrations/assistant"
	"eitc-assistant/internal/resilience"
)

const DefaultServiceURL = "http://localhost:5000"

// Config holds the settings shared by the terminal client and the relay.
type Config struct {
	// Answering service
	ServiceURL     string
	RequestTimeout time.Duration

	// Resilience
	RetryAttempts    int
	RetryBaseDelay   time.Duration
	ChatInterval     time.Duration
	FeedbackInterval time.Duration

	// Client state
	Language string
	StateDSN string

	// Relay only
	StateTable  string
	ParamPrefix string

	LogMode string
}

// Load reads configuration from environment variables. ServiceURL is left
// empty when EITC_SERVICE_URL is unset so callers can resolve it elsewhere.
func Load() *Config {
	return &Config{
		ServiceURL:       strings.TrimSpace(os.Getenv("EITC_SERVICE_URL")),
		RequestTimeout:   getEnvMillis("EITC_REQUEST_TIMEOUT_MS", 30000),
		RetryAttempts:    getEnvInt("EITC_RETRY_ATTEMPTS", 3),
		RetryBaseDelay:   getEnvMillis("EITC_RETRY_BASE_MS", 1000),
		ChatInterval:     getEnvMillis("EITC_CHAT_INTERVAL_MS", 1000),
		FeedbackInterval: getEnvMillis("EITC_FEEDBACK_INTERVAL_MS", 2000),
		Language:         strings.ToLower(getEnv("EITC_LANGUAGE", "")),
		StateDSN:         getEnv("EITC_STATE_DSN", "file:eitc_state.db"),
		StateTable:       getEnv("STATE_TABLE", ""),
		ParamPrefix:      strings.TrimRight(getEnv("PARAM_PREFIX", ""), "/"),
		LogMode:          getEnv("LOG_MODE", "dev"),
	}
}

// ServiceURLOrDefault returns ServiceURL, or the local development URL.
func (c *Config) ServiceURLOrDefault() string {
	if c.ServiceURL != "" {
		return c.ServiceURL
	}
	return DefaultServiceURL
}

func (c *Config) RetryPolicy() resilience.RetryPolicy {
	return resilience.RetryPolicy{MaxAttempts: c.RetryAttempts, BaseDelay: c.RetryBaseDelay}
}

// Intervals applies the configured chat and feedback spacing on top of the
// client defaults.
func (c *Config) Intervals() assistant.Intervals {
	in := assistant.DefaultIntervals()
	in.Chat = c.ChatInterval
	in.Feedback = c.FeedbackInterval
	return in
}

// ClientOptions are the assistant options derived from c.
func (c *Config) ClientOptions() []assistant.Option {
	return []assistant.Option{
		assistant.WithTimeout(c.RequestTimeout),
		assistant.WithRetryPolicy(c.RetryPolicy()),
		assistant.WithIntervals(c.Intervals()),
	}
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(strings.TrimSpace(val)); err == nil && intVal >= 0 {
			return intVal
		}
	}
	return defaultVal
}

func getEnvMillis(key string, defaultMS int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMS)) * time.Millisecond
}
