// Package config loads the worker configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Document source
	DriveRootFolderID string

	// State database (dedup registry + vendor memory)
	StateDBPath string

	// Local temp area for downloaded documents, partitioned per tenant.
	TempDir string

	// Ledger
	ReportName string

	// Inference
	GeminiModel    string
	MinResponseLen int

	// Vendor memory
	VendorFuzzyThreshold int

	// Scheduling
	PollInterval         time.Duration
	MaxConcurrentTenants int

	// Retry policy for external calls
	RetryMaxAttempts   int
	RetryInitialDelay  time.Duration
	RetryBackoffFactor float64

	// Optional cycle-summary events
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

func Load() *Config {
	return &Config{
		DriveRootFolderID: getEnv("DRIVE_ROOT_FOLDER_ID", ""),

		StateDBPath: getEnv("STATE_DB_PATH", "./data/budgetflow.db"),
		TempDir:     getEnv("TEMP_DIR", filepath.Join(os.TempDir(), "budgetflow")),

		ReportName: getEnv("REPORT_NAME", "BudgetFlow Report"),

		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash-lite"),
		MinResponseLen: getEnvInt("EXTRACT_MIN_RESPONSE_LEN", 20),

		VendorFuzzyThreshold: getEnvInt("VENDOR_FUZZY_THRESHOLD", 3),

		PollInterval:         getEnvDuration("POLL_INTERVAL", 5*time.Minute),
		MaxConcurrentTenants: getEnvInt("MAX_CONCURRENT_TENANTS", 4),

		RetryMaxAttempts:   getEnvInt("RETRY_MAX_ATTEMPTS", 5),
		RetryInitialDelay:  getEnvDuration("RETRY_INITIAL_DELAY", 500*time.Millisecond),
		RetryBackoffFactor: getEnvFloat("RETRY_BACKOFF_FACTOR", 2.0),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "budgetflow"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "cycle_summaries"),
	}
}

// Validate checks the configuration and returns a single error listing
// every problem found.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.DriveRootFolderID) == "" {
		problems = append(problems, "DRIVE_ROOT_FOLDER_ID must be set")
	}

	if c.StateDBPath == "" {
		problems = append(problems, "state database path cannot be empty")
	} else if dir := filepath.Dir(c.StateDBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				problems = append(problems, fmt.Sprintf("cannot create state database directory %q: %v", dir, err))
			}
		}
	}

	if c.MaxConcurrentTenants < 1 {
		problems = append(problems, fmt.Sprintf("invalid MAX_CONCURRENT_TENANTS %d: must be at least 1", c.MaxConcurrentTenants))
	}
	if c.PollInterval < time.Second {
		problems = append(problems, fmt.Sprintf("invalid POLL_INTERVAL %s: must be at least 1s", c.PollInterval))
	}
	if c.VendorFuzzyThreshold < 0 {
		problems = append(problems, fmt.Sprintf("invalid VENDOR_FUZZY_THRESHOLD %d: must not be negative", c.VendorFuzzyThreshold))
	}
	if c.RetryMaxAttempts < 1 {
		problems = append(problems, fmt.Sprintf("invalid RETRY_MAX_ATTEMPTS %d: must be at least 1", c.RetryMaxAttempts))
	}
	if c.RetryBackoffFactor < 1 {
		problems = append(problems, fmt.Sprintf("invalid RETRY_BACKOFF_FACTOR %g: must be at least 1", c.RetryBackoffFactor))
	}
	if c.MinResponseLen < 1 {
		problems = append(problems, fmt.Sprintf("invalid EXTRACT_MIN_RESPONSE_LEN %d: must be at least 1", c.MinResponseLen))
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL %q: %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme %q: must be amqp or amqps", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			problems = append(problems, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
