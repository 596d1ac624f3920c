package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Backend     BackendConfig     `toml:"backend"`
	Tracker     TrackerConfig     `toml:"tracker"`
	Storage     StorageConfig     `toml:"storage"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
	Logging     LoggingConfig     `toml:"logging"`
	WebSocket   WebSocketConfig   `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// BackendConfig describes the job backend endpoints. Each job kind has its
// own base URL because uploads and analyses are served by different services.
type BackendConfig struct {
	UploadURL      string `toml:"upload_url"`      // Base URL for the document processing service
	AnalysisURL    string `toml:"analysis_url"`    // Base URL for the multi-agent analysis service
	RequestTimeout string `toml:"request_timeout"` // e.g., "10s" - per-request HTTP timeout
}

// TrackerConfig controls polling behaviour per job kind.
type TrackerConfig struct {
	UploadPollInterval   string  `toml:"upload_poll_interval"`   // e.g., "2s"
	UploadDeadline       string  `toml:"upload_deadline"`        // e.g., "5m"
	AnalysisPollInterval string  `toml:"analysis_poll_interval"` // e.g., "3s"
	AnalysisDeadline     string  `toml:"analysis_deadline"`      // e.g., "2m"
	MaxTransientFailures int     `toml:"max_transient_failures"` // consecutive poll failures before escalating to failed
	PollRatePerSecond    float64 `toml:"poll_rate_per_second"`   // shared rate limit across all pollers (0 = unlimited)
	PollBurst            int     `toml:"poll_burst"`             // rate limiter burst size
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// MaintenanceConfig controls the retention sweeper for terminal job records.
type MaintenanceConfig struct {
	Enabled   bool   `toml:"enabled"`
	Schedule  string `toml:"schedule"`  // Cron schedule format, e.g., "*/15 * * * *"
	Retention string `toml:"retention"` // e.g., "168h" - how long terminal records are kept
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// WebSocketConfig contains configuration for WebSocket event streaming
type WebSocketConfig struct {
	// Whitelist of event types to broadcast via WebSocket. Empty list allows all events.
	// Example: ["job_updated", "job_terminal", "batch_complete"]
	AllowedEvents []string `toml:"allowed_events"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Backend: BackendConfig{
			UploadURL:      "http://localhost:9000",
			AnalysisURL:    "http://localhost:9001",
			RequestTimeout: "10s",
		},
		Tracker: TrackerConfig{
			UploadPollInterval:   "2s",
			UploadDeadline:       "5m",
			AnalysisPollInterval: "3s",
			AnalysisDeadline:     "2m",
			MaxTransientFailures: 3,
			PollRatePerSecond:    20,
			PollBurst:            5,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/casetrack",
				ResetOnStartup: false,
			},
		},
		Maintenance: MaintenanceConfig{
			Enabled:   true,
			Schedule:  "*/15 * * * *",
			Retention: "168h",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		WebSocket: WebSocketConfig{
			AllowedEvents: []string{},
		},
	}
}

// LoadFromFile loads configuration from a single file (convenience wrapper)
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. Priority system: CLI flags > Environment variables > Last config file > ... > Defaults
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CASETRACK_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("CASETRACK_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CASETRACK_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Backend configuration
	if url := os.Getenv("CASETRACK_UPLOAD_URL"); url != "" {
		config.Backend.UploadURL = url
	}
	if url := os.Getenv("CASETRACK_ANALYSIS_URL"); url != "" {
		config.Backend.AnalysisURL = url
	}
	if timeout := os.Getenv("CASETRACK_REQUEST_TIMEOUT"); timeout != "" {
		config.Backend.RequestTimeout = timeout
	}

	// Tracker configuration
	if interval := os.Getenv("CASETRACK_UPLOAD_POLL_INTERVAL"); interval != "" {
		config.Tracker.UploadPollInterval = interval
	}
	if interval := os.Getenv("CASETRACK_ANALYSIS_POLL_INTERVAL"); interval != "" {
		config.Tracker.AnalysisPollInterval = interval
	}
	if deadline := os.Getenv("CASETRACK_UPLOAD_DEADLINE"); deadline != "" {
		config.Tracker.UploadDeadline = deadline
	}
	if deadline := os.Getenv("CASETRACK_ANALYSIS_DEADLINE"); deadline != "" {
		config.Tracker.AnalysisDeadline = deadline
	}
	if max := os.Getenv("CASETRACK_MAX_TRANSIENT_FAILURES"); max != "" {
		if m, err := strconv.Atoi(max); err == nil {
			config.Tracker.MaxTransientFailures = m
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("CASETRACK_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("CASETRACK_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("CASETRACK_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ParseDurationOr parses a duration string, falling back to a default on
// empty or invalid input. Config durations are strings so TOML files can
// use human-readable values like "2s" or "5m".
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
