package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration that reads and writes JSON as a string such as "250ms".
type Duration time.Duration

// MarshalJSON encodes the duration as a Go duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a Go duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(n)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LogConfig selects log verbosity and output encoding.
type LogConfig struct {
	Level  string `json:"level,omitempty"`  // "debug", "info", "warn", "error"
	Format string `json:"format,omitempty"` // "text" (console) or "json"
}

// RetryConfig configures exponential backoff for retried task bodies.
type RetryConfig struct {
	InitialInterval     Duration `json:"initial_interval,omitempty"`
	MaxInterval         Duration `json:"max_interval,omitempty"`
	MaxElapsedTime      Duration `json:"max_elapsed_time,omitempty"`
	Multiplier          float64  `json:"multiplier,omitempty"`
	RandomizationFactor float64  `json:"randomization_factor,omitempty"`
}

// KindConfig holds per-kind task settings. Job file tasks name a kind.
type KindConfig struct {
	Retry         bool     `json:"retry,omitempty"`          // Wrap bodies with retry and circuit breaker
	PriorityBoost int      `json:"priority_boost,omitempty"` // Added to each task's priority
	Resources     []string `json:"resources,omitempty"`      // Resources held exclusively while running
}

// Config is the top-level configuration.
type Config struct {
	Workers         int                   `json:"workers,omitempty"`          // Worker loops (0 = GOMAXPROCS)
	RecheckInterval Duration              `json:"recheck_interval,omitempty"` // Blocked Next re-check period
	Log             LogConfig             `json:"log"`
	MetricsAddr     string                `json:"metrics_addr,omitempty"` // Listen address for /metrics, empty disables
	ProfileDB       string                `json:"profile_db,omitempty"`   // SQLite span database, empty disables
	Retry           RetryConfig           `json:"retry"`
	Kinds           map[string]KindConfig `json:"kinds"`
}
