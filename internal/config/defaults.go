package config

import "time"

// DefaultConfig returns the default configuration with the built-in task kinds.
func DefaultConfig() *Config {
	return &Config{
		Workers:         0,
		RecheckInterval: Duration(time.Second),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Retry: RetryConfig{
			InitialInterval:     Duration(100 * time.Millisecond),
			MaxInterval:         Duration(10 * time.Second),
			MaxElapsedTime:      Duration(2 * time.Minute),
			Multiplier:          2.0,
			RandomizationFactor: 0.5,
		},
		Kinds: map[string]KindConfig{
			"tile": {
				Retry: true,
			},
			"composite": {
				PriorityBoost: 10,
				Resources:     []string{"framebuffer"},
			},
			"io": {
				Resources: []string{"output"},
			},
		},
	}
}
