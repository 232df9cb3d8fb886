package engine

import (
	"log/slog"
	"time"
)

// Matcher names.
const (
	MatcherSubstring = "substring"
	MatcherBleve     = "bleve"
)

// Config holds reference engine parameters.
type Config struct {
	// Matcher selects the search backend: "substring" or "bleve".
	Matcher string `json:"matcher,omitempty" yaml:"matcher,omitempty"`

	// BootDelay postpones the loaded signal, as a duration string.
	BootDelay string `json:"boot_delay,omitempty" yaml:"boot_delay,omitempty"`

	// SearchDelay postpones every search response. Delayed searches can be
	// stopped with CANCEL_SEARCH.
	SearchDelay string `json:"search_delay,omitempty" yaml:"search_delay,omitempty"`

	// FailBoot makes the engine report a boot failure.
	FailBoot bool `json:"fail_boot,omitempty" yaml:"fail_boot,omitempty"`

	BufferSize int `json:"buffer_size,omitempty" yaml:"buffer_size,omitempty"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Matcher:     MatcherSubstring,
		BootDelay:   "0s",
		SearchDelay: "0s",
		BufferSize:  100,
		Logger:      slog.Default(),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Matcher != "" {
		c.Matcher = source.Matcher
	}
	if source.BootDelay != "" {
		c.BootDelay = source.BootDelay
	}
	if source.SearchDelay != "" {
		c.SearchDelay = source.SearchDelay
	}
	if source.FailBoot {
		c.FailBoot = true
	}
	if source.BufferSize > 0 {
		c.BufferSize = source.BufferSize
	}
	if source.Logger != nil {
		c.Logger = source.Logger
	}
}

func (c *Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *Config) duration(name, value string) time.Duration {
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		c.logger().Warn("ignoring invalid duration", slog.String("field", name), slog.String("value", value))
		return 0
	}
	return d
}
