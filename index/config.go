package index

import (
	"log/slog"
	"time"

	"github.com/tailored-agentic-units/searchmap/observability"
)

// Correlation modes.
const (
	// CorrelationUnique assigns every search its own UUIDv7 id and carries
	// the query separately.
	CorrelationUnique = "unique"
	// CorrelationQuery uses the query text as the id. Concurrent searches
	// for identical text collide; the older one is superseded.
	CorrelationQuery = "query"
)

const defaultSearchTimeout = 30 * time.Second

// Config holds index client parameters.
type Config struct {
	Correlation string `json:"correlation,omitempty" yaml:"correlation,omitempty"`

	// SearchTimeout bounds how long a search waits for its response, as a
	// duration string ("30s"). "0" disables the bound.
	SearchTimeout string `json:"search_timeout,omitempty" yaml:"search_timeout,omitempty"`

	// Observer names a registered observability.Observer.
	Observer string `json:"observer,omitempty" yaml:"observer,omitempty"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Correlation:   CorrelationUnique,
		SearchTimeout: defaultSearchTimeout.String(),
		Observer:      "noop",
		Logger:        slog.Default(),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Correlation != "" {
		c.Correlation = source.Correlation
	}
	if source.SearchTimeout != "" {
		c.SearchTimeout = source.SearchTimeout
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
	if source.Logger != nil {
		c.Logger = source.Logger
	}
}

// Timeout parses SearchTimeout. Unparseable values fall back to the default.
func (c *Config) Timeout() time.Duration {
	if c.SearchTimeout == "" {
		return defaultSearchTimeout
	}
	d, err := time.ParseDuration(c.SearchTimeout)
	if err != nil || d < 0 {
		c.logger().Warn(
			"invalid search timeout, using default",
			slog.String("search_timeout", c.SearchTimeout),
			slog.Duration("default", defaultSearchTimeout),
		)
		return defaultSearchTimeout
	}
	return d
}

func (c *Config) observer() observability.Observer {
	return observability.Resolve(c.Observer, c.logger())
}

func (c *Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
