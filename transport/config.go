package transport

import (
	"log/slog"

	"github.com/tailored-agentic-units/searchmap/observability"
)

// Config holds transport initialization parameters.
type Config struct {
	// BufferSize is the capacity of the channels to and from the remote.
	BufferSize int `json:"buffer_size,omitempty" yaml:"buffer_size,omitempty"`

	// Observer names a registered observability.Observer.
	Observer string `json:"observer,omitempty" yaml:"observer,omitempty"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize: 100,
		Observer:   "noop",
		Logger:     slog.Default(),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.BufferSize > 0 {
		c.BufferSize = source.BufferSize
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
	if source.Logger != nil {
		c.Logger = source.Logger
	}
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
