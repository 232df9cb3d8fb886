package server

import "log/slog"

// Config holds server parameters.
type Config struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`

	// Snapshot is a file loaded at start and written on shutdown. Empty
	// disables persistence.
	Snapshot string `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:   "127.0.0.1:8080",
		Logger: slog.Default(),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Addr != "" {
		c.Addr = source.Addr
	}
	if source.Snapshot != "" {
		c.Snapshot = source.Snapshot
	}
	if source.Logger != nil {
		c.Logger = source.Logger
	}
}
