package searchmap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/searchmap/engine"
	"github.com/tailored-agentic-units/searchmap/index"
	"github.com/tailored-agentic-units/searchmap/transport"
)

const defaultCacheSize = 256

// Config holds initialization parameters for a Map and the engine behind it.
// Each section delegates to that package's Config.
type Config struct {
	Transport transport.Config `json:"transport" yaml:"transport"`
	Index     index.Config     `json:"index" yaml:"index"`
	Engine    engine.Config    `json:"engine" yaml:"engine"`

	// CacheSize bounds the search result cache. Negative disables it.
	CacheSize int `json:"cache_size,omitempty" yaml:"cache_size,omitempty"`

	// Logger is handed to every section that has none.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults for all sections.
func DefaultConfig() Config {
	return Config{
		Transport: transport.DefaultConfig(),
		Index:     index.DefaultConfig(),
		Engine:    engine.DefaultConfig(),
		CacheSize: defaultCacheSize,
		Logger:    slog.Default(),
	}
}

// Merge applies non-zero values from source into c, delegating to each
// section's Merge method.
func (c *Config) Merge(source *Config) {
	c.Transport.Merge(&source.Transport)
	c.Index.Merge(&source.Index)
	c.Engine.Merge(&source.Engine)

	if source.CacheSize != 0 {
		c.CacheSize = source.CacheSize
	}
	if source.Logger != nil {
		c.Logger = source.Logger
		c.Transport.Logger = source.Logger
		c.Index.Logger = source.Logger
		c.Engine.Logger = source.Logger
	}
}

// LoadConfig reads a JSON or YAML config file, chosen by extension, merges
// it with defaults, and returns the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &loaded)
	default:
		err = json.Unmarshal(data, &loaded)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
