package searchmap_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tailored-agentic-units/searchmap/searchmap"
)

func TestDefaultConfig(t *testing.T) {
	cfg := searchmap.DefaultConfig()

	if cfg.CacheSize != 256 {
		t.Errorf("CacheSize = %d, want 256", cfg.CacheSize)
	}
	if cfg.Index.Correlation != "unique" {
		t.Errorf("Index.Correlation = %q, want unique", cfg.Index.Correlation)
	}
	if cfg.Transport.BufferSize != 100 {
		t.Errorf("Transport.BufferSize = %d, want 100", cfg.Transport.BufferSize)
	}
	if cfg.Engine.Matcher != "substring" {
		t.Errorf("Engine.Matcher = %q, want substring", cfg.Engine.Matcher)
	}
}

func TestConfig_MergeLogger(t *testing.T) {
	cfg := searchmap.DefaultConfig()
	cfg.Merge(&searchmap.Config{Logger: quiet})

	if cfg.Index.Logger != quiet || cfg.Transport.Logger != quiet || cfg.Engine.Logger != quiet {
		t.Error("Merge did not hand the logger to every section")
	}
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "json",
			file: "searchmap.json",
			content: `{
				"cache_size": 8,
				"index": {"correlation": "query", "search_timeout": "5s"},
				"engine": {"matcher": "bleve"}
			}`,
		},
		{
			name: "yaml",
			file: "searchmap.yaml",
			content: `
cache_size: 8
index:
  correlation: query
  search_timeout: 5s
engine:
  matcher: bleve
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			cfg, err := searchmap.LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			if cfg.CacheSize != 8 {
				t.Errorf("CacheSize = %d, want 8", cfg.CacheSize)
			}
			if cfg.Index.Correlation != "query" || cfg.Index.SearchTimeout != "5s" {
				t.Errorf("Index = %+v", cfg.Index)
			}
			if cfg.Engine.Matcher != "bleve" {
				t.Errorf("Engine.Matcher = %q, want bleve", cfg.Engine.Matcher)
			}
			if cfg.Transport.BufferSize != 100 {
				t.Errorf("Transport.BufferSize = %d, want default 100", cfg.Transport.BufferSize)
			}
		})
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := searchmap.LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("LoadConfig(missing) error = nil")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := searchmap.LoadConfig(path); err == nil {
		t.Error("LoadConfig(bad json) error = nil")
	}
}
