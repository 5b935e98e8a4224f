package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero pages", func(c *Config) { c.Scraper.Pages = 0 }},
		{"empty host", func(c *Config) { c.Scraper.Host = "" }},
		{"bad fetcher", func(c *Config) { c.Fetcher.Type = "curl" }},
		{"zero timeout", func(c *Config) { c.Fetcher.RequestTimeout = 0 }},
		{"bad storage", func(c *Config) { c.Storage.Type = "xml" }},
		{"mongo without uri", func(c *Config) { c.Storage.Type = "mongodb" }},
		{"bad storage in list", func(c *Config) { c.Storage.Type = "json,xml" }},
		{"mongo in list without uri", func(c *Config) { c.Storage.Type = "jsonl,mongodb" }},
		{"empty storage list", func(c *Config) { c.Storage.Type = " , " }},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad format", func(c *Config) { c.Logging.Format = "yaml" }},
		{"negative min stars", func(c *Config) { c.Pipeline.MinStars = -1 }},
		{"bad api port", func(c *Config) { c.API.Port = 0 }},
		{"bad metrics port", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Port = 70000
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestStorageTypes(t *testing.T) {
	s := StorageConfig{Type: " JSONL, mongodb ,,jsonl"}
	got := s.Types()
	if len(got) != 2 || got[0] != "jsonl" || got[1] != "mongodb" {
		t.Errorf("unexpected types %v", got)
	}
	if !s.Has("mongodb") || s.Has("csv") {
		t.Error("Has does not match Types")
	}

	cfg := DefaultConfig()
	cfg.Storage.Type = "csv,stdout"
	if err := Validate(cfg); err != nil {
		t.Errorf("expected comma list to validate, got %v", err)
	}
}

func TestValidateURL(t *testing.T) {
	valid := []string{
		"https://github.com/dotnet/roslyn/network/dependents",
		"http://127.0.0.1:8080/a/b/network/dependents?package_id=x",
	}
	for _, u := range valid {
		if err := ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) = %v, want nil", u, err)
		}
	}

	invalid := []string{"ftp://github.com/a", "github.com/a/b", "https://", "://bad"}
	for _, u := range invalid {
		if err := ValidateURL(u); err == nil {
			t.Errorf("ValidateURL(%q) = nil, want error", u)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ghdependents.yaml")
	content := `
scraper:
  pages: 4
  package_id: UGFja2FnZS0xNTY3NTE0NTM%3D
fetcher:
  request_timeout: 5s
pipeline:
  min_stars: 10
  exclude_owners: [dependabot, renovate]
storage:
  type: csv
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scraper.Pages != 4 {
		t.Errorf("expected 4 pages, got %d", cfg.Scraper.Pages)
	}
	if cfg.Scraper.PackageID != "UGFja2FnZS0xNTY3NTE0NTM%3D" {
		t.Errorf("unexpected package id %q", cfg.Scraper.PackageID)
	}
	if cfg.Fetcher.RequestTimeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %s", cfg.Fetcher.RequestTimeout)
	}
	if cfg.Storage.Type != "csv" {
		t.Errorf("expected csv storage, got %q", cfg.Storage.Type)
	}
	if cfg.Pipeline.MinStars != 10 || len(cfg.Pipeline.ExcludeOwners) != 2 {
		t.Errorf("unexpected pipeline config %+v", cfg.Pipeline)
	}
	// Untouched keys keep their defaults.
	if !cfg.Pipeline.Dedup {
		t.Error("expected dedup to stay enabled")
	}
	if cfg.Scraper.Host != "github.com" {
		t.Errorf("expected default host, got %q", cfg.Scraper.Host)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("GHDEPENDENTS_SCRAPER_PAGES", "7")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scraper.Pages != 7 {
		t.Errorf("expected env override of 7 pages, got %d", cfg.Scraper.Pages)
	}
}
