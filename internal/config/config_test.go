package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: false
  level: debug
store:
  driver: postgres
postgres:
  dsn: postgres://scraper@localhost/scraper
  table: urls
orchestrator:
  concurrency: 8
filter:
  blocked_domains: ["youtube.com", "*.tiktok.com"]
relevance:
  keywords: ["inflation", "election"]
  trusted_domains: ["reuters.com"]
  threshold: 0.6
  weights:
    keyword: 0.5
    domain: 0.25
    structure: 0.25
  freshness_window_days: 365
extractor:
  timeout_seconds: 5
  content_format: markdown
  host_rps: 1.5
archive:
  driver: gcs
  gcs_bucket: raw-html
pubsub:
  enabled: true
  project_id: proj
  topic_name: scraped
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Store.Driver != "postgres" || cfg.Postgres.Table != "urls" || cfg.Postgres.RunTable != "system_logs" {
		t.Fatalf("unexpected postgres settings: %+v", cfg.Postgres)
	}
	if cfg.Orchestrator.Concurrency != 8 {
		t.Fatalf("expected concurrency 8, got %d", cfg.Orchestrator.Concurrency)
	}
	if len(cfg.Filter.BlockedDomains) != 2 {
		t.Fatalf("expected blocked domains override, got %v", cfg.Filter.BlockedDomains)
	}
	sc := cfg.ScorerConfig()
	if sc.Threshold != 0.6 || sc.Weights.Structure != 0.25 || len(sc.Keywords) != 2 {
		t.Fatalf("unexpected scorer config: %+v", sc)
	}
	if sc.FreshnessWindow != 365*24*time.Hour || sc.FreshnessBonus != 0.2 {
		t.Fatalf("unexpected freshness config: %+v", sc)
	}
	if got := cfg.ExtractorTimeout(); got != 5*time.Second {
		t.Fatalf("expected extractor timeout 5s, got %v", got)
	}
	if cfg.Extractor.HostRPS != 1.5 || cfg.Extractor.HostBurst != 2 {
		t.Fatalf("unexpected host rate limit: %+v", cfg.Extractor)
	}
	if cfg.Extractor.ContentFormat != "markdown" {
		t.Fatalf("expected markdown content format, got %q", cfg.Extractor.ContentFormat)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8000 || cfg.Store.Driver != "memory" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Relevance.Threshold != 0.5 {
		t.Fatalf("expected default threshold 0.5, got %v", cfg.Relevance.Threshold)
	}
	if len(cfg.Filter.BlockedDomains) == 0 || len(cfg.Relevance.TrustedDomains) == 0 {
		t.Fatal("expected default domain lists")
	}
	if cfg.ShutdownTimeout() != 30*time.Second {
		t.Fatalf("unexpected shutdown timeout %v", cfg.ShutdownTimeout())
	}
}

func TestLoadRejectsZeroThreshold(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("relevance:\n  threshold: 0\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "relevance.threshold") {
		t.Fatalf("expected threshold error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"auth", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"driver", func(c *Config) { c.Store.Driver = "sqlite" }, "store.driver"},
		{"postgres dsn", func(c *Config) { c.Store.Driver = "postgres" }, "postgres.dsn"},
		{"mongo uri", func(c *Config) { c.Store.Driver = "mongo" }, "mongo.uri"},
		{"concurrency", func(c *Config) { c.Orchestrator.Concurrency = 0 }, "orchestrator.concurrency"},
		{"timeout", func(c *Config) { c.Extractor.TimeoutSeconds = 0 }, "extractor.timeout_seconds"},
		{"host rps", func(c *Config) { c.Extractor.HostRPS = -1 }, "extractor.host_rps"},
		{"format", func(c *Config) { c.Extractor.ContentFormat = "pdf" }, "content_format"},
		{"archive", func(c *Config) { c.Archive.Driver = "gcs" }, "archive.gcs_bucket"},
		{"local archive", func(c *Config) { c.Archive.Driver = "local" }, "archive.local_dir"},
		{"pubsub", func(c *Config) { c.PubSub.Enabled = true }, "pubsub.project_id"},
		{"weights", func(c *Config) { c.Relevance.Weights.Keyword = 0.9 }, "relevance"},
		{"zero threshold", func(c *Config) { c.Relevance.Threshold = 0 }, "relevance.threshold"},
		{"threshold above one", func(c *Config) { c.Relevance.Threshold = 1.2 }, "relevance.threshold"},
		{"tracing project", func(c *Config) { c.Telemetry.TracingEnabled = true }, "telemetry.project_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
