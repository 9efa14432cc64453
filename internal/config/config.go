// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/article-scraper/internal/filter"
	"github.com/JakeFAU/article-scraper/internal/relevance"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Store        StoreConfig        `mapstructure:"store"`
	Postgres     PostgresConfig     `mapstructure:"postgres"`
	Mongo        MongoConfig        `mapstructure:"mongo"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Filter       FilterConfig       `mapstructure:"filter"`
	Relevance    RelevanceConfig    `mapstructure:"relevance"`
	Extractor    ExtractorConfig    `mapstructure:"extractor"`
	Archive      ArchiveConfig      `mapstructure:"archive"`
	PubSub       PubSubConfig       `mapstructure:"pubsub"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// PostgresConfig controls the relational record store.
type PostgresConfig struct {
	DSN                    string `mapstructure:"dsn"`
	Table                  string `mapstructure:"table"`
	RunTable               string `mapstructure:"run_table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
	EnsureSchema           bool   `mapstructure:"ensure_schema"`
}

// MongoConfig controls the document record store.
type MongoConfig struct {
	URI            string `mapstructure:"uri"`
	Database       string `mapstructure:"database"`
	Collection     string `mapstructure:"collection"`
	RunCollection  string `mapstructure:"run_collection"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// OrchestratorConfig bounds pass fan-out.
type OrchestratorConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// FilterConfig lists the blocked platforms.
type FilterConfig struct {
	BlockedDomains []string `mapstructure:"blocked_domains"`
}

// RelevanceConfig feeds the relevance scorer.
type RelevanceConfig struct {
	Keywords            []string      `mapstructure:"keywords"`
	TrustedDomains      []string      `mapstructure:"trusted_domains"`
	Threshold           float64       `mapstructure:"threshold"`
	Weights             WeightsConfig `mapstructure:"weights"`
	FreshnessWindowDays int           `mapstructure:"freshness_window_days"`
	FreshnessBonus      float64       `mapstructure:"freshness_bonus"`
}

// WeightsConfig holds the per-signal weights.
type WeightsConfig struct {
	Keyword   float64 `mapstructure:"keyword"`
	Domain    float64 `mapstructure:"domain"`
	Structure float64 `mapstructure:"structure"`
}

// ExtractorConfig configures the fetch + parse gateway.
type ExtractorConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
	ContentFormat  string `mapstructure:"content_format"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
	// HostRPS caps requests per second to any one host. Zero disables it.
	HostRPS   float64 `mapstructure:"host_rps"`
	HostBurst int     `mapstructure:"host_burst"`
}

// ArchiveConfig selects where raw HTML is archived.
type ArchiveConfig struct {
	Driver    string `mapstructure:"driver"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for downstream notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TelemetryConfig toggles OpenTelemetry tracing exported to Cloud Trace.
type TelemetryConfig struct {
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	ServiceName    string `mapstructure:"service_name"`
	ProjectID      string `mapstructure:"project_id"`
}

// DefaultTrustedDomains are well-known news outlets.
var DefaultTrustedDomains = []string{
	"g1.globo.com", "uol.com.br", "folha.uol.com.br", "estadao.com.br",
	"veja.abril.com.br", "cnnbrasil.com.br", "cartacapital.com.br",
	"poder360.com.br", "metropoles.com", "oantagonista.com.br",
	"bbc.com", "nytimes.com", "theguardian.com", "reuters.com",
	"wsj.com", "bloomberg.com", "apnews.com",
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load over a caller-supplied Viper instance (flags already bound).
func LoadWith(v *viper.Viper, path string) (Config, error) {
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.shutdown_timeout_seconds", 30)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("postgres.table", "candidates")
	v.SetDefault("postgres.run_table", "system_logs")
	v.SetDefault("postgres.ensure_schema", false)
	v.SetDefault("mongo.database", "monitor")
	v.SetDefault("mongo.collection", "monitor_results")
	v.SetDefault("mongo.run_collection", "system_logs")
	v.SetDefault("mongo.timeout_seconds", 10)
	v.SetDefault("orchestrator.concurrency", 4)
	v.SetDefault("filter.blocked_domains", filter.DefaultBlockedDomains)
	v.SetDefault("relevance.keywords", []string{})
	v.SetDefault("relevance.trusted_domains", DefaultTrustedDomains)
	v.SetDefault("relevance.threshold", relevance.DefaultThreshold)
	v.SetDefault("relevance.weights.keyword", relevance.DefaultWeights.Keyword)
	v.SetDefault("relevance.weights.domain", relevance.DefaultWeights.Domain)
	v.SetDefault("relevance.weights.structure", relevance.DefaultWeights.Structure)
	v.SetDefault("relevance.freshness_window_days", 730)
	v.SetDefault("relevance.freshness_bonus", 0.2)
	v.SetDefault("extractor.user_agent", "article-scraper/1.0")
	v.SetDefault("extractor.timeout_seconds", 20)
	v.SetDefault("extractor.respect_robots", false)
	v.SetDefault("extractor.content_format", "text")
	v.SetDefault("extractor.max_body_bytes", 10*1024*1024)
	v.SetDefault("extractor.host_rps", 0)
	v.SetDefault("extractor.host_burst", 2)
	v.SetDefault("archive.driver", "none")
	v.SetDefault("archive.prefix", "articles")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.service_name", "article-scraper")
	v.SetDefault("telemetry.project_id", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required when store.driver is postgres")
		}
	case "mongo":
		if c.Mongo.URI == "" {
			return fmt.Errorf("mongo.uri is required when store.driver is mongo")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Orchestrator.Concurrency <= 0 {
		return fmt.Errorf("orchestrator.concurrency must be > 0")
	}
	if c.Extractor.TimeoutSeconds <= 0 {
		return fmt.Errorf("extractor.timeout_seconds must be > 0")
	}
	if c.Extractor.HostRPS < 0 {
		return fmt.Errorf("extractor.host_rps must be >= 0")
	}
	switch c.Extractor.ContentFormat {
	case "text", "markdown":
	default:
		return fmt.Errorf("extractor.content_format must be text or markdown, got %q", c.Extractor.ContentFormat)
	}
	switch c.Archive.Driver {
	case "none", "memory":
	case "local":
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir is required when archive.driver is local")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket is required when archive.driver is gcs")
		}
	default:
		return fmt.Errorf("unknown archive.driver %q", c.Archive.Driver)
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name are required when pubsub is enabled")
	}
	if c.Telemetry.TracingEnabled && c.Telemetry.ProjectID == "" {
		return fmt.Errorf("telemetry.project_id is required when tracing is enabled")
	}
	if c.Relevance.Threshold <= 0 || c.Relevance.Threshold > 1 {
		return fmt.Errorf("relevance.threshold must be within (0,1], got %v", c.Relevance.Threshold)
	}
	if _, err := relevance.New(c.ScorerConfig()); err != nil {
		return fmt.Errorf("relevance: %w", err)
	}
	return nil
}

// ScorerConfig converts the relevance section for relevance.New.
func (c Config) ScorerConfig() relevance.Config {
	return relevance.Config{
		Keywords:       c.Relevance.Keywords,
		TrustedDomains: c.Relevance.TrustedDomains,
		Threshold:      c.Relevance.Threshold,
		Weights: relevance.Weights{
			Keyword:   c.Relevance.Weights.Keyword,
			Domain:    c.Relevance.Weights.Domain,
			Structure: c.Relevance.Weights.Structure,
		},
		FreshnessWindow: time.Duration(c.Relevance.FreshnessWindowDays) * 24 * time.Hour,
		FreshnessBonus:  c.Relevance.FreshnessBonus,
	}
}

// FilterConfig converts the filter section for filter.New.
func (c Config) FilterConfig() filter.Config {
	return filter.Config{BlockedDomains: c.Filter.BlockedDomains}
}

// ExtractorTimeout returns the per-URL fetch timeout.
func (c Config) ExtractorTimeout() time.Duration {
	return time.Duration(c.Extractor.TimeoutSeconds) * time.Second
}

// ShutdownTimeout returns how long shutdown waits for an in-flight pass.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
