// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	gcsblob "github.com/webintel/webintel/internal/blob/gcs"
	localblob "github.com/webintel/webintel/internal/blob/local"
	"github.com/webintel/webintel/internal/collector"
	"github.com/webintel/webintel/internal/store/postgres"
)

// Store and blob provider names accepted by the config.
const (
	ProviderMemory   = "memory"
	ProviderPostgres = "postgres"
	ProviderLocal    = "local"
	ProviderGCS      = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig             `mapstructure:"server"`
	Auth      AuthConfig               `mapstructure:"auth"`
	Crawl     CrawlConfig              `mapstructure:"crawl"`
	Web       collector.WebConfig      `mapstructure:"web"`
	Headless  collector.HeadlessConfig `mapstructure:"headless"`
	Detector  collector.DetectorConfig `mapstructure:"detector"`
	Store     StoreConfig              `mapstructure:"store"`
	Blob      BlobConfig               `mapstructure:"blob"`
	PubSub    PubSubConfig             `mapstructure:"pubsub"`
	Embedding EmbeddingConfig          `mapstructure:"embedding"`
	Search    SearchConfig             `mapstructure:"search"`
	Logging   LoggingConfig            `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlConfig governs the per-run worker pools and their defaults.
type CrawlConfig struct {
	Workers         int           `mapstructure:"workers"`
	StopGrace       time.Duration `mapstructure:"stop_grace"`
	MaxDepthDefault int           `mapstructure:"max_depth_default"`
	MaxPagesDefault int           `mapstructure:"max_pages_default"`
	BlobPrefix      string        `mapstructure:"blob_prefix"`
	Seeds           []string      `mapstructure:"seeds"`
}

// StoreConfig selects and configures the persistence provider.
type StoreConfig struct {
	Provider string          `mapstructure:"provider"`
	Postgres postgres.Config `mapstructure:"postgres"`
}

// BlobConfig selects and configures the raw-artifact store.
type BlobConfig struct {
	Provider string           `mapstructure:"provider"`
	Local    localblob.Config `mapstructure:"local"`
	GCS      gcsblob.Config   `mapstructure:"gcs"`
}

// PubSubConfig wires run lifecycle events to a Pub/Sub topic.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// EmbeddingConfig sizes the vector space shared by embedder and index.
type EmbeddingConfig struct {
	Dimension int `mapstructure:"dimension"`
}

// SearchConfig bounds semantic search fan-out.
type SearchConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. Environment variables use the
// WEBINTEL prefix, e.g. WEBINTEL_SERVER_PORT.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WEBINTEL")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("crawl.workers", 4)
	v.SetDefault("crawl.stop_grace", "10s")
	v.SetDefault("crawl.max_depth_default", 1)
	v.SetDefault("crawl.max_pages_default", 50)
	v.SetDefault("crawl.blob_prefix", "raw")
	v.SetDefault("web.user_agent", "webintel-bot/0.1")
	v.SetDefault("web.timeout", "15s")
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_concurrency", 1)
	v.SetDefault("headless.timeout", "25s")
	v.SetDefault("headless.domain_qps", 0.5)
	v.SetDefault("detector.min_html_bytes", 2048)
	v.SetDefault("store.provider", ProviderMemory)
	v.SetDefault("store.postgres.max_conns", 8)
	v.SetDefault("store.postgres.min_conns", 1)
	v.SetDefault("store.postgres.max_conn_lifetime", "30m")
	v.SetDefault("blob.provider", ProviderMemory)
	v.SetDefault("embedding.dimension", 256)
	v.SetDefault("search.default_limit", 10)
	v.SetDefault("search.max_limit", 100)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0")
	}
	if c.Crawl.MaxDepthDefault < 0 {
		return fmt.Errorf("crawl.max_depth_default must be >= 0")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Store.Provider {
	case ProviderMemory:
	case ProviderPostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn must be set for the postgres provider")
		}
	default:
		return fmt.Errorf("unknown store.provider %q", c.Store.Provider)
	}
	switch c.Blob.Provider {
	case ProviderMemory:
	case ProviderLocal:
		if c.Blob.Local.BaseDir == "" {
			return fmt.Errorf("blob.local.base_dir must be set for the local provider")
		}
	case ProviderGCS:
		if c.Blob.GCS.Bucket == "" {
			return fmt.Errorf("blob.gcs.bucket must be set for the gcs provider")
		}
	default:
		return fmt.Errorf("unknown blob.provider %q", c.Blob.Provider)
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic must be set when pubsub is enabled")
	}
	if c.Headless.Enabled && c.Headless.MaxConcurrency <= 0 {
		return fmt.Errorf("headless.max_concurrency must be > 0 when headless is enabled")
	}
	return nil
}
