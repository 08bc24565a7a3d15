// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/article-epub/internal/parser"
)

// DefaultStartURL is the first listing page of the source archive.
const DefaultStartURL = "https://alkulify.com/%D9%83%D9%84-%D8%A7%D9%84%D9%85%D9%82%D8%A7%D9%84%D8%A7%D8%AA/"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Source  SourceConfig  `mapstructure:"source"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Storage StorageConfig `mapstructure:"storage"`
	Ebook   EbookConfig   `mapstructure:"ebook"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
}

// AuthConfig guards the refresh endpoint.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SourceConfig names the archive to mirror and how to read it.
type SourceConfig struct {
	StartURL  string           `mapstructure:"start_url"`
	Selectors parser.Selectors `mapstructure:"selectors"`
}

// CrawlerConfig governs fetching and retry budgets.
type CrawlerConfig struct {
	UserAgent        string        `mapstructure:"user_agent"`
	RespectRobots    bool          `mapstructure:"respect_robots"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FirstPageRetries int           `mapstructure:"first_page_retries"`
	PageRetries      int           `mapstructure:"page_retries"`
	ArticleRetries   int           `mapstructure:"article_retries"`
	MaxPages         int           `mapstructure:"max_pages"`

	// RequestsPerSecond throttles requests per host; 0 disables throttling.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// StorageConfig selects the blob backend holding the article cache and the book.
type StorageConfig struct {
	Backend     string         `mapstructure:"backend"`
	ArticlesKey string         `mapstructure:"articles_key"`
	Local       LocalConfig    `mapstructure:"local"`
	GCS         GCSConfig      `mapstructure:"gcs"`
	Postgres    PostgresConfig `mapstructure:"postgres"`
}

// LocalConfig points at a directory on disk.
type LocalConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSConfig names a bucket.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// PostgresConfig controls access to the relational database.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// EbookConfig describes the generated book.
type EbookConfig struct {
	Key          string        `mapstructure:"key"`
	MaxAge       time.Duration `mapstructure:"max_age"`
	Title        string        `mapstructure:"title"`
	Author       string        `mapstructure:"author"`
	Language     string        `mapstructure:"language"`
	Direction    string        `mapstructure:"direction"`
	TOCTitle     string        `mapstructure:"toc_title"`
	CSS          string        `mapstructure:"css"`
	TemplatePath string        `mapstructure:"template_path"`
	Filename     string        `mapstructure:"filename"`
}

// PubSubConfig holds metadata for build notifications. An empty TopicName
// keeps notifications in process.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARTICLEPUB")
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
	v.SetDefault("server.request_timeout", 30*time.Minute)
	v.SetDefault("server.shutdown_grace", 10*time.Second)
	v.SetDefault("auth.enabled", false)

	v.SetDefault("source.start_url", DefaultStartURL)
	sel := parser.DefaultSelectors()
	v.SetDefault("source.selectors.next_page", sel.NextPage)
	v.SetDefault("source.selectors.rows", sel.Rows)
	v.SetDefault("source.selectors.row_heading", sel.RowHeading)
	v.SetDefault("source.selectors.row_date", sel.RowDate)
	v.SetDefault("source.selectors.row_categories", sel.RowCategories)
	v.SetDefault("source.selectors.boilerplate", sel.Boilerplate)
	v.SetDefault("source.selectors.content_primary", sel.ContentPrimary)
	v.SetDefault("source.selectors.content_followup", sel.ContentFollowup)
	v.SetDefault("source.selectors.tags", sel.Tags)
	v.SetDefault("source.selectors.related", sel.Related)

	v.SetDefault("crawler.user_agent", "articlepub/0.1")
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.timeout", 30*time.Second)
	v.SetDefault("crawler.first_page_retries", 1)
	v.SetDefault("crawler.page_retries", 3)
	v.SetDefault("crawler.article_retries", 3)
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.requests_per_second", 0)
	v.SetDefault("crawler.burst", 1)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.articles_key", "articles.json")
	v.SetDefault("storage.local.base_dir", "data")
	v.SetDefault("storage.postgres.table", "blobs")
	v.SetDefault("storage.postgres.max_conns", 4)
	v.SetDefault("storage.postgres.max_conn_lifetime", time.Hour)

	v.SetDefault("ebook.key", "file.epub")
	v.SetDefault("ebook.max_age", time.Hour)
	v.SetDefault("ebook.title", "مقالات الشيخ أبو جعفر عبد الله الخليفي")
	v.SetDefault("ebook.author", "أبو جعفر عبد الله بن فهد الخليفي")
	v.SetDefault("ebook.language", "ar")
	v.SetDefault("ebook.direction", "rtl")
	v.SetDefault("ebook.toc_title", "فهرس المقالات")
	v.SetDefault("ebook.css", "* { direction: rtl }")
	v.SetDefault("ebook.filename", "file.epub")

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Source.StartURL == "" {
		return fmt.Errorf("source.start_url is required")
	}
	if c.Crawler.FirstPageRetries < 0 || c.Crawler.PageRetries < 0 || c.Crawler.ArticleRetries < 0 {
		return fmt.Errorf("crawler retry budgets must be >= 0")
	}
	if c.Crawler.MaxPages < 0 {
		return fmt.Errorf("crawler.max_pages must be >= 0")
	}
	if c.Crawler.RequestsPerSecond < 0 {
		return fmt.Errorf("crawler.requests_per_second must be >= 0")
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local backend")
		}
	case "memory":
	case "gcs":
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket is required for the gcs backend")
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Storage.ArticlesKey == "" || c.Ebook.Key == "" {
		return fmt.Errorf("storage.articles_key and ebook.key are required")
	}
	if c.Ebook.MaxAge <= 0 {
		return fmt.Errorf("ebook.max_age must be > 0")
	}
	if c.Ebook.Title == "" {
		return fmt.Errorf("ebook.title is required")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}
