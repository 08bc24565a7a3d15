package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-epub/internal/parser"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DefaultStartURL, cfg.Source.StartURL)
	assert.Equal(t, parser.DefaultSelectors(), cfg.Source.Selectors)
	assert.Equal(t, 1, cfg.Crawler.FirstPageRetries)
	assert.Equal(t, 3, cfg.Crawler.PageRetries)
	assert.Equal(t, 3, cfg.Crawler.ArticleRetries)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "data", cfg.Storage.Local.BaseDir)
	assert.Equal(t, "articles.json", cfg.Storage.ArticlesKey)
	assert.Equal(t, "file.epub", cfg.Ebook.Key)
	assert.Equal(t, time.Hour, cfg.Ebook.MaxAge)
	assert.Equal(t, "rtl", cfg.Ebook.Direction)
	assert.Equal(t, "فهرس المقالات", cfg.Ebook.TOCTitle)
	assert.Equal(t, "* { direction: rtl }", cfg.Ebook.CSS)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadWithFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
server:
  port: 9090
  request_timeout: 5m
auth:
  enabled: true
  api_key: secret
source:
  start_url: https://example.com/all/
  selectors:
    rows: "ul.posts li"
crawler:
  user_agent: test-agent
  page_retries: 5
  max_pages: 7
  requests_per_second: 2.5
storage:
  backend: gcs
  gcs:
    bucket: books
    prefix: mirror
ebook:
  max_age: 30m
  title: Articles
pubsub:
  project_id: proj
  topic_name: builds
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Server.RequestTimeout)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "https://example.com/all/", cfg.Source.StartURL)
	assert.Equal(t, "ul.posts li", cfg.Source.Selectors.Rows)
	assert.Equal(t, parser.DefaultSelectors().NextPage, cfg.Source.Selectors.NextPage)
	assert.Equal(t, "test-agent", cfg.Crawler.UserAgent)
	assert.Equal(t, 5, cfg.Crawler.PageRetries)
	assert.Equal(t, 1, cfg.Crawler.FirstPageRetries)
	assert.Equal(t, 7, cfg.Crawler.MaxPages)
	assert.InDelta(t, 2.5, cfg.Crawler.RequestsPerSecond, 1e-9)
	assert.Equal(t, 1, cfg.Crawler.Burst)
	assert.Equal(t, "books", cfg.Storage.GCS.Bucket)
	assert.Equal(t, 30*time.Minute, cfg.Ebook.MaxAge)
	assert.Equal(t, "Articles", cfg.Ebook.Title)
	assert.Equal(t, "builds", cfg.PubSub.TopicName)
	assert.False(t, cfg.Logging.Development)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ARTICLEPUB_SERVER_PORT", "7070")
	t.Setenv("ARTICLEPUB_STORAGE_BACKEND", "memory")
	t.Setenv("ARTICLEPUB_EBOOK_MAX_AGE", "2h")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Ebook.MaxAge)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"start url", func(c *Config) { c.Source.StartURL = "" }, "start_url"},
		{"retries", func(c *Config) { c.Crawler.PageRetries = -1 }, "retry"},
		{"max pages", func(c *Config) { c.Crawler.MaxPages = -1 }, "max_pages"},
		{"rate", func(c *Config) { c.Crawler.RequestsPerSecond = -1 }, "requests_per_second"},
		{"backend", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"local dir", func(c *Config) { c.Storage.Local.BaseDir = "" }, "base_dir"},
		{"gcs bucket", func(c *Config) { c.Storage.Backend = "gcs" }, "storage.gcs.bucket"},
		{"postgres dsn", func(c *Config) { c.Storage.Backend = "postgres" }, "storage.postgres.dsn"},
		{"keys", func(c *Config) { c.Ebook.Key = "" }, "ebook.key"},
		{"max age", func(c *Config) { c.Ebook.MaxAge = 0 }, "max_age"},
		{"title", func(c *Config) { c.Ebook.Title = "" }, "ebook.title"},
		{"pubsub project", func(c *Config) { c.PubSub.TopicName = "t" }, "pubsub.project_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
