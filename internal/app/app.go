// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-epub/internal/api"
	"github.com/JakeFAU/article-epub/internal/clock"
	"github.com/JakeFAU/article-epub/internal/config"
	"github.com/JakeFAU/article-epub/internal/crawler"
	"github.com/JakeFAU/article-epub/internal/ebook"
	"github.com/JakeFAU/article-epub/internal/epub"
	collyfetcher "github.com/JakeFAU/article-epub/internal/fetcher/colly"
	"github.com/JakeFAU/article-epub/internal/fetcher/ratelimit"
	"github.com/JakeFAU/article-epub/internal/parser"
	pubmemory "github.com/JakeFAU/article-epub/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/article-epub/internal/publisher/pubsub"
	"github.com/JakeFAU/article-epub/internal/storage"
	"github.com/JakeFAU/article-epub/internal/storage/gcs"
	"github.com/JakeFAU/article-epub/internal/storage/local"
	"github.com/JakeFAU/article-epub/internal/storage/memory"
	"github.com/JakeFAU/article-epub/internal/storage/postgres"
	"github.com/JakeFAU/article-epub/internal/store"
)

// App holds the shared, long-lived services. It is built once at startup and
// handed to the command that runs.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Blobs     storage.BlobStore
	Store     *store.Store
	Engine    *crawler.Engine
	Assembler *epub.Assembler
	Ebooks    *ebook.Service
	Publisher ebook.Publisher

	closers []func()
}

// Overrides replaces pieces of the default wiring. Zero fields keep the
// configured behavior.
type Overrides struct {
	Blobs     storage.BlobStore
	Fetcher   crawler.Fetcher
	Publisher ebook.Publisher
	Builder   epub.Builder
	Clock     crawler.Clock
}

// New creates and initializes an App from configuration. It fails fast if any
// critical service cannot be initialized, including a corrupt article cache.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, ov Overrides) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	logger.Info("initializing application services", zap.String("storage", cfg.Storage.Backend))

	a.Blobs = ov.Blobs
	if a.Blobs == nil {
		if a.Blobs, err = a.newBlobStore(ctx); err != nil {
			return nil, err
		}
	}

	a.Store, err = store.Load(ctx, a.Blobs, cfg.Storage.ArticlesKey)
	if err != nil {
		return nil, fmt.Errorf("load article cache: %w", err)
	}
	logger.Info("article cache loaded", zap.Int("articles", a.Store.Len()))

	fetcher := ov.Fetcher
	if fetcher == nil {
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Crawler.UserAgent,
			RespectRobots: cfg.Crawler.RespectRobots,
			Timeout:       cfg.Crawler.Timeout,
		})
	}
	if cfg.Crawler.RequestsPerSecond > 0 {
		fetcher = ratelimit.New(fetcher, ratelimit.Config{
			RPS:   cfg.Crawler.RequestsPerSecond,
			Burst: cfg.Crawler.Burst,
		})
	}
	a.Engine = crawler.NewEngine(crawler.Config{
		StartURL:         cfg.Source.StartURL,
		FirstPageRetries: cfg.Crawler.FirstPageRetries,
		PageRetries:      cfg.Crawler.PageRetries,
		ArticleRetries:   cfg.Crawler.ArticleRetries,
		MaxPages:         cfg.Crawler.MaxPages,
	}, fetcher, parser.New(cfg.Source.Selectors), a.Store, logger.Named("crawler"))

	builder := ov.Builder
	if builder == nil {
		builder = epub.GoEpubBuilder{}
	}
	a.Assembler, err = epub.New(epub.Config{
		Metadata: epub.Metadata{
			Title:     cfg.Ebook.Title,
			Author:    cfg.Ebook.Author,
			Language:  cfg.Ebook.Language,
			Direction: cfg.Ebook.Direction,
			TOCTitle:  cfg.Ebook.TOCTitle,
			CSS:       cfg.Ebook.CSS,
		},
		TemplatePath: cfg.Ebook.TemplatePath,
	}, builder, logger.Named("epub"))
	if err != nil {
		return nil, fmt.Errorf("init assembler: %w", err)
	}

	a.Publisher = ov.Publisher
	if a.Publisher == nil {
		if a.Publisher, err = a.newPublisher(ctx); err != nil {
			return nil, err
		}
	}

	clk := ov.Clock
	if clk == nil {
		clk = clock.System{}
	}
	a.Ebooks, err = ebook.NewService(ctx, ebook.Config{
		Key:    cfg.Ebook.Key,
		MaxAge: cfg.Ebook.MaxAge,
	}, ebook.Deps{
		Crawler:   a.Engine,
		Catalog:   a.Store,
		Assembler: a.Assembler,
		Blobs:     a.Blobs,
		Publisher: a.Publisher,
		Clock:     clk,
	}, logger.Named("ebook"))
	if err != nil {
		return nil, fmt.Errorf("init ebook service: %w", err)
	}

	logger.Info("application services initialized")
	return a, nil
}

// Server builds the HTTP API over the ebook service.
func (a *App) Server() *api.Server {
	return api.NewServer(a.Ebooks, a.Config, a.Logger.Named("api"))
}

// Close releases clients in reverse order of creation and flushes the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.Logger.Sync() //nolint:errcheck // stderr sync fails on some platforms
}

func (a *App) newBlobStore(ctx context.Context) (storage.BlobStore, error) {
	cfg := a.Config.Storage
	switch cfg.Backend {
	case "local":
		blobs, err := local.New(local.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return blobs, nil
	case "memory":
		a.Logger.Warn("using in-memory storage; the article cache will not survive a restart")
		return memory.NewBlobStore(), nil
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		blobs, err := gcs.New(client, gcs.Config{Bucket: cfg.GCS.Bucket, Prefix: cfg.GCS.Prefix})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := blobs.Close(); err != nil {
				a.Logger.Warn("close gcs client", zap.Error(err))
			}
		})
		return blobs, nil
	case "postgres":
		blobs, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			Table:           cfg.Postgres.Table,
			MaxConns:        cfg.Postgres.MaxConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres storage: %w", err)
		}
		a.closers = append(a.closers, blobs.Close)
		return blobs, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

func (a *App) newPublisher(ctx context.Context) (ebook.Publisher, error) {
	cfg := a.Config.PubSub
	if cfg.TopicName == "" {
		return pubmemory.New(), nil
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("pubsub.project_id is required with pubsub.topic_name")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client.Topic(cfg.TopicName))
	a.closers = append(a.closers, func() {
		pub.Stop()
		if err := client.Close(); err != nil {
			a.Logger.Warn("close pubsub client", zap.Error(err))
		}
	})
	a.Logger.Info("publishing build notifications", zap.String("topic", cfg.TopicName))
	return pub, nil
}
