// Package ebook serves the assembled book, rebuilding it from a fresh crawl
// once the cached copy is older than the configured window.
package ebook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-epub/internal/crawler"
	"github.com/JakeFAU/article-epub/internal/hash/sha256"
	"github.com/JakeFAU/article-epub/internal/metrics"
	"github.com/JakeFAU/article-epub/internal/storage"
)

// ContentType is the media type of the artifact.
const ContentType = "application/epub+zip"

// EventBuilt is published after every successful rebuild.
const EventBuilt = "ebook.built"

// Crawler refreshes the article store.
type Crawler interface {
	Crawl(ctx context.Context) (crawler.Stats, error)
}

// Catalog is the read side of the article store.
type Catalog interface {
	SortedByDateAscending() []crawler.ArticleRecord
	Len() int
}

// Assembler turns ordered records into an EPUB.
type Assembler interface {
	Assemble(ctx context.Context, records []crawler.ArticleRecord) ([]byte, error)
}

// Publisher sends build notifications.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) (string, error)
}

// Hasher fingerprints an artifact.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Config controls caching of the artifact.
type Config struct {
	// Key is the blob path of the persisted artifact.
	Key string
	// MaxAge is how long a built artifact is served before a rebuild.
	MaxAge time.Duration
}

// Deps are the collaborators of a Service. Publisher may be nil; Hasher
// defaults to SHA-256.
type Deps struct {
	Crawler   Crawler
	Catalog   Catalog
	Assembler Assembler
	Blobs     storage.BlobStore
	Publisher Publisher
	Clock     crawler.Clock
	Hasher    Hasher
}

// Artifact is a built book.
type Artifact struct {
	Data     []byte
	BuiltAt  time.Time
	Checksum string
}

// BuildEvent is the payload of EventBuilt.
type BuildEvent struct {
	Key      string        `json:"key"`
	Location string        `json:"location"`
	BuiltAt  time.Time     `json:"built_at"`
	Articles int           `json:"articles"`
	Bytes    int           `json:"bytes"`
	SHA256   string        `json:"sha256"`
	Crawl    crawler.Stats `json:"crawl"`
}

// Service owns the cached artifact. Calls are serialized so a crawl never runs
// twice at once against the same store.
type Service struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger

	mu       sync.Mutex
	artifact *Artifact
}

// NewService builds a Service and adopts an artifact already in the blob store,
// treating it as built now.
func NewService(ctx context.Context, cfg Config, deps Deps, logger *zap.Logger) (*Service, error) {
	if deps.Crawler == nil || deps.Catalog == nil || deps.Assembler == nil || deps.Blobs == nil || deps.Clock == nil {
		return nil, errors.New("ebook service is missing a dependency")
	}
	if cfg.Key == "" {
		return nil, errors.New("ebook key is required")
	}
	if cfg.MaxAge <= 0 {
		return nil, fmt.Errorf("ebook max age must be positive, got %s", cfg.MaxAge)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Hasher == nil {
		deps.Hasher = sha256.New()
	}
	s := &Service{cfg: cfg, deps: deps, logger: logger}

	data, err := deps.Blobs.GetObject(ctx, cfg.Key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load ebook: %w", err)
	default:
		sum, err := deps.Hasher.Hash(data)
		if err != nil {
			return nil, fmt.Errorf("hash ebook: %w", err)
		}
		s.artifact = &Artifact{Data: data, BuiltAt: deps.Clock.Now(), Checksum: sum}
		logger.Info("adopted existing ebook", zap.String("key", cfg.Key), zap.Int("bytes", len(data)))
	}
	return s, nil
}

// Ebook returns the cached artifact while it is fresh and rebuilds it otherwise.
func (s *Service) Ebook(ctx context.Context) (Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fresh() {
		metrics.ObserveEbookServed("cached")
		return *s.artifact, nil
	}
	return s.rebuildLocked(ctx)
}

// Rebuild crawls and assembles a new artifact regardless of freshness.
func (s *Service) Rebuild(ctx context.Context) (Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildLocked(ctx)
}

// Articles returns the stored records in book order.
func (s *Service) Articles() []crawler.ArticleRecord {
	return s.deps.Catalog.SortedByDateAscending()
}

// BuiltAt reports when the cached artifact was built, if there is one.
func (s *Service) BuiltAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.artifact == nil {
		return time.Time{}, false
	}
	return s.artifact.BuiltAt, true
}

func (s *Service) fresh() bool {
	return s.artifact != nil && s.deps.Clock.Now().Sub(s.artifact.BuiltAt) < s.cfg.MaxAge
}

func (s *Service) rebuildLocked(ctx context.Context) (Artifact, error) {
	ctx, span := otel.Tracer("articlepub/ebook").Start(ctx, "ebook.rebuild")
	defer span.End()

	start := time.Now()
	artifact, event, err := s.build(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build failed")
		metrics.ObserveEbookServed("failed")
		s.logger.Error("ebook build failed", zap.Error(err))
		return Artifact{}, err
	}
	s.artifact = &artifact
	span.SetAttributes(
		attribute.Int("ebook.articles", event.Articles),
		attribute.Int("ebook.bytes", event.Bytes),
	)
	metrics.ObserveEbookServed("rebuilt")
	metrics.ObserveEbookBuild(time.Since(start), len(artifact.Data))
	s.logger.Info("ebook built",
		zap.Int("articles", event.Articles),
		zap.Int("bytes", event.Bytes),
		zap.Duration("took", time.Since(start)),
	)
	s.notify(ctx, event)
	return artifact, nil
}

func (s *Service) build(ctx context.Context) (Artifact, BuildEvent, error) {
	stats, err := s.deps.Crawler.Crawl(ctx)
	if err != nil {
		return Artifact{}, BuildEvent{}, fmt.Errorf("crawl: %w", err)
	}
	records := s.deps.Catalog.SortedByDateAscending()
	data, err := s.deps.Assembler.Assemble(ctx, records)
	if err != nil {
		return Artifact{}, BuildEvent{}, fmt.Errorf("assemble: %w", err)
	}
	sum, err := s.deps.Hasher.Hash(data)
	if err != nil {
		return Artifact{}, BuildEvent{}, fmt.Errorf("hash ebook: %w", err)
	}
	location, err := s.deps.Blobs.PutObject(ctx, s.cfg.Key, ContentType, bytes.NewReader(data))
	if err != nil {
		return Artifact{}, BuildEvent{}, fmt.Errorf("store ebook: %w", err)
	}
	artifact := Artifact{Data: data, BuiltAt: s.deps.Clock.Now(), Checksum: sum}
	return artifact, BuildEvent{
		Key:      s.cfg.Key,
		Location: location,
		BuiltAt:  artifact.BuiltAt,
		Articles: len(records),
		Bytes:    len(data),
		SHA256:   sum,
		Crawl:    stats,
	}, nil
}

// notify publishes the build event. Failures are logged and do not fail the build.
func (s *Service) notify(ctx context.Context, event BuildEvent) {
	if s.deps.Publisher == nil {
		return
	}
	id, err := s.deps.Publisher.Publish(ctx, EventBuilt, event)
	if err != nil {
		s.logger.Warn("publish build event failed", zap.Error(err))
		return
	}
	s.logger.Debug("build event published", zap.String("message_id", id))
}
