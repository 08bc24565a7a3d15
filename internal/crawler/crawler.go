package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-epub/internal/metrics"
)

// Config holds the settings for a crawl session.
// It is decoupled from Viper so the engine can be built directly in tests.
type Config struct {
	StartURL         string
	FirstPageRetries int
	PageRetries      int
	ArticleRetries   int
	// MaxPages caps the number of listing pages visited; 0 means no cap.
	MaxPages int
}

// DefaultConfig returns the retry budgets used against the source site.
func DefaultConfig(startURL string) Config {
	return Config{
		StartURL:         startURL,
		FirstPageRetries: 1,
		PageRetries:      3,
		ArticleRetries:   3,
	}
}

// Engine walks the paginated listing and fills the article store.
type Engine struct {
	cfg     Config
	fetcher Fetcher
	parser  Parser
	store   ArticleStore
	logger  *zap.Logger
}

// NewEngine wires an Engine.
func NewEngine(cfg Config, fetcher Fetcher, parser Parser, store ArticleStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:     cfg,
		fetcher: fetcher,
		parser:  parser,
		store:   store,
		logger:  logger,
	}
}

// Crawl visits every listing page reachable through the "next" links, fetching
// each article whose title the store has not seen. Article failures are logged
// and skipped; listing failures end the crawl with an error. The store is
// persisted when the walk completes.
//
// There is no cycle detection: a pagination link pointing backwards loops until
// MaxPages (if set) or the context stops it.
func (e *Engine) Crawl(ctx context.Context) (Stats, error) {
	var stats Stats
	if e.cfg.StartURL == "" {
		return stats, errors.New("start url is required")
	}

	pageURL := e.cfg.StartURL
	retries := e.cfg.FirstPageRetries
	for {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("crawl canceled: %w", err)
		}
		listing, err := e.fetchListing(ctx, pageURL, retries)
		if err != nil {
			return stats, err
		}
		stats.Pages++
		e.logger.Info("listing page fetched",
			zap.Int("page", stats.Pages),
			zap.String("url", pageURL),
			zap.Int("rows", len(listing.Summaries)),
			zap.Int("articles", e.store.Len()),
			zap.String("next", listing.NextPageURL),
		)

		if err := e.processListing(ctx, listing, &stats); err != nil {
			return stats, err
		}

		if listing.NextPageURL == "" {
			break
		}
		if e.cfg.MaxPages > 0 && stats.Pages >= e.cfg.MaxPages {
			e.logger.Warn("page limit reached", zap.Int("max_pages", e.cfg.MaxPages))
			break
		}
		pageURL = listing.NextPageURL
		retries = e.cfg.PageRetries
	}

	e.logger.Info("crawl finished",
		zap.Int("pages", stats.Pages),
		zap.Int("added", stats.Added),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Int("articles", e.store.Len()),
	)
	if err := e.store.Persist(ctx); err != nil {
		return stats, fmt.Errorf("persist articles: %w", err)
	}
	return stats, nil
}

func (e *Engine) fetchListing(ctx context.Context, pageURL string, retries int) (Listing, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return Listing{}, fmt.Errorf("parse listing url %q: %w", pageURL, err)
	}
	html, err := FetchWithRetry(ctx, e.fetcher, pageURL, retries)
	if err != nil {
		return Listing{}, fmt.Errorf("fetch listing page: %w", err)
	}
	listing, err := e.parser.ParseListingPage(html, base)
	if err != nil {
		return Listing{}, fmt.Errorf("parse listing page %s: %w", pageURL, err)
	}
	return listing, nil
}

func (e *Engine) processListing(ctx context.Context, listing Listing, stats *Stats) error {
	total := len(listing.Summaries)
	for i, summary := range listing.Summaries {
		stats.Seen++
		if e.store.Has(summary.Title) {
			stats.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("crawl canceled: %w", err)
		}
		if err := e.fetchArticle(ctx, summary); err != nil {
			stats.Failed++
			metrics.ObserveArticle("failed")
			e.logger.Warn("article fetch failed",
				zap.Int("index", i+1),
				zap.Int("total", total),
				zap.String("title", summary.Title),
				zap.String("url", summary.URL),
				zap.Error(err),
			)
			continue
		}
		stats.Added++
		metrics.ObserveArticle("added")
		e.logger.Debug("article fetched",
			zap.Int("index", i+1),
			zap.Int("total", total),
			zap.String("title", summary.Title),
		)
	}
	return nil
}

func (e *Engine) fetchArticle(ctx context.Context, summary ArticleSummary) error {
	base, err := url.Parse(summary.URL)
	if err != nil {
		return fmt.Errorf("parse article url: %w", err)
	}
	html, err := FetchWithRetry(ctx, e.fetcher, summary.URL, e.cfg.ArticleRetries)
	if err != nil {
		return err
	}
	body, err := e.parser.ParseArticlePage(html, base)
	if err != nil {
		return fmt.Errorf("parse article page: %w", err)
	}
	if err := e.store.Append(NewArticleRecord(summary, body)); err != nil {
		return fmt.Errorf("store article: %w", err)
	}
	return nil
}
