package crawler

import (
	"context"
	"net/url"
	"time"
)

// Fetcher performs a single GET and returns the body as text.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Parser turns fetched HTML into listing and article data.
type Parser interface {
	ParseListingPage(html string, base *url.URL) (Listing, error)
	ParseArticlePage(html string, base *url.URL) (ArticleBody, error)
}

// ArticleStore is the subset of the article store the crawl loop mutates.
type ArticleStore interface {
	Has(title string) bool
	Append(record ArticleRecord) error
	Len() int
	Persist(ctx context.Context) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
