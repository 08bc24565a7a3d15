package crawler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Category is a listing-row term link.
type Category struct {
	Name string `json:"category"`
	URL  string `json:"url"`
}

// Tag is a term link found on an article page. Related-article links share the shape.
type Tag struct {
	Name string `json:"tag"`
	URL  string `json:"url"`
}

// PublishedAt is a publication timestamp that may be missing or unparsable at the source.
type PublishedAt struct {
	Time  time.Time
	Valid bool
}

// NewPublishedAt wraps a known timestamp.
func NewPublishedAt(t time.Time) PublishedAt {
	return PublishedAt{Time: t, Valid: true}
}

// Before orders two valid timestamps. Callers handle invalid values.
func (p PublishedAt) Before(other PublishedAt) bool {
	return p.Time.Before(other.Time)
}

// String renders the timestamp or "invalid".
func (p PublishedAt) String() string {
	if !p.Valid {
		return "invalid"
	}
	return p.Time.Format(time.RFC3339)
}

// MarshalJSON writes an RFC 3339 string, or null when invalid.
func (p PublishedAt) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	b, err := json.Marshal(p.Time.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("marshal published date: %w", err)
	}
	return b, nil
}

// UnmarshalJSON accepts null, an RFC 3339 string, or a YYYY-MM-DD date.
// Anything else yields an invalid value instead of an error.
func (p *PublishedAt) UnmarshalJSON(data []byte) error {
	*p = PublishedAt{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil //nolint:nilerr // non-string dates load as invalid
	}
	*p = ParsePublishedAt(raw)
	return nil
}

// ParsePublishedAt parses the machine-readable datetime found on listing pages.
func ParsePublishedAt(raw string) PublishedAt {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return NewPublishedAt(t)
		}
	}
	return PublishedAt{}
}

// ArticleSummary is one row of a listing page.
type ArticleSummary struct {
	Title      string
	URL        string
	Date       PublishedAt
	Categories []Category
}

// ArticleBody is what an article page contributes to a record.
type ArticleBody struct {
	Content string
	Tags    []Tag
	Related []Tag
}

// Listing is a parsed listing page.
type Listing struct {
	Summaries []ArticleSummary
	// NextPageURL is empty on the last page.
	NextPageURL string
}

// ArticleRecord is the persisted form of an article. Title is unique within a store.
type ArticleRecord struct {
	Title      string      `json:"title"`
	URL        string      `json:"url"`
	Date       PublishedAt `json:"date"`
	Content    string      `json:"content"`
	Categories []Category  `json:"categories"`
	Tags       []Tag       `json:"tags"`
	Related    []Tag       `json:"related"`
}

// NewArticleRecord merges listing-derived and article-derived fields.
func NewArticleRecord(summary ArticleSummary, body ArticleBody) ArticleRecord {
	return ArticleRecord{
		Title:      summary.Title,
		URL:        summary.URL,
		Date:       summary.Date,
		Content:    body.Content,
		Categories: summary.Categories,
		Tags:       body.Tags,
		Related:    body.Related,
	}
}

// Stats summarizes one crawl.
type Stats struct {
	Pages   int `json:"pages"`
	Seen    int `json:"seen"`
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}
