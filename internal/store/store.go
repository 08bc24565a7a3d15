// Package store keeps the ordered, title-deduplicated collection of article
// records and persists it as one JSON document through a blob backend.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/article-epub/internal/crawler"
	"github.com/JakeFAU/article-epub/internal/storage"
)

// ContentType is recorded with the persisted document.
const ContentType = "application/json"

var (
	// ErrDuplicateTitle is returned when a record's title is already present.
	ErrDuplicateTitle = errors.New("duplicate article title")
	// ErrEmptyTitle is returned when a record has no title to key on.
	ErrEmptyTitle = errors.New("article title is empty")
)

// Store is an ordered collection of article records keyed by title.
// It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records []crawler.ArticleRecord
	titles  map[string]struct{}

	blobs storage.BlobStore
	key   string
}

// New returns an empty store that persists to key in blobs.
func New(blobs storage.BlobStore, key string) *Store {
	return &Store{
		titles: make(map[string]struct{}),
		blobs:  blobs,
		key:    key,
	}
}

// Load reads the document at key. A missing document yields an empty store; a
// document that cannot be decoded is an error. When a document repeats a title,
// the first record wins.
func Load(ctx context.Context, blobs storage.BlobStore, key string) (*Store, error) {
	s := New(blobs, key)
	data, err := blobs.GetObject(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s, nil
		}
		return nil, fmt.Errorf("load articles: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return s, nil
	}
	var records []crawler.ArticleRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode articles %s: %w", key, err)
	}
	for _, rec := range records {
		if rec.Title == "" || s.hasLocked(rec.Title) {
			continue
		}
		s.appendLocked(rec)
	}
	return s, nil
}

// Has reports whether a record with title exists.
func (s *Store) Has(title string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasLocked(title)
}

// Append adds record. Callers check Has first; a second record with the same
// title is rejected with ErrDuplicateTitle rather than merged.
func (s *Store) Append(record crawler.ArticleRecord) error {
	if record.Title == "" {
		return ErrEmptyTitle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasLocked(record.Title) {
		return fmt.Errorf("%w: %q", ErrDuplicateTitle, record.Title)
	}
	s.appendLocked(record)
	return nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// SortedByDateAscending returns a new slice ordered by date. Records with an
// invalid date come first; ties keep insertion order.
func (s *Store) SortedByDateAscending() []crawler.ArticleRecord {
	s.mu.RLock()
	out := make([]crawler.ArticleRecord, len(s.records))
	copy(out, s.records)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Date, out[j].Date
		switch {
		case !a.Valid:
			return b.Valid
		case !b.Valid:
			return false
		default:
			return a.Before(b)
		}
	})
	return out
}

// Persist replaces the backing document with every record, sorted by date.
func (s *Store) Persist(ctx context.Context) error {
	if s.blobs == nil {
		return errors.New("store has no backing blob store")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.SortedByDateAscending()); err != nil {
		return fmt.Errorf("encode articles: %w", err)
	}
	if _, err := s.blobs.PutObject(ctx, s.key, ContentType, &buf); err != nil {
		return fmt.Errorf("write articles: %w", err)
	}
	return nil
}

func (s *Store) hasLocked(title string) bool {
	_, ok := s.titles[title]
	return ok
}

func (s *Store) appendLocked(record crawler.ArticleRecord) {
	s.records = append(s.records, record)
	s.titles[record.Title] = struct{}{}
}
