package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"encoded arabic path", "https://alkulify.com/%D9%83%D9%84/", "alkulify.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if fetchAttemptsTotal == nil || articlesTotal == nil || ebookBuildsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObservers(t *testing.T) {
	Init()
	before := testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("metrics.test", "error"))
	ObserveFetch("https://metrics.test/page/2/", "error")
	ObserveFetch("https://metrics.test/page/3/", "error")
	if got := testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("metrics.test", "error")) - before; got != 2 {
		t.Errorf("expected 2 fetch attempts, got %f", got)
	}

	addedBefore := testutil.ToFloat64(articlesTotal.WithLabelValues("added"))
	ObserveArticle("added")
	if got := testutil.ToFloat64(articlesTotal.WithLabelValues("added")) - addedBefore; got != 1 {
		t.Errorf("expected 1 added article, got %f", got)
	}

	ObserveRateLimitDelay("metrics.test", 20*time.Millisecond)
	if got := testutil.CollectAndCount(rateLimitDelaySeconds); got < 1 {
		t.Errorf("expected a rate limit series, got %d", got)
	}

	ObserveEbookServed("cached")
	ObserveEbookBuild(2*time.Second, 4096)
	if got := testutil.ToFloat64(ebookBytes); got != 4096 {
		t.Errorf("expected ebook size gauge 4096, got %f", got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
