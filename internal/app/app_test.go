package app_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-epub/internal/app"
	"github.com/JakeFAU/article-epub/internal/clock"
	"github.com/JakeFAU/article-epub/internal/config"
	"github.com/JakeFAU/article-epub/internal/ebook"
	pubmemory "github.com/JakeFAU/article-epub/internal/publisher/memory"
	"github.com/JakeFAU/article-epub/internal/storage/memory"
	"github.com/JakeFAU/article-epub/internal/testutil"
)

func newSite(t *testing.T) *testutil.Site {
	t.Helper()
	site := testutil.NewSite(t)
	site.Page("/all/", testutil.ListingHTML([]testutil.Row{
		{Title: "A", Href: "/a/", Datetime: "2023-01-02T00:00:00Z"},
		{Title: "B", Href: "/b/", Datetime: "2023-01-01T00:00:00Z"},
	}, ""))
	site.Page("/a/", testutil.ArticleHTML("<p>alpha</p>", "", nil, nil))
	site.Page("/b/", testutil.ArticleHTML("<p>beta</p>", "", nil, nil))
	return site
}

func testConfig(t *testing.T, site *testutil.Site) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Source.StartURL = site.URL("/all/")
	cfg.Storage.Backend = "local"
	cfg.Storage.Local.BaseDir = t.TempDir()
	cfg.Crawler.Timeout = 5 * time.Second
	return cfg
}

func TestEndToEndDownload(t *testing.T) {
	t.Parallel()

	site := newSite(t)
	cfg := testConfig(t, site)
	pub := pubmemory.New()
	clk := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.Overrides{Publisher: pub, Clock: clk})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	handler := a.Server().Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/file", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, ebook.ContentType, rec.Header().Get("Content-Type"))

	body := rec.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	files := map[string]*zip.File{}
	for _, f := range zr.File {
		files[filepath.Base(f.Name)] = f
	}
	require.Contains(t, files, "article-0.xhtml")
	require.Contains(t, files, "article-1.xhtml")
	first := readZipFile(t, files["article-0.xhtml"])
	assert.Contains(t, first, "beta", "the older article comes first")

	cache, err := os.ReadFile(filepath.Join(cfg.Storage.Local.BaseDir, cfg.Storage.ArticlesKey))
	require.NoError(t, err)
	var records []map[string]any
	require.NoError(t, json.Unmarshal(cache, &records))
	assert.Len(t, records, 2)
	_, err = os.Stat(filepath.Join(cfg.Storage.Local.BaseDir, cfg.Ebook.Key))
	require.NoError(t, err)
	assert.Len(t, pub.Notifications(), 1)

	// Served from cache while fresh.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/file", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, site.Hits("/all/"))

	// Rebuilt once stale, without refetching known articles.
	clk.Advance(cfg.Ebook.MaxAge)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/file", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, site.Hits("/all/"))
	assert.Equal(t, 1, site.Hits("/a/"))
}

func TestRestartAdoptsCache(t *testing.T) {
	t.Parallel()

	site := newSite(t)
	cfg := testConfig(t, site)

	first, err := app.New(context.Background(), cfg, nil, app.Overrides{})
	require.NoError(t, err)
	_, err = first.Ebooks.Ebook(context.Background())
	require.NoError(t, err)
	first.Close()

	second, err := app.New(context.Background(), cfg, nil, app.Overrides{})
	require.NoError(t, err)
	t.Cleanup(second.Close)
	assert.Equal(t, 2, second.Store.Len())
	_, ok := second.Ebooks.BuiltAt()
	assert.True(t, ok)

	_, err = second.Ebooks.Ebook(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, site.Hits("/all/"), "adopted artifact is served without a crawl")
}

func TestCorruptCacheIsFatal(t *testing.T) {
	t.Parallel()

	site := newSite(t)
	cfg := testConfig(t, site)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Storage.Local.BaseDir, cfg.Storage.ArticlesKey), []byte("{not json"), 0o600))

	_, err := app.New(context.Background(), cfg, nil, app.Overrides{})
	require.Error(t, err)
}

func TestMemoryBackend(t *testing.T) {
	t.Parallel()

	site := newSite(t)
	cfg := testConfig(t, site)
	cfg.Storage.Backend = "memory"

	a, err := app.New(context.Background(), cfg, nil, app.Overrides{})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	assert.IsType(t, &memory.BlobStore{}, a.Blobs)
	assert.IsType(t, &pubmemory.Publisher{}, a.Publisher)
}

func TestUnknownBackend(t *testing.T) {
	t.Parallel()

	site := newSite(t)
	cfg := testConfig(t, site)
	cfg.Storage.Backend = "floppy"

	_, err := app.New(context.Background(), cfg, nil, app.Overrides{})
	require.ErrorContains(t, err, "unknown storage backend")
}

func readZipFile(t *testing.T, f *zip.File) string {
	t.Helper()
	rc, err := f.Open()
	require.NoError(t, err)
	defer rc.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(rc)
	require.NoError(t, err)
	return buf.String()
}
