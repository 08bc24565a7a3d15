package epub

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-epub/internal/crawler"
)

type recordingBuilder struct {
	meta     Metadata
	sections []Section
	err      error
}

func (b *recordingBuilder) Build(_ context.Context, meta Metadata, sections []Section) ([]byte, error) {
	b.meta = meta
	b.sections = sections
	if b.err != nil {
		return nil, b.err
	}
	return []byte("book"), nil
}

func testMetadata() Metadata {
	return Metadata{
		Title:     "مقالات",
		Author:    "الكاتب",
		Language:  "ar",
		Direction: "rtl",
		TOCTitle:  "فهرس المقالات",
		CSS:       "* { direction: rtl }",
	}
}

func newTestAssembler(t *testing.T, builder Builder) *Assembler {
	t.Helper()
	a, err := New(Config{Metadata: testMetadata()}, builder, nil)
	require.NoError(t, err)
	return a
}

func TestRenderSectionSanitizes(t *testing.T) {
	t.Parallel()

	a := newTestAssembler(t, &recordingBuilder{})
	record := crawler.ArticleRecord{
		Title: "عنوان <1>",
		URL:   "https://example.com/a/?x=1&y=2",
		Content: `<p style="color:red" onclick="evil()">hello<img src="a.png"/></p>` +
			`<script>alert(1)</script>` +
			`<div class="wp-block"><span id="s" dir="ltr">nested</span></div>`,
	}

	section, err := a.RenderSection(record, 3)
	require.NoError(t, err)
	assert.Equal(t, "article-3.xhtml", section.Filename)
	assert.Equal(t, record.Title, section.Title)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(section.Document))
	require.NoError(t, err)

	assert.Zero(t, doc.Find(".list").Length(), "template scaffold is removed")
	assert.Zero(t, doc.Find("img").Length())
	assert.Zero(t, doc.Find("script").Length())

	link := doc.Find(".articles .article center h2.article-title a")
	require.Equal(t, 1, link.Length())
	assert.Equal(t, record.Title, link.Text())
	href, _ := link.Attr("href")
	assert.Equal(t, record.URL, href)

	content := doc.Find(".article-content")
	require.Equal(t, 1, content.Length())
	content.Find("*").Each(func(_ int, s *goquery.Selection) {
		assert.Empty(t, s.Nodes[0].Attr, "attributes survived on <%s>", goquery.NodeName(s))
	})
	assert.Equal(t, "hello", content.Find("p").Text())
	assert.Equal(t, "nested", content.Find("div span").Text())
	assert.NotContains(t, section.Document, "evil")

	assert.Contains(t, section.Body, `class="article-title"`)
	assert.NotContains(t, section.Body, "<body")
}

func TestAssembleOrderAndFilenames(t *testing.T) {
	t.Parallel()

	builder := &recordingBuilder{}
	a := newTestAssembler(t, builder)
	records := []crawler.ArticleRecord{
		{Title: "B", Content: "<p>b</p>"},
		{Title: "A", Content: "<p>a</p>"},
	}

	book, err := a.Assemble(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, []byte("book"), book)
	assert.Equal(t, testMetadata(), builder.meta)
	require.Len(t, builder.sections, 2)
	assert.Equal(t, "B", builder.sections[0].Title)
	assert.Equal(t, "article-0.xhtml", builder.sections[0].Filename)
	assert.Equal(t, "A", builder.sections[1].Title)
	assert.Equal(t, "article-1.xhtml", builder.sections[1].Filename)
}

func TestAssembleErrors(t *testing.T) {
	t.Parallel()

	t.Run("no articles", func(t *testing.T) {
		t.Parallel()
		a := newTestAssembler(t, &recordingBuilder{})
		_, err := a.Assemble(context.Background(), nil)
		require.ErrorIs(t, err, ErrNoArticles)
	})

	t.Run("builder failure", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		a := newTestAssembler(t, &recordingBuilder{err: boom})
		_, err := a.Assemble(context.Background(), []crawler.ArticleRecord{{Title: "A"}})
		require.ErrorIs(t, err, boom)
	})
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil, nil)
	require.Error(t, err)

	_, err = New(Config{TemplatePath: filepath.Join(t.TempDir(), "missing.html")}, &recordingBuilder{}, nil)
	require.Error(t, err)
}

func TestCustomTemplate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "page.html")
	tmpl := `<html><body><nav class="list">menu</nav><section class="articles"><p class="intro">x</p></section></body></html>`
	require.NoError(t, os.WriteFile(path, []byte(tmpl), 0o600))

	a, err := New(Config{TemplatePath: path}, &recordingBuilder{}, nil)
	require.NoError(t, err)
	section, err := a.RenderSection(crawler.ArticleRecord{Title: "T", Content: "c"}, 0)
	require.NoError(t, err)
	assert.NotContains(t, section.Document, "menu")
	assert.Contains(t, section.Document, `<p class="intro">x</p><div class="article">`)

	bad := filepath.Join(t.TempDir(), "bad.html")
	require.NoError(t, os.WriteFile(bad, []byte(`<html><body></body></html>`), 0o600))
	a, err = New(Config{TemplatePath: bad}, &recordingBuilder{}, nil)
	require.NoError(t, err)
	_, err = a.RenderSection(crawler.ArticleRecord{Title: "T"}, 0)
	require.Error(t, err)
}

func TestGoEpubBuilder(t *testing.T) {
	t.Parallel()

	scratch := t.TempDir()
	a, err := New(Config{Metadata: testMetadata()}, GoEpubBuilder{TempDir: scratch}, nil)
	require.NoError(t, err)

	book, err := a.Assemble(context.Background(), []crawler.ArticleRecord{
		{Title: "B", URL: "https://example.com/b/", Content: "<p>بيتا</p>"},
		{Title: "A", URL: "https://example.com/a/", Content: "<p>ألفا</p>"},
	})
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(book, []byte("PK")), "epub is a zip archive")

	zr, err := zip.NewReader(bytes.NewReader(book), int64(len(book)))
	require.NoError(t, err)
	require.NotEmpty(t, zr.File)
	assert.Equal(t, "mimetype", zr.File[0].Name)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	joined := strings.Join(names, "\n")
	assert.Contains(t, joined, "article-0.xhtml")
	assert.Contains(t, joined, "article-1.xhtml")
	assert.Contains(t, joined, "contents.xhtml")
	assert.Contains(t, joined, "style.css")

	leftovers, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, leftovers, "scratch directory is removed after the build")
}

func TestGoEpubBuilderCleansUpOnFailure(t *testing.T) {
	t.Parallel()

	scratch := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := GoEpubBuilder{TempDir: scratch}.Build(ctx, testMetadata(), []Section{{Title: "A", Filename: "article-0.xhtml", Body: "<p>a</p>"}})
	require.ErrorIs(t, err, context.Canceled)

	leftovers, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}
