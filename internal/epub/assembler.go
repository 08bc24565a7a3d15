package epub

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	nethtml "golang.org/x/net/html"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-epub/internal/crawler"
)

//go:embed template.html
var defaultTemplate string

// ErrNoArticles is returned when there is nothing to put in the book.
var ErrNoArticles = errors.New("no articles to assemble")

// Metadata describes the book as a whole.
type Metadata struct {
	Title     string
	Author    string
	Language  string
	Direction string
	TOCTitle  string
	CSS       string
}

// Config holds assembler settings. TemplatePath overrides the embedded page
// template when set.
type Config struct {
	Metadata
	TemplatePath string
}

// Section is one rendered article.
type Section struct {
	Title    string
	Filename string
	// Document is the full serialized page; Body is the inner HTML of its body element.
	Document string
	Body     string
}

// Builder turns rendered sections into an EPUB file.
type Builder interface {
	Build(ctx context.Context, meta Metadata, sections []Section) ([]byte, error)
}

// Assembler renders records and delegates encoding to a Builder.
type Assembler struct {
	meta     Metadata
	template string
	policy   *bluemonday.Policy
	builder  Builder
	logger   *zap.Logger
}

// New loads the page template and returns an Assembler.
func New(cfg Config, builder Builder, logger *zap.Logger) (*Assembler, error) {
	if builder == nil {
		return nil, errors.New("epub builder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	tmpl := defaultTemplate
	if cfg.TemplatePath != "" {
		raw, err := os.ReadFile(cfg.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("read template: %w", err)
		}
		tmpl = string(raw)
	}
	return &Assembler{
		meta:     cfg.Metadata,
		template: tmpl,
		policy:   bluemonday.UGCPolicy(),
		builder:  builder,
		logger:   logger,
	}, nil
}

// SectionFilename names the internal file for the article at index.
func SectionFilename(index int) string {
	return fmt.Sprintf("article-%d.xhtml", index)
}

// RenderSection builds the page for one record. Content is sanitized, then every
// attribute under the content container is dropped and all images are removed.
func (a *Assembler) RenderSection(record crawler.ArticleRecord, index int) (Section, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(a.template))
	if err != nil {
		return Section{}, fmt.Errorf("parse template: %w", err)
	}
	doc.Find(".list").Remove()

	articles := doc.Find(".articles").First()
	if articles.Length() == 0 {
		return Section{}, errors.New("template has no .articles container")
	}
	articles.AppendHtml(fmt.Sprintf(
		`<div class="article"><center><h2 class="article-title"><a href="%s">%s</a></h2></center><div class="article-content">%s</div></div>`,
		html.EscapeString(record.URL),
		html.EscapeString(record.Title),
		a.policy.Sanitize(record.Content),
	))

	// Collect the nodes first so the walk is not affected by the edits.
	stripAttributes(doc.Find(".article-content *").Nodes)
	doc.Find("img").Remove()

	document, err := goquery.OuterHtml(doc.Selection)
	if err != nil {
		return Section{}, fmt.Errorf("serialize section %d: %w", index, err)
	}
	body, err := doc.Find("body").Html()
	if err != nil {
		return Section{}, fmt.Errorf("serialize section body %d: %w", index, err)
	}
	return Section{
		Title:    record.Title,
		Filename: SectionFilename(index),
		Document: document,
		Body:     body,
	}, nil
}

// Assemble renders records in the given order and builds the book.
func (a *Assembler) Assemble(ctx context.Context, records []crawler.ArticleRecord) ([]byte, error) {
	if len(records) == 0 {
		return nil, ErrNoArticles
	}
	sections := make([]Section, 0, len(records))
	for i, record := range records {
		section, err := a.RenderSection(record, i)
		if err != nil {
			return nil, err
		}
		sections = append(sections, section)
	}
	a.logger.Info("assembling ebook", zap.Int("sections", len(sections)))
	book, err := a.builder.Build(ctx, a.meta, sections)
	if err != nil {
		return nil, fmt.Errorf("build epub: %w", err)
	}
	return book, nil
}

func stripAttributes(nodes []*nethtml.Node) {
	for _, n := range nodes {
		if n.Type == nethtml.ElementNode {
			n.Attr = nil
		}
	}
}
