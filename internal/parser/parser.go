// Package parser extracts listing rows and article bodies from the source
// site's HTML using goquery selectors.
package parser

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrMissingHeading is returned when a listing row has no heading link.
	ErrMissingHeading = errors.New("listing row has no heading link")
	// ErrMissingContent is returned when neither content container is present.
	ErrMissingContent = errors.New("article page has no content containers")
)

// Selectors locates each piece of the remote site's markup.
type Selectors struct {
	NextPage        string `mapstructure:"next_page"`
	Rows            string `mapstructure:"rows"`
	RowHeading      string `mapstructure:"row_heading"`
	RowDate         string `mapstructure:"row_date"`
	RowCategories   string `mapstructure:"row_categories"`
	Boilerplate     string `mapstructure:"boilerplate"`
	ContentPrimary  string `mapstructure:"content_primary"`
	ContentFollowup string `mapstructure:"content_followup"`
	Tags            string `mapstructure:"tags"`
	Related         string `mapstructure:"related"`
}

// DefaultSelectors matches a WordPress block theme's query-loop archive.
func DefaultSelectors() Selectors {
	return Selectors{
		NextPage:        "main div nav a.wp-block-query-pagination-next",
		Rows:            "main div div ul li",
		RowHeading:      "h2.wp-block-post-title a",
		RowDate:         "div.wp-block-post-date time[datetime]",
		RowCategories:   "div.wp-block-post-terms a[rel=tag]",
		Boilerplate:     "main > div",
		ContentPrimary:  "main div",
		ContentFollowup: "main div + div",
		Tags:            "main .wp-block-post-terms a",
		Related:         "main + div div.wp-block-query ul li a",
	}
}

// Parser implements crawler.Parser over a fixed selector set.
type Parser struct {
	sel Selectors
}

// New returns a Parser. Empty selector fields fall back to DefaultSelectors.
func New(sel Selectors) *Parser {
	def := DefaultSelectors()
	fill := func(v *string, d string) {
		if strings.TrimSpace(*v) == "" {
			*v = d
		}
	}
	fill(&sel.NextPage, def.NextPage)
	fill(&sel.Rows, def.Rows)
	fill(&sel.RowHeading, def.RowHeading)
	fill(&sel.RowDate, def.RowDate)
	fill(&sel.RowCategories, def.RowCategories)
	fill(&sel.Boilerplate, def.Boilerplate)
	fill(&sel.ContentPrimary, def.ContentPrimary)
	fill(&sel.ContentFollowup, def.ContentFollowup)
	fill(&sel.Tags, def.Tags)
	fill(&sel.Related, def.Related)
	return &Parser{sel: sel}
}

func newDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// cleanText trims whitespace and NFC-normalizes so the same title always
// produces the same dedup key.
func cleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// resolveHref returns the element's href made absolute against base.
func resolveHref(s *goquery.Selection, base *url.URL) string {
	href, ok := s.Attr("href")
	if !ok {
		return ""
	}
	href = strings.TrimSpace(href)
	if base == nil || href == "" {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
