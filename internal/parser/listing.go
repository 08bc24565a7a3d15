package parser

import (
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/article-epub/internal/crawler"
)

// ParseListingPage extracts the article rows and the next-page link. A row
// without a heading link fails the whole page. Missing or unparsable dates
// produce an invalid crawler.PublishedAt.
func (p *Parser) ParseListingPage(html string, base *url.URL) (crawler.Listing, error) {
	doc, err := newDocument(html)
	if err != nil {
		return crawler.Listing{}, err
	}

	var listing crawler.Listing
	if next := doc.Find(p.sel.NextPage).First(); next.Length() > 0 {
		listing.NextPageURL = resolveHref(next, base)
	}

	var rowErr error
	doc.Find(p.sel.Rows).EachWithBreak(func(i int, row *goquery.Selection) bool {
		summary, err := p.parseRow(row, base)
		if err != nil {
			rowErr = fmt.Errorf("row %d: %w", i+1, err)
			return false
		}
		listing.Summaries = append(listing.Summaries, summary)
		return true
	})
	if rowErr != nil {
		return crawler.Listing{}, rowErr
	}
	return listing, nil
}

func (p *Parser) parseRow(row *goquery.Selection, base *url.URL) (crawler.ArticleSummary, error) {
	heading := row.Find(p.sel.RowHeading).First()
	if heading.Length() == 0 {
		return crawler.ArticleSummary{}, ErrMissingHeading
	}
	title := cleanText(heading.Text())
	if title == "" {
		return crawler.ArticleSummary{}, fmt.Errorf("%w: empty title", ErrMissingHeading)
	}

	summary := crawler.ArticleSummary{
		Title: title,
		URL:   resolveHref(heading, base),
	}
	if raw, ok := row.Find(p.sel.RowDate).First().Attr("datetime"); ok {
		summary.Date = crawler.ParsePublishedAt(raw)
	}
	row.Find(p.sel.RowCategories).Each(func(_ int, a *goquery.Selection) {
		summary.Categories = append(summary.Categories, crawler.Category{
			Name: cleanText(a.Text()),
			URL:  resolveHref(a, base),
		})
	})
	return summary, nil
}
