package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/article-epub/internal/crawler"
)

// ParseArticlePage removes the boilerplate block, then joins the outer HTML of
// the two content containers. Tags and related-article links keep page order.
func (p *Parser) ParseArticlePage(html string, base *url.URL) (crawler.ArticleBody, error) {
	doc, err := newDocument(html)
	if err != nil {
		return crawler.ArticleBody{}, err
	}

	doc.Find(p.sel.Boilerplate).First().Remove()

	var parts []string
	for _, sel := range []string{p.sel.ContentPrimary, p.sel.ContentFollowup} {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		markup, err := goquery.OuterHtml(node)
		if err != nil {
			return crawler.ArticleBody{}, fmt.Errorf("render content: %w", err)
		}
		parts = append(parts, markup)
	}
	if len(parts) == 0 {
		return crawler.ArticleBody{}, ErrMissingContent
	}
	return crawler.ArticleBody{
		Content: strings.Join(parts, "\n"),
		Tags:    collectTags(doc.Find(p.sel.Tags), base),
		Related: collectTags(doc.Find(p.sel.Related), base),
	}, nil
}

func collectTags(links *goquery.Selection, base *url.URL) []crawler.Tag {
	var tags []crawler.Tag
	links.Each(func(_ int, a *goquery.Selection) {
		tags = append(tags, crawler.Tag{
			Name: cleanText(a.Text()),
			URL:  resolveHref(a, base),
		})
	})
	return tags
}
