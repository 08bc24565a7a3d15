// Package testutil builds fixture pages shaped like the source site's WordPress
// archive and serves them from an httptest server.
package testutil

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Link is an anchor in a fixture page.
type Link struct {
	Name string
	Href string
}

// Row is one listing-page entry. Datetime is written verbatim; leave it empty
// to omit the time element.
type Row struct {
	Title      string
	Href       string
	Datetime   string
	Categories []Link
}

// ListingHTML renders a listing page. An empty next omits the pagination link.
func ListingHTML(rows []Row, next string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><body><header><nav><a href=\"/\">home</a></nav></header><main><div>")
	b.WriteString("<div><ul class=\"wp-block-post-template\">")
	for _, r := range rows {
		b.WriteString("<li>")
		if r.Title != "" {
			fmt.Fprintf(&b, "<h2 class=\"wp-block-post-title\"><a href=\"%s\">%s</a></h2>",
				html.EscapeString(r.Href), html.EscapeString(r.Title))
		}
		if r.Datetime != "" {
			fmt.Fprintf(&b, "<div class=\"wp-block-post-date\"><time datetime=\"%s\">date</time></div>",
				html.EscapeString(r.Datetime))
		}
		b.WriteString("<div class=\"wp-block-post-terms\">")
		for _, c := range r.Categories {
			fmt.Fprintf(&b, "<a href=\"%s\" rel=\"tag\">%s</a>", html.EscapeString(c.Href), html.EscapeString(c.Name))
		}
		b.WriteString("</div></li>")
	}
	b.WriteString("</ul></div>")
	if next != "" {
		fmt.Fprintf(&b, "<nav><a class=\"wp-block-query-pagination-next\" href=\"%s\">next</a></nav>",
			html.EscapeString(next))
	}
	b.WriteString("</div></main></body></html>")
	return b.String()
}

// ArticleHTML renders an article page: a boilerplate header block, the two
// content containers, a terms block, and a related-posts query after main.
func ArticleHTML(content, followup string, tags, related []Link) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><body><main>")
	b.WriteString("<div class=\"boilerplate\"><p>share this</p></div>")
	fmt.Fprintf(&b, "<div class=\"entry-content\">%s</div>", content)
	fmt.Fprintf(&b, "<div class=\"entry-footer\">%s</div>", followup)
	b.WriteString("<section><div class=\"wp-block-post-terms\">")
	for _, t := range tags {
		fmt.Fprintf(&b, "<a href=\"%s\">%s</a>", html.EscapeString(t.Href), html.EscapeString(t.Name))
	}
	b.WriteString("</div></section></main><div><div class=\"wp-block-query\"><ul>")
	for _, r := range related {
		fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>", html.EscapeString(r.Href), html.EscapeString(r.Name))
	}
	b.WriteString("</ul></div></div></body></html>")
	return b.String()
}

// Site is a fake source site. Unknown paths answer 404.
type Site struct {
	*httptest.Server

	mu    sync.Mutex
	pages map[string]page
	hits  map[string]int
}

type page struct {
	status int
	body   string
}

// NewSite starts a Site that is closed when the test ends.
func NewSite(t testing.TB) *Site {
	t.Helper()
	s := &Site{
		pages: make(map[string]page),
		hits:  make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Server.Close)
	return s
}

// Handle serves body with status at path.
func (s *Site) Handle(path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[path] = page{status: status, body: body}
}

// Page serves body with 200 at path.
func (s *Site) Page(path, body string) {
	s.Handle(path, http.StatusOK, body)
}

// Hits returns how many requests path has received.
func (s *Site) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// URL returns the absolute URL of path on this site.
func (s *Site) URL(path string) string {
	return s.Server.URL + path
}

func (s *Site) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	p, ok := s.pages[r.URL.Path]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(p.status)
	_, _ = w.Write([]byte(p.body))
}
