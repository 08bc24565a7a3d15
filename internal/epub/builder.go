package epub

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	goepub "github.com/go-shiori/go-epub"
)

const contentsFilename = "contents.xhtml"

// GoEpubBuilder writes books with go-shiori/go-epub. The library works with
// files, so each build gets its own temporary directory.
type GoEpubBuilder struct {
	// TempDir is the parent of the scratch directory; empty means os.TempDir.
	TempDir string
}

// Build implements Builder.
func (b GoEpubBuilder) Build(ctx context.Context, meta Metadata, sections []Section) ([]byte, error) {
	dir, err := os.MkdirTemp(b.TempDir, "articlepub-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir) //nolint:errcheck // best effort

	book, err := goepub.NewEpub(meta.Title)
	if err != nil {
		return nil, fmt.Errorf("new epub: %w", err)
	}
	book.SetAuthor(meta.Author)
	if meta.Language != "" {
		book.SetLang(meta.Language)
	}
	if meta.Direction != "" {
		book.SetPpd(meta.Direction)
	}

	cssPath := ""
	if meta.CSS != "" {
		src := filepath.Join(dir, "style.css")
		if err := os.WriteFile(src, []byte(meta.CSS), 0o600); err != nil {
			return nil, fmt.Errorf("write stylesheet: %w", err)
		}
		cssPath, err = book.AddCSS(src, "style.css")
		if err != nil {
			return nil, fmt.Errorf("add stylesheet: %w", err)
		}
	}

	if meta.TOCTitle != "" {
		if _, err := book.AddSection(contentsPage(meta.TOCTitle, sections), meta.TOCTitle, contentsFilename, cssPath); err != nil {
			return nil, fmt.Errorf("add contents page: %w", err)
		}
	}

	for _, s := range sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := book.AddSection(s.Body, s.Title, s.Filename, cssPath); err != nil {
			return nil, fmt.Errorf("add section %s: %w", s.Filename, err)
		}
	}

	out := filepath.Join(dir, "book.epub")
	if err := book.Write(out); err != nil {
		return nil, fmt.Errorf("write epub: %w", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read epub: %w", err)
	}
	return data, nil
}

// contentsPage lists every section under the given heading. Sections share a
// directory inside the book, so plain filenames work as links.
func contentsPage(title string, sections []Section) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>%s</h1><ol>", html.EscapeString(title))
	for _, s := range sections {
		fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>", s.Filename, html.EscapeString(s.Title))
	}
	b.WriteString("</ol>")
	return b.String()
}
