// Package epub renders article records into sanitized ebook sections and hands
// them to an EPUB writer.
package epub
