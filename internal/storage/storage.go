// Package storage defines the blob storage abstraction used for the article
// cache and the built ebook. Backends live in the subpackages (local, memory,
// gcs, postgres) so the process can run from a laptop or from a stateless
// container with its state kept elsewhere.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by GetObject when no object exists at the path.
var ErrNotFound = errors.New("object not found")

// BlobStore reads and replaces whole objects by path.
type BlobStore interface {
	// PutObject replaces the object at path and returns a URI describing where it lives.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	// GetObject returns the full object, or an error wrapping ErrNotFound.
	GetObject(ctx context.Context, path string) ([]byte, error)
}
