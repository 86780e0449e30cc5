// Package storage provides the object-store capability behind photo
// uploads: durable puts with no-overwrite semantics and public
// reference resolution.
package storage

import (
	"context"
	"errors"
)

// ErrPathExists is returned by Put when the destination path is
// already occupied. Paths are never silently replaced.
var ErrPathExists = errors.New("storage: path already exists")

// Store is the object storage capability. Put writes data at path and
// returns a durably-resolvable public reference; a path collision is
// an error. PublicURL resolves a path without writing.
type Store interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
	PublicURL(path string) string
}
