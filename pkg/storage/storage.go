// Package storage abstracts the flat key/value blob layout used by the YAML
// repositories. Keys are slash-separated paths like "tasks/<id>.yaml".
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("not found")

// Store reads and writes opaque blobs by key.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists the keys directly under prefix, in unspecified order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
