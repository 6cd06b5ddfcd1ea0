// Package blob defines raw document byte storage, keyed by opaque string keys.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no blob exists under a key.
var ErrNotFound = errors.New("blob not found")

// Store persists raw uploaded bytes. Content type is accepted for forward
// compatibility but implementations may ignore it.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
