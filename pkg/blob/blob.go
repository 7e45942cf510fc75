// Package blob defines the object storage capability media bytes are
// uploaded to.
//
// Keys are derived from the content hash, so writing the same key twice
// stores the same bytes and is safe. The media registry decides whether a
// write is needed at all: Put is only called for content the registry has
// not stored before.
package blob

import (
	"context"
	"errors"
)

// Store uploads bytes under a key and returns a URL for them.
type Store interface {
	// Put stores data under key and returns the URL it can be fetched from.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Close releases store resources.
	Close() error
}

// ErrInvalidKey is returned for empty keys or keys that escape the store.
var ErrInvalidKey = errors.New("invalid blob key")
