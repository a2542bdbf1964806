package objectstore

import "context"

// Store uploads blobs (archived envelopes) to an object storage backend.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
