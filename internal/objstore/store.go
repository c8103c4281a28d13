// Package objstore holds the object-storage collaborators the reconciler and
// dispatcher consume: presigned GET URLs, uploads, and the ranged existence
// probe used before any reported object key is trusted.
package objstore

import "context"

// Store is the minimal object-storage surface the core depends on.
type Store interface {
	// PresignGet returns a time-limited GET URL for the key.
	PresignGet(ctx context.Context, key string) (string, error)
	// PutObject stores body under key with the given content type.
	PutObject(ctx context.Context, key, contentType string, body []byte) error
}
