// Package blob defines the interfaces for a blob storage provider used to
// archive raw showtime payloads. The abstraction keeps the pipeline
// independent of a specific backend (Google Cloud Storage or the local
// filesystem).
package blob

import (
	"context"
)

// Provider defines the common interface for a blob storage provider.
type Provider interface {
	// Save uploads data to a specified object path/key in the blob store.
	Save(ctx context.Context, objectName string, data []byte) error
}

// NoOpProvider is a storage provider that performs no operations. It is
// useful for dry runs where payloads are fetched but never archived.
type NoOpProvider struct{}

// Save for NoOpProvider does nothing and always returns nil.
func (n *NoOpProvider) Save(_ context.Context, _ string, _ []byte) error {
	return nil
}

// RawPayloadKey builds the archive key for one fetched page:
// raw_responses/<slug>/response_<date>.html.
func RawPayloadKey(slug, date string) string {
	return "raw_responses/" + slug + "/response_" + date + ".html"
}
