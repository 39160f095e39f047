// Package announce defines the interface for broadcasting delivered
// notifications to a message bus. This abstraction keeps the pipeline
// independent of a specific broker so downstream consumers (dashboards,
// archival jobs, other notifiers) can subscribe without touching the
// alert path.
package announce

import (
	"context"
)

// Provider broadcasts notification ids to interested subscribers.
type Provider interface {
	// Announce publishes the id of a notification that was just
	// delivered, stamped with the run that produced it. This is a
	// non-blocking, fire-and-forget operation; a failed announce never
	// blocks the alert itself.
	Announce(ctx context.Context, notificationID, runID string) error

	// Close cleans up any client connections and resources.
	Close() error
}

// NoOpProvider is an announce provider that performs no operations.
// It is useful for testing or running the pipeline without a message bus.
type NoOpProvider struct{}

// Announce for NoOpProvider does nothing and returns nil.
func (n *NoOpProvider) Announce(_ context.Context, _, _ string) error { return nil }

// Close for NoOpProvider does nothing and returns nil.
func (n *NoOpProvider) Close() error { return nil }
