// Package store persists which events have been notified so repeat runs
// stay quiet until something actually changes.
package store

import (
	"context"

	"github.com/cinewatch/showtime-alerts/internal/showtime"
)

// Decision is the outcome of checking an event against the stored state.
// A nil Diff with Notify true means the event is new; a non-nil Diff means
// its showtimes moved since the last notification.
type Decision struct {
	Notify bool
	Diff   *showtime.ShowtimeDiff
}

// Statistics summarizes the stored notification state.
type Statistics struct {
	TotalRecords   int            `json:"total_records"`
	ByEventType    map[string]int `json:"by_event_type"`
	UpcomingEvents int            `json:"upcoming_events"`
}

// Store tracks notified events across runs.
type Store interface {
	// ShouldNotify decides whether the event warrants a notification.
	// Read failures fail open: the event is reported as new.
	ShouldNotify(ctx context.Context, ev showtime.Event) Decision

	// MarkNotified records a delivered notification. isUpdate selects
	// between inserting a fresh record and bumping an existing one.
	MarkNotified(ctx context.Context, ev showtime.Event, isUpdate bool) error

	// Cleanup deletes records whose date is older than the retention
	// window and returns the number removed. Failures return zero.
	Cleanup(ctx context.Context, retentionDays int) int

	// Statistics reports totals over the stored records.
	Statistics(ctx context.Context) (Statistics, error)

	// History returns the stored record for an event, or nil when the
	// event has never been notified.
	History(ctx context.Context, ev showtime.Event) (*showtime.NotificationRecord, error)

	// Close releases the underlying resources.
	Close()
}

// NoOpStore treats every event as new and remembers nothing. It is useful
// for dry runs where alerts should fire but no state should accumulate.
type NoOpStore struct{}

// ShouldNotify always reports the event as new.
func (NoOpStore) ShouldNotify(_ context.Context, _ showtime.Event) Decision {
	return Decision{Notify: true}
}

// MarkNotified does nothing and always returns nil.
func (NoOpStore) MarkNotified(_ context.Context, _ showtime.Event, _ bool) error {
	return nil
}

// Cleanup does nothing and reports zero deletions.
func (NoOpStore) Cleanup(_ context.Context, _ int) int {
	return 0
}

// Statistics reports an empty state.
func (NoOpStore) Statistics(_ context.Context) (Statistics, error) {
	return Statistics{ByEventType: map[string]int{}}, nil
}

// History reports that no event has ever been notified.
func (NoOpStore) History(_ context.Context, _ showtime.Event) (*showtime.NotificationRecord, error) {
	return nil, nil
}

// Close does nothing.
func (NoOpStore) Close() {}
