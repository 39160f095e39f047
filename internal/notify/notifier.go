// Package notify decides which classified events become notifications
// and delivers them.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cinewatch/showtime-alerts/internal/announce"
	"github.com/cinewatch/showtime-alerts/internal/metrics"
	"github.com/cinewatch/showtime-alerts/internal/showtime"
	"github.com/cinewatch/showtime-alerts/internal/store"
)

const defaultRetentionDays = 30

// Sender delivers one rendered message to one destination.
type Sender interface {
	Send(ctx context.Context, destination, message string) error
}

// Sleeper abstracts the inter-message delay so tests can skip it.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration)
}

type standardSleeper struct{}

func (standardSleeper) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// DeliveryStats aggregates the outcome of one dispatch pass.
type DeliveryStats struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Updated int `json:"updated"`
}

// DispatcherConfig controls filtering, destinations, and pacing.
type DispatcherConfig struct {
	// Categories limits delivery to the listed event categories. An
	// empty list delivers everything.
	Categories []showtime.EventCategory
	// Destinations are the chat ids every notification goes to.
	Destinations []string
	// SendDelay paces consecutive sends.
	SendDelay time.Duration
	// RetentionDays bounds how long delivered notifications are kept.
	RetentionDays int
}

// Dispatcher decides which events to deliver, sends them, and keeps the
// dedup store in sync with what actually went out.
type Dispatcher struct {
	cfg       DispatcherConfig
	store     store.Store
	sender    Sender
	announcer announce.Provider
	formatter *Formatter
	sleeper   Sleeper
	log       *zap.Logger
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithAnnouncer publishes delivered notification ids through p.
func WithAnnouncer(p announce.Provider) DispatcherOption {
	return func(d *Dispatcher) {
		if p != nil {
			d.announcer = p
		}
	}
}

// WithSleeper replaces the inter-message delay implementation.
func WithSleeper(s Sleeper) DispatcherOption {
	return func(d *Dispatcher) {
		if s != nil {
			d.sleeper = s
		}
	}
}

// WithFormatter replaces the message formatter.
func WithFormatter(f *Formatter) DispatcherOption {
	return func(d *Dispatcher) {
		if f != nil {
			d.formatter = f
		}
	}
}

// NewDispatcher wires a dispatcher over the given store and sender.
func NewDispatcher(cfg DispatcherConfig, st store.Store, sender Sender, log *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	if st == nil {
		st = store.NoOpStore{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		cfg:       cfg,
		store:     st,
		sender:    sender,
		announcer: &announce.NoOpProvider{},
		formatter: NewFormatter(),
		sleeper:   standardSleeper{},
		log:       log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type pendingNotification struct {
	ev      showtime.Event
	message string
	diff    *showtime.ShowtimeDiff
}

// Deliver sends notifications for every event that warrants one and
// returns aggregate counts. Individual failures never abort the pass. An
// event counts as sent only when at least one destination accepted it,
// and only sent events are marked in the store, so a full miss is retried
// on the next run.
func (d *Dispatcher) Deliver(ctx context.Context, runID string, events []showtime.Event) DeliveryStats {
	var stats DeliveryStats

	matching := d.matchingEvents(events)
	d.log.Info("filtered events for notification",
		zap.Int("total", len(events)),
		zap.Int("matching", len(matching)))
	if len(matching) == 0 {
		return stats
	}

	var queue []pendingNotification
	for _, ev := range matching {
		decision := d.store.ShouldNotify(ctx, ev)
		if !decision.Notify {
			stats.Skipped++
			metrics.ObserveNotification("skipped")
			d.log.Debug("skipping already notified event",
				zap.String("movie", ev.MovieName),
				zap.String("date", ev.Date))
			continue
		}
		var message string
		if decision.Diff != nil {
			message = d.formatter.FormatUpdate(ev, *decision.Diff)
			d.log.Info("showtimes changed since last notification",
				zap.String("movie", ev.MovieName),
				zap.Strings("added", decision.Diff.Added),
				zap.Strings("removed", decision.Diff.Removed))
		} else {
			message = d.formatter.FormatNew(ev)
			d.log.Info("new event to notify",
				zap.String("movie", ev.MovieName),
				zap.String("date", ev.Date))
		}
		queue = append(queue, pendingNotification{ev: ev, message: message, diff: decision.Diff})
	}

	if len(queue) == 0 {
		d.store.Cleanup(ctx, d.cfg.RetentionDays)
		return stats
	}

	d.log.Info("sending notifications",
		zap.Int("events", len(queue)),
		zap.Int("destinations", len(d.cfg.Destinations)))

	for _, p := range queue {
		if ctx.Err() != nil {
			break
		}
		accepted := 0
		for _, dest := range d.cfg.Destinations {
			if err := d.sender.Send(ctx, dest, p.message); err != nil {
				d.log.Warn("notification send failed",
					zap.String("destination", dest),
					zap.String("movie", p.ev.MovieName),
					zap.Error(err))
			} else {
				accepted++
			}
			d.sleeper.Sleep(ctx, d.cfg.SendDelay)
		}
		if accepted == 0 {
			stats.Failed++
			metrics.ObserveNotification("failed")
			continue
		}

		isUpdate := p.diff != nil
		if err := d.store.MarkNotified(ctx, p.ev, isUpdate); err != nil {
			// The message already went out; a marking failure means at
			// worst a duplicate next run.
			d.log.Error("failed to record delivered notification",
				zap.String("movie", p.ev.MovieName),
				zap.Error(err))
		}
		stats.Sent++
		if isUpdate {
			stats.Updated++
			metrics.ObserveNotification("updated")
		} else {
			metrics.ObserveNotification("sent")
		}
		if err := d.announcer.Announce(ctx, p.ev.NotificationID(), runID); err != nil {
			d.log.Warn("announce failed",
				zap.String("notification_id", p.ev.NotificationID()),
				zap.Error(err))
		}
	}

	d.store.Cleanup(ctx, d.cfg.RetentionDays)
	return stats
}

func (d *Dispatcher) matchingEvents(events []showtime.Event) []showtime.Event {
	if len(d.cfg.Categories) == 0 {
		return events
	}
	allowed := make(map[showtime.EventCategory]struct{}, len(d.cfg.Categories))
	for _, category := range d.cfg.Categories {
		allowed[category] = struct{}{}
	}
	matching := make([]showtime.Event, 0, len(events))
	for _, ev := range events {
		if _, ok := allowed[ev.Category]; ok {
			matching = append(matching, ev)
		}
	}
	return matching
}
