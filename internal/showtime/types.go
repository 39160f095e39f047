// Package showtime defines core types shared across subsystems.
package showtime

import (
	"fmt"
	"strings"
	"time"
)

// Location identifies a theater to scrape.
type Location struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// WorkUnit is a single (location, date) fetch task.
type WorkUnit struct {
	Location Location `json:"location"`
	Date     string   `json:"date"`
}

// FetchResult is the outcome of fetching one WorkUnit.
type FetchResult struct {
	Unit      WorkUnit
	Body      string
	Success   bool
	ErrorText string
	FetchedAt time.Time
}

// Movie is one title with its showtimes for a single day at a single theater.
type Movie struct {
	Name      string   `json:"name"`
	Slug      string   `json:"slug"`
	Runtime   *int     `json:"runtime"`
	Rating    string   `json:"rating"`
	Showtimes []string `json:"showtimes"`
}

// Valid reports whether the record carries the minimum fields required
// downstream: a name, a slug, and at least one showtime in canonical form.
func (m Movie) Valid() bool {
	if m.Name == "" || m.Slug == "" || len(m.Showtimes) == 0 {
		return false
	}
	for _, t := range m.Showtimes {
		if !IsCanonicalClock(t) {
			return false
		}
	}
	return true
}

// DailyResult is everything scraped for one theater on one date.
type DailyResult struct {
	Date      string  `json:"date"`
	Theater   string  `json:"theater"`
	Movies    []Movie `json:"movies"`
	FetchTime string  `json:"fetch_time"`
	Success   bool    `json:"success"`
	ErrorText string  `json:"error_message,omitempty"`
}

// Valid reports whether the result is usable for classification.
func (d DailyResult) Valid() bool {
	return d.Success && len(d.Movies) > 0
}

// EventCategory labels a classified special screening.
type EventCategory string

// The closed set of event categories.
const (
	CategoryAdvanceScreening EventCategory = "Advance Screening"
	CategoryEarlyAccess      EventCategory = "Early Access"
	CategoryFanEvent         EventCategory = "Fan Event"
	CategoryOneNightOnly     EventCategory = "One Night Only"
	CategoryPanelDiscussion  EventCategory = "Panel Discussion"
	CategoryPremiereEvent    EventCategory = "Premiere Event"
	CategoryQA               EventCategory = "Q&A"
	CategorySneakPeek        EventCategory = "Sneak Peek"
	CategorySpecialEvent     EventCategory = "Special Event"
	CategoryTalkback         EventCategory = "Talkback"
)

// Categories returns every known category in declaration order.
func Categories() []EventCategory {
	return []EventCategory{
		CategoryAdvanceScreening,
		CategoryEarlyAccess,
		CategoryFanEvent,
		CategoryOneNightOnly,
		CategoryPanelDiscussion,
		CategoryPremiereEvent,
		CategoryQA,
		CategorySneakPeek,
		CategorySpecialEvent,
		CategoryTalkback,
	}
}

// Valid reports whether c is one of the known categories.
func (c EventCategory) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory converts a stored label back into an EventCategory,
// rejecting anything outside the known set.
func ParseCategory(s string) (EventCategory, error) {
	c := EventCategory(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown event category %q", s)
	}
	return c, nil
}

// Event is a special screening extracted from a movie title.
type Event struct {
	MovieName      string        `json:"movie_name"`
	Category       EventCategory `json:"event_type"`
	Theater        string        `json:"theater"`
	Date           string        `json:"date"`
	Showtimes      []string      `json:"showtimes"`
	Runtime        *int          `json:"runtime"`
	Rating         string        `json:"rating"`
	MatchedPattern string        `json:"matched_pattern"`
	Slug           string        `json:"slug"`
}

// NotificationID derives the stable identity under which the event is
// tracked: theater with spaces replaced by underscores, the date, and the
// movie slug, joined by underscores. Showtime changes do not alter it.
func (e Event) NotificationID() string {
	return strings.ReplaceAll(e.Theater, " ", "_") + "_" + e.Date + "_" + e.Slug
}

// NotificationRecord is the persisted state for one notified event.
type NotificationRecord struct {
	NotificationID    string
	Theater           string
	Date              string
	MovieName         string
	Slug              string
	Category          EventCategory
	Showtimes         []string
	Runtime           *int
	Rating            string
	FirstNotifiedAt   time.Time
	LastUpdatedAt     time.Time
	NotificationCount int
}

// ShowtimeDiff describes how an event's showtimes moved between two sightings.
type ShowtimeDiff struct {
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Unchanged []string `json:"unchanged"`
}

// Changed reports whether the two sides differ at all.
func (d ShowtimeDiff) Changed() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0
}

// DiffShowtimes compares two showtime lists as sets and returns the
// added, removed, and unchanged entries, each in chronological order.
func DiffShowtimes(previous, current []string) ShowtimeDiff {
	prev := make(map[string]struct{}, len(previous))
	for _, t := range previous {
		prev[t] = struct{}{}
	}
	cur := make(map[string]struct{}, len(current))
	for _, t := range current {
		cur[t] = struct{}{}
	}

	var diff ShowtimeDiff
	for t := range cur {
		if _, ok := prev[t]; ok {
			diff.Unchanged = append(diff.Unchanged, t)
		} else {
			diff.Added = append(diff.Added, t)
		}
	}
	for t := range prev {
		if _, ok := cur[t]; !ok {
			diff.Removed = append(diff.Removed, t)
		}
	}

	SortClocks(diff.Added)
	SortClocks(diff.Removed)
	SortClocks(diff.Unchanged)
	return diff
}
