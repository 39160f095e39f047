// Package events extracts special screenings from scraped showtime data.
package events

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/cinewatch/showtime-alerts/internal/metrics"
	"github.com/cinewatch/showtime-alerts/internal/showtime"
)

// titlePattern matches the event phrases that theaters append to movie
// titles. Alternatives are ordered so the specific Q&A spellings win over
// the loose q\W*a fallback, which exists for variants like "Q A" or "Q.A.".
var titlePattern = regexp.MustCompile(
	`(?i)\b(live(?:\s*[- ]?stream(?:ed|ing)?)?\s*q\W*a` +
		`|q\s*(?:&|&amp;|and|\+|/)\s*a` +
		`|q\W*a` +
		`|early\s*access` +
		`|advance(?:d)?\s*screening` +
		`|special\s*(?:screening|event)` +
		`|fan\s*event` +
		`|one\s*night\s*only` +
		`|sneak\s*peek` +
		`|premiere\s*event` +
		`|talkback` +
		`|panel\s+discussion)\b`,
)

// Classifier turns scraped daily results into classified special events.
type Classifier struct {
	log *zap.Logger
}

// New returns a Classifier that logs through the supplied logger.
func New(log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{log: log}
}

// MatchTitle reports the first event phrase found in a movie title.
func MatchTitle(title string) (string, bool) {
	m := titlePattern.FindStringSubmatch(title)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Classify maps a matched phrase onto an event category. Phrases that fit
// no specific rule fall back to Special Event.
func Classify(matched string) showtime.EventCategory {
	p := strings.ToLower(strings.TrimSpace(matched))

	has := func(sub string) bool { return strings.Contains(p, sub) }
	switch {
	case has("q") && has("a"):
		return showtime.CategoryQA
	case has("early access"):
		return showtime.CategoryEarlyAccess
	case has("advance") && has("screening"):
		return showtime.CategoryAdvanceScreening
	case has("special") && (has("screening") || has("event")):
		return showtime.CategorySpecialEvent
	case has("fan event"):
		return showtime.CategoryFanEvent
	case has("one night only"):
		return showtime.CategoryOneNightOnly
	case has("sneak peek"):
		return showtime.CategorySneakPeek
	case has("premiere") && has("event"):
		return showtime.CategoryPremiereEvent
	case has("talkback"):
		return showtime.CategoryTalkback
	case has("panel") && has("discussion"):
		return showtime.CategoryPanelDiscussion
	default:
		return showtime.CategorySpecialEvent
	}
}

// Extract walks the daily results and returns every special event found in
// a movie title. Failed results and movies without names are skipped.
func (c *Classifier) Extract(results []showtime.DailyResult) []showtime.Event {
	var found []showtime.Event
	for _, result := range results {
		if !result.Success {
			continue
		}
		for _, movie := range result.Movies {
			if movie.Name == "" {
				continue
			}
			matched, ok := MatchTitle(movie.Name)
			if !ok {
				continue
			}
			category := Classify(matched)
			ev := showtime.Event{
				MovieName:      movie.Name,
				Category:       category,
				Theater:        result.Theater,
				Date:           result.Date,
				Showtimes:      movie.Showtimes,
				Runtime:        movie.Runtime,
				Rating:         movie.Rating,
				MatchedPattern: matched,
				Slug:           movie.Slug,
			}
			found = append(found, ev)
			metrics.ObserveEventClassified(string(category))
			c.log.Info("found special event",
				zap.String("category", string(category)),
				zap.String("movie", movie.Name),
				zap.String("theater", result.Theater),
				zap.String("date", result.Date),
			)
		}
	}
	c.log.Info("classification complete", zap.Int("events", len(found)))
	return found
}
