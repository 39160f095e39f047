// Package parser extracts movie showtime records from theater showtime HTML.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/cinewatch/showtime-alerts/internal/metrics"
	"github.com/cinewatch/showtime-alerts/internal/showtime"
)

var (
	ariaPattern     = regexp.MustCompile(`^Showtimes for (.+)`)
	slugPattern     = regexp.MustCompile(`^(.+)-\d+$`)
	runtimePattern  = regexp.MustCompile(`(?i)(\d+)\s*HR\s*(\d+)\s*MIN`)
	ratingPattern   = regexp.MustCompile(`(?i)\b(G|PG|PG13|PG-13|R|NC17|NC-17|NR|Not Rated)\b`)
	discountPattern = regexp.MustCompile(`(?i)\s*(UP\s+TO\s+)?\d+%\s+OFF\s*`)
)

// Parser pulls movie records out of a rendered showtime page. Sections whose
// titles look like venue names rather than movies are rejected via the
// configured keyword list.
type Parser struct {
	venueKeywords []string
	log           *zap.Logger
}

// New returns a Parser using the supplied venue keywords.
func New(venueKeywords []string, log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{venueKeywords: venueKeywords, log: log}
}

// Parse extracts every movie that carries at least one showtime from one
// page of showtime HTML. Records are structurally parsed but not yet
// validated; callers apply Movie.Valid before trusting them. Only a
// document that cannot be read at all produces an error.
func (p *Parser) Parse(html string) ([]showtime.Movie, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		metrics.ObserveParseError()
		return nil, fmt.Errorf("parsing showtime document: %w", err)
	}

	sections := doc.Find(`section[aria-label*='Showtimes for']`)
	p.log.Debug("found movie sections", zap.Int("count", sections.Length()))

	var movies []showtime.Movie
	sections.Each(func(_ int, section *goquery.Selection) {
		label := section.AttrOr("aria-label", "")
		m := ariaPattern.FindStringSubmatch(label)
		if m == nil {
			return
		}
		name := m[1]

		if p.isVenueName(name) {
			return
		}

		// Section IDs look like "movie-slug-12345"; strip the numeric suffix.
		sectionID := section.AttrOr("id", "")
		slug := sectionID
		if sm := slugPattern.FindStringSubmatch(sectionID); sm != nil {
			slug = sm[1]
		}

		var runtime *int
		rating := ""
		if header := section.Find("header").First(); header.Length() > 0 {
			headerText := joinedText(header)
			if rm := runtimePattern.FindStringSubmatch(headerText); rm != nil {
				hours := mustAtoi(rm[1])
				mins := mustAtoi(rm[2])
				total := hours*60 + mins
				runtime = &total
			}
			if rm := ratingPattern.FindStringSubmatch(headerText); rm != nil {
				rating = rm[1]
			}
		}

		var times []string
		section.Find(`a[href*='/showtimes/']`).Each(func(_ int, link *goquery.Selection) {
			text := discountPattern.ReplaceAllString(link.Text(), "")
			if clock, ok := showtime.NormalizeClock(strings.TrimSpace(text)); ok {
				times = append(times, clock)
			}
		})
		times = showtime.DedupeClocks(times)
		if len(times) == 0 {
			return
		}

		movies = append(movies, showtime.Movie{
			Name:      name,
			Slug:      slug,
			Runtime:   runtime,
			Rating:    rating,
			Showtimes: times,
		})
	})

	p.log.Info("parsed movies with showtimes", zap.Int("count", len(movies)))
	return movies, nil
}

func (p *Parser) isVenueName(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range p.venueKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// joinedText flattens a selection's text nodes into a single space-joined
// string so tokens split across inline elements stay separated.
func joinedText(sel *goquery.Selection) string {
	var parts []string
	var walk func(s *goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				if text := strings.TrimSpace(c.Text()); text != "" {
					parts = append(parts, text)
				}
				return
			}
			walk(c)
		})
	}
	walk(sel)
	return strings.Join(parts, " ")
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
