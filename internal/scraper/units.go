package scraper

import (
	"fmt"
	"time"

	"github.com/cinewatch/showtime-alerts/internal/showtime"
)

// BuildUnits expands the configured locations across a window of calendar
// dates starting today, one WorkUnit per (location, date) pair.
func BuildUnits(locations []showtime.Location, daysAhead int, now time.Time) []showtime.WorkUnit {
	if daysAhead <= 0 {
		return nil
	}
	units := make([]showtime.WorkUnit, 0, len(locations)*daysAhead)
	for _, loc := range locations {
		for i := 0; i < daysAhead; i++ {
			units = append(units, showtime.WorkUnit{
				Location: loc,
				Date:     now.AddDate(0, 0, i).Format("2006-01-02"),
			})
		}
	}
	return units
}

// ShowtimeURL builds the fetch URL for one theater and date.
func ShowtimeURL(baseURL, market, slug, date, rscToken string) string {
	return fmt.Sprintf("%s/movie-theatres/%s/%s/showtimes?date=%s&_rsc=%s",
		baseURL, market, slug, date, rscToken)
}
