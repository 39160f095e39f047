// Package scraper fetches theater showtime pages concurrently with retries
// and turns them into daily results.
package scraper

import (
	"context"
	"errors"
	"time"
)

// Report strings recorded on failed daily results.
const (
	FetchFailedMessage   = "Failed to fetch data after all retries"
	NoMoviesFoundMessage = "No movies found in response"
	FewerMoviesMessage   = "Fewer movies than expected"
)

// ErrRateLimited marks a fetch attempt rejected with HTTP 429.
var ErrRateLimited = errors.New("rate limited")

// Fetcher retrieves one URL and returns the response body.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Renderer produces fully rendered HTML for pages that hide showtimes
// behind scripts.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (string, error)
}

// Sleeper waits out retry delays. Tests substitute a recording fake.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration)
}

// StandardSleeper sleeps on the wall clock, waking early on cancellation.
type StandardSleeper struct{}

// Sleep blocks for d or until ctx is done, whichever comes first.
func (StandardSleeper) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
