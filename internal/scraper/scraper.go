package scraper

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cinewatch/showtime-alerts/internal/blob"
	"github.com/cinewatch/showtime-alerts/internal/metrics"
	"github.com/cinewatch/showtime-alerts/internal/parser"
	"github.com/cinewatch/showtime-alerts/internal/showtime"
)

// A day counts as successful once it yields at least this many valid movies.
const minMoviesPerDay = 1

// Scraper coordinates the fetch workers, the parser, and the raw payload
// sink for a full scrape window.
type Scraper struct {
	cfg      Config
	fetcher  Fetcher
	parser   *parser.Parser
	sink     blob.Provider
	renderer Renderer
	detector *RenderDetector
	schedule RetrySchedule
	stats    *Stats
	sleeper  Sleeper
	now      func() time.Time
	log      *zap.Logger
}

// Option customizes a Scraper beyond its required dependencies.
type Option func(*Scraper)

// WithRenderer enables the headless fallback for script-gated pages.
// A nil detector selects the default thresholds.
func WithRenderer(r Renderer, d *RenderDetector) Option {
	return func(s *Scraper) {
		s.renderer = r
		if d == nil {
			d = NewRenderDetector(0, nil)
		}
		s.detector = d
	}
}

// WithSleeper substitutes the retry delay sleeper.
func WithSleeper(sl Sleeper) Option {
	return func(s *Scraper) { s.sleeper = sl }
}

// WithNow substitutes the wall clock.
func WithNow(now func() time.Time) Option {
	return func(s *Scraper) { s.now = now }
}

// New wires a Scraper from its dependencies.
func New(cfg Config, fetcher Fetcher, p *parser.Parser, sink blob.Provider, log *zap.Logger, opts ...Option) *Scraper {
	if sink == nil {
		sink = &blob.NoOpProvider{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scraper{
		cfg:      cfg,
		fetcher:  fetcher,
		parser:   p,
		sink:     sink,
		schedule: NewRetrySchedule(cfg.RetryDelays),
		stats:    &Stats{},
		sleeper:  StandardSleeper{},
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns a snapshot of the run counters.
func (s *Scraper) Stats() Snapshot {
	return s.stats.Snapshot()
}

// ScrapeAll fetches every configured location across the scrape window
// using a bounded worker pool and returns one DailyResult per unit,
// ordered by theater then date.
func (s *Scraper) ScrapeAll(ctx context.Context) []showtime.DailyResult {
	s.stats.Reset()
	units := BuildUnits(s.cfg.Locations, s.cfg.DaysAhead, s.now())
	s.log.Info("starting scrape",
		zap.Int("locations", len(s.cfg.Locations)),
		zap.Int("days", s.cfg.DaysAhead),
		zap.Int("units", len(units)),
	)

	start := time.Now()
	workers := max(1, s.cfg.Workers)

	unitCh := make(chan showtime.WorkUnit)
	resultCh := make(chan showtime.DailyResult, len(units))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range unitCh {
				resultCh <- s.scrapeUnit(ctx, unit)
			}
		}()
	}
	for _, unit := range units {
		unitCh <- unit
	}
	close(unitCh)
	wg.Wait()
	close(resultCh)

	results := make([]showtime.DailyResult, 0, len(units))
	for result := range resultCh {
		results = append(results, result)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Theater != results[j].Theater {
			return results[i].Theater < results[j].Theater
		}
		return results[i].Date < results[j].Date
	})

	s.logStats(results, time.Since(start))
	return results
}

// scrapeUnit runs the full fetch, parse, and validate pass for one unit.
func (s *Scraper) scrapeUnit(ctx context.Context, unit showtime.WorkUnit) showtime.DailyResult {
	s.log.Info("scraping location",
		zap.String("theater", unit.Location.Name),
		zap.String("date", unit.Date),
	)

	rawURL := ShowtimeURL(s.cfg.BaseURL, s.cfg.Market, unit.Location.Slug, unit.Date, s.cfg.RSCToken)

	start := time.Now()
	body, ok := s.fetchWithRetry(ctx, rawURL, unit)
	if !ok {
		metrics.ObserveFetchResult(unit.Location.Slug, "failure", time.Since(start))
		return s.failedResult(unit, FetchFailedMessage)
	}
	metrics.ObserveFetchResult(unit.Location.Slug, "success", time.Since(start))

	parsed, err := s.parseWithFallback(ctx, rawURL, body)
	if err != nil {
		s.stats.AddParsingError()
		return s.failedResult(unit, "Parsing error: "+err.Error())
	}
	if len(parsed) == 0 {
		s.log.Warn("no movies found",
			zap.String("theater", unit.Location.Name),
			zap.String("date", unit.Date),
		)
		return s.failedResult(unit, NoMoviesFoundMessage)
	}

	movies := make([]showtime.Movie, 0, len(parsed))
	for _, movie := range parsed {
		if !movie.Valid() {
			s.log.Warn("invalid movie data", zap.String("name", movie.Name))
			continue
		}
		movies = append(movies, movie)
	}
	s.stats.AddMovies(len(movies))
	metrics.ObserveMoviesParsed(unit.Location.Slug, len(movies))

	success := len(movies) >= minMoviesPerDay
	errText := ""
	if !success {
		errText = FewerMoviesMessage
		s.log.Warn("fewer movies than expected",
			zap.String("date", unit.Date),
			zap.Int("movies", len(movies)),
			zap.Int("expected_at_least", minMoviesPerDay),
		)
	}

	return showtime.DailyResult{
		Date:      unit.Date,
		Theater:   unit.Location.Name,
		Movies:    movies,
		FetchTime: s.now().Format(time.RFC3339),
		Success:   success,
		ErrorText: errText,
	}
}

// fetchWithRetry walks the retry schedule for one URL. Every attempt counts
// toward total requests; a 429 adds the rate limit penalty on top of the
// scheduled delay.
func (s *Scraper) fetchWithRetry(ctx context.Context, rawURL string, unit showtime.WorkUnit) (string, bool) {
	slug := unit.Location.Slug
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			break
		}
		s.log.Debug("fetching showtimes",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", s.cfg.MaxRetries),
		)
		s.stats.AddRequest()
		metrics.ObserveFetchAttempt(slug)

		body, err := s.fetcher.Fetch(ctx, rawURL)
		if err == nil {
			s.stats.AddSuccess()
			s.log.Debug("fetched showtime data", zap.String("date", unit.Date))
			if s.cfg.SaveRaw {
				s.saveRaw(ctx, unit, body)
			}
			return body, true
		}

		if errors.Is(err, ErrRateLimited) {
			s.log.Warn("rate limited, backing off", zap.String("date", unit.Date))
			s.sleeper.Sleep(ctx, s.schedule.RateLimitPenalty())
		} else {
			s.log.Error("fetch attempt failed",
				zap.String("date", unit.Date),
				zap.Error(err),
			)
		}

		if attempt < s.cfg.MaxRetries-1 {
			delay := s.schedule.Delay(attempt)
			s.log.Info("waiting before retry", zap.Duration("delay", delay))
			s.sleeper.Sleep(ctx, delay)
		}
	}

	s.stats.AddFailure()
	s.log.Error("fetch exhausted all retries",
		zap.String("date", unit.Date),
		zap.Int("attempts", s.cfg.MaxRetries),
	)
	return "", false
}

// parseWithFallback parses the fast-fetch body and, when it yields nothing
// and the page looks script-gated, retries once through the headless
// renderer. Renderer failures degrade to the fast-fetch outcome.
func (s *Scraper) parseWithFallback(ctx context.Context, rawURL, body string) ([]showtime.Movie, error) {
	movies, err := s.parser.Parse(body)
	if err == nil && len(movies) > 0 {
		return movies, nil
	}
	if s.renderer == nil || !s.detector.NeedsRender([]byte(body)) {
		return movies, err
	}

	s.log.Info("falling back to headless render", zap.String("url", rawURL))
	rendered, renderErr := s.renderer.Render(ctx, rawURL)
	if renderErr != nil {
		s.log.Warn("headless render failed", zap.String("url", rawURL), zap.Error(renderErr))
		return movies, err
	}
	renderedMovies, parseErr := s.parser.Parse(rendered)
	if parseErr != nil || len(renderedMovies) == 0 {
		s.log.Warn("headless render produced no movies", zap.String("url", rawURL))
		return movies, err
	}
	return renderedMovies, nil
}

func (s *Scraper) saveRaw(ctx context.Context, unit showtime.WorkUnit, body string) {
	key := blob.RawPayloadKey(unit.Location.Slug, unit.Date)
	if err := s.sink.Save(ctx, key, []byte(body)); err != nil {
		s.log.Warn("failed to save raw response", zap.String("key", key), zap.Error(err))
		return
	}
	s.log.Debug("saved raw response", zap.String("key", key))
}

func (s *Scraper) failedResult(unit showtime.WorkUnit, msg string) showtime.DailyResult {
	return showtime.DailyResult{
		Date:      unit.Date,
		Theater:   unit.Location.Name,
		Movies:    []showtime.Movie{},
		FetchTime: s.now().Format(time.RFC3339),
		Success:   false,
		ErrorText: msg,
	}
}

func (s *Scraper) logStats(results []showtime.DailyResult, elapsed time.Duration) {
	successful := 0
	totalMovies := 0
	for _, r := range results {
		if r.Success {
			successful++
		}
		totalMovies += len(r.Movies)
	}
	snap := s.stats.Snapshot()
	s.log.Info("scraping statistics",
		zap.Int("total_requests", snap.TotalRequests),
		zap.Int("successful_requests", snap.SuccessfulRequests),
		zap.Int("failed_requests", snap.FailedRequests),
		zap.Int("days_succeeded", successful),
		zap.Int("days_failed", len(results)-successful),
		zap.Int("total_movies", totalMovies),
		zap.Int("parsing_errors", snap.ParsingErrors),
		zap.Duration("elapsed", elapsed),
	)
}
