package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cinewatch/showtime-alerts/internal/metrics"
	"github.com/cinewatch/showtime-alerts/internal/notify"
	"github.com/cinewatch/showtime-alerts/internal/parser"
	"github.com/cinewatch/showtime-alerts/internal/scraper"
	"github.com/cinewatch/showtime-alerts/internal/showtime"
)

var testVenueKeywords = []string{"AMC", "IMAX", "Dolby", "Empire", "Lincoln", "Square"}

func fixedPipelineNow() time.Time {
	return time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
}

func moviePage(name, slug string, times ...string) string {
	page := `<section aria-label="Showtimes for ` + name + `" id="` + slug + `-101">`
	for _, tm := range times {
		page += `<a href="/showtimes/1">` + tm + `</a>`
	}
	return page + `</section>`
}

// scriptedFetcher serves canned bodies keyed by URL substring.
type scriptedFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
}

func (f *scriptedFetcher) Fetch(_ context.Context, rawURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, body := range f.bodies {
		if strings.Contains(rawURL, key) {
			return body, nil
		}
	}
	return "", errors.New("no scripted body")
}

type failingFetcher struct{}

func (failingFetcher) Fetch(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}

// gatedFetcher signals when the first fetch starts and blocks every fetch
// until released, so tests can hold a run open.
type gatedFetcher struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
	body    string
}

func newGatedFetcher(body string) *gatedFetcher {
	return &gatedFetcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
		body:    body,
	}
}

func (f *gatedFetcher) Fetch(ctx context.Context, _ string) (string, error) {
	f.once.Do(func() { close(f.started) })
	select {
	case <-f.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return f.body, nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *recordingSender) Send(_ context.Context, _ string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, message)
	return nil
}

func (s *recordingSender) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}

type noSleep struct{}

func (noSleep) Sleep(context.Context, time.Duration) {}

func pipelineConfig(locations ...showtime.Location) scraper.Config {
	if len(locations) == 0 {
		locations = []showtime.Location{{Slug: "amc-empire-25", Name: "AMC Empire 25"}}
	}
	return scraper.Config{
		BaseURL:     "https://showtimes.example",
		Market:      "new-york-city",
		RSCToken:    "tok",
		Locations:   locations,
		DaysAhead:   1,
		Workers:     2,
		MaxRetries:  1,
		RetryDelays: []time.Duration{time.Second},
		Timeout:     10 * time.Second,
	}
}

func newTestScraper(cfg scraper.Config, fetcher scraper.Fetcher) *scraper.Scraper {
	p := parser.New(testVenueKeywords, zap.NewNop())
	return scraper.New(cfg, fetcher, p, nil, zap.NewNop(),
		scraper.WithSleeper(noSleep{}),
		scraper.WithNow(fixedPipelineNow),
	)
}

func newTestDispatcher(sender notify.Sender) *notify.Dispatcher {
	return notify.NewDispatcher(
		notify.DispatcherConfig{Destinations: []string{"chat-1"}},
		nil,
		sender,
		zap.NewNop(),
		notify.WithSleeper(noSleep{}),
	)
}

func TestPipeline_FullRunWritesReportsAndDelivers(t *testing.T) {
	t.Parallel()
	metrics.Init()

	cfg := pipelineConfig(
		showtime.Location{Slug: "amc-lincoln-square-13", Name: "AMC Lincoln Square 13"},
		showtime.Location{Slug: "amc-empire-25", Name: "AMC Empire 25"},
	)
	fetcher := &scriptedFetcher{bodies: map[string]string{
		"amc-lincoln-square-13": moviePage("Dune Part Three Q&A", "dune-part-three", "7:00pm", "9:30pm"),
		"amc-empire-25":         moviePage("Nosferatu", "nosferatu", "9:00pm"),
	}}
	sender := &recordingSender{}

	reports, err := NewReportWriter(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	reports.now = fixedPipelineNow

	p := New(newTestScraper(cfg, fetcher), nil, newTestDispatcher(sender), reports, zap.NewNop(),
		WithNow(fixedPipelineNow))

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "succeeded", report.Status)
	require.NotEmpty(t, report.RunID)
	require.Equal(t, fixedPipelineNow(), report.StartedAt)
	require.Equal(t, 2, report.ResultsTotal)
	require.Equal(t, 2, report.ResultsSuccessful)
	require.Equal(t, 1, report.EventsFound)
	require.Equal(t, notify.DeliveryStats{Sent: 1}, report.Delivery)

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	require.Contains(t, msgs[0], "Dune Part Three Q&A")

	data, err := os.ReadFile(report.ScrapeReportPath)
	require.NoError(t, err)
	var scrape ScrapeReport
	require.NoError(t, json.Unmarshal(data, &scrape))
	require.Equal(t, report.RunID, scrape.RunID)
	require.Equal(t, 2, scrape.Stats.TotalRequests)
	require.Equal(t, 2, scrape.Stats.SuccessfulRequests)
	require.Len(t, scrape.Results, 2)
	// Results land in the file sorted by theater then date.
	require.Equal(t, "AMC Empire 25", scrape.Results[0].Theater)
	require.Equal(t, "AMC Lincoln Square 13", scrape.Results[1].Theater)
	require.Equal(t, "Dune Part Three Q&A", scrape.Results[1].Movies[0].Name)

	data, err = os.ReadFile(report.EventsReportPath)
	require.NoError(t, err)
	var evReport EventsReport
	require.NoError(t, json.Unmarshal(data, &evReport))
	require.Equal(t, report.RunID, evReport.RunID)
	require.Equal(t, report.ScrapeReportPath, evReport.SourceFile)
	require.Equal(t, 1, evReport.TotalEvents)
	require.Equal(t, showtime.CategoryQA, evReport.Events[0].Category)

	require.Same(t, report, p.LastRun())
}

func TestPipeline_AbortsWhenEveryFetchFails(t *testing.T) {
	t.Parallel()
	metrics.Init()

	sender := &recordingSender{}
	reports, err := NewReportWriter(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	reports.now = fixedPipelineNow

	p := New(newTestScraper(pipelineConfig(), failingFetcher{}), nil, newTestDispatcher(sender), reports, zap.NewNop())

	report, err := p.Run(context.Background())
	require.ErrorIs(t, err, ErrNoSuccessfulFetches)
	require.Equal(t, "aborted", report.Status)
	require.Equal(t, 0, report.ResultsSuccessful)
	require.Equal(t, notify.DeliveryStats{}, report.Delivery)
	require.Empty(t, sender.messages())

	// The scrape report is still written so the failure is inspectable.
	require.NotEmpty(t, report.ScrapeReportPath)
	_, statErr := os.Stat(report.ScrapeReportPath)
	require.NoError(t, statErr)
	require.Empty(t, report.EventsReportPath)

	require.Equal(t, "aborted", p.LastRun().Status)
}

func TestPipeline_RejectsConcurrentRuns(t *testing.T) {
	t.Parallel()
	metrics.Init()

	fetcher := newGatedFetcher(moviePage("Dune Q&A", "dune", "7:00pm"))
	p := New(newTestScraper(pipelineConfig(), fetcher), nil, nil, nil, zap.NewNop())

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background())
		errCh <- err
	}()

	<-fetcher.started
	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, ErrRunInProgress)

	close(fetcher.release)
	require.NoError(t, <-errCh)

	// The lock is free again once the first run finishes.
	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "succeeded", report.Status)
}

func TestPipeline_RunsWithoutDispatcherOrReports(t *testing.T) {
	t.Parallel()
	metrics.Init()

	fetcher := &scriptedFetcher{bodies: map[string]string{
		"amc-empire-25": moviePage("Dune Q&A", "dune", "7:00pm"),
	}}
	p := New(newTestScraper(pipelineConfig(), fetcher), nil, nil, nil, nil)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "succeeded", report.Status)
	require.Equal(t, 1, report.EventsFound)
	require.Equal(t, notify.DeliveryStats{}, report.Delivery)
	require.Empty(t, report.ScrapeReportPath)
	require.Empty(t, report.EventsReportPath)
}
