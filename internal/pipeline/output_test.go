package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cinewatch/showtime-alerts/internal/scraper"
	"github.com/cinewatch/showtime-alerts/internal/showtime"
)

func newTestWriter(t *testing.T) (*ReportWriter, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := NewReportWriter(dir, zap.NewNop())
	require.NoError(t, err)
	w.now = fixedPipelineNow
	return w, dir
}

func sampleEvent(name, slug string) showtime.Event {
	runtime := 135
	return showtime.Event{
		MovieName:      name,
		Category:       showtime.CategoryQA,
		Theater:        "AMC Empire 25",
		Date:           "2026-09-01",
		Showtimes:      []string{"7:00 PM", "9:30 PM"},
		Runtime:        &runtime,
		Rating:         "PG",
		MatchedPattern: "q&a",
		Slug:           slug,
	}
}

func TestReportWriter_RequiresDirectory(t *testing.T) {
	t.Parallel()
	_, err := NewReportWriter("", nil)
	require.Error(t, err)
}

func TestReportWriter_ScrapeReportShape(t *testing.T) {
	t.Parallel()
	w, _ := newTestWriter(t)

	results := []showtime.DailyResult{{
		Date:    "2026-09-01",
		Theater: "AMC Empire 25",
		Movies: []showtime.Movie{{
			Name:      "Dune Part Three Q&A",
			Slug:      "dune-part-three",
			Showtimes: []string{"7:00pm"},
		}},
		FetchTime: "2026-09-01T10:00:00Z",
		Success:   true,
	}}
	path, err := w.WriteScrapeReport("run-1", results, scraper.Snapshot{
		TotalRequests:      2,
		SuccessfulRequests: 2,
		TotalMoviesFound:   1,
	})
	require.NoError(t, err)
	require.Equal(t, "showtimes_20260901_100000.json", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Downstream tooling reads these keys, so pin the wire names.
	require.Contains(t, string(data), `"run_id": "run-1"`)
	require.Contains(t, string(data), `"scraped_at": "2026-09-01T10:00:00Z"`)
	require.Contains(t, string(data), `"total_requests": 2`)
	require.Contains(t, string(data), `"fetch_time": "2026-09-01T10:00:00Z"`)
	require.Contains(t, string(data), `"theater": "AMC Empire 25"`)
}

func TestReportWriter_EventsReportRoundTrip(t *testing.T) {
	t.Parallel()
	w, _ := newTestWriter(t)

	events := []showtime.Event{
		sampleEvent("Dune Part Three Q&A", "dune-part-three"),
		sampleEvent("Anora Q&A", "anora"),
	}
	path, err := w.WriteEventsReport("run-1", "/out/showtimes_20260901_100000.json", events)
	require.NoError(t, err)
	require.Equal(t, "showtimes_special_20260901_100000.json", filepath.Base(path))

	got, err := ReadEventsReport(path, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, events, got)
}

func TestReportWriter_EventsReportWithNoEvents(t *testing.T) {
	t.Parallel()
	w, _ := newTestWriter(t)

	path, err := w.WriteEventsReport("run-1", "source.json", nil)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"total_events": 0`)
	require.Contains(t, string(data), `"events": []`)

	got, err := ReadEventsReport(path, zap.NewNop())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestReadEventsReport_SkipsUnknownCategories(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "showtimes_special_20260901_100000.json")

	raw := `{
  "run_id": "run-1",
  "timestamp": "2026-09-01T10:00:00Z",
  "source_file": "showtimes_20260901_100000.json",
  "total_events": 2,
  "events": [
    {"movie_name": "Dune Part Three Q&A", "event_type": "Q&A", "theater": "AMC Empire 25", "date": "2026-09-01", "showtimes": ["7:00pm"]},
    {"movie_name": "Mystery Screening", "event_type": "Mystery", "theater": "AMC Empire 25", "date": "2026-09-01", "showtimes": ["9:00pm"]}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	got, err := ReadEventsReport(path, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Dune Part Three Q&A", got[0].MovieName)
}

func TestReadEventsReport_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := ReadEventsReport(filepath.Join(t.TempDir(), "absent.json"), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "read events report")
}

func TestReportWriter_PruneRemovesOldReports(t *testing.T) {
	t.Parallel()
	w, dir := newTestWriter(t)

	oldTime := fixedPipelineNow().AddDate(0, 0, -30)
	freshTime := fixedPipelineNow()

	write := func(name string, mtime time.Time) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
		require.NoError(t, os.Chtimes(path, mtime, mtime))
		return path
	}

	oldScrape := write("showtimes_20260801_000000.json", oldTime)
	oldEvents := write("showtimes_special_20260801_000000.json", oldTime)
	fresh := write("showtimes_20260901_090000.json", freshTime)
	unrelated := write("notes.json", oldTime)

	require.Equal(t, 2, w.Prune(7))

	for _, gone := range []string{oldScrape, oldEvents} {
		_, err := os.Stat(gone)
		require.True(t, os.IsNotExist(err))
	}
	for _, kept := range []string{fresh, unrelated} {
		_, err := os.Stat(kept)
		require.NoError(t, err)
	}
}

func TestReportWriter_PruneDisabled(t *testing.T) {
	t.Parallel()
	w, dir := newTestWriter(t)

	path := filepath.Join(dir, "showtimes_20260801_000000.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	old := fixedPipelineNow().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(path, old, old))

	require.Equal(t, 0, w.Prune(0))
	_, err := os.Stat(path)
	require.NoError(t, err)
}
