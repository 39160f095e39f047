package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/cinewatch/showtime-alerts/internal/scraper"
	"github.com/cinewatch/showtime-alerts/internal/showtime"
)

const (
	reportTimestampLayout = "20060102_150405"
	scrapeReportPrefix    = "showtimes_"
	eventsReportPrefix    = "showtimes_special_"
)

// ScrapeReport is the persisted output of the fetch stage.
type ScrapeReport struct {
	RunID     string                 `json:"run_id"`
	ScrapedAt string                 `json:"scraped_at"`
	Stats     scraper.Snapshot       `json:"stats"`
	Results   []showtime.DailyResult `json:"results"`
}

// EventsReport is the persisted output of the classification stage.
type EventsReport struct {
	RunID       string           `json:"run_id"`
	Timestamp   string           `json:"timestamp"`
	SourceFile  string           `json:"source_file"`
	TotalEvents int              `json:"total_events"`
	Events      []showtime.Event `json:"events"`
}

// ReportWriter persists run artifacts into a single output directory.
type ReportWriter struct {
	dir string
	now func() time.Time
	log *zap.Logger
}

// NewReportWriter creates the output directory if needed.
func NewReportWriter(dir string, log *zap.Logger) (*ReportWriter, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ReportWriter{dir: dir, now: time.Now, log: log}, nil
}

// WriteScrapeReport writes the full day-by-day scrape output and returns
// the file path.
func (w *ReportWriter) WriteScrapeReport(runID string, results []showtime.DailyResult, stats scraper.Snapshot) (string, error) {
	report := ScrapeReport{
		RunID:     runID,
		ScrapedAt: w.now().Format(time.RFC3339),
		Stats:     stats,
		Results:   results,
	}
	name := scrapeReportPrefix + w.now().Format(reportTimestampLayout) + ".json"
	path := filepath.Join(w.dir, name)
	if err := writeJSON(path, report); err != nil {
		return "", err
	}
	w.log.Info("scrape report written",
		zap.String("path", path),
		zap.Int("results", len(results)))
	return path, nil
}

// WriteEventsReport writes the classified special events and returns the
// file path.
func (w *ReportWriter) WriteEventsReport(runID, sourceFile string, events []showtime.Event) (string, error) {
	if events == nil {
		events = []showtime.Event{}
	}
	report := EventsReport{
		RunID:       runID,
		Timestamp:   w.now().Format(time.RFC3339),
		SourceFile:  sourceFile,
		TotalEvents: len(events),
		Events:      events,
	}
	name := eventsReportPrefix + w.now().Format(reportTimestampLayout) + ".json"
	path := filepath.Join(w.dir, name)
	if err := writeJSON(path, report); err != nil {
		return "", err
	}
	w.log.Info("events report written",
		zap.String("path", path),
		zap.Int("events", len(events)))
	return path, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Prune removes report files whose modification time is older than
// keepDays and returns how many were deleted. Failures are logged, never
// fatal.
func (w *ReportWriter) Prune(keepDays int) int {
	if keepDays <= 0 {
		return 0
	}
	cutoff := w.now().AddDate(0, 0, -keepDays)
	matches, err := filepath.Glob(filepath.Join(w.dir, scrapeReportPrefix+"*.json"))
	if err != nil {
		w.log.Warn("report prune glob failed", zap.Error(err))
		return 0
	}
	deleted := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			w.log.Warn("failed to remove old report",
				zap.String("path", path),
				zap.Error(err))
			continue
		}
		deleted++
	}
	if deleted > 0 {
		w.log.Info("pruned old reports", zap.Int("deleted", deleted))
	}
	return deleted
}

// ReadEventsReport loads a persisted events report, dropping events whose
// category is outside the known set.
func ReadEventsReport(path string, log *zap.Logger) ([]showtime.Event, error) {
	if log == nil {
		log = zap.NewNop()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events report: %w", err)
	}
	var report EventsReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode events report: %w", err)
	}
	kept := make([]showtime.Event, 0, len(report.Events))
	for _, ev := range report.Events {
		if !ev.Category.Valid() {
			log.Warn("skipping event with unknown category",
				zap.String("category", string(ev.Category)),
				zap.String("movie", ev.MovieName))
			continue
		}
		kept = append(kept, ev)
	}
	return kept, nil
}
