// Package pipeline sequences the scrape, classify, and deliver stages of
// a full alert run.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cinewatch/showtime-alerts/internal/events"
	"github.com/cinewatch/showtime-alerts/internal/metrics"
	"github.com/cinewatch/showtime-alerts/internal/notify"
	"github.com/cinewatch/showtime-alerts/internal/scraper"
)

// ErrRunInProgress reports that another run currently holds the run lock.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// ErrNoSuccessfulFetches reports that every unit failed, so the run was
// aborted before classification and delivery.
var ErrNoSuccessfulFetches = errors.New("no successful fetches")

// RunReport summarizes one pipeline run.
type RunReport struct {
	RunID             string               `json:"run_id"`
	StartedAt         time.Time            `json:"started_at"`
	ElapsedSeconds    float64              `json:"elapsed_seconds"`
	Status            string               `json:"status"`
	ScrapeStats       scraper.Snapshot     `json:"scrape_stats"`
	ResultsTotal      int                  `json:"results_total"`
	ResultsSuccessful int                  `json:"results_successful"`
	EventsFound       int                  `json:"events_found"`
	Delivery          notify.DeliveryStats `json:"delivery"`
	ScrapeReportPath  string               `json:"scrape_report,omitempty"`
	EventsReportPath  string               `json:"events_report,omitempty"`
}

// Pipeline owns the run lock and sequences the stages.
type Pipeline struct {
	scraper    *scraper.Scraper
	classifier *events.Classifier
	dispatcher *notify.Dispatcher
	reports    *ReportWriter
	now        func() time.Time
	log        *zap.Logger

	runMu  sync.Mutex
	lastMu sync.RWMutex
	last   *RunReport
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithNow fixes the clock, primarily for tests.
func WithNow(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// New wires the pipeline stages together. A nil dispatcher disables the
// delivery stage; a nil report writer disables report files.
func New(s *scraper.Scraper, c *events.Classifier, d *notify.Dispatcher, reports *ReportWriter, log *zap.Logger, opts ...Option) *Pipeline {
	if c == nil {
		c = events.New(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pipeline{
		scraper:    s,
		classifier: c,
		dispatcher: d,
		reports:    reports,
		now:        time.Now,
		log:        log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one full pass. Only one run may be active at a time;
// concurrent triggers fail fast with ErrRunInProgress.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	if !p.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer p.runMu.Unlock()

	runID := uuid.NewString()
	started := p.now()
	log := p.log.With(zap.String("run_id", runID))

	metrics.SetRunActive(true)
	defer metrics.SetRunActive(false)

	report := &RunReport{
		RunID:     runID,
		StartedAt: started,
	}
	defer func() {
		report.ElapsedSeconds = p.now().Sub(started).Seconds()
		p.setLast(report)
	}()

	log.Info("pipeline run starting")

	results := p.scraper.ScrapeAll(ctx)
	report.ScrapeStats = p.scraper.Stats()
	report.ResultsTotal = len(results)
	for _, r := range results {
		if r.Success {
			report.ResultsSuccessful++
		}
	}
	log.Info("scrape stage completed",
		zap.Int("successful", report.ResultsSuccessful),
		zap.Int("total", report.ResultsTotal))

	if p.reports != nil {
		path, err := p.reports.WriteScrapeReport(runID, results, report.ScrapeStats)
		if err != nil {
			log.Warn("failed to write scrape report", zap.Error(err))
		} else {
			report.ScrapeReportPath = path
		}
	}

	if report.ResultsSuccessful == 0 {
		report.Status = "aborted"
		metrics.ObservePipelineRun("aborted")
		log.Error("no successful fetches, aborting run before delivery")
		return report, ErrNoSuccessfulFetches
	}

	extracted := p.classifier.Extract(results)
	report.EventsFound = len(extracted)
	log.Info("classification stage completed", zap.Int("events", len(extracted)))

	if p.reports != nil {
		path, err := p.reports.WriteEventsReport(runID, report.ScrapeReportPath, extracted)
		if err != nil {
			log.Warn("failed to write events report", zap.Error(err))
		} else {
			report.EventsReportPath = path
		}
	}

	if p.dispatcher != nil {
		report.Delivery = p.dispatcher.Deliver(ctx, runID, extracted)
	} else {
		log.Info("delivery stage disabled")
	}

	report.Status = "succeeded"
	metrics.ObservePipelineRun("succeeded")
	metrics.SetLastSuccess(p.now())

	log.Info("pipeline run completed",
		zap.Float64("elapsed_seconds", p.now().Sub(started).Seconds()),
		zap.Int("new", report.Delivery.Sent-report.Delivery.Updated),
		zap.Int("updated", report.Delivery.Updated),
		zap.Int("skipped", report.Delivery.Skipped),
		zap.Int("failed", report.Delivery.Failed))

	return report, nil
}

func (p *Pipeline) setLast(r *RunReport) {
	p.lastMu.Lock()
	defer p.lastMu.Unlock()
	p.last = r
}

// LastRun returns the report of the most recent run, or nil before the
// first one finishes.
func (p *Pipeline) LastRun() *RunReport {
	p.lastMu.RLock()
	defer p.lastMu.RUnlock()
	return p.last
}
