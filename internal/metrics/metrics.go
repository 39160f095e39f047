// Package metrics exposes Prometheus collectors for the alert pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchResultsTotal          *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	parseErrorsTotal           prometheus.Counter
	moviesParsedTotal          *prometheus.CounterVec
	eventsClassifiedTotal      *prometheus.CounterVec
	notificationsTotal         *prometheus.CounterVec
	pipelineRunsTotal          *prometheus.CounterVec
	pipelineRunActive          prometheus.Gauge
	pipelineLastSuccessEpoch   prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "showtime_fetch_attempts_total",
				Help: "Total number of fetch attempts, labeled by location.",
			},
			[]string{"location"},
		)

		fetchResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "showtime_fetch_results_total",
				Help: "Total number of completed fetch units, labeled by location and result.",
			},
			[]string{"location", "result"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "showtime_fetch_duration_seconds",
				Help:    "Histogram of per-unit fetch latencies, labeled by location.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"location"},
		)

		parseErrorsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "showtime_parse_errors_total",
				Help: "Total number of sections or documents skipped due to parse errors.",
			},
		)

		moviesParsedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "showtime_movies_parsed_total",
				Help: "Total number of validated movie records parsed, labeled by location.",
			},
			[]string{"location"},
		)

		eventsClassifiedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "showtime_events_classified_total",
				Help: "Total number of special events classified, labeled by category.",
			},
			[]string{"category"},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "showtime_notifications_total",
				Help: "Total number of notification outcomes, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		pipelineRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "showtime_pipeline_runs_total",
				Help: "Total number of pipeline runs, labeled by status.",
			},
			[]string{"status"},
		)

		pipelineRunActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "showtime_pipeline_run_active",
				Help: "1 while a pipeline run is in progress, 0 otherwise.",
			},
		)

		pipelineLastSuccessEpoch = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "showtime_pipeline_last_success_timestamp_seconds",
				Help: "Unix time of the last successful pipeline run.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of admin HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of admin HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetchAttempt increments the attempt counter for a location.
func ObserveFetchAttempt(location string) {
	fetchAttemptsTotal.WithLabelValues(location).Inc()
}

// ObserveFetchResult records a completed unit and its latency.
func ObserveFetchResult(location, result string, duration time.Duration) {
	fetchResultsTotal.WithLabelValues(location, result).Inc()
	fetchDurationSeconds.WithLabelValues(location).Observe(duration.Seconds())
}

// ObserveParseError increments the parse error counter.
func ObserveParseError() {
	parseErrorsTotal.Inc()
}

// ObserveMoviesParsed adds validated records for a location.
func ObserveMoviesParsed(location string, count int) {
	if count > 0 {
		moviesParsedTotal.WithLabelValues(location).Add(float64(count))
	}
}

// ObserveEventClassified increments the per-category event counter.
func ObserveEventClassified(category string) {
	eventsClassifiedTotal.WithLabelValues(category).Inc()
}

// ObserveNotification increments the notification outcome counter.
func ObserveNotification(outcome string) {
	notificationsTotal.WithLabelValues(outcome).Inc()
}

// ObservePipelineRun records a finished run with its status.
func ObservePipelineRun(status string) {
	pipelineRunsTotal.WithLabelValues(status).Inc()
}

// SetRunActive flips the in-progress gauge.
func SetRunActive(active bool) {
	if active {
		pipelineRunActive.Set(1)
		return
	}
	pipelineRunActive.Set(0)
}

// SetLastSuccess records the wall-clock time of a successful run.
func SetLastSuccess(t time.Time) {
	pipelineLastSuccessEpoch.Set(float64(t.Unix()))
}
