package scraper

import "time"

// RetrySchedule maps attempt numbers onto the wait before the next try.
// Attempts past the end of the schedule reuse the final delay.
type RetrySchedule struct {
	delays []time.Duration
}

// NewRetrySchedule builds a schedule from the configured delays. An empty
// list falls back to a single five second step.
func NewRetrySchedule(delays []time.Duration) RetrySchedule {
	if len(delays) == 0 {
		delays = []time.Duration{5 * time.Second}
	}
	return RetrySchedule{delays: delays}
}

// Delay returns the wait after the given zero-based attempt.
func (s RetrySchedule) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(s.delays) {
		attempt = len(s.delays) - 1
	}
	return s.delays[attempt]
}

// RateLimitPenalty returns the extra wait applied after an HTTP 429,
// twice the final configured delay.
func (s RetrySchedule) RateLimitPenalty() time.Duration {
	return 2 * s.delays[len(s.delays)-1]
}
