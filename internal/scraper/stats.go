package scraper

import "sync"

// Stats tracks fetch and parse counters across concurrent workers.
type Stats struct {
	mu                 sync.Mutex
	totalRequests      int
	successfulRequests int
	failedRequests     int
	totalMoviesFound   int
	parsingErrors      int
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TotalRequests      int `json:"total_requests"`
	SuccessfulRequests int `json:"successful_requests"`
	FailedRequests     int `json:"failed_requests"`
	TotalMoviesFound   int `json:"total_movies_found"`
	ParsingErrors      int `json:"parsing_errors"`
}

// AddRequest counts one fetch attempt.
func (s *Stats) AddRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalRequests++
}

// AddSuccess counts one unit whose fetch eventually succeeded.
func (s *Stats) AddSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successfulRequests++
}

// AddFailure counts one unit that exhausted its retries.
func (s *Stats) AddFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedRequests++
}

// AddMovies counts validated movie records.
func (s *Stats) AddMovies(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalMoviesFound += n
}

// AddParsingError counts one document that could not be parsed.
func (s *Stats) AddParsingError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parsingErrors++
}

// Reset zeroes all counters so a long-lived scraper reports per-run
// numbers.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalRequests = 0
	s.successfulRequests = 0
	s.failedRequests = 0
	s.totalMoviesFound = 0
	s.parsingErrors = 0
}

// Snapshot returns a consistent copy of all counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		TotalRequests:      s.totalRequests,
		SuccessfulRequests: s.successfulRequests,
		FailedRequests:     s.failedRequests,
		TotalMoviesFound:   s.totalMoviesFound,
		ParsingErrors:      s.parsingErrors,
	}
}
