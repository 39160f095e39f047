package scraper

import (
	"bytes"
	"strings"
)

// Default signals for script-gated showtime pages. The theater site ships
// its schedule inside a React Server Components payload when it decides
// not to server-render.
var defaultRenderMarkers = []string{"self.__next_f", "__NEXT_DATA__"}

const defaultMinHTMLBytes = 2048

// RenderDetector decides whether a fetched page that yielded no movies is
// worth a headless render pass.
type RenderDetector struct {
	minHTMLBytes int
	markers      [][]byte
}

// NewRenderDetector constructs a detector with the configured thresholds.
// Zero or empty arguments select the package defaults.
func NewRenderDetector(minBytes int, markers []string) *RenderDetector {
	if minBytes <= 0 {
		minBytes = defaultMinHTMLBytes
	}
	if len(markers) == 0 {
		markers = defaultRenderMarkers
	}
	lowered := make([][]byte, 0, len(markers))
	for _, m := range markers {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		lowered = append(lowered, bytes.ToLower([]byte(m)))
	}
	return &RenderDetector{
		minHTMLBytes: minBytes,
		markers:      lowered,
	}
}

// NeedsRender inspects the body for signals that the schedule is loaded by
// script: a suspiciously small document or a client-side payload marker.
func (d *RenderDetector) NeedsRender(body []byte) bool {
	if d == nil {
		return false
	}
	if len(body) < d.minHTMLBytes {
		return true
	}
	lowerBody := bytes.ToLower(body)
	for _, m := range d.markers {
		if bytes.Contains(lowerBody, m) {
			return true
		}
	}
	return false
}
