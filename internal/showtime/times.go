package showtime

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	clockPattern     = regexp.MustCompile(`(?i)^(\d{1,2}):(\d{2})\s*(am|pm)`)
	canonicalPattern = regexp.MustCompile(`^\d{1,2}:\d{2}\s*(AM|PM)$`)
	minutesPattern   = regexp.MustCompile(`^(\d+):(\d+)\s*(AM|PM)`)
)

// NormalizeClock extracts a clock time from raw link text and rewrites it
// into canonical "H:MM AM"/"H:MM PM" form. The captured hour and minute
// digits are kept verbatim and only the period is uppercased, so "07:30 pm"
// stays "07:30 PM". Returns false when the text does not start with a time.
func NormalizeClock(text string) (string, bool) {
	m := clockPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1] + ":" + m[2] + " " + strings.ToUpper(m[3]), true
}

// IsCanonicalClock reports whether s is exactly a canonical clock string.
func IsCanonicalClock(s string) bool {
	return canonicalPattern.MatchString(s)
}

// ClockMinutes converts a canonical clock string to minutes since midnight.
// 12 AM maps to 0 and 12 PM to 720. Unparseable input sorts first as 0.
func ClockMinutes(s string) int {
	m := minutesPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	minute, err := strconv.Atoi(m[2])
	if err != nil {
		return 0
	}
	switch {
	case m[3] == "PM" && hour != 12:
		hour += 12
	case m[3] == "AM" && hour == 12:
		hour = 0
	}
	return hour*60 + minute
}

// SortClocks orders clock strings chronologically in place, breaking
// minute ties by plain string comparison so the result is deterministic.
func SortClocks(times []string) {
	sort.Slice(times, func(i, j int) bool {
		a, b := ClockMinutes(times[i]), ClockMinutes(times[j])
		if a != b {
			return a < b
		}
		return times[i] < times[j]
	})
}

// DedupeClocks removes duplicate clock strings and returns the survivors
// in chronological order.
func DedupeClocks(times []string) []string {
	seen := make(map[string]struct{}, len(times))
	out := make([]string, 0, len(times))
	for _, t := range times {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	SortClocks(out)
	return out
}
