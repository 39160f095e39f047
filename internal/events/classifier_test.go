package events

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cinewatch/showtime-alerts/internal/metrics"
	"github.com/cinewatch/showtime-alerts/internal/showtime"
)

func TestMatchTitle(t *testing.T) {
	t.Parallel()
	cases := []struct {
		title string
		want  string
		ok    bool
	}{
		{"Oppenheimer Q&A with Director", "Q&A", true},
		{"Dune Q & A", "Q & A", true},
		{"Dune Q and A", "Q and A", true},
		{"Dune Q+A", "Q+A", true},
		{"Dune Q/A", "Q/A", true},
		{"Live Q&A: The Director's Cut", "Live Q&A", true},
		{"Livestream Q&A Special", "Livestream Q&A", true},
		{"Wicked Sing-Along Early Access", "Early Access", true},
		{"Advance Screening: Nosferatu", "Advance Screening", true},
		{"Advanced Screening of Heretic", "Advanced Screening", true},
		{"Special Screening with Cast", "Special Screening", true},
		{"Anniversary Special Event", "Special Event", true},
		{"Studio Ghibli Fan Event", "Fan Event", true},
		{"Rocky Horror One Night Only", "One Night Only", true},
		{"Sneak Peek: Avatar 4", "Sneak Peek", true},
		{"Premiere Event Gala", "Premiere Event", true},
		{"Talkback with the Writers", "Talkback", true},
		{"Panel Discussion: 50 Years of Jaws", "Panel Discussion", true},
		// The earliest phrase in the title wins, not the pattern order.
		{"Early Access Fan Event", "Early Access", true},
		{"Oppenheimer", "", false},
		{"Aquaman", "", false},
		{"The Equalizer", "", false},
	}
	for _, tc := range cases {
		got, ok := MatchTitle(tc.title)
		require.Equal(t, tc.ok, ok, "title %q", tc.title)
		require.Equal(t, tc.want, got, "title %q", tc.title)
	}
}

func TestMatchTitle_LooseQAFallback(t *testing.T) {
	t.Parallel()
	// The q\W*a alternative catches spellings the specific forms miss.
	got, ok := MatchTitle("Anora Q. A. Night")
	require.True(t, ok)
	require.Equal(t, "Q. A", got)
}

func TestClassify(t *testing.T) {
	t.Parallel()
	cases := []struct {
		matched string
		want    showtime.EventCategory
	}{
		{"Q&A", showtime.CategoryQA},
		{"Live Q&A", showtime.CategoryQA},
		{"Q and A", showtime.CategoryQA},
		{"Early Access", showtime.CategoryEarlyAccess},
		{"Advance Screening", showtime.CategoryAdvanceScreening},
		{"Advanced Screening", showtime.CategoryAdvanceScreening},
		{"Special Screening", showtime.CategorySpecialEvent},
		{"Special Event", showtime.CategorySpecialEvent},
		{"Fan Event", showtime.CategoryFanEvent},
		{"One Night Only", showtime.CategoryOneNightOnly},
		{"Sneak Peek", showtime.CategorySneakPeek},
		{"Premiere Event", showtime.CategoryPremiereEvent},
		{"Talkback", showtime.CategoryTalkback},
		{"Panel Discussion", showtime.CategoryPanelDiscussion},
		{"something unexpected", showtime.CategorySpecialEvent},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Classify(tc.matched), "matched %q", tc.matched)
	}
}

func TestClassifier_Extract(t *testing.T) {
	t.Parallel()
	metrics.Init()

	results := []showtime.DailyResult{
		{
			Date:    "2026-09-01",
			Theater: "AMC Empire 25",
			Success: true,
			Movies: []showtime.Movie{
				{Name: "Dune: Part Three Q&A", Slug: "dune-part-three", Showtimes: []string{"7:00 PM"}, Rating: "PG-13"},
				{Name: "Dune: Part Three", Slug: "dune-part-three", Showtimes: []string{"1:00 PM", "4:00 PM"}},
				{Name: "", Slug: "mystery", Showtimes: []string{"9:00 PM"}},
			},
		},
		{
			Date:      "2026-09-01",
			Theater:   "AMC Lincoln Square 13",
			Success:   false,
			ErrorText: "fetch failed",
			Movies: []showtime.Movie{
				{Name: "Sneak Peek: Avatar 4", Slug: "avatar-4", Showtimes: []string{"8:00 PM"}},
			},
		},
		{
			Date:    "2026-09-02",
			Theater: "AMC Empire 25",
			Success: true,
			Movies: []showtime.Movie{
				{Name: "Nosferatu One Night Only", Slug: "nosferatu", Showtimes: []string{"11:30 PM"}},
			},
		},
	}

	got := New(zap.NewNop()).Extract(results)
	require.Len(t, got, 2)

	require.Equal(t, showtime.CategoryQA, got[0].Category)
	require.Equal(t, "Dune: Part Three Q&A", got[0].MovieName)
	require.Equal(t, "AMC Empire 25", got[0].Theater)
	require.Equal(t, "2026-09-01", got[0].Date)
	require.Equal(t, "Q&A", got[0].MatchedPattern)
	require.Equal(t, "dune-part-three", got[0].Slug)
	require.Equal(t, []string{"7:00 PM"}, got[0].Showtimes)

	require.Equal(t, showtime.CategoryOneNightOnly, got[1].Category)
	require.Equal(t, "nosferatu", got[1].Slug)
}

func TestClassifier_ExtractNoEvents(t *testing.T) {
	t.Parallel()
	metrics.Init()

	results := []showtime.DailyResult{
		{
			Date:    "2026-09-01",
			Theater: "AMC Empire 25",
			Success: true,
			Movies:  []showtime.Movie{{Name: "Dune", Slug: "dune", Showtimes: []string{"7:00 PM"}}},
		},
	}
	require.Empty(t, New(zap.NewNop()).Extract(results))
}
