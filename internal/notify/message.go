package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/cinewatch/showtime-alerts/internal/showtime"
)

const (
	messageRuneLimit = 4096
	truncationSuffix = "... (message truncated)"
	timestampLayout  = "2006-01-02 15:04:05 MST"
)

// markdownV2Replacer escapes the special characters Telegram rejects in
// MarkdownV2 text. Asterisks and underscores are left alone so the bold
// and italic markup in rendered messages survives.
var markdownV2Replacer = strings.NewReplacer(
	"[", `\[`,
	"]", `\]`,
	"(", `\(`,
	")", `\)`,
	"~", `\~`,
	"`", "\\`",
	">", `\>`,
	"#", `\#`,
	"+", `\+`,
	"-", `\-`,
	"=", `\=`,
	"|", `\|`,
	"{", `\{`,
	"}", `\}`,
	".", `\.`,
	"!", `\!`,
)

// EscapeMarkdownV2 escapes MarkdownV2 special characters for the Telegram
// Bot API.
func EscapeMarkdownV2(text string) string {
	return markdownV2Replacer.Replace(text)
}

// TruncateMessage caps a message at the Telegram character limit,
// replacing the tail with a truncation marker. The limit counts runes;
// Telegram measures text after entity parsing, so escaping afterwards
// does not push a truncated message back over it.
func TruncateMessage(text string) string {
	runes := []rune(text)
	if len(runes) <= messageRuneLimit {
		return text
	}
	keep := messageRuneLimit - len(truncationSuffix) - 1
	return string(runes[:keep]) + "\n" + truncationSuffix
}

// Formatter renders notification messages in Telegram MarkdownV2 layout.
// Markup characters are inserted here; the transport escapes the rest.
type Formatter struct {
	// Now stamps messages and is overridable in tests.
	Now func() time.Time
}

// NewFormatter returns a Formatter stamping messages with the wall clock.
func NewFormatter() *Formatter {
	return &Formatter{Now: time.Now}
}

func (f *Formatter) timestamp() string {
	return f.Now().Format(timestampLayout)
}

func runtimeLabel(runtime *int) string {
	if runtime == nil || *runtime == 0 {
		return ""
	}
	return fmt.Sprintf("_%dmin_", *runtime)
}

func ratingLabel(rating string) string {
	if rating == "" {
		return ""
	}
	return "[" + rating + "]"
}

// FormatNew renders the first-sighting message for an event.
func (f *Formatter) FormatNew(ev showtime.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎬 *New %s Event!*\n*%s*\n\n", ev.Category, f.timestamp())
	fmt.Fprintf(&b, "*%s*\n", ev.MovieName)
	fmt.Fprintf(&b, "📍 %s\n", ev.Theater)
	fmt.Fprintf(&b, "📅 %s\n", ev.Date)
	fmt.Fprintf(&b, "⏳ %s %s\n", runtimeLabel(ev.Runtime), ratingLabel(ev.Rating))
	fmt.Fprintf(&b, "⏰ %s\n", strings.Join(ev.Showtimes, ", "))
	return strings.TrimSpace(b.String())
}

// FormatUpdate renders the changed-showtimes message for an event.
func (f *Formatter) FormatUpdate(ev showtime.Event, diff showtime.ShowtimeDiff) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔔 *Updated %s Event*\n*%s*\n\n", ev.Category, f.timestamp())
	fmt.Fprintf(&b, "🎬 *%s*\n", ev.MovieName)
	fmt.Fprintf(&b, "📍 %s\n", ev.Theater)
	fmt.Fprintf(&b, "📅 %s\n", ev.Date)
	fmt.Fprintf(&b, "⏳ %s %s\n\n", runtimeLabel(ev.Runtime), ratingLabel(ev.Rating))

	if len(diff.Added) > 0 {
		b.WriteString("✅ *New showtimes:*\n")
		for _, clock := range diff.Added {
			fmt.Fprintf(&b, "  ⏰ %s\n", clock)
		}
	}
	if len(diff.Removed) > 0 {
		b.WriteString("\n❌ *Removed showtimes:*\n")
		for _, clock := range diff.Removed {
			fmt.Fprintf(&b, "  ⏰ %s\n", clock)
		}
	}
	if len(diff.Unchanged) > 0 {
		b.WriteString("\n📌 *Still available:*\n")
		for _, clock := range diff.Unchanged {
			fmt.Fprintf(&b, "  ⏰ %s\n", clock)
		}
	}
	return strings.TrimSpace(b.String())
}

// FormatSummary renders one digest message covering every event, grouped
// by category in first-seen order.
func (f *Formatter) FormatSummary(events []showtime.Event) string {
	if len(events) == 0 {
		return "📱 No special events found"
	}

	var order []showtime.EventCategory
	grouped := make(map[showtime.EventCategory][]showtime.Event)
	for _, ev := range events {
		if _, seen := grouped[ev.Category]; !seen {
			order = append(order, ev.Category)
		}
		grouped[ev.Category] = append(grouped[ev.Category], ev)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🎬 *Special Events Summary*\n*%s*\n_%d events found_\n\n", f.timestamp(), len(events))
	for _, category := range order {
		group := grouped[category]
		fmt.Fprintf(&b, "🎭 *%s* _%d events_:\n", category, len(group))
		for _, ev := range group {
			fmt.Fprintf(&b, "• *%s*\n", ev.MovieName)
			fmt.Fprintf(&b, "  📍 %s - %s\n", ev.Theater, ev.Date)
			fmt.Fprintf(&b, "  ⏳ %s %s\n", runtimeLabel(ev.Runtime), ratingLabel(ev.Rating))
			fmt.Fprintf(&b, "  ⏰ %s\n\n", strings.Join(ev.Showtimes, ", "))
		}
	}
	return strings.TrimSpace(b.String())
}
