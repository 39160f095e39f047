package cmd

import (
	"fmt"

	"github.com/cinewatch/showtime-alerts/internal/notify"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newScrapeCmd creates the 'scrape' subcommand. It runs the fetch,
// parse, and classify stages and writes both report files, but never
// touches the store or sends a notification. Useful for checking what
// a full run would announce.
func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Scrapes listings and writes reports without delivering",
		Long: `Fetches showtime listings for every configured location, writes the
showtimes report and the special events report, and stops there. No
notifications are sent and the deduplication store is not consulted.`,

		RunE: runScrapeCommand,
	}
}

func runScrapeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()
	runID := uuid.NewString()

	results := appInstance.GetScraper().ScrapeAll(cmd.Context())
	stats := appInstance.GetScraper().Stats()

	scrapePath, err := appInstance.GetReports().WriteScrapeReport(runID, results, stats)
	if err != nil {
		return fmt.Errorf("write scrape report: %w", err)
	}

	found := appInstance.GetClassifier().Extract(results)
	eventsPath, err := appInstance.GetReports().WriteEventsReport(runID, scrapePath, found)
	if err != nil {
		return fmt.Errorf("write events report: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), notify.NewFormatter().FormatSummary(found))

	logger.Info("Scrape command finished.",
		zap.String("run_id", runID),
		zap.String("scrape_report", scrapePath),
		zap.String("events_report", eventsPath),
		zap.Int("successful_requests", stats.SuccessfulRequests),
		zap.Int("failed_requests", stats.FailedRequests),
		zap.Int("movies_found", stats.TotalMoviesFound),
		zap.Int("special_events", len(found)),
	)
	return nil
}
