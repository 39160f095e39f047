package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newRunCmd creates the 'run' subcommand, which executes a single
// scrape, classify, and deliver pass of the pipeline.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Runs one full pipeline pass",
		Long: `Fetches showtime listings for every configured location, extracts
special event screenings, and delivers notifications for events that
have not been announced before. Exits non-zero when the run fails.`,

		RunE: runRunCommand,
	}
}

func runRunCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	report, err := appInstance.GetPipeline().Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	appInstance.GetLogger().Info("Run command finished.",
		zap.String("run_id", report.RunID),
		zap.Int("events_found", report.EventsFound),
		zap.Int("sent", report.Delivery.Sent),
		zap.Int("skipped", report.Delivery.Skipped),
		zap.Int("failed", report.Delivery.Failed),
	)
	return nil
}
