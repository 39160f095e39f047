package cmd

import (
	"errors"

	"github.com/cinewatch/showtime-alerts/internal/pipeline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newNotifyCmd creates the 'notify' subcommand, which replays a saved
// special events report through the dispatcher. Deduplication still
// applies, so events announced by an earlier run are skipped.
func newNotifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify <events-report.json>",
		Short: "Delivers notifications from a saved events report",
		Args:  cobra.ExactArgs(1),
		RunE:  runNotifyCommand,
	}
}

func runNotifyCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	dispatcher := appInstance.GetDispatcher()
	if dispatcher == nil {
		return errors.New("notifications are disabled in the configuration")
	}

	found, err := pipeline.ReadEventsReport(args[0], appInstance.GetLogger())
	if err != nil {
		return err
	}

	stats := dispatcher.Deliver(cmd.Context(), uuid.NewString(), found)

	appInstance.GetLogger().Info("Notify command finished.",
		zap.Int("events", len(found)),
		zap.Int("sent", stats.Sent),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return nil
}
