package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// newStatsCmd creates the 'stats' subcommand, which prints a summary of
// the notification store.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Prints notification store statistics",
		RunE:  runStatsCommand,
	}
}

func runStatsCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	stats, err := appInstance.GetStore().Statistics(cmd.Context())
	if err != nil {
		return fmt.Errorf("load store statistics: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Notification records: %d\n", stats.TotalRecords)
	fmt.Fprintf(out, "Upcoming events:      %d\n", stats.UpcomingEvents)
	if len(stats.ByEventType) > 0 {
		fmt.Fprintln(out, "By category:")
		categories := make([]string, 0, len(stats.ByEventType))
		for category := range stats.ByEventType {
			categories = append(categories, category)
		}
		sort.Strings(categories)
		for _, category := range categories {
			fmt.Fprintf(out, "  %-20s %d\n", category, stats.ByEventType[category])
		}
	}
	return nil
}
