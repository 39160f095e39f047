// Package cmd defines and implements the CLI commands for the showtime-alerts executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/cinewatch/showtime-alerts/internal/app"
	"github.com/cinewatch/showtime-alerts/internal/config"
	"github.com/cinewatch/showtime-alerts/internal/events"
	"github.com/cinewatch/showtime-alerts/internal/logging"
	"github.com/cinewatch/showtime-alerts/internal/metrics"
	"github.com/cinewatch/showtime-alerts/internal/notify"
	"github.com/cinewatch/showtime-alerts/internal/pipeline"
	"github.com/cinewatch/showtime-alerts/internal/scraper"
	"github.com/cinewatch/showtime-alerts/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use.
// This allows us to inject a mock app during tests.
type App interface {
	Close()
	GetLogger() *zap.Logger
	GetConfig() config.Config
	GetStore() store.Store
	GetDispatcher() *notify.Dispatcher
	GetScraper() *scraper.Scraper
	GetClassifier() *events.Classifier
	GetReports() *pipeline.ReportWriter
	GetPipeline() *pipeline.Pipeline
}

// newApp is the application factory. It's a variable so we can
// replace it with a mock factory in our tests.
var newApp func(ctx context.Context, cfg config.Config) (App, error) = func(ctx context.Context, cfg config.Config) (App, error) {
	return app.NewApp(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "showtime-alerts",
		Short: "Watches theater showtime listings for special event screenings.",
		Long: `showtime-alerts polls theater showtime listings, extracts special
event screenings such as Q&As and early access showings, and delivers
Telegram alerts for anything it has not announced before.`,

		// This hook runs BEFORE the subcommand's RunE. It loads the
		// configuration and builds the application container, so every
		// subcommand finds a ready App in its context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Secrets such as the Telegram bot token may live in a local
			// .env file; a missing file is not an error.
			_ = godotenv.Load()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			logging.InitLogger(cfg.Log.Development, logging.FileConfig{
				Path:       cfg.Log.File,
				MaxSizeMB:  cfg.Log.MaxSizeMB,
				MaxBackups: cfg.Log.MaxBackups,
				MaxAgeDays: cfg.Log.MaxAgeDays,
			})
			metrics.Init()

			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			// Store the app instance in the context for subcommands to use.
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		// This hook ensures services are shut down gracefully.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches . and /etc/showtime-alerts)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newNotifyCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatsCmd())

	return cmd
}

// resolveApp retrieves the application container placed in the context
// by the root command's PersistentPreRunE hook.
func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		logging.L.Fatal("Command execution failed", zap.Error(err))
	}
}
