package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cinewatch/showtime-alerts/internal/api"
	"github.com/cinewatch/showtime-alerts/internal/pipeline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// newServeCmd creates the 'serve' subcommand, which runs the pipeline
// on a fixed interval and hosts the admin HTTP server until SIGINT or
// SIGTERM arrives.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the pipeline on a schedule with an admin HTTP server",
		Long: `Runs one pipeline pass immediately, then repeats on the configured
interval. Old report files are pruned after each pass. The admin server
exposes health probes, Prometheus metrics, store statistics, and the
report of the most recent run.`,

		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()
	cfg := appInstance.GetConfig()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiServer := api.NewServer(appInstance.GetStore(), appInstance.GetPipeline(), logger)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Admin server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Admin server failed", zap.Error(err))
			stop()
		}
	}()

	go runSchedule(ctx, appInstance, cfg.Serve.Interval(), cfg.Output.KeepDays)

	<-ctx.Done()
	logger.Info("Shutdown signal received, stopping admin server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Admin server shutdown failed", zap.Error(err))
		return err
	}

	logger.Info("Server stopped cleanly")
	return nil
}

// runSchedule triggers a pipeline pass immediately and then on every
// tick until the context is cancelled. Report files older than the
// retention window are pruned after each pass.
func runSchedule(ctx context.Context, appInstance App, interval time.Duration, keepDays int) {
	logger := appInstance.GetLogger()

	pass := func() {
		if _, err := appInstance.GetPipeline().Run(ctx); err != nil {
			// A cancelled context fails every fetch, so a run aborted by
			// shutdown is not worth reporting.
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, pipeline.ErrRunInProgress) {
				logger.Warn("Previous run still active, skipping this trigger")
			} else {
				logger.Error("Scheduled pipeline run failed", zap.Error(err))
			}
		}
		if reports := appInstance.GetReports(); reports != nil {
			reports.Prune(keepDays)
		}
	}

	pass()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pass()
		}
	}
}
