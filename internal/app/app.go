// Package app initializes and holds the long-lived application services,
// acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/cinewatch/showtime-alerts/internal/announce"
	"github.com/cinewatch/showtime-alerts/internal/blob"
	"github.com/cinewatch/showtime-alerts/internal/config"
	"github.com/cinewatch/showtime-alerts/internal/events"
	"github.com/cinewatch/showtime-alerts/internal/logging"
	"github.com/cinewatch/showtime-alerts/internal/notify"
	"github.com/cinewatch/showtime-alerts/internal/parser"
	"github.com/cinewatch/showtime-alerts/internal/pipeline"
	"github.com/cinewatch/showtime-alerts/internal/scraper"
	"github.com/cinewatch/showtime-alerts/internal/showtime"
	"github.com/cinewatch/showtime-alerts/internal/store"
)

// Telegram credentials stay out of config files and come from the
// environment, matching the bot token handling of most deployments.
const (
	envTelegramBotToken = "TELEGRAM_BOT_TOKEN"
	envTelegramChatIDs  = "TELEGRAM_CHAT_IDS"
)

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup and passed to the commands that
// need it.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Blob       blob.Provider
	Store      store.Store
	Announcer  announce.Provider
	Dispatcher *notify.Dispatcher
	Scraper    *scraper.Scraper
	Classifier *events.Classifier
	Reports    *pipeline.ReportWriter
	Pipeline   *pipeline.Pipeline

	renderer *scraper.ChromedpRenderer
}

// GetLogger returns the shared zap logger instance.
func (a *App) GetLogger() *zap.Logger { return a.Logger }

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config { return a.Config }

// GetStore exposes the notification state store.
func (a *App) GetStore() store.Store { return a.Store }

// GetDispatcher returns the delivery dispatcher, nil when notifications
// are disabled.
func (a *App) GetDispatcher() *notify.Dispatcher { return a.Dispatcher }

// GetScraper returns the fetch engine.
func (a *App) GetScraper() *scraper.Scraper { return a.Scraper }

// GetClassifier returns the special event classifier.
func (a *App) GetClassifier() *events.Classifier { return a.Classifier }

// GetReports returns the run report writer.
func (a *App) GetReports() *pipeline.ReportWriter { return a.Reports }

// GetPipeline returns the assembled orchestrator.
func (a *App) GetPipeline() *pipeline.Pipeline { return a.Pipeline }

// NewApp creates and initializes a new App from the loaded configuration.
// It is the central point for service initialization and fails fast if any
// critical service cannot be initialized.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	l := logging.L
	l.Info("Initializing application services...")

	a := &App{Config: cfg, Logger: l}

	if err := a.setupBlob(ctx); err != nil {
		return nil, err
	}
	if err := a.setupStore(ctx); err != nil {
		return nil, err
	}
	if err := a.setupAnnouncer(ctx); err != nil {
		return nil, err
	}
	if err := a.setupDispatcher(ctx); err != nil {
		return nil, err
	}
	if err := a.setupPipeline(); err != nil {
		return nil, err
	}

	l.Info("Application services initialized successfully.")
	return a, nil
}

// setupBlob selects the raw payload sink.
func (a *App) setupBlob(ctx context.Context) error {
	switch a.Config.Storage.Provider {
	case "local":
		a.Logger.Info("Using local storage provider",
			zap.String("dir", a.Config.Storage.LocalDir))
		p, err := blob.NewLocalProvider(a.Config.Storage.LocalDir)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.Blob = p
	case "gcs":
		a.Logger.Info("Using GCS storage provider",
			zap.String("bucket", a.Config.Storage.GCSBucket))
		p, err := blob.NewGCSProvider(ctx, a.Config.Storage.GCSBucket)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.Blob = p
	case "noop":
		a.Logger.Info("Using No-Op storage provider. Raw payloads will be discarded.")
		a.Blob = &blob.NoOpProvider{}
	default:
		return fmt.Errorf("unknown storage provider: %s", a.Config.Storage.Provider)
	}
	return nil
}

// setupStore selects the notification state store.
func (a *App) setupStore(ctx context.Context) error {
	switch a.Config.Database.Provider {
	case "postgres":
		if a.Config.Database.Migrate {
			a.Logger.Info("Running database migrations...")
			if err := store.Migrate(a.Config.Database.DSN); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		a.Logger.Info("Connecting to PostgreSQL...")
		st, err := store.NewPostgresStore(ctx, store.PostgresConfig{
			DSN:   a.Config.Database.DSN,
			Table: a.Config.Database.Table,
		}, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		a.Store = st
	case "noop":
		a.Logger.Info("Using No-Op database provider. Every event will notify.")
		a.Store = store.NoOpStore{}
	default:
		return fmt.Errorf("unknown database provider: %s", a.Config.Database.Provider)
	}
	return nil
}

// setupAnnouncer selects the post-delivery announce channel.
func (a *App) setupAnnouncer(ctx context.Context) error {
	switch a.Config.Queue.Provider {
	case "pubsub":
		a.Logger.Info("Connecting to GCP Pub/Sub",
			zap.String("topic", a.Config.Queue.TopicID))
		q, err := announce.NewPubSubProvider(ctx, a.Config.Queue.ProjectID, a.Config.Queue.TopicID)
		if err != nil {
			return fmt.Errorf("failed to initialize queue: %w", err)
		}
		a.Announcer = q
	case "noop":
		a.Logger.Info("Using No-Op queue provider. No announcements will be sent.")
		a.Announcer = &announce.NoOpProvider{}
	default:
		return fmt.Errorf("unknown queue provider: %s", a.Config.Queue.Provider)
	}
	return nil
}

// setupDispatcher builds the Telegram sender and the delivery dispatcher.
// With notifications disabled the dispatcher stays nil and the pipeline
// skips the delivery stage.
func (a *App) setupDispatcher(ctx context.Context) error {
	if !a.Config.Notify.Enabled {
		a.Logger.Info("Notifications disabled.")
		return nil
	}

	token := os.Getenv(envTelegramBotToken)
	if token == "" {
		return fmt.Errorf("notifications are enabled but %s is not set", envTelegramBotToken)
	}
	chatIDs := parseChatIDs(os.Getenv(envTelegramChatIDs))
	if len(chatIDs) == 0 {
		return fmt.Errorf("notifications are enabled but %s is not set", envTelegramChatIDs)
	}
	categories, err := parseCategories(a.Config.Notify.Categories)
	if err != nil {
		return err
	}

	sender, err := notify.NewTelegramSender(ctx, notify.TelegramConfig{BotToken: token}, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telegram sender: %w", err)
	}

	a.Dispatcher = notify.NewDispatcher(notify.DispatcherConfig{
		Categories:    categories,
		Destinations:  chatIDs,
		SendDelay:     a.Config.Notify.SendDelay(),
		RetentionDays: a.Config.Notify.RetentionDays,
	}, a.Store, sender, a.Logger, notify.WithAnnouncer(a.Announcer))

	a.Logger.Info("Telegram dispatcher initialized",
		zap.Int("chats", len(chatIDs)),
		zap.Int("categories", len(categories)))
	return nil
}

// setupPipeline assembles the scrape engine and the orchestrator.
func (a *App) setupPipeline() error {
	scrapeCfg := scraper.Config{
		BaseURL:      a.Config.Source.BaseURL,
		Market:       a.Config.Source.Market,
		RSCToken:     a.Config.Source.RSCToken,
		UserAgent:    a.Config.Source.UserAgent,
		Locations:    toLocations(a.Config.Scrape.Locations),
		DaysAhead:    a.Config.Scrape.DaysAhead,
		Workers:      a.Config.Scrape.Workers,
		MaxRetries:   a.Config.Scrape.MaxRetries,
		RetryDelays:  a.Config.Scrape.RetryDelays(),
		Timeout:      a.Config.Scrape.Timeout(),
		RequestDelay: a.Config.Scrape.RequestDelay(),
		SaveRaw:      a.Config.Scrape.SaveRaw,
	}

	fetcher, err := scraper.NewCollyFetcher(scrapeCfg, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize fetcher: %w", err)
	}

	p := parser.New(a.Config.Scrape.VenueKeywords, a.Logger)

	opts := []scraper.Option{}
	if a.Config.Headless.Enabled {
		renderer, err := scraper.NewChromedpRenderer(scraper.RendererConfig{
			UserAgent:      a.Config.Source.UserAgent,
			MaxConcurrency: a.Config.Headless.MaxConcurrency,
			Timeout:        a.Config.Headless.Timeout(),
			DomainQPS:      a.Config.Headless.DomainQPS,
		}, a.Logger)
		if err != nil {
			a.Logger.Warn("Headless renderer init failed, continuing without fallback",
				zap.Error(err))
		} else {
			a.renderer = renderer
			opts = append(opts, scraper.WithRenderer(renderer, nil))
		}
	}

	a.Scraper = scraper.New(scrapeCfg, fetcher, p, a.Blob, a.Logger, opts...)
	a.Classifier = events.New(a.Logger)

	reports, err := pipeline.NewReportWriter(a.Config.Output.Dir, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize report writer: %w", err)
	}
	a.Reports = reports

	a.Pipeline = pipeline.New(a.Scraper, a.Classifier, a.Dispatcher, a.Reports, a.Logger)
	return nil
}

// Close gracefully shuts down all services in the App container. It is
// called by a Cobra hook after the command finishes execution.
func (a *App) Close() {
	a.Logger.Info("Shutting down application services...")
	if a.renderer != nil {
		if err := a.renderer.Close(); err != nil {
			a.Logger.Warn("Error closing headless renderer", zap.Error(err))
		}
	}
	if a.Store != nil {
		a.Store.Close()
	}
	if a.Announcer != nil {
		if err := a.Announcer.Close(); err != nil {
			a.Logger.Warn("Error closing queue client", zap.Error(err))
		}
	}
	// The GCS storage client does not require an explicit close operation.

	// Flush the logger buffer so all logs are written before exit.
	if err := a.Logger.Sync(); err != nil {
		// Best effort; logging itself might be failing.
		a.Logger.Warn("Error syncing logger on shutdown", zap.Error(err))
	}
}

// parseChatIDs splits the comma-separated chat id list, dropping empty
// entries and surrounding whitespace.
func parseChatIDs(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseCategories converts configured category names, rejecting names
// outside the known set so typos surface at startup.
func parseCategories(names []string) ([]showtime.EventCategory, error) {
	out := make([]showtime.EventCategory, 0, len(names))
	for _, name := range names {
		c := showtime.EventCategory(name)
		if !c.Valid() {
			return nil, fmt.Errorf("unknown notify category %q", name)
		}
		out = append(out, c)
	}
	return out, nil
}

func toLocations(locs []config.Location) []showtime.Location {
	out := make([]showtime.Location, 0, len(locs))
	for _, loc := range locs {
		out = append(out, showtime.Location{Slug: loc.Slug, Name: loc.Name})
	}
	return out
}
