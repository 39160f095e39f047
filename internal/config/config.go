// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Source   SourceConfig   `mapstructure:"source"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Output   OutputConfig   `mapstructure:"output"`
	Server   ServerConfig   `mapstructure:"server"`
	Serve    ServeConfig    `mapstructure:"serve"`
}

// LogConfig toggles zap development features and the optional rotated file.
type LogConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// SourceConfig identifies the remote showtime source.
type SourceConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Market    string `mapstructure:"market"`
	RSCToken  string `mapstructure:"rsc_token"`
	UserAgent string `mapstructure:"user_agent"`
}

// Location is one configured theater: a stable slug plus a display name.
type Location struct {
	Slug string `mapstructure:"slug"`
	Name string `mapstructure:"name"`
}

// ScrapeConfig governs the fetch engine.
type ScrapeConfig struct {
	Locations           []Location `mapstructure:"locations"`
	DaysAhead           int        `mapstructure:"days_ahead"`
	Workers             int        `mapstructure:"workers"`
	MaxRetries          int        `mapstructure:"max_retries"`
	RetryDelaysSeconds  []int      `mapstructure:"retry_delays_seconds"`
	TimeoutSeconds      int        `mapstructure:"timeout_seconds"`
	RequestDelaySeconds int        `mapstructure:"request_delay_seconds"`
	SaveRaw             bool       `mapstructure:"save_raw"`
	VenueKeywords       []string   `mapstructure:"venue_keywords"`
}

// HeadlessConfig configures the fallback browser renderer.
type HeadlessConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	MaxConcurrency int     `mapstructure:"max_concurrency"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	DomainQPS      float64 `mapstructure:"domain_qps"`
}

// StorageConfig selects the raw-payload sink provider.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// DatabaseConfig selects the notification store provider.
type DatabaseConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	Migrate  bool   `mapstructure:"migrate"`
}

// QueueConfig selects the post-delivery announce provider.
type QueueConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// NotifyConfig governs the delivery dispatcher.
type NotifyConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Categories    []string `mapstructure:"categories"`
	SendDelayMs   int      `mapstructure:"send_delay_ms"`
	RetentionDays int      `mapstructure:"retention_days"`
}

// OutputConfig sets where run reports land and how long they are kept.
type OutputConfig struct {
	Dir      string `mapstructure:"dir"`
	KeepDays int    `mapstructure:"keep_days"`
}

// ServerConfig controls the admin HTTP listener used in serve mode.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// ServeConfig controls the scheduler loop.
type ServeConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
}

// Load builds a Config from disk/environment. An explicit path must exist;
// with no path the default search locations are tried and a missing file
// falls back to defaults plus environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHOWTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/showtime-alerts/")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.development", true)
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)

	v.SetDefault("source.market", "new-york-city")
	v.SetDefault("source.rsc_token", "yfjqh")
	v.SetDefault("source.user_agent",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")

	v.SetDefault("scrape.days_ahead", 7)
	v.SetDefault("scrape.workers", 4)
	v.SetDefault("scrape.max_retries", 3)
	v.SetDefault("scrape.retry_delays_seconds", []int{5, 10, 20})
	v.SetDefault("scrape.timeout_seconds", 15)
	v.SetDefault("scrape.request_delay_seconds", 1)
	v.SetDefault("scrape.save_raw", false)
	v.SetDefault("scrape.venue_keywords",
		[]string{"AMC", "IMAX", "Dolby", "Prime", "Empire", "Lincoln", "Square"})

	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_concurrency", 1)
	v.SetDefault("headless.timeout_seconds", 25)
	v.SetDefault("headless.domain_qps", 0.5)

	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.local_dir", "output/raw_responses")

	v.SetDefault("database.provider", "postgres")
	v.SetDefault("database.table", "notifications")
	v.SetDefault("database.migrate", true)

	v.SetDefault("queue.provider", "noop")

	v.SetDefault("notify.enabled", true)
	v.SetDefault("notify.categories", []string{"Q&A"})
	v.SetDefault("notify.send_delay_ms", 500)
	v.SetDefault("notify.retention_days", 30)

	v.SetDefault("output.dir", "output")
	v.SetDefault("output.keep_days", 30)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("serve.interval_minutes", 30)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url must be set")
	}
	if len(c.Scrape.Locations) == 0 {
		return fmt.Errorf("scrape.locations must list at least one location")
	}
	for i, loc := range c.Scrape.Locations {
		if loc.Slug == "" || loc.Name == "" {
			return fmt.Errorf("scrape.locations[%d] must have slug and name", i)
		}
	}
	if c.Scrape.DaysAhead <= 0 {
		return fmt.Errorf("scrape.days_ahead must be > 0")
	}
	if c.Scrape.Workers < 0 {
		return fmt.Errorf("scrape.workers must be >= 0")
	}
	if c.Scrape.MaxRetries <= 0 {
		return fmt.Errorf("scrape.max_retries must be > 0")
	}
	if len(c.Scrape.RetryDelaysSeconds) == 0 {
		return fmt.Errorf("scrape.retry_delays_seconds must not be empty")
	}
	for i, d := range c.Scrape.RetryDelaysSeconds {
		if d <= 0 {
			return fmt.Errorf("scrape.retry_delays_seconds[%d] must be > 0", i)
		}
	}
	if c.Scrape.TimeoutSeconds <= 0 {
		return fmt.Errorf("scrape.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxConcurrency <= 0 {
		return fmt.Errorf("headless.max_concurrency must be > 0 when headless is enabled")
	}
	switch c.Storage.Provider {
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local provider")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs provider")
		}
	case "noop":
	default:
		return fmt.Errorf("storage.provider must be one of local, gcs, noop")
	}
	switch c.Database.Provider {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set for the postgres provider")
		}
		if c.Database.Table == "" {
			return fmt.Errorf("database.table must be set")
		}
	case "noop":
	default:
		return fmt.Errorf("database.provider must be one of postgres, noop")
	}
	switch c.Queue.Provider {
	case "pubsub":
		if c.Queue.ProjectID == "" || c.Queue.TopicID == "" {
			return fmt.Errorf("queue.project_id and queue.topic_id must be set for the pubsub provider")
		}
	case "noop":
	default:
		return fmt.Errorf("queue.provider must be one of pubsub, noop")
	}
	if c.Notify.SendDelayMs < 0 {
		return fmt.Errorf("notify.send_delay_ms must be >= 0")
	}
	if c.Notify.RetentionDays <= 0 {
		return fmt.Errorf("notify.retention_days must be > 0")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir must be set")
	}
	if c.Output.KeepDays <= 0 {
		return fmt.Errorf("output.keep_days must be > 0")
	}
	if c.Serve.IntervalMinutes <= 0 {
		return fmt.Errorf("serve.interval_minutes must be > 0")
	}
	return nil
}

// Timeout converts the per-request timeout into a duration.
func (c ScrapeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RequestDelay converts the politeness delay into a duration.
func (c ScrapeConfig) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySeconds) * time.Second
}

// RetryDelays converts the configured delay schedule into durations.
func (c ScrapeConfig) RetryDelays() []time.Duration {
	out := make([]time.Duration, len(c.RetryDelaysSeconds))
	for i, d := range c.RetryDelaysSeconds {
		out[i] = time.Duration(d) * time.Second
	}
	return out
}

// Timeout converts the headless navigation timeout into a duration.
func (c HeadlessConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SendDelay converts the inter-message delay into a duration.
func (c NotifyConfig) SendDelay() time.Duration {
	return time.Duration(c.SendDelayMs) * time.Millisecond
}

// Interval converts the scheduler period into a duration.
func (c ServeConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}
