package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/cinewatch/showtime-alerts/internal/showtime"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the Postgres connection pool used for
// notification state.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// PostgresStore keeps notification state in Postgres.
type PostgresStore struct {
	pool  querier
	table string
	now   func() time.Time
	log   *zap.Logger
}

// NewPostgresStore creates a Postgres-backed Store using the provided config.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, log *zap.Logger) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "notifications"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PostgresStore{
		pool:  pool,
		table: table,
		now:   time.Now,
		log:   log,
	}, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPostgresStoreWithPool(pool querier, table string, log *zap.Logger) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "notifications"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PostgresStore{pool: pool, table: table, now: time.Now, log: log}, nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// ShouldNotify compares the event's showtimes against the stored state.
// Unknown events and events whose showtimes changed warrant a notification.
// Read and decode failures fail open so a broken store never silences an
// alert, at the cost of a possible duplicate.
func (s *PostgresStore) ShouldNotify(ctx context.Context, ev showtime.Event) Decision {
	if s == nil || s.pool == nil {
		return Decision{Notify: true}
	}
	id := ev.NotificationID()
	query := fmt.Sprintf(`SELECT showtimes FROM %s WHERE notification_id = $1`, s.table)

	var stored string
	err := s.pool.QueryRow(ctx, query, id).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return Decision{Notify: true}
	}
	if err != nil {
		s.log.Error("notification state read failed, treating event as new",
			zap.String("notification_id", id),
			zap.Error(err))
		return Decision{Notify: true}
	}

	var previous []string
	if err := json.Unmarshal([]byte(stored), &previous); err != nil {
		s.log.Error("stored showtimes are not valid JSON, treating event as new",
			zap.String("notification_id", id),
			zap.Error(err))
		return Decision{Notify: true}
	}

	diff := showtime.DiffShowtimes(previous, ev.Showtimes)
	if !diff.Changed() {
		return Decision{Notify: false}
	}
	return Decision{Notify: true, Diff: &diff}
}

// MarkNotified records a delivered notification. New events are upserted
// with a fresh notification count; updates keep the original record and
// bump the count.
func (s *PostgresStore) MarkNotified(ctx context.Context, ev showtime.Event, isUpdate bool) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("notification store is not configured")
	}
	id := ev.NotificationID()
	encoded, err := json.Marshal(ev.Showtimes)
	if err != nil {
		return fmt.Errorf("encode showtimes: %w", err)
	}
	now := s.now()

	if isUpdate {
		query := fmt.Sprintf(`
UPDATE %s SET
	showtimes = $1,
	last_updated_at = $2,
	notification_count = notification_count + 1
WHERE notification_id = $3`, s.table)
		if _, err := s.pool.Exec(ctx, query, string(encoded), now, id); err != nil {
			return fmt.Errorf("update notification: %w", err)
		}
		return nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	notification_id,
	theater,
	date,
	movie_name,
	movie_slug,
	event_type,
	showtimes,
	runtime,
	rating,
	first_notified_at,
	last_updated_at,
	notification_count
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,1
)
ON CONFLICT (notification_id) DO UPDATE SET
	theater = EXCLUDED.theater,
	date = EXCLUDED.date,
	movie_name = EXCLUDED.movie_name,
	movie_slug = EXCLUDED.movie_slug,
	event_type = EXCLUDED.event_type,
	showtimes = EXCLUDED.showtimes,
	runtime = EXCLUDED.runtime,
	rating = EXCLUDED.rating,
	first_notified_at = EXCLUDED.first_notified_at,
	last_updated_at = EXCLUDED.last_updated_at,
	notification_count = EXCLUDED.notification_count`, s.table)

	args := []any{
		id,
		ev.Theater,
		ev.Date,
		ev.MovieName,
		ev.Slug,
		string(ev.Category),
		string(encoded),
		ev.Runtime,
		ev.Rating,
		now,
		now,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// Cleanup deletes records for dates older than the retention window and
// returns the number removed. Failures are logged and reported as zero so
// a cleanup hiccup never aborts a run.
func (s *PostgresStore) Cleanup(ctx context.Context, retentionDays int) int {
	if s == nil || s.pool == nil {
		return 0
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays).Format("2006-01-02")
	query := fmt.Sprintf(`DELETE FROM %s WHERE date < $1`, s.table)

	tag, err := s.pool.Exec(ctx, query, cutoff)
	if err != nil {
		s.log.Error("notification cleanup failed",
			zap.String("cutoff", cutoff),
			zap.Error(err))
		return 0
	}
	deleted := int(tag.RowsAffected())
	if deleted > 0 {
		s.log.Info("cleaned up old notification records",
			zap.Int("deleted", deleted),
			zap.String("cutoff", cutoff))
	}
	return deleted
}

// Statistics reports totals over the stored notification records.
func (s *PostgresStore) Statistics(ctx context.Context) (Statistics, error) {
	if s == nil || s.pool == nil {
		return Statistics{}, fmt.Errorf("notification store is not configured")
	}
	stats := Statistics{ByEventType: map[string]int{}}

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)
	if err := s.pool.QueryRow(ctx, query).Scan(&stats.TotalRecords); err != nil {
		return Statistics{}, fmt.Errorf("count records: %w", err)
	}

	query = fmt.Sprintf(`SELECT event_type, COUNT(*) FROM %s GROUP BY event_type`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return Statistics{}, fmt.Errorf("count by event type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var eventType string
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			return Statistics{}, fmt.Errorf("scan event type count: %w", err)
		}
		stats.ByEventType[eventType] = count
	}
	if err := rows.Err(); err != nil {
		return Statistics{}, fmt.Errorf("read event type counts: %w", err)
	}

	today := s.now().Format("2006-01-02")
	query = fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE date >= $1`, s.table)
	if err := s.pool.QueryRow(ctx, query, today).Scan(&stats.UpcomingEvents); err != nil {
		return Statistics{}, fmt.Errorf("count upcoming events: %w", err)
	}
	return stats, nil
}

// History returns the full stored record for an event, or nil when the
// event has never been notified.
func (s *PostgresStore) History(ctx context.Context, ev showtime.Event) (*showtime.NotificationRecord, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("notification store is not configured")
	}
	id := ev.NotificationID()
	query := fmt.Sprintf(`
SELECT
	notification_id,
	theater,
	date,
	movie_name,
	movie_slug,
	event_type,
	showtimes,
	runtime,
	rating,
	first_notified_at,
	last_updated_at,
	notification_count
FROM %s WHERE notification_id = $1`, s.table)

	var rec showtime.NotificationRecord
	var eventType string
	var encoded string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&rec.NotificationID,
		&rec.Theater,
		&rec.Date,
		&rec.MovieName,
		&rec.Slug,
		&eventType,
		&encoded,
		&rec.Runtime,
		&rec.Rating,
		&rec.FirstNotifiedAt,
		&rec.LastUpdatedAt,
		&rec.NotificationCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load notification history: %w", err)
	}
	rec.Category = showtime.EventCategory(eventType)
	if err := json.Unmarshal([]byte(encoded), &rec.Showtimes); err != nil {
		return nil, fmt.Errorf("decode stored showtimes: %w", err)
	}
	return &rec, nil
}
