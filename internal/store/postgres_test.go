package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/cinewatch/showtime-alerts/internal/showtime"
)

var fixedStoreNow = time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	st, err := NewPostgresStoreWithPool(mock, "notifications", nil)
	require.NoError(t, err)
	st.now = func() time.Time { return fixedStoreNow }
	return st, mock
}

func qaEvent(times ...string) showtime.Event {
	runtime := 135
	return showtime.Event{
		MovieName: "Dune Part Three",
		Category:  showtime.CategoryQA,
		Theater:   "AMC Lincoln Square 13",
		Date:      "2026-09-01",
		Showtimes: times,
		Runtime:   &runtime,
		Rating:    "PG",
		Slug:      "dune-part-three",
	}
}

func TestPostgresStore_ShouldNotifyNewEvent(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	ev := qaEvent("7:00 PM", "9:30 PM")

	mock.ExpectQuery("SELECT showtimes FROM notifications").
		WithArgs("AMC_Lincoln_Square_13_2026-09-01_dune-part-three").
		WillReturnRows(pgxmock.NewRows([]string{"showtimes"}))

	decision := st.ShouldNotify(context.Background(), ev)
	require.True(t, decision.Notify)
	require.Nil(t, decision.Diff)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ShouldNotifyUnchangedShowtimes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		stored string
	}{
		{"same order", `["7:00 PM", "9:30 PM"]`},
		{"different order", `["9:30 PM", "7:00 PM"]`},
		{"duplicates in store", `["7:00 PM", "7:00 PM", "9:30 PM"]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			st, mock := newMockStore(t)
			ev := qaEvent("7:00 PM", "9:30 PM")

			mock.ExpectQuery("SELECT showtimes FROM notifications").
				WithArgs(ev.NotificationID()).
				WillReturnRows(pgxmock.NewRows([]string{"showtimes"}).AddRow(tc.stored))

			decision := st.ShouldNotify(context.Background(), ev)
			require.False(t, decision.Notify)
			require.Nil(t, decision.Diff)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_ShouldNotifyChangedShowtimes(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	ev := qaEvent("7:00 PM", "11:00 PM")

	mock.ExpectQuery("SELECT showtimes FROM notifications").
		WithArgs(ev.NotificationID()).
		WillReturnRows(pgxmock.NewRows([]string{"showtimes"}).AddRow(`["7:00 PM", "9:30 PM"]`))

	decision := st.ShouldNotify(context.Background(), ev)
	require.True(t, decision.Notify)
	require.NotNil(t, decision.Diff)
	require.Equal(t, []string{"11:00 PM"}, decision.Diff.Added)
	require.Equal(t, []string{"9:30 PM"}, decision.Diff.Removed)
	require.Equal(t, []string{"7:00 PM"}, decision.Diff.Unchanged)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ShouldNotifyFailsOpen(t *testing.T) {
	t.Parallel()

	t.Run("query error", func(t *testing.T) {
		t.Parallel()

		st, mock := newMockStore(t)
		ev := qaEvent("7:00 PM")

		mock.ExpectQuery("SELECT showtimes FROM notifications").
			WithArgs(ev.NotificationID()).
			WillReturnError(errors.New("connection reset"))

		decision := st.ShouldNotify(context.Background(), ev)
		require.True(t, decision.Notify)
		require.Nil(t, decision.Diff)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt stored showtimes", func(t *testing.T) {
		t.Parallel()

		st, mock := newMockStore(t)
		ev := qaEvent("7:00 PM")

		mock.ExpectQuery("SELECT showtimes FROM notifications").
			WithArgs(ev.NotificationID()).
			WillReturnRows(pgxmock.NewRows([]string{"showtimes"}).AddRow(`not json`))

		decision := st.ShouldNotify(context.Background(), ev)
		require.True(t, decision.Notify)
		require.Nil(t, decision.Diff)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_MarkNotifiedInsertsNewRecord(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	ev := qaEvent("7:00 PM", "9:30 PM")

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(
			"AMC_Lincoln_Square_13_2026-09-01_dune-part-three",
			"AMC Lincoln Square 13",
			"2026-09-01",
			"Dune Part Three",
			"dune-part-three",
			"Q&A",
			`["7:00 PM","9:30 PM"]`,
			ev.Runtime,
			"PG",
			fixedStoreNow,
			fixedStoreNow,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := st.MarkNotified(context.Background(), ev, false)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkNotifiedBumpsExistingRecord(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	ev := qaEvent("7:00 PM", "11:00 PM")

	mock.ExpectExec("UPDATE notifications").
		WithArgs(`["7:00 PM","11:00 PM"]`, fixedStoreNow, ev.NotificationID()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := st.MarkNotified(context.Background(), ev, true)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkNotifiedPropagatesWriteError(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	ev := qaEvent("7:00 PM")

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(
			ev.NotificationID(),
			"AMC Lincoln Square 13",
			"2026-09-01",
			"Dune Part Three",
			"dune-part-three",
			"Q&A",
			`["7:00 PM"]`,
			ev.Runtime,
			"PG",
			fixedStoreNow,
			fixedStoreNow,
		).
		WillReturnError(errors.New("disk full"))

	err := st.MarkNotified(context.Background(), ev, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CleanupDeletesOldRecords(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM notifications").
		WithArgs("2026-08-25").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	deleted := st.Cleanup(context.Background(), 7)
	require.Equal(t, 3, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CleanupErrorReportsZero(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM notifications").
		WithArgs("2026-08-25").
		WillReturnError(errors.New("deadlock detected"))

	deleted := st.Cleanup(context.Background(), 7)
	require.Equal(t, 0, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Statistics(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery("SELECT event_type, COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"event_type", "count"}).
			AddRow("Q&A", 3).
			AddRow("Early Access", 2))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("2026-09-01").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))

	stats, err := st.Statistics(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, stats.TotalRecords)
	require.Equal(t, map[string]int{"Q&A": 3, "Early Access": 2}, stats.ByEventType)
	require.Equal(t, 4, stats.UpcomingEvents)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_HistoryReturnsStoredRecord(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	ev := qaEvent("7:00 PM", "9:30 PM")
	runtime := 135

	mock.ExpectQuery("SELECT").
		WithArgs(ev.NotificationID()).
		WillReturnRows(pgxmock.NewRows([]string{
			"notification_id", "theater", "date", "movie_name", "movie_slug",
			"event_type", "showtimes", "runtime", "rating",
			"first_notified_at", "last_updated_at", "notification_count",
		}).AddRow(
			ev.NotificationID(), "AMC Lincoln Square 13", "2026-09-01",
			"Dune Part Three", "dune-part-three",
			"Q&A", `["7:00 PM","9:30 PM"]`, &runtime, "PG",
			fixedStoreNow, fixedStoreNow, 2,
		))

	rec, err := st.History(context.Background(), ev)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, ev.NotificationID(), rec.NotificationID)
	require.Equal(t, showtime.CategoryQA, rec.Category)
	require.Equal(t, []string{"7:00 PM", "9:30 PM"}, rec.Showtimes)
	require.NotNil(t, rec.Runtime)
	require.Equal(t, 135, *rec.Runtime)
	require.Equal(t, 2, rec.NotificationCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_HistoryUnknownEvent(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	ev := qaEvent("7:00 PM")

	mock.ExpectQuery("SELECT").
		WithArgs(ev.NotificationID()).
		WillReturnRows(pgxmock.NewRows([]string{
			"notification_id", "theater", "date", "movie_name", "movie_slug",
			"event_type", "showtimes", "runtime", "rating",
			"first_notified_at", "last_updated_at", "notification_count",
		}))

	rec, err := st.History(context.Background(), ev)
	require.NoError(t, err)
	require.Nil(t, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RejectsBadTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresStoreWithPool(mock, "notifications; DROP TABLE", nil)
	require.Error(t, err)
}
