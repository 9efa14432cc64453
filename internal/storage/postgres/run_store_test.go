package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-scraper/internal/scraper"
)

var runCols = []string{
	"id", "task", "started_at", "completed_at", "status", "urls_processed", "outcomes", "error_message", "message",
}

func newMockRunStore(t *testing.T) (*RunStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewRunStoreWithPool(mock, "")
	require.NoError(t, err)
	return store, mock
}

func TestCreateRunInsertsStartedRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockRunStore(t)
	started := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO system_logs").
		WithArgs("run-1", "scraper", started, "started", 0, []byte(`{}`), "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := store.CreateRun(context.Background(), scraper.RunLog{
		ID: "run-1", Task: "scraper", StartedAt: started, Status: scraper.RunStarted,
	})
	require.NoError(t, err)
	require.Equal(t, "run-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishRun(t *testing.T) {
	t.Parallel()

	store, mock := newMockRunStore(t)
	done := time.Date(2026, 2, 1, 10, 5, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE system_logs SET completed_at").
		WithArgs(done, nil, "3 processed", []byte(`{"scraper_ok":3}`), "completed", 3, "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE system_logs SET").
		WithArgs(done, nil, "", []byte(`{}`), "", 0, "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.FinishRun(context.Background(), "run-1", scraper.RunResult{
		Status:        scraper.RunCompleted,
		CompletedAt:   done,
		URLsProcessed: 3,
		Outcomes:      map[scraper.Status]int{scraper.StatusScraperOK: 3},
		Message:       "3 processed",
	})
	require.NoError(t, err)

	err = store.FinishRun(context.Background(), "missing", scraper.RunResult{CompletedAt: done})
	require.ErrorIs(t, err, scraper.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAndListRuns(t *testing.T) {
	t.Parallel()

	store, mock := newMockRunStore(t)
	started := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	done := started.Add(time.Minute)

	mock.ExpectQuery("SELECT .* FROM system_logs WHERE id = ").
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runCols).
			AddRow("run-1", "scraper", started, &done, "completed", 5, []byte(`{"scraper_ok":2,"scraper_skipped":3}`), "", "ok"))
	run, err := store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, scraper.RunCompleted, run.Status)
	require.Equal(t, 5, run.URLsProcessed)
	require.Equal(t, 3, run.Outcomes[scraper.StatusScraperSkipped])
	require.Equal(t, done, *run.CompletedAt)

	mock.ExpectQuery("SELECT .* FROM system_logs ORDER BY started_at DESC LIMIT 2").
		WillReturnRows(pgxmock.NewRows(runCols).
			AddRow("run-2", "scraper", started.Add(time.Hour), nil, "started", 0, []byte(`{}`), "", "").
			AddRow("run-1", "scraper", started, &done, "completed", 5, []byte(`{}`), "", ""))
	runs, err := store.ListRuns(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run-2", runs[0].ID)
	require.Nil(t, runs[0].CompletedAt)

	mock.ExpectQuery("SELECT .* FROM system_logs WHERE id = ").
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows(runCols))
	_, err = store.GetRun(context.Background(), "nope")
	require.ErrorIs(t, err, scraper.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
