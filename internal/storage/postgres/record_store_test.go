package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-scraper/internal/scraper"
)

var candidateCols = []string{
	"id", "url", "title", "snippet", "term", "status",
	"scraped_content", "scraped_title", "scraped_authors", "scraped_publish_date",
	"relevance_score", "error_message", "skip_reason", "archive_uri", "processed_at",
}

func newMockRecordStore(t *testing.T) (*RecordStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewRecordStoreWithPool(mock, "candidates")
	require.NoError(t, err)
	return store, mock
}

func TestNewRecordStoreValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRecordStoreWithPool(mock, "candidates; DROP TABLE x")
	require.ErrorContains(t, err, "invalid table name")
	_, err = NewRecordStoreWithPool(nil, "candidates")
	require.Error(t, err)

	store, err := NewRecordStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, "candidates", store.table)
}

func TestCreateInsertsPendingRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockRecordStore(t)
	mock.ExpectExec("INSERT INTO candidates").
		WithArgs("rec-1", "https://a.test/x", "Title", "Snippet", "inflation", "pending").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := store.Create(context.Background(), scraper.CandidateRecord{
		ID: "rec-1", URL: "https://a.test/x", Title: "Title", Snippet: "Snippet", Term: "inflation",
	})
	require.NoError(t, err)
	require.Equal(t, "rec-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByStatusScansRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockRecordStore(t)
	processed := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows(candidateCols).
		AddRow("rec-1", "https://a.test/1", "T1", "S1", "", "pending", "", "", []string{}, nil, 0.0, "", "", "", nil).
		AddRow("rec-2", "https://a.test/2", "T2", "", "term", "pending", "", "", []string{}, nil, 0.0, "", "", "", &processed)
	mock.ExpectQuery("SELECT .* FROM candidates WHERE status = ").
		WithArgs("pending").
		WillReturnRows(rows)

	recs, err := store.ListByStatus(context.Background(), scraper.StatusPending)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "rec-1", recs[0].ID)
	require.Equal(t, scraper.StatusPending, recs[0].Status)
	require.Nil(t, recs[0].ProcessedAt)
	require.Equal(t, "term", recs[1].Term)
	require.Equal(t, processed, *recs[1].ProcessedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByStatusQueryError(t *testing.T) {
	t.Parallel()

	store, mock := newMockRecordStore(t)
	mock.ExpectQuery("SELECT .* FROM candidates").
		WithArgs("reprocess").
		WillReturnError(errors.New("connection refused"))

	_, err := store.ListByStatus(context.Background(), scraper.StatusReprocess)
	require.ErrorContains(t, err, "list reprocess candidates: connection refused")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionFailedWritesErrorFields(t *testing.T) {
	t.Parallel()

	store, mock := newMockRecordStore(t)
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	score := 0.62
	mock.ExpectExec(regexp.QuoteMeta("UPDATE candidates SET archive_uri = $1, error_message = $2, processed_at = $3, relevance_score = $4, scraped_authors = $5, scraped_content = $6, scraped_publish_date = $7, scraped_title = $8, skip_reason = $9, status = $10 WHERE id = $11 AND status IN")).
		WithArgs(nil, "timeout", now, 0.62, nil, nil, nil, nil, nil, "scraper_failed", "rec-1", "pending", "reprocess").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.Transition(context.Background(), "rec-1", scraper.Transition{
		Status:         scraper.StatusScraperFailed,
		RelevanceScore: &score,
		ErrorMessage:   "timeout",
		ProcessedAt:    &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionOKWritesContentFields(t *testing.T) {
	t.Parallel()

	store, mock := newMockRecordStore(t)
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	score := 0.8
	mock.ExpectExec(regexp.QuoteMeta("UPDATE candidates SET archive_uri = $1, error_message = $2, processed_at = $3, relevance_score = $4, scraped_authors = $5, scraped_content = $6, scraped_publish_date = $7, scraped_title = $8, skip_reason = $9, status = $10")).
		WithArgs("gs://b/o.html", nil, now, 0.8, []string{"Ann"}, "body", nil, "Title", nil, "scraper_ok", "rec-1", "pending", "reprocess").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.Transition(context.Background(), "rec-1", scraper.Transition{
		Status:         scraper.StatusScraperOK,
		RelevanceScore: &score,
		ScrapedContent: "body",
		ScrapedTitle:   "Title",
		ScrapedAuthors: []string{"Ann"},
		ArchiveURI:     "gs://b/o.html",
		ProcessedAt:    &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStaleAndMissing(t *testing.T) {
	t.Parallel()

	store, mock := newMockRecordStore(t)
	reason := "blocked domain youtube.com"
	skip := scraper.Transition{Status: scraper.StatusScraperSkipped, SkipReason: reason}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE candidates SET archive_uri = $1, error_message = $2, scraped_authors = $3, scraped_content = $4, scraped_publish_date = $5, scraped_title = $6, skip_reason = $7, status = $8 WHERE id = $9 AND status IN")).
		WithArgs(nil, nil, nil, nil, nil, nil, reason, "scraper_skipped", "rec-1", "pending", "reprocess").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM candidates").
		WithArgs("rec-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("scraper_ok"))
	err := store.Transition(context.Background(), "rec-1", skip)
	require.ErrorIs(t, err, scraper.ErrStaleRecord)
	require.ErrorContains(t, err, "rec-1 is scraper_ok")

	mock.ExpectExec("UPDATE candidates SET").
		WithArgs(nil, nil, nil, nil, nil, nil, reason, "scraper_skipped", "rec-2", "pending", "reprocess").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM candidates").
		WithArgs("rec-2").
		WillReturnRows(pgxmock.NewRows([]string{"status"}))
	err = store.Transition(context.Background(), "rec-2", skip)
	require.ErrorIs(t, err, scraper.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionClearsEarlierPass(t *testing.T) {
	t.Parallel()

	store, mock := newMockRecordStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE candidates SET archive_uri = $1, error_message = $2, scraped_authors = $3, scraped_content = $4, scraped_publish_date = $5, scraped_title = $6, skip_reason = $7, status = $8")).
		WithArgs(nil, nil, []string{}, "new body", nil, "", nil, "scraper_ok", "rec-1", "pending", "reprocess").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.Transition(context.Background(), "rec-1", scraper.Transition{
		Status:         scraper.StatusScraperOK,
		ScrapedContent: "new body",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockRecordStore(t)
	mock.ExpectQuery("SELECT .* FROM candidates WHERE id = ").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(candidateCols))

	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, scraper.ErrNotFound)
}

func TestResetMovesRowsToReprocess(t *testing.T) {
	t.Parallel()

	store, mock := newMockRecordStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE candidates SET status = $1 WHERE status IN")).
		WithArgs("reprocess", "scraper_failed", "relevance_failed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 4))

	n, err := store.Reset(context.Background(), []scraper.Status{scraper.StatusScraperFailed, scraper.StatusRelevanceFailed})
	require.NoError(t, err)
	require.Equal(t, 4, n)

	n, err = store.Reset(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPingWrapsUnavailable(t *testing.T) {
	t.Parallel()

	store, mock := newMockRecordStore(t)
	mock.ExpectPing().WillReturnError(errors.New("dial tcp: refused"))
	require.ErrorIs(t, store.Ping(context.Background()), scraper.ErrStoreUnavailable)

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS urls .* CREATE TABLE IF NOT EXISTS runs").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, EnsureSchema(context.Background(), mock, "urls", "runs"))
	require.NoError(t, mock.ExpectationsWereMet())

	require.Error(t, EnsureSchema(context.Background(), mock, "bad-name", "runs"))
}
