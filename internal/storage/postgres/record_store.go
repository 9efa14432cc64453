package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/article-scraper/internal/id/uuid"
	"github.com/JakeFAU/article-scraper/internal/scraper"
)

// recordColumns is the projection scanned by scanRecord. Nullable columns are
// coalesced so rows scan into plain Go values.
var recordColumns = []string{
	"id",
	"url",
	"title",
	"snippet",
	"term",
	"status",
	"COALESCE(scraped_content, '')",
	"COALESCE(scraped_title, '')",
	"COALESCE(scraped_authors, '{}')",
	"scraped_publish_date",
	"COALESCE(relevance_score, 0)",
	"COALESCE(error_message, '')",
	"COALESCE(skip_reason, '')",
	"COALESCE(archive_uri, '')",
	"processed_at",
}

// RecordStore implements scraper.RecordStore on a Postgres table.
type RecordStore struct {
	pool  Pool
	table string
	ids   *uuid.Generator
}

// NewRecordStoreWithPool constructs a store from an existing pool.
func NewRecordStoreWithPool(pool Pool, table string) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableOrDefault(table, "candidates")
	if err != nil {
		return nil, err
	}
	return &RecordStore{pool: pool, table: table, ids: uuid.NewUUIDGenerator()}, nil
}

// Create inserts rec and returns its ID.
func (s *RecordStore) Create(ctx context.Context, rec scraper.CandidateRecord) (string, error) {
	if rec.ID == "" {
		id, err := s.ids.NewID()
		if err != nil {
			return "", err
		}
		rec.ID = id
	}
	if rec.Status == "" {
		rec.Status = scraper.StatusPending
	}
	query, args, err := psql.Insert(s.table).
		Columns("id", "url", "title", "snippet", "term", "status").
		Values(rec.ID, rec.URL, rec.Title, rec.Snippet, rec.Term, string(rec.Status)).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return "", fmt.Errorf("insert candidate: %w", err)
	}
	return rec.ID, nil
}

// ListByStatus returns every record whose status equals status.
func (s *RecordStore) ListByStatus(ctx context.Context, status scraper.Status) ([]scraper.CandidateRecord, error) {
	query, args, err := psql.Select(recordColumns...).
		From(s.table).
		Where(sq.Eq{"status": string(status)}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s candidates: %w", status, err)
	}
	defer rows.Close()

	var out []scraper.CandidateRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}

// Get fetches a record by ID.
func (s *RecordStore) Get(ctx context.Context, id string) (scraper.CandidateRecord, error) {
	query, args, err := psql.Select(recordColumns...).From(s.table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return scraper.CandidateRecord{}, fmt.Errorf("build select: %w", err)
	}
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return scraper.CandidateRecord{}, scraper.ErrNotFound
	}
	return rec, err
}

// Transition applies t in one UPDATE guarded by the entry-state predicate.
func (s *RecordStore) Transition(ctx context.Context, id string, t scraper.Transition) error {
	query, args, err := psql.Update(s.table).
		SetMap(transitionColumns(t)).
		Where(sq.Eq{"id": id, "status": statusStrings(scraper.EntryStatuses())}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update candidate %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = s.pool.QueryRow(ctx, fmt.Sprintf("SELECT status FROM %s WHERE id = $1", s.table), id).Scan(&current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return scraper.ErrNotFound
	case err != nil:
		return fmt.Errorf("check candidate %s: %w", id, err)
	default:
		return fmt.Errorf("%w: %s is %s", scraper.ErrStaleRecord, id, current)
	}
}

// Reset moves records in any of from back to reprocess.
func (s *RecordStore) Reset(ctx context.Context, from []scraper.Status) (int, error) {
	if len(from) == 0 {
		return 0, nil
	}
	query, args, err := psql.Update(s.table).
		Set("status", string(scraper.StatusReprocess)).
		Where(sq.Eq{"status": statusStrings(from)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build reset: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reset candidates: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Ping checks connectivity.
func (s *RecordStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", scraper.ErrStoreUnavailable, err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *RecordStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}

// transitionColumns mirrors scraper.Transition.Apply as a column map. Every
// content column is written so values from an earlier pass are cleared.
func transitionColumns(t scraper.Transition) map[string]any {
	cols := map[string]any{
		"status":               string(t.Status),
		"scraped_content":      nil,
		"scraped_title":        nil,
		"scraped_authors":      nil,
		"scraped_publish_date": nil,
		"archive_uri":          nil,
		"error_message":        nil,
		"skip_reason":          nil,
	}
	if t.RelevanceScore != nil {
		cols["relevance_score"] = *t.RelevanceScore
	}
	if t.ProcessedAt != nil {
		cols["processed_at"] = t.ProcessedAt.UTC()
	}
	switch t.Status {
	case scraper.StatusScraperOK:
		authors := t.ScrapedAuthors
		if authors == nil {
			authors = []string{}
		}
		cols["scraped_content"] = t.ScrapedContent
		cols["scraped_title"] = t.ScrapedTitle
		cols["scraped_authors"] = authors
		cols["scraped_publish_date"] = utcOrNil(t.ScrapedPublishDate)
		cols["archive_uri"] = nullString(t.ArchiveURI)
	case scraper.StatusScraperFailed:
		cols["error_message"] = t.ErrorMessage
	case scraper.StatusScraperSkipped:
		cols["skip_reason"] = t.SkipReason
	}
	return cols
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (scraper.CandidateRecord, error) {
	var (
		rec    scraper.CandidateRecord
		status string
	)
	err := row.Scan(
		&rec.ID,
		&rec.URL,
		&rec.Title,
		&rec.Snippet,
		&rec.Term,
		&status,
		&rec.ScrapedContent,
		&rec.ScrapedTitle,
		&rec.ScrapedAuthors,
		&rec.ScrapedPublishDate,
		&rec.RelevanceScore,
		&rec.ErrorMessage,
		&rec.SkipReason,
		&rec.ArchiveURI,
		&rec.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan candidate: %w", err)
	}
	rec.Status = scraper.Status(status)
	return rec, nil
}

func statusStrings(in []scraper.Status) []string {
	out := make([]string, len(in))
	for i, st := range in {
		out[i] = string(st)
	}
	return out
}

func utcOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
