package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/article-scraper/internal/id/uuid"
	"github.com/JakeFAU/article-scraper/internal/scraper"
)

var runColumns = []string{
	"id",
	"task",
	"started_at",
	"completed_at",
	"status",
	"urls_processed",
	"outcomes",
	"COALESCE(error_message, '')",
	"COALESCE(message, '')",
}

// RunStore implements scraper.RunLogStore on a Postgres table.
type RunStore struct {
	pool  Pool
	table string
	ids   *uuid.Generator
}

// NewRunStoreWithPool constructs a run store sharing an existing pool.
func NewRunStoreWithPool(pool Pool, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableOrDefault(table, "system_logs")
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: pool, table: table, ids: uuid.NewUUIDGenerator()}, nil
}

// CreateRun inserts a started run.
func (s *RunStore) CreateRun(ctx context.Context, run scraper.RunLog) (string, error) {
	if run.ID == "" {
		id, err := s.ids.NewID()
		if err != nil {
			return "", err
		}
		run.ID = id
	}
	outcomes, err := marshalOutcomes(run.Outcomes)
	if err != nil {
		return "", err
	}
	query, args, err := psql.Insert(s.table).
		Columns("id", "task", "started_at", "status", "urls_processed", "outcomes", "message").
		Values(run.ID, run.Task, run.StartedAt.UTC(), string(run.Status), run.URLsProcessed, outcomes, run.Message).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return run.ID, nil
}

// FinishRun writes the final state of a run.
func (s *RunStore) FinishRun(ctx context.Context, id string, result scraper.RunResult) error {
	outcomes, err := marshalOutcomes(result.Outcomes)
	if err != nil {
		return err
	}
	query, args, err := psql.Update(s.table).
		SetMap(map[string]any{
			"completed_at":   result.CompletedAt.UTC(),
			"status":         string(result.Status),
			"urls_processed": result.URLsProcessed,
			"outcomes":       outcomes,
			"error_message":  nullString(result.ErrorMessage),
			"message":        result.Message,
		}).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return scraper.ErrNotFound
	}
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(ctx context.Context, id string) (scraper.RunLog, error) {
	query, args, err := psql.Select(runColumns...).From(s.table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return scraper.RunLog{}, fmt.Errorf("build select: %w", err)
	}
	run, err := scanRun(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return scraper.RunLog{}, scraper.ErrNotFound
	}
	return run, err
}

// ListRuns returns up to limit runs, newest first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]scraper.RunLog, error) {
	builder := psql.Select(runColumns...).From(s.table).OrderBy("started_at DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []scraper.RunLog
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row rowScanner) (scraper.RunLog, error) {
	var (
		run      scraper.RunLog
		status   string
		outcomes []byte
	)
	err := row.Scan(
		&run.ID,
		&run.Task,
		&run.StartedAt,
		&run.CompletedAt,
		&status,
		&run.URLsProcessed,
		&outcomes,
		&run.ErrorMessage,
		&run.Message,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return run, err
		}
		return run, fmt.Errorf("scan run: %w", err)
	}
	run.Status = scraper.RunStatus(status)
	if len(outcomes) > 0 {
		if err := json.Unmarshal(outcomes, &run.Outcomes); err != nil {
			return run, fmt.Errorf("decode outcomes: %w", err)
		}
	}
	return run, nil
}

func marshalOutcomes(in map[scraper.Status]int) ([]byte, error) {
	if in == nil {
		in = map[scraper.Status]int{}
	}
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal outcomes: %w", err)
	}
	return data, nil
}
