// Package runlog records one RunLog entry per orchestrator pass. Failures to
// write the log are logged and returned but never influence how candidate
// records are processed.
package runlog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-scraper/internal/id/uuid"
	"github.com/JakeFAU/article-scraper/internal/metrics"
	"github.com/JakeFAU/article-scraper/internal/scraper"
)

// Task is the task name stamped on every run written by the scraper.
const Task = "scraper"

// IDGenerator mints run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Logger writes run logs through a scraper.RunLogStore.
type Logger struct {
	store  scraper.RunLogStore
	clock  scraper.Clock
	ids    IDGenerator
	logger *zap.Logger
}

// New builds a Logger. A nil ids falls back to UUIDv7.
func New(store scraper.RunLogStore, clock scraper.Clock, ids IDGenerator, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ids == nil {
		ids = uuid.NewUUIDGenerator()
	}
	return &Logger{store: store, clock: clock, ids: ids, logger: logger.Named("runlog")}
}

// Start creates a run in the started state and returns its ID. The ID is
// returned even when the write fails so callers can still correlate logs.
func (l *Logger) Start(ctx context.Context) (string, error) {
	id, err := l.ids.NewID()
	if err != nil {
		l.logger.Error("failed to generate run id", zap.Error(err))
		return "", fmt.Errorf("generate run id: %w", err)
	}
	run := scraper.RunLog{
		ID:        id,
		Task:      Task,
		StartedAt: l.clock.Now(),
		Status:    scraper.RunStarted,
		Message:   "scraping pass started",
	}
	if _, err := l.store.CreateRun(ctx, run); err != nil {
		metrics.ObserveSideEffectFailure("run_log")
		l.logger.Error("failed to record run start", zap.String("run_id", id), zap.Error(err))
		return id, fmt.Errorf("create run %s: %w", id, err)
	}
	l.logger.Debug("run started", zap.String("run_id", id))
	return id, nil
}

// Finish closes run id with status and the number of records processed.
// cause, when non-nil, is stored as the run's error message.
func (l *Logger) Finish(
	ctx context.Context,
	id string,
	status scraper.RunStatus,
	processed int,
	outcomes map[scraper.Status]int,
	cause error,
) error {
	if id == "" {
		return fmt.Errorf("finish run: empty id")
	}
	result := scraper.RunResult{
		Status:        status,
		CompletedAt:   l.clock.Now(),
		URLsProcessed: processed,
		Outcomes:      outcomes,
		Message:       Summarize(processed, outcomes),
	}
	if cause != nil {
		result.ErrorMessage = cause.Error()
	}
	if err := l.store.FinishRun(ctx, id, result); err != nil {
		metrics.ObserveSideEffectFailure("run_log")
		l.logger.Error("failed to record run finish",
			zap.String("run_id", id),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	return nil
}

// Summarize renders a short human description of a pass, listing outcome
// counts in a stable order.
func Summarize(processed int, outcomes map[scraper.Status]int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "processed %d records", processed)
	if len(outcomes) == 0 {
		return b.String()
	}
	keys := make([]string, 0, len(outcomes))
	for status, n := range outcomes {
		if n > 0 {
			keys = append(keys, string(status))
		}
	}
	sort.Strings(keys)
	for i, k := range keys {
		sep := ", "
		if i == 0 {
			sep = ": "
		}
		fmt.Fprintf(&b, "%s%s=%d", sep, k, outcomes[scraper.Status(k)])
	}
	return b.String()
}
