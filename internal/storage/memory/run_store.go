package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/article-scraper/internal/id/uuid"
	"github.com/JakeFAU/article-scraper/internal/scraper"
)

// RunStore keeps run logs in memory, newest last.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]scraper.RunLog
	seq  []string
	ids  *uuid.Generator
}

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]scraper.RunLog),
		ids:  uuid.NewUUIDGenerator(),
	}
}

// CreateRun stores run and returns its ID.
func (s *RunStore) CreateRun(_ context.Context, run scraper.RunLog) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == "" {
		id, err := s.ids.NewID()
		if err != nil {
			return "", err
		}
		run.ID = id
	}
	if _, exists := s.runs[run.ID]; exists {
		return "", fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = cloneRun(run)
	s.seq = append(s.seq, run.ID)
	return run.ID, nil
}

// FinishRun records the final state of a run.
func (s *RunStore) FinishRun(_ context.Context, id string, result scraper.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return scraper.ErrNotFound
	}
	completed := result.CompletedAt
	run.CompletedAt = &completed
	run.Status = result.Status
	run.URLsProcessed = result.URLsProcessed
	run.Outcomes = copyOutcomes(result.Outcomes)
	run.ErrorMessage = result.ErrorMessage
	run.Message = result.Message
	s.runs[id] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, id string) (scraper.RunLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return scraper.RunLog{}, scraper.ErrNotFound
	}
	return cloneRun(run), nil
}

// ListRuns returns up to limit runs, newest first.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]scraper.RunLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scraper.RunLog, 0, len(s.seq))
	for i := len(s.seq) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, cloneRun(s.runs[s.seq[i]]))
	}
	return out, nil
}

func cloneRun(run scraper.RunLog) scraper.RunLog {
	if run.CompletedAt != nil {
		ts := *run.CompletedAt
		run.CompletedAt = &ts
	}
	run.Outcomes = copyOutcomes(run.Outcomes)
	return run
}

func copyOutcomes(in map[scraper.Status]int) map[scraper.Status]int {
	if in == nil {
		return nil
	}
	out := make(map[scraper.Status]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
