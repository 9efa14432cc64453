// Package memory provides in-memory stores for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/article-scraper/internal/id/uuid"
	"github.com/JakeFAU/article-scraper/internal/scraper"
)

// RecordStore keeps candidate records in a map guarded by a mutex.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]scraper.CandidateRecord
	order   []string
	ids     *uuid.Generator
	// failPing simulates an unreachable backend.
	failPing bool
}

// NewRecordStore constructs an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[string]scraper.CandidateRecord),
		ids:     uuid.NewUUIDGenerator(),
	}
}

// SetUnavailable toggles simulated store outages.
func (s *RecordStore) SetUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPing = down
}

// Create inserts rec, assigning an ID when empty. Status defaults to pending.
func (s *RecordStore) Create(_ context.Context, rec scraper.CandidateRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		id, err := s.ids.NewID()
		if err != nil {
			return "", err
		}
		rec.ID = id
	}
	if _, exists := s.records[rec.ID]; exists {
		return "", fmt.Errorf("record %s already exists", rec.ID)
	}
	if rec.Status == "" {
		rec.Status = scraper.StatusPending
	}
	s.records[rec.ID] = cloneRecord(rec)
	s.order = append(s.order, rec.ID)
	return rec.ID, nil
}

// ListByStatus returns copies of every record in status, in insertion order.
func (s *RecordStore) ListByStatus(_ context.Context, status scraper.Status) ([]scraper.CandidateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failPing {
		return nil, scraper.ErrStoreUnavailable
	}
	var out []scraper.CandidateRecord
	for _, id := range s.order {
		if rec := s.records[id]; rec.Status == status {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

// Transition applies t while the record is still in an entry state.
func (s *RecordStore) Transition(_ context.Context, id string, t scraper.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPing {
		return scraper.ErrStoreUnavailable
	}
	rec, ok := s.records[id]
	if !ok {
		return scraper.ErrNotFound
	}
	if !rec.Status.IsEntry() {
		return scraper.ErrStaleRecord
	}
	t.Apply(&rec)
	s.records[id] = rec
	return nil
}

// Get fetches a record by ID.
func (s *RecordStore) Get(_ context.Context, id string) (scraper.CandidateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return scraper.CandidateRecord{}, scraper.ErrNotFound
	}
	return cloneRecord(rec), nil
}

// Reset moves records in any of from back to reprocess.
func (s *RecordStore) Reset(_ context.Context, from []scraper.Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match := make(map[scraper.Status]struct{}, len(from))
	for _, st := range from {
		match[st] = struct{}{}
	}
	n := 0
	for id, rec := range s.records {
		if _, ok := match[rec.Status]; ok {
			rec.Status = scraper.StatusReprocess
			s.records[id] = rec
			n++
		}
	}
	return n, nil
}

// Ping reports simulated availability.
func (s *RecordStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failPing {
		return scraper.ErrStoreUnavailable
	}
	return nil
}

// Close is a no-op.
func (s *RecordStore) Close(context.Context) error {
	return nil
}

// Snapshot returns every record sorted by ID.
func (s *RecordStore) Snapshot() []scraper.CandidateRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scraper.CandidateRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneRecord(rec scraper.CandidateRecord) scraper.CandidateRecord {
	rec.ScrapedAuthors = append([]string(nil), rec.ScrapedAuthors...)
	if rec.ScrapedPublishDate != nil {
		ts := *rec.ScrapedPublishDate
		rec.ScrapedPublishDate = &ts
	}
	if rec.ProcessedAt != nil {
		ts := *rec.ProcessedAt
		rec.ProcessedAt = &ts
	}
	return rec
}
