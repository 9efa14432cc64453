// Package scraper defines the core types shared across the extraction worker.
package scraper

import "time"

// Status is the lifecycle state of a candidate record.
type Status string

// Candidate status values persisted in the record store.
const (
	StatusPending         Status = "pending"
	StatusReprocess       Status = "reprocess"
	StatusScraperSkipped  Status = "scraper_skipped"
	StatusRelevanceFailed Status = "relevance_failed"
	StatusScraperOK       Status = "scraper_ok"
	StatusScraperFailed   Status = "scraper_failed"
)

// EntryStatuses lists the statuses picked up by a pass.
func EntryStatuses() []Status {
	return []Status{StatusPending, StatusReprocess}
}

// TerminalStatuses lists the statuses a record can reach at the end of a pass.
func TerminalStatuses() []Status {
	return []Status{StatusScraperSkipped, StatusRelevanceFailed, StatusScraperOK, StatusScraperFailed}
}

// IsEntry reports whether s is eligible for pickup.
func (s Status) IsEntry() bool {
	return s == StatusPending || s == StatusReprocess
}

// IsTerminal reports whether s ends a pass.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusScraperSkipped, StatusRelevanceFailed, StatusScraperOK, StatusScraperFailed:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.IsEntry() || s.IsTerminal()
}

// CandidateRecord is one URL awaiting or having undergone extraction.
type CandidateRecord struct {
	ID                 string     `json:"id"`
	URL                string     `json:"url"`
	Title              string     `json:"title,omitempty"`
	Snippet            string     `json:"snippet,omitempty"`
	Term               string     `json:"term,omitempty"`
	Status             Status     `json:"status"`
	ScrapedContent     string     `json:"scraped_content,omitempty"`
	ScrapedTitle       string     `json:"scraped_title,omitempty"`
	ScrapedAuthors     []string   `json:"scraped_authors,omitempty"`
	ScrapedPublishDate *time.Time `json:"scraped_publish_date,omitempty"`
	RelevanceScore     float64    `json:"relevance_score"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	SkipReason         string     `json:"skip_reason,omitempty"`
	ArchiveURI         string     `json:"archive_uri,omitempty"`
	ProcessedAt        *time.Time `json:"processed_at,omitempty"`
}

// Transition is the full set of fields written when a record reaches a
// terminal state. Stores apply it as a single conditional update: it only
// lands while the record is still in an entry state.
type Transition struct {
	Status             Status
	RelevanceScore     *float64
	ScrapedContent     string
	ScrapedTitle       string
	ScrapedAuthors     []string
	ScrapedPublishDate *time.Time
	ErrorMessage       string
	SkipReason         string
	ArchiveURI         string
	ProcessedAt        *time.Time
}

// Apply copies the transition onto rec. Content fields, the error message
// and the skip reason are always rewritten, so a record that went through a
// reprocess pass never carries values from an earlier one. Stores must write
// the same field set.
func (t Transition) Apply(rec *CandidateRecord) {
	rec.Status = t.Status
	if t.RelevanceScore != nil {
		rec.RelevanceScore = *t.RelevanceScore
	}
	if t.ProcessedAt != nil {
		ts := *t.ProcessedAt
		rec.ProcessedAt = &ts
	}
	rec.ScrapedContent = ""
	rec.ScrapedTitle = ""
	rec.ScrapedAuthors = nil
	rec.ScrapedPublishDate = nil
	rec.ArchiveURI = ""
	rec.ErrorMessage = ""
	rec.SkipReason = ""
	switch t.Status {
	case StatusScraperOK:
		rec.ScrapedContent = t.ScrapedContent
		rec.ScrapedTitle = t.ScrapedTitle
		rec.ScrapedAuthors = append([]string(nil), t.ScrapedAuthors...)
		rec.ScrapedPublishDate = copyTime(t.ScrapedPublishDate)
		rec.ArchiveURI = t.ArchiveURI
	case StatusScraperFailed:
		rec.ErrorMessage = t.ErrorMessage
	case StatusScraperSkipped:
		rec.SkipReason = t.SkipReason
	}
}

// RunStatus is the lifecycle state of a run log.
type RunStatus string

// Run log statuses.
const (
	RunStarted   RunStatus = "started"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunLog records one invocation of the orchestrator.
type RunLog struct {
	ID            string         `json:"id"`
	Task          string         `json:"task"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Status        RunStatus      `json:"status"`
	URLsProcessed int            `json:"urls_processed"`
	Outcomes      map[Status]int `json:"outcomes,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	Message       string         `json:"message,omitempty"`
}

// RunResult is written once when a run finishes.
type RunResult struct {
	Status        RunStatus
	CompletedAt   time.Time
	URLsProcessed int
	Outcomes      map[Status]int
	ErrorMessage  string
	Message       string
}

// Article is what the extraction gateway returns for a URL.
type Article struct {
	URL         string
	Title       string
	Authors     []string
	PublishDate *time.Time
	BodyText    string
	RawHTML     []byte
}

// ScrapedEvent is published downstream after a successful extraction.
type ScrapedEvent struct {
	RecordID       string    `json:"record_id"`
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	RelevanceScore float64   `json:"relevance_score"`
	ArchiveURI     string    `json:"archive_uri,omitempty"`
	ProcessedAt    time.Time `json:"processed_at"`
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	ts := *t
	return &ts
}
