// Package orchestrator drives one scraping pass over the record store.
//
// A pass loads every record in an entry state (pending, reprocess), then
// moves each one to exactly one terminal state:
//
//	empty url           -> scraper_failed
//	blocked domain      -> scraper_skipped
//	score < threshold   -> relevance_failed
//	extraction error    -> scraper_failed
//	extraction success  -> scraper_ok
//
// Each terminal write is a single conditional store update, so a record that
// another pass already finished is left alone. Records are independent and
// processed with bounded fan-out.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/article-scraper/internal/metrics"
	"github.com/JakeFAU/article-scraper/internal/scraper"
)

var tracer = otel.Tracer("github.com/JakeFAU/article-scraper/internal/orchestrator")

const (
	defaultConcurrency = 4
	archiveContentType = "text/html; charset=utf-8"
	missingURLMessage  = "record has no url"
	finishTimeout      = 30 * time.Second
)

// DomainFilter decides whether a URL is skipped outright.
type DomainFilter interface {
	Match(rawURL string) (blocked bool, reason string)
}

// Scorer rates a record before extraction.
type Scorer interface {
	Score(rec scraper.CandidateRecord) float64
	Admit(score float64) bool
	AdjustForFreshness(score float64, published *time.Time, now time.Time) float64
}

// RunLogger records the start and end of each pass.
type RunLogger interface {
	Start(ctx context.Context) (string, error)
	Finish(
		ctx context.Context,
		id string,
		status scraper.RunStatus,
		processed int,
		outcomes map[scraper.Status]int,
		cause error,
	) error
}

// ArchivePather derives the blob path for a page body.
type ArchivePather interface {
	ArchivePath(prefix, recordID string, body []byte) string
}

// Config controls pass execution.
type Config struct {
	// Concurrency bounds how many records are processed at once.
	Concurrency int
}

// Summary describes a finished pass.
type Summary struct {
	RunID string `json:"run_id"`
	// URLsProcessed counts every record picked up, whatever its outcome.
	URLsProcessed int                    `json:"urls_processed"`
	Outcomes      map[scraper.Status]int `json:"outcomes"`
	// Stale counts records another writer moved out of an entry state first.
	Stale int `json:"stale"`
	// WriteFailures counts records left untouched because their update failed.
	WriteFailures int           `json:"write_failures"`
	Duration      time.Duration `json:"-"`
}

// MarshalJSON renders Duration as a readable string plus whole milliseconds.
func (s Summary) MarshalJSON() ([]byte, error) {
	type summary Summary
	return json.Marshal(struct {
		summary
		Duration   string `json:"duration"`
		DurationMS int64  `json:"duration_ms"`
	}{
		summary:    summary(s),
		Duration:   s.Duration.String(),
		DurationMS: s.Duration.Milliseconds(),
	})
}

// Ack is returned by Start before the pass runs.
type Ack struct {
	RunID         string `json:"run_id"`
	URLsProcessed int    `json:"urls_processed"`
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithArchive stores the raw HTML of each successful extraction under prefix.
func WithArchive(blobs scraper.BlobStore, pather ArchivePather, prefix string) Option {
	return func(o *Orchestrator) {
		o.blobs = blobs
		o.pather = pather
		o.archivePrefix = prefix
	}
}

// WithPublisher announces every committed scraper_ok record.
func WithPublisher(p scraper.Publisher) Option {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

// Orchestrator runs scraping passes.
type Orchestrator struct {
	records   scraper.RecordStore
	filter    DomainFilter
	scorer    Scorer
	extractor scraper.Extractor
	runs      RunLogger
	clock     scraper.Clock
	cfg       Config
	logger    *zap.Logger

	blobs         scraper.BlobStore
	pather        ArchivePather
	archivePrefix string
	publisher     scraper.Publisher

	inflight sync.WaitGroup
}

// New constructs an Orchestrator.
func New(
	records scraper.RecordStore,
	filter DomainFilter,
	scorer Scorer,
	extractor scraper.Extractor,
	runs RunLogger,
	clock scraper.Clock,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	o := &Orchestrator{
		records:   records,
		filter:    filter,
		scorer:    scorer,
		extractor: extractor,
		runs:      runs,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one pass and blocks until every record is processed.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	runID, batch, err := o.begin(ctx)
	if err != nil {
		return Summary{RunID: runID}, err
	}
	return o.execute(ctx, runID, batch), nil
}

// Start loads the batch synchronously and processes it in the background.
// The returned Ack carries the number of records picked up. Processing is
// detached from ctx: cancelling the caller does not stop the pass.
func (o *Orchestrator) Start(ctx context.Context) (Ack, error) {
	runID, batch, err := o.begin(ctx)
	if err != nil {
		return Ack{}, err
	}
	detached := context.WithoutCancel(ctx)
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		o.execute(detached, runID, batch)
	}()
	return Ack{RunID: runID, URLsProcessed: len(batch)}, nil
}

// Wait blocks until every background pass finishes or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for passes: %w", ctx.Err())
	}
}

// begin opens the run log and loads the batch. A load failure closes the run
// as failed and is reported as scraper.ErrStoreUnavailable.
func (o *Orchestrator) begin(ctx context.Context) (string, []scraper.CandidateRecord, error) {
	runID, err := o.runs.Start(ctx)
	if err != nil {
		o.logger.Warn("run log start failed, continuing", zap.Error(err))
	}

	batch, err := o.loadBatch(ctx)
	if err != nil {
		o.logger.Error("failed to load batch", zap.String("run_id", runID), zap.Error(err))
		if runID != "" {
			_ = o.runs.Finish(ctx, runID, scraper.RunFailed, 0, nil, err)
		}
		metrics.ObservePass(string(scraper.RunFailed), 0)
		if !errors.Is(err, scraper.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", scraper.ErrStoreUnavailable, err)
		}
		return runID, nil, err
	}
	o.logger.Info("pass accepted", zap.String("run_id", runID), zap.Int("records", len(batch)))
	return runID, batch, nil
}

// loadBatch unions the entry-state queries, dropping duplicate IDs.
func (o *Orchestrator) loadBatch(ctx context.Context) ([]scraper.CandidateRecord, error) {
	seen := make(map[string]struct{})
	var batch []scraper.CandidateRecord
	for _, status := range scraper.EntryStatuses() {
		recs, err := o.records.ListByStatus(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("list %s records: %w", status, err)
		}
		for _, rec := range recs {
			if _, dup := seen[rec.ID]; dup {
				continue
			}
			seen[rec.ID] = struct{}{}
			batch = append(batch, rec)
		}
	}
	return batch, nil
}

type recordResult struct {
	status    scraper.Status
	committed bool
	stale     bool
}

func (o *Orchestrator) execute(ctx context.Context, runID string, batch []scraper.CandidateRecord) Summary {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "orchestrator.pass")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.Int("run.records", len(batch)),
	)

	summary := Summary{
		RunID:         runID,
		URLsProcessed: len(batch),
		Outcomes:      make(map[scraper.Status]int),
	}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Concurrency)
	for _, rec := range batch {
		g.Go(func() error {
			res := o.safeProcess(ctx, runID, rec)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case res.committed:
				summary.Outcomes[res.status]++
			case res.stale:
				summary.Stale++
			default:
				summary.WriteFailures++
			}
			return nil
		})
	}
	_ = g.Wait()
	summary.Duration = time.Since(start)

	status := scraper.RunCompleted
	var cause error
	if summary.WriteFailures > 0 {
		status = scraper.RunFailed
		cause = fmt.Errorf("%d of %d record updates failed", summary.WriteFailures, len(batch))
		span.SetStatus(codes.Error, cause.Error())
	}
	if runID != "" {
		finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
		_ = o.runs.Finish(finishCtx, runID, status, len(batch), summary.Outcomes, cause)
		cancel()
	}
	metrics.ObservePass(string(status), summary.Duration)
	o.logger.Info("pass finished",
		zap.String("run_id", runID),
		zap.String("status", string(status)),
		zap.Int("urls_processed", summary.URLsProcessed),
		zap.Any("outcomes", summary.Outcomes),
		zap.Int("stale", summary.Stale),
		zap.Int("write_failures", summary.WriteFailures),
		zap.Duration("duration", summary.Duration),
	)
	return summary
}

// safeProcess isolates a record: a panic is logged and counted as a failed
// write, leaving the record in its entry state.
func (o *Orchestrator) safeProcess(ctx context.Context, runID string, rec scraper.CandidateRecord) (res recordResult) {
	metrics.IncInflight()
	defer metrics.DecInflight()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("record processing panicked",
				zap.String("run_id", runID),
				zap.String("record_id", rec.ID),
				zap.Any("panic", r),
			)
			res = recordResult{}
		}
	}()
	return o.processRecord(ctx, runID, rec)
}

func (o *Orchestrator) processRecord(ctx context.Context, runID string, rec scraper.CandidateRecord) recordResult {
	ctx, span := tracer.Start(ctx, "orchestrator.record")
	defer span.End()
	span.SetAttributes(
		attribute.String("record.id", rec.ID),
		attribute.String("record.url", rec.URL),
	)
	logger := o.logger.With(zap.String("run_id", runID), zap.String("record_id", rec.ID), zap.String("url", rec.URL))

	t, article := o.decide(ctx, logger, rec)
	res := o.commit(ctx, logger, rec.ID, t)
	span.SetAttributes(attribute.String("record.status", string(t.Status)))
	if res.committed && t.Status == scraper.StatusScraperOK {
		o.publish(ctx, logger, rec, t, article)
	}
	return res
}

// decide runs the admission chain and extraction, returning the terminal
// transition for rec.
func (o *Orchestrator) decide(
	ctx context.Context,
	logger *zap.Logger,
	rec scraper.CandidateRecord,
) (scraper.Transition, scraper.Article) {
	if strings.TrimSpace(rec.URL) == "" {
		now := o.clock.Now()
		return scraper.Transition{
			Status:       scraper.StatusScraperFailed,
			ErrorMessage: missingURLMessage,
			ProcessedAt:  &now,
		}, scraper.Article{}
	}

	if blocked, reason := o.filter.Match(rec.URL); blocked {
		logger.Debug("record skipped", zap.String("reason", reason))
		return scraper.Transition{
			Status:     scraper.StatusScraperSkipped,
			SkipReason: reason,
		}, scraper.Article{}
	}

	score := o.scorer.Score(rec)
	metrics.ObserveScore(score)
	if !o.scorer.Admit(score) {
		logger.Debug("record below relevance threshold", zap.Float64("score", score))
		return scraper.Transition{
			Status:         scraper.StatusRelevanceFailed,
			RelevanceScore: &score,
		}, scraper.Article{}
	}

	article, err := o.extractor.Extract(ctx, rec.URL)
	now := o.clock.Now()
	if err != nil {
		logger.Warn("extraction failed", zap.Error(err))
		return scraper.Transition{
			Status:         scraper.StatusScraperFailed,
			RelevanceScore: &score,
			ErrorMessage:   err.Error(),
			ProcessedAt:    &now,
		}, scraper.Article{}
	}

	score = o.scorer.AdjustForFreshness(score, article.PublishDate, now)
	return scraper.Transition{
		Status:             scraper.StatusScraperOK,
		RelevanceScore:     &score,
		ScrapedContent:     article.BodyText,
		ScrapedTitle:       article.Title,
		ScrapedAuthors:     article.Authors,
		ScrapedPublishDate: article.PublishDate,
		ArchiveURI:         o.archive(ctx, logger, rec.ID, article.RawHTML),
		ProcessedAt:        &now,
	}, article
}

func (o *Orchestrator) commit(ctx context.Context, logger *zap.Logger, id string, t scraper.Transition) recordResult {
	err := o.records.Transition(ctx, id, t)
	switch {
	case err == nil:
		metrics.ObserveRecord(string(t.Status))
		logger.Info("record updated", zap.String("status", string(t.Status)))
		return recordResult{status: t.Status, committed: true}
	case errors.Is(err, scraper.ErrStaleRecord), errors.Is(err, scraper.ErrNotFound):
		metrics.ObserveRecord("stale")
		logger.Info("record changed by another writer, leaving it", zap.Error(err))
		return recordResult{status: t.Status, stale: true}
	default:
		metrics.ObserveRecord("write_failed")
		logger.Error("failed to update record", zap.String("status", string(t.Status)), zap.Error(err))
		return recordResult{status: t.Status}
	}
}

// archive stores the raw page and returns its URI, or "" when archiving is
// disabled or fails.
func (o *Orchestrator) archive(ctx context.Context, logger *zap.Logger, recordID string, body []byte) string {
	if o.blobs == nil || o.pather == nil || len(body) == 0 {
		return ""
	}
	path := o.pather.ArchivePath(o.archivePrefix, recordID, body)
	uri, err := o.blobs.PutObject(ctx, path, archiveContentType, bytes.NewReader(body))
	if err != nil {
		metrics.ObserveSideEffectFailure("archive")
		logger.Warn("failed to archive raw html", zap.String("path", path), zap.Error(err))
		return ""
	}
	return uri
}

func (o *Orchestrator) publish(
	ctx context.Context,
	logger *zap.Logger,
	rec scraper.CandidateRecord,
	t scraper.Transition,
	article scraper.Article,
) {
	if o.publisher == nil {
		return
	}
	event := scraper.ScrapedEvent{
		RecordID:    rec.ID,
		URL:         rec.URL,
		Title:       article.Title,
		ArchiveURI:  t.ArchiveURI,
		ProcessedAt: *t.ProcessedAt,
	}
	if t.RelevanceScore != nil {
		event.RelevanceScore = *t.RelevanceScore
	}
	if _, err := o.publisher.Publish(ctx, event); err != nil {
		metrics.ObserveSideEffectFailure("publish")
		logger.Warn("failed to publish scrape event", zap.Error(err))
	}
}
