package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JakeFAU/article-scraper/internal/id/uuid"
	"github.com/JakeFAU/article-scraper/internal/scraper"
)

type candidateDoc struct {
	ID                 string     `bson:"_id"`
	URL                string     `bson:"url"`
	Title              string     `bson:"title,omitempty"`
	Snippet            string     `bson:"snippet,omitempty"`
	Term               string     `bson:"term,omitempty"`
	Status             string     `bson:"status"`
	ScrapedContent     string     `bson:"scraped_content,omitempty"`
	ScrapedTitle       string     `bson:"scraped_title,omitempty"`
	ScrapedAuthors     []string   `bson:"scraped_authors,omitempty"`
	ScrapedPublishDate *time.Time `bson:"scraped_publish_date,omitempty"`
	RelevanceScore     float64    `bson:"relevance_score,omitempty"`
	ErrorMessage       string     `bson:"error_message,omitempty"`
	SkipReason         string     `bson:"skip_reason,omitempty"`
	ArchiveURI         string     `bson:"archive_uri,omitempty"`
	ProcessedAt        *time.Time `bson:"processed_at,omitempty"`
	CreatedAt          time.Time  `bson:"created_at"`
}

func (d candidateDoc) record() scraper.CandidateRecord {
	return scraper.CandidateRecord{
		ID:                 d.ID,
		URL:                d.URL,
		Title:              d.Title,
		Snippet:            d.Snippet,
		Term:               d.Term,
		Status:             scraper.Status(d.Status),
		ScrapedContent:     d.ScrapedContent,
		ScrapedTitle:       d.ScrapedTitle,
		ScrapedAuthors:     d.ScrapedAuthors,
		ScrapedPublishDate: d.ScrapedPublishDate,
		RelevanceScore:     d.RelevanceScore,
		ErrorMessage:       d.ErrorMessage,
		SkipReason:         d.SkipReason,
		ArchiveURI:         d.ArchiveURI,
		ProcessedAt:        d.ProcessedAt,
	}
}

// RecordStore implements scraper.RecordStore on a Mongo collection.
type RecordStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	ids    *uuid.Generator
	now    func() time.Time
}

// NewRecordStore wraps coll. client is used for Ping and Close and may be nil.
func NewRecordStore(client *mongo.Client, coll *mongo.Collection) *RecordStore {
	return &RecordStore{
		client: client,
		coll:   coll,
		ids:    uuid.NewUUIDGenerator(),
		now:    func() time.Time { return time.Now().UTC() },
	}
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
	doc := candidateDoc{
		ID:        rec.ID,
		URL:       rec.URL,
		Title:     rec.Title,
		Snippet:   rec.Snippet,
		Term:      rec.Term,
		Status:    string(rec.Status),
		CreatedAt: s.now(),
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert candidate: %w", err)
	}
	return rec.ID, nil
}

// ListByStatus returns every record whose status equals status, oldest first.
func (s *RecordStore) ListByStatus(ctx context.Context, status scraper.Status) ([]scraper.CandidateRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.coll.Find(ctx, bson.M{"status": string(status)}, opts)
	if err != nil {
		return nil, fmt.Errorf("list %s candidates: %w", status, err)
	}
	var docs []candidateDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}
	out := make([]scraper.CandidateRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.record())
	}
	return out, nil
}

// Get fetches a record by ID.
func (s *RecordStore) Get(ctx context.Context, id string) (scraper.CandidateRecord, error) {
	var doc candidateDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return scraper.CandidateRecord{}, scraper.ErrNotFound
	}
	if err != nil {
		return scraper.CandidateRecord{}, fmt.Errorf("get candidate %s: %w", id, err)
	}
	return doc.record(), nil
}

// Transition applies t with a single UpdateOne filtered on the entry states.
func (s *RecordStore) Transition(ctx context.Context, id string, t scraper.Transition) error {
	res, err := s.coll.UpdateOne(ctx, entryFilter(id), transitionUpdate(t))
	if err != nil {
		return fmt.Errorf("update candidate %s: %w", id, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("check candidate %s: %w", id, err)
	}
	if n == 0 {
		return scraper.ErrNotFound
	}
	return fmt.Errorf("%w: %s", scraper.ErrStaleRecord, id)
}

// Reset moves records in any of from back to reprocess.
func (s *RecordStore) Reset(ctx context.Context, from []scraper.Status) (int, error) {
	if len(from) == 0 {
		return 0, nil
	}
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"status": bson.M{"$in": statusStrings(from)}},
		bson.M{"$set": bson.M{"status": string(scraper.StatusReprocess)}},
	)
	if err != nil {
		return 0, fmt.Errorf("reset candidates: %w", err)
	}
	return int(res.ModifiedCount), nil
}

// Ping checks the deployment answers.
func (s *RecordStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: %v", scraper.ErrStoreUnavailable, err)
	}
	return nil
}

// Close disconnects the client.
func (s *RecordStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func entryFilter(id string) bson.M {
	return bson.M{
		"_id":    id,
		"status": bson.M{"$in": statusStrings(scraper.EntryStatuses())},
	}
}

// transitionUpdate mirrors scraper.Transition.Apply as a $set/$unset document.
// Fields the target status does not carry are unset so an earlier pass leaves
// nothing behind.
func transitionUpdate(t scraper.Transition) bson.M {
	set := bson.M{"status": string(t.Status)}
	unset := bson.M{}
	if t.RelevanceScore != nil {
		set["relevance_score"] = *t.RelevanceScore
	}
	if t.ProcessedAt != nil {
		set["processed_at"] = t.ProcessedAt.UTC()
	}
	setOrUnset := func(field string, value any, present bool) {
		if present {
			set[field] = value
			return
		}
		unset[field] = ""
	}

	ok := t.Status == scraper.StatusScraperOK
	authors := t.ScrapedAuthors
	if authors == nil {
		authors = []string{}
	}
	setOrUnset("scraped_content", t.ScrapedContent, ok)
	setOrUnset("scraped_title", t.ScrapedTitle, ok)
	setOrUnset("scraped_authors", authors, ok)
	var published any
	if t.ScrapedPublishDate != nil {
		published = t.ScrapedPublishDate.UTC()
	}
	setOrUnset("scraped_publish_date", published, ok && t.ScrapedPublishDate != nil)
	setOrUnset("archive_uri", t.ArchiveURI, ok && t.ArchiveURI != "")
	setOrUnset("error_message", t.ErrorMessage, t.Status == scraper.StatusScraperFailed)
	setOrUnset("skip_reason", t.SkipReason, t.Status == scraper.StatusScraperSkipped)

	return bson.M{"$set": set, "$unset": unset}
}

func statusStrings(in []scraper.Status) []string {
	out := make([]string, len(in))
	for i, st := range in {
		out[i] = string(st)
	}
	return out
}
