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

type runDoc struct {
	ID            string         `bson:"_id"`
	Task          string         `bson:"task"`
	StartedAt     time.Time      `bson:"started_at"`
	CompletedAt   *time.Time     `bson:"completed_at,omitempty"`
	Status        string         `bson:"status"`
	URLsProcessed int            `bson:"urls_processed"`
	Outcomes      map[string]int `bson:"outcomes,omitempty"`
	ErrorMessage  string         `bson:"error_message,omitempty"`
	Message       string         `bson:"message,omitempty"`
}

func (d runDoc) run() scraper.RunLog {
	run := scraper.RunLog{
		ID:            d.ID,
		Task:          d.Task,
		StartedAt:     d.StartedAt,
		CompletedAt:   d.CompletedAt,
		Status:        scraper.RunStatus(d.Status),
		URLsProcessed: d.URLsProcessed,
		ErrorMessage:  d.ErrorMessage,
		Message:       d.Message,
	}
	if len(d.Outcomes) > 0 {
		run.Outcomes = make(map[scraper.Status]int, len(d.Outcomes))
		for k, v := range d.Outcomes {
			run.Outcomes[scraper.Status(k)] = v
		}
	}
	return run
}

// RunStore implements scraper.RunLogStore on a Mongo collection.
type RunStore struct {
	coll *mongo.Collection
	ids  *uuid.Generator
}

// NewRunStore wraps coll.
func NewRunStore(coll *mongo.Collection) *RunStore {
	return &RunStore{coll: coll, ids: uuid.NewUUIDGenerator()}
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
	doc := runDoc{
		ID:            run.ID,
		Task:          run.Task,
		StartedAt:     run.StartedAt.UTC(),
		Status:        string(run.Status),
		URLsProcessed: run.URLsProcessed,
		Message:       run.Message,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return run.ID, nil
}

// FinishRun writes the final state of a run.
func (s *RunStore) FinishRun(ctx context.Context, id string, result scraper.RunResult) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, finishUpdate(result))
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return scraper.ErrNotFound
	}
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(ctx context.Context, id string) (scraper.RunLog, error) {
	var doc runDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return scraper.RunLog{}, scraper.ErrNotFound
	}
	if err != nil {
		return scraper.RunLog{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return doc.run(), nil
}

// ListRuns returns up to limit runs, newest first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]scraper.RunLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	var docs []runDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode runs: %w", err)
	}
	runs := make([]scraper.RunLog, 0, len(docs))
	for _, d := range docs {
		runs = append(runs, d.run())
	}
	return runs, nil
}

func finishUpdate(result scraper.RunResult) bson.M {
	outcomes := bson.M{}
	for k, v := range result.Outcomes {
		outcomes[string(k)] = v
	}
	set := bson.M{
		"completed_at":   result.CompletedAt.UTC(),
		"status":         string(result.Status),
		"urls_processed": result.URLsProcessed,
		"outcomes":       outcomes,
		"message":        result.Message,
	}
	if result.ErrorMessage != "" {
		set["error_message"] = result.ErrorMessage
	}
	return bson.M{"$set": set}
}
