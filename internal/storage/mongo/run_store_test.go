package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/JakeFAU/article-scraper/internal/scraper"
)

func TestFinishUpdate(t *testing.T) {
	t.Parallel()

	done := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	update := finishUpdate(scraper.RunResult{
		Status:        scraper.RunCompleted,
		CompletedAt:   done,
		URLsProcessed: 5,
		Outcomes:      map[scraper.Status]int{scraper.StatusScraperOK: 5},
	})
	set := update["$set"].(bson.M)
	require.Equal(t, "completed", set["status"])
	require.Equal(t, 5, set["urls_processed"])
	require.Equal(t, bson.M{"scraper_ok": 5}, set["outcomes"])
	require.NotContains(t, set, "error_message")
}

func TestRunStoreWithMockDeployment(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("create and finish", func(mt *mtest.T) {
		store := NewRunStore(mt.Coll)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
		)
		id, err := store.CreateRun(context.Background(), scraper.RunLog{Task: "scraper", Status: scraper.RunStarted, StartedAt: time.Now()})
		require.NoError(mt, err)
		require.NotEmpty(mt, id)

		err = store.FinishRun(context.Background(), id, scraper.RunResult{Status: scraper.RunCompleted, CompletedAt: time.Now()})
		require.NoError(mt, err)
	})

	mt.Run("finish missing run", func(mt *mtest.T) {
		store := NewRunStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))
		err := store.FinishRun(context.Background(), "nope", scraper.RunResult{CompletedAt: time.Now()})
		require.ErrorIs(mt, err, scraper.ErrNotFound)
	})

	mt.Run("get", func(mt *mtest.T) {
		store := NewRunStore(mt.Coll)
		started := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "run-1"},
			{Key: "task", Value: "scraper"},
			{Key: "started_at", Value: started},
			{Key: "status", Value: "completed"},
			{Key: "urls_processed", Value: 5},
			{Key: "outcomes", Value: bson.D{{Key: "scraper_ok", Value: 5}}},
		}))
		run, err := store.GetRun(context.Background(), "run-1")
		require.NoError(mt, err)
		require.Equal(mt, scraper.RunCompleted, run.Status)
		require.Equal(mt, 5, run.URLsProcessed)
		require.Equal(mt, 5, run.Outcomes[scraper.StatusScraperOK])
		require.True(mt, started.Equal(run.StartedAt))
	})

	mt.Run("list", func(mt *mtest.T) {
		store := NewRunStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "run-2"}, {Key: "task", Value: "scraper"}, {Key: "status", Value: "started"}},
			bson.D{{Key: "_id", Value: "run-1"}, {Key: "task", Value: "scraper"}, {Key: "status", Value: "completed"}},
		))
		runs, err := store.ListRuns(context.Background(), 10)
		require.NoError(mt, err)
		require.Len(mt, runs, 2)
		require.Equal(mt, "run-2", runs[0].ID)
	})
}
