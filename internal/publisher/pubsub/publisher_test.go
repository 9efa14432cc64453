package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/article-scraper/internal/scraper"
)

func newFakeClient(t *testing.T) *pubsub.Client {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPublisher_PublishDeliversEvent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := newFakeClient(t)

	topic, err := client.CreateTopic(ctx, "scraped")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "scraped-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	p, err := NewWithClient(ctx, client, "scraped")
	require.NoError(t, err)
	defer func() { require.NoError(t, p.Close()) }()

	event := scraper.ScrapedEvent{
		RecordID:       "rec-1",
		URL:            "https://trusted-news.test/a",
		Title:          "Headline",
		RelevanceScore: 0.8,
		ProcessedAt:    time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	id, err := p.Publish(ctx, event)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	recvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	got := make(chan *pubsub.Message, 1)
	go func() {
		_ = sub.Receive(recvCtx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			select {
			case got <- msg:
				cancel()
			default:
			}
		})
	}()

	select {
	case msg := <-got:
		require.Equal(t, "rec-1", msg.Attributes["record_id"])
		var decoded scraper.ScrapedEvent
		require.NoError(t, json.Unmarshal(msg.Data, &decoded))
		require.Equal(t, event.URL, decoded.URL)
		require.Equal(t, event.Title, decoded.Title)
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}
}

func TestPublisher_MissingTopic(t *testing.T) {
	t.Parallel()
	client := newFakeClient(t)

	_, err := NewWithClient(context.Background(), client, "absent")

	require.Error(t, err)
	require.Contains(t, err.Error(), "does not exist")
}

func TestPublisher_NilSafe(t *testing.T) {
	t.Parallel()

	var p *Publisher
	require.NoError(t, p.Close())
	_, err := p.Publish(context.Background(), scraper.ScrapedEvent{})
	require.Error(t, err)

	_, err = NewWithClient(context.Background(), nil, "scraped")
	require.Error(t, err)
}
