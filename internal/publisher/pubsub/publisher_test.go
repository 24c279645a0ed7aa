package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/niw-crawler/internal/crawler"
	publisher "github.com/JakeFAU/niw-crawler/internal/publisher/pubsub"
)

func TestPublisherNotify(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := pstest.NewServer()
	defer func() { _ = srv.Close() }()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	topic, err := client.CreateTopic(ctx, "niw-reports")
	require.NoError(t, err)

	pub := publisher.New(topic, nil)
	n := crawler.Notification{
		RunID:          "run-1",
		Center:         crawler.ServiceCenterSRC,
		Percentile:     87.5,
		HTMLContent:    "<p>hi</p>",
		AttachmentPath: "/tmp/SRC_distribution.svg",
		GeneratedAt:    time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
	}
	id, err := pub.Notify(ctx, n)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.NoError(t, pub.Close())

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "SRC", msgs[0].Attributes["service_center"])
	assert.Equal(t, "run-1", msgs[0].Attributes["run_id"])

	var got crawler.Notification
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, n, got)
}

func TestPublisherWithoutTopic(t *testing.T) {
	t.Parallel()

	_, err := publisher.New(nil, nil).Notify(context.Background(), crawler.Notification{})
	assert.Error(t, err)
}
