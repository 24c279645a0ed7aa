package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.ErrorContains(t, err, "client")

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{})
	require.ErrorContains(t, err, "bucket")
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "niw", Prefix: "/backups/"})
	require.NoError(t, err)
	assert.Equal(t, "backups/data/i140_forms.csv", store.ObjectName("data/i140_forms.csv"))

	bare, err := New(client, Config{Bucket: "niw"})
	require.NoError(t, err)
	assert.Equal(t, "images/SRC.svg", bare.ObjectName("/images/SRC.svg"))

	_, err = store.PutObject(context.Background(), " ", "text/csv", nil)
	require.Error(t, err)
	require.NoError(t, store.Close())
}
