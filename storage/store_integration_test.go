//go:build integration

package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Integration(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	nc, err := nats.Connect(url)
	require.NoError(t, err)
	defer nc.Close()
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	store, err := Open(ctx, js)
	require.NoError(t, err)

	id := "it-" + time.Now().Format("150405.000000")
	require.NoError(t, store.Persist(ctx, testCourse(id, time.Now())))

	got, err := store.GetCourse(ctx, id)
	require.NoError(t, err)
	assert.Len(t, got.Lessons, 2)

	_, err = store.GetLesson(ctx, "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}
