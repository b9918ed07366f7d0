package adapt_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"klaro/features/adapt"
	"klaro/internal/ratelimit"
	"klaro/internal/testutils"
)

func TestAdaptRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	repo := adapt.NewPostgresRepo(s.DB)
	ctx := context.Background()

	// Full lifecycle: create, record chunks out of order, complete.
	require.NoError(t, repo.Create(ctx, "job-1", 3))

	require.NoError(t, repo.RecordChunk(ctx, "job-1", 2, "third"))
	require.NoError(t, repo.RecordChunk(ctx, "job-1", 0, "first"))
	// Redelivery of an already recorded chunk must not inflate the count.
	require.NoError(t, repo.RecordChunk(ctx, "job-1", 0, "first"))

	snap, err := repo.Snapshot(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.TotalChunks)
	assert.Equal(t, 2, snap.ProcessedChunks)
	assert.False(t, snap.Terminal())

	require.NoError(t, repo.RecordChunk(ctx, "job-1", 1, "second"))
	require.NoError(t, repo.SaveSummary(ctx, "job-1", "summary"))
	require.NoError(t, repo.MarkCompleted(ctx, "job-1"))

	snap, err = repo.Snapshot(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, snap.Completed)
	assert.Equal(t, 3, snap.ProcessedChunks)
	assert.Equal(t, "summary", snap.Summary)
	assert.Equal(t, map[string]string{"0": "first", "1": "second", "2": "third"}, snap.SimplifiedChunks)

	// Failure path keeps partial results readable.
	require.NoError(t, repo.Create(ctx, "job-2", 2))
	require.NoError(t, repo.RecordChunk(ctx, "job-2", 0, "kept"))
	require.NoError(t, repo.MarkError(ctx, "job-2", "chunk 1: upstream unavailable"))

	snap, err = repo.Snapshot(ctx, "job-2")
	require.NoError(t, err)
	assert.False(t, snap.Completed)
	assert.Equal(t, "chunk 1: upstream unavailable", snap.Error)
	assert.True(t, snap.Terminal())
	assert.Equal(t, "kept", snap.SimplifiedChunks["0"])

	// Unknown job is a distinguished not-found.
	_, err = repo.Snapshot(ctx, "missing")
	assert.ErrorIs(t, err, adapt.ErrNotFound)

	// Terminal jobs purge; chunk rows cascade with them.
	counts, err := repo.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[adapt.StateCompleted])
	assert.Equal(t, 1, counts[adapt.StateFailed])

	n, err := repo.PurgeExpired(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = repo.Snapshot(ctx, "job-1")
	assert.ErrorIs(t, err, adapt.ErrNotFound)

	// Concurrent chunk writers against one job must all land.
	require.NoError(t, repo.Create(ctx, "job-3", 10))
	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func(idx int) {
			done <- repo.RecordChunk(ctx, "job-3", idx, "chunk")
		}(i)
	}
	deadline := time.After(10 * time.Second)
	for i := 0; i < 10; i++ {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-deadline:
			t.Fatal("timed out waiting for concurrent writers")
		}
	}
	snap, err = repo.Snapshot(ctx, "job-3")
	require.NoError(t, err)
	assert.Equal(t, 10, snap.ProcessedChunks)
}

func TestRateLimitCounter_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	// Exercised here rather than in its own suite to reuse the container.
	counter := ratelimit.NewPostgresCounter(s.DB)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		n, _, err := counter.Incr(ctx, "visitor-a", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	n, resetAt, err := counter.Peek(ctx, "visitor-a")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.WithinDuration(t, time.Now().Add(time.Hour), resetAt, time.Minute)

	// A fresh identity starts from its own window.
	n, _, err = counter.Incr(ctx, "visitor-b", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
