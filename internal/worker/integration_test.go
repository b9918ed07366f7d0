package worker_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klaro/features/adapt"
	"klaro/internal/config"
	"klaro/internal/pipeline"
	"klaro/internal/testutils"
	"klaro/internal/worker"
)

// echoCompleter stands in for the LLM so the test never leaves the host.
type echoCompleter struct{}

func (echoCompleter) Complete(ctx context.Context, prompt string, opts pipeline.GenOptions) (string, error) {
	return "adapted", nil
}

// The full worker path: a task published to NSQ is consumed, run through the
// pipeline, and lands as a completed job in Postgres.
func TestWorker_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	repo := adapt.NewPostgresRepo(s.DB)
	runner := pipeline.NewRunner(repo, echoCompleter{}, pipeline.Config{MaxChunkSize: 20})
	consumer := worker.NewAdaptTaskConsumer(runner)

	nsqConsumer, err := nsq.NewConsumer(config.TopicAdaptTask, config.ChannelWorker, nsq.NewConfig())
	require.NoError(t, err)
	nsqConsumer.AddHandler(consumer)

	appCfg := s.GetAppConfig()
	require.NoError(t, nsqConsumer.ConnectToNSQD(appCfg.NSQDHost))
	defer nsqConsumer.Stop()

	body, _ := json.Marshal(worker.AdaptTaskPayload{
		JobID:   "job-int-1",
		Content: "First paragraph here.\n\nSecond paragraph here.",
		Profile: pipeline.Profile{Attention: 2, Memory: 5, Visuospatial: 5, Language: 5, Reasoning: 5},
	})
	require.NoError(t, s.NSQ.Publish(config.TopicAdaptTask, body))

	ctx := context.Background()
	deadline := time.Now().Add(30 * time.Second)
	for {
		snap, err := repo.Snapshot(ctx, "job-int-1")
		if err == nil && snap.Terminal() {
			assert.True(t, snap.Completed, fmt.Sprintf("job failed: %s", snap.Error))
			assert.Equal(t, 2, snap.TotalChunks)
			assert.Equal(t, 2, snap.ProcessedChunks)
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for job to complete")
		}
		time.Sleep(200 * time.Millisecond)
	}
}
