package adapt_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klaro/features/adapt"
	"klaro/internal/config"
	"klaro/internal/middleware"
	"klaro/internal/pipeline"
	"klaro/internal/worker"
)

type mockPublisher struct {
	lastTopic string
	lastBody  []byte
	err       error
}

func (m *mockPublisher) Publish(topic string, body []byte) error {
	m.lastTopic = topic
	m.lastBody = body
	return m.err
}

func TestService_Submit(t *testing.T) {
	t.Run("Publishes Task And Returns Job ID", func(t *testing.T) {
		pub := &mockPublisher{}
		svc := adapt.NewService(nil, pub)

		ctx := middleware.WithCorrelationID(context.Background(), "corr-123")
		jobID, err := svc.Submit(ctx, adapt.SubmitRequest{
			Content:     "Some content to adapt.",
			Profile:     pipeline.Profile{Attention: 2, Memory: 3},
			WantSummary: true,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, jobID)
		assert.Equal(t, config.TopicAdaptTask, pub.lastTopic)

		var payload worker.AdaptTaskPayload
		require.NoError(t, json.Unmarshal(pub.lastBody, &payload))
		assert.Equal(t, jobID, payload.JobID)
		assert.Equal(t, "Some content to adapt.", payload.Content)
		assert.Equal(t, "corr-123", payload.CorrelationID)
		assert.True(t, payload.WantSummary)
		assert.Equal(t, 2, payload.Profile.Attention)
		// Unset domains normalize to "typical" before the task is published.
		assert.Equal(t, 5, payload.Profile.Language)
	})

	t.Run("Keeps Caller Supplied Job ID", func(t *testing.T) {
		pub := &mockPublisher{}
		svc := adapt.NewService(nil, pub)

		jobID, err := svc.Submit(context.Background(), adapt.SubmitRequest{
			JobID:   "caller-id",
			Content: "text",
		})
		require.NoError(t, err)
		assert.Equal(t, "caller-id", jobID)
	})

	t.Run("Rejects Empty Content", func(t *testing.T) {
		pub := &mockPublisher{}
		svc := adapt.NewService(nil, pub)

		_, err := svc.Submit(context.Background(), adapt.SubmitRequest{Content: "   \n\t "})
		assert.ErrorIs(t, err, adapt.ErrEmptyContent)
		assert.Empty(t, pub.lastTopic, "nothing should be published for invalid input")
	})

	t.Run("Propagates Publish Failure", func(t *testing.T) {
		pub := &mockPublisher{err: errors.New("nsq down")}
		svc := adapt.NewService(nil, pub)

		_, err := svc.Submit(context.Background(), adapt.SubmitRequest{Content: "text"})
		assert.ErrorContains(t, err, "nsq down")
	})
}
