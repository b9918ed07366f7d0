package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"klaro/internal/middleware"
	"klaro/internal/pipeline"
)

type PipelineRunner interface {
	Run(ctx context.Context, req pipeline.Request) error
}

// AdaptTaskConsumer drains the adapt.task topic and runs the adaptation
// pipeline for each job.
type AdaptTaskConsumer struct {
	runner PipelineRunner
}

func NewAdaptTaskConsumer(r PipelineRunner) *AdaptTaskConsumer {
	return &AdaptTaskConsumer{runner: r}
}

func (h *AdaptTaskConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload AdaptTaskPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if payload.JobID == "" {
		slog.Error("poison pill: task without job id")
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	slog.InfoContext(ctx, "adapt task received", "job_id", payload.JobID)

	err := h.runner.Run(ctx, pipeline.Request{
		JobID:        payload.JobID,
		Content:      payload.Content,
		Profile:      payload.Profile,
		MaxChunkSize: payload.MaxChunkSize,
		WantSummary:  payload.WantSummary,
	})
	if err != nil {
		// The pipeline already marked the job failed and clients have seen
		// that terminal state. Requeueing would resurrect a finished job, so
		// swallow the error here.
		slog.ErrorContext(ctx, "adaptation pipeline failed", "job_id", payload.JobID, "error", err)
	}
	return nil
}
