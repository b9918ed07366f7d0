package adapt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"klaro/internal/config"
	"klaro/internal/middleware"
	"klaro/internal/pipeline"
	"klaro/internal/worker"
)

var ErrEmptyContent = errors.New("content must not be empty")

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo Repository
	pub  EventPublisher
}

func NewService(repo Repository, pub EventPublisher) *Service {
	return &Service{repo: repo, pub: pub}
}

// SubmitRequest is the POST /adapt body. JobID is optional; omitting it gets
// a fresh UUID, supplying one lets clients resubmit under a known id.
type SubmitRequest struct {
	JobID        string           `json:"job_id,omitempty"`
	Content      string           `json:"content"`
	Profile      pipeline.Profile `json:"profile"`
	MaxChunkSize int              `json:"max_chunk_size,omitempty"`
	WantSummary  bool             `json:"want_summary,omitempty"`
}

// Submit validates the request and hands the job to the worker tier. It
// returns the job id immediately; all heavy work happens off the request
// path.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if strings.TrimSpace(req.Content) == "" {
		return "", ErrEmptyContent
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.New().String()
	}

	payload := worker.AdaptTaskPayload{
		JobID:         jobID,
		Content:       req.Content,
		Profile:       req.Profile.Normalize(),
		MaxChunkSize:  req.MaxChunkSize,
		WantSummary:   req.WantSummary,
		CorrelationID: middleware.GetCorrelationID(ctx),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal task payload: %w", err)
	}

	if err := s.pub.Publish(config.TopicAdaptTask, body); err != nil {
		return "", fmt.Errorf("publish task: %w", err)
	}

	return jobID, nil
}

func (s *Service) Snapshot(ctx context.Context, jobID string) (*Snapshot, error) {
	return s.repo.Snapshot(ctx, jobID)
}

func (s *Service) CountByState(ctx context.Context) (map[string]int, error) {
	return s.repo.CountByState(ctx)
}
