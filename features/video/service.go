package video

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VideoStore interface {
	Index(ctx context.Context, v Video, vector []float32) error
	Recommend(ctx context.Context, vector []float32, limit int) ([]Video, error)
}

type Service struct {
	embedder Embedder
	store    VideoStore
	limit    int
}

func NewService(embedder Embedder, store VideoStore, limit int) *Service {
	if limit <= 0 {
		limit = 3
	}
	return &Service{embedder: embedder, store: store, limit: limit}
}

// Index embeds the video's title and description and stores it for later
// similarity lookups.
func (s *Service) Index(ctx context.Context, v Video) (Video, error) {
	if strings.TrimSpace(v.Title) == "" || strings.TrimSpace(v.URL) == "" {
		return Video{}, ErrInvalidVideo
	}
	if v.ID == "" {
		v.ID = uuid.New().String()
	}

	vector, err := s.embedder.Embed(ctx, v.Title+"\n"+v.Description)
	if err != nil {
		return Video{}, fmt.Errorf("embed video: %w", err)
	}

	if err := s.store.Index(ctx, v, vector); err != nil {
		return Video{}, fmt.Errorf("index video: %w", err)
	}
	return v, nil
}

// Recommend returns the videos closest to the given content in embedding
// space.
func (s *Service) Recommend(ctx context.Context, content string) ([]Video, error) {
	if strings.TrimSpace(content) == "" {
		return []Video{}, nil
	}

	vector, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}

	videos, err := s.store.Recommend(ctx, vector, s.limit)
	if err != nil {
		return nil, fmt.Errorf("recommend videos: %w", err)
	}
	if videos == nil {
		videos = []Video{}
	}
	return videos, nil
}
