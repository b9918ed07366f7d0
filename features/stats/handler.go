package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"klaro/internal/middleware"
)

type JobCounter interface {
	CountByState(ctx context.Context) (map[string]int, error)
}

type VideoCounter interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	jobs   JobCounter
	videos VideoCounter
}

func NewHandler(jobs JobCounter, videos VideoCounter) *Handler {
	return &Handler{jobs: jobs, videos: videos}
}

type StatsResponse struct {
	Jobs   map[string]int `json:"jobs"`
	Videos int            `json:"videos"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	jobCounts, err := h.jobs.CountByState(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}
	if jobCounts == nil {
		jobCounts = map[string]int{}
	}

	vCount, err := h.videos.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count videos", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count videos", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Jobs:   jobCounts,
		Videos: vCount,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
