package adapt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"klaro/internal/middleware"
	"klaro/internal/text"
)

type Handler struct {
	service      *Service
	pollInterval time.Duration
	heartbeat    time.Duration
}

func NewHandler(s *Service, pollInterval, heartbeat time.Duration) *Handler {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &Handler{service: s, pollInterval: pollInterval, heartbeat: heartbeat}
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid JSON body", http.StatusBadRequest)
		return
	}

	jobID, err := h.service.Submit(ctx, req)
	if err != nil {
		if errors.Is(err, ErrEmptyContent) {
			h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		slog.ErrorContext(ctx, "failed to submit job", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	slog.InfoContext(ctx, "job submitted", "job_id", jobID, "correlationId", correlationID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]string{"job_id": jobID}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	snap, err := h.service.Snapshot(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(ctx, w, "NOT_FOUND", "Job not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to read job", "id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// Stream pushes newline-delimited snapshot events until the job reaches a
// terminal state. A snapshot is pushed when it differs from the last one or
// when the heartbeat interval elapses, whichever comes first; an unknown job
// yields {"status":"not_found"} events while we wait for the worker to create
// the row. The connection closes after the terminal snapshot has been pushed
// once.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	correlationID := middleware.GetCorrelationID(ctx)

	fl, ok := w.(http.Flusher)
	if !ok {
		h.writeError(ctx, w, "INTERNAL_ERROR", "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	slog.InfoContext(ctx, "stream opened", "job_id", id, "correlationId", correlationID)

	var last []byte
	var lastPush time.Time

	push := func(v any) error {
		buf, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if !bytes.Equal(buf, last) || time.Since(lastPush) >= h.heartbeat {
			if _, err := w.Write(append(buf, '\n')); err != nil {
				return err
			}
			fl.Flush()
			last = buf
			lastPush = time.Now()
		}
		return nil
	}

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		snap, err := h.service.Snapshot(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
			if err := push(map[string]string{"status": "not_found"}); err != nil {
				return
			}
		case err != nil:
			// Transient store trouble: log and keep the connection alive.
			slog.ErrorContext(ctx, "stream snapshot failed", "job_id", id, "error", err)
		default:
			if err := push(snap); err != nil {
				return
			}
			if snap.Terminal() {
				slog.InfoContext(ctx, "stream finished", "job_id", id, "completed", snap.Completed)
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Readability grades a piece of text without creating a job.
func (h *Handler) Readability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid JSON body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]float64{"grade": text.Score(req.Text)}); err != nil {
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
