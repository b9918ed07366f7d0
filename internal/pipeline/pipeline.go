package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"klaro/internal/text"
)

// Job states. Transitions only move forward: a job is never resumed after
// Failed; the client resubmits under a new job id.
const (
	StateCreated    = "created"
	StateChunking   = "chunking"
	StateProcessing = "processing"
	StateCompleted  = "completed"
	StateFailed     = "failed"
)

var ErrEmptyContent = errors.New("content contained no text")

// GenOptions carries the generation parameters forwarded to the completion
// service on every chunk call.
type GenOptions struct {
	Temperature float32
	TopP        float32
	MaxTokens   int32
}

// Completer is the external completion service: prompt in, adapted text or
// error out. Treated as opaque, retryable and timeout-bound.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts GenOptions) (string, error)
}

// TaskStore persists per-job progress. All mutations for one job come from
// the single runner goroutine tree executing it; readers (the progress
// stream) poll concurrently.
type TaskStore interface {
	Create(ctx context.Context, jobID string, totalChunks int) error
	RecordChunk(ctx context.Context, jobID string, index int, content string) error
	SaveSummary(ctx context.Context, jobID, summary string) error
	MarkCompleted(ctx context.Context, jobID string) error
	MarkError(ctx context.Context, jobID, message string) error
}

// Request is one accepted adaptation job.
type Request struct {
	JobID        string
	Content      string
	Profile      Profile
	MaxChunkSize int
	WantSummary  bool
}

type Config struct {
	MaxChunkSize   int           // default per deployment, overridable per request
	Concurrency    int           // bounded fan-out of chunk calls within one job
	MaxAttempts    int           // completion attempts per chunk before the job fails
	RetryBaseDelay time.Duration // doubled on each retry
	CallTimeout    time.Duration // per completion call
	Gen            GenOptions
}

// Runner executes one job end to end: chunk, fan out completion calls,
// record incremental progress, then mark the terminal state. One Runner is
// shared across jobs; each Run call owns its job exclusively.
type Runner struct {
	store TaskStore
	llm   Completer
	cfg   Config
}

func NewRunner(store TaskStore, llm Completer, cfg Config) *Runner {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	return &Runner{store: store, llm: llm, cfg: cfg}
}

// Run drives the job state machine to a terminal state. The returned error
// mirrors what was recorded in the task store; callers that only care about
// delivery (e.g. a queue consumer) may ignore it, since a failed job must
// not be re-run.
func (r *Runner) Run(ctx context.Context, req Request) error {
	profile := req.Profile.Normalize()

	maxSize := req.MaxChunkSize
	if maxSize <= 0 {
		maxSize = r.cfg.MaxChunkSize
	}

	slog.InfoContext(ctx, "job accepted", "job_id", req.JobID, "state", StateChunking, "content_len", len(req.Content))

	chunks := text.Chunk(req.Content, maxSize)
	if len(chunks) == 0 {
		_ = r.store.Create(ctx, req.JobID, 0)
		_ = r.store.MarkError(ctx, req.JobID, ErrEmptyContent.Error())
		return ErrEmptyContent
	}

	if err := r.store.Create(ctx, req.JobID, len(chunks)); err != nil {
		return fmt.Errorf("create job record: %w", err)
	}

	slog.InfoContext(ctx, "job chunked", "job_id", req.JobID, "state", StateProcessing,
		"total_chunks", len(chunks), "grade_before", text.Score(req.Content))

	results := make([]string, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for i, chunk := range chunks {
		g.Go(func() error {
			adapted, err := r.adaptChunk(gctx, chunk, profile)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			results[i] = adapted
			// Progress is persisted as each chunk lands; completion order
			// across chunks is not guaranteed.
			if err := r.store.RecordChunk(gctx, req.JobID, i, adapted); err != nil {
				return fmt.Errorf("record chunk %d: %w", i, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "job failed", "job_id", req.JobID, "state", StateFailed, "error", err)
		if serr := r.store.MarkError(ctx, req.JobID, err.Error()); serr != nil {
			slog.ErrorContext(ctx, "failed to record job error", "job_id", req.JobID, "error", serr)
		}
		return err
	}

	if req.WantSummary {
		summary, err := r.summarize(ctx, chunks)
		if err != nil {
			// The adapted document is complete; a missing summary is not
			// worth failing the job over.
			slog.WarnContext(ctx, "summary generation failed", "job_id", req.JobID, "error", err)
		} else if err := r.store.SaveSummary(ctx, req.JobID, summary); err != nil {
			slog.WarnContext(ctx, "failed to save summary", "job_id", req.JobID, "error", err)
		}
	}

	if err := r.store.MarkCompleted(ctx, req.JobID); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	slog.InfoContext(ctx, "job completed", "job_id", req.JobID, "state", StateCompleted,
		"grade_after", text.Score(joinResults(results)))
	return nil
}

// adaptChunk calls the completion service with bounded retries. Each attempt
// carries its own timeout; delays double between attempts.
func (r *Runner) adaptChunk(ctx context.Context, chunk string, profile Profile) (string, error) {
	prompt := BuildAdaptPrompt(chunk, profile)

	var lastErr error
	delay := r.cfg.RetryBaseDelay
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		out, err := r.llm.Complete(callCtx, prompt, r.cfg.Gen)
		cancel()
		if err == nil {
			return out, nil
		}

		lastErr = err
		slog.WarnContext(ctx, "completion attempt failed", "attempt", attempt, "max_attempts", r.cfg.MaxAttempts, "error", err)

		if attempt < r.cfg.MaxAttempts {
			if err := sleep(ctx, delay); err != nil {
				return "", err
			}
			delay *= 2
		}
	}
	return "", lastErr
}

// summarize runs a map/reduce pass over the original chunks: every chunk is
// summarized under the same fan-out limit, then the partial summaries are
// reduced into one.
func (r *Runner) summarize(ctx context.Context, chunks []string) (string, error) {
	partials := make([]string, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, r.cfg.CallTimeout)
			defer cancel()
			out, err := r.llm.Complete(callCtx, BuildMapSummaryPrompt(chunk), r.cfg.Gen)
			if err != nil {
				return err
			}
			partials[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	if len(partials) == 1 {
		return partials[0], nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	return r.llm.Complete(callCtx, BuildReduceSummaryPrompt(partials), r.cfg.Gen)
}

func joinResults(results []string) string {
	out := ""
	for i, r := range results {
		if i > 0 {
			out += text.Separator
		}
		out += r
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
