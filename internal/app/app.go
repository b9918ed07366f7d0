package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"klaro/features/adapt"
	"klaro/features/stats"
	"klaro/features/video"
	"klaro/internal/config"
	"klaro/internal/middleware"
	"klaro/internal/pipeline"
	"klaro/internal/ratelimit"
	"klaro/internal/worker"
)

// Database is satisfied by *sql.DB; declared as an interface so tests can
// hand in a sqlmock connection.
type Database interface {
	Ping() error
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

// VectorStore is what the app needs from the Weaviate adapter.
type VectorStore interface {
	EnsureSchema(ctx context.Context) error
	Index(ctx context.Context, v video.Video, vector []float32) error
	Recommend(ctx context.Context, vector []float32, limit int) ([]video.Video, error)
	Count(ctx context.Context) (int, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Completer interface {
	Complete(ctx context.Context, prompt string, opts pipeline.GenOptions) (string, error)
}

type App struct {
	Handler      http.Handler
	AdaptService *adapt.Service
	Consumer     *worker.AdaptTaskConsumer

	adaptRepo *adapt.PostgresRepo
	retention time.Duration
	port      int
}

func New(
	cfg *config.Config,
	db Database,
	vecStore VectorStore,
	taskPub TaskPublisher,
	embedder Embedder,
	llm Completer,
) (*App, error) {

	// Cast db to *sql.DB for repositories that require it. This keeps the
	// signature mockable with sqlmock while the repos stay on database/sql.
	sqlDB := db.(*sql.DB)

	// Feature: Adapt
	adaptRepo := adapt.NewPostgresRepo(sqlDB)
	adaptService := adapt.NewService(adaptRepo, taskPub)
	adaptHandler := adapt.NewHandler(adaptService, cfg.StreamPollInterval(), cfg.StreamHeartbeat())

	// Rate limiting
	counter := ratelimit.NewPostgresCounter(sqlDB)
	limiter := ratelimit.NewLimiter(counter, cfg.RateLimitPerWindow, cfg.RateLimitWindow(), cfg.RateLimitFailOpen)

	// Feature: Video
	videoService := video.NewService(embedder, vecStore, 3)
	videoHandler := video.NewHandler(videoService)

	// Feature: Stats
	statsHandler := stats.NewHandler(adaptRepo, vecStore)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /adapt", middleware.CorrelationID(enableCORS(ratelimit.Middleware(limiter, adaptHandler.Submit))))
	mux.Handle("GET /adapt/{id}", middleware.CorrelationID(enableCORS(adaptHandler.Get)))
	mux.Handle("GET /adapt/{id}/stream", middleware.CorrelationID(enableCORS(adaptHandler.Stream)))
	mux.Handle("POST /readability", middleware.CorrelationID(enableCORS(adaptHandler.Readability)))

	mux.Handle("GET /limits", middleware.CorrelationID(enableCORS(ratelimit.CheckHandler(limiter))))

	mux.Handle("POST /videos", middleware.CorrelationID(enableCORS(videoHandler.Create)))
	mux.Handle("POST /videos/recommendations", middleware.CorrelationID(enableCORS(ratelimit.Middleware(limiter, videoHandler.Recommend))))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Worker (Adapt Task Consumer) Setup
	runner := pipeline.NewRunner(adaptRepo, llm, pipeline.Config{
		MaxChunkSize: cfg.MaxChunkSize,
		Concurrency:  cfg.AdaptConcurrency,
		MaxAttempts:  cfg.RetryMaxAttempts,
		CallTimeout:  cfg.LLMTimeout(),
		Gen: pipeline.GenOptions{
			Temperature: cfg.GeminiTemp,
			TopP:        cfg.GeminiTopP,
		},
	})
	consumer := worker.NewAdaptTaskConsumer(runner)

	return &App{
		Handler:      mux,
		AdaptService: adaptService,
		Consumer:     consumer,
		adaptRepo:    adaptRepo,
		retention:    cfg.JobRetention(),
		port:         cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go a.purgeLoop(ctx)

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// purgeLoop drops terminal jobs that outlived the retention window, so the
// task store does not grow without bound.
func (a *App) purgeLoop(ctx context.Context) {
	if a.retention <= 0 {
		return
	}

	ticker := time.NewTicker(a.retention / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.adaptRepo.PurgeExpired(ctx, a.retention)
			if err != nil {
				slog.Error("job purge failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("purged expired jobs", "count", n)
			}
		}
	}
}
