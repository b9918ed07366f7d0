package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"

	"klaro/internal/adapter/gemini"
	"klaro/internal/app"
	"klaro/internal/config"
	"klaro/internal/logger"
)

func main() {
	// Structured logger with correlation ids pulled from context
	handler := logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()

	llm, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiGenModel)
	if err != nil {
		slog.Error("failed to create gemini client", "error", err)
		os.Exit(1)
	}
	embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.GeminiEmbedModel)
	if err != nil {
		slog.Error("failed to create gemini embedder", "error", err)
		os.Exit(1)
	}

	a, err := app.New(cfg, deps.DB, deps.VectorStore, deps.NSQProducer, embedder, app.NewGeminiCompleter(llm))
	if err != nil {
		slog.Error("failed to build app", "error", err)
		os.Exit(1)
	}

	if cfg.EnableWorker {
		consumer, err := nsq.NewConsumer(config.TopicAdaptTask, config.ChannelWorker, nsq.NewConfig())
		if err != nil {
			slog.Error("failed to create NSQ consumer", "error", err)
			os.Exit(1)
		}
		consumer.AddHandler(a.Consumer)

		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			slog.Error("failed to connect to NSQLookupd", "error", err)
			os.Exit(1)
		}
		defer consumer.Stop()
		slog.Info("adapt task consumer connected", "topic", config.TopicAdaptTask, "channel", config.ChannelWorker)
	}

	if !cfg.EnableAPI {
		slog.Info("api disabled, running worker only")
		<-ctx.Done()
		return
	}

	if err := a.Run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
