package app

import (
	"context"

	"klaro/internal/adapter/gemini"
	"klaro/internal/pipeline"
)

// GeminiCompleter adapts the Gemini client to the pipeline's completion
// interface, keeping the pipeline free of SDK types.
type GeminiCompleter struct {
	client *gemini.Client
}

func NewGeminiCompleter(client *gemini.Client) *GeminiCompleter {
	return &GeminiCompleter{client: client}
}

func (g *GeminiCompleter) Complete(ctx context.Context, prompt string, opts pipeline.GenOptions) (string, error) {
	return g.client.Complete(ctx, prompt, gemini.GenOptions{
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxTokens,
	})
}
