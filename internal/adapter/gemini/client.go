package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GenOptions carries per-call generation parameters for the completion model.
type GenOptions struct {
	Temperature float32
	TopP        float32
	MaxTokens   int32
}

// Client wraps the Gemini generative API as an opaque completion service:
// prompt in, generated text or error out.
type Client struct {
	client *genai.Client
	model  string
}

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &Client{client: cl, model: model}, nil
}

func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Complete sends prompt to the model and returns the concatenated text parts
// of the first candidate. Callers are expected to bound the call with a
// context timeout.
func (c *Client) Complete(ctx context.Context, prompt string, opts GenOptions) (string, error) {
	slog.DebugContext(ctx, "calling completion model", "model", c.model, "prompt_len", len(prompt))

	m := c.client.GenerativeModel(c.model)
	m.SetTemperature(opts.Temperature)
	if opts.TopP > 0 {
		m.SetTopP(opts.TopP)
	}
	if opts.MaxTokens > 0 {
		m.SetMaxOutputTokens(opts.MaxTokens)
	}

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini generate: empty response")
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}
