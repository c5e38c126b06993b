// Package llm wraps the Anthropic Messages API behind a small streaming
// client used by LLM-backed skill invokers and goal decomposition.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/rolewise/rolewise/pkg/config"
)

// StreamChunk is one piece of a streaming generation.
type StreamChunk struct {
	Content      string
	IsFinal      bool
	InputTokens  int64
	OutputTokens int64
	Error        string
}

// GenerateInput is one generation request.
type GenerateInput struct {
	System string
	Prompt string
}

// Client generates text from a prompt. Implementations stream; callers
// that want the whole response use Collect.
type Client interface {
	GenerateStream(ctx context.Context, input GenerateInput) (<-chan StreamChunk, <-chan error)
	Close() error
}

// AnthropicClient is the production Client over the Anthropic SDK.
type AnthropicClient struct {
	messages    sdk.MessageService
	model       string
	maxTokens   int64
	temperature float64
	logger      *slog.Logger
}

// NewClient creates a client from configuration. The API key is read
// from the environment variable the config names.
func NewClient(cfg *config.LLMConfig) (*AnthropicClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm configuration is not set")
	}
	if cfg.Provider != "" && cfg.Provider != "anthropic" {
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "ANTHROPIC_API_KEY"
	}
	key := os.Getenv(keyEnv)
	if key == "" {
		return nil, fmt.Errorf("environment variable %s is not set", keyEnv)
	}

	model := cfg.Model
	if model == "" {
		model = string(sdk.ModelClaudeSonnet4_5)
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	ac := sdk.NewClient(option.WithAPIKey(key))

	slog.Info("LLM client configured", "model", model, "max_tokens", maxTokens)

	return &AnthropicClient{
		messages:    ac.Messages,
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		logger:      slog.With("component", "llm", "model", model),
	}, nil
}

// Close releases client resources.
func (c *AnthropicClient) Close() error {
	return nil
}

// GenerateStream streams a generation. The chunks channel closes when
// the generation completes; a terminal failure arrives on errs.
func (c *AnthropicClient) GenerateStream(ctx context.Context, input GenerateInput) (<-chan StreamChunk, <-chan error) {
	chunks := make(chan StreamChunk, 100)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		params := sdk.MessageNewParams{
			Model:     sdk.Model(c.model),
			MaxTokens: c.maxTokens,
			Messages: []sdk.MessageParam{
				sdk.NewUserMessage(sdk.NewTextBlock(input.Prompt)),
			},
		}
		if input.System != "" {
			params.System = []sdk.TextBlockParam{{Text: input.System}}
		}
		if c.temperature > 0 {
			params.Temperature = sdk.Float(c.temperature)
		}

		stream := c.messages.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case sdk.ContentBlockDeltaEvent:
				if delta, ok := ev.Delta.AsAny().(sdk.TextDelta); ok {
					select {
					case chunks <- StreamChunk{Content: delta.Text}:
					case <-ctx.Done():
						errs <- ctx.Err()
						return
					}
				}
			case sdk.MessageDeltaEvent:
				select {
				case chunks <- StreamChunk{
					IsFinal:      true,
					OutputTokens: ev.Usage.OutputTokens,
				}:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			errs <- fmt.Errorf("llm stream error: %w", err)
		}
	}()

	return chunks, errs
}

// Collect runs a generation to completion and returns the full text.
func Collect(ctx context.Context, client Client, input GenerateInput) (string, error) {
	chunks, errs := client.GenerateStream(ctx, input)

	var sb strings.Builder
	for chunk := range chunks {
		if chunk.Error != "" {
			return "", fmt.Errorf("llm error: %s", chunk.Error)
		}
		sb.WriteString(chunk.Content)
	}
	if err := <-errs; err != nil {
		return "", err
	}
	return sb.String(), nil
}
