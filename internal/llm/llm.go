// Package llm wraps the text-generation services used to draft
// attendance notification emails.
package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hourwatch/hourwatch/internal/config"
)

// Client issues a single completion request: one user-role message in,
// the response text out.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const (
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	defaultOpenAIModel    = "gpt-4o-mini"
)

// NewClient builds a client for the configured provider.
func NewClient(cfg config.LLMConfig) (Client, error) {
	key := cfg.ResolveAPIKey()
	if key == "" {
		return nil, fmt.Errorf("llm: no API key configured for provider %q", cfg.Provider)
	}

	switch cfg.Provider {
	case "anthropic":
		model := cfg.Model
		if model == "" {
			model = defaultAnthropicModel
		}
		return &anthropicClient{
			client: anthropic.NewClient(option.WithAPIKey(key)),
			model:  model,
		}, nil
	case "", "openai":
		model := cfg.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		return newOpenAIClient(key, model, cfg.BaseURL), nil
	}
	return nil, fmt.Errorf("llm: unknown provider %q (anthropic or openai)", cfg.Provider)
}

type anthropicClient struct {
	client anthropic.Client
	model  string
}

func (c *anthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in Anthropic response")
}
