// ABOUTME: Anthropic Messages API provider built on anthropic-sdk-go
// ABOUTME: Sends a single user message and returns the first text block of the reply

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/2389/chat-relay/internal/config"
)

const claudeDemoText = "Hello! I'm a demo response. Please configure your Claude API key (providers.claude.api_key) to enable real Claude responses."

// messagesAPI is the slice of the Anthropic client used here
type messagesAPI interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type claudeCompleter struct {
	messages  messagesAPI
	model     string
	maxTokens int64
}

// NewClaude creates the "claude" provider. An empty API key yields a provider
// that answers with demo text and never touches the network.
func NewClaude(cfg config.ProviderConfig, logger *slog.Logger) *Provider {
	var c completer
	if cfg.APIKey != "" {
		opts := []option.RequestOption{
			option.WithAPIKey(cfg.APIKey),
			option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			option.WithMaxRetries(0),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
		client := anthropic.NewClient(opts...)
		c = &claudeCompleter{
			messages:  &client.Messages,
			model:     cfg.Model,
			maxTokens: int64(cfg.MaxTokens),
		}
	}
	return newProvider(config.ProviderClaude, "Claude", claudeDemoText, c, logger)
}

func (c *claudeCompleter) complete(ctx context.Context, text string) (string, error) {
	msg, err := c.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", ErrEmptyResponse
}
