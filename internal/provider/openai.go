// ABOUTME: OpenAI Chat Completions provider built on go-openai
// ABOUTME: Sends a single user message and returns the first choice's content

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/2389/chat-relay/internal/config"
)

const openAIDemoText = "Hello! I'm a demo ChatGPT response. Please configure your OpenAI API key (providers.openai.api_key) to enable real ChatGPT responses."

// ChatCompleter is the subset of openai.Client used by the provider; easy to fake in tests.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type openAICompleter struct {
	client    ChatCompleter
	model     string
	maxTokens int
}

// NewOpenAI creates the "openai" provider. An empty API key yields a provider
// that answers with demo text and never touches the network.
func NewOpenAI(cfg config.ProviderConfig, logger *slog.Logger) *Provider {
	var c completer
	if cfg.APIKey != "" {
		oc := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
		c = &openAICompleter{
			client:    openai.NewClientWithConfig(oc),
			model:     cfg.Model,
			maxTokens: cfg.MaxTokens,
		}
	}
	return newProvider(config.ProviderOpenAI, "ChatGPT", openAIDemoText, c, logger)
}

// NewOpenAIWithClient creates the "openai" provider around an existing client
func NewOpenAIWithClient(client ChatCompleter, model string, maxTokens int, logger *slog.Logger) *Provider {
	return newProvider(config.ProviderOpenAI, "ChatGPT", openAIDemoText,
		&openAICompleter{client: client, model: model, maxTokens: maxTokens}, logger)
}

func (c *openAICompleter) complete(ctx context.Context, text string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
