// ABOUTME: Tests for the vendor providers against fake HTTP upstreams
// ABOUTME: Covers demo text, success paths, upstream failures and empty replies

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chat-relay/internal/config"
)

func providerConfig(key, baseURL, model string) config.ProviderConfig {
	return config.ProviderConfig{
		APIKey:    key,
		Model:     model,
		MaxTokens: 1024,
		BaseURL:   baseURL,
		Timeout:   5 * time.Second,
	}
}

// fakeUpstream serves handler on path and counts requests
func fakeUpstream(t *testing.T, path string, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func claudeReply(blocks ...map[string]any) map[string]any {
	if blocks == nil {
		blocks = []map[string]any{}
	}
	return map[string]any{
		"id":            "msg_01",
		"type":          "message",
		"role":          "assistant",
		"model":         "claude-3-5-sonnet-20241022",
		"content":       blocks,
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage":         map[string]any{"input_tokens": 3, "output_tokens": 5},
	}
}

func TestClaude_NoKeyReturnsDemoText(t *testing.T) {
	p := NewClaude(providerConfig("", "http://127.0.0.1:1", "m"), nil)

	assert.Equal(t, "claude", p.Name())
	assert.False(t, p.Configured())
	assert.Equal(t, claudeDemoText, p.Send(context.Background(), "hi"))
}

func TestClaude_Success(t *testing.T) {
	srv, hits := fakeUpstream(t, "/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			Messages  []struct {
				Role    string `json:"role"`
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "claude-test", req.Model)
		assert.Equal(t, 1024, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		require.Len(t, req.Messages[0].Content, 1)
		assert.Equal(t, "Hello", req.Messages[0].Content[0].Text)

		writeJSON(w, http.StatusOK, claudeReply(map[string]any{"type": "text", "text": "Hi from Claude"}))
	})

	p := NewClaude(providerConfig("test-key", srv.URL, "claude-test"), nil)
	require.True(t, p.Configured())

	assert.Equal(t, "Hi from Claude", p.Send(context.Background(), "Hello"))
	assert.Equal(t, int32(1), hits.Load())
}

func TestClaude_UpstreamErrorReturnsErrorText(t *testing.T) {
	srv, hits := fakeUpstream(t, "/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "api_error", "message": "boom"},
		})
	})

	p := NewClaude(providerConfig("test-key", srv.URL, "claude-test"), nil)

	got := p.Send(context.Background(), "Hello")
	assert.Equal(t, "Error: Unable to get response from Claude. Please check your API key and try again.", got)
	assert.Equal(t, int32(1), hits.Load(), "exactly one attempt, no retries")
}

func TestClaude_EmptyContentReturnsSorry(t *testing.T) {
	srv, _ := fakeUpstream(t, "/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, claudeReply())
	})

	p := NewClaude(providerConfig("test-key", srv.URL, "claude-test"), nil)
	assert.Equal(t, EmptyResponseText, p.Send(context.Background(), "Hello"))
}

func TestOpenAI_NoKeyReturnsDemoText(t *testing.T) {
	p := NewOpenAI(providerConfig("", "http://127.0.0.1:1", "m"), nil)

	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, openAIDemoText, p.Send(context.Background(), "hi"))
}

func TestOpenAI_Success(t *testing.T) {
	srv, hits := fakeUpstream(t, "/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, openai.ChatMessageRoleUser, req.Messages[0].Role)
		assert.Equal(t, "Hello", req.Messages[0].Content)

		writeJSON(w, http.StatusOK, map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-test",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "Hi from ChatGPT"},
				"finish_reason": "stop",
			}},
		})
	})

	p := NewOpenAI(providerConfig("test-key", srv.URL+"/v1", "gpt-test"), nil)

	assert.Equal(t, "Hi from ChatGPT", p.Send(context.Background(), "Hello"))
	assert.Equal(t, int32(1), hits.Load())
}

func TestOpenAI_UpstreamErrorReturnsErrorText(t *testing.T) {
	srv, _ := fakeUpstream(t, "/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error": map[string]any{"message": "bad key", "type": "invalid_request_error"},
		})
	})

	p := NewOpenAI(providerConfig("wrong-key", srv.URL+"/v1", "gpt-test"), nil)

	got := p.Send(context.Background(), "Hello")
	assert.Equal(t, "Error: Unable to get response from ChatGPT. Please check your API key and try again.", got)
}

func TestOpenAI_MalformedBodyReturnsErrorText(t *testing.T) {
	srv, _ := fakeUpstream(t, "/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{not json"))
	})

	p := NewOpenAI(providerConfig("test-key", srv.URL+"/v1", "gpt-test"), nil)
	assert.Contains(t, p.Send(context.Background(), "Hello"), "Unable to get response from ChatGPT")
}

type fakeChat struct {
	resp openai.ChatCompletionResponse
	err  error
	reqs []openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

func TestOpenAI_EmptyChoicesReturnsSorry(t *testing.T) {
	fake := &fakeChat{}
	p := NewOpenAIWithClient(fake, "gpt-4", 1024, nil)

	assert.Equal(t, EmptyResponseText, p.Send(context.Background(), "Hello"))
	require.Len(t, fake.reqs, 1)
	assert.Equal(t, 1024, fake.reqs[0].MaxTokens)
}

func TestOpenAI_ClientErrorReturnsErrorText(t *testing.T) {
	fake := &fakeChat{err: errors.New("connection refused")}
	p := NewOpenAIWithClient(fake, "gpt-4", 1024, nil)

	assert.Contains(t, p.Send(context.Background(), "Hello"), "Unable to get response from ChatGPT")
}

func TestProvider_SendIsSafeWhenContextCancelled(t *testing.T) {
	srv, _ := fakeUpstream(t, "/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, claudeReply(map[string]any{"type": "text", "text": "late"}))
	})
	p := NewClaude(providerConfig("test-key", srv.URL, "claude-test"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := p.Send(ctx, "Hello")
	assert.Equal(t, p.errorText(), got, "a cancelled call degrades to fallback text")
}
