// ABOUTME: Tests for the HTTP message API and the SSE message stream
// ABOUTME: Drives the gateway's mux through httptest without opening its own listeners

package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chat-relay/internal/store"
)

// newTestGateway creates a gateway whose handlers are served by an httptest server.
func newTestGateway(t *testing.T) (*Gateway, *httptest.Server) {
	t.Helper()

	cfg := testConfig(t)
	cfg.Server.GRPCAddr = ""

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })

	srv := httptest.NewServer(gw.httpServer.Handler)
	t.Cleanup(srv.Close)
	return gw, srv
}

func postMessage(t *testing.T, srv *httptest.Server, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/messages", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHandleListMessages_Empty(t *testing.T) {
	_, srv := newTestGateway(t)

	resp, err := http.Get(srv.URL + "/api/messages")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	list := decodeJSON[ListMessagesResponse](t, resp)
	assert.NotNil(t, list.Messages)
	assert.Empty(t, list.Messages)
}

func TestHandleSendMessage_DefaultProvider(t *testing.T) {
	gw, srv := newTestGateway(t)

	resp := postMessage(t, srv, `{"content":"Hello"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reply := decodeJSON[MessageResponse](t, resp)
	assert.Equal(t, store.RoleAssistant, reply.Role)
	assert.True(t, strings.HasPrefix(reply.Content, "Hello! I'm a demo response"))
	assert.Empty(t, reply.ContentHTML)

	msgs := gw.Conversation().ListMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, reply.ID, msgs[1].ID)
}

func TestHandleSendMessage_SelectsProvider(t *testing.T) {
	_, srv := newTestGateway(t)

	resp := postMessage(t, srv, `{"content":"Hi","provider":"OpenAI"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reply := decodeJSON[MessageResponse](t, resp)
	assert.Contains(t, reply.Content, "demo ChatGPT response")
}

func TestHandleSendMessage_EmptyContentAllowed(t *testing.T) {
	gw, srv := newTestGateway(t)

	resp := postMessage(t, srv, `{"content":""}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	msgs := gw.Conversation().ListMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "", msgs[0].Content)
}

func TestHandleSendMessage_BadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing content", `{"provider":"claude"}`, "content is required"},
		{"invalid json", `{"content":`, "invalid JSON body"},
		{"too large", `{"content":"` + strings.Repeat("a", maxRequestBody) + `"}`, "request body too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, _ := newTestGateway(t)

			req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			gw.handleSendMessage(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var errResp map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
			assert.Equal(t, tt.wantErr, errResp["error"])
			assert.True(t, gw.Conversation().Empty())
		})
	}
}

func TestHandleSendMessage_IdempotentReplay(t *testing.T) {
	gw, srv := newTestGateway(t)
	header := http.Header{"Idempotency-Key": {"abc-123"}}

	first := postMessage(t, srv, `{"content":"once"}`, header)
	require.Equal(t, http.StatusOK, first.StatusCode)
	assert.Empty(t, first.Header.Get("Idempotent-Replayed"))
	firstReply := decodeJSON[MessageResponse](t, first)

	second := postMessage(t, srv, `{"content":"once"}`, header)
	require.Equal(t, http.StatusOK, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get("Idempotent-Replayed"))
	secondReply := decodeJSON[MessageResponse](t, second)

	assert.Equal(t, firstReply.ID, secondReply.ID)
	assert.Len(t, gw.Conversation().ListMessages(), 2, "replay must not run another turn")
}

func TestHandleSendMessage_IdempotencyInFlight(t *testing.T) {
	gw, srv := newTestGateway(t)

	// Simulate a request holding the key
	gw.idempotency.Reserve("busy")

	resp := postMessage(t, srv, `{"content":"dup"}`, http.Header{"Idempotency-Key": {"busy"}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
	assert.True(t, gw.Conversation().Empty())
}

func TestHandleSendMessage_DistinctKeysRunSeparately(t *testing.T) {
	gw, srv := newTestGateway(t)

	for _, key := range []string{"k1", "k2"} {
		resp := postMessage(t, srv, `{"content":"x"}`, http.Header{"Idempotency-Key": {key}})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}
	assert.Len(t, gw.Conversation().ListMessages(), 4)
}

func TestHandleGetMessage(t *testing.T) {
	gw, srv := newTestGateway(t)
	reply := gw.Conversation().SendMessage(t.Context(), "find me", "")

	resp, err := http.Get(srv.URL + "/api/messages/" + reply.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeJSON[MessageResponse](t, resp)
	assert.Equal(t, reply.ID, got.ID)
	assert.Equal(t, reply.Content, got.Content)

	resp, err = http.Get(srv.URL + "/api/messages/does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	errResp := decodeJSON[map[string]string](t, resp)
	assert.Equal(t, "message not found", errResp["error"])
}

func TestHandleListMessages_RenderHTML(t *testing.T) {
	_, srv := newTestGateway(t)

	resp := postMessage(t, srv, `{"content":"**bold** and <script>x</script>"}`, nil)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/messages?render=html")
	require.NoError(t, err)
	list := decodeJSON[ListMessagesResponse](t, resp)
	require.Len(t, list.Messages, 2)

	html := list.Messages[0].ContentHTML
	assert.Contains(t, html, "<strong>bold</strong>")
	assert.NotContains(t, html, "<script>")
	assert.Equal(t, "**bold** and <script>x</script>", list.Messages[0].Content)
}

func TestHandleClearMessages(t *testing.T) {
	gw, srv := newTestGateway(t)
	gw.Conversation().SendMessage(t.Context(), "soon gone", "")

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/messages", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeJSON[map[string]bool](t, resp)
	assert.True(t, got["cleared"])
	assert.True(t, gw.Conversation().Empty())
}

func TestHandleListProviders(t *testing.T) {
	_, srv := newTestGateway(t)

	resp, err := http.Get(srv.URL + "/api/providers")
	require.NoError(t, err)
	got := decodeJSON[ProvidersResponse](t, resp)

	assert.Equal(t, "claude", got.Default)
	assert.Equal(t, []string{"claude", "openai"}, got.Providers)
}

func TestMethodNotAllowed(t *testing.T) {
	_, srv := newTestGateway(t)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/messages", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// sseLines reads the stream line by line onto a channel.
func sseLines(resp *http.Response) <-chan string {
	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// nextEvent returns the data of the next "message" event.
func nextEvent(t *testing.T, lines <-chan string) MessageResponse {
	t.Helper()
	timeout := time.After(5 * time.Second)
	sawEvent := false
	for {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream ended early")
			switch {
			case line == "event: message":
				sawEvent = true
			case sawEvent && strings.HasPrefix(line, "data: "):
				var msg MessageResponse
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg))
				return msg
			}
		case <-timeout:
			t.Fatal("timed out waiting for SSE event")
		}
	}
}

func TestHandleMessageStream(t *testing.T) {
	gw, srv := newTestGateway(t)

	// History before the stream opens is not replayed
	gw.Conversation().SendMessage(t.Context(), "old", "")

	resp, err := http.Get(srv.URL + "/api/messages/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := sseLines(resp)
	require.Eventually(t, func() bool {
		_, subs := gw.Conversation().Stats()
		return subs == 1
	}, 2*time.Second, 10*time.Millisecond)

	reply := gw.Conversation().SendMessage(t.Context(), "new", "")

	user := nextEvent(t, lines)
	assert.Equal(t, store.RoleUser, user.Role)
	assert.Equal(t, "new", user.Content)

	assistant := nextEvent(t, lines)
	assert.Equal(t, reply.ID, assistant.ID)
}

func TestHandleMessageStream_Ping(t *testing.T) {
	gw, srv := newTestGateway(t)
	gw.pingInterval = 20 * time.Millisecond

	resp, err := http.Get(srv.URL + "/api/messages/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := sseLines(resp)
	timeout := time.After(2 * time.Second)
	for {
		select {
		case line := <-lines:
			if line == ": ping" {
				return
			}
		case <-timeout:
			t.Fatal("no keepalive ping received")
		}
	}
}

func TestHandleMessageStream_EndsOnShutdown(t *testing.T) {
	gw, srv := newTestGateway(t)

	resp, err := http.Get(srv.URL + "/api/messages/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	lines := sseLines(resp)

	require.Eventually(t, func() bool {
		_, subs := gw.Conversation().Stats()
		return subs == 1
	}, 2*time.Second, 10*time.Millisecond)

	gw.broadcaster.Close()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("stream did not end after broadcaster closed")
		}
	}
}
