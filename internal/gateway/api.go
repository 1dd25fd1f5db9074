// ABOUTME: HTTP JSON API for the conversation plus a Server-Sent Events feed of new messages
// ABOUTME: Routes under /api/messages and /api/providers; Idempotency-Key support for sends

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/2389/chat-relay/internal/dedupe"
	"github.com/2389/chat-relay/internal/store"
)

const maxRequestBody = 1 << 20

// SendMessageRequest is the JSON request body for POST /api/messages.
// Content is a pointer so a missing field can be told apart from "".
type SendMessageRequest struct {
	Content  *string `json:"content"`
	Provider string  `json:"provider,omitempty"`
}

// MessageResponse is a message as returned by the API.
// ContentHTML is only set when the caller asks for ?render=html.
type MessageResponse struct {
	store.Message
	ContentHTML string `json:"content_html,omitempty"`
}

// ListMessagesResponse is the JSON response for GET /api/messages.
type ListMessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
}

// ProvidersResponse is the JSON response for GET /api/providers.
type ProvidersResponse struct {
	Default   string   `json:"default"`
	Providers []string `json:"providers"`
}

// handleListMessages returns the whole conversation in order.
func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request) {
	render := wantsHTML(r)
	msgs := g.conversation.ListMessages()

	resp := ListMessagesResponse{Messages: make([]MessageResponse, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, toMessageResponse(m, render))
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// handleGetMessage returns one message, or 404 when the id is unknown.
func (g *Gateway) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	msg, ok := g.conversation.GetMessage(r.PathValue("id"))
	if !ok {
		g.sendJSONError(w, http.StatusNotFound, "message not found")
		return
	}
	g.writeJSON(w, http.StatusOK, toMessageResponse(msg, wantsHTML(r)))
}

// handleSendMessage runs one turn and returns the assistant message.
//
// With an Idempotency-Key header, a repeat of a completed request returns the
// stored reply without a new turn, and a repeat of a request still running
// gets 409.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	req, err := parseSendRequest(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" {
		prev, state := g.idempotency.Reserve(key)
		switch state {
		case dedupe.Completed:
			g.logger.Debug("idempotent replay", "key", key, "message_id", prev.ID)
			w.Header().Set("Idempotent-Replayed", "true")
			g.writeJSON(w, http.StatusOK, toMessageResponse(prev, false))
			return
		case dedupe.InFlight:
			g.sendJSONError(w, http.StatusConflict, "a request with this Idempotency-Key is still in progress")
			return
		}
	}

	stored := false
	if key != "" {
		defer func() {
			if !stored {
				g.idempotency.Release(key)
			}
		}()
	}

	// The turn finishes even if the caller disconnects
	reply := g.conversation.SendMessage(context.WithoutCancel(r.Context()), *req.Content, req.Provider)

	if key != "" {
		g.idempotency.Store(key, reply)
		stored = true
	}
	g.writeJSON(w, http.StatusOK, toMessageResponse(reply, false))
}

// handleClearMessages empties the conversation.
func (g *Gateway) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]bool{"cleared": g.conversation.ClearMessages()})
}

// handleListProviders reports the registered providers and the default.
func (g *Gateway) handleListProviders(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, ProvidersResponse{
		Default:   g.providers.Default(),
		Providers: g.providers.Names(),
	})
}

// handleMessageStream streams every message appended after the request
// starts as an SSE "message" event. A comment line is sent periodically to
// keep intermediaries from timing the connection out.
func (g *Gateway) handleMessageStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()
	ch, subID := g.conversation.Subscribe(ctx)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	g.logger.Debug("SSE subscriber connected", "sub_id", subID)
	defer g.logger.Debug("SSE subscriber disconnected", "sub_id", subID)

	ticker := time.NewTicker(g.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			g.writeSSEEvent(w, "message", toMessageResponse(msg, false))
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// writeJSON writes v as a JSON response with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"error": message})
}

// parseSendRequest parses and validates a SendMessageRequest from the given reader.
// The content field must be present; an empty string is allowed.
func parseSendRequest(r io.Reader) (*SendMessageRequest, error) {
	var req SendMessageRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errors.New("request body too large")
		}
		return nil, errors.New("invalid JSON body")
	}

	if req.Content == nil {
		return nil, errors.New("content is required")
	}

	return &req, nil
}

func wantsHTML(r *http.Request) bool {
	return r.URL.Query().Get("render") == "html"
}

func toMessageResponse(m store.Message, render bool) MessageResponse {
	resp := MessageResponse{Message: m}
	if render {
		resp.ContentHTML = renderMarkdown(m.Content)
	}
	return resp
}
