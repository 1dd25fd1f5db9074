// Package gateway wires the chat-relay components together and serves them.
//
// # Overview
//
// A Gateway owns the provider registry, the conversation service and its
// broadcaster, the optional audit ledger, and the HTTP and gRPC servers that
// expose them. Listeners are plain TCP by default; with tailscale.enabled the
// gateway joins a tailnet through tsnet and listens there instead (:80 for
// HTTP, :50051 for gRPC).
//
// # HTTP API
//
//   - GET /api/messages - Whole conversation; ?render=html adds content_html
//   - POST /api/messages - Send {"content", "provider"}; returns the reply
//   - DELETE /api/messages - Clear the conversation
//   - GET /api/messages/{id} - One message, 404 when absent
//   - GET /api/messages/stream - SSE feed of new messages
//   - GET /api/providers - Registered providers and the default
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness with subscriber and message counts
//
// POST /api/messages honours an Idempotency-Key header. A retried key
// returns the first reply with Idempotent-Replayed: true; a key whose first
// request is still running gets 409.
//
// # SSE Streaming
//
// Every appended message, user and assistant alike, is sent as:
//
//	event: message
//	data: {"id":"...","content":"...","role":"user","timestamp":"..."}
//
// A ": ping" comment is written every 15 seconds while the stream is idle.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // blocks; shuts down when ctx is canceled
//
// Shutdown may also be called directly and is safe to call more than once.
package gateway
