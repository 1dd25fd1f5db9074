// Package provider talks to the LLM vendors the relay can forward a turn to.
//
// Every vendor is exposed as a [Client]:
//
//	type Client interface {
//	    Name() string
//	    Send(ctx context.Context, text string) string
//	}
//
// Send has no error return. The shared [Provider] type turns each failure mode
// into assistant text that is stored and shown like any other reply:
//
//   - no API key: the vendor's demo text, no network call
//   - transport error or non-2xx status: "Error: Unable to get response from ..."
//   - empty reply: [EmptyResponseText]
//
// Vendors differ only in a small completer that encodes the request and picks
// the text out of the response. Built-in vendors are "claude" (Anthropic
// Messages API) and "openai" (Chat Completions). Each makes exactly one attempt.
//
// [Registry] maps identifiers to clients. Empty and unknown identifiers resolve
// to the configured default; unknown ones are logged.
package provider
