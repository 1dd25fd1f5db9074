// ABOUTME: Provider client abstraction and the fallback policy shared by every vendor
// ABOUTME: Send never fails: missing credentials, upstream errors and empty replies become chat text

package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrEmptyResponse is returned by a completer when the vendor answered
// successfully but produced no usable text.
var ErrEmptyResponse = errors.New("empty response from provider")

// EmptyResponseText is the assistant content used when a vendor returns no text.
const EmptyResponseText = "Sorry, I couldn't generate a response."

// Client is the capability every LLM vendor offers to the relay.
// Send returns assistant text; failures are reported as text, never as errors.
type Client interface {
	Name() string
	Send(ctx context.Context, text string) string
}

// completer performs the single outbound call for one vendor
type completer interface {
	complete(ctx context.Context, text string) (string, error)
}

// Provider implements Client on top of a vendor completer.
// A nil completer means no credential is configured.
type Provider struct {
	id          string
	displayName string
	demoText    string
	completer   completer
	logger      *slog.Logger
}

func newProvider(id, displayName, demoText string, c completer, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		id:          id,
		displayName: displayName,
		demoText:    demoText,
		completer:   c,
		logger:      logger.With("component", "provider", "provider", id),
	}
}

// Name returns the provider identifier (e.g. "claude")
func (p *Provider) Name() string {
	return p.id
}

// Configured reports whether a credential is present
func (p *Provider) Configured() bool {
	return p.completer != nil
}

// Send forwards text to the vendor and returns the reply or a fallback string
func (p *Provider) Send(ctx context.Context, text string) string {
	if p.completer == nil {
		p.logger.Warn("no API key configured, returning demo response")
		return p.demoText
	}

	reply, err := p.completer.complete(ctx, text)
	switch {
	case errors.Is(err, ErrEmptyResponse):
		p.logger.Warn("provider returned no content")
		return EmptyResponseText
	case err != nil:
		p.logger.Error("provider request failed", "error", err)
		return p.errorText()
	case reply == "":
		p.logger.Warn("provider returned no content")
		return EmptyResponseText
	}

	p.logger.Debug("provider replied", "chars", len(reply))
	return reply
}

func (p *Provider) errorText() string {
	return fmt.Sprintf("Error: Unable to get response from %s. Please check your API key and try again.", p.displayName)
}
