// ABOUTME: Registry mapping provider identifiers to clients with a configured default
// ABOUTME: Unknown or empty identifiers resolve to the default provider

package provider

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/2389/chat-relay/internal/config"
)

// ErrUnknownDefault is returned when the default provider id has no registered client.
var ErrUnknownDefault = errors.New("default provider is not registered")

// Registry resolves provider identifiers to clients. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	clients   map[string]Client
	defaultID string
	logger    *slog.Logger
}

// NewRegistry creates a registry holding clients, keyed by their Name.
func NewRegistry(defaultID string, logger *slog.Logger, clients ...Client) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		clients:   make(map[string]Client, len(clients)),
		defaultID: normalizeID(defaultID),
		logger:    logger.With("component", "registry"),
	}
	for _, c := range clients {
		r.clients[normalizeID(c.Name())] = c
	}
	if _, ok := r.clients[r.defaultID]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDefault, defaultID)
	}
	return r, nil
}

// FromConfig builds the registry with every built-in vendor
func FromConfig(cfg config.ProvidersConfig, logger *slog.Logger) (*Registry, error) {
	claude := NewClaude(cfg.Claude, logger)
	openai := NewOpenAI(cfg.OpenAI, logger)

	r, err := NewRegistry(cfg.Default, logger, claude, openai)
	if err != nil {
		return nil, err
	}
	for _, p := range []*Provider{claude, openai} {
		r.logger.Info("provider registered", "provider", p.Name(), "configured", p.Configured())
	}
	return r, nil
}

// Register adds or replaces a client
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[normalizeID(c.Name())] = c
}

// Resolve returns the client for id. Matching ignores case and surrounding
// whitespace; an empty or unknown id yields the default client.
func (r *Registry) Resolve(id string) Client {
	key := normalizeID(id)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if key == "" {
		return r.clients[r.defaultID]
	}
	if c, ok := r.clients[key]; ok {
		return c
	}
	r.logger.Warn("unknown provider, using default", "requested", id, "default", r.defaultID)
	return r.clients[r.defaultID]
}

// Default returns the default provider id
func (r *Registry) Default() string {
	return r.defaultID
}

// Names returns the registered provider ids, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
