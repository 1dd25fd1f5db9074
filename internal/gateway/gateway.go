// ABOUTME: Gateway orchestrator that wires the conversation core to HTTP and gRPC servers
// ABOUTME: Manages listeners (TCP or Tailscale), health endpoints and shutdown lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"
	"tailscale.com/tsnet"

	"github.com/2389/chat-relay/internal/config"
	"github.com/2389/chat-relay/internal/conversation"
	"github.com/2389/chat-relay/internal/dedupe"
	"github.com/2389/chat-relay/internal/provider"
	"github.com/2389/chat-relay/internal/rpc"
	"github.com/2389/chat-relay/internal/store"
)

const (
	idempotencyTTL     = 10 * time.Minute
	idempotencyMaxKeys = 10_000
	defaultPingEvery   = 15 * time.Second
	shutdownTimeout    = 5 * time.Second
)

// Gateway owns the relay's components and the servers that expose them.
type Gateway struct {
	config       *config.Config
	providers    *provider.Registry
	broadcaster  *conversation.Broadcaster
	conversation *conversation.Service
	grpcServer   *grpc.Server // nil when server.grpc_addr is empty
	httpServer   *http.Server
	tsnetServer  *tsnet.Server
	logger       *slog.Logger

	// ledger is the optional SQLite audit trail
	ledger *store.Ledger

	// idempotency maps Idempotency-Key headers to the reply of the first request
	idempotency *dedupe.Cache[store.Message]

	// pingInterval is how often SSE streams send a keepalive comment
	pingInterval time.Duration

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a gateway from configuration. Nothing listens until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry, err := provider.FromConfig(cfg.Providers, logger)
	if err != nil {
		return nil, fmt.Errorf("creating provider registry: %w", err)
	}

	broadcaster := conversation.NewBroadcaster(cfg.Broadcast.MaxBacklog, logger)
	svc := conversation.New(store.NewMessageStore(), registry, broadcaster, logger)

	gw := &Gateway{
		config:       cfg,
		providers:    registry,
		broadcaster:  broadcaster,
		conversation: svc,
		logger:       logger.With("component", "gateway"),
		idempotency:  dedupe.New[store.Message](idempotencyTTL, idempotencyMaxKeys),
		pingInterval: defaultPingEvery,
	}

	if cfg.Audit.Path != "" {
		ledger, err := store.NewLedger(cfg.Audit.Path, logger)
		if err != nil {
			gw.idempotency.Close()
			broadcaster.Close()
			return nil, fmt.Errorf("opening audit ledger: %w", err)
		}
		gw.ledger = ledger
		svc.SetRecorder(ledger)
	}

	if cfg.Server.GRPCAddr != "" || cfg.Tailscale.Enabled {
		gw.grpcServer = rpc.NewGRPCServer(svc, logger)
	}

	mux := http.NewServeMux()
	gw.registerRoutes(mux)
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	mux.HandleFunc("GET /api/messages", g.handleListMessages)
	mux.HandleFunc("POST /api/messages", g.handleSendMessage)
	mux.HandleFunc("DELETE /api/messages", g.handleClearMessages)
	mux.HandleFunc("GET /api/messages/stream", g.handleMessageStream)
	mux.HandleFunc("GET /api/messages/{id}", g.handleGetMessage)
	mux.HandleFunc("GET /api/providers", g.handleListProviders)
}

// Conversation returns the conversation service (used by tests and embedders)
func (g *Gateway) Conversation() *conversation.Service {
	return g.conversation
}

// Run starts the servers and blocks until ctx is canceled or a server fails.
// Returns nil on graceful shutdown. The gateway is shut down on every return path.
func (g *Gateway) Run(ctx context.Context) error {
	ls, err := g.listen(ctx)
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := g.Shutdown(shutdownCtx); shutdownErr != nil {
			g.logger.Error("shutdown after listen failure", "error", shutdownErr)
		}
		return err
	}

	errCh := make(chan error, 2)
	serve := func(name string, ln net.Listener, fn func(net.Listener) error) {
		g.logger.Info(name+" server listening", "addr", ln.Addr().String())
		if err := fn(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s server: %w", name, err)
		}
	}
	if ls.grpc != nil {
		go serve("gRPC", ls.grpc, g.grpcServer.Serve)
	}
	go serve("HTTP", ls.http, g.httpServer.Serve)

	var serveErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serveErr = <-errCh:
		g.logger.Error("server error", "error", serveErr)
	}

	// ctx is already done; give shutdown its own deadline
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := g.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		return err
	}
	return serveErr
}

// Shutdown stops the servers and releases resources in dependency order.
// Later calls return the result of the first.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		g.logger.Info("shutting down gateway")

		// Ends live streams so their handlers can return
		g.broadcaster.Close()

		steps := []struct {
			name string
			fn   func() error
		}{
			{"HTTP shutdown", func() error { return g.httpServer.Shutdown(ctx) }},
			{"gRPC stop", func() error { g.stopGRPC(ctx); return nil }},
			{"tailscale close", func() error {
				if g.tsnetServer == nil {
					return nil
				}
				return g.tsnetServer.Close()
			}},
			{"ledger close", func() error {
				if g.ledger == nil {
					return nil
				}
				return g.ledger.Close()
			}},
			{"idempotency close", func() error { g.idempotency.Close(); return nil }},
		}

		var errs []error
		for _, step := range steps {
			if err := step.fn(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			}
		}
		if len(errs) > 0 {
			g.shutdownErr = fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
		}
	})
	return g.shutdownErr
}

// stopGRPC drains in-flight RPCs, falling back to a hard stop when ctx expires.
func (g *Gateway) stopGRPC(ctx context.Context) {
	if g.grpcServer == nil {
		return
	}
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		g.grpcServer.GracefulStop()
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports live subscriber and message counts.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	messages, subscribers := g.conversation.Stats()
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d subscribers, %d messages)", subscribers, messages)
}
