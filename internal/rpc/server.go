// ABOUTME: ChatRelay gRPC service implementation over the conversation service
// ABOUTME: Unary send/list/get/clear plus a server stream of newly appended messages

package rpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/2389/chat-relay/internal/store"
)

// Conversation defines what the gRPC surface needs from the conversation layer
type Conversation interface {
	ListMessages() []store.Message
	GetMessage(id string) (store.Message, bool)
	SendMessage(ctx context.Context, content, providerID string) store.Message
	ClearMessages() bool
	Subscribe(ctx context.Context) (<-chan store.Message, string)
}

// Server implements ChatRelayServer
type Server struct {
	conv   Conversation
	logger *slog.Logger
}

// NewServer creates the ChatRelay service implementation
func NewServer(conv Conversation, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		conv:   conv,
		logger: logger.With("component", "grpc"),
	}
}

// NewGRPCServer creates a grpc.Server with keepalive settings and the
// ChatRelay service registered
func NewGRPCServer(conv Conversation, logger *slog.Logger) *grpc.Server {
	srv := NewServer(conv, logger)
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(srv.logUnary),
	)
	RegisterChatRelayServer(server, srv)
	return server
}

// ListMessages returns the whole conversation
func (s *Server) ListMessages(_ context.Context, _ *Empty) (*ListMessagesResponse, error) {
	return &ListMessagesResponse{Messages: s.conv.ListMessages()}, nil
}

// GetMessage returns one message or NotFound
func (s *Server) GetMessage(_ context.Context, req *GetMessageRequest) (*store.Message, error) {
	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	msg, ok := s.conv.GetMessage(req.ID)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "message %s not found", req.ID)
	}
	return &msg, nil
}

// SendMessage runs one turn and returns the assistant message.
// The turn completes even if the caller goes away.
func (s *Server) SendMessage(ctx context.Context, req *SendMessageRequest) (*store.Message, error) {
	msg := s.conv.SendMessage(context.WithoutCancel(ctx), req.Content, req.Provider)
	return &msg, nil
}

// ClearMessages empties the conversation
func (s *Server) ClearMessages(_ context.Context, _ *Empty) (*ClearMessagesResponse, error) {
	return &ClearMessagesResponse{Cleared: s.conv.ClearMessages()}, nil
}

// MessageAdded streams every message appended after the call starts
func (s *Server) MessageAdded(_ *Empty, stream MessageAddedServer) error {
	ctx := stream.Context()
	ch, subID := s.conv.Subscribe(ctx)

	s.logger.Debug("stream subscriber connected", "sub_id", subID)
	defer s.logger.Debug("stream subscriber disconnected", "sub_id", subID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return status.Error(codes.Unavailable, "subscription closed")
			}
			if err := stream.Send(&msg); err != nil {
				return err
			}
		}
	}
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug("rpc",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start))
	return resp, err
}
