// ABOUTME: Hand-declared gRPC service description for chatrelay.v1.ChatRelay
// ABOUTME: Request/response types, method names and the handler shims grpc-go dispatches to

package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/2389/chat-relay/internal/store"
)

const serviceName = "chatrelay.v1.ChatRelay"

const (
	methodListMessages  = "/" + serviceName + "/ListMessages"
	methodGetMessage    = "/" + serviceName + "/GetMessage"
	methodSendMessage   = "/" + serviceName + "/SendMessage"
	methodClearMessages = "/" + serviceName + "/ClearMessages"
	methodMessageAdded  = "/" + serviceName + "/MessageAdded"
)

// Empty is the request for methods without arguments
type Empty struct{}

// ListMessagesResponse carries the full conversation
type ListMessagesResponse struct {
	Messages []store.Message `json:"messages"`
}

// GetMessageRequest selects one message
type GetMessageRequest struct {
	ID string `json:"id"`
}

// SendMessageRequest starts a turn. An empty Provider selects the default.
type SendMessageRequest struct {
	Content  string `json:"content"`
	Provider string `json:"provider,omitempty"`
}

// ClearMessagesResponse reports the outcome of a clear
type ClearMessagesResponse struct {
	Cleared bool `json:"cleared"`
}

// ChatRelayServer is the server API for the ChatRelay service
type ChatRelayServer interface {
	ListMessages(ctx context.Context, req *Empty) (*ListMessagesResponse, error)
	GetMessage(ctx context.Context, req *GetMessageRequest) (*store.Message, error)
	SendMessage(ctx context.Context, req *SendMessageRequest) (*store.Message, error)
	ClearMessages(ctx context.Context, req *Empty) (*ClearMessagesResponse, error)
	MessageAdded(req *Empty, stream MessageAddedServer) error
}

// MessageAddedServer is the server side of the MessageAdded stream
type MessageAddedServer interface {
	Send(msg *store.Message) error
	grpc.ServerStream
}

type messageAddedServer struct {
	grpc.ServerStream
}

func (s *messageAddedServer) Send(msg *store.Message) error {
	return s.ServerStream.SendMsg(msg)
}

// RegisterChatRelayServer registers srv on the gRPC server
func RegisterChatRelayServer(s grpc.ServiceRegistrar, srv ChatRelayServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ChatRelayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListMessages", Handler: listMessagesHandler},
		{MethodName: "GetMessage", Handler: getMessageHandler},
		{MethodName: "SendMessage", Handler: sendMessageHandler},
		{MethodName: "ClearMessages", Handler: clearMessagesHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "MessageAdded",
			Handler:       messageAddedHandler,
			ServerStreams: true,
		},
	},
	Metadata: "chatrelay/v1/chatrelay",
}

func listMessagesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChatRelayServer).ListMessages(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListMessages}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ChatRelayServer).ListMessages(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getMessageHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetMessageRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChatRelayServer).GetMessage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetMessage}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ChatRelayServer).GetMessage(ctx, req.(*GetMessageRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func sendMessageHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SendMessageRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChatRelayServer).SendMessage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSendMessage}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ChatRelayServer).SendMessage(ctx, req.(*SendMessageRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func clearMessagesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChatRelayServer).ClearMessages(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodClearMessages}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ChatRelayServer).ClearMessages(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func messageAddedHandler(srv any, stream grpc.ServerStream) error {
	in := new(Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatRelayServer).MessageAdded(in, &messageAddedServer{stream})
}
