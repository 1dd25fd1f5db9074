// ABOUTME: Client for the ChatRelay gRPC service using the JSON codec
// ABOUTME: Used by the CLI watch command and by tests

package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/2389/chat-relay/internal/store"
)

// Client wraps a gRPC connection to a chat-relay server
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for target (host:port) over plaintext
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gRPC client: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// ListMessages returns the whole conversation
func (c *Client) ListMessages(ctx context.Context) ([]store.Message, error) {
	var resp ListMessagesResponse
	if err := c.invoke(ctx, methodListMessages, &Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// GetMessage returns one message; a missing id yields a NotFound status error
func (c *Client) GetMessage(ctx context.Context, id string) (store.Message, error) {
	var msg store.Message
	err := c.invoke(ctx, methodGetMessage, &GetMessageRequest{ID: id}, &msg)
	return msg, err
}

// SendMessage runs one turn and returns the assistant message
func (c *Client) SendMessage(ctx context.Context, content, providerID string) (store.Message, error) {
	var msg store.Message
	err := c.invoke(ctx, methodSendMessage, &SendMessageRequest{Content: content, Provider: providerID}, &msg)
	return msg, err
}

// ClearMessages empties the conversation
func (c *Client) ClearMessages(ctx context.Context) (bool, error) {
	var resp ClearMessagesResponse
	if err := c.invoke(ctx, methodClearMessages, &Empty{}, &resp); err != nil {
		return false, err
	}
	return resp.Cleared, nil
}

// Watch calls fn for every message appended after the stream opens.
// Returns nil when ctx is cancelled or the server ends the stream cleanly,
// or the first error returned by fn.
func (c *Client) Watch(ctx context.Context, fn func(store.Message) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], methodMessageAdded,
		grpc.CallContentSubtype(CodecName))
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	if err := stream.SendMsg(&Empty{}); err != nil {
		return fmt.Errorf("sending stream request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("closing send side: %w", err)
	}

	for {
		var msg store.Message
		if err := stream.RecvMsg(&msg); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	return c.conn.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(CodecName))
}
