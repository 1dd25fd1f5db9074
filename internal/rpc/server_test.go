// ABOUTME: In-process tests for the ChatRelay gRPC service over bufconn
// ABOUTME: Exercises the JSON codec, unary methods, NotFound mapping and the MessageAdded stream

package rpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/2389/chat-relay/internal/conversation"
	"github.com/2389/chat-relay/internal/provider"
	"github.com/2389/chat-relay/internal/store"
)

type echoClient struct{ name string }

func (e *echoClient) Name() string { return e.name }
func (e *echoClient) Send(_ context.Context, text string) string {
	return e.name + " says: " + text
}

func setupServer(t *testing.T) (*Client, *conversation.Service) {
	t.Helper()

	reg, err := provider.NewRegistry("claude", nil, &echoClient{name: "claude"}, &echoClient{name: "openai"})
	require.NoError(t, err)
	hub := conversation.NewBroadcaster(0, nil)
	svc := conversation.New(store.NewMessageStore(), reg, hub, nil)

	lis := bufconn.Listen(1 << 20)
	server := NewGRPCServer(svc, nil)
	go func() { _ = server.Serve(lis) }()

	client, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		hub.Close()
		server.Stop()
	})
	return client, svc
}

func TestGRPC_SendAndList(t *testing.T) {
	client, _ := setupServer(t)
	ctx := t.Context()

	reply, err := client.SendMessage(ctx, "Hello", "")
	require.NoError(t, err)
	assert.Equal(t, store.RoleAssistant, reply.Role)
	assert.Equal(t, "claude says: Hello", reply.Content)

	msgs, err := client.ListMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, reply.ID, msgs[1].ID)
	assert.True(t, reply.Timestamp.Equal(msgs[1].Timestamp))
}

func TestGRPC_SendSelectsProvider(t *testing.T) {
	client, _ := setupServer(t)

	reply, err := client.SendMessage(t.Context(), "Hello", "openai")
	require.NoError(t, err)
	assert.Equal(t, "openai says: Hello", reply.Content)
}

func TestGRPC_GetMessage(t *testing.T) {
	client, _ := setupServer(t)
	ctx := t.Context()

	reply, err := client.SendMessage(ctx, "Hello", "")
	require.NoError(t, err)

	got, err := client.GetMessage(ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, reply.ID, got.ID)
	assert.Equal(t, reply.Content, got.Content)

	_, err = client.GetMessage(ctx, "missing")
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.GetMessage(ctx, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPC_ClearMessages(t *testing.T) {
	client, _ := setupServer(t)
	ctx := t.Context()

	_, err := client.SendMessage(ctx, "Hello", "")
	require.NoError(t, err)

	cleared, err := client.ClearMessages(ctx)
	require.NoError(t, err)
	assert.True(t, cleared)

	msgs, err := client.ListMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestGRPC_MessageAddedStream(t *testing.T) {
	client, svc := setupServer(t)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	received := make(chan store.Message, 4)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- client.Watch(ctx, func(m store.Message) error {
			received <- m
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		_, subscribers := svc.Stats()
		return subscribers == 1
	}, 2*time.Second, 10*time.Millisecond, "stream subscriber never registered")

	svc.SendMessage(context.Background(), "ping", "")

	for _, want := range []store.Role{store.RoleUser, store.RoleAssistant} {
		select {
		case m := <-received:
			assert.Equal(t, want, m.Role)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for streamed message")
		}
	}

	cancel()
	select {
	case err := <-watchErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return after cancel")
	}
}

func TestGRPC_WatchStopsOnCallbackError(t *testing.T) {
	client, svc := setupServer(t)

	stop := errors.New("stop")
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- client.Watch(t.Context(), func(store.Message) error { return stop })
	}()

	require.Eventually(t, func() bool {
		_, subscribers := svc.Stats()
		return subscribers == 1
	}, 2*time.Second, 10*time.Millisecond)

	svc.SendMessage(context.Background(), "ping", "")

	select {
	case err := <-watchErr:
		assert.ErrorIs(t, err, stop)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return")
	}
}

func TestJSONCodec_Name(t *testing.T) {
	assert.Equal(t, "json", jsonCodec{}.Name())

	data, err := jsonCodec{}.Marshal(&SendMessageRequest{Content: "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"hi"}`, string(data))
}
