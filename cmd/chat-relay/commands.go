// ABOUTME: Client subcommands that talk to a running relay over HTTP or gRPC
// ABOUTME: health, messages, send, clear and watch

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gosuri/uitable"

	"github.com/2389/chat-relay/internal/gateway"
	"github.com/2389/chat-relay/internal/rpc"
	"github.com/2389/chat-relay/internal/store"
)

const contentColWidth = 72

// httpBase returns the relay's HTTP base URL from the config file.
func httpBase() (string, error) {
	cfg, _, _, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Server.HTTPAddr == "" {
		return "", errors.New("server.http_addr is not set")
	}
	return "http://" + cfg.Server.HTTPAddr, nil
}

// doJSON performs a request and decodes a JSON response into out (if non-nil).
// Non-2xx responses are turned into errors carrying the server's message.
func doJSON(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func runHealth(ctx context.Context) error {
	base, err := httpBase()
	if err != nil {
		return err
	}
	return checkHealth(ctx, base, os.Stdout)
}

func checkHealth(ctx context.Context, base string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health/ready", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	fmt.Fprintf(w, "healthy: %s\n", body)
	return nil
}

func runMessages(ctx context.Context, w io.Writer) error {
	base, err := httpBase()
	if err != nil {
		return err
	}
	return listMessages(ctx, base, w)
}

func listMessages(ctx context.Context, base string, w io.Writer) error {
	var resp gateway.ListMessagesResponse
	if err := doJSON(ctx, http.MethodGet, base+"/api/messages", nil, &resp); err != nil {
		return err
	}

	msgs := make([]store.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		msgs = append(msgs, m.Message)
	}
	fmt.Fprint(w, messageTable(msgs))
	return nil
}

// messageTable renders messages as ROLE TIME CONTENT rows.
func messageTable(msgs []store.Message) string {
	if len(msgs) == 0 {
		return "no messages\n"
	}

	table := uitable.New()
	table.MaxColWidth = contentColWidth
	table.Wrap = true
	table.AddRow("ROLE", "TIME", "CONTENT")
	for _, m := range msgs {
		table.AddRow(string(m.Role), m.Timestamp.Local().Format(time.TimeOnly), m.Content)
	}
	return table.String() + "\n"
}

func runSend(ctx context.Context, args []string, w io.Writer) error {
	content, providerID, err := parseSendArgs(args)
	if err != nil {
		return err
	}
	base, err := httpBase()
	if err != nil {
		return err
	}
	return sendMessage(ctx, base, content, providerID, w)
}

// parseSendArgs accepts [--provider ID] TEXT...; the remaining words are joined.
func parseSendArgs(args []string) (content, providerID string, err error) {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&providerID, "provider", "", "provider id (claude or openai)")
	if err := fs.Parse(args); err != nil {
		return "", "", fmt.Errorf("parsing send flags: %w", err)
	}
	if fs.NArg() == 0 {
		return "", "", errors.New("usage: chat-relay send [--provider ID] TEXT")
	}
	return strings.Join(fs.Args(), " "), providerID, nil
}

func sendMessage(ctx context.Context, base, content, providerID string, w io.Writer) error {
	var reply gateway.MessageResponse
	req := map[string]string{"content": content}
	if providerID != "" {
		req["provider"] = providerID
	}
	if err := doJSON(ctx, http.MethodPost, base+"/api/messages", req, &reply); err != nil {
		return err
	}
	fmt.Fprintln(w, reply.Content)
	return nil
}

func runClear(ctx context.Context) error {
	base, err := httpBase()
	if err != nil {
		return err
	}
	if err := doJSON(ctx, http.MethodDelete, base+"/api/messages", nil, nil); err != nil {
		return err
	}
	fmt.Println("cleared")
	return nil
}

func runWatch(ctx context.Context, w io.Writer) error {
	cfg, _, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Server.GRPCAddr == "" {
		return errors.New("watch needs the gRPC surface: set server.grpc_addr")
	}

	client, err := rpc.Dial(cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}
	defer client.Close()

	return watchMessages(ctx, client, w)
}

func watchMessages(ctx context.Context, client *rpc.Client, w io.Writer) error {
	return client.Watch(ctx, func(m store.Message) error {
		_, err := fmt.Fprintf(w, "%s %-9s %s\n", m.Timestamp.Local().Format(time.TimeOnly), m.Role, m.Content)
		return err
	})
}
