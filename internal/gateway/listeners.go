// ABOUTME: Listener setup for the gateway: loopback/LAN TCP or a tsnet node on the tailnet
// ABOUTME: The gRPC listener is nil when the gRPC surface is disabled

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"tailscale.com/tsnet"
)

// Fixed ports on the tailnet node
const (
	tailnetHTTPPort = ":80"
	tailnetGRPCPort = ":50051"
)

type listeners struct {
	http net.Listener
	grpc net.Listener // nil when gRPC is disabled
}

func (l listeners) close() {
	for _, ln := range []net.Listener{l.http, l.grpc} {
		if ln != nil {
			_ = ln.Close()
		}
	}
}

// listen opens the gateway's listeners on the tailnet or on plain TCP.
func (g *Gateway) listen(ctx context.Context) (listeners, error) {
	if g.config.Tailscale.Enabled {
		g.logger.Warn("server.http_addr and server.grpc_addr are ignored when tailscale is enabled",
			"http_addr", g.config.Server.HTTPAddr,
			"grpc_addr", g.config.Server.GRPCAddr,
		)
		return g.listenTailnet(ctx)
	}
	return g.listenTCP()
}

func (g *Gateway) listenTCP() (listeners, error) {
	g.logger.Info("starting gateway",
		"http_addr", g.config.Server.HTTPAddr,
		"grpc_addr", g.config.Server.GRPCAddr,
	)
	return openListeners(net.Listen, g.config.Server.HTTPAddr, g.config.Server.GRPCAddr, g.grpcServer != nil)
}

// openListeners opens HTTP and (optionally) gRPC listeners with listenFn,
// closing whatever was opened if a later listen fails.
func openListeners(listenFn func(network, addr string) (net.Listener, error), httpAddr, grpcAddr string, withGRPC bool) (listeners, error) {
	var ls listeners
	var err error

	ls.http, err = listenFn("tcp", httpAddr)
	if err != nil {
		return listeners{}, fmt.Errorf("listening on HTTP address: %w", err)
	}
	if withGRPC {
		ls.grpc, err = listenFn("tcp", grpcAddr)
		if err != nil {
			ls.close()
			return listeners{}, fmt.Errorf("listening on gRPC address: %w", err)
		}
	}
	return ls, nil
}

// listenTailnet brings up a tsnet node and listens on it.
func (g *Gateway) listenTailnet(ctx context.Context) (listeners, error) {
	ts := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(ts.StateDir)
	if err != nil {
		return listeners{}, err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return listeners{}, fmt.Errorf("creating tailscale state dir: %w", err)
	}
	authKey, err := resolveTailscaleAuthKey(ts.AuthKey)
	if err != nil {
		return listeners{}, err
	}

	node := &tsnet.Server{
		Hostname:  ts.Hostname,
		Dir:       stateDir,
		Ephemeral: ts.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", ts.Hostname, "state_dir", stateDir, "ephemeral", ts.Ephemeral)
	status, err := node.Up(ctx)
	if err != nil {
		_ = node.Close()
		return listeners{}, fmt.Errorf("starting tailscale: %w", err)
	}

	var ip, dnsName string
	if len(status.TailscaleIPs) > 0 {
		ip = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", ts.Hostname, "tailscale_ip", ip, "dns_name", dnsName)

	ls, err := openListeners(node.Listen, tailnetHTTPPort, tailnetGRPCPort, g.grpcServer != nil)
	if err != nil {
		_ = node.Close()
		return listeners{}, err
	}
	g.tsnetServer = node
	return ls, nil
}

// resolveTailscaleStateDir returns the configured state dir or the per-user default.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir): %w", err)
	}
	return filepath.Join(home, ".local", "share", "chat-relay", "tailscale"), nil
}

// resolveTailscaleAuthKey prefers the configured key, then TS_AUTHKEY.
func resolveTailscaleAuthKey(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if key := os.Getenv("TS_AUTHKEY"); key != "" {
		return key, nil
	}
	return "", errors.New("tailscale auth key required: set tailscale.auth_key or TS_AUTHKEY")
}
