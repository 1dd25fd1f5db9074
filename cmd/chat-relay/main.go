// ABOUTME: Entry point for chat-relay, a shared conversation relay in front of Claude and OpenAI
// ABOUTME: Dispatches the serve subcommand and small HTTP/gRPC client commands

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/chat-relay/internal/config"
	"github.com/2389/chat-relay/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
       _           _                    _
   ___| |__   __ _| |_      _ __ ___| | __ _ _   _
  / __| '_ \ / _' | __|____| '__/ _ \ |/ _' | | | |
 | (__| | | | (_| | ||_____| | |  __/ | (_| | |_| |
  \___|_| |_|\__,_|\__|    |_|  \___|_|\__,_|\__, |
                                             |___/
`

const usage = `Usage: chat-relay <command>

Commands:
  serve                        Start the relay server
  health                       Check relay health
  messages                     Print the conversation
  send [--provider ID] TEXT    Send a message and print the reply
  clear                        Clear the conversation
  watch                        Stream new messages over gRPC
  version                      Print version information
`

// getConfigPath returns the path to the relay config file.
// Priority: CHAT_RELAY_CONFIG env var > XDG_CONFIG_HOME/chat-relay/config.yaml > ~/.config/chat-relay/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CHAT_RELAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "chat-relay", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	case "messages":
		err = runMessages(ctx, os.Stdout)
	case "send":
		err = runSend(ctx, args, os.Stdout)
	case "clear":
		err = runClear(ctx)
	case "watch":
		err = runWatch(ctx, os.Stdout)
	case "version":
		fmt.Print(versionTable())
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when it does not exist.
func loadConfig() (*config.Config, string, bool, error) {
	configPath := getConfigPath()
	cfg, found, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, configPath, false, fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, found, nil
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, found, err := loadConfig()
	if err != nil {
		return err
	}

	logger, closeLog := setupLogger(cfg.Logging)
	defer closeLog()

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	if found {
		fmt.Printf("Config:    %s\n", configPath)
	} else {
		fmt.Print("Config:    ")
		yellow.Printf("defaults (%s not found)\n", configPath)
	}
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	if cfg.Server.GRPCAddr != "" {
		fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCAddr)
	} else {
		fmt.Print("gRPC:      ")
		gray.Println("disabled")
	}
	green.Print("    ▶ ")
	fmt.Printf("Provider:  %s\n", cfg.Providers.Default)
	for _, p := range []struct {
		name string
		key  string
	}{
		{config.ProviderClaude, cfg.Providers.Claude.APIKey},
		{config.ProviderOpenAI, cfg.Providers.OpenAI.APIKey},
	} {
		if p.key == "" {
			yellow.Printf("    ! %s has no API key; replies will be demo text\n", p.name)
		}
	}

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	if cfg.Audit.Path != "" {
		green.Print("    ▶ ")
		fmt.Printf("Audit:     %s\n", cfg.Audit.Path)
	}

	fmt.Println()

	logger.Info("starting chat-relay",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
		"default_provider", cfg.Providers.Default,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}
