// Package config handles configuration loading for chat-relay.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable expansion.
// Missing values receive defaults; when no file exists at all, Default() is used
// and provider credentials are read from ANTHROPIC_API_KEY and OPENAI_API_KEY.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CHAT_RELAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/chat-relay/config.yaml
//  3. ~/.config/chat-relay/config.yaml
//
// # Environment Variable Expansion
//
//	providers:
//	  claude:
//	    api_key: "${ANTHROPIC_API_KEY}"
//
// An unset variable expands to the empty string. A provider without a key is
// not an error: it answers every message with a demo response.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//	  grpc_addr: "127.0.0.1:50051"   # empty disables gRPC
//
//	providers:
//	  default: "claude"              # claude, openai
//	  claude:
//	    api_key: "${ANTHROPIC_API_KEY}"
//	    model: "claude-3-5-sonnet-20241022"
//	    max_tokens: 1024
//	    timeout: "60s"
//	  openai:
//	    api_key: "${OPENAI_API_KEY}"
//	    model: "gpt-4"
//
//	broadcast:
//	  max_backlog: 0                 # 0 = unbounded per-subscriber backlog
//
//	audit:
//	  path: ""                       # SQLite ledger, empty disables
//
//	logging:
//	  level: "info"                  # debug, info, warn, error
//	  format: "text"                 # text, json
//	  file: ""                       # rotated log file, empty = stdout
//
// # Usage
//
//	cfg, found, err := config.LoadOrDefault(path)
package config
