// Package config handles configuration loading for wa-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from WA_GATEWAY_CONFIG environment variable
//  2. ./gateway.yaml (current directory)
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  api_secret: "${WA_API_SECRET}"
//
// Syntax: ${VAR_NAME} or $VAR_NAME
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sessions:
//	  retention: "168h"
//	  dedupe_window: "10m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Protocol bridge:
//
//	bridge:
//	  ws_url: "ws://127.0.0.1:8900"
//	  http_url: "http://127.0.0.1:8900"
//
// Auth state backend:
//
//	backend:
//	  kind: "redis"            # redis or memory
//	  redis:
//	    addr: "127.0.0.1:6379"
//	    password: "${REDIS_PASSWORD}"
//	    db: 0
//
// Webhook delivery:
//
//	webhook:
//	  url: "https://consumer.example.com/inbound"
//	  secret: "${WA_WEBHOOK_SECRET}"
//	  attempts: 3
//	  backoff: "2s"
//
// Delivery ledger:
//
//	ledger:
//	  enabled: true
//	  path: "/var/lib/wa-gateway/ledger.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Server listen address presence
//   - Bridge stream URL presence
//   - Redis address when the redis backend is selected
//   - Ledger path when the ledger is enabled
//   - Duration format validity
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
