// ABOUTME: Entry point for the wa-gateway session multiplexer
// ABOUTME: Wires the kv backend, auth store, registry, webhook flow, and HTTP API

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatwire/wa-gateway/internal/authstore"
	"github.com/chatwire/wa-gateway/internal/config"
	"github.com/chatwire/wa-gateway/internal/dedupe"
	"github.com/chatwire/wa-gateway/internal/httpapi"
	"github.com/chatwire/wa-gateway/internal/kv"
	"github.com/chatwire/wa-gateway/internal/ledger"
	"github.com/chatwire/wa-gateway/internal/protocol"
	"github.com/chatwire/wa-gateway/internal/registry"
	"github.com/chatwire/wa-gateway/internal/session"
	"github.com/chatwire/wa-gateway/internal/webhook"
)

// Version is set by goreleaser at build time.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: wa-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the gateway server")
		fmt.Println("  health    Check gateway health")
		fmt.Println("  version   Print the version")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "wa-gateway: %v\n", err)
			os.Exit(1)
		}
	case "health":
		if err := runHealth(); err != nil {
			fmt.Fprintf(os.Stderr, "wa-gateway: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(1)
	}
}

// getConfigPath returns the path to the gateway config file.
// Priority: WA_GATEWAY_CONFIG env var > ./gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("WA_GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}
	return "gateway.yaml"
}

func runServe() error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	setupLogging(cfg.Logging)
	logger := slog.Default()
	logger.Info("starting wa-gateway", "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg.Backend)
	if err != nil {
		return err
	}
	defer backend.Close()

	auth := authstore.New(backend, authstore.WithRetention(cfg.Sessions.Retention))
	reg := registry.New(logger)

	var auditLog ledger.Ledger
	if cfg.Ledger.Enabled {
		sqlLedger, err := ledger.NewSQLiteLedger(cfg.Ledger.Path)
		if err != nil {
			return fmt.Errorf("opening ledger: %w", err)
		}
		defer sqlLedger.Close()
		auditLog = sqlLedger
	}

	bridgeHTTP := cfg.Bridge.HTTPURL
	extractor := protocol.NewMediaExtractor(bridgeHTTP, logger)
	pipeline := webhook.NewPipeline(extractor, logger)

	var dispatcher *webhook.Dispatcher
	if cfg.Webhook.URL != "" {
		var opts []webhook.DispatcherOption
		if cfg.Webhook.Secret != "" {
			opts = append(opts, webhook.WithSigningSecret([]byte(cfg.Webhook.Secret)))
		}
		if cfg.Webhook.Attempts > 0 || cfg.Webhook.Backoff > 0 {
			opts = append(opts, webhook.WithRetry(cfg.Webhook.Attempts, cfg.Webhook.Backoff))
		}
		dispatcher = webhook.NewDispatcher(cfg.Webhook.URL, logger, opts...)
	}

	seen := dedupe.New(cfg.Sessions.DedupeWindow, cfg.Sessions.DedupeMaxSize)
	defer seen.Close()

	connector := protocol.NewConnector(cfg.Bridge.WSURL, logger)
	manager := session.NewManager(reg, auth, connector, pipeline, dispatcher, auditLog, seen, logger)
	defer manager.Close()

	var verifier httpapi.TokenVerifier
	if cfg.Auth.APISecret != "" {
		verifier = httpapi.NewJWTVerifier([]byte(cfg.Auth.APISecret))
	}
	api := httpapi.New(manager, reg, auditLog, logger)

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Router(verifier),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openBackend constructs the configured kv client.
func openBackend(ctx context.Context, cfg config.BackendConfig) (kv.Client, error) {
	switch cfg.Kind {
	case "memory":
		slog.Warn("using volatile in-memory backend; sessions will not survive restarts")
		return kv.NewMemoryClient(), nil
	default:
		client, err := kv.NewRedisClient(ctx, kv.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return client, nil
	}
}

// runHealth hits the local health endpoint and reports the result.
func runHealth() error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resp, err := http.Get("http://" + cfg.Server.HTTPAddr + "/healthz")
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var status map[string]string
	if err := json.Unmarshal(body, &status); err != nil || status["status"] != "ok" {
		return fmt.Errorf("gateway unhealthy: %s", string(body))
	}
	fmt.Println("ok")
	return nil
}

// setupLogging configures the default slog logger from config.
func setupLogging(cfg config.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
