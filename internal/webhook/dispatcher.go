// ABOUTME: HTTP delivery of normalized webhook payloads to the downstream consumer
// ABOUTME: Bounded retries with backoff, optional HS256 bearer token per delivery

package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 500 * time.Millisecond
	defaultTimeout  = 10 * time.Second

	// tokenLifetime bounds how long a delivery token stays valid. Tokens are
	// minted per delivery, so this only needs to cover the retry window.
	tokenLifetime = 2 * time.Minute
)

// Dispatcher posts normalized messages to a fixed webhook URL. Deliveries
// for different messages may run concurrently and complete out of order;
// ordering is the downstream consumer's concern.
type Dispatcher struct {
	url      string
	secret   []byte // empty disables bearer tokens
	client   *http.Client
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSigningSecret enables HS256 bearer tokens on deliveries, letting the
// consumer verify the payload came from this gateway.
func WithSigningSecret(secret []byte) DispatcherOption {
	return func(d *Dispatcher) { d.secret = secret }
}

// WithHTTPClient overrides the HTTP client (tests use httptest servers).
func WithHTTPClient(client *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.client = client }
}

// WithRetry overrides the attempt count and base backoff.
func WithRetry(attempts int, backoff time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if attempts > 0 {
			d.attempts = attempts
		}
		d.backoff = backoff
	}
}

// NewDispatcher creates a dispatcher delivering to url.
func NewDispatcher(url string, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		url:      url,
		client:   &http.Client{Timeout: defaultTimeout},
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
		logger:   logger.With("component", "dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch posts msg as JSON, retrying on transport errors and 5xx responses
// until the attempt budget is spent. Non-retryable responses (4xx) fail
// immediately: the consumer rejected the payload and a resend won't help.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.backoff * time.Duration(attempt-1)):
			}
		}

		retryable, err := d.post(ctx, msg.Session, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			break
		}
		d.logger.Warn("webhook delivery failed, retrying",
			"session_id", msg.Session,
			"attempt", attempt,
			"error", err,
		)
	}

	return fmt.Errorf("delivering webhook for %s: %w", msg.Session, lastErr)
}

// post performs one delivery attempt. The bool reports whether the failure
// is worth retrying.
func (d *Dispatcher) post(ctx context.Context, sessionID string, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	if len(d.secret) > 0 {
		token, err := d.mintToken(sessionID)
		if err != nil {
			return false, fmt.Errorf("minting delivery token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("webhook endpoint rejected delivery with %d", resp.StatusCode)
	}
}

// mintToken builds a short-lived HS256 token identifying the session the
// delivery belongs to.
func (d *Dispatcher) mintToken(sessionID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": "wa-gateway",
		"sub": sessionID,
		"iat": now.Unix(),
		"exp": now.Add(tokenLifetime).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(d.secret)
}
