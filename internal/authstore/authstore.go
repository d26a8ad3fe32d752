// ABOUTME: Durable per-session persistence of protocol credentials and signal key material
// ABOUTME: Backed by the kv.Client with a sliding 7-day retention window

package authstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatwire/wa-gateway/internal/kv"
)

const (
	credsKeyPrefix = "auth:creds:"
	keysKeyPrefix  = "auth:keys:"

	// DefaultRetention is the sliding credential lifetime: every successful
	// SaveCredentials resets the expiry to now + retention.
	DefaultRetention = 7 * 24 * time.Hour
)

// Credentials is the opaque protocol identity blob for one session. The store
// never inspects it; it is written and read back verbatim. An empty blob
// means the session has never paired (or its state expired).
type Credentials []byte

// State is everything a protocol client needs to resume a session: the
// credentials blob and a key accessor bound to the same session.
type State struct {
	Credentials Credentials
	Keys        *Keys
}

// Store persists session auth state in the key-value backend under the
// auth:creds:{id} and auth:keys:{id} namespaces. Safe for concurrent use
// across sessions; per-session write ordering is the caller's concern.
type Store struct {
	kv        kv.Client
	retention time.Duration
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRetention overrides the sliding credential retention window.
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// WithLogger overrides the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a Store on top of an injected kv client.
func New(client kv.Client, opts ...Option) *Store {
	s := &Store{
		kv:        client,
		retention: DefaultRetention,
		logger:    slog.Default().With("component", "authstore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches the credentials blob for sessionID and returns it together
// with a key accessor bound to the session. An absent blob is not an error:
// the returned credentials are simply empty, which signals a fresh pairing.
// Backend unavailability propagates so the caller can retry.
func (s *Store) Load(ctx context.Context, sessionID string) (*State, error) {
	state := &State{Keys: &Keys{store: s, sessionID: sessionID}}

	raw, err := s.kv.Get(ctx, credsKeyPrefix+sessionID)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return state, nil
	case err != nil:
		return nil, fmt.Errorf("loading credentials for %s: %w", sessionID, err)
	}

	state.Credentials = Credentials(raw)
	return state, nil
}

// CreateForSession prepares auth state for a session's first use. It is Load
// by another name: nothing is written until the first SaveCredentials or
// Keys.Set call.
func (s *Store) CreateForSession(ctx context.Context, sessionID string) (*State, error) {
	return s.Load(ctx, sessionID)
}

// SaveCredentials atomically replaces the credentials blob for sessionID and
// resets its expiry to now + retention. The key-material hash is refreshed to
// the same deadline so both halves of the session state expire together.
func (s *Store) SaveCredentials(ctx context.Context, sessionID string, creds Credentials) error {
	if err := s.kv.Set(ctx, credsKeyPrefix+sessionID, string(creds), s.retention); err != nil {
		return fmt.Errorf("saving credentials for %s: %w", sessionID, err)
	}

	if err := s.kv.ExpireIn(ctx, keysKeyPrefix+sessionID, s.retention); err != nil {
		// The credentials write already succeeded; a failed TTL refresh on
		// the key hash only delays its expiry until the next save.
		s.logger.Warn("refreshing key hash TTL failed",
			"session_id", sessionID,
			"error", err,
		)
	}

	return nil
}

// Delete removes all stored auth state for sessionID. Deleting an unknown
// session is a no-op.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.kv.Del(ctx, credsKeyPrefix+sessionID, keysKeyPrefix+sessionID); err != nil {
		return fmt.Errorf("deleting auth state for %s: %w", sessionID, err)
	}
	return nil
}
