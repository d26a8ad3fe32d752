// ABOUTME: Session manager coordinating auth state, lifecycle registry, and webhook flow
// ABOUTME: One event-loop goroutine per session keeps per-session writes in submission order

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chatwire/wa-gateway/internal/authstore"
	"github.com/chatwire/wa-gateway/internal/dedupe"
	"github.com/chatwire/wa-gateway/internal/ledger"
	"github.com/chatwire/wa-gateway/internal/registry"
	"github.com/chatwire/wa-gateway/internal/webhook"
)

// ErrSessionActive indicates a start was requested for a session that is
// already connecting or connected. Duplicate protocol connections for one
// account corrupt its server-side state, so this is rejected up front.
var ErrSessionActive = errors.New("session already active")

// ErrSessionNotFound indicates the session has no registry record.
var ErrSessionNotFound = errors.New("session not found")

const (
	saveAttempts = 3
	saveBackoff  = 250 * time.Millisecond
)

// running tracks one live session's client and event-loop cancellation.
type running struct {
	client Client
	cancel context.CancelFunc
}

// Manager owns the session-management operations (start/stop/logout/delete)
// and the per-session protocol event loops. Store writes for one session all
// happen on that session's loop goroutine, which gives them submission order
// for free; sessions are fully independent of each other.
type Manager struct {
	registry   *registry.Registry
	auth       *authstore.Store
	dialer     Dialer
	pipeline   *webhook.Pipeline
	dispatcher *webhook.Dispatcher
	ledger     ledger.Ledger
	dedupe     *dedupe.Cache
	logger     *slog.Logger

	mu      sync.Mutex
	active  map[string]*running
	wg      sync.WaitGroup
	baseCtx context.Context
	stop    context.CancelFunc
}

// NewManager wires the session manager. The dispatcher and ledger may be nil
// when webhook delivery or auditing is disabled.
func NewManager(
	reg *registry.Registry,
	auth *authstore.Store,
	dialer Dialer,
	pipeline *webhook.Pipeline,
	dispatcher *webhook.Dispatcher,
	auditLog ledger.Ledger,
	seen *dedupe.Cache,
	logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		registry:   reg,
		auth:       auth,
		dialer:     dialer,
		pipeline:   pipeline,
		dispatcher: dispatcher,
		ledger:     auditLog,
		dedupe:     seen,
		logger:     logger.With("component", "session"),
		active:     make(map[string]*running),
		baseCtx:    ctx,
		stop:       cancel,
	}
}

// Start begins a fresh lifecycle for sessionID: registers it as connecting,
// loads persisted auth state, dials the protocol, and spawns the event loop.
// Starting a session that is already connecting or connected returns
// ErrSessionActive; restarting a disconnected one is allowed.
func (m *Manager) Start(ctx context.Context, sessionID, ownerRef string) error {
	// The status check and the connecting registration must be atomic, or
	// two racing starts both pass the check and both dial.
	m.mu.Lock()
	if current, ok := m.registry.Get(sessionID); ok && current.Status != registry.StatusDisconnected {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrSessionActive, sessionID, current.Status)
	}
	// A dropped connection can leave its entry behind until the event loop
	// notices the stream closed. The new lifecycle supersedes it.
	if old, ok := m.active[sessionID]; ok {
		delete(m.active, sessionID)
		old.client.Disconnect()
		old.cancel()
	}
	m.registry.Start(sessionID, ownerRef)
	m.mu.Unlock()

	state, err := m.auth.CreateForSession(ctx, sessionID)
	if err != nil {
		m.registry.MarkDisconnected(sessionID)
		return fmt.Errorf("loading auth state: %w", err)
	}

	client, err := m.dialer.Dial(ctx, sessionID, state)
	if err != nil {
		m.registry.MarkDisconnected(sessionID)
		return fmt.Errorf("dialing protocol for %s: %w", sessionID, err)
	}

	loopCtx, cancel := context.WithCancel(m.baseCtx)
	run := &running{client: client, cancel: cancel}

	m.mu.Lock()
	m.active[sessionID] = run
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(loopCtx, sessionID, run, state)

	return nil
}

// Stop disconnects a session without logging it out; its persisted state
// remains valid for a later resume.
func (m *Manager) Stop(sessionID string) error {
	run := m.detach(sessionID)
	if run == nil {
		return ErrSessionNotFound
	}
	run.client.Disconnect()
	run.cancel()
	m.registry.MarkDisconnected(sessionID)
	return nil
}

// Logout invalidates the session on the network, then disconnects it.
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	run := m.detach(sessionID)
	if run == nil {
		return ErrSessionNotFound
	}
	err := run.client.Logout(ctx)
	run.cancel()
	m.registry.MarkDisconnected(sessionID)
	if err != nil {
		return fmt.Errorf("logging out %s: %w", sessionID, err)
	}
	return nil
}

// Delete removes every trace of a session: registry record, live connection,
// persisted auth state, dedupe history, and ledger rows. It never waits on
// in-flight store writes; whatever a racing write persists is unreachable
// once the auth state is gone.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	if run := m.detach(sessionID); run != nil {
		run.client.Disconnect()
		run.cancel()
	}

	m.registry.Delete(sessionID)
	if m.dedupe != nil {
		m.dedupe.Forget(sessionID)
	}

	var errs []error
	if err := m.auth.Delete(ctx, sessionID); err != nil {
		errs = append(errs, err)
	}
	if m.ledger != nil {
		if err := m.ledger.DeleteBySession(ctx, sessionID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close disconnects all sessions and waits for their loops to drain.
func (m *Manager) Close() {
	m.mu.Lock()
	for _, run := range m.active {
		run.client.Disconnect()
		run.cancel()
	}
	m.active = make(map[string]*running)
	m.mu.Unlock()

	m.stop()
	m.wg.Wait()
}

// detach removes and returns the running entry for sessionID, if any.
func (m *Manager) detach(sessionID string) *running {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.active[sessionID]
	if !ok {
		return nil
	}
	delete(m.active, sessionID)
	return run
}

// run is the per-session event loop. Everything that must stay ordered for
// one session (registry transitions, credential saves, key writes) happens
// here; only webhook delivery fans out to its own goroutines.
func (m *Manager) run(ctx context.Context, sessionID string, run *running, state *authstore.State) {
	defer m.wg.Done()

	logger := m.logger.With("session_id", sessionID)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-run.client.Events():
			if !ok {
				// Stream closed: the connection is gone for good. A restart
				// may have superseded this loop's entry in the meantime; in
				// that case the new lifecycle owns the registry record and
				// this loop must not touch it.
				if m.detachIf(sessionID, run) {
					m.registry.MarkDisconnected(sessionID)
				}
				return
			}
			m.handleEvent(ctx, sessionID, state, ev, logger)
		}
	}
}

// detachIf removes sessionID's entry only if it still points at run,
// reporting whether it did. A false return means the entry was already
// superseded or removed.
func (m *Manager) detachIf(sessionID string, run *running) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active[sessionID] != run {
		return false
	}
	delete(m.active, sessionID)
	return true
}

func (m *Manager) handleEvent(ctx context.Context, sessionID string, state *authstore.State, ev Event, logger *slog.Logger) {
	switch ev.Type {
	case EventQR:
		m.registry.UpdateQR(sessionID, ev.QR)

	case EventConnected:
		m.registry.MarkConnected(sessionID)
		logger.Info("handshake complete", "jid", ev.JID)

	case EventDisconnected:
		m.registry.MarkDisconnected(sessionID)
		logger.Info("session dropped", "reason", ev.Reason)

	case EventCredentials:
		if err := m.saveCredentials(ctx, sessionID, ev.Credentials); err != nil {
			logger.Error("credential save failed after retries", "error", err)
		}

	case EventKeys:
		if err := state.Keys.Set(ctx, ev.Keys); err != nil {
			logger.Warn("key material write incomplete", "error", err)
		}

	case EventMessage:
		m.handleMessage(ctx, sessionID, ev.Message, logger)
	}
}

// saveCredentials persists a rotated credential blob, retrying on backend
// unavailability. The store surfaces the failure; retry policy lives here.
func (m *Manager) saveCredentials(ctx context.Context, sessionID string, creds authstore.Credentials) error {
	var lastErr error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(saveBackoff * time.Duration(attempt-1)):
			}
		}
		if lastErr = m.auth.SaveCredentials(ctx, sessionID, creds); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

// handleMessage turns one inbound message into at most one webhook delivery.
func (m *Manager) handleMessage(ctx context.Context, sessionID string, evt *webhook.InboundEvent, logger *slog.Logger) {
	if evt == nil {
		return
	}
	if m.dedupe != nil && evt.Key.ID != "" && m.dedupe.Seen(sessionID, evt.Key.ID) {
		logger.Debug("duplicate message ignored", "message_id", evt.Key.ID)
		return
	}

	msg := m.pipeline.Normalize(ctx, sessionID, evt)
	if msg == nil {
		return
	}

	// Deliveries run concurrently and may complete out of order; consumers
	// that need receipt order must impose it themselves.
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.deliver(ctx, msg, logger)
	}()
}

func (m *Manager) deliver(ctx context.Context, msg *webhook.Message, logger *slog.Logger) {
	status := ledger.StatusDelivered
	var deliveryErr string

	if m.dispatcher != nil {
		if err := m.dispatcher.Dispatch(ctx, msg); err != nil {
			status = ledger.StatusFailed
			deliveryErr = err.Error()
			logger.Error("webhook delivery failed", "error", err)
		}
	}

	if m.ledger == nil {
		return
	}

	mediaJSON, err := json.Marshal(msg.Media)
	if err != nil {
		mediaJSON = []byte("{}")
	}
	record := &ledger.Delivery{
		SessionID: msg.Session,
		Status:    status,
		Error:     deliveryErr,
		MediaJSON: string(mediaJSON),
	}
	if msg.From != nil {
		record.RemoteJID = *msg.From
	}
	if msg.Message != nil {
		record.Message = *msg.Message
	}

	if err := m.ledger.SaveDelivery(ctx, record); err != nil {
		logger.Warn("recording delivery failed", "error", err)
	}
}
