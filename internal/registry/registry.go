// ABOUTME: In-process registry of session lifecycle state (connecting/connected/disconnected)
// ABOUTME: Mutations are linearized per registry; reads return value snapshots only

package registry

import (
	"log/slog"
	"sync"
	"time"
)

// Status is a session's lifecycle state.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Session is a point-in-time snapshot of one registry record. It is always
// returned by value: callers cannot mutate registry state except through the
// named mutators.
type Session struct {
	ID          string
	Status      Status
	OwnerRef    string
	QR          string     // last pairing challenge, only while connecting
	ConnectedAt *time.Time // set on the connecting -> connected transition
}

// record is the internal mutable form of a Session.
type record struct {
	id          string
	status      Status
	ownerRef    string
	qr          string
	connectedAt *time.Time
}

// Registry is the authoritative in-memory map from session id to lifecycle
// record. A single RWMutex linearizes all mutations; List and Get may run
// concurrently with each other and observe a consistent snapshot per call.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*record
	order    []string // session ids in first-registration order
	logger   *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*record),
		logger:   logger.With("component", "registry"),
	}
}

// Start registers a fresh lifecycle for id in the connecting state. An
// existing record is reset in place (re-starting a disconnected session is a
// new lifecycle, not a resume); its position in List is the position the id
// was first seen at. Rejecting a start while connecting/connected is the
// caller's job, so Start itself is unconditional.
func (r *Registry) Start(id, ownerRef string) Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.sessions[id]
	if !exists {
		rec = &record{id: id}
		r.sessions[id] = rec
		r.order = append(r.order, id)
	}
	rec.status = StatusConnecting
	rec.ownerRef = ownerRef
	rec.qr = ""
	rec.connectedAt = nil

	r.logger.Info("session lifecycle started", "session_id", id, "owner", ownerRef)
	return rec.snapshot()
}

// UpdateQR stores a new pairing challenge. This is the connecting state's
// self-transition: a second QR before connect simply replaces the first.
// Any other state makes this a no-op.
func (r *Registry) UpdateQR(id, qr string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[id]
	if !ok || rec.status != StatusConnecting {
		return
	}
	rec.qr = qr
	r.logger.Debug("qr challenge updated", "session_id", id)
}

// MarkConnected applies the connecting -> connected transition: the stored
// QR is cleared and the connect time recorded. Duplicate handshake events
// (or a handshake against a non-connecting record) are no-ops.
func (r *Registry) MarkConnected(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[id]
	if !ok || rec.status != StatusConnecting {
		return
	}
	now := time.Now().UTC()
	rec.status = StatusConnected
	rec.qr = ""
	rec.connectedAt = &now
	r.logger.Info("session connected", "session_id", id)
}

// MarkDisconnected moves a session to disconnected. The transition is
// accepted from every state; disconnected may always be re-entered.
func (r *Registry) MarkDisconnected(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[id]
	if !ok {
		return
	}
	rec.status = StatusDisconnected
	rec.qr = ""
	r.logger.Info("session disconnected", "session_id", id)
}

// Delete removes the record for id entirely, whatever its state. Deleting an
// unknown id is a no-op.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.Info("session removed", "session_id", id)
}

// Get returns a snapshot of the record for id, if present.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return rec.snapshot(), true
}

// List returns snapshots of all records in registration order.
func (r *Registry) List() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]Session, 0, len(r.order))
	for _, id := range r.order {
		if rec, ok := r.sessions[id]; ok {
			sessions = append(sessions, rec.snapshot())
		}
	}
	return sessions
}

// snapshot copies a record into its public value form.
func (rec *record) snapshot() Session {
	s := Session{
		ID:       rec.id,
		Status:   rec.status,
		OwnerRef: rec.ownerRef,
		QR:       rec.qr,
	}
	if rec.connectedAt != nil {
		at := *rec.connectedAt
		s.ConnectedAt = &at
	}
	return s
}
