// ABOUTME: Thin HTTP surface over the session manager and registry
// ABOUTME: List/get/start/delete/qr session routes plus health, JSON in and out

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chatwire/wa-gateway/internal/ledger"
	"github.com/chatwire/wa-gateway/internal/registry"
	"github.com/chatwire/wa-gateway/internal/session"
)

// API exposes session lifecycle operations over HTTP. All session semantics
// live in the manager and registry; this layer only translates requests.
type API struct {
	manager  *session.Manager
	registry *registry.Registry
	ledger   ledger.Ledger // nil disables the deliveries route
	logger   *slog.Logger
}

// New creates the HTTP API.
func New(manager *session.Manager, reg *registry.Registry, auditLog ledger.Ledger, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		manager:  manager,
		registry: reg,
		ledger:   auditLog,
		logger:   logger.With("component", "httpapi"),
	}
}

// Router builds the route tree. When verifier is non-nil, every session
// route requires a valid bearer token; /healthz stays open for probes.
func (a *API) Router(verifier TokenVerifier) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", a.handleHealth)

	r.Group(func(r chi.Router) {
		if verifier != nil {
			r.Use(BearerAuth(verifier))
		}
		r.Get("/sessions", a.handleList)
		r.Post("/sessions/{id}/start", a.handleStart)
		r.Get("/sessions/{id}", a.handleGet)
		r.Get("/sessions/{id}/qr", a.handleQR)
		r.Delete("/sessions/{id}", a.handleDelete)
		if a.ledger != nil {
			r.Get("/sessions/{id}/deliveries", a.handleDeliveries)
		}
	})

	return r
}

// sessionView is the wire form of a registry snapshot.
type sessionView struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Owner       string     `json:"owner,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
}

func toView(s registry.Session) sessionView {
	return sessionView{
		ID:          s.ID,
		Status:      string(s.Status),
		Owner:       s.OwnerRef,
		ConnectedAt: s.ConnectedAt,
	}
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleList(w http.ResponseWriter, _ *http.Request) {
	sessions := a.registry.List()
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, toView(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, ok := a.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, toView(s))
}

func (a *API) handleQR(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, ok := a.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if s.Status != registry.StatusConnecting || s.QR == "" {
		writeError(w, http.StatusNotFound, "no pairing challenge available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "qr": s.QR})
}

// startRequest is the optional body of a start call.
type startRequest struct {
	Owner string `json:"owner"`
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req startRequest
	if r.Body != nil {
		// Body is optional; decode errors on an empty body are fine.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := a.manager.Start(r.Context(), id, req.Owner); err != nil {
		if errors.Is(err, session.ErrSessionActive) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		a.logger.Error("session start failed", "session_id", id, "error", err)
		writeError(w, http.StatusBadGateway, "session start failed")
		return
	}

	s, _ := a.registry.Get(id)
	writeJSON(w, http.StatusAccepted, toView(s))
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.manager.Delete(r.Context(), id); err != nil {
		a.logger.Error("session delete incomplete", "session_id", id, "error", err)
		writeError(w, http.StatusBadGateway, "session delete incomplete")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deliveries, err := a.ledger.ListBySession(r.Context(), id, 50)
	if err != nil {
		a.logger.Error("listing deliveries failed", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "listing deliveries failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deliveries": deliveries})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
