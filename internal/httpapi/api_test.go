// ABOUTME: Tests for the HTTP API's session routes and bearer auth middleware
// ABOUTME: Runs the chi router against a real manager wired with fakes

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatwire/wa-gateway/internal/authstore"
	"github.com/chatwire/wa-gateway/internal/kv"
	"github.com/chatwire/wa-gateway/internal/ledger"
	"github.com/chatwire/wa-gateway/internal/registry"
	"github.com/chatwire/wa-gateway/internal/session"
	"github.com/chatwire/wa-gateway/internal/webhook"
)

type stubClient struct {
	events chan session.Event
	once   sync.Once
}

func (c *stubClient) Events() <-chan session.Event { return c.events }

func (c *stubClient) Disconnect() {
	c.once.Do(func() { close(c.events) })
}

func (c *stubClient) Logout(context.Context) error {
	c.Disconnect()
	return nil
}

type stubDialer struct{}

func (stubDialer) Dial(context.Context, string, *authstore.State) (session.Client, error) {
	return &stubClient{events: make(chan session.Event)}, nil
}

type apiFixture struct {
	registry *registry.Registry
	manager  *session.Manager
	ledger   ledger.Ledger
	server   *httptest.Server
}

func newAPIFixture(t *testing.T, verifier TokenVerifier, auditLog ledger.Ledger) *apiFixture {
	t.Helper()

	reg := registry.New(nil)
	auth := authstore.New(kv.NewMemoryClient())
	pipeline := webhook.NewPipeline(nil, nil)
	manager := session.NewManager(reg, auth, stubDialer{}, pipeline, nil, auditLog, nil, nil)
	t.Cleanup(manager.Close)

	api := New(manager, reg, auditLog, nil)
	server := httptest.NewServer(api.Router(verifier))
	t.Cleanup(server.Close)

	return &apiFixture{registry: reg, manager: manager, ledger: auditLog, server: server}
}

func doRequest(t *testing.T, method, url string, token string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp, body
}

func TestAPI_Health(t *testing.T) {
	f := newAPIFixture(t, nil, nil)

	resp, body := doRequest(t, http.MethodGet, f.server.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestAPI_StartSession(t *testing.T) {
	f := newAPIFixture(t, nil, nil)

	resp, err := http.Post(f.server.URL+"/sessions/s1/start", "application/json", strings.NewReader(`{"owner":"team-a"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var view map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "s1", view["id"])
	assert.Equal(t, "connecting", view["status"])
	assert.Equal(t, "team-a", view["owner"])
}

func TestAPI_StartConflictWhenActive(t *testing.T) {
	f := newAPIFixture(t, nil, nil)
	require.NoError(t, f.manager.Start(context.Background(), "s1", ""))

	resp, body := doRequest(t, http.MethodPost, f.server.URL+"/sessions/s1/start", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body["error"], "already active")
}

func TestAPI_ListSessions(t *testing.T) {
	f := newAPIFixture(t, nil, nil)
	ctx := context.Background()
	require.NoError(t, f.manager.Start(ctx, "alpha", ""))
	require.NoError(t, f.manager.Start(ctx, "beta", ""))

	resp, body := doRequest(t, http.MethodGet, f.server.URL+"/sessions", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	sessions, ok := body["sessions"].([]any)
	require.True(t, ok)
	require.Len(t, sessions, 2)
	first := sessions[0].(map[string]any)
	assert.Equal(t, "alpha", first["id"])
}

func TestAPI_GetSession(t *testing.T) {
	f := newAPIFixture(t, nil, nil)
	require.NoError(t, f.manager.Start(context.Background(), "s1", ""))

	resp, body := doRequest(t, http.MethodGet, f.server.URL+"/sessions/s1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "s1", body["id"])

	resp, _ = doRequest(t, http.MethodGet, f.server.URL+"/sessions/ghost", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_QRRoute(t *testing.T) {
	f := newAPIFixture(t, nil, nil)
	require.NoError(t, f.manager.Start(context.Background(), "s1", ""))

	// No challenge yet.
	resp, _ := doRequest(t, http.MethodGet, f.server.URL+"/sessions/s1/qr", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	f.registry.UpdateQR("s1", "qr-payload")
	resp, body := doRequest(t, http.MethodGet, f.server.URL+"/sessions/s1/qr", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "qr-payload", body["qr"])

	// Once connected the challenge is gone.
	f.registry.MarkConnected("s1")
	resp, _ = doRequest(t, http.MethodGet, f.server.URL+"/sessions/s1/qr", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_DeleteSession(t *testing.T) {
	f := newAPIFixture(t, nil, nil)
	require.NoError(t, f.manager.Start(context.Background(), "s1", ""))

	resp, _ := doRequest(t, http.MethodDelete, f.server.URL+"/sessions/s1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, ok := f.registry.Get("s1")
	assert.False(t, ok)

	// Idempotent.
	resp, _ = doRequest(t, http.MethodDelete, f.server.URL+"/sessions/s1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAPI_Deliveries(t *testing.T) {
	auditLog, err := ledger.NewSQLiteLedger(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = auditLog.Close() })

	f := newAPIFixture(t, nil, auditLog)
	require.NoError(t, auditLog.SaveDelivery(context.Background(), &ledger.Delivery{
		SessionID: "s1",
		RemoteJID: "peer@s.whatsapp.net",
		Message:   "hi",
		MediaJSON: "{}",
		Status:    ledger.StatusDelivered,
	}))

	resp, body := doRequest(t, http.MethodGet, f.server.URL+"/sessions/s1/deliveries", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	deliveries, ok := body["deliveries"].([]any)
	require.True(t, ok)
	require.Len(t, deliveries, 1)
}

func TestAPI_DeliveriesRouteAbsentWithoutLedger(t *testing.T) {
	f := newAPIFixture(t, nil, nil)

	resp, _ := doRequest(t, http.MethodGet, f.server.URL+"/sessions/s1/deliveries", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestAPI_BearerAuth(t *testing.T) {
	secret := []byte("test-secret")
	f := newAPIFixture(t, NewJWTVerifier(secret), nil)

	// Health stays open.
	resp, _ := doRequest(t, http.MethodGet, f.server.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Session routes require a token.
	resp, body := doRequest(t, http.MethodGet, f.server.URL+"/sessions", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "missing bearer token", body["error"])

	good := signToken(t, secret, jwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	resp, _ = doRequest(t, http.MethodGet, f.server.URL+"/sessions", good)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_BearerAuthRejectsBadTokens(t *testing.T) {
	secret := []byte("test-secret")
	f := newAPIFixture(t, NewJWTVerifier(secret), nil)

	wrongKey := signToken(t, []byte("other-secret"), jwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	expired := signToken(t, secret, jwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	noSubject := signToken(t, secret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	for name, token := range map[string]string{
		"wrong key":  wrongKey,
		"expired":    expired,
		"no subject": noSubject,
		"garbage":    "not-a-jwt",
	} {
		resp, _ := doRequest(t, http.MethodGet, f.server.URL+"/sessions", token)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, name)
	}
}

func TestJWTVerifier_Errors(t *testing.T) {
	v := NewJWTVerifier([]byte("secret"))

	_, err := v.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := signToken(t, []byte("secret"), jwt.MapClaims{
		"sub": "x",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	good := signToken(t, []byte("secret"), jwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	sub, err := v.Verify(good)
	require.NoError(t, err)
	assert.Equal(t, "operator", sub)
}
