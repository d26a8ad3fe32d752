// ABOUTME: Tests for the bridge connector's dial handshake and event stream
// ABOUTME: Runs a fake bridge over httptest with a gorilla websocket upgrader

package protocol

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatwire/wa-gateway/internal/authstore"
	"github.com/chatwire/wa-gateway/internal/session"
	"github.com/chatwire/wa-gateway/internal/webhook"
)

// fakeBridge serves one websocket stream and records what the gateway sends.
type fakeBridge struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	hello    chan helloFrame
	commands chan commandFrame
	send     chan string // raw frames to push to the gateway
}

func newFakeBridge(t *testing.T) *fakeBridge {
	t.Helper()

	b := &fakeBridge{
		hello:    make(chan helloFrame, 1),
		commands: make(chan commandFrame, 4),
		send:     make(chan string, 16),
	}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/stream") {
			http.NotFound(w, r)
			return
		}
		conn, err := b.upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var hello helloFrame
		require.NoError(t, conn.ReadJSON(&hello))
		b.hello <- hello

		go func() {
			for {
				var cmd commandFrame
				if err := conn.ReadJSON(&cmd); err != nil {
					return
				}
				b.commands <- cmd
			}
		}()

		for raw := range b.send {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBridge) wsURL() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

func waitEvent(t *testing.T, events <-chan session.Event) session.Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "event stream closed early")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return session.Event{}
	}
}

func TestConnector_DialSendsResumeState(t *testing.T) {
	bridge := newFakeBridge(t)
	connector := NewConnector(bridge.wsURL(), nil)

	state := &authstore.State{Credentials: authstore.Credentials(`{"noiseKey":"abc"}`)}
	client, err := connector.Dial(context.Background(), "s1", state)
	require.NoError(t, err)
	defer client.Disconnect()

	hello := <-bridge.hello
	assert.JSONEq(t, `{"noiseKey":"abc"}`, string(hello.Credentials))
}

func TestConnector_StreamsTranslatedEvents(t *testing.T) {
	bridge := newFakeBridge(t)
	connector := NewConnector(bridge.wsURL(), nil)

	client, err := connector.Dial(context.Background(), "s1", &authstore.State{})
	require.NoError(t, err)
	defer client.Disconnect()
	<-bridge.hello

	bridge.send <- `{"type":"qr","qr":"challenge-1"}`
	bridge.send <- `{"type":"heartbeat"}`
	bridge.send <- `{"type":"connected","jid":"me@s.whatsapp.net"}`
	bridge.send <- `{"type":"message","message":{"key":{"remoteJid":"peer@s.whatsapp.net","id":"M1"},"message":{"conversation":"hi"}}}`

	ev := waitEvent(t, client.Events())
	assert.Equal(t, session.EventQR, ev.Type)
	assert.Equal(t, "challenge-1", ev.QR)

	// The heartbeat frame has no translation and is skipped.
	ev = waitEvent(t, client.Events())
	assert.Equal(t, session.EventConnected, ev.Type)

	ev = waitEvent(t, client.Events())
	assert.Equal(t, session.EventMessage, ev.Type)
	assert.Equal(t, "hi", ev.Message.Content.Conversation)
}

func TestConnector_LogoutSendsCommand(t *testing.T) {
	bridge := newFakeBridge(t)
	connector := NewConnector(bridge.wsURL(), nil)

	client, err := connector.Dial(context.Background(), "s1", &authstore.State{})
	require.NoError(t, err)
	<-bridge.hello

	require.NoError(t, client.Logout(context.Background()))

	select {
	case cmd := <-bridge.commands:
		assert.Equal(t, "logout", cmd.Command)
	case <-time.After(time.Second):
		t.Fatal("bridge never received the logout command")
	}
}

func TestConnector_LogoutHonorsContextDeadline(t *testing.T) {
	bridge := newFakeBridge(t)
	connector := NewConnector(bridge.wsURL(), nil)

	client, err := connector.Dial(context.Background(), "s1", &authstore.State{})
	require.NoError(t, err)
	<-bridge.hello

	// A deadline already in the past must fail the write instead of blocking.
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- client.Logout(ctx) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("logout blocked past its deadline")
	}

	// The connection is torn down either way.
	select {
	case _, ok := <-client.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("event channel never closed")
	}
}

func TestConnector_ClosedStreamClosesEvents(t *testing.T) {
	bridge := newFakeBridge(t)
	connector := NewConnector(bridge.wsURL(), nil)

	client, err := connector.Dial(context.Background(), "s1", &authstore.State{})
	require.NoError(t, err)
	<-bridge.hello
	close(bridge.send)

	select {
	case _, ok := <-client.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("event channel never closed")
	}
}

func TestConnector_DialFailure(t *testing.T) {
	connector := NewConnector("ws://127.0.0.1:1", nil)
	_, err := connector.Dial(context.Background(), "s1", &authstore.State{})
	assert.Error(t, err)
}

func TestMediaExtractor_ResolvesURL(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(mediaResponse{URL: "https://cdn.example.com/blob/1"})
	}))
	defer server.Close()

	extractor := NewMediaExtractor(server.URL, nil)
	evt := &webhook.InboundEvent{
		Key:     webhook.EventKey{RemoteJID: "peer@s.whatsapp.net", ID: "M1"},
		Content: &webhook.MessageContent{Image: &webhook.MediaPart{MimeType: "image/jpeg"}},
	}

	url, err := extractor.Extract(context.Background(), "s1", webhook.MediaImage, evt)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/blob/1", url)
	assert.Equal(t, "/sessions/s1/media/image/M1", gotPath)
}

func TestMediaExtractor_SkipsAbsentKinds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for a kind the event does not carry")
	}))
	defer server.Close()

	extractor := NewMediaExtractor(server.URL, nil)
	evt := &webhook.InboundEvent{
		Key:     webhook.EventKey{ID: "M1"},
		Content: &webhook.MessageContent{Conversation: "text only"},
	}

	url, err := extractor.Extract(context.Background(), "s1", webhook.MediaVideo, evt)
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestMediaExtractor_NotFoundIsAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	extractor := NewMediaExtractor(server.URL, nil)
	evt := &webhook.InboundEvent{
		Key:     webhook.EventKey{ID: "M1"},
		Content: &webhook.MessageContent{Document: &webhook.MediaPart{FileName: "a.pdf"}},
	}

	url, err := extractor.Extract(context.Background(), "s1", webhook.MediaDocument, evt)
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestMediaExtractor_ServerErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	extractor := NewMediaExtractor(server.URL, nil)
	evt := &webhook.InboundEvent{
		Key:     webhook.EventKey{ID: "M1"},
		Content: &webhook.MessageContent{Audio: &webhook.MediaPart{MimeType: "audio/ogg"}},
	}

	_, err := extractor.Extract(context.Background(), "s1", webhook.MediaAudio, evt)
	assert.Error(t, err)
}
