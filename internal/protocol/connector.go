// ABOUTME: Bridge connector implementing session.Dialer over a websocket event stream
// ABOUTME: The chat-network wire protocol lives in the bridge process, not here

package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatwire/wa-gateway/internal/authstore"
	"github.com/chatwire/wa-gateway/internal/session"
)

// Connector dials per-session event streams on the protocol bridge. The
// bridge owns the handshake, encryption, and framing of the chat network;
// this side only exchanges JSON frames with it.
type Connector struct {
	baseURL string // ws:// or wss:// base, e.g. ws://127.0.0.1:8900
	dialer  *websocket.Dialer
	logger  *slog.Logger
}

// NewConnector creates a connector for the bridge at baseURL.
func NewConnector(baseURL string, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		baseURL: baseURL,
		dialer:  websocket.DefaultDialer,
		logger:  logger.With("component", "protocol"),
	}
}

// Dial opens the bridge stream for sessionID and hands it the persisted
// credentials so it can resume without re-pairing. Empty credentials tell
// the bridge to begin a fresh pairing, which surfaces as QR events.
func (c *Connector) Dial(ctx context.Context, sessionID string, state *authstore.State) (session.Client, error) {
	url := fmt.Sprintf("%s/sessions/%s/stream", c.baseURL, sessionID)

	conn, resp, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("bridge refused stream for %s: %s: %w", sessionID, resp.Status, err)
		}
		return nil, fmt.Errorf("dialing bridge for %s: %w", sessionID, err)
	}

	hello := helloFrame{Credentials: json.RawMessage(state.Credentials)}
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending resume state for %s: %w", sessionID, err)
	}

	client := &bridgeClient{
		sessionID: sessionID,
		conn:      conn,
		events:    make(chan session.Event, 32),
		logger:    c.logger.With("session_id", sessionID),
	}
	go client.readLoop()
	return client, nil
}

// bridgeClient is one live bridge stream implementing session.Client.
type bridgeClient struct {
	sessionID string
	conn      *websocket.Conn
	events    chan session.Event
	logger    *slog.Logger

	closeOnce sync.Once
}

// Events returns the translated event stream. The channel closes when the
// bridge connection drops.
func (b *bridgeClient) Events() <-chan session.Event {
	return b.events
}

// Disconnect closes the stream without logging the session out.
func (b *bridgeClient) Disconnect() {
	b.closeOnce.Do(func() {
		_ = b.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "disconnect"),
			time.Now().Add(time.Second))
		b.conn.Close()
	})
}

// Logout asks the bridge to invalidate the session on the network, then
// disconnects. The write is bounded by ctx's deadline so a stalled bridge
// cannot block the caller.
func (b *bridgeClient) Logout(ctx context.Context) error {
	deadline := time.Now().Add(5 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	_ = b.conn.SetWriteDeadline(deadline)
	err := b.conn.WriteJSON(commandFrame{Command: "logout"})
	b.Disconnect()
	if err != nil {
		return fmt.Errorf("sending logout for %s: %w", b.sessionID, err)
	}
	return nil
}

// readLoop translates bridge frames into session events until the
// connection drops, then closes the event channel.
func (b *bridgeClient) readLoop() {
	defer close(b.events)
	defer b.conn.Close()

	for {
		var f frame
		if err := b.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.Warn("bridge stream dropped", "error", err)
			}
			return
		}

		ev, ok := translate(f)
		if !ok {
			b.logger.Debug("ignoring unknown bridge frame", "type", f.Type)
			continue
		}
		b.events <- ev
	}
}
