// ABOUTME: Protocol client contract and the event stream it raises per session
// ABOUTME: The wire protocol itself lives behind the Dialer; this package only consumes events

package session

import (
	"context"

	"github.com/chatwire/wa-gateway/internal/authstore"
	"github.com/chatwire/wa-gateway/internal/webhook"
)

// EventType indicates the kind of protocol event.
type EventType int

const (
	// EventQR carries a new pairing challenge while connecting.
	EventQR EventType = iota

	// EventConnected signals a successful handshake.
	EventConnected

	// EventDisconnected signals a protocol logout or transport failure.
	EventDisconnected

	// EventCredentials signals the protocol library rotated the session's
	// credential blob and it must be persisted.
	EventCredentials

	// EventKeys carries rotated or newly issued signal key material.
	EventKeys

	// EventMessage carries one raw inbound user message.
	EventMessage
)

// Event is one protocol event raised by a session's client. Only the fields
// matching Type are set.
type Event struct {
	Type EventType

	QR          string                                    // EventQR
	JID         string                                    // EventConnected: the account's own identifier
	Reason      string                                    // EventDisconnected
	Credentials authstore.Credentials                     // EventCredentials
	Keys        map[string]map[string]authstore.KeyEntry  // EventKeys, keyed type -> id -> entry
	Message     *webhook.InboundEvent                     // EventMessage
}

// Client is one live protocol connection. Implementations wrap the actual
// chat-network library; this package never touches the wire.
type Client interface {
	// Events returns the client's event stream. The channel closes when the
	// connection is torn down for good.
	Events() <-chan Event

	// Disconnect tears the connection down without logging out; the session
	// can resume later from its persisted state.
	Disconnect()

	// Logout invalidates the session on the network, then disconnects.
	Logout(ctx context.Context) error
}

// Dialer opens protocol connections from persisted auth state. Empty
// credentials in the state start a fresh pairing (QR events follow).
type Dialer interface {
	Dial(ctx context.Context, sessionID string, state *authstore.State) (Client, error)
}
