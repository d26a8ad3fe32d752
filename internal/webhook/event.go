// ABOUTME: Raw inbound protocol event model fed into the webhook pipeline
// ABOUTME: Mirrors the chat network's message shape: one key plus per-kind content parts

package webhook

// EventKey identifies an inbound message and its addressing.
type EventKey struct {
	// RemoteJID is the conversation/sender identifier on the chat network.
	RemoteJID string

	// FromMe marks messages echoed back for this account's own sends.
	FromMe bool

	// ID is the network-assigned message id, unique per session.
	ID string
}

// ExtendedText is rich text content (links, quotes) with a plain body.
type ExtendedText struct {
	Text string
}

// MediaPart is the metadata for one attached media item. The payload itself
// is fetched by the MediaExtractor, not carried on the event.
type MediaPart struct {
	Caption  string
	MimeType string
	FileName string
}

// ContactPart is a shared contact card.
type ContactPart struct {
	DisplayName string
	VCard       string
}

// LocationPart is a static or live location share.
type LocationPart struct {
	Latitude  float64
	Longitude float64
	Comment   string // static location comment, or live-location caption
}

// MessageContent carries the kind-specific payload of an inbound message.
// At most a few of these fields are set on any one event; the pipeline
// probes them in a fixed precedence order.
type MessageContent struct {
	Conversation string
	ExtendedText *ExtendedText
	Image        *MediaPart
	Video        *MediaPart
	Document     *MediaPart
	Audio        *MediaPart
	Contact      *ContactPart
	Location     *LocationPart
	LiveLocation *LocationPart
}

// InboundEvent is one raw protocol message as raised by a session's client.
type InboundEvent struct {
	Key     EventKey
	Content *MessageContent
}
