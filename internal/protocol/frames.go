// ABOUTME: JSON frame definitions for the bridge stream and their translation to session events
// ABOUTME: Message frames mirror the chat network's field naming (remoteJid, fromMe, captions)

package protocol

import (
	"encoding/base64"
	"encoding/json"

	"github.com/chatwire/wa-gateway/internal/authstore"
	"github.com/chatwire/wa-gateway/internal/session"
	"github.com/chatwire/wa-gateway/internal/webhook"
)

// helloFrame is the first frame sent after connecting: the persisted
// credentials the bridge resumes from.
type helloFrame struct {
	Credentials json.RawMessage `json:"credentials,omitempty"`
}

// commandFrame is a gateway-to-bridge control message.
type commandFrame struct {
	Command string `json:"command"`
}

// frame is one bridge-to-gateway event.
type frame struct {
	Type        string                         `json:"type"`
	QR          string                         `json:"qr,omitempty"`
	JID         string                         `json:"jid,omitempty"`
	Reason      string                         `json:"reason,omitempty"`
	Credentials json.RawMessage                `json:"credentials,omitempty"`
	Keys        map[string]map[string]keyFrame `json:"keys,omitempty"`
	Message     *messageFrame                  `json:"message,omitempty"`
}

// keyFrame carries one signal key entry: structured entries in "json",
// binary entries base64-encoded in "raw".
type keyFrame struct {
	JSON json.RawMessage `json:"json,omitempty"`
	Raw  string          `json:"raw,omitempty"`
}

// messageFrame mirrors the network's inbound message shape.
type messageFrame struct {
	Key struct {
		RemoteJID string `json:"remoteJid"`
		FromMe    bool   `json:"fromMe"`
		ID        string `json:"id"`
	} `json:"key"`
	Content *struct {
		Conversation string `json:"conversation,omitempty"`
		ExtendedText *struct {
			Text string `json:"text"`
		} `json:"extendedTextMessage,omitempty"`
		Image        *mediaFrame   `json:"imageMessage,omitempty"`
		Video        *mediaFrame   `json:"videoMessage,omitempty"`
		Document     *mediaFrame   `json:"documentMessage,omitempty"`
		Audio        *mediaFrame   `json:"audioMessage,omitempty"`
		Contact      *contactFrame `json:"contactMessage,omitempty"`
		Location     *locFrame     `json:"locationMessage,omitempty"`
		LiveLocation *locFrame     `json:"liveLocationMessage,omitempty"`
	} `json:"message,omitempty"`
}

type mediaFrame struct {
	Caption  string `json:"caption,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

type contactFrame struct {
	DisplayName string `json:"displayName,omitempty"`
	VCard       string `json:"vcard,omitempty"`
}

type locFrame struct {
	Latitude  float64 `json:"degreesLatitude,omitempty"`
	Longitude float64 `json:"degreesLongitude,omitempty"`
	Comment   string  `json:"comment,omitempty"`
	Caption   string  `json:"caption,omitempty"`
}

// translate converts a bridge frame into a session event. Unknown frame
// types are skipped so bridge upgrades don't break older gateways.
func translate(f frame) (session.Event, bool) {
	switch f.Type {
	case "qr":
		return session.Event{Type: session.EventQR, QR: f.QR}, true
	case "connected":
		return session.Event{Type: session.EventConnected, JID: f.JID}, true
	case "disconnected":
		return session.Event{Type: session.EventDisconnected, Reason: f.Reason}, true
	case "credentials":
		return session.Event{
			Type:        session.EventCredentials,
			Credentials: authstore.Credentials(f.Credentials),
		}, true
	case "keys":
		return session.Event{Type: session.EventKeys, Keys: translateKeys(f.Keys)}, true
	case "message":
		if f.Message == nil {
			return session.Event{}, false
		}
		return session.Event{Type: session.EventMessage, Message: translateMessage(f.Message)}, true
	default:
		return session.Event{}, false
	}
}

func translateKeys(frames map[string]map[string]keyFrame) map[string]map[string]authstore.KeyEntry {
	entries := make(map[string]map[string]authstore.KeyEntry, len(frames))
	for keyType, byID := range frames {
		typed := make(map[string]authstore.KeyEntry, len(byID))
		for id, kf := range byID {
			if kf.Raw != "" {
				decoded, err := base64.StdEncoding.DecodeString(kf.Raw)
				if err != nil {
					continue
				}
				typed[id] = authstore.BinaryEntry(decoded)
				continue
			}
			if len(kf.JSON) > 0 {
				typed[id] = authstore.JSONEntry(kf.JSON)
			}
		}
		if len(typed) > 0 {
			entries[keyType] = typed
		}
	}
	return entries
}

func translateMessage(mf *messageFrame) *webhook.InboundEvent {
	evt := &webhook.InboundEvent{
		Key: webhook.EventKey{
			RemoteJID: mf.Key.RemoteJID,
			FromMe:    mf.Key.FromMe,
			ID:        mf.Key.ID,
		},
	}
	if mf.Content == nil {
		return evt
	}

	content := &webhook.MessageContent{Conversation: mf.Content.Conversation}
	if mf.Content.ExtendedText != nil {
		content.ExtendedText = &webhook.ExtendedText{Text: mf.Content.ExtendedText.Text}
	}
	content.Image = translateMedia(mf.Content.Image)
	content.Video = translateMedia(mf.Content.Video)
	content.Document = translateMedia(mf.Content.Document)
	content.Audio = translateMedia(mf.Content.Audio)
	if mf.Content.Contact != nil {
		content.Contact = &webhook.ContactPart{
			DisplayName: mf.Content.Contact.DisplayName,
			VCard:       mf.Content.Contact.VCard,
		}
	}
	if mf.Content.Location != nil {
		content.Location = &webhook.LocationPart{
			Latitude:  mf.Content.Location.Latitude,
			Longitude: mf.Content.Location.Longitude,
			Comment:   mf.Content.Location.Comment,
		}
	}
	if mf.Content.LiveLocation != nil {
		content.LiveLocation = &webhook.LocationPart{
			Latitude:  mf.Content.LiveLocation.Latitude,
			Longitude: mf.Content.LiveLocation.Longitude,
			Comment:   mf.Content.LiveLocation.Caption,
		}
	}
	evt.Content = content
	return evt
}

func translateMedia(mf *mediaFrame) *webhook.MediaPart {
	if mf == nil {
		return nil
	}
	return &webhook.MediaPart{
		Caption:  mf.Caption,
		MimeType: mf.MimeType,
		FileName: mf.FileName,
	}
}
