// ABOUTME: Normalization of raw inbound events into the stable webhook payload
// ABOUTME: Fixed text precedence plus unconditional extraction of the four media kinds

package webhook

import (
	"context"
	"log/slog"
	"strings"
)

// broadcastMarker appears in the recipient identifier of broadcast-addressed
// messages, which are never delivered downstream.
const broadcastMarker = "broadcast"

// MediaKind names one of the four media slots in the normalized payload.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
	MediaAudio    MediaKind = "audio"
)

// MediaExtractor resolves one media kind on an event to a retrievable
// reference (a URL or content handle). Returning an empty reference means
// the kind is absent. This is the pipeline's only suspend point: an
// implementation typically decrypts and re-hosts the attachment bytes.
type MediaExtractor interface {
	Extract(ctx context.Context, sessionID string, kind MediaKind, evt *InboundEvent) (string, error)
}

// Media holds the four per-kind retrievable references of a normalized
// message. Absent kinds are null in the JSON payload.
type Media struct {
	Image    *string `json:"image"`
	Video    *string `json:"video"`
	Document *string `json:"document"`
	Audio    *string `json:"audio"`
}

// Message is the normalized, transport-agnostic webhook payload.
type Message struct {
	Session string  `json:"session"`
	From    *string `json:"from"`
	Message *string `json:"message"`
	Media   Media   `json:"media"`
}

// Pipeline transforms inbound events into normalized messages. It never
// fails: unsupported or malformed events yield fewer populated fields, and
// suppressed events (own echoes, broadcasts) yield nil.
type Pipeline struct {
	extractor MediaExtractor
	logger    *slog.Logger
}

// NewPipeline creates a pipeline delegating media resolution to extractor.
func NewPipeline(extractor MediaExtractor, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		extractor: extractor,
		logger:    logger.With("component", "webhook"),
	}
}

// Normalize produces the webhook payload for one inbound event, or nil if
// the event is suppressed (fromMe or broadcast-addressed).
func (p *Pipeline) Normalize(ctx context.Context, sessionID string, evt *InboundEvent) *Message {
	if evt == nil || evt.Key.FromMe || strings.Contains(evt.Key.RemoteJID, broadcastMarker) {
		return nil
	}

	msg := &Message{Session: sessionID}
	if evt.Key.RemoteJID != "" {
		from := evt.Key.RemoteJID
		msg.From = &from
	}

	if text := extractText(evt.Content); text != "" {
		msg.Message = &text
	}

	// All four kinds are attempted regardless of which one supplied the
	// text summary above.
	msg.Media.Image = p.extract(ctx, sessionID, MediaImage, evt)
	msg.Media.Video = p.extract(ctx, sessionID, MediaVideo, evt)
	msg.Media.Document = p.extract(ctx, sessionID, MediaDocument, evt)
	msg.Media.Audio = p.extract(ctx, sessionID, MediaAudio, evt)

	return msg
}

// extractText probes the content fields in strict priority order and returns
// the first non-empty match. Callers depend on exactly one field populating
// the summary even for media messages carrying a caption.
func extractText(c *MessageContent) string {
	if c == nil {
		return ""
	}

	probes := []func() string{
		func() string { return c.Conversation },
		func() string {
			if c.ExtendedText != nil {
				return c.ExtendedText.Text
			}
			return ""
		},
		func() string { return caption(c.Image) },
		func() string { return caption(c.Video) },
		func() string { return caption(c.Document) },
		func() string {
			if c.Contact != nil {
				return c.Contact.DisplayName
			}
			return ""
		},
		func() string {
			if c.Location != nil {
				return c.Location.Comment
			}
			return ""
		},
		func() string {
			if c.LiveLocation != nil {
				return c.LiveLocation.Comment
			}
			return ""
		},
	}

	for _, probe := range probes {
		if text := probe(); text != "" {
			return text
		}
	}
	return ""
}

func caption(part *MediaPart) string {
	if part != nil {
		return part.Caption
	}
	return ""
}

// extract resolves one media kind, degrading to absent on any failure.
func (p *Pipeline) extract(ctx context.Context, sessionID string, kind MediaKind, evt *InboundEvent) *string {
	if p.extractor == nil {
		return nil
	}

	ref, err := p.extractor.Extract(ctx, sessionID, kind, evt)
	if err != nil {
		p.logger.Warn("media extraction failed",
			"session_id", sessionID,
			"kind", string(kind),
			"message_id", evt.Key.ID,
			"error", err,
		)
		return nil
	}
	if ref == "" {
		return nil
	}
	return &ref
}
