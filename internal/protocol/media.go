// ABOUTME: Media extraction backed by the bridge's HTTP media endpoint
// ABOUTME: The bridge decrypts and re-hosts attachment bytes, returning a retrievable URL

package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chatwire/wa-gateway/internal/webhook"
)

// MediaExtractor implements webhook.MediaExtractor against the bridge's
// media endpoint. Extraction is the pipeline's only I/O: the bridge fetches
// the encrypted attachment, decrypts it, and hands back a download URL.
type MediaExtractor struct {
	baseURL string // http:// or https:// base of the bridge
	client  *http.Client
	logger  *slog.Logger
}

// NewMediaExtractor creates an extractor for the bridge at baseURL.
func NewMediaExtractor(baseURL string, logger *slog.Logger) *MediaExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaExtractor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With("component", "media"),
	}
}

// mediaResponse is the bridge's answer for one extraction request.
type mediaResponse struct {
	URL string `json:"url"`
}

// Extract resolves one media kind on an event to a download URL. An event
// without that kind resolves to the empty reference without a round-trip.
func (m *MediaExtractor) Extract(ctx context.Context, sessionID string, kind webhook.MediaKind, evt *webhook.InboundEvent) (string, error) {
	if !hasKind(evt, kind) {
		return "", nil
	}

	url := fmt.Sprintf("%s/sessions/%s/media/%s/%s", m.baseURL, sessionID, kind, evt.Key.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s media: %w", kind, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", nil
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("bridge media endpoint returned %d", resp.StatusCode)
	}

	var body mediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding media response: %w", err)
	}
	return body.URL, nil
}

// hasKind reports whether the event carries the given media kind at all.
func hasKind(evt *webhook.InboundEvent, kind webhook.MediaKind) bool {
	if evt == nil || evt.Content == nil {
		return false
	}
	switch kind {
	case webhook.MediaImage:
		return evt.Content.Image != nil
	case webhook.MediaVideo:
		return evt.Content.Video != nil
	case webhook.MediaDocument:
		return evt.Content.Document != nil
	case webhook.MediaAudio:
		return evt.Content.Audio != nil
	default:
		return false
	}
}
