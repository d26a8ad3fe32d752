// ABOUTME: Ledger interface and data types for webhook delivery audit records
// ABOUTME: Defines Delivery and the Ledger interface for persistence

package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested delivery does not exist.
var ErrNotFound = errors.New("delivery not found")

// Delivery status constants.
const (
	StatusDelivered = "delivered" // webhook endpoint accepted the payload
	StatusFailed    = "failed"    // retries exhausted or endpoint rejected it
)

// Delivery is one webhook dispatch recorded for audit and replay debugging.
type Delivery struct {
	ID        string
	SessionID string
	RemoteJID string
	Message   string // normalized text summary, empty if the event had none
	MediaJSON string // JSON-encoded media reference map, "{}" if none resolved
	Status    string
	Error     string // failure detail when Status is StatusFailed
	CreatedAt time.Time
}

// Ledger persists webhook delivery records.
type Ledger interface {
	// SaveDelivery records one dispatch outcome.
	SaveDelivery(ctx context.Context, d *Delivery) error

	// GetDelivery fetches a record by id. Returns ErrNotFound if absent.
	GetDelivery(ctx context.Context, id string) (*Delivery, error)

	// ListBySession returns the most recent deliveries for a session,
	// newest first, capped at limit.
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*Delivery, error)

	// DeleteBySession removes all records for a session.
	DeleteBySession(ctx context.Context, sessionID string) error

	// Close releases any resources held by the ledger.
	Close() error
}
