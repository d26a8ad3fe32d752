// ABOUTME: SQLite implementation of the Ledger interface using modernc.org/sqlite
// ABOUTME: Provides delivery persistence with automatic schema creation

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteLedger implements the Ledger interface using SQLite.
type SQLiteLedger struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteLedger creates a ledger at the given path. The schema is created
// automatically if it doesn't exist, as are parent directories.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	logger := slog.Default().With("component", "ledger")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}

	// WAL keeps concurrent session writers from serializing on the journal.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	l := &SQLiteLedger{db: db, logger: logger}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLedger) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS deliveries (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			remote_jid TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			media_json TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_deliveries_session
			ON deliveries(session_id, created_at DESC);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("creating ledger schema: %w", err)
	}
	return nil
}

// SaveDelivery records one dispatch outcome. An empty ID is filled in.
func (l *SQLiteLedger) SaveDelivery(ctx context.Context, d *Delivery) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.MediaJSON == "" {
		d.MediaJSON = "{}"
	}

	query := `
		INSERT INTO deliveries (id, session_id, remote_jid, message, media_json, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := l.db.ExecContext(ctx, query,
		d.ID,
		d.SessionID,
		d.RemoteJID,
		d.Message,
		d.MediaJSON,
		d.Status,
		d.Error,
		d.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting delivery: %w", err)
	}

	l.logger.Debug("recorded delivery", "id", d.ID, "session_id", d.SessionID, "status", d.Status)
	return nil
}

// GetDelivery fetches one record by id.
func (l *SQLiteLedger) GetDelivery(ctx context.Context, id string) (*Delivery, error) {
	query := `
		SELECT id, session_id, remote_jid, message, media_json, status, error, created_at
		FROM deliveries WHERE id = ?
	`
	d, err := scanDelivery(l.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying delivery: %w", err)
	}
	return d, nil
}

// ListBySession returns the newest deliveries for a session, capped at limit.
func (l *SQLiteLedger) ListBySession(ctx context.Context, sessionID string, limit int) ([]*Delivery, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, session_id, remote_jid, message, media_json, status, error, created_at
		FROM deliveries WHERE session_id = ?
		ORDER BY created_at DESC LIMIT ?
	`
	rows, err := l.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// DeleteBySession removes all records for one session.
func (l *SQLiteLedger) DeleteBySession(ctx context.Context, sessionID string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM deliveries WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("deleting deliveries: %w", err)
	}
	return nil
}

// Close closes the database.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(row rowScanner) (*Delivery, error) {
	var d Delivery
	var createdAt string
	if err := row.Scan(&d.ID, &d.SessionID, &d.RemoteJID, &d.Message, &d.MediaJSON, &d.Status, &d.Error, &createdAt); err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	d.CreatedAt = ts
	return &d, nil
}
