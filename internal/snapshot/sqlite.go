// ABOUTME: SQLite-backed snapshot sink: append-only JSON rows for offline inspection.
// ABOUTME: Pure-Go driver, so snapshot files work without cgo toolchains.

package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	taken_at        TEXT NOT NULL,
	payload         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_conversation ON snapshots(conversation_id);
`

// SQLiteSink appends snapshots to a SQLite file, one JSON payload per row.
// Rows are never updated or deleted.
type SQLiteSink struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteSink opens (creating if needed) the snapshot database at path.
func NewSQLiteSink(path string, logger *slog.Logger) (*SQLiteSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	if _, err := db.Exec(snapshotSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshot schema: %w", err)
	}
	return &SQLiteSink{db: db, logger: logger.With("component", "snapshot")}, nil
}

// RecordSnapshot appends one snapshot row.
func (s *SQLiteSink) RecordSnapshot(ctx context.Context, snap *ConversationSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (conversation_id, taken_at, payload) VALUES (?, ?, ?)`,
		snap.Conversation.ID, snap.TakenAt.Format("2006-01-02T15:04:05.999999999Z07:00"), string(payload))
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	s.logger.Debug("snapshot recorded",
		"conversation_id", snap.Conversation.ID,
		"messages", len(snap.Messages))
	return nil
}

// Snapshots returns the stored payloads for one conversation, oldest first.
func (s *SQLiteSink) Snapshots(ctx context.Context, conversationID string) ([]*ConversationSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM snapshots WHERE conversation_id = ? ORDER BY id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*ConversationSnapshot
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		var snap ConversationSnapshot
		if err := json.Unmarshal([]byte(payload), &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		snaps = append(snaps, &snap)
	}
	return snaps, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
