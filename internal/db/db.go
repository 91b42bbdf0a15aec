package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Process events.
const (
	EventProcessStarted = "process.started"
	EventProcessStopped = "process.stopped"
)

// Conversation events.
const (
	EventTurnStarted       = "turn.started"
	EventStreamOpened      = "stream.opened"
	EventStreamCompleted   = "stream.completed"
	EventStreamFailed      = "stream.failed"
	EventHistorySaved      = "history.saved"
	EventHistoryReset      = "history.reset"
	EventFeedbackCompleted = "feedback.completed"
	EventFeedbackFailed    = "feedback.failed"
	EventCircuitOpened     = "circuit.opened"
	EventCircuitHalfOpen   = "circuit.half_open"
	EventCircuitClosed     = "circuit.closed"
)

// Event is a row of the events table.
type Event struct {
	ID        int64
	Timestamp int64
	ParentID  sql.NullInt64
	EventType string
	Payload   sql.NullString
}

// OpenDB opens (or creates) a SQLite database at the given path, ensuring
// that the parent directory exists.
func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", path, err)
	}

	return db, nil
}

// InitSchema creates the events table. Conversation history lives in the
// key-value store, which creates its own table.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			timestamp INTEGER NOT NULL DEFAULT (unixepoch()),
			parent_id INTEGER,
			event_type TEXT NOT NULL,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_parent_id ON events(parent_id);
		CREATE INDEX IF NOT EXISTS idx_events_conversation
			ON events(json_extract(payload, '$.conversation_id'));
	`)
	return err
}

// LogEvent inserts an event into the events table and returns its auto-generated id.
// parentID may be nil for root events. payload is serialized to JSON; nil payload stores NULL.
func LogEvent(db *sql.DB, parentID *int64, eventType string, payload map[string]any) (int64, error) {
	var payloadJSON any
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal event payload: %w", err)
		}
		payloadJSON = string(data)
	}

	res, err := db.Exec(
		`INSERT INTO events (parent_id, event_type, payload) VALUES (?, ?, ?)`,
		parentID, eventType, payloadJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event %s: %w", eventType, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get event id: %w", err)
	}
	return id, nil
}

// ListEvents returns every event whose payload names the conversation, oldest first.
func ListEvents(db *sql.DB, conversationID string) ([]Event, error) {
	rows, err := db.Query(
		`SELECT id, timestamp, parent_id, event_type, payload FROM events
		 WHERE json_extract(payload, '$.conversation_id') = ?
		 ORDER BY id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.ParentID, &ev.EventType, &ev.Payload); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// NextTurnSeq returns the next turn number of a conversation by counting its
// turn.started events.
func NextTurnSeq(db *sql.DB, conversationID string) (int, error) {
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM events
		 WHERE event_type = ? AND json_extract(payload, '$.conversation_id') = ?`,
		EventTurnStarted, conversationID,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count + 1, nil
}

// LatestProcessRoot returns the id of the most recent process.started event
// with the given role.
func LatestProcessRoot(db *sql.DB, role string) (int64, error) {
	var id int64
	err := db.QueryRow(
		`SELECT id FROM events WHERE event_type = ?
		 AND json_extract(payload, '$.role') = ?
		 ORDER BY id DESC LIMIT 1`,
		EventProcessStarted, role,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("no %s process.started event found", role)
	}
	return id, err
}
