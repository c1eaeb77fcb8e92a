package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region execer

// Execer is satisfied by both *sql.DB and *sql.Tx so events can be written
// inside the same transaction as the association row they describe.
type Execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// #endregion execer

// #region log-event

// LogEvent appends one entry to the learning_log table.
func LogEvent(x Execer, entry EventEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := x.Exec(
		`INSERT INTO learning_log (event_id, namespace, key_a, key_b, delta_strength, new_status, trigger_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.EventID,
		entry.Namespace,
		entry.KeyA,
		entry.KeyB,
		entry.DeltaStrength,
		entry.NewStatus,
		entry.Trigger,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// #endregion log-event

// #region list-recent

// ListRecent returns the most recent learning_log entries, newest first.
func ListRecent(db *sql.DB, limit int) ([]EventEntry, error) {
	rows, err := db.Query(
		`SELECT event_id, namespace, key_a, key_b, delta_strength, new_status, trigger_type, created_at
		 FROM learning_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var entries []EventEntry
	for rows.Next() {
		var e EventEntry
		var createdStr string
		if err := rows.Scan(&e.EventID, &e.Namespace, &e.KeyA, &e.KeyB, &e.DeltaStrength, &e.NewStatus, &e.Trigger, &createdStr); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion list-recent
