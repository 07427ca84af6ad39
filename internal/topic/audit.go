package topic

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RecordAudit persists one audit entry.
func (s *Store) RecordAudit(ctx context.Context, entry AuditEntry) error {
	var topicID any
	if entry.TopicID > 0 {
		topicID = entry.TopicID
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO audit_entries (id, action, success, error, principal, topic_id, started_at, duration_ms)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Action, entry.Success, nullableString(entry.Error), nullableString(entry.Principal),
		topicID, formatTime(entry.Started), entry.Duration.Milliseconds(),
	); err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// AuditEntries returns the newest audit entries first.
func (s *Store) AuditEntries(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, success, error, principal, topic_id, started_at, duration_ms
         FROM audit_entries ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			entry      AuditEntry
			errText    sql.NullString
			principal  sql.NullString
			topicID    sql.NullInt64
			startedRaw string
			durationMS int64
		)
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.Success, &errText, &principal, &topicID, &startedRaw, &durationMS); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Error = errText.String
		entry.Principal = principal.String
		entry.TopicID = topicID.Int64
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		if started, err := parseTimeString(startedRaw); err == nil {
			entry.Started = started
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
