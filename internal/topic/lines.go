package topic

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"subline/internal/subtitle"
)

// ReplaceLines swaps the stored subtitle set of the given kind.
func (s *Store) ReplaceLines(ctx context.Context, id int64, kind LineKind, lines []SubtitleLine) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := replaceLinesTx(ctx, tx, id, kind, lines); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE topics SET updated_at = ? WHERE id = ?`, nowString(), id)
		return err
	})
}

func replaceLinesTx(ctx context.Context, tx *sql.Tx, id int64, kind LineKind, lines []SubtitleLine) error {
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM topics WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check topic: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM subtitle_lines WHERE topic_id = ? AND kind = ?`, id, kind); err != nil {
		return fmt.Errorf("clear %s lines: %w", kind, err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO subtitle_lines (topic_id, kind, idx, start_ms, end_ms, text) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare line insert: %w", err)
	}
	defer stmt.Close()
	for i, line := range lines {
		if _, err := stmt.ExecContext(ctx, id, kind, i+1, line.Start.Milliseconds(), line.End.Milliseconds(), line.Text); err != nil {
			return fmt.Errorf("insert line %d: %w", i+1, err)
		}
	}
	return nil
}

// Lines returns the stored subtitle set of the given kind in cue order.
func (s *Store) Lines(ctx context.Context, id int64, kind LineKind) ([]SubtitleLine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, start_ms, end_ms, text FROM subtitle_lines WHERE topic_id = ? AND kind = ? ORDER BY idx`,
		id, kind,
	)
	if err != nil {
		return nil, fmt.Errorf("query lines: %w", err)
	}
	defer rows.Close()

	var lines []SubtitleLine
	for rows.Next() {
		var (
			line    SubtitleLine
			startMS int64
			endMS   int64
		)
		if err := rows.Scan(&line.Index, &startMS, &endMS, &line.Text); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		line.Start = time.Duration(startMS) * time.Millisecond
		line.End = time.Duration(endMS) * time.Millisecond
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// SaveTranscript stores the provider transcript for a topic, replacing any previous one.
func (s *Store) SaveTranscript(ctx context.Context, id int64, transcript Transcript) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return saveTranscriptTx(ctx, tx, id, transcript)
	})
}

func saveTranscriptTx(ctx context.Context, tx *sql.Tx, id int64, transcript Transcript) error {
	var words any
	if len(transcript.Words) > 0 {
		data, err := json.Marshal(transcript.Words)
		if err != nil {
			return fmt.Errorf("encode words: %w", err)
		}
		words = string(data)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transcripts (topic_id, text, words_json, updated_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(topic_id) DO UPDATE SET text = excluded.text, words_json = excluded.words_json, updated_at = excluded.updated_at`,
		id, transcript.Text, words, nowString(),
	); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// Transcript returns the stored transcript, or (nil, nil) when none exists.
func (s *Store) Transcript(ctx context.Context, id int64) (*Transcript, error) {
	var (
		text  string
		words sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT text, words_json FROM transcripts WHERE topic_id = ?`, id).Scan(&text, &words)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	transcript := &Transcript{Text: text}
	if words.Valid && words.String != "" {
		var decoded []subtitle.Word
		if err := json.Unmarshal([]byte(words.String), &decoded); err != nil {
			return nil, fmt.Errorf("decode words: %w", err)
		}
		transcript.Words = decoded
	}
	return transcript, nil
}

// CompleteTranscription persists the transcript and both subtitle sets, then
// moves AsrStatus to Completed, all in one transaction. It returns ErrStaleState
// and writes nothing when the topic has left the expected states meanwhile.
func (s *Store) CompleteTranscription(ctx context.Context, id int64, from []AsrStatus, transcript Transcript, lines []SubtitleLine, processTime time.Duration) error {
	now := nowString()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		args := []any{AsrCompleted, processTime.Milliseconds(), id}
		args = append(args, stringArgs(from)...)
		if err := expectOneRow(ctx, tx, id,
			`UPDATE media SET asr_status = ?, asr_error = NULL, process_time_ms = process_time_ms + ?
             WHERE topic_id = ? AND asr_status IN (`+makePlaceholders(len(from))+`)`,
			args...,
		); err != nil {
			return err
		}
		if err := saveTranscriptTx(ctx, tx, id, transcript); err != nil {
			return err
		}
		for _, kind := range []LineKind{LinesOriginal, LinesCurrent} {
			if err := replaceLinesTx(ctx, tx, id, kind, lines); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `UPDATE topics SET updated_at = ? WHERE id = ?`, now, id)
		return err
	})
}
