package topic

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AsrChange describes a transcription-branch transition and the fields written with it.
type AsrChange struct {
	To AsrStatus
	// TaskID is recorded when moving to Submitted.
	TaskID string
	// Model overrides the stored model name when non-empty.
	Model string
	// Error is recorded when moving to Failed.
	Error string
	// ProcessTime is added to the cumulative processing time when moving to Completed.
	ProcessTime time.Duration
}

// ConvertChange describes a transcoding-branch transition and the fields written with it.
type ConvertChange struct {
	To            ConvertStatus
	Error         string
	Size          int64
	Length        time.Duration
	ProcessTime   time.Duration
	RequireNormal bool
}

// TransitionAsr moves AsrStatus from one of the expected values to change.To.
// It returns ErrStaleState when the current value no longer matches.
func (s *Store) TransitionAsr(ctx context.Context, id int64, from []AsrStatus, change AsrChange) error {
	if len(from) == 0 {
		return fmt.Errorf("transition asr: expected states required")
	}
	now := nowString()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var asrError any
		if change.To == AsrFailed {
			asrError = change.Error
		}
		var submittedAt any
		switch change.To {
		case AsrSubmitted:
			submittedAt = now
		case AsrPending:
			submittedAt = nil
		}
		keepSubmitted := change.To != AsrSubmitted && change.To != AsrPending

		args := []any{change.To, asrError, keepSubmitted, submittedAt}
		processMS := int64(0)
		if change.To == AsrCompleted {
			processMS = change.ProcessTime.Milliseconds()
		}
		args = append(args, processMS, id)
		args = append(args, stringArgs(from)...)
		query := `UPDATE media
            SET asr_status = ?, asr_error = ?,
                submitted_at = CASE WHEN ? THEN submitted_at ELSE ? END,
                process_time_ms = process_time_ms + ?
            WHERE topic_id = ? AND asr_status IN (` + makePlaceholders(len(from)) + `)`
		if err := expectOneRow(ctx, tx, id, query, args...); err != nil {
			return err
		}

		var taskID any = sql.NullString{}
		setTask := false
		switch change.To {
		case AsrSubmitted:
			taskID, setTask = change.TaskID, true
		case AsrPending:
			setTask = true
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE topics
             SET updated_at = ?,
                 asr_task_id = CASE WHEN ? THEN ? ELSE asr_task_id END,
                 model_name = COALESCE(?, model_name)
             WHERE id = ?`,
			now, setTask, taskID, nullableString(change.Model), id,
		); err != nil {
			return fmt.Errorf("touch topic: %w", err)
		}
		return nil
	})
}

// TransitionConvert moves ConvertStatus from one of the expected values to change.To.
func (s *Store) TransitionConvert(ctx context.Context, id int64, from []ConvertStatus, change ConvertChange) error {
	if len(from) == 0 {
		return fmt.Errorf("transition convert: expected states required")
	}
	now := nowString()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var convertError any
		if change.To == ConvertFailed {
			convertError = change.Error
		}
		completed := change.To == ConvertCompleted
		var processMS int64
		if completed {
			processMS = change.ProcessTime.Milliseconds()
		}
		args := []any{
			change.To, convertError,
			completed, change.Size,
			completed, change.Length.Milliseconds(),
			processMS, id,
		}
		args = append(args, stringArgs(from)...)
		query := `UPDATE media
            SET convert_status = ?, convert_error = ?,
                size = CASE WHEN ? THEN ? ELSE size END,
                length_ms = CASE WHEN ? THEN ? ELSE length_ms END,
                process_time_ms = process_time_ms + ?
            WHERE topic_id = ? AND convert_status IN (` + makePlaceholders(len(from)) + `)`
		if change.RequireNormal {
			query += ` AND EXISTS (SELECT 1 FROM topics WHERE id = media.topic_id AND status = ?)`
			args = append(args, StatusNormal)
		}
		if err := expectOneRow(ctx, tx, id, query, args...); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE topics SET updated_at = ? WHERE id = ?`, now, id); err != nil {
			return fmt.Errorf("touch topic: %w", err)
		}
		return nil
	})
}

// TransitionStatus moves Status from one of the expected values to to. An empty
// from list accepts any current status.
func (s *Store) TransitionStatus(ctx context.Context, id int64, from []Status, to Status) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		args := []any{to, nowString(), id}
		query := `UPDATE topics SET status = ?, updated_at = ? WHERE id = ?`
		if len(from) > 0 {
			query += ` AND status IN (` + makePlaceholders(len(from)) + `)`
			args = append(args, stringArgs(from)...)
		}
		return expectOneRow(ctx, tx, id, query, args...)
	})
}

// ResetPipeline returns the topic to Normal and resets the selected branches to
// Pending, clearing their errors. Resetting transcription also clears the task id.
func (s *Store) ResetPipeline(ctx context.Context, id int64, resetAsr, resetConvert bool) error {
	now := nowString()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := expectOneRow(ctx, tx, id,
			`UPDATE topics
             SET status = ?, updated_at = ?,
                 asr_task_id = CASE WHEN ? THEN NULL ELSE asr_task_id END
             WHERE id = ?`,
			StatusNormal, now, resetAsr, id,
		); err != nil {
			return err
		}
		if resetAsr {
			if _, err := tx.ExecContext(ctx,
				`UPDATE media SET asr_status = ?, asr_error = NULL, submitted_at = NULL WHERE topic_id = ?`,
				AsrPending, id,
			); err != nil {
				return fmt.Errorf("reset asr: %w", err)
			}
		}
		if resetConvert {
			if _, err := tx.ExecContext(ctx,
				`UPDATE media SET convert_status = ?, convert_error = NULL WHERE topic_id = ?`,
				ConvertPending, id,
			); err != nil {
				return fmt.Errorf("reset convert: %w", err)
			}
		}
		return nil
	})
}

// expectOneRow executes a conditional update and distinguishes a missing topic
// from a topic whose current state failed the condition.
func expectOneRow(ctx context.Context, tx *sql.Tx, id int64, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("conditional update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM topics WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check topic: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return fmt.Errorf("%w: topic %d", ErrStaleState, id)
}
