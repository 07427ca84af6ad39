package topic

import (
	"context"
	"fmt"
	"time"
)

// RetentionCandidates returns Removed topics last updated before removedCutoff
// and Archived topics last updated before archivedCutoff, oldest first.
func (s *Store) RetentionCandidates(ctx context.Context, removedCutoff, archivedCutoff time.Time) ([]*Topic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+topicColumns+topicFrom+`
         WHERE (t.status = ? AND t.updated_at < ?) OR (t.status = ? AND t.updated_at < ?)
         ORDER BY t.updated_at, t.id`,
		StatusRemoved, formatTime(removedCutoff),
		StatusArchived, formatTime(archivedCutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("retention candidates: %w", err)
	}
	return collectTopics(rows)
}

// ArchivedBefore returns Archived topics last updated before cutoff, oldest first.
func (s *Store) ArchivedBefore(ctx context.Context, cutoff time.Time) ([]*Topic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+topicColumns+topicFrom+` WHERE t.status = ? AND t.updated_at < ? ORDER BY t.updated_at, t.id`,
		StatusArchived, formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("archived topics: %w", err)
	}
	return collectTopics(rows)
}

// ArchivedFootprint sums the stored size of all Archived topics.
func (s *Store) ArchivedFootprint(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(m.size), 0)`+topicFrom+` WHERE t.status = ?`, StatusArchived,
	).Scan(&total); err != nil {
		return 0, fmt.Errorf("archived footprint: %w", err)
	}
	return total, nil
}

// Delete removes a retired topic row and its dependent records when it was
// last updated before cutoff. Deleting a missing topic is not an error; the
// boolean reports whether a row was removed. A topic that is Normal, Paused,
// or updated at or after cutoff is refused with ErrStaleState.
func (s *Store) Delete(ctx context.Context, id int64, cutoff time.Time) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM topics WHERE id = ? AND status IN (?, ?) AND updated_at < ?`,
		id, StatusRemoved, StatusArchived, formatTime(cutoff),
	)
	if err != nil {
		return false, fmt.Errorf("delete topic: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, fmt.Errorf("%w: topic %d is %s, updated %s", ErrStaleState, id, existing.Status, formatTime(existing.UpdatedAt))
	}
	return false, nil
}
