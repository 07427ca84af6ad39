package topic

import (
	"context"
	"fmt"
)

// Stats returns a count of topics grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM topics GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("topic stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates topic and branch state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusNormal:
			health.Normal += count
		case StatusPaused:
			health.Paused += count
		case StatusArchived:
			health.Archived += count
		case StatusRemoved:
			health.Removed += count
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT asr_status, convert_status, COUNT(1) FROM media GROUP BY asr_status, convert_status`)
	if err != nil {
		return health, fmt.Errorf("branch stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			asr     AsrStatus
			convert ConvertStatus
			count   int
		)
		if err := rows.Scan(&asr, &convert, &count); err != nil {
			return health, err
		}
		switch asr {
		case AsrPending:
			health.AsrPending += count
		case AsrSubmitted, AsrProcessing:
			health.AsrInFlight += count
		case AsrFailed:
			health.AsrFailed += count
		}
		switch convert {
		case ConvertPending:
			health.ConvertPending += count
		case ConvertConverting:
			health.Converting += count
		case ConvertFailed:
			health.ConvertFailed += count
		}
	}
	return health, rows.Err()
}

// Ping verifies the database connection is usable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping topic database: %w", err)
	}
	return nil
}

// ResetInterrupted returns conversions left in Converting by a previous process to Pending.
// Call it before the scheduler starts; the in-memory run guard does not survive restarts.
func (s *Store) ResetInterrupted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE media SET convert_status = ?, convert_error = NULL WHERE convert_status = ?`,
		ConvertPending, ConvertConverting,
	)
	if err != nil {
		return 0, fmt.Errorf("reset interrupted conversions: %w", err)
	}
	return res.RowsAffected()
}
