package topic

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var markColumns = map[Mark]string{
	MarkPullRawFile:      "pull_raw_at",
	MarkSavedRawFile:     "saved_raw_at",
	MarkStartedConvert:   "started_convert_at",
	MarkCompletedConvert: "completed_convert_at",
}

const benchmarkColumns = `id, topic_id, source, start_at, pull_raw_at, saved_raw_at, started_convert_at, completed_convert_at`

// StartBenchmark opens a benchmark record for one transcode run.
func (s *Store) StartBenchmark(ctx context.Context, topicID int64, source PullSource) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`INSERT INTO benchmarks (topic_id, source, start_at) VALUES (?, ?, ?)`,
		topicID, source, nowString(),
	)
	if err != nil {
		return 0, fmt.Errorf("start benchmark: %w", err)
	}
	return res.LastInsertId()
}

// MarkBenchmark stamps a checkpoint. The stored time is clamped so that it never
// precedes an earlier checkpoint nor follows a later one already present.
func (s *Store) MarkBenchmark(ctx context.Context, benchID int64, mark Mark) error {
	column, ok := markColumns[mark]
	if !ok {
		return fmt.Errorf("unknown benchmark mark %d", mark)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+benchmarkColumns+` FROM benchmarks WHERE id = ?`, benchID)
		bench, err := scanBenchmark(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("benchmark %d not found", benchID)
		}
		if err != nil {
			return fmt.Errorf("load benchmark: %w", err)
		}
		stamp := clampMark(bench, mark, time.Now().UTC())
		if _, err := tx.ExecContext(ctx, `UPDATE benchmarks SET `+column+` = ? WHERE id = ?`, formatTime(stamp), benchID); err != nil {
			return fmt.Errorf("mark benchmark: %w", err)
		}
		return nil
	})
}

func clampMark(bench *Benchmark, mark Mark, now time.Time) time.Time {
	ordered := []*time.Time{&bench.Start, bench.PullRawFile, bench.SavedRawFile, bench.StartedConvert, bench.CompletedConvert}
	stamp := now
	for i := 0; i < int(mark); i++ {
		if prev := ordered[i]; prev != nil && prev.After(stamp) {
			stamp = *prev
		}
	}
	for i := int(mark) + 1; i < len(ordered); i++ {
		if next := ordered[i]; next != nil && next.Before(stamp) {
			stamp = *next
		}
	}
	return stamp
}

// DeleteBenchmark removes a benchmark record. A missing record is not an error.
func (s *Store) DeleteBenchmark(ctx context.Context, benchID int64) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM benchmarks WHERE id = ?`, benchID); err != nil {
		return fmt.Errorf("delete benchmark: %w", err)
	}
	return nil
}

// Benchmarks returns the benchmark records of a topic, oldest first.
func (s *Store) Benchmarks(ctx context.Context, topicID int64) ([]Benchmark, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+benchmarkColumns+` FROM benchmarks WHERE topic_id = ? ORDER BY id`, topicID)
	if err != nil {
		return nil, fmt.Errorf("query benchmarks: %w", err)
	}
	defer rows.Close()
	var out []Benchmark
	for rows.Next() {
		bench, err := scanBenchmark(rows)
		if err != nil {
			return nil, fmt.Errorf("scan benchmark: %w", err)
		}
		out = append(out, *bench)
	}
	return out, rows.Err()
}

func scanBenchmark(scanner interface{ Scan(dest ...any) error }) (*Benchmark, error) {
	var (
		bench    Benchmark
		source   string
		startRaw string
		pull     sql.NullString
		saved    sql.NullString
		started  sql.NullString
		finished sql.NullString
	)
	if err := scanner.Scan(&bench.ID, &bench.TopicID, &source, &startRaw, &pull, &saved, &started, &finished); err != nil {
		return nil, err
	}
	bench.Source = PullSource(source)
	if start, err := parseTimeString(startRaw); err == nil {
		bench.Start = start
	}
	bench.PullRawFile = parseNullableTime(pull)
	bench.SavedRawFile = parseNullableTime(saved)
	bench.StartedConvert = parseNullableTime(started)
	bench.CompletedConvert = parseNullableTime(finished)
	return &bench, nil
}
