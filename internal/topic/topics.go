package topic

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"subline/internal/services"
)

// Create inserts a topic in Status=Normal with both branches Pending.
func (s *Store) Create(ctx context.Context, in NewTopic) (*Topic, error) {
	name := NormalizeName(in.Name)
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "", "create topic", "name is required", nil)
	}
	option := in.Option
	if option == "" {
		option = CreatedUpload
	}
	if _, ok := ParseCreatedOption(string(option)); !ok {
		return nil, services.Wrap(services.ErrValidation, "", "create topic", fmt.Sprintf("unknown created option %q", option), nil)
	}

	timestamp := nowString()
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO topics (
                name, extension, creator, status, created_option, model_name,
                frame_rate, word_limit, raw_object, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			name,
			nullableString(strings.TrimPrefix(strings.ToLower(in.Extension), ".")),
			nullableString(in.Creator),
			StatusNormal,
			option,
			nullableString(in.Model),
			nullableFloat(in.FrameRate),
			nullableInt(in.WordLimit),
			nullableString(in.RawObject),
			timestamp,
			timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert topic: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO media (topic_id, original_size, size, asr_status, convert_status) VALUES (?, ?, ?, ?, ?)`,
			id, in.OriginalSize, in.OriginalSize, AsrPending, ConvertPending,
		); err != nil {
			return fmt.Errorf("insert media: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Get fetches a topic by identifier. A missing topic yields (nil, nil).
func (s *Store) Get(ctx context.Context, id int64) (*Topic, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+topicColumns+topicFrom+` WHERE t.id = ?`, id)
	t, err := scanTopic(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get topic: %w", err)
	}
	return t, nil
}

// MustGet fetches a topic and reports ErrNotFound when it is missing.
func (s *Store) MustGet(ctx context.Context, id int64) (*Topic, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return t, nil
}

// Filter narrows and orders List results.
type Filter struct {
	Statuses     []Status
	NameContains string
	Sort         SortKey
	Desc         bool
	Limit        int
}

// List returns topics matching the filter, ordered by the requested sort key.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Topic, error) {
	query := `SELECT ` + topicColumns + topicFrom
	var args []any
	if len(filter.Statuses) > 0 {
		query += ` WHERE t.status IN (` + makePlaceholders(len(filter.Statuses)) + `)`
		args = stringArgs(filter.Statuses)
	}
	query += ` ORDER BY t.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	topics, err := collectTopics(rows)
	if err != nil {
		return nil, fmt.Errorf("scan topics: %w", err)
	}

	if needle := strings.TrimSpace(filter.NameContains); needle != "" {
		fold := cases.Fold()
		needle = fold.String(norm.NFC.String(needle))
		matched := topics[:0]
		for _, t := range topics {
			if strings.Contains(fold.String(t.Name), needle) {
				matched = append(matched, t)
			}
		}
		topics = matched
	}

	Sort(topics, filter.Sort, filter.Desc)
	if filter.Limit > 0 && len(topics) > filter.Limit {
		topics = topics[:filter.Limit]
	}
	return topics, nil
}

// NextForTranscription returns the oldest Normal topic awaiting submission.
func (s *Store) NextForTranscription(ctx context.Context) (*Topic, error) {
	return s.nextWhere(ctx, `m.asr_status = ?`, AsrPending)
}

// NextForPolling returns the oldest Normal topic with a provider task in flight.
func (s *Store) NextForPolling(ctx context.Context) (*Topic, error) {
	return s.nextWhere(ctx, `m.asr_status IN (?, ?)`, AsrSubmitted, AsrProcessing)
}

// NextForConversion returns the oldest Normal topic awaiting transcoding.
func (s *Store) NextForConversion(ctx context.Context) (*Topic, error) {
	return s.nextWhere(ctx, `m.convert_status = ?`, ConvertPending)
}

func (s *Store) nextWhere(ctx context.Context, clause string, args ...any) (*Topic, error) {
	query := `SELECT ` + topicColumns + topicFrom +
		` WHERE t.status = ? AND ` + clause + ` ORDER BY t.created_at, t.id LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, append([]any{StatusNormal}, args...)...)
	t, err := scanTopic(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select next topic: %w", err)
	}
	return t, nil
}

// UpdateSettings stores the subtitle derivation settings for a topic. Zero clears a value.
func (s *Store) UpdateSettings(ctx context.Context, id int64, frameRate float64, wordLimit int) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE topics SET frame_rate = ?, word_limit = ?, updated_at = ? WHERE id = ?`,
		nullableFloat(frameRate), nullableInt(wordLimit), nowString(), id,
	)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

// NormalizeName composes Unicode, trims, and collapses internal whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(norm.NFC.String(name)), " ")
}
