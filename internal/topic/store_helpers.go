package topic

import (
	"database/sql"
	"errors"
	"time"
)

// timeLayout is fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const topicColumns = `t.id, t.name, t.extension, t.creator, t.status, t.created_option, t.asr_task_id,
    t.model_name, t.frame_rate, t.word_limit, t.raw_object, t.created_at, t.updated_at,
    m.original_size, m.size, m.length_ms, m.process_time_ms, m.asr_status, m.convert_status,
    m.asr_error, m.convert_error, m.submitted_at`

const topicFrom = ` FROM topics t JOIN media m ON m.topic_id = t.id`

func scanTopic(scanner interface{ Scan(dest ...any) error }) (*Topic, error) {
	var (
		t             Topic
		extension     sql.NullString
		creator       sql.NullString
		taskID        sql.NullString
		modelName     sql.NullString
		frameRate     sql.NullFloat64
		wordLimit     sql.NullInt64
		rawObject     sql.NullString
		createdRaw    string
		updatedRaw    string
		lengthMS      int64
		processMS     int64
		asrError      sql.NullString
		convertError  sql.NullString
		submittedRaw  sql.NullString
		status        string
		createdOption string
		asrStatus     string
		convertStatus string
	)
	if err := scanner.Scan(
		&t.ID, &t.Name, &extension, &creator, &status, &createdOption, &taskID,
		&modelName, &frameRate, &wordLimit, &rawObject, &createdRaw, &updatedRaw,
		&t.Media.OriginalSize, &t.Media.Size, &lengthMS, &processMS, &asrStatus, &convertStatus,
		&asrError, &convertError, &submittedRaw,
	); err != nil {
		return nil, err
	}

	t.Extension = extension.String
	t.Creator = creator.String
	t.Status = Status(status)
	t.CreatedOption = CreatedOption(createdOption)
	t.AsrTaskID = taskID.String
	t.ModelName = modelName.String
	t.FrameRate = frameRate.Float64
	t.WordLimit = int(wordLimit.Int64)
	t.RawObject = rawObject.String
	t.Media.Length = time.Duration(lengthMS) * time.Millisecond
	t.Media.ProcessTime = time.Duration(processMS) * time.Millisecond
	t.Media.AsrStatus = AsrStatus(asrStatus)
	t.Media.ConvertStatus = ConvertStatus(convertStatus)
	t.Media.AsrError = asrError.String
	t.Media.ConvertError = convertError.String

	if created, err := parseTimeString(createdRaw); err == nil {
		t.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		t.UpdatedAt = updated
	}
	t.Media.SubmittedAt = parseNullableTime(submittedRaw)
	return &t, nil
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func nowString() string {
	return formatTime(time.Now())
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableFloat(value float64) any {
	if value <= 0 {
		return nil
	}
	return value
}

func nullableInt(value int) any {
	if value <= 0 {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func stringArgs[T ~string](values []T) []any {
	args := make([]any, 0, len(values))
	for _, v := range values {
		args = append(args, string(v))
	}
	return args
}

func collectTopics(rows *sql.Rows) ([]*Topic, error) {
	defer rows.Close()
	var topics []*Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}
