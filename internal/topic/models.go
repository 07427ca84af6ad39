package topic

import (
	"slices"
	"strings"
	"time"

	"subline/internal/subtitle"
)

// Status is the operator-visible lifecycle state of a topic.
type Status string

const (
	StatusNormal   Status = "normal"
	StatusPaused   Status = "paused"
	StatusArchived Status = "archived"
	StatusRemoved  Status = "removed"
)

// AsrStatus tracks the transcription branch.
type AsrStatus string

const (
	AsrPending    AsrStatus = "pending"
	AsrSubmitted  AsrStatus = "submitted"
	AsrProcessing AsrStatus = "processing"
	AsrCompleted  AsrStatus = "completed"
	AsrFailed     AsrStatus = "failed"
)

// ConvertStatus tracks the transcoding branch.
type ConvertStatus string

const (
	ConvertPending    ConvertStatus = "pending"
	ConvertConverting ConvertStatus = "converting"
	ConvertCompleted  ConvertStatus = "completed"
	ConvertFailed     ConvertStatus = "failed"
)

// CreatedOption records how a topic entered the system.
type CreatedOption string

const (
	CreatedUpload CreatedOption = "upload"
	CreatedImport CreatedOption = "import"
	CreatedRecord CreatedOption = "record"
)

var allStatuses = []Status{StatusNormal, StatusPaused, StatusArchived, StatusRemoved}

// ParseStatus normalizes user input into a Status.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	return status, slices.Contains(allStatuses, status)
}

// ParseCreatedOption normalizes user input into a CreatedOption, defaulting to upload.
func ParseCreatedOption(value string) (CreatedOption, bool) {
	switch opt := CreatedOption(strings.ToLower(strings.TrimSpace(value))); opt {
	case "":
		return CreatedUpload, true
	case CreatedUpload, CreatedImport, CreatedRecord:
		return opt, true
	default:
		return "", false
	}
}

// Media is the 1:1 processing record of a topic.
type Media struct {
	OriginalSize  int64
	Size          int64
	Length        time.Duration
	ProcessTime   time.Duration
	AsrStatus     AsrStatus
	ConvertStatus ConvertStatus
	AsrError      string
	ConvertError  string
	SubmittedAt   *time.Time
}

// Error joins the branch errors. It is empty unless a branch is Failed.
func (m Media) Error() string {
	switch {
	case m.AsrError != "" && m.ConvertError != "":
		return "asr: " + m.AsrError + "; convert: " + m.ConvertError
	case m.AsrError != "":
		return m.AsrError
	default:
		return m.ConvertError
	}
}

// Topic is the aggregate root for a media item.
type Topic struct {
	ID            int64
	Name          string
	Extension     string
	Creator       string
	Status        Status
	CreatedOption CreatedOption
	AsrTaskID     string
	ModelName     string
	// FrameRate and WordLimit are zero when unset; callers fall back to configured defaults.
	FrameRate float64
	WordLimit int
	RawObject string
	CreatedAt time.Time
	UpdatedAt time.Time
	Media     Media
}

// SubtitleOptions resolves the topic's derivation settings over defaults.
func (t *Topic) SubtitleOptions(defaults subtitle.Options) subtitle.Options {
	opts := defaults
	if t.FrameRate > 0 {
		opts.FrameRate = t.FrameRate
	}
	if t.WordLimit > 0 {
		opts.WordLimit = t.WordLimit
	}
	return opts
}

// NewTopic carries the fields supplied at ingestion.
type NewTopic struct {
	Name         string
	Extension    string
	Creator      string
	Option       CreatedOption
	Model        string
	FrameRate    float64
	WordLimit    int
	RawObject    string
	OriginalSize int64
}

// SubtitleLine is a single timed cue.
type SubtitleLine = subtitle.Line

// LineKind selects which subtitle set to read or write.
type LineKind string

const (
	LinesCurrent  LineKind = "current"
	LinesOriginal LineKind = "original"
)

// Transcript holds the raw provider output a topic's subtitles are derived from.
type Transcript struct {
	Text  string
	Words []subtitle.Word
}

// PullSource distinguishes where a transcode run pulled its raw file from.
type PullSource string

const (
	PullFromAsr   PullSource = "asr"
	PullFromLocal PullSource = "local"
)

// Mark names a benchmark checkpoint in pipeline order.
type Mark int

const (
	MarkPullRawFile Mark = iota + 1
	MarkSavedRawFile
	MarkStartedConvert
	MarkCompletedConvert
)

// Benchmark records the timestamps of one transcode run.
type Benchmark struct {
	ID               int64
	TopicID          int64
	Source           PullSource
	Start            time.Time
	PullRawFile      *time.Time
	SavedRawFile     *time.Time
	StartedConvert   *time.Time
	CompletedConvert *time.Time
}

// Marks returns the present timestamps in pipeline order, Start first.
func (b Benchmark) Marks() []time.Time {
	out := []time.Time{b.Start}
	for _, ts := range []*time.Time{b.PullRawFile, b.SavedRawFile, b.StartedConvert, b.CompletedConvert} {
		if ts != nil {
			out = append(out, *ts)
		}
	}
	return out
}

// AuditEntry is one recorded run of an audited action.
type AuditEntry struct {
	ID        string
	Action    string
	Success   bool
	Error     string
	Principal string
	TopicID   int64
	Started   time.Time
	Duration  time.Duration
}

// HealthSummary aggregates topic counts for diagnostics.
type HealthSummary struct {
	Total          int
	Normal         int
	Paused         int
	Archived       int
	Removed        int
	AsrPending     int
	AsrInFlight    int
	AsrFailed      int
	ConvertPending int
	Converting     int
	ConvertFailed  int
}
