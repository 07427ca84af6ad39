package asr

import (
	"context"
	"time"

	"subline/internal/subtitle"
)

// TaskState is the provider-side state of a transcription task.
type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// SubmitRequest references the media the provider should transcribe.
type SubmitRequest struct {
	MediaURL string
	Model    string
	Language string
	// Reference is echoed back by the provider for correlation.
	Reference string
}

// TaskInfo describes a provider task.
type TaskInfo struct {
	ID        string
	State     TaskState
	Error     string
	Duration  time.Duration
	CreatedAt time.Time
}

// Provider is the contract the transcription lane consumes.
type Provider interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	Task(ctx context.Context, taskID string) (TaskInfo, error)
	ListTasks(ctx context.Context) ([]TaskInfo, error)
	SubtitleLink(ctx context.Context, taskID string) (string, error)
	TranscriptLink(ctx context.Context, taskID string) (string, error)
	WordSegments(ctx context.Context, taskID string) ([]subtitle.Word, error)
	RetrieveText(ctx context.Context, url string) (string, error)
}
