package lane

// Lane names used in logs, audit actions, and scheduler status.
const (
	Transcription = "transcription"
	Transcoding   = "transcoding"
	Retention     = "retention"
)
