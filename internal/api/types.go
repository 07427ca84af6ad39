package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Topic describes a topic in a transport-friendly format.
type Topic struct {
	ID            int64          `json:"id"`
	Name          string         `json:"name"`
	Extension     string         `json:"extension"`
	Creator       string         `json:"creator,omitempty"`
	Status        string         `json:"status"`
	CreatedOption string         `json:"createdOption"`
	ModelName     string         `json:"modelName,omitempty"`
	AsrTaskID     string         `json:"asrTaskId,omitempty"`
	FrameRate     float64        `json:"frameRate,omitempty"`
	WordLimit     int            `json:"wordLimit,omitempty"`
	RawObject     string         `json:"rawObject"`
	Media         Media          `json:"media"`
	CreatedAt     string         `json:"createdAt,omitempty"`
	UpdatedAt     string         `json:"updatedAt,omitempty"`
	Lines         []SubtitleLine `json:"lines,omitempty"`
}

// Media mirrors the processing record of a topic.
type Media struct {
	OriginalSize  int64   `json:"originalSize"`
	Size          int64   `json:"size"`
	LengthSeconds float64 `json:"lengthSeconds"`
	ProcessMillis int64   `json:"processMillis"`
	AsrStatus     string  `json:"asrStatus"`
	ConvertStatus string  `json:"convertStatus"`
	Error         string  `json:"error,omitempty"`
	SubmittedAt   string  `json:"submittedAt,omitempty"`
}

// SubtitleLine is a single cue with millisecond offsets.
type SubtitleLine struct {
	Index   int    `json:"index"`
	StartMS int64  `json:"startMs"`
	EndMS   int64  `json:"endMs"`
	Text    string `json:"text"`
}

// LaneStatus mirrors scheduler state for one lane.
type LaneStatus struct {
	Name       string `json:"name"`
	State      string `json:"state"`
	Ready      bool   `json:"ready"`
	Detail     string `json:"detail,omitempty"`
	Runs       int64  `json:"runs"`
	Failures   int64  `json:"failures"`
	LastStart  string `json:"lastStart,omitempty"`
	LastFinish string `json:"lastFinish,omitempty"`
	LastError  string `json:"lastError,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// TopicCounts summarizes topics by status and branch.
type TopicCounts struct {
	Total          int `json:"total"`
	Normal         int `json:"normal"`
	Paused         int `json:"paused"`
	Archived       int `json:"archived"`
	Removed        int `json:"removed"`
	AsrPending     int `json:"asrPending"`
	AsrInFlight    int `json:"asrInFlight"`
	AsrFailed      int `json:"asrFailed"`
	ConvertPending int `json:"convertPending"`
	Converting     int `json:"converting"`
	ConvertFailed  int `json:"convertFailed"`
}

// StorageUsage reports the footprint of the storage roots.
type StorageUsage struct {
	RawBytes    int64  `json:"rawBytes"`
	StreamBytes int64  `json:"streamBytes"`
	FreeBytes   uint64 `json:"freeBytes"`
	TotalBytes  uint64 `json:"totalBytes"`
}

// CheckResult reports one preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	DatabasePath string             `json:"databasePath"`
	LockFilePath string             `json:"lockFilePath"`
	Lanes        []LaneStatus       `json:"lanes"`
	Dependencies []DependencyStatus `json:"dependencies"`
	Checks       []CheckResult      `json:"checks,omitempty"`
	Topics       TopicCounts        `json:"topics"`
	Storage      *StorageUsage      `json:"storage,omitempty"`
	Errors       []string           `json:"errors,omitempty"`
}

// ActionRequest is the body of a batch lifecycle operation.
type ActionRequest struct {
	IDs []int64 `json:"ids"`
	// Asr and Convert select branches for re-execute. Both false resets both.
	Asr     bool `json:"asr,omitempty"`
	Convert bool `json:"convert,omitempty"`
	// FrameRate and WordLimit are applied by configure. Zero clears an override.
	FrameRate float64 `json:"frameRate,omitempty"`
	WordLimit int     `json:"wordLimit,omitempty"`
}

// ActionResult is the outcome of one id in a batch.
type ActionResult struct {
	ID    int64  `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
	Hint  string `json:"hint,omitempty"`
}

// ActionResponse wraps batch results.
type ActionResponse struct {
	Action  string         `json:"action"`
	Results []ActionResult `json:"results"`
}

// ReloadRequest names a subtitle file inside the daemon's upload directory.
// Relative paths resolve against that directory.
type ReloadRequest struct {
	Path string `json:"path"`
}

// TopicListResponse wraps a collection of topics.
type TopicListResponse struct {
	Items []Topic `json:"items"`
}

// TopicResponse wraps a single topic.
type TopicResponse struct {
	Item Topic `json:"item"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// APIError carries a machine code and a readable message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}
