package api

import (
	"slices"
	"strings"
	"time"

	"subline/internal/deps"
	"subline/internal/lane"
	"subline/internal/lifecycle"
	"subline/internal/preflight"
	"subline/internal/scheduler"
	"subline/internal/services"
	"subline/internal/storage"
	"subline/internal/topic"
)

// FromTopic converts a topic record to its API representation.
func FromTopic(t *topic.Topic) Topic {
	if t == nil {
		return Topic{}
	}
	dto := Topic{
		ID:            t.ID,
		Name:          t.Name,
		Extension:     t.Extension,
		Creator:       t.Creator,
		Status:        string(t.Status),
		CreatedOption: string(t.CreatedOption),
		ModelName:     t.ModelName,
		AsrTaskID:     t.AsrTaskID,
		FrameRate:     t.FrameRate,
		WordLimit:     t.WordLimit,
		RawObject:     t.RawObject,
		Media: Media{
			OriginalSize:  t.Media.OriginalSize,
			Size:          t.Media.Size,
			LengthSeconds: t.Media.Length.Seconds(),
			ProcessMillis: t.Media.ProcessTime.Milliseconds(),
			AsrStatus:     string(t.Media.AsrStatus),
			ConvertStatus: string(t.Media.ConvertStatus),
			Error:         t.Media.Error(),
			SubmittedAt:   formatTime(derefTime(t.Media.SubmittedAt)),
		},
		CreatedAt: formatTime(t.CreatedAt),
		UpdatedAt: formatTime(t.UpdatedAt),
	}
	return dto
}

// FromTopics converts a slice of topics, preserving order.
func FromTopics(topics []*topic.Topic) []Topic {
	out := make([]Topic, 0, len(topics))
	for _, t := range topics {
		out = append(out, FromTopic(t))
	}
	return out
}

// FromLines converts stored subtitle lines.
func FromLines(lines []topic.SubtitleLine) []SubtitleLine {
	if len(lines) == 0 {
		return nil
	}
	out := make([]SubtitleLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, SubtitleLine{
			Index:   line.Index,
			StartMS: line.Start.Milliseconds(),
			EndMS:   line.End.Milliseconds(),
			Text:    line.Text,
		})
	}
	return out
}

// FromLaneStatuses merges scheduler counters with lane health, ordered by name.
func FromLaneStatuses(statuses []scheduler.LaneStatus, health []lane.Health) []LaneStatus {
	byName := make(map[string]lane.Health, len(health))
	for _, h := range health {
		byName[h.Name] = h
	}
	out := make([]LaneStatus, 0, len(statuses))
	for _, st := range statuses {
		dto := LaneStatus{
			Name:       st.Name,
			State:      st.State.String(),
			Runs:       st.Runs,
			Failures:   st.Failures,
			LastStart:  formatTime(st.LastStart),
			LastFinish: formatTime(st.LastFinish),
			LastError:  st.LastError,
		}
		if h, ok := byName[st.Name]; ok {
			dto.Ready = h.Ready
			dto.Detail = h.Detail
		}
		out = append(out, dto)
	}
	slices.SortFunc(out, func(a, b LaneStatus) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// FromDependencies converts binary availability checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, dep := range statuses {
		out = append(out, DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	return out
}

// FromChecks converts preflight results.
func FromChecks(results []preflight.Result) []CheckResult {
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		out = append(out, CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	return out
}

// FromHealth converts store counters.
func FromHealth(h topic.HealthSummary) TopicCounts {
	return TopicCounts{
		Total:          h.Total,
		Normal:         h.Normal,
		Paused:         h.Paused,
		Archived:       h.Archived,
		Removed:        h.Removed,
		AsrPending:     h.AsrPending,
		AsrInFlight:    h.AsrInFlight,
		AsrFailed:      h.AsrFailed,
		ConvertPending: h.ConvertPending,
		Converting:     h.Converting,
		ConvertFailed:  h.ConvertFailed,
	}
}

// FromUsage converts a storage usage snapshot.
func FromUsage(u storage.Usage) *StorageUsage {
	return &StorageUsage{
		RawBytes:    u.RawBytes,
		StreamBytes: u.StreamBytes,
		FreeBytes:   u.FreeBytes,
		TotalBytes:  u.TotalBytes,
	}
}

// FromResults converts lifecycle batch results.
func FromResults(results []lifecycle.Result) []ActionResult {
	out := make([]ActionResult, 0, len(results))
	for _, r := range results {
		out = append(out, FromResult(r))
	}
	return out
}

// FromResult converts one lifecycle result.
func FromResult(r lifecycle.Result) ActionResult {
	dto := ActionResult{ID: r.ID, OK: r.OK}
	if r.Err != nil {
		details := services.Details(r.Err)
		dto.Error = r.Err.Error()
		dto.Kind = errorKind(r.Err)
		dto.Hint = details.Hint
	}
	return dto
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(dateTimeFormat)
}

func derefTime(value *time.Time) time.Time {
	if value == nil {
		return time.Time{}
	}
	return *value
}
