package transcription

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"subline/internal/config"
	"subline/internal/lane"
	"subline/internal/logging"
	"subline/internal/services"
	"subline/internal/services/asr"
	"subline/internal/storage"
	"subline/internal/subtitle"
	"subline/internal/topic"
)

var inFlight = []topic.AsrStatus{topic.AsrSubmitted, topic.AsrProcessing}

// Lane drives the transcription branch of the topic state machine.
type Lane struct {
	store    *topic.Store
	provider asr.Provider
	files    *storage.Store
	logger   *slog.Logger

	defaults     subtitle.Options
	model        string
	language     string
	mediaBaseURL string
	now          func() time.Time
}

var _ lane.Runner = (*Lane)(nil)

// New constructs the transcription lane.
func New(cfg *config.Config, store *topic.Store, provider asr.Provider, files *storage.Store, logger *slog.Logger) *Lane {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Lane{
		store:    store,
		provider: provider,
		files:    files,
		logger:   logging.NewComponentLogger(logger, lane.Transcription),
		defaults: subtitle.Options{
			FrameRate: cfg.Subtitle.DefaultFrameRate,
			WordLimit: cfg.Subtitle.DefaultWordLimit,
		},
		model:        cfg.Provider.DefaultModel,
		language:     cfg.Provider.Language,
		mediaBaseURL: strings.TrimSpace(cfg.Provider.MediaBaseURL),
		now:          time.Now,
	}
}

// Name returns the lane name.
func (l *Lane) Name() string { return lane.Transcription }

// RunOnce polls the oldest in-flight topic, then submits the oldest pending
// one. A poll error does not prevent the submission.
func (l *Lane) RunOnce(ctx context.Context) error {
	ctx = services.WithLane(ctx, lane.Transcription)
	var pollErr error
	if t, err := l.store.NextForPolling(ctx); err != nil {
		return err
	} else if t != nil {
		pollErr = l.poll(services.WithTopicID(ctx, t.ID), t)
	}
	if err := ctx.Err(); err != nil {
		return errors.Join(pollErr, err)
	}
	t, err := l.store.NextForTranscription(ctx)
	if err != nil || t == nil {
		return errors.Join(pollErr, err)
	}
	return errors.Join(pollErr, l.submit(services.WithTopicID(ctx, t.ID), t))
}

// HealthCheck reports whether the store and provider are usable.
func (l *Lane) HealthCheck(ctx context.Context) lane.Health {
	if l.provider == nil {
		return lane.Unhealthy(l.Name(), "provider client not configured")
	}
	if err := l.store.Ping(ctx); err != nil {
		return lane.Unhealthy(l.Name(), "topic store unavailable: "+err.Error())
	}
	return lane.Healthy(l.Name())
}

func (l *Lane) submit(ctx context.Context, t *topic.Topic) error {
	logger := logging.WithContext(ctx, l.logger)
	model := t.ModelName
	if model == "" {
		model = l.model
	}
	taskID, err := l.provider.Submit(ctx, asr.SubmitRequest{
		MediaURL:  l.mediaURL(t),
		Model:     model,
		Language:  l.language,
		Reference: strconv.FormatInt(t.ID, 10),
	})
	if err != nil {
		return l.fail(ctx, t, []topic.AsrStatus{topic.AsrPending}, "submit", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// The task exists at the provider now, so it is recorded whatever the
	// topic's Status became during the call, as poll results are.
	err = l.store.TransitionAsr(ctx, t.ID, []topic.AsrStatus{topic.AsrPending}, topic.AsrChange{
		To:     topic.AsrSubmitted,
		TaskID: taskID,
		Model:  model,
	})
	if isStale(err) {
		logging.WarnWithContext(logger, "topic changed during submission; provider task abandoned", "asr_submit_stale",
			logging.String("task_id", taskID),
			logging.String(logging.FieldErrorHint, "the branch left Pending or the topic was deleted while submitting"),
		)
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("submitted topic for transcription",
		logging.String("task_id", taskID),
		logging.String("model", model),
		logging.String(logging.FieldEventType, "asr_submitted"),
	)
	return nil
}

func (l *Lane) poll(ctx context.Context, t *topic.Topic) error {
	logger := logging.WithContext(ctx, l.logger)
	if strings.TrimSpace(t.AsrTaskID) == "" {
		return l.fail(ctx, t, inFlight, "poll",
			services.Wrap(services.ErrPermanent, lane.Transcription, "poll", "topic has no provider task id", nil))
	}
	info, err := l.provider.Task(ctx, t.AsrTaskID)
	if err != nil {
		return l.fail(ctx, t, inFlight, "poll", err)
	}

	switch info.State {
	case asr.TaskQueued:
		logger.Debug("provider task queued", logging.String("task_id", t.AsrTaskID))
		return nil
	case asr.TaskRunning:
		if t.Media.AsrStatus == topic.AsrProcessing {
			return nil
		}
		return l.ignoreStale(ctx, l.store.TransitionAsr(ctx, t.ID, []topic.AsrStatus{topic.AsrSubmitted}, topic.AsrChange{
			To: topic.AsrProcessing,
		}))
	case asr.TaskFailed:
		message := strings.TrimSpace(info.Error)
		if message == "" {
			message = "provider reported task failure"
		}
		return l.fail(ctx, t, inFlight, "poll",
			services.Wrap(services.ErrPermanent, lane.Transcription, "poll", message, nil))
	case asr.TaskSucceeded:
		return l.complete(ctx, t, info)
	default:
		return nil
	}
}

func (l *Lane) complete(ctx context.Context, t *topic.Topic, info asr.TaskInfo) error {
	logger := logging.WithContext(ctx, l.logger)
	transcript, lines, err := l.collect(ctx, t, info)
	if err != nil {
		return l.fail(ctx, t, inFlight, "collect results", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	processTime := info.Duration
	if t.Media.SubmittedAt != nil {
		processTime = l.now().Sub(*t.Media.SubmittedAt)
	}
	if processTime < 0 {
		processTime = 0
	}
	err = l.store.CompleteTranscription(ctx, t.ID, inFlight, transcript, lines, processTime)
	if isStale(err) {
		return l.ignoreStale(ctx, err)
	}
	if err != nil {
		return err
	}
	logger.Info("transcription completed",
		logging.String("task_id", t.AsrTaskID),
		logging.Int("lines", len(lines)),
		logging.Duration("process_time", processTime),
		logging.String(logging.FieldEventType, "asr_completed"),
	)
	return nil
}

// collect fetches provider artifacts. Timed words are preferred; otherwise
// the provider's subtitle file is used, and plain text is the last resort.
func (l *Lane) collect(ctx context.Context, t *topic.Topic, info asr.TaskInfo) (topic.Transcript, []topic.SubtitleLine, error) {
	opts := t.SubtitleOptions(l.defaults)
	words, err := l.provider.WordSegments(ctx, t.AsrTaskID)
	if err != nil {
		return topic.Transcript{}, nil, err
	}
	text, err := l.fetch(ctx, t.AsrTaskID, l.provider.TranscriptLink)
	if err != nil {
		return topic.Transcript{}, nil, err
	}
	transcript := topic.Transcript{Text: strings.TrimSpace(text), Words: words}
	if transcript.Text == "" && len(words) > 0 {
		transcript.Text = joinWords(words)
	}

	if len(words) > 0 {
		return transcript, subtitle.Derive(words, opts), nil
	}

	raw, err := l.fetch(ctx, t.AsrTaskID, l.provider.SubtitleLink)
	if err != nil {
		return topic.Transcript{}, nil, err
	}
	if strings.TrimSpace(raw) != "" {
		lines, err := subtitle.Parse("provider", []byte(raw))
		if err != nil {
			return topic.Transcript{}, nil, services.Wrap(services.ErrPermanent, lane.Transcription, "parse subtitle", "malformed provider subtitle", err)
		}
		if len(lines) > 0 {
			return transcript, lines, nil
		}
	}

	if transcript.Text == "" {
		return topic.Transcript{}, nil, services.Wrap(services.ErrPermanent, lane.Transcription, "collect results", "provider returned no transcript content", nil)
	}
	duration := t.Media.Length
	if duration <= 0 {
		duration = info.Duration
	}
	return transcript, subtitle.FromText(transcript.Text, duration, opts), nil
}

func (l *Lane) fetch(ctx context.Context, taskID string, link func(context.Context, string) (string, error)) (string, error) {
	target, err := link(ctx, taskID)
	if err != nil {
		return "", err
	}
	return l.provider.RetrieveText(ctx, target)
}

// fail classifies err. Transient and storage errors leave state untouched
// and are returned for the scheduler's log wrapper. Cancellation of ctx is
// returned as-is. Everything else, provider timeouts included, moves the
// branch to Failed.
func (l *Lane) fail(ctx context.Context, t *topic.Topic, from []topic.AsrStatus, op string, cause error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(cause, context.Canceled) || services.IsTransient(cause) {
		return cause
	}
	details := services.Details(cause)
	message := details.Message
	if message == "" {
		message = cause.Error()
	}
	err := l.store.TransitionAsr(ctx, t.ID, from, topic.AsrChange{To: topic.AsrFailed, Error: message})
	if isStale(err) {
		return l.ignoreStale(ctx, err)
	}
	if err != nil {
		return err
	}
	logging.ErrorWithContext(logging.WithContext(ctx, l.logger), "transcription failed", "asr_failed",
		logging.String("operation", op),
		logging.String("error_kind", details.Kind),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.Error(cause),
	)
	return nil
}

func isStale(err error) bool {
	return errors.Is(err, topic.ErrStaleState) || errors.Is(err, topic.ErrNotFound)
}

func (l *Lane) ignoreStale(ctx context.Context, err error) error {
	if isStale(err) {
		logging.WithContext(ctx, l.logger).Info("topic changed during run; skipping commit",
			logging.String(logging.FieldEventType, "asr_stale"),
		)
		return nil
	}
	return err
}

func (l *Lane) mediaURL(t *topic.Topic) string {
	if l.mediaBaseURL != "" {
		if base, err := url.Parse(l.mediaBaseURL); err == nil {
			base.Path = path.Join(base.Path, t.RawObject)
			return base.String()
		}
	}
	return (&url.URL{Scheme: "file", Path: l.files.RawPath(t)}).String()
}

func joinWords(words []subtitle.Word) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if text := strings.TrimSpace(w.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
