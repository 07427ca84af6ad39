package transcoding

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"subline/internal/config"
	"subline/internal/deps"
	"subline/internal/lane"
	"subline/internal/logging"
	"subline/internal/services"
	"subline/internal/services/transcoder"
	"subline/internal/storage"
	"subline/internal/topic"
)

const revertTimeout = 10 * time.Second

// Lane drives the transcoding branch of the topic state machine.
type Lane struct {
	store        *topic.Store
	invoker      transcoder.Invoker
	files        *storage.Store
	logger       *slog.Logger
	profile      transcoder.Profile
	requirements []deps.Requirement
}

var _ lane.Runner = (*Lane)(nil)

// New constructs the transcoding lane.
func New(cfg *config.Config, store *topic.Store, invoker transcoder.Invoker, files *storage.Store, logger *slog.Logger) *Lane {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Lane{
		store:        store,
		invoker:      invoker,
		files:        files,
		logger:       logging.NewComponentLogger(logger, lane.Transcoding),
		profile:      transcoder.Profile(cfg.Transcoder.Profile),
		requirements: deps.TranscoderRequirements(cfg),
	}
}

// Name returns the lane name.
func (l *Lane) Name() string { return lane.Transcoding }

// HealthCheck verifies the transcoder binaries resolve.
func (l *Lane) HealthCheck(ctx context.Context) lane.Health {
	if l.invoker == nil {
		return lane.Unhealthy(l.Name(), "transcoder not configured")
	}
	if missing := deps.Missing(deps.CheckBinaries(l.requirements)); len(missing) > 0 {
		return lane.Unhealthy(l.Name(), missing[0].Detail)
	}
	if err := l.store.Ping(ctx); err != nil {
		return lane.Unhealthy(l.Name(), "topic store unavailable: "+err.Error())
	}
	return lane.Healthy(l.Name())
}

// RunOnce converts at most one topic.
func (l *Lane) RunOnce(ctx context.Context) error {
	ctx = services.WithLane(ctx, lane.Transcoding)
	t, err := l.store.NextForConversion(ctx)
	if err != nil || t == nil {
		return err
	}
	return l.convert(services.WithTopicID(ctx, t.ID), t)
}

// convert runs one conversion of the selected topic. The benchmark opened
// for the run is discarded unless the run commits a transition.
func (l *Lane) convert(ctx context.Context, t *topic.Topic) error {
	logger := logging.WithContext(ctx, l.logger)

	benchID, err := l.store.StartBenchmark(ctx, t.ID, topic.PullFromLocal)
	if err != nil {
		return err
	}
	keepBenchmark := false
	defer func() {
		if !keepBenchmark {
			l.discardBenchmark(ctx, benchID)
		}
	}()
	mark := func(m topic.Mark) {
		if err := l.store.MarkBenchmark(ctx, benchID, m); err != nil {
			logger.Warn("benchmark mark failed", logging.Error(err))
		}
	}

	rawPath := l.files.RawPath(t)
	present, err := l.files.Exists(rawPath)
	if err != nil {
		return err
	}
	mark(topic.MarkPullRawFile)
	if !present {
		keepBenchmark = true
		return l.failFrom(ctx, t, topic.ConvertPending, true,
			services.Wrap(services.ErrLocalTranscode, lane.Transcoding, "locate raw", "raw media missing: "+t.RawObject, nil))
	}
	if _, err := l.files.Size(rawPath); err != nil {
		return err
	}
	mark(topic.MarkSavedRawFile)

	err = l.store.TransitionConvert(ctx, t.ID, []topic.ConvertStatus{topic.ConvertPending}, topic.ConvertChange{
		To:            topic.ConvertConverting,
		RequireNormal: true,
	})
	if errors.Is(err, topic.ErrStaleState) || errors.Is(err, topic.ErrNotFound) {
		logger.Info("topic changed before conversion; skipping", logging.String(logging.FieldEventType, "convert_stale"))
		return nil
	}
	if err != nil {
		return err
	}
	keepBenchmark = true
	mark(topic.MarkStartedConvert)

	target := l.files.StreamDir(t)
	result, err := l.invoker.Run(ctx, transcoder.Request{Source: rawPath, Target: target, Profile: l.profile})
	if err != nil {
		return l.handleRunError(ctx, t, result, err)
	}
	mark(topic.MarkCompletedConvert)

	size, err := l.files.Size(target)
	if err != nil {
		l.revert(ctx, t)
		return err
	}
	length, err := l.invoker.Probe(ctx, rawPath)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			l.revert(ctx, t)
			return ctxErr
		}
		logging.WarnWithContext(logger, "media probe failed; length left unset", "convert_probe_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ffprobe_binary in [transcoder]"),
		)
	}

	err = l.store.TransitionConvert(ctx, t.ID, []topic.ConvertStatus{topic.ConvertConverting}, topic.ConvertChange{
		To:          topic.ConvertCompleted,
		Size:        size,
		Length:      length,
		ProcessTime: result.Duration,
	})
	if errors.Is(err, topic.ErrStaleState) || errors.Is(err, topic.ErrNotFound) {
		logger.Info("topic changed during conversion; result discarded", logging.String(logging.FieldEventType, "convert_stale"))
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("conversion completed",
		logging.Int64("size_bytes", size),
		logging.Duration("length", length),
		logging.Duration("elapsed", result.Duration),
		logging.String(logging.FieldEventType, "convert_completed"),
	)
	return nil
}

func (l *Lane) handleRunError(ctx context.Context, t *topic.Topic, result transcoder.Result, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		l.revert(ctx, t)
		return err
	}
	if services.IsTransient(err) {
		l.revert(ctx, t)
		return err
	}
	if _, cleanupErr := l.files.DeleteStream(t); cleanupErr != nil {
		logging.WithContext(ctx, l.logger).Warn("partial stream cleanup failed", logging.Error(cleanupErr))
	}
	if strings.TrimSpace(result.OutputLog) != "" {
		logging.WithContext(ctx, l.logger).Debug("transcoder output", logging.String("output", result.OutputLog))
	}
	return l.failFrom(ctx, t, topic.ConvertConverting, false, err)
}

// failFrom records a conversion failure. The error is logged here and not
// returned, matching the transcription lane.
func (l *Lane) failFrom(ctx context.Context, t *topic.Topic, from topic.ConvertStatus, requireNormal bool, cause error) error {
	details := services.Details(cause)
	message := details.Message
	if message == "" {
		message = cause.Error()
	}
	err := l.store.TransitionConvert(ctx, t.ID, []topic.ConvertStatus{from}, topic.ConvertChange{
		To:            topic.ConvertFailed,
		Error:         message,
		RequireNormal: requireNormal,
	})
	if errors.Is(err, topic.ErrStaleState) || errors.Is(err, topic.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	logging.ErrorWithContext(logging.WithContext(ctx, l.logger), "conversion failed", "convert_failed",
		logging.String("error_kind", details.Kind),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.Error(cause),
	)
	return nil
}

func (l *Lane) discardBenchmark(ctx context.Context, benchID int64) {
	discardCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), revertTimeout)
	defer cancel()
	if err := l.store.DeleteBenchmark(discardCtx, benchID); err != nil {
		logging.WithContext(ctx, l.logger).Warn("failed to discard benchmark", logging.Error(err))
	}
}

// revert returns a claimed topic to Pending. It runs detached from ctx so a
// canceled run still releases its claim.
func (l *Lane) revert(ctx context.Context, t *topic.Topic) {
	revertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), revertTimeout)
	defer cancel()
	err := l.store.TransitionConvert(revertCtx, t.ID, []topic.ConvertStatus{topic.ConvertConverting}, topic.ConvertChange{
		To: topic.ConvertPending,
	})
	if err != nil && !errors.Is(err, topic.ErrStaleState) && !errors.Is(err, topic.ErrNotFound) {
		logging.WarnWithContext(logging.WithContext(ctx, l.logger), "failed to release conversion claim", "convert_revert_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "restart the daemon to reset interrupted conversions"),
		)
	}
	if _, err := l.files.DeleteStream(t); err != nil {
		logging.WithContext(ctx, l.logger).Warn("partial stream cleanup failed", logging.Error(err))
	}
}
