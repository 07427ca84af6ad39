package retention

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"subline/internal/config"
	"subline/internal/lane"
	"subline/internal/logging"
	"subline/internal/services"
	"subline/internal/storage"
	"subline/internal/topic"
)

// Report summarizes one retention pass.
type Report struct {
	Candidates int
	Reclaimed  []int64
	Skipped    []int64
	Failed     map[int64]error
}

// candidate is a selected topic with the cutoff its updated_at must still
// precede when it is reclaimed.
type candidate struct {
	topic  *topic.Topic
	cutoff time.Time
}

// Lane reclaims files and rows of retired topics.
type Lane struct {
	store         *topic.Store
	files         *storage.Store
	logger        *slog.Logger
	removedGrace  time.Duration
	archivedGrace time.Duration
	quota         int64
	now           func() time.Time
}

var _ lane.Runner = (*Lane)(nil)

// Option customizes the lane.
type Option func(*Lane)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Lane) {
		if now != nil {
			l.now = now
		}
	}
}

// New constructs the retention lane.
func New(cfg *config.Config, store *topic.Store, files *storage.Store, logger *slog.Logger, opts ...Option) *Lane {
	if logger == nil {
		logger = logging.NewNop()
	}
	l := &Lane{
		store:         store,
		files:         files,
		logger:        logging.NewComponentLogger(logger, lane.Retention),
		removedGrace:  cfg.RemovedGrace(),
		archivedGrace: cfg.ArchivedGrace(),
		quota:         cfg.ArchivedQuotaBytes(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the lane name.
func (l *Lane) Name() string { return lane.Retention }

// HealthCheck reports whether the store is reachable.
func (l *Lane) HealthCheck(ctx context.Context) lane.Health {
	if err := l.store.Ping(ctx); err != nil {
		return lane.Unhealthy(l.Name(), "topic store unavailable: "+err.Error())
	}
	return lane.Healthy(l.Name())
}

// RunOnce performs one retention pass.
func (l *Lane) RunOnce(ctx context.Context) error {
	report, err := l.Run(ctx)
	if err != nil {
		return err
	}
	if len(report.Failed) > 0 {
		errs := make([]error, 0, len(report.Failed))
		for _, failure := range report.Failed {
			errs = append(errs, failure)
		}
		return errors.Join(errs...)
	}
	return nil
}

// Run selects eligible topics and reclaims each one. Per-topic failures are
// collected in the report; the pass continues with the next topic.
func (l *Lane) Run(ctx context.Context) (Report, error) {
	ctx = services.WithLane(ctx, lane.Retention)
	candidates, err := l.candidates(ctx)
	if err != nil {
		return Report{}, err
	}
	report := Report{Candidates: len(candidates), Failed: map[int64]error{}}
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		id := c.topic.ID
		reclaimed, err := l.reclaim(services.WithTopicID(ctx, id), c)
		switch {
		case err != nil:
			report.Failed[id] = err
		case reclaimed:
			report.Reclaimed = append(report.Reclaimed, id)
		default:
			report.Skipped = append(report.Skipped, id)
		}
	}
	if len(report.Reclaimed) > 0 || len(report.Failed) > 0 {
		l.logger.Info("retention pass finished",
			logging.Int("candidates", report.Candidates),
			logging.Int("reclaimed", len(report.Reclaimed)),
			logging.Int("failed", len(report.Failed)),
			logging.String(logging.FieldEventType, "retention_pass"),
		)
	}
	return report, nil
}

// candidates returns Removed topics past the removed grace and Archived
// topics past the archived grace. While the archived footprint exceeds the
// quota, older Archived topics are added oldest first; the quota overrides
// the archived grace but never takes a topic inside the removed grace.
func (l *Lane) candidates(ctx context.Context) ([]candidate, error) {
	now := l.now()
	removedCutoff := now.Add(-l.removedGrace)
	archivedCutoff := now.Add(-l.archivedGrace)
	retired, err := l.store.RetentionCandidates(ctx, removedCutoff, archivedCutoff)
	if err != nil {
		return nil, err
	}
	selected := make([]candidate, 0, len(retired))
	for _, t := range retired {
		cutoff := removedCutoff
		if t.Status == topic.StatusArchived {
			cutoff = archivedCutoff
		}
		selected = append(selected, candidate{topic: t, cutoff: cutoff})
	}
	if l.quota <= 0 {
		return selected, nil
	}

	footprint, err := l.store.ArchivedFootprint(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool, len(selected))
	for _, c := range selected {
		seen[c.topic.ID] = true
		if c.topic.Status == topic.StatusArchived {
			footprint -= c.topic.Media.Size
		}
	}
	if footprint <= l.quota {
		return selected, nil
	}
	archived, err := l.store.ArchivedBefore(ctx, removedCutoff)
	if err != nil {
		return nil, err
	}
	for _, t := range archived {
		if footprint <= l.quota {
			break
		}
		if seen[t.ID] {
			continue
		}
		selected = append(selected, candidate{topic: t, cutoff: removedCutoff})
		footprint -= t.Media.Size
	}
	return selected, nil
}

// reclaim deletes stream files, raw media, then the row. The topic is
// reloaded first; a topic that left retirement or was touched after its
// cutoff is skipped, and the row delete repeats the check.
func (l *Lane) reclaim(ctx context.Context, c candidate) (bool, error) {
	logger := logging.WithContext(ctx, l.logger)
	t, err := l.store.Get(ctx, c.topic.ID)
	if err != nil {
		return false, err
	}
	if t == nil {
		return false, nil
	}
	if t.Status != topic.StatusRemoved && t.Status != topic.StatusArchived {
		logger.Info("topic returned to active lifecycle; skipping", logging.String("status", string(t.Status)))
		return false, nil
	}
	if !t.UpdatedAt.Before(c.cutoff) {
		logger.Info("topic changed since selection and is inside its grace window; skipping",
			logging.String("status", string(t.Status)),
		)
		return false, nil
	}

	streamRemoved, err := l.files.DeleteStream(t)
	if err != nil {
		return false, err
	}
	rawRemoved, err := l.files.DeleteRaw(t)
	if err != nil {
		return false, err
	}
	rowRemoved, err := l.store.Delete(ctx, t.ID, c.cutoff)
	if errors.Is(err, topic.ErrStaleState) {
		logging.WarnWithContext(logger, "topic reactivated after files were reclaimed", "retention_race",
			logging.String(logging.FieldErrorHint, "re-execute the topic to rebuild its files"),
		)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	logger.Info("reclaimed topic",
		logging.String("status", string(t.Status)),
		logging.Bool("stream_removed", streamRemoved),
		logging.Bool("raw_removed", rawRemoved),
		logging.Bool("row_removed", rowRemoved),
		logging.String(logging.FieldEventType, "retention_reclaimed"),
	)
	return true, nil
}
