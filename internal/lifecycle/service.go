package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"subline/internal/audit"
	"subline/internal/authz"
	"subline/internal/config"
	"subline/internal/logging"
	"subline/internal/services"
	"subline/internal/subtitle"
	"subline/internal/topic"
)

// Result is the outcome for one id of a batch.
type Result struct {
	ID  int64
	OK  bool
	Err error
}

// Targets selects which branches ReExecute resets. Zero value resets both.
type Targets struct {
	Asr     bool
	Convert bool
}

// Settings are per-topic subtitle derivation overrides. Zero clears a value.
type Settings struct {
	FrameRate float64
	WordLimit int
}

// Service performs lifecycle operations.
type Service struct {
	store      *topic.Store
	recorder   *audit.Recorder
	authorizer authz.Authorizer
	logger     *slog.Logger
	defaults   subtitle.Options
	uploadDir  string
}

// New constructs the lifecycle service. A nil authorizer uses the static tables.
func New(cfg *config.Config, store *topic.Store, recorder *audit.Recorder, authorizer authz.Authorizer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	if recorder == nil {
		recorder = audit.NewRecorder(store, logger, false)
	}
	if authorizer == nil {
		authorizer = authz.Static{}
	}
	return &Service{
		store:      store,
		recorder:   recorder,
		authorizer: authorizer,
		logger:     logging.NewComponentLogger(logger, "lifecycle"),
		defaults: subtitle.Options{
			FrameRate: cfg.Subtitle.DefaultFrameRate,
			WordLimit: cfg.Subtitle.DefaultWordLimit,
		},
		uploadDir: cfg.Paths.UploadDir,
	}
}

// Pause moves Normal topics to Paused.
func (s *Service) Pause(ctx context.Context, ids []int64) []Result {
	return s.batch(ctx, authz.ActionPause, ids, func(ctx context.Context, id int64) error {
		return s.transition(ctx, id, []topic.Status{topic.StatusNormal}, topic.StatusPaused)
	})
}

// Resume moves Paused topics back to Normal. Branch statuses are unchanged.
func (s *Service) Resume(ctx context.Context, ids []int64) []Result {
	return s.batch(ctx, authz.ActionResume, ids, func(ctx context.Context, id int64) error {
		return s.transition(ctx, id, []topic.Status{topic.StatusPaused}, topic.StatusNormal)
	})
}

// ReExecute returns topics to Normal and resets the targeted branches to
// Pending with their errors cleared.
func (s *Service) ReExecute(ctx context.Context, ids []int64, targets Targets) []Result {
	if !targets.Asr && !targets.Convert {
		targets = Targets{Asr: true, Convert: true}
	}
	return s.batch(ctx, authz.ActionReExecute, ids, func(ctx context.Context, id int64) error {
		return s.store.ResetPipeline(ctx, id, targets.Asr, targets.Convert)
	})
}

// SetNormal forces Status to Normal without touching branch statuses.
func (s *Service) SetNormal(ctx context.Context, ids []int64) []Result {
	return s.batch(ctx, authz.ActionSetNormal, ids, func(ctx context.Context, id int64) error {
		return s.transition(ctx, id, nil, topic.StatusNormal)
	})
}

// Archive moves Normal or Paused topics to Archived.
func (s *Service) Archive(ctx context.Context, ids []int64) []Result {
	return s.batch(ctx, authz.ActionArchive, ids, func(ctx context.Context, id int64) error {
		return s.transition(ctx, id, []topic.Status{topic.StatusNormal, topic.StatusPaused}, topic.StatusArchived)
	})
}

// Remove soft-deletes topics; retention reclaims them after the grace window.
func (s *Service) Remove(ctx context.Context, ids []int64) []Result {
	return s.batch(ctx, authz.ActionRemove, ids, func(ctx context.Context, id int64) error {
		return s.transition(ctx, id, nil, topic.StatusRemoved)
	})
}

// RecoverToOriginal replaces current subtitle lines with the originally
// generated ones.
func (s *Service) RecoverToOriginal(ctx context.Context, ids []int64) []Result {
	return s.batch(ctx, authz.ActionRecover, ids, func(ctx context.Context, id int64) error {
		if _, err := s.store.MustGet(ctx, id); err != nil {
			return err
		}
		original, err := s.store.Lines(ctx, id, topic.LinesOriginal)
		if err != nil {
			return err
		}
		if len(original) == 0 {
			return services.Wrap(services.ErrConsistency, "lifecycle", "recover", "topic has no original subtitle lines", nil)
		}
		return s.store.ReplaceLines(ctx, id, topic.LinesCurrent, original)
	})
}

// ReproduceSubtitle re-derives current lines from the stored transcript
// using the topic's present frame-rate and word-limit settings.
func (s *Service) ReproduceSubtitle(ctx context.Context, ids []int64) []Result {
	return s.batch(ctx, authz.ActionReproduce, ids, func(ctx context.Context, id int64) error {
		return s.reproduce(ctx, id)
	})
}

// Configure stores subtitle settings for topics, then re-derives their lines
// when a transcript exists.
func (s *Service) Configure(ctx context.Context, ids []int64, settings Settings) []Result {
	return s.batch(ctx, authz.ActionReproduce, ids, func(ctx context.Context, id int64) error {
		if settings.FrameRate < 0 || settings.WordLimit < 0 {
			return services.Wrap(services.ErrValidation, "lifecycle", "configure", "settings must not be negative", nil)
		}
		if err := s.store.UpdateSettings(ctx, id, settings.FrameRate, settings.WordLimit); err != nil {
			return err
		}
		err := s.reproduce(ctx, id)
		if errors.Is(err, errNoTranscript) {
			return nil
		}
		return err
	})
}

var errNoTranscript = services.Wrap(services.ErrConsistency, "lifecycle", "reproduce", "topic has no stored transcript", nil)

func (s *Service) reproduce(ctx context.Context, id int64) error {
	t, err := s.store.MustGet(ctx, id)
	if err != nil {
		return err
	}
	transcript, err := s.store.Transcript(ctx, id)
	if err != nil {
		return err
	}
	if transcript == nil {
		return errNoTranscript
	}
	opts := t.SubtitleOptions(s.defaults)
	var lines []topic.SubtitleLine
	if len(transcript.Words) > 0 {
		lines = subtitle.Derive(transcript.Words, opts)
	} else {
		lines = subtitle.FromText(transcript.Text, t.Media.Length, opts)
	}
	if len(lines) == 0 {
		return services.Wrap(services.ErrConsistency, "lifecycle", "reproduce", "transcript produced no lines", nil)
	}
	return s.store.ReplaceLines(ctx, id, topic.LinesCurrent, lines)
}

// ReloadSubtitle replaces a topic's current lines with those parsed from an
// uploaded SRT or WebVTT file.
func (s *Service) ReloadSubtitle(ctx context.Context, id int64, path string) Result {
	results := s.batch(ctx, authz.ActionReload, []int64{id}, func(ctx context.Context, id int64) error {
		if _, err := s.store.MustGet(ctx, id); err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return services.Wrap(services.ErrStorage, "lifecycle", "reload", filepath.Base(path), err)
		}
		lines, err := subtitle.Parse(path, data)
		if err != nil {
			return services.Wrap(services.ErrValidation, "lifecycle", "reload", "unreadable subtitle file", err)
		}
		if len(lines) == 0 {
			return services.Wrap(services.ErrValidation, "lifecycle", "reload", "subtitle file has no cues", nil)
		}
		return s.store.ReplaceLines(ctx, id, topic.LinesCurrent, lines)
	})
	return results[0]
}

// ReloadUpload reloads a topic's current lines from a file inside the
// configured upload directory. Relative names resolve against that directory;
// names escaping it are rejected before anything is read.
func (s *Service) ReloadUpload(ctx context.Context, id int64, name string) Result {
	path, err := resolveUpload(s.uploadDir, name)
	if err != nil {
		return Result{ID: id, Err: err}
	}
	return s.ReloadSubtitle(ctx, id, path)
}

func resolveUpload(dir, name string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", services.Wrap(services.ErrValidation, "lifecycle", "reload", "no upload directory configured", nil)
	}
	root := filepath.Clean(dir)
	path := filepath.Clean(name)
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	if !within(root, path) {
		return "", outsideUploads(name)
	}
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", services.Wrap(services.ErrStorage, "lifecycle", "reload", "upload directory", err)
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", services.Wrap(services.ErrStorage, "lifecycle", "reload", filepath.Base(path), err)
	}
	if !within(resolvedRoot, resolved) {
		return "", outsideUploads(name)
	}
	return resolved, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func outsideUploads(name string) error {
	return services.Wrap(services.ErrValidation, "lifecycle", "reload", fmt.Sprintf("%q is outside the upload directory", name), nil)
}

func (s *Service) transition(ctx context.Context, id int64, from []topic.Status, to topic.Status) error {
	err := s.store.TransitionStatus(ctx, id, from, to)
	if errors.Is(err, topic.ErrStaleState) {
		current, getErr := s.store.Get(ctx, id)
		if getErr == nil && current != nil {
			return fmt.Errorf("%w: cannot move from %s to %s", err, current.Status, to)
		}
	}
	return err
}

// batch authorizes action once, then runs op for each id independently.
func (s *Service) batch(ctx context.Context, action authz.Action, ids []int64, op func(context.Context, int64) error) []Result {
	results := make([]Result, 0, len(ids))
	if err := s.authorizer.Check(ctx, action); err != nil {
		for _, id := range ids {
			results = append(results, Result{ID: id, Err: err})
		}
		return results
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			results = append(results, Result{ID: id, Err: err})
			continue
		}
		idCtx := services.WithTopicID(ctx, id)
		err := s.recorder.Run(idCtx, string(action), func(ctx context.Context) error {
			return op(ctx, id)
		})
		results = append(results, Result{ID: id, OK: err == nil, Err: err})
	}
	return results
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
