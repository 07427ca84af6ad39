package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"subline/internal/api"
	"subline/internal/audit"
	"subline/internal/config"
	"subline/internal/deps"
	"subline/internal/ingest"
	"subline/internal/lane"
	"subline/internal/lifecycle"
	"subline/internal/logging"
	"subline/internal/preflight"
	"subline/internal/retention"
	"subline/internal/scheduler"
	"subline/internal/services/asr"
	"subline/internal/services/transcoder"
	"subline/internal/storage"
	"subline/internal/topic"
	"subline/internal/transcoding"
	"subline/internal/transcription"
)

// Option customizes daemon construction.
type Option func(*Daemon)

// WithProvider replaces the HTTP provider client.
func WithProvider(p asr.Provider) Option {
	return func(d *Daemon) {
		d.provider = p
	}
}

// WithInvoker replaces the transcoder CLI.
func WithInvoker(inv transcoder.Invoker) Option {
	return func(d *Daemon) {
		d.invoker = inv
	}
}

// Daemon coordinates the background lanes and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *topic.Store
	files    *storage.Store
	provider asr.Provider
	invoker  transcoder.Invoker

	recorder  *audit.Recorder
	scheduler *scheduler.Scheduler
	lifecycle *lifecycle.Service
	ingest    *ingest.Service
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	Lanes        []scheduler.LaneStatus
	Health       []lane.Health
	Dependencies []deps.Status
	Checks       []preflight.Result
	Topics       topic.HealthSummary
	Usage        *storage.Usage
	Errors       []string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *topic.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	files, err := storage.FromConfig(cfg)
	if err != nil {
		return nil, err
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "subline.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		files:    files,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.provider == nil {
		client, err := asr.New(asr.Config{
			BaseURL:     cfg.Provider.BaseURL,
			AppKey:      cfg.Provider.AppKey,
			AccessToken: cfg.Provider.AccessToken,
			InsecureTLS: cfg.Provider.InsecureTLS,
			Timeout:     time.Duration(cfg.Provider.RequestTimeout) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("provider client: %w", err)
		}
		d.provider = client
	}
	if d.invoker == nil {
		d.invoker = transcoder.NewCLI(
			transcoder.WithBinary(cfg.Transcoder.Binary),
			transcoder.WithProbeBinary(cfg.Transcoder.ProbeBinary),
			transcoder.WithTimeout(time.Duration(cfg.Transcoder.TimeoutSeconds)*time.Second),
		)
	}

	d.recorder = audit.NewRecorder(store, logger, cfg.Scheduler.LogOnlyOnError)
	d.scheduler = scheduler.New(cfg.TickInterval(), d.recorder, logger,
		scheduler.Lane{
			Runner:   transcription.New(cfg, store, d.provider, files, logger),
			Cooldown: seconds(cfg.Scheduler.TranscriptionCooldownSeconds),
		},
		scheduler.Lane{
			Runner:   transcoding.New(cfg, store, d.invoker, files, logger),
			Cooldown: seconds(cfg.Scheduler.TranscodingCooldownSeconds),
		},
		scheduler.Lane{
			Runner:   retention.New(cfg, store, files, logger),
			Cooldown: seconds(cfg.Scheduler.RetentionCooldownSeconds),
		},
	)
	d.lifecycle = lifecycle.New(cfg, store, d.recorder, nil, logger)
	d.ingest = ingest.New(store, files, nil, cfg.Provider.DefaultModel, logger)
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Start acquires the daemon lock, resets interrupted conversions, and launches
// the scheduler and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another subline daemon instance is already running")
	}

	reset, err := d.store.ResetInterrupted(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return err
	}
	if reset > 0 {
		d.logger.Info("reset interrupted conversions", logging.Int64("count", reset))
	}
	for _, check := range preflight.Failed(preflight.RunAll(ctx, d.cfg, d.provider)) {
		d.logger.Warn("preflight check failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.scheduler.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.scheduler.Stop()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("subline daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts the lanes and API server and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.scheduler.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("subline daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Lifecycle returns the operator action service.
func (d *Daemon) Lifecycle() *lifecycle.Service {
	return d.lifecycle
}

// Ingest returns the ingestion service.
func (d *Daemon) Ingest() *ingest.Service {
	return d.ingest
}

// Store returns the topic store.
func (d *Daemon) Store() *topic.Store {
	return d.store
}

// Status returns the current daemon status. Partial failures are reported in
// Errors rather than aborting the snapshot.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		Lanes:        d.scheduler.Status(),
		Health:       d.scheduler.Health(ctx),
		Dependencies: deps.CheckBinaries(deps.TranscoderRequirements(d.cfg)),
		Checks:       preflight.RunAll(ctx, d.cfg, d.provider),
	}
	if health, err := d.store.Health(ctx); err != nil {
		status.Errors = append(status.Errors, err.Error())
	} else {
		status.Topics = health
	}
	if usage, err := d.files.Usage(ctx); err != nil {
		status.Errors = append(status.Errors, err.Error())
	} else {
		status.Usage = &usage
	}
	return status
}

// APIStatus converts Status into its transport form.
func (d *Daemon) APIStatus(ctx context.Context) api.DaemonStatus {
	status := d.Status(ctx)
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Lanes:        api.FromLaneStatuses(status.Lanes, status.Health),
		Dependencies: api.FromDependencies(status.Dependencies),
		Checks:       api.FromChecks(status.Checks),
		Topics:       api.FromHealth(status.Topics),
		Errors:       status.Errors,
	}
	if status.Usage != nil {
		payload.Storage = api.FromUsage(*status.Usage)
	}
	return payload
}

// APIAddress returns the address the API server is bound to, or "" when the
// API is disabled or the daemon is stopped.
func (d *Daemon) APIAddress() string {
	return d.api.addr()
}
