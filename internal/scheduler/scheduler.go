package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"subline/internal/audit"
	"subline/internal/lane"
	"subline/internal/logging"
	"subline/internal/services"
)

// State is a lane guard value.
type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Lane pairs a runner with the cool-down held after each run.
type Lane struct {
	Runner   lane.Runner
	Cooldown time.Duration
}

// LaneStatus is a point-in-time view of one lane.
type LaneStatus struct {
	Name       string
	State      State
	Runs       int64
	Failures   int64
	LastStart  time.Time
	LastFinish time.Time
	LastError  string
}

type slot struct {
	runner   lane.Runner
	cooldown time.Duration
	state    atomic.Int32

	mu     sync.Mutex
	status LaneStatus
}

// Scheduler ticks lanes on a fixed interval.
type Scheduler struct {
	interval time.Duration
	slots    []*slot
	recorder *audit.Recorder
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	loop    sync.WaitGroup
	runs    sync.WaitGroup
}

// New constructs a Scheduler. A nil recorder logs failures only.
func New(interval time.Duration, recorder *audit.Recorder, logger *slog.Logger, lanes ...Lane) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if recorder == nil {
		recorder = audit.NewRecorder(nil, logger, true)
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s := &Scheduler{
		interval: interval,
		recorder: recorder,
		logger:   logging.NewComponentLogger(logger, "scheduler"),
	}
	for _, l := range lanes {
		if l.Runner == nil {
			continue
		}
		s.slots = append(s.slots, &slot{
			runner:   l.Runner,
			cooldown: l.Cooldown,
			status:   LaneStatus{Name: l.Runner.Name()},
		})
	}
	return s
}

// Start launches the tick loop. The first tick fires immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}
	if len(s.slots) == 0 {
		return errors.New("scheduler has no lanes")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.loop.Add(1)
	go s.tickLoop(runCtx)
	s.logger.Info("scheduler started",
		logging.Duration("tick", s.interval),
		logging.Int("lanes", len(s.slots)),
	)
	return nil
}

// Stop halts scheduling, cancels in-flight runs cooperatively, and waits for
// them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.loop.Wait()
	s.runs.Wait()
	s.logger.Info("scheduler stopped")
}

// Wait blocks until all launched runs, including cool-downs, have finished.
func (s *Scheduler) Wait() {
	s.runs.Wait()
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.loop.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick starts one run for every Idle lane and returns the names launched.
// It never blocks on lane work.
func (s *Scheduler) Tick(ctx context.Context) []string {
	if ctx.Err() != nil {
		return nil
	}
	var launched []string
	for _, sl := range s.slots {
		if !sl.state.CompareAndSwap(int32(Idle), int32(Running)) {
			continue
		}
		s.runs.Add(1)
		launched = append(launched, sl.runner.Name())
		go s.run(ctx, sl)
	}
	return launched
}

func (s *Scheduler) run(ctx context.Context, sl *slot) {
	defer s.runs.Done()
	defer sl.state.Store(int32(Idle))

	name := sl.runner.Name()
	started := time.Now()
	sl.mu.Lock()
	sl.status.LastStart = started
	sl.mu.Unlock()

	err := s.recorder.Run(services.WithLane(ctx, name), name, sl.runner.RunOnce)

	sl.mu.Lock()
	sl.status.Runs++
	sl.status.LastFinish = time.Now()
	sl.status.LastError = ""
	if err != nil {
		sl.status.Failures++
		sl.status.LastError = err.Error()
	}
	sl.mu.Unlock()

	if sl.cooldown <= 0 {
		return
	}
	timer := time.NewTimer(sl.cooldown)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Status returns a snapshot of every lane.
func (s *Scheduler) Status() []LaneStatus {
	out := make([]LaneStatus, 0, len(s.slots))
	for _, sl := range s.slots {
		sl.mu.Lock()
		status := sl.status
		sl.mu.Unlock()
		status.State = State(sl.state.Load())
		out = append(out, status)
	}
	return out
}

// Health runs every lane's health check.
func (s *Scheduler) Health(ctx context.Context) []lane.Health {
	out := make([]lane.Health, 0, len(s.slots))
	for _, sl := range s.slots {
		out = append(out, sl.runner.HealthCheck(ctx))
	}
	return out
}
