package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subline/internal/audit"
	"subline/internal/lane"
	"subline/internal/topic"
)

type stubRunner struct {
	name     string
	calls    atomic.Int32
	active   atomic.Int32
	maxSeen  atomic.Int32
	release  chan struct{}
	err      error
	panicMsg string
}

func newStub(name string) *stubRunner {
	return &stubRunner{name: name}
}

func (s *stubRunner) Name() string { return s.name }

func (s *stubRunner) RunOnce(ctx context.Context) error {
	s.calls.Add(1)
	current := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if current <= seen || s.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.err
}

func (s *stubRunner) HealthCheck(context.Context) lane.Health {
	return lane.Healthy(s.name)
}

type memorySink struct {
	entries atomic.Int32
}

func (m *memorySink) RecordAudit(context.Context, topic.AuditEntry) error {
	m.entries.Add(1)
	return nil
}

func TestBackToBackTicksStartOneRunPerLane(t *testing.T) {
	runner := newStub("transcription")
	runner.release = make(chan struct{})
	s := New(time.Hour, nil, nil, Lane{Runner: runner})

	ctx := context.Background()
	first := s.Tick(ctx)
	second := s.Tick(ctx)
	require.Equal(t, []string{"transcription"}, first)
	assert.Empty(t, second)

	close(runner.release)
	s.Wait()
	assert.Equal(t, int32(1), runner.calls.Load())
	assert.Equal(t, int32(1), runner.maxSeen.Load())
}

func TestLanesRunIndependently(t *testing.T) {
	slow := newStub("transcoding")
	slow.release = make(chan struct{})
	fast := newStub("retention")
	s := New(time.Hour, nil, nil, Lane{Runner: slow}, Lane{Runner: fast})

	ctx := context.Background()
	require.ElementsMatch(t, []string{"transcoding", "retention"}, s.Tick(ctx))
	require.Eventually(t, func() bool { return fast.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		for _, st := range s.Status() {
			if st.Name == "retention" {
				return st.State == Idle
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	launched := s.Tick(ctx)
	assert.Equal(t, []string{"retention"}, launched)

	close(slow.release)
	s.Wait()
}

func TestCooldownHoldsGuard(t *testing.T) {
	runner := newStub("retention")
	s := New(time.Hour, nil, nil, Lane{Runner: runner, Cooldown: 200 * time.Millisecond})

	ctx := context.Background()
	require.Len(t, s.Tick(ctx), 1)
	require.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, s.Tick(ctx), "guard must be held during cool-down")
	assert.Equal(t, Running, s.Status()[0].State)

	require.Eventually(t, func() bool { return s.Status()[0].State == Idle }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, s.Tick(ctx), 1)
	s.Wait()
}

func TestFailuresAndPanicsAreContained(t *testing.T) {
	failing := newStub("transcription")
	failing.err = errors.New("provider down")
	panicking := newStub("transcoding")
	panicking.panicMsg = "boom"
	sink := &memorySink{}
	rec := audit.NewRecorder(sink, nil, true)
	s := New(time.Hour, rec, nil, Lane{Runner: failing}, Lane{Runner: panicking})

	s.Tick(context.Background())
	s.Wait()

	statuses := s.Status()
	require.Len(t, statuses, 2)
	for _, st := range statuses {
		assert.Equal(t, int64(1), st.Runs, st.Name)
		assert.Equal(t, int64(1), st.Failures, st.Name)
		assert.NotEmpty(t, st.LastError, st.Name)
		assert.Equal(t, Idle, st.State)
	}
	assert.Equal(t, int32(2), sink.entries.Load())
}

func TestStartStopCancelsCooperatively(t *testing.T) {
	runner := newStub("transcription")
	runner.release = make(chan struct{})
	s := New(10*time.Millisecond, nil, nil, Lane{Runner: runner, Cooldown: time.Hour})

	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, int32(1), runner.calls.Load())
	assert.Equal(t, int64(1), s.Status()[0].Failures, "canceled run reports context error")
}

func TestStartRequiresLanes(t *testing.T) {
	s := New(time.Second, nil, nil)
	assert.Error(t, s.Start(context.Background()))
}

func TestTickWithCanceledContextLaunchesNothing(t *testing.T) {
	runner := newStub("transcription")
	s := New(time.Hour, nil, nil, Lane{Runner: runner})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Nil(t, s.Tick(ctx))
	assert.Equal(t, int32(0), runner.calls.Load())
}

func TestHealthReportsEveryLane(t *testing.T) {
	s := New(time.Hour, nil, nil, Lane{Runner: newStub("a")}, Lane{Runner: newStub("b")})
	health := s.Health(context.Background())
	require.Len(t, health, 2)
	assert.True(t, health[0].Ready)
}
