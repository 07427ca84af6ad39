package transcription

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"subline/internal/services"
	"subline/internal/services/asr"
	"subline/internal/storage"
	"subline/internal/subtitle"
	"subline/internal/testsupport"
	"subline/internal/topic"
)

type fakeProvider struct {
	mu         sync.Mutex
	submitted  []asr.SubmitRequest
	submitID   string
	submitErr  error
	task       asr.TaskInfo
	taskErr    error
	words      []subtitle.Word
	subtitle   string
	transcript string
	fetchErr   error
	onSubmit   func()
}

func (f *fakeProvider) Submit(_ context.Context, req asr.SubmitRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	if f.onSubmit != nil {
		f.onSubmit()
	}
	return f.submitID, f.submitErr
}

func (f *fakeProvider) Task(_ context.Context, id string) (asr.TaskInfo, error) {
	info := f.task
	info.ID = id
	return info, f.taskErr
}

func (f *fakeProvider) ListTasks(context.Context) ([]asr.TaskInfo, error) {
	return []asr.TaskInfo{f.task}, nil
}

func (f *fakeProvider) SubtitleLink(context.Context, string) (string, error) {
	return "mem://subtitle", f.fetchErr
}

func (f *fakeProvider) TranscriptLink(context.Context, string) (string, error) {
	return "mem://transcript", f.fetchErr
}

func (f *fakeProvider) WordSegments(context.Context, string) ([]subtitle.Word, error) {
	return f.words, nil
}

func (f *fakeProvider) RetrieveText(_ context.Context, url string) (string, error) {
	if url == "mem://subtitle" {
		return f.subtitle, nil
	}
	return f.transcript, nil
}

type fixture struct {
	store    *topic.Store
	provider *fakeProvider
	lane     *Lane
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	files, err := storage.FromConfig(cfg)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	provider := &fakeProvider{submitID: "42"}
	return fixture{store: store, provider: provider, lane: New(cfg, store, provider, files, nil)}
}

func TestRunOnceNoEligibleTopicIsNoop(t *testing.T) {
	f := newFixture(t)
	if err := f.lane.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(f.provider.submitted) != 0 {
		t.Fatalf("expected no submissions, got %d", len(f.provider.submitted))
	}
}

func TestSubmitThenPollToCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tp := testsupport.NewTopic(t, f.store, "lecture")

	if err := f.lane.RunOnce(ctx); err != nil {
		t.Fatalf("submit run: %v", err)
	}
	got := testsupport.MustGet(t, f.store, tp.ID)
	if got.Media.AsrStatus != topic.AsrSubmitted || got.AsrTaskID != "42" {
		t.Fatalf("after submit: status=%s task=%q", got.Media.AsrStatus, got.AsrTaskID)
	}
	if len(f.provider.submitted) != 1 || f.provider.submitted[0].Reference == "" {
		t.Fatalf("unexpected submissions %+v", f.provider.submitted)
	}

	f.provider.task = asr.TaskInfo{State: asr.TaskRunning}
	if err := f.lane.RunOnce(ctx); err != nil {
		t.Fatalf("running poll: %v", err)
	}
	if got := testsupport.MustGet(t, f.store, tp.ID); got.Media.AsrStatus != topic.AsrProcessing {
		t.Fatalf("expected processing, got %s", got.Media.AsrStatus)
	}

	f.provider.task = asr.TaskInfo{State: asr.TaskSucceeded, Duration: time.Second}
	f.provider.words = []subtitle.Word{
		{Text: "Hello", Start: 0, End: 400 * time.Millisecond},
		{Text: "world.", Start: 500 * time.Millisecond, End: time.Second},
		{Text: "Again.", Start: 1200 * time.Millisecond, End: 1600 * time.Millisecond},
	}
	if err := f.lane.RunOnce(ctx); err != nil {
		t.Fatalf("completion poll: %v", err)
	}
	got = testsupport.MustGet(t, f.store, tp.ID)
	if got.Media.AsrStatus != topic.AsrCompleted {
		t.Fatalf("expected completed, got %s", got.Media.AsrStatus)
	}
	if got.Media.Error() != "" {
		t.Fatalf("expected no error on completion, got %q", got.Media.Error())
	}
	for _, kind := range []topic.LineKind{topic.LinesOriginal, topic.LinesCurrent} {
		lines, err := f.store.Lines(ctx, tp.ID, kind)
		if err != nil {
			t.Fatalf("Lines(%s): %v", kind, err)
		}
		if len(lines) != 2 {
			t.Fatalf("expected 2 %s lines, got %d", kind, len(lines))
		}
	}
	transcript, err := f.store.Transcript(ctx, tp.ID)
	if err != nil || transcript == nil {
		t.Fatalf("Transcript: %v %v", transcript, err)
	}
	if transcript.Text != "Hello world. Again." || len(transcript.Words) != 3 {
		t.Fatalf("unexpected transcript %+v", transcript)
	}
}

func TestCompletionFallsBackToSubtitleFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tp := testsupport.NewTopic(t, f.store, "talk")
	mustSubmit(t, f.store, tp.ID)

	f.provider.task = asr.TaskInfo{State: asr.TaskSucceeded}
	f.provider.transcript = "Hi there."
	f.provider.subtitle = "1\n00:00:00,000 --> 00:00:01,000\nHi there.\n"
	if err := f.lane.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	lines, err := f.store.Lines(ctx, tp.ID, topic.LinesCurrent)
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if len(lines) != 1 || lines[0].Text != "Hi there." {
		t.Fatalf("unexpected lines %+v", lines)
	}
}

func TestCompletionFallsBackToPlainText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tp := testsupport.NewTopic(t, f.store, "talk")
	mustSubmit(t, f.store, tp.ID)

	f.provider.task = asr.TaskInfo{State: asr.TaskSucceeded, Duration: 4 * time.Second}
	f.provider.transcript = "First sentence here. Second one follows."
	if err := f.lane.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	lines, err := f.store.Lines(ctx, tp.ID, topic.LinesOriginal)
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines from text, got %+v", lines)
	}
}

func TestEmptyResultsFailTopic(t *testing.T) {
	f := newFixture(t)
	tp := testsupport.NewTopic(t, f.store, "silent")
	mustSubmit(t, f.store, tp.ID)

	f.provider.task = asr.TaskInfo{State: asr.TaskSucceeded}
	if err := f.lane.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got := testsupport.MustGet(t, f.store, tp.ID)
	if got.Media.AsrStatus != topic.AsrFailed || got.Media.AsrError == "" {
		t.Fatalf("expected failed with error, got %s %q", got.Media.AsrStatus, got.Media.AsrError)
	}
}

func TestProviderFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	tp := testsupport.NewTopic(t, f.store, "broken")
	mustSubmit(t, f.store, tp.ID)

	f.provider.task = asr.TaskInfo{State: asr.TaskFailed, Error: "timeout"}
	if err := f.lane.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got := testsupport.MustGet(t, f.store, tp.ID)
	if got.Media.AsrStatus != topic.AsrFailed || got.Media.AsrError != "timeout" {
		t.Fatalf("expected failed/timeout, got %s %q", got.Media.AsrStatus, got.Media.AsrError)
	}
}

func TestPermanentSubmitErrorMarksFailed(t *testing.T) {
	f := newFixture(t)
	tp := testsupport.NewTopic(t, f.store, "rejected")
	f.provider.submitErr = services.Wrap(services.ErrPermanent, "transcription", "submit", "400 Bad Request: unsupported codec", nil)

	if err := f.lane.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got := testsupport.MustGet(t, f.store, tp.ID)
	if got.Media.AsrStatus != topic.AsrFailed {
		t.Fatalf("expected failed, got %s", got.Media.AsrStatus)
	}
	if got.AsrTaskID != "" {
		t.Fatalf("task id must stay unset before submission, got %q", got.AsrTaskID)
	}
}

func TestTransientErrorLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	tp := testsupport.NewTopic(t, f.store, "flaky")
	f.provider.submitErr = services.Wrap(services.ErrTransient, "transcription", "submit", "502 Bad Gateway", nil)

	err := f.lane.RunOnce(context.Background())
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error to surface, got %v", err)
	}
	got := testsupport.MustGet(t, f.store, tp.ID)
	if got.Media.AsrStatus != topic.AsrPending || got.Media.AsrError != "" {
		t.Fatalf("expected untouched pending topic, got %s %q", got.Media.AsrStatus, got.Media.AsrError)
	}

	mustSubmit(t, f.store, tp.ID)
	f.provider.taskErr = services.Wrap(services.ErrTransient, "transcription", "task", "connection reset", nil)
	if err := f.lane.RunOnce(context.Background()); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient poll error, got %v", err)
	}
	if got := testsupport.MustGet(t, f.store, tp.ID); got.Media.AsrStatus != topic.AsrSubmitted {
		t.Fatalf("expected submitted after transient poll, got %s", got.Media.AsrStatus)
	}
}

func TestProviderTimeoutFailsTopicAndFreesLane(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"task_id":"next","status":"queued"}`))
			return
		}
		select {
		case <-release:
		case <-time.After(300 * time.Millisecond):
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	files, err := storage.FromConfig(cfg)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	client, err := asr.New(asr.Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("asr.New: %v", err)
	}
	l := New(cfg, store, client, files, nil)

	stuck := testsupport.NewTopic(t, store, "stuck")
	mustSubmit(t, store, stuck.ID)
	waiting := testsupport.NewTopic(t, store, "waiting")

	if err := l.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got := testsupport.MustGet(t, store, stuck.ID)
	if got.Media.AsrStatus != topic.AsrFailed || got.Media.AsrError != "timeout" {
		t.Fatalf("expected failed/timeout, got %s %q", got.Media.AsrStatus, got.Media.AsrError)
	}
	got = testsupport.MustGet(t, store, waiting.ID)
	if got.Media.AsrStatus != topic.AsrSubmitted || got.AsrTaskID != "next" {
		t.Fatalf("expected waiting topic submitted, got %s %q", got.Media.AsrStatus, got.AsrTaskID)
	}
}

func TestTransientPollErrorDoesNotBlockSubmission(t *testing.T) {
	f := newFixture(t)
	inFlight := testsupport.NewTopic(t, f.store, "in-flight")
	mustSubmit(t, f.store, inFlight.ID)
	pending := testsupport.NewTopic(t, f.store, "pending")
	f.provider.taskErr = services.Wrap(services.ErrTransient, "transcription", "task", "503 Service Unavailable", nil)

	err := f.lane.RunOnce(context.Background())
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient poll error to surface, got %v", err)
	}
	if got := testsupport.MustGet(t, f.store, inFlight.ID); got.Media.AsrStatus != topic.AsrSubmitted {
		t.Fatalf("in-flight topic changed to %s", got.Media.AsrStatus)
	}
	if got := testsupport.MustGet(t, f.store, pending.ID); got.Media.AsrStatus != topic.AsrSubmitted {
		t.Fatalf("expected pending topic submitted, got %s", got.Media.AsrStatus)
	}
}

func TestSubmissionLandsWhenPausedDuringCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tp := testsupport.NewTopic(t, f.store, "paused-mid-call")
	f.provider.onSubmit = func() {
		if err := f.store.TransitionStatus(ctx, tp.ID, []topic.Status{topic.StatusNormal}, topic.StatusPaused); err != nil {
			t.Errorf("pause: %v", err)
		}
	}

	if err := f.lane.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got := testsupport.MustGet(t, f.store, tp.ID)
	if got.Status != topic.StatusPaused {
		t.Fatalf("expected paused topic, got %s", got.Status)
	}
	if got.Media.AsrStatus != topic.AsrSubmitted || got.AsrTaskID != "42" {
		t.Fatalf("expected provider task recorded, got %s %q", got.Media.AsrStatus, got.AsrTaskID)
	}
}

func TestPausedTopicIsNotSelected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := testsupport.NewTopic(t, f.store, "pending")
	polling := testsupport.NewTopic(t, f.store, "polling")
	mustSubmit(t, f.store, polling.ID)
	for _, id := range []int64{pending.ID, polling.ID} {
		if err := f.store.TransitionStatus(ctx, id, []topic.Status{topic.StatusNormal}, topic.StatusPaused); err != nil {
			t.Fatalf("pause %d: %v", id, err)
		}
	}
	f.provider.task = asr.TaskInfo{State: asr.TaskSucceeded}
	f.provider.transcript = "Done."

	for range 3 {
		if err := f.lane.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
	}
	if got := testsupport.MustGet(t, f.store, pending.ID); got.Media.AsrStatus != topic.AsrPending {
		t.Fatalf("paused pending topic changed to %s", got.Media.AsrStatus)
	}
	if got := testsupport.MustGet(t, f.store, polling.ID); got.Media.AsrStatus != topic.AsrSubmitted {
		t.Fatalf("paused submitted topic changed to %s", got.Media.AsrStatus)
	}
	if len(f.provider.submitted) != 0 {
		t.Fatalf("paused topic must not be submitted")
	}
}

func TestCanceledContextCommitsNothing(t *testing.T) {
	f := newFixture(t)
	tp := testsupport.NewTopic(t, f.store, "canceled")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.lane.RunOnce(ctx)
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
	if got := testsupport.MustGet(t, f.store, tp.ID); got.Media.AsrStatus != topic.AsrPending {
		t.Fatalf("expected pending, got %s", got.Media.AsrStatus)
	}
}

func TestOptionsPreferTopicSettings(t *testing.T) {
	defaults := subtitle.Options{FrameRate: 25, WordLimit: 12}
	got := (&topic.Topic{FrameRate: 30}).SubtitleOptions(defaults)
	if got.FrameRate != 30 || got.WordLimit != 12 {
		t.Fatalf("unexpected options %+v", got)
	}
}

func mustSubmit(t *testing.T, store *topic.Store, id int64) {
	t.Helper()
	err := store.TransitionAsr(context.Background(), id, []topic.AsrStatus{topic.AsrPending}, topic.AsrChange{
		To:     topic.AsrSubmitted,
		TaskID: "task-" + time.Now().Format("150405.000000"),
	})
	if err != nil {
		t.Fatalf("submit topic %d: %v", id, err)
	}
}
