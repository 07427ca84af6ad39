package topic_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"subline/internal/services"
	"subline/internal/subtitle"
	"subline/internal/testsupport"
	"subline/internal/topic"
)

func TestCreateDefaultsAndGet(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	created, err := store.Create(ctx, topic.NewTopic{Name: "  Weekly   Sync ", Extension: ".MP4", OriginalSize: 2048})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected id to be assigned")
	}
	if created.Name != "Weekly Sync" {
		t.Fatalf("expected normalized name, got %q", created.Name)
	}
	if created.Extension != "mp4" {
		t.Fatalf("expected lower-case extension without dot, got %q", created.Extension)
	}
	if created.Status != topic.StatusNormal || created.CreatedOption != topic.CreatedUpload {
		t.Fatalf("unexpected status/option: %s %s", created.Status, created.CreatedOption)
	}
	if created.Media.AsrStatus != topic.AsrPending || created.Media.ConvertStatus != topic.ConvertPending {
		t.Fatalf("expected both branches pending, got %s %s", created.Media.AsrStatus, created.Media.ConvertStatus)
	}
	if created.Media.OriginalSize != 2048 || created.AsrTaskID != "" {
		t.Fatalf("unexpected media: %+v task=%q", created.Media, created.AsrTaskID)
	}

	missing, err := store.Get(ctx, created.ID+100)
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing topic, got %v %v", missing, err)
	}

	if _, err := store.Create(ctx, topic.NewTopic{Name: "   "}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank name, got %v", err)
	}
}

func TestNextSelectorsSkipPausedAndPreferOldest(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first := testsupport.NewTopic(t, store, "first")
	second := testsupport.NewTopic(t, store, "second")

	if err := store.TransitionStatus(ctx, first.ID, []topic.Status{topic.StatusNormal}, topic.StatusPaused); err != nil {
		t.Fatalf("pause: %v", err)
	}

	next, err := store.NextForTranscription(ctx)
	if err != nil {
		t.Fatalf("NextForTranscription: %v", err)
	}
	if next == nil || next.ID != second.ID {
		t.Fatalf("expected second topic, got %#v", next)
	}

	conv, err := store.NextForConversion(ctx)
	if err != nil {
		t.Fatalf("NextForConversion: %v", err)
	}
	if conv == nil || conv.ID != second.ID {
		t.Fatalf("expected second topic for conversion, got %#v", conv)
	}

	poll, err := store.NextForPolling(ctx)
	if err != nil || poll != nil {
		t.Fatalf("expected nothing to poll, got %#v %v", poll, err)
	}
}

func TestTransitionAsrCompareAndSet(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	item := testsupport.NewTopic(t, store, "asr")

	err := store.TransitionAsr(ctx, item.ID, []topic.AsrStatus{topic.AsrPending}, topic.AsrChange{
		To: topic.AsrSubmitted, TaskID: "42", Model: "large",
	})
	if err != nil {
		t.Fatalf("submit transition: %v", err)
	}
	got := testsupport.MustGet(t, store, item.ID)
	if got.Media.AsrStatus != topic.AsrSubmitted || got.AsrTaskID != "42" || got.ModelName != "large" {
		t.Fatalf("unexpected state after submit: %+v", got)
	}
	if got.Media.SubmittedAt == nil {
		t.Fatal("expected submitted_at to be recorded")
	}

	err = store.TransitionAsr(ctx, item.ID, []topic.AsrStatus{topic.AsrPending}, topic.AsrChange{To: topic.AsrSubmitted, TaskID: "43"})
	if !errors.Is(err, topic.ErrStaleState) {
		t.Fatalf("expected stale state on second claim, got %v", err)
	}
	if !errors.Is(err, services.ErrConsistency) {
		t.Fatalf("expected stale state to classify as consistency violation, got %v", err)
	}

	err = store.TransitionAsr(ctx, item.ID, []topic.AsrStatus{topic.AsrSubmitted}, topic.AsrChange{To: topic.AsrFailed, Error: "timeout"})
	if err != nil {
		t.Fatalf("fail transition: %v", err)
	}
	got = testsupport.MustGet(t, store, item.ID)
	if got.Media.AsrError != "timeout" || got.Media.Error() != "timeout" {
		t.Fatalf("expected error recorded, got %+v", got.Media)
	}

	if err := store.TransitionAsr(ctx, 9999, []topic.AsrStatus{topic.AsrPending}, topic.AsrChange{To: topic.AsrSubmitted}); !errors.Is(err, topic.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTransitionRequireNormalRejectsPaused(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	item := testsupport.NewTopic(t, store, "paused")

	if err := store.TransitionStatus(ctx, item.ID, []topic.Status{topic.StatusNormal}, topic.StatusPaused); err != nil {
		t.Fatalf("pause: %v", err)
	}
	err := store.TransitionConvert(ctx, item.ID, []topic.ConvertStatus{topic.ConvertPending}, topic.ConvertChange{
		To: topic.ConvertConverting, RequireNormal: true,
	})
	if !errors.Is(err, topic.ErrStaleState) {
		t.Fatalf("expected stale state for paused topic, got %v", err)
	}
	got := testsupport.MustGet(t, store, item.ID)
	if got.Media.ConvertStatus != topic.ConvertPending {
		t.Fatalf("paused topic must not change branch status, got %s", got.Media.ConvertStatus)
	}
}

func TestConcurrentClaimsOnlyOneWins(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	item := testsupport.NewTopic(t, store, "race")

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.TransitionConvert(ctx, item.ID, []topic.ConvertStatus{topic.ConvertPending}, topic.ConvertChange{To: topic.ConvertConverting})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, topic.ErrStaleState) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one claim to win, got %d", wins)
	}
}

func TestConvertCompletionRecordsSizeAndLength(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	item := testsupport.NewTopic(t, store, "convert")

	if err := store.TransitionConvert(ctx, item.ID, []topic.ConvertStatus{topic.ConvertPending}, topic.ConvertChange{To: topic.ConvertConverting}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.TransitionConvert(ctx, item.ID, []topic.ConvertStatus{topic.ConvertConverting}, topic.ConvertChange{
		To: topic.ConvertCompleted, Size: 4096, Length: 90 * time.Second, ProcessTime: 3 * time.Second,
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got := testsupport.MustGet(t, store, item.ID)
	if got.Media.Size != 4096 || got.Media.Length != 90*time.Second || got.Media.ProcessTime != 3*time.Second {
		t.Fatalf("unexpected media after completion: %+v", got.Media)
	}
	if got.Media.ConvertError != "" {
		t.Fatalf("completed branch must not carry an error, got %q", got.Media.ConvertError)
	}
}

func TestResetPipelineClearsErrorAndTask(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	item := testsupport.NewTopic(t, store, "reset")

	mustAsr(t, store, item.ID, topic.AsrPending, topic.AsrChange{To: topic.AsrSubmitted, TaskID: "7"})
	mustAsr(t, store, item.ID, topic.AsrSubmitted, topic.AsrChange{To: topic.AsrFailed, Error: "timeout"})
	if err := store.TransitionStatus(ctx, item.ID, nil, topic.StatusPaused); err != nil {
		t.Fatalf("pause: %v", err)
	}

	if err := store.ResetPipeline(ctx, item.ID, true, false); err != nil {
		t.Fatalf("ResetPipeline: %v", err)
	}
	got := testsupport.MustGet(t, store, item.ID)
	if got.Status != topic.StatusNormal {
		t.Fatalf("expected normal, got %s", got.Status)
	}
	if got.Media.AsrStatus != topic.AsrPending || got.Media.AsrError != "" || got.AsrTaskID != "" {
		t.Fatalf("expected asr reset, got %+v task=%q", got.Media, got.AsrTaskID)
	}
	if got.Media.SubmittedAt != nil {
		t.Fatal("expected submitted_at cleared")
	}

	if err := store.ResetPipeline(ctx, 4242, true, true); !errors.Is(err, topic.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCompleteTranscriptionPersistsLinesAndTranscript(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	item := testsupport.NewTopic(t, store, "complete")
	mustAsr(t, store, item.ID, topic.AsrPending, topic.AsrChange{To: topic.AsrSubmitted, TaskID: "1"})

	lines := []topic.SubtitleLine{
		{Index: 1, Start: 0, End: 1500 * time.Millisecond, Text: "Hello there."},
		{Index: 2, Start: 1500 * time.Millisecond, End: 3 * time.Second, Text: "General Kenobi."},
	}
	transcript := topic.Transcript{
		Text:  "Hello there. General Kenobi.",
		Words: []subtitle.Word{{Text: "Hello", Start: 0, End: 500 * time.Millisecond}},
	}
	if err := store.CompleteTranscription(ctx, item.ID, []topic.AsrStatus{topic.AsrSubmitted, topic.AsrProcessing}, transcript, lines, 2*time.Second); err != nil {
		t.Fatalf("CompleteTranscription: %v", err)
	}

	for _, kind := range []topic.LineKind{topic.LinesCurrent, topic.LinesOriginal} {
		got, err := store.Lines(ctx, item.ID, kind)
		if err != nil {
			t.Fatalf("Lines(%s): %v", kind, err)
		}
		if len(got) != 2 || got[1].Text != "General Kenobi." || got[1].End != 3*time.Second {
			t.Fatalf("unexpected %s lines: %+v", kind, got)
		}
	}
	stored, err := store.Transcript(ctx, item.ID)
	if err != nil || stored == nil {
		t.Fatalf("Transcript: %v %v", stored, err)
	}
	if stored.Text != transcript.Text || len(stored.Words) != 1 || stored.Words[0].End != 500*time.Millisecond {
		t.Fatalf("unexpected transcript: %+v", stored)
	}
	got := testsupport.MustGet(t, store, item.ID)
	if got.Media.AsrStatus != topic.AsrCompleted || got.Media.ProcessTime != 2*time.Second {
		t.Fatalf("unexpected media: %+v", got.Media)
	}

	err = store.CompleteTranscription(ctx, item.ID, []topic.AsrStatus{topic.AsrSubmitted}, transcript, nil, 0)
	if !errors.Is(err, topic.ErrStaleState) {
		t.Fatalf("expected stale state on repeated completion, got %v", err)
	}
	again, _ := store.Lines(ctx, item.ID, topic.LinesCurrent)
	if len(again) != 2 {
		t.Fatalf("stale completion must not touch lines, got %d", len(again))
	}
}

func TestBenchmarkMarksAreMonotonic(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	item := testsupport.NewTopic(t, store, "bench")

	id, err := store.StartBenchmark(ctx, item.ID, topic.PullFromLocal)
	if err != nil {
		t.Fatalf("StartBenchmark: %v", err)
	}
	for _, mark := range []topic.Mark{topic.MarkPullRawFile, topic.MarkSavedRawFile, topic.MarkCompletedConvert, topic.MarkStartedConvert} {
		if err := store.MarkBenchmark(ctx, id, mark); err != nil {
			t.Fatalf("MarkBenchmark(%d): %v", mark, err)
		}
	}
	benches, err := store.Benchmarks(ctx, item.ID)
	if err != nil {
		t.Fatalf("Benchmarks: %v", err)
	}
	if len(benches) != 1 {
		t.Fatalf("expected one benchmark, got %d", len(benches))
	}
	marks := benches[0].Marks()
	if len(marks) != 5 {
		t.Fatalf("expected five marks, got %d", len(marks))
	}
	for i := 1; i < len(marks); i++ {
		if marks[i].Before(marks[i-1]) {
			t.Fatalf("mark %d precedes mark %d: %v", i, i-1, marks)
		}
	}
}

func TestRetentionCandidatesAndDelete(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	normal := testsupport.NewTopic(t, store, "normal")
	removed := testsupport.NewTopic(t, store, "removed")
	archived := testsupport.NewTopic(t, store, "archived")
	if err := store.TransitionStatus(ctx, removed.ID, nil, topic.StatusRemoved); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := store.TransitionStatus(ctx, archived.ID, nil, topic.StatusArchived); err != nil {
		t.Fatalf("archive: %v", err)
	}

	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)

	candidates, err := store.RetentionCandidates(ctx, future, past)
	if err != nil {
		t.Fatalf("RetentionCandidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != removed.ID {
		t.Fatalf("expected only removed topic, got %+v", candidates)
	}

	if _, err := store.Delete(ctx, normal.ID, future); !errors.Is(err, topic.ErrStaleState) {
		t.Fatalf("expected refusal for normal topic, got %v", err)
	}
	if _, err := store.Delete(ctx, removed.ID, past); !errors.Is(err, topic.ErrStaleState) {
		t.Fatalf("expected refusal for topic updated after cutoff, got %v", err)
	}
	testsupport.MustGet(t, store, removed.ID)
	deleted, err := store.Delete(ctx, removed.ID, future)
	if err != nil || !deleted {
		t.Fatalf("expected delete, got %v %v", deleted, err)
	}
	deleted, err = store.Delete(ctx, removed.ID, future)
	if err != nil || deleted {
		t.Fatalf("expected idempotent delete, got %v %v", deleted, err)
	}
}

func TestResetInterruptedAndHealth(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	item := testsupport.NewTopic(t, store, "interrupted")
	testsupport.NewTopic(t, store, "idle")

	if err := store.TransitionConvert(ctx, item.ID, []topic.ConvertStatus{topic.ConvertPending}, topic.ConvertChange{To: topic.ConvertConverting}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 2 || health.Converting != 1 || health.ConvertPending != 1 || health.AsrPending != 2 {
		t.Fatalf("unexpected health: %+v", health)
	}

	n, err := store.ResetInterrupted(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ResetInterrupted: %d %v", n, err)
	}
	if got := testsupport.MustGet(t, store, item.ID); got.Media.ConvertStatus != topic.ConvertPending {
		t.Fatalf("expected pending after reset, got %s", got.Media.ConvertStatus)
	}
}

func TestAuditEntriesNewestFirst(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	base := time.Now().UTC()

	entries := []topic.AuditEntry{
		{ID: "a", Action: "transcription.run", Success: true, Started: base, Duration: 1500 * time.Millisecond},
		{ID: "b", Action: "transcoding.run", Error: "boom", Started: base.Add(time.Second), Duration: time.Second},
	}
	for _, entry := range entries {
		if err := store.RecordAudit(ctx, entry); err != nil {
			t.Fatalf("RecordAudit: %v", err)
		}
	}
	got, err := store.AuditEntries(ctx, 10)
	if err != nil {
		t.Fatalf("AuditEntries: %v", err)
	}
	if len(got) != 2 || got[0].Action != "transcoding.run" || got[0].Success || got[0].Error != "boom" {
		t.Fatalf("unexpected entries: %+v", got)
	}
	if got[1].Duration != 1500*time.Millisecond || !got[1].Success {
		t.Fatalf("unexpected first entry: %+v", got[1])
	}
}

func mustAsr(t *testing.T, store *topic.Store, id int64, from topic.AsrStatus, change topic.AsrChange) {
	t.Helper()
	if err := store.TransitionAsr(context.Background(), id, []topic.AsrStatus{from}, change); err != nil {
		t.Fatalf("TransitionAsr %s->%s: %v", from, change.To, err)
	}
}
