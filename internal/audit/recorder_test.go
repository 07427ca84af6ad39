package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"subline/internal/authz"
	"subline/internal/services"
	"subline/internal/testsupport"
	"subline/internal/topic"
)

type memorySink struct {
	mu      sync.Mutex
	entries []topic.AuditEntry
}

func (m *memorySink) RecordAudit(_ context.Context, entry topic.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func TestRunRecordsOneEntryPerRun(t *testing.T) {
	sink := &memorySink{}
	rec := NewRecorder(sink, nil, false)

	ctx := services.WithTopicID(context.Background(), 9)
	ctx = authz.WithPrincipal(ctx, authz.Principal{Name: "alice", Role: authz.RoleAdmin})
	var sawAction string
	err := rec.Run(ctx, "pause", func(ctx context.Context) error {
		sawAction, _ = services.ActionFromContext(ctx)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sawAction != "pause" {
		t.Fatalf("body should see action in context, got %q", sawAction)
	}
	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(sink.entries))
	}
	entry := sink.entries[0]
	if !entry.Success || entry.ID == "" || entry.TopicID != 9 || entry.Principal != "alice" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestRunRecordsFailure(t *testing.T) {
	sink := &memorySink{}
	rec := NewRecorder(sink, nil, true)

	boom := errors.New("boom")
	if err := rec.Run(context.Background(), "transcription", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(sink.entries) != 1 || sink.entries[0].Success || sink.entries[0].Error != "boom" {
		t.Fatalf("unexpected entries %+v", sink.entries)
	}
}

func TestLogOnlyOnErrorSuppressesSuccess(t *testing.T) {
	sink := &memorySink{}
	rec := NewRecorder(sink, nil, true)
	for range 3 {
		if err := rec.Run(context.Background(), "retention", func(context.Context) error { return nil }); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}
	if len(sink.entries) != 0 {
		t.Fatalf("expected success entries suppressed, got %d", len(sink.entries))
	}
}

func TestRunRecoversPanic(t *testing.T) {
	sink := &memorySink{}
	rec := NewRecorder(sink, nil, false)

	err := rec.Run(context.Background(), "transcoding", func(context.Context) error {
		panic("nil map")
	})
	if err == nil {
		t.Fatal("expected panic to surface as error")
	}
	if len(sink.entries) != 1 || sink.entries[0].Success {
		t.Fatalf("expected one failed entry, got %+v", sink.entries)
	}
}

func TestRunPersistsToStoreAfterCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := NewRecorder(store, nil, false)

	ctx, cancel := context.WithCancel(context.Background())
	err := rec.Run(ctx, "transcription", func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	entries, err := store.AuditEntries(context.Background(), 10)
	if err != nil {
		t.Fatalf("AuditEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != "transcription" || entries[0].Success {
		t.Fatalf("unexpected entries %+v", entries)
	}
}
