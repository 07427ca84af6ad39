package testsupport

import (
	"context"
	"testing"

	"subline/internal/config"
	"subline/internal/topic"
)

// MustOpenStore opens a topic.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *topic.Store {
	t.Helper()

	store, err := topic.Open(cfg)
	if err != nil {
		t.Fatalf("topic.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// NewTopic inserts a Normal topic with both branches Pending.
func NewTopic(t testing.TB, store *topic.Store, name string) *topic.Topic {
	t.Helper()

	created, err := store.Create(context.Background(), topic.NewTopic{
		Name:         name,
		Extension:    "mp4",
		Creator:      "tester",
		Option:       topic.CreatedUpload,
		Model:        "general",
		RawObject:    name + ".mp4",
		OriginalSize: 1024,
	})
	if err != nil {
		t.Fatalf("create topic %q: %v", name, err)
	}
	return created
}

// MustGet reloads a topic, failing the test when it is missing.
func MustGet(t testing.TB, store *topic.Store, id int64) *topic.Topic {
	t.Helper()

	got, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get topic %d: %v", id, err)
	}
	if got == nil {
		t.Fatalf("topic %d not found", id)
	}
	return got
}
