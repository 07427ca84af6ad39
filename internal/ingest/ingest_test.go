package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"subline/internal/authz"
	"subline/internal/services"
	"subline/internal/storage"
	"subline/internal/testsupport"
	"subline/internal/topic"
)

func newService(t *testing.T) (*Service, *topic.Store, *storage.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	files, err := storage.FromConfig(cfg)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	return New(store, files, nil, "general", nil), store, files
}

func TestIngestCopiesAndCreatesTopic(t *testing.T) {
	svc, store, files := newService(t)
	src := filepath.Join(t.TempDir(), "Lecture One.MP4")
	testsupport.WriteFile(t, src, 4096)

	ctx := authz.WithPrincipal(context.Background(), authz.System)
	created, err := svc.Ingest(ctx, src, Options{Creator: "alice"})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if created.Name != "Lecture One" || created.Extension != "mp4" || created.ModelName != "general" {
		t.Fatalf("unexpected topic %+v", created)
	}
	if created.Status != topic.StatusNormal || created.Media.AsrStatus != topic.AsrPending || created.Media.ConvertStatus != topic.ConvertPending {
		t.Fatalf("unexpected initial state %+v", created)
	}
	if created.Media.OriginalSize != 4096 {
		t.Fatalf("original size = %d", created.Media.OriginalSize)
	}
	if !strings.HasSuffix(created.RawObject, ".mp4") || strings.Contains(created.RawObject, "Lecture") {
		t.Fatalf("raw object should be a generated name, got %q", created.RawObject)
	}
	info, err := os.Stat(files.RawPath(created))
	if err != nil || info.Size() != 4096 {
		t.Fatalf("raw copy missing or wrong size: %v", err)
	}
	testsupport.MustGet(t, store, created.ID)
}

func TestIngestRejectsMissingSource(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := authz.WithPrincipal(context.Background(), authz.System)
	if _, err := svc.Ingest(ctx, filepath.Join(t.TempDir(), "nope.mp4"), Options{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIngestRequiresPermission(t *testing.T) {
	svc, _, _ := newService(t)
	src := filepath.Join(t.TempDir(), "a.mp4")
	testsupport.WriteFile(t, src, 10)
	ctx := authz.WithPrincipal(context.Background(), authz.Principal{Name: "op", Role: authz.RoleOperator})
	if _, err := svc.Ingest(ctx, src, Options{}); !errors.Is(err, authz.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
