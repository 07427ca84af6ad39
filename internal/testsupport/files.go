package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path, and its parent directories, holding size bytes of
// filler. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	WriteContent(t, path, bytes.Repeat([]byte{'s'}, int(max(size, 1))))
}

// WriteContent creates path with the given content.
func WriteContent(t testing.TB, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// SampleSRT is a two-cue SubRip document.
const SampleSRT = `1
00:00:00,000 --> 00:00:01,500
Hello there.

2
00:00:01,500 --> 00:00:03,000
General Kenobi.
`
