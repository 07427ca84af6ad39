package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"subline/internal/config"
	"subline/internal/services"
	"subline/internal/topic"
)

const laneName = "storage"

// Store resolves and manipulates topic files.
type Store struct {
	rawDir    string
	streamDir string
}

// Usage summarizes disk consumption.
type Usage struct {
	RawBytes    int64
	StreamBytes int64
	FreeBytes   uint64
	TotalBytes  uint64
}

// Persisted describes a stored raw object.
type Persisted struct {
	Object string
	Path   string
	Size   int64
	SHA256 string
}

// New creates the raw and stream roots when missing.
func New(rawDir, streamDir string) (*Store, error) {
	rawDir = strings.TrimSpace(rawDir)
	streamDir = strings.TrimSpace(streamDir)
	if rawDir == "" || streamDir == "" {
		return nil, errors.New("storage: raw and stream directories are required")
	}
	for _, dir := range []string{rawDir, streamDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, services.Wrap(services.ErrStorage, laneName, "init", dir, err)
		}
	}
	return &Store{rawDir: rawDir, streamDir: streamDir}, nil
}

// FromConfig builds a Store over the configured directories.
func FromConfig(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("storage: config is required")
	}
	return New(cfg.Paths.RawDir, cfg.Paths.StreamDir)
}

// RawPath returns the raw media path for t.
func (s *Store) RawPath(t *topic.Topic) string {
	return s.objectPath(t.RawObject)
}

// StreamDir returns the directory holding t's converted stream.
func (s *Store) StreamDir(t *topic.Topic) string {
	return filepath.Join(s.streamDir, strconv.FormatInt(t.ID, 10))
}

func (s *Store) objectPath(object string) string {
	return filepath.Join(s.rawDir, filepath.Base(object))
}

// PersistRaw streams r into the raw object named object. The data is written
// to a temporary file first and renamed into place once fully copied.
func (s *Store) PersistRaw(ctx context.Context, object string, r io.Reader) (Persisted, error) {
	object = filepath.Base(strings.TrimSpace(object))
	if object == "" || object == "." || object == string(filepath.Separator) {
		return Persisted{}, services.Wrap(services.ErrValidation, laneName, "persist raw", "object name required", nil)
	}
	target := s.objectPath(object)
	tmp, err := os.CreateTemp(s.rawDir, "."+object+".*.part")
	if err != nil {
		return Persisted{}, services.Wrap(services.ErrStorage, laneName, "persist raw", "create temp file", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), contextReader{ctx: ctx, r: r})
	if err != nil {
		cleanup()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Persisted{}, ctxErr
		}
		return Persisted{}, services.Wrap(services.ErrStorage, laneName, "persist raw", "copy", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return Persisted{}, services.Wrap(services.ErrStorage, laneName, "persist raw", "sync", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return Persisted{}, services.Wrap(services.ErrStorage, laneName, "persist raw", "close", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return Persisted{}, services.Wrap(services.ErrStorage, laneName, "persist raw", "rename", err)
	}
	return Persisted{
		Object: object,
		Path:   target,
		Size:   written,
		SHA256: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open opens a stored file for reading.
func (s *Store) Open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, laneName, "open", filepath.Base(path), err)
	}
	return f, nil
}

// Exists reports whether path is present. Stat errors other than not-exist
// are returned.
func (s *Store) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, services.Wrap(services.ErrStorage, laneName, "stat", filepath.Base(path), err)
	}
}

// Size returns the size of a file or the total size of a directory tree.
func (s *Store) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, services.Wrap(services.ErrStorage, laneName, "size", filepath.Base(path), err)
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	total, err := treeSize(path)
	if err != nil {
		return 0, services.Wrap(services.ErrStorage, laneName, "size", filepath.Base(path), err)
	}
	return total, nil
}

// Usage reports bytes used under both roots and filesystem capacity.
func (s *Store) Usage(ctx context.Context) (Usage, error) {
	var usage Usage
	var err error
	if usage.RawBytes, err = treeSize(s.rawDir); err != nil {
		return Usage{}, services.Wrap(services.ErrStorage, laneName, "usage", "raw", err)
	}
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	if usage.StreamBytes, err = treeSize(s.streamDir); err != nil {
		return Usage{}, services.Wrap(services.ErrStorage, laneName, "usage", "stream", err)
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(s.rawDir, &stat); err != nil {
		return Usage{}, services.Wrap(services.ErrStorage, laneName, "usage", "statfs", err)
	}
	usage.FreeBytes = stat.Bavail * uint64(stat.Bsize)  //nolint:gosec
	usage.TotalBytes = stat.Blocks * uint64(stat.Bsize) //nolint:gosec
	return usage, nil
}

// DeleteRaw removes t's raw object. It reports whether a file was removed.
func (s *Store) DeleteRaw(t *topic.Topic) (bool, error) {
	if strings.TrimSpace(t.RawObject) == "" {
		return false, nil
	}
	path := s.RawPath(t)
	err := os.Remove(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, services.Wrap(services.ErrStorage, laneName, "delete raw", filepath.Base(path), err)
	}
}

// DeleteStream removes t's stream directory. It reports whether anything was removed.
func (s *Store) DeleteStream(t *topic.Topic) (bool, error) {
	dir := s.StreamDir(t)
	present, err := s.Exists(dir)
	if err != nil || !present {
		return false, err
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, services.Wrap(services.ErrStorage, laneName, "delete stream", filepath.Base(dir), err)
	}
	return true, nil
}

func treeSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", root, err)
	}
	return total, nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
