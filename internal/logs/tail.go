package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	maxLineBytes        = 1024 * 1024
	defaultPollInterval = 250 * time.Millisecond
)

// TailOptions selects which lines Tail returns.
type TailOptions struct {
	// Limit caps the number of trailing lines. Zero returns no lines but still
	// reports the end offset.
	Limit int
	// Contains keeps only lines holding the substring.
	Contains string
}

// TailResult carries the selected lines and the offset just past the file end.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail returns the last lines of the file at path. A missing file yields an
// empty result.
func Tail(path string, opts TailOptions) (TailResult, error) {
	file, err := openLog(path)
	if err != nil || file == nil {
		return TailResult{}, err
	}
	defer file.Close()

	var result TailResult
	if opts.Limit > 0 {
		ring := make([]string, 0, opts.Limit)
		err := scanLines(file, opts.Contains, func(line string) {
			if len(ring) == opts.Limit {
				ring = append(ring[:0], ring[1:]...)
			}
			ring = append(ring, line)
		})
		if err != nil {
			return result, err
		}
		result.Lines = ring
	}
	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return result, fmt.Errorf("seek log file: %w", err)
	}
	result.Offset = offset
	return result, nil
}

// Follow emits lines appended after offset until ctx is done. A file that
// shrinks below offset is treated as rotated and read from the start.
func Follow(ctx context.Context, path string, offset int64, contains string, interval time.Duration, emit func(string)) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		next, err := readFrom(path, offset, contains, emit)
		if err != nil {
			return err
		}
		offset = next
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, contains string, emit func(string)) (int64, error) {
	file, err := openLog(path)
	if err != nil || file == nil {
		return 0, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset > info.Size() || offset < 0 {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	// Only complete lines are consumed; a trailing partial line is re-read next poll.
	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return offset, nil
		}
		if err != nil {
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		line = strings.TrimRight(line, "\r\n")
		if contains == "" || strings.Contains(line, contains) {
			emit(line)
		}
	}
}

func openLog(path string) (*os.File, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("log path %q is a directory", path)
	}
	return file, nil
}

func scanLines(r io.Reader, contains string, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if contains == "" || strings.Contains(line, contains) {
			fn(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read log file: %w", err)
	}
	return nil
}
