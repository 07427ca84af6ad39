package transcoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"subline/internal/services"
)

var commandContext = exec.CommandContext

const (
	laneName     = "transcoding"
	maxOutputLog = 64 * 1024
)

// Profile selects the streaming layout produced by a run.
type Profile string

const (
	ProfileHLS  Profile = "hls"
	ProfileDASH Profile = "dash"
	ProfileMP4  Profile = "mp4"
)

// Request describes one conversion.
type Request struct {
	Source  string
	Target  string
	Profile Profile
}

// Result reports the outcome of a conversion.
type Result struct {
	Success   bool
	Duration  time.Duration
	OutputLog string
}

// Invoker converts raw media into a streaming format.
type Invoker interface {
	Run(ctx context.Context, req Request) (Result, error)
	Probe(ctx context.Context, path string) (time.Duration, error)
}

// Option configures the CLI invoker.
type Option func(*CLI)

// WithBinary overrides the transcoder binary.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithProbeBinary overrides the probe binary.
func WithProbeBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.probe = binary
		}
	}
}

// WithTimeout bounds a single run. Zero disables the limit.
func WithTimeout(timeout time.Duration) Option {
	return func(c *CLI) {
		c.timeout = timeout
	}
}

// CLI invokes ffmpeg and ffprobe.
type CLI struct {
	binary  string
	probe   string
	timeout time.Duration
}

var _ Invoker = (*CLI)(nil)

// NewCLI constructs a CLI invoker using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "ffmpeg", probe: "ffprobe"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Run converts req.Source into req.Target. A parent cancellation is returned
// as the context error so the caller can roll back; non-zero exits and
// timeouts are reported as ErrLocalTranscode.
func (c *CLI) Run(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Source) == "" {
		return Result{}, errors.New("source path required")
	}
	if strings.TrimSpace(req.Target) == "" {
		return Result{}, errors.New("target directory required")
	}
	args, err := profileArgs(req)
	if err != nil {
		return Result{}, services.Wrap(services.ErrLocalTranscode, laneName, "run", err.Error(), nil)
	}
	if err := os.MkdirAll(req.Target, 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrStorage, laneName, "run", "create target dir", err)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var output tailBuffer
	cmd := commandContext(runCtx, c.binary, args...) //nolint:gosec
	cmd.Stdout = &output
	cmd.Stderr = &output
	configureProcessGroup(cmd)

	started := time.Now()
	err = cmd.Run()
	result := Result{
		Success:   err == nil,
		Duration:  time.Since(started),
		OutputLog: output.String(),
	}
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return result, services.Wrap(services.ErrLocalTranscode, laneName, "run", fmt.Sprintf("timed out after %s", c.timeout), nil)
	}
	return result, services.Wrap(services.ErrLocalTranscode, laneName, "run", lastLine(result.OutputLog), err)
}

// Probe returns the container duration of path.
func (c *CLI) Probe(ctx context.Context, path string) (time.Duration, error) {
	args := []string{"-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", path}
	cmd := commandContext(ctx, c.probe, args...) //nolint:gosec
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, services.Wrap(services.ErrLocalTranscode, laneName, "probe", filepath.Base(path), err)
	}
	value := strings.TrimSpace(string(out))
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, services.Wrap(services.ErrLocalTranscode, laneName, "probe", fmt.Sprintf("unexpected duration %q", value), err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func profileArgs(req Request) ([]string, error) {
	args := []string{"-hide_banner", "-nostdin", "-y", "-i", req.Source, "-c:v", "libx264", "-c:a", "aac"}
	switch req.Profile {
	case ProfileHLS, "":
		return append(args, "-f", "hls", "-hls_time", "6", "-hls_playlist_type", "vod",
			"-hls_segment_filename", filepath.Join(req.Target, "segment_%05d.ts"),
			filepath.Join(req.Target, "index.m3u8")), nil
	case ProfileDASH:
		return append(args, "-f", "dash", filepath.Join(req.Target, "manifest.mpd")), nil
	case ProfileMP4:
		return append(args, "-movflags", "+faststart", filepath.Join(req.Target, "stream.mp4")), nil
	default:
		return nil, fmt.Errorf("unknown profile %q", req.Profile)
	}
}

// configureProcessGroup starts the child in its own group and kills the
// group when the command context ends.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			return err
		}
		return nil
	}
	cmd.WaitDelay = 5 * time.Second
}

// tailBuffer keeps the last maxOutputLog bytes written to it.
type tailBuffer struct {
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if over := t.buf.Len() - maxOutputLog; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}

func lastLine(log string) string {
	log = strings.TrimSpace(log)
	if idx := strings.LastIndexByte(log, '\n'); idx >= 0 {
		return strings.TrimSpace(log[idx+1:])
	}
	if log == "" {
		return "transcoder exited with error"
	}
	return log
}
