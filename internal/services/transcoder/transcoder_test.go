package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"subline/internal/services"
)

func stubCommand(t *testing.T, mode string, captured *[]string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if captured != nil {
			*captured = append([]string{name}, args...)
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("TRANSCODER_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestRunSuccess(t *testing.T) {
	var args []string
	stubCommand(t, "success", &args)

	target := filepath.Join(t.TempDir(), "stream")
	result, err := NewCLI(WithBinary("/opt/ffmpeg")).Run(context.Background(), Request{
		Source:  "/raw/movie.mp4",
		Target:  target,
		Profile: ProfileHLS,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !result.Success {
		t.Fatal("expected success")
	}
	if !strings.Contains(result.OutputLog, "frame=") {
		t.Fatalf("expected output log to be captured, got %q", result.OutputLog)
	}
	if args[0] != "/opt/ffmpeg" {
		t.Fatalf("binary = %q", args[0])
	}
	if got := args[len(args)-1]; got != filepath.Join(target, "index.m3u8") {
		t.Fatalf("playlist target = %q", got)
	}
	if info, err := os.Stat(target); err != nil || !info.IsDir() {
		t.Fatalf("expected target dir to exist: %v", err)
	}
}

func TestRunFailureIsLocalTranscodeError(t *testing.T) {
	stubCommand(t, "failure", nil)

	result, err := NewCLI().Run(context.Background(), Request{
		Source: "/raw/movie.mp4",
		Target: t.TempDir(),
	})
	if !errors.Is(err, services.ErrLocalTranscode) {
		t.Fatalf("expected local transcode error, got %v", err)
	}
	if result.Success {
		t.Fatal("expected unsuccessful result")
	}
	if !strings.Contains(err.Error(), "invalid data found") {
		t.Fatalf("expected last output line in error, got %v", err)
	}
}

func TestRunTimeout(t *testing.T) {
	stubCommand(t, "sleep", nil)

	_, err := NewCLI(WithTimeout(200*time.Millisecond)).Run(context.Background(), Request{
		Source: "/raw/movie.mp4",
		Target: t.TempDir(),
	})
	if !errors.Is(err, services.ErrLocalTranscode) {
		t.Fatalf("expected local transcode error on timeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout message, got %v", err)
	}
}

func TestRunParentCancelReturnsContextError(t *testing.T) {
	stubCommand(t, "sleep", nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	_, err := NewCLI().Run(ctx, Request{Source: "/raw/movie.mp4", Target: t.TempDir()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunRejectsUnknownProfile(t *testing.T) {
	_, err := NewCLI().Run(context.Background(), Request{Source: "a", Target: t.TempDir(), Profile: "flv"})
	if !errors.Is(err, services.ErrLocalTranscode) {
		t.Fatalf("expected local transcode error, got %v", err)
	}
}

func TestRunRequiresPaths(t *testing.T) {
	if _, err := NewCLI().Run(context.Background(), Request{Target: "/tmp"}); err == nil {
		t.Fatal("expected error when source is empty")
	}
	if _, err := NewCLI().Run(context.Background(), Request{Source: "/a"}); err == nil {
		t.Fatal("expected error when target is empty")
	}
}

func TestProfileArgs(t *testing.T) {
	tests := []struct {
		profile Profile
		want    string
	}{
		{ProfileHLS, "index.m3u8"},
		{ProfileDASH, "manifest.mpd"},
		{ProfileMP4, "stream.mp4"},
	}
	for _, tt := range tests {
		args, err := profileArgs(Request{Source: "in.mp4", Target: "/out", Profile: tt.profile})
		if err != nil {
			t.Fatalf("profileArgs(%s): %v", tt.profile, err)
		}
		if got := args[len(args)-1]; got != filepath.Join("/out", tt.want) {
			t.Fatalf("profile %s output = %q", tt.profile, got)
		}
	}
}

func TestProbe(t *testing.T) {
	stubCommand(t, "probe", nil)

	length, err := NewCLI().Probe(context.Background(), "/stream/index.m3u8")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if length != 12500*time.Millisecond {
		t.Fatalf("length = %s, want 12.5s", length)
	}
}

func TestProbeGarbage(t *testing.T) {
	stubCommand(t, "probe-garbage", nil)

	if _, err := NewCLI().Probe(context.Background(), "/stream/index.m3u8"); !errors.Is(err, services.ErrLocalTranscode) {
		t.Fatalf("expected local transcode error, got %v", err)
	}
}

func TestTailBufferKeepsEnd(t *testing.T) {
	var buf tailBuffer
	chunk := strings.Repeat("a", maxOutputLog)
	_, _ = buf.Write([]byte(chunk))
	_, _ = buf.Write([]byte("tail"))
	got := buf.String()
	if len(got) != maxOutputLog {
		t.Fatalf("len = %d, want %d", len(got), maxOutputLog)
	}
	if !strings.HasSuffix(got, "tail") {
		t.Fatalf("expected suffix to be kept")
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("TRANSCODER_HELPER_MODE") {
	case "success":
		fmt.Fprintln(os.Stderr, "frame=  100 fps=50 q=28.0 size=1024kB")
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "Input #0, mov,mp4")
		fmt.Fprintln(os.Stderr, "/raw/movie.mp4: invalid data found when processing input")
		os.Exit(1)
	case "sleep":
		time.Sleep(30 * time.Second)
		os.Exit(0)
	case "probe":
		fmt.Println("12.500000")
		os.Exit(0)
	case "probe-garbage":
		fmt.Println("N/A")
		os.Exit(0)
	default:
		os.Exit(0)
	}
}
