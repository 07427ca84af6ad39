package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"subline/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndReadsEnv(t *testing.T) {
	t.Setenv("SUBLINE_PROVIDER_TOKEN", "env-token")
	t.Setenv("SUBLINE_PROVIDER_APP_KEY", "env-app")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantRaw := filepath.Join(tempHome, ".local", "share", "subline", "raw")
	if cfg.Paths.RawDir != wantRaw {
		t.Fatalf("unexpected raw dir: got %q want %q", cfg.Paths.RawDir, wantRaw)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7590" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Provider.AccessToken != "env-token" {
		t.Fatalf("expected provider token from env, got %q", cfg.Provider.AccessToken)
	}
	if cfg.Provider.AppKey != "env-app" {
		t.Fatalf("expected provider app key from env, got %q", cfg.Provider.AppKey)
	}
	if cfg.TickInterval() != 10*time.Second {
		t.Fatalf("unexpected tick interval: %s", cfg.TickInterval())
	}
	if cfg.Scheduler.RetentionCooldownSeconds != 3600 {
		t.Fatalf("expected one hour retention cool-down, got %d", cfg.Scheduler.RetentionCooldownSeconds)
	}
	if !cfg.Scheduler.LogOnlyOnError {
		t.Fatal("expected log_only_on_error default true")
	}
	if cfg.DatabasePath() != filepath.Join(cfg.Paths.DataDir, "subline.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.RawDir, cfg.Paths.StreamDir, cfg.Paths.UploadDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "subline.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Provider struct {
			BaseURL     string `toml:"base_url"`
			AccessToken string `toml:"access_token"`
		} `toml:"provider"`
		Scheduler struct {
			TickSeconds int `toml:"tick_seconds"`
		} `toml:"scheduler"`
		Retention struct {
			ArchivedQuotaGiB int `toml:"archived_quota_gib"`
		} `toml:"retention"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Provider.BaseURL = "https://asr.internal/api/"
	custom.Provider.AccessToken = "file-token"
	custom.Scheduler.TickSeconds = 3
	custom.Retention.ArchivedQuotaGiB = 2
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}
	t.Setenv("SUBLINE_PROVIDER_TOKEN", "env-token")

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Provider.BaseURL != "https://asr.internal/api" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Provider.BaseURL)
	}
	if cfg.Provider.AccessToken != "file-token" {
		t.Fatalf("expected file token to win over env fallback, got %q", cfg.Provider.AccessToken)
	}
	if cfg.Paths.StreamDir != filepath.Join(tempDir, "data", "stream") {
		t.Fatalf("expected stream dir under data dir, got %q", cfg.Paths.StreamDir)
	}
	if cfg.TickInterval() != 3*time.Second {
		t.Fatalf("expected tick 3s, got %s", cfg.TickInterval())
	}
	if cfg.ArchivedQuotaBytes() != 2<<30 {
		t.Fatalf("unexpected quota bytes: %d", cfg.ArchivedQuotaBytes())
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "SUBLINE_PROVIDER_TOKEN") {
		t.Fatalf("sample config missing token hint: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.DataDir, "subline") {
		t.Fatalf("expected data dir to contain subline, got %q", cfg.Paths.DataDir)
	}
	if cfg.Transcoder.ProbeBinary != "ffprobe" {
		t.Fatalf("expected ffprobe binary in sample, got %q", cfg.Transcoder.ProbeBinary)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"tick", func(c *config.Config) { c.Scheduler.TickSeconds = 0 }},
		{"retention cooldown", func(c *config.Config) { c.Scheduler.RetentionCooldownSeconds = -1 }},
		{"provider url", func(c *config.Config) { c.Provider.BaseURL = "not a url" }},
		{"request timeout", func(c *config.Config) { c.Provider.RequestTimeout = 0 }},
		{"profile", func(c *config.Config) { c.Transcoder.Profile = "av1" }},
		{"removed grace", func(c *config.Config) { c.Retention.RemovedGraceHours = -1 }},
		{"frame rate", func(c *config.Config) { c.Subtitle.DefaultFrameRate = 0 }},
		{"word limit", func(c *config.Config) { c.Subtitle.DefaultWordLimit = 0 }},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
