package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	RawDir    string `toml:"raw_dir"`
	StreamDir string `toml:"stream_dir"`
	// UploadDir is the only directory the API reloads subtitle files from.
	UploadDir string `toml:"upload_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Provider contains configuration for the remote transcription provider.
type Provider struct {
	BaseURL        string `toml:"base_url"`
	AppKey         string `toml:"app_key"`
	AccessToken    string `toml:"access_token"`
	DefaultModel   string `toml:"default_model"`
	Language       string `toml:"language"`
	InsecureTLS    bool   `toml:"insecure_tls"`
	RequestTimeout int    `toml:"request_timeout"`
	// MediaBaseURL is prepended to raw object names so the provider can fetch
	// the source media. Empty means the provider receives a local file path.
	MediaBaseURL string `toml:"media_base_url"`
}

// Transcoder contains configuration for the local streaming transcoder.
type Transcoder struct {
	Binary         string `toml:"binary"`
	ProbeBinary    string `toml:"ffprobe_binary"`
	Profile        string `toml:"profile"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Scheduler contains the tick interval and per-lane cool-downs.
type Scheduler struct {
	TickSeconds                  int  `toml:"tick_seconds"`
	TranscriptionCooldownSeconds int  `toml:"transcription_cooldown_seconds"`
	TranscodingCooldownSeconds   int  `toml:"transcoding_cooldown_seconds"`
	RetentionCooldownSeconds     int  `toml:"retention_cooldown_seconds"`
	LogOnlyOnError               bool `toml:"log_only_on_error"`
}

// Retention contains the grace windows used when reclaiming storage.
type Retention struct {
	RemovedGraceHours  int `toml:"removed_grace_hours"`
	ArchivedGraceHours int `toml:"archived_grace_hours"`
	// ArchivedQuotaGiB caps the footprint of archived topics; 0 disables the quota.
	// Over quota, archived topics older than the removed grace are reclaimed
	// oldest first, ahead of the archived grace.
	ArchivedQuotaGiB int `toml:"archived_quota_gib"`
}

// Subtitle contains defaults applied when deriving subtitle lines.
type Subtitle struct {
	DefaultFrameRate float64 `toml:"default_frame_rate"`
	DefaultWordLimit int     `toml:"default_word_limit"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for subline.
//
// Configuration sections by subsystem:
//   - Paths: storage directories and API bind address
//   - Provider: remote transcription provider credentials
//   - Transcoder: local transcoder binary and profile
//   - Scheduler: tick interval and lane cool-downs
//   - Retention: grace windows for reclaiming storage
//   - Subtitle: frame rate and word limit defaults
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Provider   Provider   `toml:"provider"`
	Transcoder Transcoder `toml:"transcoder"`
	Scheduler  Scheduler  `toml:"scheduler"`
	Retention  Retention  `toml:"retention"`
	Subtitle   Subtitle   `toml:"subtitle"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("subline.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.RawDir, c.Paths.StreamDir, c.Paths.UploadDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the topic database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "subline.db")
}

// TickInterval returns the scheduler tick as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Scheduler.TickSeconds) * time.Second
}

// RemovedGrace returns how long a removed topic must age before reclamation.
func (c *Config) RemovedGrace() time.Duration {
	return time.Duration(c.Retention.RemovedGraceHours) * time.Hour
}

// ArchivedGrace returns how long an archived topic must age before reclamation.
func (c *Config) ArchivedGrace() time.Duration {
	return time.Duration(c.Retention.ArchivedGraceHours) * time.Hour
}

// ArchivedQuotaBytes returns the archived footprint cap in bytes, or 0 when disabled.
func (c *Config) ArchivedQuotaBytes() int64 {
	if c.Retention.ArchivedQuotaGiB <= 0 {
		return 0
	}
	return int64(c.Retention.ArchivedQuotaGiB) << 30
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
