package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateProvider(); err != nil {
		return err
	}
	if err := c.validateTranscoder(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	if err := c.validateSubtitle(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateProvider() error {
	parsed, err := url.Parse(c.Provider.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("provider.base_url %q must be an absolute URL", c.Provider.BaseURL)
	}
	if c.Provider.RequestTimeout <= 0 {
		return errors.New("provider.request_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateTranscoder() error {
	switch c.Transcoder.Profile {
	case "hls", "dash", "mp4":
	default:
		return fmt.Errorf("transcoder.profile: unsupported value %q (expected hls, dash, or mp4)", c.Transcoder.Profile)
	}
	if c.Transcoder.TimeoutSeconds <= 0 {
		return errors.New("transcoder.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	return ensurePositiveMap(map[string]int{
		"scheduler.tick_seconds":                   c.Scheduler.TickSeconds,
		"scheduler.transcription_cooldown_seconds": c.Scheduler.TranscriptionCooldownSeconds,
		"scheduler.transcoding_cooldown_seconds":   c.Scheduler.TranscodingCooldownSeconds,
		"scheduler.retention_cooldown_seconds":     c.Scheduler.RetentionCooldownSeconds,
	})
}

func (c *Config) validateRetention() error {
	if c.Retention.RemovedGraceHours < 0 {
		return errors.New("retention.removed_grace_hours must not be negative")
	}
	if c.Retention.ArchivedGraceHours < 0 {
		return errors.New("retention.archived_grace_hours must not be negative")
	}
	if c.Retention.ArchivedQuotaGiB < 0 {
		return errors.New("retention.archived_quota_gib must not be negative")
	}
	return nil
}

func (c *Config) validateSubtitle() error {
	if c.Subtitle.DefaultFrameRate <= 0 {
		return errors.New("subtitle.default_frame_rate must be positive")
	}
	if c.Subtitle.DefaultWordLimit <= 0 {
		return errors.New("subtitle.default_word_limit must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (expected console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
