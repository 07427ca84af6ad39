package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProvider()
	c.normalizeTranscoder()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.RawDir) == "" {
		c.Paths.RawDir = filepath.Join(c.Paths.DataDir, "raw")
	}
	if c.Paths.RawDir, err = expandPath(c.Paths.RawDir); err != nil {
		return fmt.Errorf("paths.raw_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StreamDir) == "" {
		c.Paths.StreamDir = filepath.Join(c.Paths.DataDir, "stream")
	}
	if c.Paths.StreamDir, err = expandPath(c.Paths.StreamDir); err != nil {
		return fmt.Errorf("paths.stream_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.UploadDir) == "" {
		c.Paths.UploadDir = filepath.Join(c.Paths.DataDir, "uploads")
	}
	if c.Paths.UploadDir, err = expandPath(c.Paths.UploadDir); err != nil {
		return fmt.Errorf("paths.upload_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeProvider() {
	if c.Provider.AccessToken == "" {
		if value, ok := os.LookupEnv("SUBLINE_PROVIDER_TOKEN"); ok {
			c.Provider.AccessToken = strings.TrimSpace(value)
		}
	}
	if c.Provider.AppKey == "" {
		if value, ok := os.LookupEnv("SUBLINE_PROVIDER_APP_KEY"); ok {
			c.Provider.AppKey = strings.TrimSpace(value)
		}
	}
	c.Provider.BaseURL = strings.TrimRight(strings.TrimSpace(c.Provider.BaseURL), "/")
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = defaultProviderBaseURL
	}
	c.Provider.MediaBaseURL = strings.TrimRight(strings.TrimSpace(c.Provider.MediaBaseURL), "/")
	c.Provider.DefaultModel = strings.TrimSpace(c.Provider.DefaultModel)
	if c.Provider.DefaultModel == "" {
		c.Provider.DefaultModel = defaultProviderModel
	}
}

func (c *Config) normalizeTranscoder() {
	c.Transcoder.Binary = strings.TrimSpace(c.Transcoder.Binary)
	if c.Transcoder.Binary == "" {
		c.Transcoder.Binary = defaultTranscoderBinary
	}
	c.Transcoder.ProbeBinary = strings.TrimSpace(c.Transcoder.ProbeBinary)
	if c.Transcoder.ProbeBinary == "" {
		c.Transcoder.ProbeBinary = defaultProbeBinary
	}
	c.Transcoder.Profile = strings.ToLower(strings.TrimSpace(c.Transcoder.Profile))
	if c.Transcoder.Profile == "" {
		c.Transcoder.Profile = defaultTranscoderProfile
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
