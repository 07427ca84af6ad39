package config

const (
	defaultConfigPath                   = "~/.config/subline/config.toml"
	defaultDataDir                      = "~/.local/share/subline"
	defaultRawDir                       = "~/.local/share/subline/raw"
	defaultStreamDir                    = "~/.local/share/subline/stream"
	defaultUploadDir                    = "~/.local/share/subline/uploads"
	defaultLogDir                       = "~/.local/share/subline/logs"
	defaultAPIBind                      = "127.0.0.1:7590"
	defaultProviderBaseURL              = "https://asr.example.com/api/v1"
	defaultProviderModel                = "general"
	defaultProviderLanguage             = "en"
	defaultProviderRequestTimeout       = 30
	defaultTranscoderBinary             = "ffmpeg"
	defaultProbeBinary                  = "ffprobe"
	defaultTranscoderProfile            = "hls"
	defaultTranscoderTimeoutSeconds     = 7200
	defaultTickSeconds                  = 10
	defaultTranscriptionCooldownSeconds = 5
	defaultTranscodingCooldownSeconds   = 5
	defaultRetentionCooldownSeconds     = 3600
	defaultRemovedGraceHours            = 72
	defaultArchivedGraceHours           = 24 * 90
	defaultFrameRate                    = 25.0
	defaultWordLimit                    = 12
	defaultLogFormat                    = "console"
	defaultLogLevel                     = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			RawDir:    defaultRawDir,
			StreamDir: defaultStreamDir,
			UploadDir: defaultUploadDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Provider: Provider{
			BaseURL:        defaultProviderBaseURL,
			DefaultModel:   defaultProviderModel,
			Language:       defaultProviderLanguage,
			RequestTimeout: defaultProviderRequestTimeout,
		},
		Transcoder: Transcoder{
			Binary:         defaultTranscoderBinary,
			ProbeBinary:    defaultProbeBinary,
			Profile:        defaultTranscoderProfile,
			TimeoutSeconds: defaultTranscoderTimeoutSeconds,
		},
		Scheduler: Scheduler{
			TickSeconds:                  defaultTickSeconds,
			TranscriptionCooldownSeconds: defaultTranscriptionCooldownSeconds,
			TranscodingCooldownSeconds:   defaultTranscodingCooldownSeconds,
			RetentionCooldownSeconds:     defaultRetentionCooldownSeconds,
			LogOnlyOnError:               true,
		},
		Retention: Retention{
			RemovedGraceHours:  defaultRemovedGraceHours,
			ArchivedGraceHours: defaultArchivedGraceHours,
		},
		Subtitle: Subtitle{
			DefaultFrameRate: defaultFrameRate,
			DefaultWordLimit: defaultWordLimit,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
