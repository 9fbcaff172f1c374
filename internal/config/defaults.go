package config

// Settle policies applied when a frame's async work outlives its budget.
const (
	SettleProceed = "proceed"
	SettleFail    = "fail"
)

// Publish providers.
const (
	PublishNone    = "none"
	PublishLocalFS = "localfs"
	PublishGDrive  = "gdrive"
)

const (
	defaultWorkDir       = "~/.local/share/reel/work"
	defaultOutputDir     = "~/Videos/reel"
	defaultStateDir      = "~/.local/share/reel"
	defaultLogDir        = "~/.local/share/reel/logs"
	defaultBrowserBinary = ""
	defaultServeURL      = "http://127.0.0.1:3000/"
	defaultSelector      = "#reel-root"
	defaultReadyTimeout  = 30
	defaultSettleTimeout = 5000
	defaultImageFormat   = "png"
	defaultJPEGQuality   = 80
	defaultFFmpegBinary  = "ffmpeg"
	defaultFFprobeBinary = "ffprobe"
	defaultPreset        = "medium"
	defaultQueueDepth    = 2
	defaultTailBytes     = 500
	defaultCodec         = "h264"
	defaultConcurrency   = 1
	defaultFetchTimeout  = 30
	defaultSampleRate    = 48000
	defaultChannels      = 2
	defaultLanguage      = "en"
	defaultBind          = "127.0.0.1:7410"
	defaultMaxConcurrent = 1
	defaultLocalRoot     = "~/Videos/reel/published"
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
)

// DefaultQueueListKey is the Redis list used when queue.list_key is empty.
const DefaultQueueListKey = "reel:renders"

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
		},
		Browser: Browser{
			Binary:        defaultBrowserBinary,
			Headless:      true,
			ServeURL:      defaultServeURL,
			Selector:      defaultSelector,
			ReadyTimeout:  defaultReadyTimeout,
			SettleTimeout: defaultSettleTimeout,
			SettlePolicy:  SettleProceed,
			ImageFormat:   defaultImageFormat,
			JPEGQuality:   defaultJPEGQuality,
		},
		Encoder: Encoder{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
			Preset:        defaultPreset,
			QueueDepth:    defaultQueueDepth,
			TailBytes:     defaultTailBytes,
		},
		Render: Render{
			Codec:       defaultCodec,
			Concurrency: defaultConcurrency,
		},
		Audio: Audio{
			FetchTimeout: defaultFetchTimeout,
			SampleRate:   defaultSampleRate,
			Channels:     defaultChannels,
			Language:     defaultLanguage,
		},
		Server: Server{
			Bind:          defaultBind,
			MaxConcurrent: defaultMaxConcurrent,
		},
		Queue: Queue{
			ListKey: DefaultQueueListKey,
		},
		Publish: Publish{
			Provider:  PublishNone,
			LocalRoot: defaultLocalRoot,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
