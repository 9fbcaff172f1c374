package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBrowser()
	c.normalizeEncoder()
	c.normalizeRender()
	c.normalizeAudio()
	c.normalizeQueue()
	if err := c.normalizePublish(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeBrowser() {
	c.Browser.Binary = strings.TrimSpace(c.Browser.Binary)
	if c.Browser.Binary == "" {
		if value, ok := os.LookupEnv("REEL_CHROME"); ok {
			c.Browser.Binary = strings.TrimSpace(value)
		}
	}
	c.Browser.ServeURL = strings.TrimSpace(c.Browser.ServeURL)
	c.Browser.Selector = strings.TrimSpace(c.Browser.Selector)
	if c.Browser.Selector == "" {
		c.Browser.Selector = defaultSelector
	}
	c.Browser.SettlePolicy = strings.ToLower(strings.TrimSpace(c.Browser.SettlePolicy))
	if c.Browser.SettlePolicy == "" {
		c.Browser.SettlePolicy = SettleProceed
	}
	c.Browser.ImageFormat = strings.ToLower(strings.TrimSpace(c.Browser.ImageFormat))
	switch c.Browser.ImageFormat {
	case "":
		c.Browser.ImageFormat = defaultImageFormat
	case "jpg":
		c.Browser.ImageFormat = "jpeg"
	}
	if c.Browser.JPEGQuality == 0 {
		c.Browser.JPEGQuality = defaultJPEGQuality
	}
}

func (c *Config) normalizeEncoder() {
	c.Encoder.FFmpegBinary = strings.TrimSpace(c.Encoder.FFmpegBinary)
	if value, ok := os.LookupEnv("REEL_FFMPEG"); ok && strings.TrimSpace(value) != "" {
		c.Encoder.FFmpegBinary = strings.TrimSpace(value)
	}
	if c.Encoder.FFmpegBinary == "" {
		c.Encoder.FFmpegBinary = defaultFFmpegBinary
	}
	c.Encoder.FFprobeBinary = strings.TrimSpace(c.Encoder.FFprobeBinary)
	if c.Encoder.FFprobeBinary == "" {
		c.Encoder.FFprobeBinary = defaultFFprobeBinary
	}
	c.Encoder.Preset = strings.ToLower(strings.TrimSpace(c.Encoder.Preset))
	if c.Encoder.Preset == "" {
		c.Encoder.Preset = defaultPreset
	}
	if c.Encoder.QueueDepth <= 0 {
		c.Encoder.QueueDepth = defaultQueueDepth
	}
	if c.Encoder.TailBytes <= 0 {
		c.Encoder.TailBytes = defaultTailBytes
	}
}

func (c *Config) normalizeRender() {
	c.Render.Codec = strings.ToLower(strings.TrimSpace(c.Render.Codec))
	if c.Render.Codec == "" {
		c.Render.Codec = defaultCodec
	}
	if c.Render.Concurrency <= 0 {
		c.Render.Concurrency = defaultConcurrency
	}
}

func (c *Config) normalizeAudio() {
	if c.Audio.FetchTimeout <= 0 {
		c.Audio.FetchTimeout = defaultFetchTimeout
	}
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = defaultSampleRate
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = defaultChannels
	}
	c.Audio.Language = strings.TrimSpace(c.Audio.Language)
	if c.Audio.Language == "" {
		c.Audio.Language = defaultLanguage
	}
}

func (c *Config) normalizeQueue() {
	c.Queue.RedisAddr = strings.TrimSpace(c.Queue.RedisAddr)
	if c.Queue.RedisAddr == "" {
		if value, ok := os.LookupEnv("REEL_REDIS_ADDR"); ok {
			c.Queue.RedisAddr = strings.TrimSpace(value)
		}
	}
	c.Queue.ListKey = strings.TrimSpace(c.Queue.ListKey)
	if c.Queue.ListKey == "" {
		c.Queue.ListKey = DefaultQueueListKey
	}
}

func (c *Config) normalizePublish() error {
	c.Publish.Provider = strings.ToLower(strings.TrimSpace(c.Publish.Provider))
	if c.Publish.Provider == "" {
		c.Publish.Provider = PublishNone
	}
	var err error
	if c.Publish.LocalRoot, err = expandPath(c.Publish.LocalRoot); err != nil {
		return fmt.Errorf("publish.local_root: %w", err)
	}
	c.Publish.GDriveClientID = strings.TrimSpace(c.Publish.GDriveClientID)
	c.Publish.GDriveClientSecret = strings.TrimSpace(c.Publish.GDriveClientSecret)
	c.Publish.GDriveRefreshToken = strings.TrimSpace(c.Publish.GDriveRefreshToken)
	c.Publish.GDriveFolderID = strings.TrimSpace(c.Publish.GDriveFolderID)
	return nil
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
