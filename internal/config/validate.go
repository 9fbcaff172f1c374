package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"reel/internal/codec"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateBrowser(); err != nil {
		return err
	}
	if err := c.validateEncoder(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validatePublish(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateBrowser() error {
	if c.Browser.ServeURL == "" {
		return errors.New("browser.serve_url must be set")
	}
	parsed, err := url.Parse(c.Browser.ServeURL)
	if err != nil || parsed.Scheme == "" {
		return fmt.Errorf("browser.serve_url %q must be an absolute URL", c.Browser.ServeURL)
	}
	if c.Browser.ReadyTimeout <= 0 {
		return errors.New("browser.ready_timeout must be positive")
	}
	if c.Browser.SettleTimeout < 0 {
		return errors.New("browser.settle_timeout must be >= 0")
	}
	switch c.Browser.SettlePolicy {
	case SettleProceed, SettleFail:
	default:
		return fmt.Errorf("browser.settle_policy must be %q or %q, got %q", SettleProceed, SettleFail, c.Browser.SettlePolicy)
	}
	if _, err := codec.ParseImageFormat(c.Browser.ImageFormat); err != nil {
		return fmt.Errorf("browser.image_format: %w", err)
	}
	if c.Browser.JPEGQuality < 1 || c.Browser.JPEGQuality > 100 {
		return errors.New("browser.jpeg_quality must be between 1 and 100")
	}
	return nil
}

func (c *Config) validateEncoder() error {
	if c.Encoder.QueueDepth < 1 {
		return errors.New("encoder.queue_depth must be at least 1")
	}
	if c.Encoder.TailBytes < 64 {
		return errors.New("encoder.tail_bytes must be at least 64")
	}
	return nil
}

func (c *Config) validateRender() error {
	if _, err := codec.Lookup(c.Render.Codec); err != nil {
		return fmt.Errorf("render.codec: %w", err)
	}
	if c.Render.Concurrency < 1 {
		return errors.New("render.concurrency must be at least 1")
	}
	if c.Render.GIFLoop < -1 {
		return errors.New("render.gif_loop must be -1 (no loop), 0 (forever), or a positive count")
	}
	return nil
}

func (c *Config) validateAudio() error {
	switch c.Audio.Channels {
	case 1, 2:
	default:
		return fmt.Errorf("audio.channels must be 1 or 2, got %d", c.Audio.Channels)
	}
	if c.Audio.SampleRate < 8000 {
		return errors.New("audio.sample_rate must be at least 8000")
	}
	return nil
}

func (c *Config) validateServer() error {
	if strings.TrimSpace(c.Server.Bind) == "" {
		return errors.New("server.bind must be set")
	}
	if c.Server.MaxConcurrent < 1 {
		return errors.New("server.max_concurrent must be at least 1")
	}
	return nil
}

func (c *Config) validatePublish() error {
	switch c.Publish.Provider {
	case PublishNone:
	case PublishLocalFS:
		if c.Publish.LocalRoot == "" {
			return errors.New("publish.local_root must be set when publish.provider is localfs")
		}
	case PublishGDrive:
		if c.Publish.GDriveClientID == "" || c.Publish.GDriveClientSecret == "" || c.Publish.GDriveRefreshToken == "" {
			return errors.New("publish.gdrive_client_id, gdrive_client_secret and gdrive_refresh_token are required for gdrive")
		}
	default:
		return fmt.Errorf("publish.provider must be none, localfs or gdrive, got %q", c.Publish.Provider)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}
