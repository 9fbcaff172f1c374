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

// Paths contains directory configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
}

// Browser configures the headless browser that hosts the composition surface.
type Browser struct {
	Binary    string `toml:"binary"`
	Headless  bool   `toml:"headless"`
	NoSandbox bool   `toml:"no_sandbox"`
	// ServeURL is the page that mounts compositions; the composition id and
	// input props are appended as query parameters.
	ServeURL string `toml:"serve_url"`
	Selector string `toml:"selector"`
	// ReadyTimeout is in seconds.
	ReadyTimeout int `toml:"ready_timeout"`
	// SettleTimeout is the per-frame async settle budget in milliseconds.
	SettleTimeout int    `toml:"settle_timeout"`
	SettlePolicy  string `toml:"settle_policy"`
	ImageFormat   string `toml:"image_format"`
	JPEGQuality   int    `toml:"jpeg_quality"`
}

// Encoder configures the ffmpeg subprocesses.
type Encoder struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	Preset        string `toml:"preset"`
	// QueueDepth is the number of frames buffered in-process before writes
	// report backpressure.
	QueueDepth int `toml:"queue_depth"`
	TailBytes  int `toml:"tail_bytes"`
}

// Render contains defaults applied to requests that omit a field.
type Render struct {
	Codec       string `toml:"codec"`
	Concurrency int    `toml:"concurrency"`
	GIFLoop     int    `toml:"gif_loop"`
}

// Audio configures collection and mixing.
type Audio struct {
	// FetchTimeout is in seconds.
	FetchTimeout int    `toml:"fetch_timeout"`
	SampleRate   int    `toml:"sample_rate"`
	Channels     int    `toml:"channels"`
	Language     string `toml:"language"`
}

// Server configures the HTTP render API.
type Server struct {
	Bind          string `toml:"bind"`
	MaxConcurrent int    `toml:"max_concurrent"`
}

// Queue configures the optional Redis render queue.
type Queue struct {
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	ListKey       string `toml:"list_key"`
}

// Publish configures where finished artifacts are uploaded.
type Publish struct {
	Provider           string `toml:"provider"`
	LocalRoot          string `toml:"local_root"`
	GDriveClientID     string `toml:"gdrive_client_id"`
	GDriveClientSecret string `toml:"gdrive_client_secret"`
	GDriveRefreshToken string `toml:"gdrive_refresh_token"`
	GDriveFolderID     string `toml:"gdrive_folder_id"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for reel.
//
// Configuration sections by subsystem:
//   - Paths: working, output, state and log directories
//   - Browser: headless browser binary, composition page and capture settings
//   - Encoder: ffmpeg/ffprobe binaries and pipe tuning
//   - Render: request defaults (codec, concurrency, gif loop)
//   - Audio: track fetch timeout and mix format
//   - Server: HTTP API bind address and render concurrency
//   - Queue: Redis render queue
//   - Publish: artifact upload provider
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Browser Browser `toml:"browser"`
	Encoder Encoder `toml:"encoder"`
	Render  Render  `toml:"render"`
	Audio   Audio   `toml:"audio"`
	Server  Server  `toml:"server"`
	Queue   Queue   `toml:"queue"`
	Publish Publish `toml:"publish"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reel/config.toml")
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
		decoder.DisallowUnknownFields()
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

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reel.toml")
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

// EnsureDirectories creates the directories reel writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Publish.Provider == PublishLocalFS {
		if err := os.MkdirAll(c.Publish.LocalRoot, 0o755); err != nil {
			return fmt.Errorf("create publish directory %q: %w", c.Publish.LocalRoot, err)
		}
	}
	return nil
}

// HistoryPath is the sqlite database recording renders.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath is the single-instance lock used by the server and worker.
func (c *Config) LockPath(name string) string {
	return filepath.Join(c.Paths.StateDir, name+".lock")
}

// ReadyTimeout is the surface readiness budget.
func (c *Config) ReadyTimeout() time.Duration {
	return time.Duration(c.Browser.ReadyTimeout) * time.Second
}

// SettleTimeout is the per-frame async settle budget.
func (c *Config) SettleTimeout() time.Duration {
	return time.Duration(c.Browser.SettleTimeout) * time.Millisecond
}

// FailOnSettleTimeout reports whether an unfinished async settle fails the render.
func (c *Config) FailOnSettleTimeout() bool {
	return c.Browser.SettlePolicy == SettleFail
}

// FetchTimeout is the per-track audio download budget.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Audio.FetchTimeout) * time.Second
}

// QueueEnabled reports whether a Redis queue is configured.
func (c *Config) QueueEnabled() bool {
	return strings.TrimSpace(c.Queue.RedisAddr) != ""
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
