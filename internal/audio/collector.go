package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"reel/internal/fileutil"
	"reel/internal/logging"
	"reel/internal/reelerr"
	"reel/internal/surface"
)

const defaultFetchTimeout = 30 * time.Second

// Source is a materialized track ready for mixing.
type Source struct {
	Track surface.AudioTrack
	Path  string
}

// Dropped is an active track that could not be materialized.
type Dropped struct {
	Track surface.AudioTrack
	Err   error
}

// Collector materializes audio tracks into a working directory.
type Collector struct {
	client       *http.Client
	fetchTimeout time.Duration
	baseDir      string
	logger       *slog.Logger
}

// CollectorOption customizes a Collector.
type CollectorOption func(*Collector)

// WithHTTPClient replaces the client used for remote sources.
func WithHTTPClient(client *http.Client) CollectorOption {
	return func(c *Collector) {
		if client != nil {
			c.client = client
		}
	}
}

// WithFetchTimeout bounds each remote download.
func WithFetchTimeout(timeout time.Duration) CollectorOption {
	return func(c *Collector) {
		if timeout > 0 {
			c.fetchTimeout = timeout
		}
	}
}

// WithBaseDir resolves relative local sources against dir.
func WithBaseDir(dir string) CollectorOption {
	return func(c *Collector) {
		c.baseDir = dir
	}
}

// NewCollector constructs a Collector.
func NewCollector(logger *slog.Logger, opts ...CollectorOption) *Collector {
	c := &Collector{
		client:       http.DefaultClient,
		fetchTimeout: defaultFetchTimeout,
		logger:       logging.NewComponentLogger(logger, "audio"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Active filters out muted and source-less tracks.
func Active(tracks []surface.AudioTrack) []surface.AudioTrack {
	active := make([]surface.AudioTrack, 0, len(tracks))
	for _, track := range tracks {
		if track.Muted || strings.TrimSpace(track.Src) == "" {
			continue
		}
		active = append(active, track)
	}
	return active
}

// Collect materializes every active track into dir. Tracks that cannot be
// fetched or found are logged and returned as dropped; only cancellation
// fails the call.
func (c *Collector) Collect(ctx context.Context, tracks []surface.AudioTrack, dir string) ([]Source, []Dropped, error) {
	active := Active(tracks)
	if len(active) == 0 {
		return nil, nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create audio directory: %w", err)
	}

	logger := logging.WithContext(ctx, c.logger)
	sources := make([]Source, 0, len(active))
	var dropped []Dropped
	for i, track := range active {
		dest, err := c.Materialize(ctx, track, dir, i)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, reelerr.Wrap(reelerr.ErrCanceled, "audio", "collect", "", ctx.Err())
			}
			eventType := "audio_fetch_failed"
			if errors.Is(err, reelerr.ErrAudioNotFound) {
				eventType = "audio_not_found"
			}
			logging.WarnWithContext(logger, "audio track dropped", eventType,
				logging.String("src", track.Src),
				logging.Error(err),
				logging.String(logging.FieldImpact, "render continues without this track"),
				logging.String(logging.FieldErrorHint, "check the track source is reachable"),
			)
			dropped = append(dropped, Dropped{Track: track, Err: err})
			continue
		}
		sources = append(sources, Source{Track: track, Path: dest})
	}
	logger.Debug("audio tracks collected", logging.Int("active", len(active)), logging.Int("materialized", len(sources)))
	return sources, dropped, nil
}

// Materialize copies or downloads one track into dir and returns its path.
func (c *Collector) Materialize(ctx context.Context, track surface.AudioTrack, dir string, index int) (string, error) {
	src := strings.TrimSpace(track.Src)
	parsed, err := url.Parse(src)
	if err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") {
		dest := filepath.Join(dir, fmt.Sprintf("track-%d%s", index, extension(parsed.Path)))
		return dest, c.fetch(ctx, src, dest)
	}

	local := src
	if err == nil && parsed.Scheme == "file" {
		local = parsed.Path
	}
	if !filepath.IsAbs(local) && c.baseDir != "" {
		local = filepath.Join(c.baseDir, local)
	}
	info, statErr := os.Stat(local)
	if statErr != nil || info.IsDir() {
		return "", reelerr.Wrap(reelerr.ErrAudioNotFound, "audio", "materialize", local, statErr)
	}
	dest := filepath.Join(dir, fmt.Sprintf("track-%d%s", index, extension(local)))
	if err := fileutil.CopyFile(local, dest); err != nil {
		return "", reelerr.Wrap(reelerr.ErrAudioNotFound, "audio", "materialize", "copy "+local, err)
	}
	return dest, nil
}

func (c *Collector) fetch(ctx context.Context, src, dest string) error {
	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, src, nil)
	if err != nil {
		return reelerr.Wrap(reelerr.ErrAudioFetch, "audio", "fetch", src, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return reelerr.Wrap(reelerr.ErrAudioFetch, "audio", "fetch", src, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return reelerr.Wrap(reelerr.ErrAudioFetch, "audio", "fetch", fmt.Sprintf("%s returned %s", src, resp.Status), nil)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return reelerr.Wrap(reelerr.ErrAudioFetch, "audio", "fetch", "read body of "+src, err)
	}
	return out.Close()
}

func extension(p string) string {
	ext := path.Ext(p)
	if ext == "" || len(ext) > 6 {
		return ".audio"
	}
	return strings.ToLower(ext)
}
