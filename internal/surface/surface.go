package surface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"reel/internal/codec"
	"reel/internal/logging"
	"reel/internal/reelerr"
)

const (
	DefaultReadyTimeout  = 30 * time.Second
	DefaultSettleTimeout = 5 * time.Second
	defaultPollInterval  = 100 * time.Millisecond
)

// AudioTrack is one entry of the page's audio snapshot.
type AudioTrack struct {
	Src          string  `json:"src"`
	StartFrame   int     `json:"startFrame"`
	EndFrame     *int    `json:"endFrame,omitempty"`
	Volume       float64 `json:"volume"`
	PlaybackRate float64 `json:"playbackRate"`
	Loop         bool    `json:"loop"`
	Muted        bool    `json:"muted"`
}

// Page is the browser surface boundary. Implementations need not be safe for
// concurrent use; Driver serializes calls.
type Page interface {
	Ready(ctx context.Context) (bool, error)
	SetFrame(ctx context.Context, frame int) error
	PendingAsync(ctx context.Context) (int, error)
	CaptureRegion(ctx context.Context, selector string, format codec.ImageFormat, quality int) ([]byte, error)
	AudioTracks(ctx context.Context) ([]AudioTrack, error)
	Close() error
}

// Settler is implemented by pages that can await outstanding async work as a
// single promise instead of being polled. AwaitSettled returns ErrNoSettler
// when the mounted composition exposes no such promise; the driver then polls
// PendingAsync.
type Settler interface {
	AwaitSettled(ctx context.Context) error
}

// ErrNoSettler reports that a page cannot await settling as one promise.
var ErrNoSettler = errors.New("page has no settle promise")

// Target identifies the composition a page should mount.
type Target struct {
	CompositionID string
	Width         int
	Height        int
	Scale         float64
	InputProps    json.RawMessage
}

// Launcher opens a fresh page for a target.
type Launcher interface {
	Open(ctx context.Context, target Target) (Page, error)
}

// Options configures a Driver.
type Options struct {
	Selector            string
	Format              codec.ImageFormat
	Quality             int
	ReadyTimeout        time.Duration
	SettleTimeout       time.Duration
	FailOnSettleTimeout bool
	PollInterval        time.Duration
	Logger              *slog.Logger
}

// Driver sequences readiness, frame seeks and captures against one Page.
type Driver struct {
	mu     sync.Mutex
	page   Page
	opts   Options
	logger *slog.Logger
	closed bool
}

// NewDriver wraps page.
func NewDriver(page Page, opts Options) *Driver {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = DefaultReadyTimeout
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = DefaultSettleTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Format == "" {
		opts.Format = codec.ImagePNG
	}
	return &Driver{page: page, opts: opts, logger: logging.NewComponentLogger(opts.Logger, "surface")}
}

// WaitReady polls the page until the composition reports ready.
func (d *Driver) WaitReady(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	readyCtx, cancel := context.WithTimeout(ctx, d.opts.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		ready, err := d.page.Ready(readyCtx)
		if err == nil && ready {
			return nil
		}
		if err != nil {
			lastErr = err
		}
		select {
		case <-readyCtx.Done():
			if ctx.Err() != nil {
				return reelerr.Wrap(reelerr.ErrCanceled, "surface", "ready", "", ctx.Err())
			}
			return reelerr.Wrap(reelerr.ErrSurfaceTimeout, "surface", "ready",
				fmt.Sprintf("composition not ready after %s", d.opts.ReadyTimeout), lastErr)
		case <-ticker.C:
		}
	}
}

// SetFrame seeks the composition and waits, bounded by the settle timeout, for
// async work the frame triggered. An unfinished settle proceeds with a warning
// unless FailOnSettleTimeout is set.
func (d *Driver) SetFrame(ctx context.Context, frame int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.page.SetFrame(ctx, frame); err != nil {
		return d.pageError(ctx, "set_frame", fmt.Sprintf("seek frame %d", frame), err)
	}

	settleCtx, cancel := context.WithTimeout(ctx, d.opts.SettleTimeout)
	defer cancel()
	err := d.settle(settleCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return reelerr.Wrap(reelerr.ErrCanceled, "surface", "settle", "", ctx.Err())
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		return d.pageError(ctx, "settle", fmt.Sprintf("frame %d", frame), err)
	}
	if d.opts.FailOnSettleTimeout {
		return reelerr.Wrap(reelerr.ErrSurfaceTimeout, "surface", "settle",
			fmt.Sprintf("frame %d async work unfinished after %s", frame, d.opts.SettleTimeout), nil)
	}
	logging.WarnWithContext(d.logger, "async settle timed out; capturing anyway", "settle_timeout",
		logging.Int("frame", frame),
		logging.Duration("timeout", d.opts.SettleTimeout),
		logging.String(logging.FieldImpact, "frame may show incomplete content"),
		logging.String(logging.FieldErrorHint, "raise browser.settle_timeout or set settle_policy = \"fail\""),
	)
	return nil
}

func (d *Driver) settle(ctx context.Context) error {
	if settler, ok := d.page.(Settler); ok {
		err := settler.AwaitSettled(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrNoSettler):
			// poll the pending counter below
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return err
		}
	}
	ticker := time.NewTicker(d.opts.PollInterval / 10)
	defer ticker.Stop()
	for {
		pending, err := d.page.PendingAsync(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if pending <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// CaptureFrame snapshots the render region in the configured format.
func (d *Driver) CaptureFrame(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, err := d.page.CaptureRegion(ctx, d.opts.Selector, d.opts.Format, d.opts.Quality)
	if err != nil {
		return nil, d.pageError(ctx, "capture", "capture render region", err)
	}
	if len(data) == 0 {
		return nil, reelerr.Wrap(reelerr.ErrExternalTool, "surface", "capture", "empty screenshot", nil)
	}
	return data, nil
}

// AudioTracks returns the page's audio snapshot.
func (d *Driver) AudioTracks(ctx context.Context) ([]AudioTrack, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tracks, err := d.page.AudioTracks(ctx)
	if err != nil {
		return nil, d.pageError(ctx, "audio_tracks", "query audio tracks", err)
	}
	return tracks, nil
}

// Close releases the page and its browser. It is safe to call more than once.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.page.Close()
}

func (d *Driver) pageError(ctx context.Context, op, message string, err error) error {
	if ctx.Err() != nil {
		return reelerr.Wrap(reelerr.ErrCanceled, "surface", op, message, ctx.Err())
	}
	return reelerr.Wrap(reelerr.ErrExternalTool, "surface", op, message, err)
}
