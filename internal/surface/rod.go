package surface

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"reel/internal/codec"
	"reel/internal/logging"
)

// RodOptions configures browser launches.
type RodOptions struct {
	Binary    string
	Headless  bool
	NoSandbox bool
	ServeURL  string
	Logger    *slog.Logger
}

// RodLauncher opens each page in its own Chromium process so a chunk failure
// or cancellation can kill exactly one browser.
type RodLauncher struct {
	opts   RodOptions
	logger *slog.Logger
}

var _ Launcher = (*RodLauncher)(nil)

// NewRodLauncher constructs a launcher.
func NewRodLauncher(opts RodOptions) *RodLauncher {
	return &RodLauncher{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "browser")}
}

// CompositionURL builds the page address for target.
func CompositionURL(serveURL string, target Target) (string, error) {
	base, err := url.Parse(serveURL)
	if err != nil {
		return "", fmt.Errorf("parse serve url: %w", err)
	}
	query := base.Query()
	query.Set("composition", target.CompositionID)
	if len(target.InputProps) > 0 {
		query.Set("props", string(target.InputProps))
	}
	base.RawQuery = query.Encode()
	return base.String(), nil
}

// Open launches a browser, sizes the viewport and navigates to the composition.
func (l *RodLauncher) Open(ctx context.Context, target Target) (Page, error) {
	pageURL, err := CompositionURL(l.opts.ServeURL, target)
	if err != nil {
		return nil, err
	}

	lc := launcher.New().Context(ctx).Headless(l.opts.Headless)
	if bin := strings.TrimSpace(l.opts.Binary); bin != "" {
		lc = lc.Bin(bin)
	}
	if l.opts.NoSandbox {
		lc = lc.NoSandbox(true)
	}
	controlURL, err := lc.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		lc.Kill()
		lc.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := l.preparePage(browser, target, pageURL)
	if err != nil {
		_ = browser.Close()
		lc.Kill()
		lc.Cleanup()
		return nil, err
	}

	l.logger.Debug("browser page opened",
		logging.String("url", pageURL),
		logging.Int("width", target.Width),
		logging.Int("height", target.Height),
	)
	return &rodPage{browser: browser, launcher: lc, page: page}, nil
}

func (l *RodLauncher) preparePage(browser *rod.Browser, target Target, pageURL string) (*rod.Page, error) {
	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	scale := target.Scale
	if scale <= 0 {
		scale = 1
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             target.Width,
		Height:            target.Height,
		DeviceScaleFactor: scale,
	}); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}
	if err := page.Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	return page, nil
}

type rodPage struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page

	element   *rod.Element
	closeOnce sync.Once
	closeErr  error
}

var (
	_ Page    = (*rodPage)(nil)
	_ Settler = (*rodPage)(nil)
)

func (p *rodPage) Ready(ctx context.Context) (bool, error) {
	obj, err := p.page.Context(ctx).Eval(`() => window.__reel_ready === true`)
	if err != nil {
		return false, err
	}
	return obj.Value.Bool(), nil
}

func (p *rodPage) SetFrame(ctx context.Context, frame int) error {
	_, err := p.page.Context(ctx).Eval(`(f) => { window.__reel_setFrame(f) }`, frame)
	return err
}

func (p *rodPage) PendingAsync(ctx context.Context) (int, error) {
	obj, err := p.page.Context(ctx).Eval(`() => window.__reel_pendingCount ? window.__reel_pendingCount() : 0`)
	if err != nil {
		return 0, err
	}
	return obj.Value.Int(), nil
}

// AwaitSettled awaits window.__reel_awaitIdle. Compositions that only expose
// __reel_pendingCount get ErrNoSettler so the driver polls the counter.
func (p *rodPage) AwaitSettled(ctx context.Context) error {
	obj, err := p.page.Context(ctx).Eval(`async () => {
		if (typeof window.__reel_awaitIdle !== "function") { return false; }
		await window.__reel_awaitIdle();
		return true;
	}`)
	if err != nil {
		return err
	}
	if !obj.Value.Bool() {
		return ErrNoSettler
	}
	return nil
}

func (p *rodPage) CaptureRegion(ctx context.Context, selector string, format codec.ImageFormat, quality int) ([]byte, error) {
	if p.element == nil {
		el, err := p.page.Context(ctx).Element(selector)
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", selector, err)
		}
		p.element = el
	}
	shotFormat := proto.PageCaptureScreenshotFormatPng
	if format == codec.ImageJPEG {
		shotFormat = proto.PageCaptureScreenshotFormatJpeg
	}
	return p.element.Context(ctx).Screenshot(shotFormat, quality)
}

func (p *rodPage) AudioTracks(ctx context.Context) ([]AudioTrack, error) {
	obj, err := p.page.Context(ctx).Eval(`() => JSON.stringify(window.__reel_getAudioTracks ? window.__reel_getAudioTracks() : [])`)
	if err != nil {
		return nil, err
	}
	var tracks []AudioTrack
	if err := json.Unmarshal([]byte(obj.Value.Str()), &tracks); err != nil {
		return nil, fmt.Errorf("decode audio tracks: %w", err)
	}
	return tracks, nil
}

func (p *rodPage) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.browser.Close()
		p.launcher.Kill()
		p.launcher.Cleanup()
	})
	return p.closeErr
}
