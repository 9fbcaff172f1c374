package surface_test

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"reel/internal/reelerr"
	"reel/internal/surface"
	"reel/internal/testsupport"
)

func newDriver(page surface.Page, fail bool) *surface.Driver {
	return surface.NewDriver(page, surface.Options{
		Selector:            "#root",
		ReadyTimeout:        200 * time.Millisecond,
		SettleTimeout:       50 * time.Millisecond,
		FailOnSettleTimeout: fail,
		PollInterval:        10 * time.Millisecond,
	})
}

func TestWaitReadyPollsUntilReady(t *testing.T) {
	page := testsupport.NewFakePage()
	page.ReadyAfter = 3
	if err := newDriver(page, false).WaitReady(context.Background()); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
}

func TestWaitReadyTimesOut(t *testing.T) {
	page := testsupport.NewFakePage()
	page.NeverReady = true
	err := newDriver(page, false).WaitReady(context.Background())
	if !errors.Is(err, reelerr.ErrSurfaceTimeout) {
		t.Fatalf("expected surface timeout, got %v", err)
	}
}

func TestWaitReadyHonoursCancellation(t *testing.T) {
	page := testsupport.NewFakePage()
	page.NeverReady = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newDriver(page, false).WaitReady(ctx)
	if reelerr.Kind(err) != "canceled" {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestSetFrameSettlePolicy(t *testing.T) {
	page := testsupport.NewFakePage()
	page.SettleDelay = time.Second

	if err := newDriver(page, false).SetFrame(context.Background(), 4); err != nil {
		t.Fatalf("proceed policy should not fail: %v", err)
	}
	err := newDriver(page, true).SetFrame(context.Background(), 5)
	if !errors.Is(err, reelerr.ErrSurfaceTimeout) {
		t.Fatalf("fail policy should return surface timeout, got %v", err)
	}
	if got := page.Seeks(); len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Fatalf("unexpected seeks %v", got)
	}
}

type pollingPage struct {
	*testsupport.FakePage
	pending int
}

func (p *pollingPage) PendingAsync(context.Context) (int, error) {
	if p.pending > 0 {
		p.pending--
		return p.pending + 1, nil
	}
	return 0, nil
}

func TestSetFramePollsPendingCountWithoutSettler(t *testing.T) {
	page := &pollingPage{FakePage: testsupport.NewFakePage(), pending: 3}
	// Hide AwaitSettled so the driver falls back to polling.
	var p surface.Page = struct {
		surface.Page
	}{page}
	driver := surface.NewDriver(p, surface.Options{SettleTimeout: time.Second, FailOnSettleTimeout: true, PollInterval: 10 * time.Millisecond})
	if err := driver.SetFrame(context.Background(), 1); err != nil {
		t.Fatalf("SetFrame: %v", err)
	}
	if page.pending != 0 {
		t.Fatalf("expected pending count drained, got %d", page.pending)
	}
}

func TestCaptureFrameAndClose(t *testing.T) {
	page := testsupport.NewFakePage()
	driver := newDriver(page, false)
	if err := driver.SetFrame(context.Background(), 7); err != nil {
		t.Fatalf("SetFrame: %v", err)
	}
	data, err := driver.CaptureFrame(context.Background())
	if err != nil {
		t.Fatalf("CaptureFrame: %v", err)
	}
	if string(data) != "frame 7\n" {
		t.Fatalf("unexpected capture %q", data)
	}
	if err := driver.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := driver.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !page.Closed() {
		t.Fatal("expected page closed")
	}
}

func TestAudioTracksSnapshot(t *testing.T) {
	page := testsupport.NewFakePage()
	page.Tracks = []surface.AudioTrack{{Src: "a.mp3", Volume: 1, PlaybackRate: 1}}
	tracks, err := newDriver(page, false).AudioTracks(context.Background())
	if err != nil || len(tracks) != 1 || tracks[0].Src != "a.mp3" {
		t.Fatalf("unexpected tracks %v err=%v", tracks, err)
	}
}

func TestCompositionURL(t *testing.T) {
	got, err := surface.CompositionURL("http://127.0.0.1:3000/render?theme=dark", surface.Target{
		CompositionID: "intro",
		InputProps:    []byte(`{"title":"hi"}`),
	})
	if err != nil {
		t.Fatalf("CompositionURL: %v", err)
	}
	parsed, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := parsed.Query()
	if q.Get("composition") != "intro" || q.Get("props") != `{"title":"hi"}` || q.Get("theme") != "dark" {
		t.Fatalf("unexpected query %v", q)
	}
}

// idlelessPage can await settling in principle but the mounted composition
// exposes no idle promise, like a rod page without __reel_awaitIdle.
type idlelessPage struct {
	pollingPage
	stuck   bool
	awaited int
}

func (p *idlelessPage) AwaitSettled(context.Context) error {
	p.awaited++
	return surface.ErrNoSettler
}

func (p *idlelessPage) PendingAsync(ctx context.Context) (int, error) {
	if p.stuck {
		return 1, nil
	}
	return p.pollingPage.PendingAsync(ctx)
}

func TestSetFrameFallsBackToPendingCountWithoutIdlePromise(t *testing.T) {
	page := &idlelessPage{pollingPage: pollingPage{FakePage: testsupport.NewFakePage(), pending: 4}}
	driver := surface.NewDriver(page, surface.Options{SettleTimeout: time.Second, FailOnSettleTimeout: true, PollInterval: 10 * time.Millisecond})
	if err := driver.SetFrame(context.Background(), 2); err != nil {
		t.Fatalf("SetFrame: %v", err)
	}
	if page.awaited != 1 {
		t.Fatalf("expected one settle attempt, got %d", page.awaited)
	}
	if page.pending != 0 {
		t.Fatalf("expected pending count drained, got %d", page.pending)
	}
}

func TestSetFrameWithoutIdlePromiseStillTimesOut(t *testing.T) {
	page := &idlelessPage{pollingPage: pollingPage{FakePage: testsupport.NewFakePage()}, stuck: true}

	err := newDriver(page, true).SetFrame(context.Background(), 1)
	if !errors.Is(err, reelerr.ErrSurfaceTimeout) {
		t.Fatalf("expected surface timeout, got %v", err)
	}
	if err := newDriver(page, false).SetFrame(context.Background(), 1); err != nil {
		t.Fatalf("expected lenient policy to proceed, got %v", err)
	}
}
