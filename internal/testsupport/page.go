package testsupport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reel/internal/codec"
	"reel/internal/surface"
)

// FakePage is a scriptable in-memory surface. Captures return the text
// "frame <n>\n" so stub encoders can verify ordering.
type FakePage struct {
	mu sync.Mutex

	// ReadyAfter is the number of Ready polls answered false first.
	ReadyAfter int
	// NeverReady keeps Ready false forever.
	NeverReady bool
	// SettleDelay is how long AwaitSettled takes after every seek.
	SettleDelay time.Duration
	// FailCaptureAt makes CaptureRegion fail for that frame when >= 0.
	FailCaptureAt int
	// CaptureDelay slows each capture.
	CaptureDelay time.Duration
	Tracks       []surface.AudioTrack

	readyPolls int
	current    int
	seeks      []int
	captures   []int
	closed     bool
}

var (
	_ surface.Page    = (*FakePage)(nil)
	_ surface.Settler = (*FakePage)(nil)
)

// NewFakePage returns a page that is ready immediately.
func NewFakePage() *FakePage {
	return &FakePage{FailCaptureAt: -1, current: -1}
}

func (p *FakePage) Ready(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.readyPolls++
	if p.NeverReady {
		return false, nil
	}
	return p.readyPolls > p.ReadyAfter, nil
}

func (p *FakePage) SetFrame(ctx context.Context, frame int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	p.current = frame
	p.seeks = append(p.seeks, frame)
	return nil
}

func (p *FakePage) PendingAsync(context.Context) (int, error) {
	return 0, nil
}

func (p *FakePage) AwaitSettled(ctx context.Context) error {
	p.mu.Lock()
	delay := p.SettleDelay
	p.mu.Unlock()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *FakePage) CaptureRegion(ctx context.Context, _ string, _ codec.ImageFormat, _ int) ([]byte, error) {
	p.mu.Lock()
	delay := p.CaptureDelay
	p.mu.Unlock()
	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.FailCaptureAt >= 0 && p.current == p.FailCaptureAt {
		return nil, fmt.Errorf("capture failed at frame %d", p.current)
	}
	p.captures = append(p.captures, p.current)
	return []byte(fmt.Sprintf("frame %d\n", p.current)), nil
}

func (p *FakePage) AudioTracks(context.Context) ([]surface.AudioTrack, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]surface.AudioTrack(nil), p.Tracks...), nil
}

func (p *FakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Seeks returns every frame passed to SetFrame in call order.
func (p *FakePage) Seeks() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.seeks...)
}

// Captures returns every captured frame in call order.
func (p *FakePage) Captures() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.captures...)
}

// Closed reports whether Close was called.
func (p *FakePage) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// FakeLauncher hands out FakePages and remembers them.
type FakeLauncher struct {
	mu sync.Mutex
	// Configure adjusts each new page; index counts opens from zero.
	Configure func(index int, page *FakePage)
	// OpenErr fails every Open when set.
	OpenErr error
	pages   []*FakePage
	targets []surface.Target
}

var _ surface.Launcher = (*FakeLauncher)(nil)

func (l *FakeLauncher) Open(ctx context.Context, target surface.Target) (surface.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.OpenErr != nil {
		return nil, l.OpenErr
	}
	page := NewFakePage()
	if l.Configure != nil {
		l.Configure(len(l.pages), page)
	}
	l.pages = append(l.pages, page)
	l.targets = append(l.targets, target)
	return page, nil
}

// Pages returns the pages opened so far.
func (l *FakeLauncher) Pages() []*FakePage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*FakePage(nil), l.pages...)
}

// Targets returns the targets passed to Open.
func (l *FakeLauncher) Targets() []surface.Target {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]surface.Target(nil), l.targets...)
}
