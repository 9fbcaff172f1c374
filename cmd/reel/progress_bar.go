package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"reel/internal/progress"
)

// barSink draws render progress as a terminal progress bar. Status events
// before the first frame are printed as lines; afterwards they become the
// bar description.
type barSink struct {
	mu  sync.Mutex
	out io.Writer
	bar *progressbar.ProgressBar
}

func newBarSink(out io.Writer) *barSink {
	return &barSink{out: out}
}

func (b *barSink) Emit(e progress.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch e.Type {
	case progress.TypeStatus:
		if b.bar == nil {
			fmt.Fprintf(b.out, "%s\n", e.Message)
			return
		}
		b.bar.Describe(e.Message)
	case progress.TypeProgress:
		if b.bar == nil {
			b.bar = progressbar.NewOptions(e.FramesTotal,
				progressbar.OptionSetWriter(b.out),
				progressbar.OptionSetDescription("capturing"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetItsString("frames"),
				progressbar.OptionShowIts(),
				progressbar.OptionSetWidth(30),
				progressbar.OptionThrottle(100*time.Millisecond),
			)
		}
		_ = b.bar.Set(e.FramesDone)
	case progress.TypeComplete:
		if b.bar != nil {
			_ = b.bar.Finish()
		}
		fmt.Fprintln(b.out)
	case progress.TypeError:
		if b.bar != nil {
			_ = b.bar.Exit()
		}
		fmt.Fprintln(b.out)
	}
}
