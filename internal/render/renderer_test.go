package render_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"reel/internal/av1"
	"reel/internal/codec"
	"reel/internal/config"
	"reel/internal/history"
	"reel/internal/job"
	"reel/internal/media/ffprobe"
	"reel/internal/progress"
	"reel/internal/publish"
	"reel/internal/reelerr"
	"reel/internal/render"
	"reel/internal/surface"
	"reel/internal/testsupport"
)

// encodeScript copies stdin into the last argument, like a piped ffmpeg
// encode writing its output file.
const encodeScript = `for last; do :; done
cat > "$last"
`

var fixedNow = time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

// fakeRunner stands in for one-shot ffmpeg calls. Each call copies its
// first readable input to its output so muxed artifacts keep the video bytes.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *fakeRunner) run(_ context.Context, _ string, args ...string) error {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string(nil), args...))
	r.mu.Unlock()
	data := []byte("generated\n")
	for i := 0; i+1 < len(args); i++ {
		if args[i] != "-i" {
			continue
		}
		if contents, err := os.ReadFile(args[i+1]); err == nil {
			data = contents
			break
		}
	}
	return os.WriteFile(args[len(args)-1], data, 0o644)
}

func (r *fakeRunner) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

func (r *fakeRunner) called(fragment string) bool {
	for _, call := range r.Calls() {
		if strings.Contains(strings.Join(call, " "), fragment) {
			return true
		}
	}
	return false
}

type fakeRecorder struct {
	mu       sync.Mutex
	started  []string
	outcomes map[string]history.Outcome
}

func (r *fakeRecorder) Start(_ context.Context, id string, _ job.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, id)
	return nil
}

func (r *fakeRecorder) Finish(_ context.Context, id string, outcome history.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string]history.Outcome{}
	}
	r.outcomes[id] = outcome
	return nil
}

type fakeAV1 struct {
	inputs []string
}

func (f *fakeAV1) Encode(_ context.Context, input, outputDir string, sink progress.Sink) (string, error) {
	f.inputs = append(f.inputs, input)
	data, err := os.ReadFile(input)
	if err != nil {
		return "", err
	}
	sink.Emit(progress.Status("av1 50%"))
	out := av1.OutputPath(input, outputDir)
	return out, os.WriteFile(out, data, 0o644)
}

type eventLog struct {
	mu     sync.Mutex
	events []progress.Event
}

func (l *eventLog) Emit(e progress.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []progress.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]progress.Event(nil), l.events...)
}

func (l *eventLog) terminals() []progress.Event {
	var out []progress.Event
	for _, e := range l.all() {
		if e.Terminal() {
			out = append(out, e)
		}
	}
	return out
}

func (l *eventLog) statuses() []string {
	var out []string
	for _, e := range l.all() {
		if e.Type == progress.TypeStatus {
			out = append(out, e.Message)
		}
	}
	return out
}

func probeWithAudio(context.Context, string, string) (ffprobe.Result, error) {
	return ffprobe.Result{Streams: []ffprobe.Stream{
		{CodecType: "video", CodecName: "h264"},
		{CodecType: "audio", CodecName: "aac"},
	}}, nil
}

type harness struct {
	cfg      *config.Config
	launcher *testsupport.FakeLauncher
	runner   *fakeRunner
	recorder *fakeRecorder
	av1      *fakeAV1
	renderer *render.Renderer
}

func newHarness(t *testing.T, mutate func(*render.Options), cfgOpts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfgOpts = append([]testsupport.ConfigOption{testsupport.WithFFmpegScript(encodeScript)}, cfgOpts...)
	h := &harness{
		cfg:      testsupport.NewConfig(t, cfgOpts...),
		launcher: &testsupport.FakeLauncher{},
		runner:   &fakeRunner{},
		recorder: &fakeRecorder{},
		av1:      &fakeAV1{},
	}
	opts := render.Options{
		Config:   h.cfg,
		Launcher: h.launcher,
		Recorder: h.recorder,
		AV1:      h.av1,
		Runner:   h.runner.run,
		Probe:    probeWithAudio,
		Now:      func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&opts)
	}
	renderer, err := render.New(opts)
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}
	h.renderer = renderer
	return h
}

func baseJob(codecID codec.ID, start, end, concurrency int) job.Job {
	return job.Job{
		CompositionID: "intro",
		Width:         64,
		Height:        36,
		FPS:           30,
		FrameStart:    start,
		FrameEnd:      end,
		Codec:         codecID,
		Concurrency:   concurrency,
	}
}

func expectedFrames(frames ...int) string {
	var b strings.Builder
	for _, f := range frames {
		fmt.Fprintf(&b, "frame %d\n", f)
	}
	return b.String()
}

func rangeFrames(start, end, step int) []int {
	var out []int
	for f := start; f <= end; f += step {
		out = append(out, f)
	}
	return out
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("read %s: %v", dir, err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected %s to be empty, found %v", dir, names)
	}
}

func TestSerialAndParallelProduceTheSameStream(t *testing.T) {
	want := expectedFrames(rangeFrames(0, 29, 1)...)
	for _, tc := range []struct {
		concurrency int
		pages       int
		strategy    string
	}{
		{concurrency: 1, pages: 1, strategy: render.StrategySerial},
		{concurrency: 4, pages: 4, strategy: render.StrategyParallel},
	} {
		t.Run(tc.strategy, func(t *testing.T) {
			h := newHarness(t, nil)
			j := baseJob(codec.H264, 0, 29, tc.concurrency)
			j.Muted = true
			events := &eventLog{}

			res, err := h.renderer.Render(context.Background(), "r-"+tc.strategy, j, events)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if res.Strategy != tc.strategy || res.Frames != 30 {
				t.Fatalf("unexpected result %+v", res)
			}
			wantPath := filepath.Join(h.cfg.Paths.OutputDir, "intro-20260506T070809Z.mp4")
			if res.OutputPath != wantPath {
				t.Fatalf("output path = %s, want %s", res.OutputPath, wantPath)
			}
			data, err := os.ReadFile(res.OutputPath)
			if err != nil {
				t.Fatalf("read output: %v", err)
			}
			if string(data) != want {
				t.Fatalf("stream mismatch:\n%s", data)
			}
			if res.SizeBytes != int64(len(want)) {
				t.Fatalf("size = %d", res.SizeBytes)
			}

			pages := h.launcher.Pages()
			if len(pages) != tc.pages {
				t.Fatalf("expected %d surfaces, got %d", tc.pages, len(pages))
			}
			var captured []int
			for _, p := range pages {
				if !p.Closed() {
					t.Fatal("surface left open")
				}
				captured = append(captured, p.Captures()...)
			}
			slices.Sort(captured)
			if !slices.Equal(captured, rangeFrames(0, 29, 1)) {
				t.Fatalf("captured %v", captured)
			}

			terminals := events.terminals()
			if len(terminals) != 1 || terminals[0].Type != progress.TypeComplete || terminals[0].RenderID != res.ID {
				t.Fatalf("unexpected terminal events %+v", terminals)
			}
			all := events.all()
			if last := all[len(all)-1]; last.Type != progress.TypeComplete {
				t.Fatalf("complete must be last, got %+v", last)
			}
			statuses := events.statuses()
			for _, s := range []string{"surface_ready", "capturing", "encoding"} {
				if !slices.Contains(statuses, s) {
					t.Fatalf("missing status %q in %v", s, statuses)
				}
			}
			if slices.Contains(statuses, "muxing") {
				t.Fatal("muted render must not mux")
			}
			if len(h.runner.Calls()) != 0 {
				t.Fatalf("muted render ran helpers: %v", h.runner.Calls())
			}
			assertEmptyDir(t, h.cfg.Paths.WorkDir)

			outcome := h.recorder.outcomes[res.ID]
			if outcome.Err != nil || outcome.OutputPath != res.OutputPath {
				t.Fatalf("unexpected recorded outcome %+v", outcome)
			}
		})
	}
}

func TestRenderMixesAndMuxesAudio(t *testing.T) {
	h := newHarness(t, nil)
	events := &eventLog{}
	res, err := h.renderer.Render(context.Background(), "", baseJob(codec.H264, 0, 14, 2), events)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.ID == "" {
		t.Fatal("expected a generated render id")
	}
	if !h.runner.called("audio.wav") {
		t.Fatalf("expected a mix into audio.wav, calls: %v", h.runner.Calls())
	}
	if !h.runner.called("-c:a aac") {
		t.Fatalf("expected an aac mux, calls: %v", h.runner.Calls())
	}
	data, err := os.ReadFile(res.OutputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != expectedFrames(rangeFrames(0, 14, 1)...) {
		t.Fatalf("muxed output lost video bytes: %q", data)
	}
	statuses := events.statuses()
	idx := func(s string) int { return slices.Index(statuses, s) }
	if idx("encoding") < 0 || idx("audio_mixing") < idx("encoding") || idx("muxing") < idx("audio_mixing") {
		t.Fatalf("unexpected state order %v", statuses)
	}
	assertEmptyDir(t, h.cfg.Paths.WorkDir)
}

func TestRenderReportsDroppedAudioTrack(t *testing.T) {
	h := newHarness(t, nil)
	missing := filepath.Join(t.TempDir(), "missing.wav")
	h.launcher.Configure = func(_ int, page *testsupport.FakePage) {
		page.Tracks = []surface.AudioTrack{{Src: missing, Volume: 1, PlaybackRate: 1}}
	}
	events := &eventLog{}
	res, err := h.renderer.Render(context.Background(), "r-drop", baseJob(codec.H264, 0, 9, 1), events)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "audio track " + missing + " dropped"
	var found bool
	for _, e := range events.all() {
		if e.Type == progress.TypeStatus && strings.HasPrefix(e.Message, want) {
			found = true
			if e.RenderID != res.ID {
				t.Fatalf("dropped status not stamped with render id: %+v", e)
			}
		}
	}
	if !found {
		t.Fatalf("expected %q status, got %v", want, events.statuses())
	}
	if terminals := events.terminals(); len(terminals) != 1 || terminals[0].Type != progress.TypeComplete {
		t.Fatalf("dropped track must not fail the render: %+v", terminals)
	}
}

func TestRenderGIFUsesPaletteAndEveryNthFrame(t *testing.T) {
	h := newHarness(t, nil)
	j := baseJob(codec.GIF, 0, 9, 1)
	j.EveryNthFrame = 2
	loop := 3
	j.GIFLoop = &loop

	res, err := h.renderer.Render(context.Background(), "gif", j, progress.Discard)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if filepath.Ext(res.OutputPath) != ".gif" || res.Frames != 5 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := h.launcher.Pages()[0].Captures(); !slices.Equal(got, []int{0, 2, 4, 6, 8}) {
		t.Fatalf("captured %v", got)
	}
	calls := h.runner.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected palettegen and paletteuse, got %v", calls)
	}
	if !strings.Contains(strings.Join(calls[0], " "), "palettegen") {
		t.Fatalf("first pass should generate the palette: %v", calls[0])
	}
	apply := strings.Join(calls[1], " ")
	if !strings.Contains(apply, "paletteuse=dither=sierra2_4a") || !strings.Contains(apply, "-loop 3") {
		t.Fatalf("unexpected apply pass: %s", apply)
	}
	data, err := os.ReadFile(res.OutputPath)
	if err != nil {
		t.Fatalf("read gif: %v", err)
	}
	if string(data) != expectedFrames(0, 2, 4, 6, 8) {
		t.Fatalf("gif built from wrong intermediate: %q", data)
	}
}

func TestRenderImageSequence(t *testing.T) {
	for _, concurrency := range []int{1, 3} {
		t.Run(fmt.Sprintf("concurrency-%d", concurrency), func(t *testing.T) {
			h := newHarness(t, nil)
			res, err := h.renderer.Render(context.Background(), "", baseJob(codec.PNG, 0, 11, concurrency), progress.Discard)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if filepath.Base(res.OutputPath) != "intro-20260506T070809Z" {
				t.Fatalf("unexpected sequence directory %s", res.OutputPath)
			}
			for f := 0; f <= 11; f++ {
				path := filepath.Join(res.OutputPath, job.FrameFileName(f, 2, "png"))
				data, err := os.ReadFile(path)
				if err != nil {
					t.Fatalf("frame %d: %v", f, err)
				}
				if string(data) != expectedFrames(f) {
					t.Fatalf("frame %d holds %q", f, data)
				}
			}
			if len(h.runner.Calls()) != 0 {
				t.Fatal("sequence output must not invoke ffmpeg helpers")
			}
			assertEmptyDir(t, h.cfg.Paths.WorkDir)
		})
	}
}

func TestRenderAV1MuxesFLACBeforeDrapto(t *testing.T) {
	h := newHarness(t, nil)
	events := &eventLog{}
	res, err := h.renderer.Render(context.Background(), "av1", baseJob(codec.AV1, 0, 5, 1), events)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(h.av1.inputs) != 1 || filepath.Base(h.av1.inputs[0]) != "intro-20260506T070809Z.mkv" {
		t.Fatalf("unexpected drapto input %v", h.av1.inputs)
	}
	if !h.runner.called("-c:a flac") {
		t.Fatalf("expected a flac mux, calls: %v", h.runner.Calls())
	}
	if filepath.Ext(res.OutputPath) != ".mkv" {
		t.Fatalf("unexpected output %s", res.OutputPath)
	}
	if !slices.Contains(events.statuses(), "av1 50%") {
		t.Fatalf("drapto progress not forwarded: %v", events.statuses())
	}
}

func TestValidationFailsBeforeAnySurfaceOpens(t *testing.T) {
	h := newHarness(t, nil)
	events := &eventLog{}
	_, err := h.renderer.Render(context.Background(), "bad", baseJob("mpeg2", 0, 10, 1), events)
	if !errors.Is(err, reelerr.ErrInvalidCodec) {
		t.Fatalf("expected invalid codec, got %v", err)
	}
	_, err = h.renderer.Render(context.Background(), "bad-range", baseJob(codec.H264, 10, 2, 1), events)
	if !errors.Is(err, reelerr.ErrInvalidFrameRange) {
		t.Fatalf("expected invalid range, got %v", err)
	}
	if len(h.launcher.Pages()) != 0 {
		t.Fatal("validation failure opened a surface")
	}
	if len(h.recorder.started) != 0 {
		t.Fatal("validation failure was recorded")
	}
	terminals := events.terminals()
	if len(terminals) != 2 || terminals[0].Type != progress.TypeError {
		t.Fatalf("unexpected events %+v", terminals)
	}
}

func TestCancellationLeavesNoTempFiles(t *testing.T) {
	for _, concurrency := range []int{1, 2} {
		t.Run(fmt.Sprintf("concurrency-%d", concurrency), func(t *testing.T) {
			h := newHarness(t, nil)
			h.launcher.Configure = func(_ int, p *testsupport.FakePage) {
				p.CaptureDelay = 5 * time.Millisecond
			}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			var once sync.Once
			events := &eventLog{}
			sink := progress.SinkFunc(func(e progress.Event) {
				events.Emit(e)
				if e.Type == progress.TypeProgress && e.FramesDone >= 3 {
					once.Do(cancel)
				}
			})

			_, err := h.renderer.Render(ctx, "cancel", baseJob(codec.H264, 0, 99, concurrency), sink)
			if !errors.Is(err, reelerr.ErrCanceled) {
				t.Fatalf("expected cancellation, got %v", err)
			}
			if reelerr.Kind(err) != "canceled" {
				t.Fatalf("kind = %s", reelerr.Kind(err))
			}
			for _, p := range h.launcher.Pages() {
				if !p.Closed() {
					t.Fatal("surface left open after cancellation")
				}
			}
			assertEmptyDir(t, h.cfg.Paths.WorkDir)
			assertEmptyDir(t, h.cfg.Paths.OutputDir)

			terminals := events.terminals()
			if len(terminals) != 1 || terminals[0].Type != progress.TypeError {
				t.Fatalf("unexpected terminal events %+v", terminals)
			}
			if outcome := h.recorder.outcomes["cancel"]; !errors.Is(outcome.Err, reelerr.ErrCanceled) {
				t.Fatalf("recorded outcome %+v", outcome)
			}
		})
	}
}

func TestChunkFailureAbortsRender(t *testing.T) {
	h := newHarness(t, nil)
	h.launcher.Configure = func(_ int, p *testsupport.FakePage) {
		p.FailCaptureAt = 10
	}
	events := &eventLog{}
	_, err := h.renderer.Render(context.Background(), "chunk", baseJob(codec.H264, 0, 29, 4), events)
	if !errors.Is(err, reelerr.ErrChunkFailed) {
		t.Fatalf("expected chunk failure, got %v", err)
	}
	var chunkErr *reelerr.ChunkFailedError
	if !errors.As(err, &chunkErr) || chunkErr.Chunk != 1 {
		t.Fatalf("expected chunk 1 to fail, got %v", err)
	}
	assertEmptyDir(t, h.cfg.Paths.WorkDir)
	assertEmptyDir(t, h.cfg.Paths.OutputDir)
	if terminals := events.terminals(); len(terminals) != 1 || terminals[0].Type != progress.TypeError {
		t.Fatalf("unexpected terminal events %+v", terminals)
	}
}

func TestEncoderFailureCarriesDiagnosticTail(t *testing.T) {
	h := newHarness(t, nil, testsupport.WithFFmpegScript("cat >/dev/null\necho 'Unknown encoder libx264' >&2\nexit 1\n"))
	j := baseJob(codec.H264, 0, 4, 1)
	j.Muted = true
	_, err := h.renderer.Render(context.Background(), "enc", j, progress.Discard)
	if !errors.Is(err, reelerr.ErrEncodeFailed) {
		t.Fatalf("expected encode failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "Unknown encoder libx264") {
		t.Fatalf("error lacks encoder tail: %v", err)
	}
	assertEmptyDir(t, h.cfg.Paths.WorkDir)
	assertEmptyDir(t, h.cfg.Paths.OutputDir)
}

func TestOutputWithoutVideoStreamIsRejected(t *testing.T) {
	h := newHarness(t, func(o *render.Options) {
		o.Probe = func(context.Context, string, string) (ffprobe.Result, error) {
			return ffprobe.Result{}, nil
		}
	})
	j := baseJob(codec.VP9, 0, 4, 1)
	j.Muted = true
	_, err := h.renderer.Render(context.Background(), "probe", j, progress.Discard)
	if !errors.Is(err, reelerr.ErrEncodeFailed) {
		t.Fatalf("expected encode failure, got %v", err)
	}
	assertEmptyDir(t, h.cfg.Paths.OutputDir)
}

func TestMediaInspectionFailureIsOnlyAWarning(t *testing.T) {
	h := newHarness(t, func(o *render.Options) {
		o.Probe = func(context.Context, string, string) (ffprobe.Result, error) {
			return ffprobe.Result{}, errors.New("ffprobe not installed")
		}
	})
	j := baseJob(codec.H264, 0, 2, 1)
	j.Muted = true
	if _, err := h.renderer.Render(context.Background(), "probe-warn", j, progress.Discard); err != nil {
		t.Fatalf("Render: %v", err)
	}
}

func TestRenderPublishesAndRecordsHistory(t *testing.T) {
	var store *history.Store
	var cfg *config.Config
	h := newHarness(t, func(o *render.Options) {
		cfg = o.Config
		store = testsupport.MustOpenHistory(t, cfg)
		o.Recorder = store
		o.Publisher = publish.NewLocalFS(cfg.Publish.LocalRoot)
	})
	j := baseJob(codec.H264, 0, 2, 1)
	j.Muted = true
	events := &eventLog{}
	res, err := h.renderer.Render(context.Background(), "published", j, events)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Published == nil || res.Published.Provider != "localfs" {
		t.Fatalf("expected a localfs receipt, got %+v", res.Published)
	}
	if _, err := os.Stat(filepath.Join(cfg.Publish.LocalRoot, filepath.Base(res.OutputPath))); err != nil {
		t.Fatalf("published copy missing: %v", err)
	}

	rec, err := store.Get(context.Background(), "published")
	if err != nil || rec == nil {
		t.Fatalf("Get: %v %v", rec, err)
	}
	if rec.Status != history.StatusCompleted || rec.OutputPath != res.OutputPath || rec.PublishedTo == "" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, "renders", "published.log")); err != nil {
		t.Fatalf("render log missing: %v", err)
	}
}
