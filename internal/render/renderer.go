package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"reel/internal/audio"
	"reel/internal/av1"
	"reel/internal/codec"
	"reel/internal/config"
	"reel/internal/encoder"
	"reel/internal/fileutil"
	"reel/internal/gif"
	"reel/internal/history"
	"reel/internal/job"
	"reel/internal/logging"
	"reel/internal/media/ffprobe"
	"reel/internal/mux"
	"reel/internal/progress"
	"reel/internal/publish"
	"reel/internal/reelerr"
	"reel/internal/surface"
)

// Recorder persists render lifecycle transitions. *history.Store satisfies it.
type Recorder interface {
	Start(ctx context.Context, id string, j job.Job) error
	Finish(ctx context.Context, id string, outcome history.Outcome) error
}

// ProbeFunc inspects a finished artifact.
type ProbeFunc func(ctx context.Context, binary, path string) (ffprobe.Result, error)

// Options wires a Renderer. Only Config is required.
type Options struct {
	Config     *config.Config
	Launcher   surface.Launcher
	Logger     *slog.Logger
	Recorder   Recorder
	Publisher  publish.Publisher
	AV1        av1.Client
	HTTPClient *http.Client
	// Runner replaces the one-shot ffmpeg runner used by the mixer, muxer and
	// palette pipeline.
	Runner encoder.Runner
	Probe  ProbeFunc
	Now    func() time.Time
}

// Result describes a completed render.
type Result struct {
	ID         string
	OutputPath string
	Frames     int
	SizeBytes  int64
	Elapsed    time.Duration
	Published  *publish.Receipt
	Strategy   string
}

// Renderer runs render jobs. It is safe for concurrent use; each Render call
// owns its browsers, encoder and scratch directory.
type Renderer struct {
	cfg        *config.Config
	baseLogger *slog.Logger
	logger     *slog.Logger
	launcher   surface.Launcher
	recorder   Recorder
	publisher  publish.Publisher
	av1        av1.Client
	collector  *audio.Collector
	mixer      *audio.Mixer
	muxer      *mux.Muxer
	palette    *gif.Pipeline
	probe      ProbeFunc
	now        func() time.Time
}

// New builds a Renderer from opts.
func New(opts Options) (*Renderer, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("render: config is required")
	}

	launcher := opts.Launcher
	if launcher == nil {
		launcher = surface.NewRodLauncher(surface.RodOptions{
			Binary:    cfg.Browser.Binary,
			Headless:  cfg.Browser.Headless,
			NoSandbox: cfg.Browser.NoSandbox,
			ServeURL:  cfg.Browser.ServeURL,
			Logger:    opts.Logger,
		})
	}

	collectorOpts := []audio.CollectorOption{audio.WithFetchTimeout(cfg.FetchTimeout())}
	if opts.HTTPClient != nil {
		collectorOpts = append(collectorOpts, audio.WithHTTPClient(opts.HTTPClient))
	}

	mixer := audio.NewMixer(cfg.Encoder.FFmpegBinary, cfg.Audio.SampleRate, cfg.Audio.Channels, opts.Logger)
	muxer := mux.NewMuxer(cfg.Encoder.FFmpegBinary, opts.Logger)
	palette := gif.NewPipeline(cfg.Encoder.FFmpegBinary, opts.Logger)
	if opts.Runner != nil {
		mixer.WithCommandRunner(opts.Runner)
		muxer.WithCommandRunner(opts.Runner)
		palette.WithCommandRunner(opts.Runner)
	}

	av1Client := opts.AV1
	if av1Client == nil {
		av1Client = av1.NewLibrary(opts.Logger)
	}
	probe := opts.Probe
	if probe == nil {
		probe = ffprobe.Inspect
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Renderer{
		cfg:        cfg,
		baseLogger: opts.Logger,
		logger:     logging.NewComponentLogger(opts.Logger, "render"),
		launcher:   launcher,
		recorder:   opts.Recorder,
		publisher:  opts.Publisher,
		av1:        av1Client,
		collector:  audio.NewCollector(opts.Logger, collectorOpts...),
		mixer:      mixer,
		muxer:      muxer,
		palette:    palette,
		probe:      probe,
		now:        now,
	}, nil
}

// Defaults returns the request fallbacks taken from configuration.
func (r *Renderer) Defaults() job.Defaults {
	format, err := codec.ParseImageFormat(r.cfg.Browser.ImageFormat)
	if err != nil {
		format = codec.ImagePNG
	}
	return job.Defaults{
		Codec:       codec.ID(r.cfg.Render.Codec),
		Concurrency: r.cfg.Render.Concurrency,
		ImageFormat: format,
		JPEGQuality: r.cfg.Browser.JPEGQuality,
		GIFLoop:     r.cfg.Render.GIFLoop,
	}
}

// Prepare applies configuration defaults to j and validates it.
func (r *Renderer) Prepare(j job.Job) (job.Job, error) {
	j = j.WithDefaults(r.Defaults())
	if err := j.Validate(); err != nil {
		return j, err
	}
	return j, nil
}

// Render runs j to completion. An empty id is replaced with a fresh UUID.
// The sink receives state changes, per-frame progress and exactly one
// terminal complete or error event. Validation errors are reported before
// any browser or subprocess starts.
func (r *Renderer) Render(ctx context.Context, id string, j job.Job, sink progress.Sink) (Result, error) {
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	sink = progress.WithRenderID(sink, id)
	ctx = logging.WithRenderID(ctx, id)
	result := Result{ID: id}

	j, err := r.Prepare(j)
	if err != nil {
		logging.WithContext(ctx, r.logger).Warn("render rejected",
			logging.String(logging.FieldEventType, "render_rejected"),
			logging.Error(err),
		)
		sink.Emit(progress.Error(err.Error()))
		return result, err
	}

	started := r.now()
	rl := r.renderLogger(id)
	if rl.closer != nil {
		defer rl.closer.Close()
	}
	log := logging.WithContext(ctx, rl.logger)

	r.record(ctx, log, func(rc context.Context) error { return r.recorder.Start(rc, id, j) })

	rn := &run{
		r:       r,
		id:      id,
		job:     j,
		spec:    j.Spec(),
		frames:  j.Frames(),
		sink:    sink,
		logger:  log,
		started: started,
	}
	rn.machine = NewMachine(rn.entered)
	rn.counter = progress.NewCounter(len(rn.frames), progress.SinkFunc(rn.progress))
	rn.sampler = logging.NewFrameSampler(len(rn.frames), 10)

	log.Info("render started",
		logging.String(logging.FieldEventType, "render_started"),
		logging.String("composition_id", j.CompositionID),
		logging.String("codec", string(j.Codec)),
		logging.Int("frame_start", j.FrameStart),
		logging.Int("frame_end", j.FrameEnd),
		logging.Int("frames", len(rn.frames)),
		logging.Int("concurrency", j.Concurrency),
	)

	output, err := rn.execute(ctx, started)
	elapsed := r.now().Sub(started)
	result.Frames = rn.counter.Done()
	result.Elapsed = elapsed
	result.Strategy = rn.strategy

	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, reelerr.ErrCanceled) {
			err = reelerr.Wrap(reelerr.ErrCanceled, "render", "run", "", err)
		}
		rn.machine.Abort()
		logging.ErrorWithContext(log, "render failed", "render_failed",
			logging.String("error_kind", reelerr.Kind(err)),
			logging.Error(err),
			logging.Duration("elapsed", elapsed),
		)
		sink.Emit(progress.Error(err.Error()))
		r.record(ctx, log, func(rc context.Context) error {
			return r.recorder.Finish(rc, id, history.Outcome{Elapsed: elapsed, Err: err})
		})
		return result, err
	}

	result.OutputPath = output
	if size, sizeErr := fileutil.Size(output); sizeErr == nil {
		result.SizeBytes = size
	}
	result.Published = r.publish(ctx, log, sink, output)

	_ = rn.machine.Enter(StateComplete)
	log.Info("render complete",
		logging.String(logging.FieldEventType, "render_complete"),
		logging.String("output_path", output),
		logging.Int64("size_bytes", result.SizeBytes),
		logging.Int("frames", result.Frames),
		logging.Duration("elapsed", elapsed),
	)
	sink.Emit(progress.Complete(output, elapsed))

	outcome := history.Outcome{OutputPath: output, SizeBytes: result.SizeBytes, Elapsed: elapsed}
	if result.Published != nil {
		outcome.PublishedTo = result.Published.String()
	}
	r.record(ctx, log, func(rc context.Context) error { return r.recorder.Finish(rc, id, outcome) })
	return result, nil
}

type renderLog struct {
	logger *slog.Logger
	closer io.Closer
}

// renderLogger tees component logs into <log_dir>/renders/<id>.log. A log
// file that cannot be opened only costs the per-render copy.
func (r *Renderer) renderLogger(id string) renderLog {
	path := filepath.Join(r.cfg.Paths.LogDir, "renders", id+".log")
	handler, closer, err := logging.OpenRenderLog(path, r.cfg.Logging.Level)
	if err != nil {
		logging.WarnWithContext(r.logger, "render log unavailable", "render_log_unavailable",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "render logs only reach the main log"),
		)
		return renderLog{logger: r.logger}
	}
	tee := logging.TeeLogger(r.baseLogger, handler)
	return renderLog{logger: logging.NewComponentLogger(tee, "render"), closer: closer}
}

// record calls fn against the recorder. History is bookkeeping, so failures
// are logged and the render carries on. Writes survive caller cancellation
// so a canceled render is still recorded.
func (r *Renderer) record(ctx context.Context, log *slog.Logger, fn func(context.Context) error) {
	if r.recorder == nil {
		return
	}
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		logging.WarnWithContext(log, "render history update failed", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "render history may be stale"),
			logging.String(logging.FieldErrorHint, "check the state directory is writable"),
		)
	}
}

func (r *Renderer) publish(ctx context.Context, log *slog.Logger, sink progress.Sink, output string) *publish.Receipt {
	if r.publisher == nil {
		return nil
	}
	sink.Emit(progress.Status(fmt.Sprintf("publishing to %s", r.publisher.Provider())))
	receipt, err := r.publisher.Publish(ctx, output)
	if err != nil {
		logging.WarnWithContext(log, "publish failed", "publish_failed",
			logging.String("provider", r.publisher.Provider()),
			logging.String("output_path", output),
			logging.Error(err),
			logging.String(logging.FieldImpact, "artifact kept locally only"),
			logging.String(logging.FieldErrorHint, "check publish credentials and destination"),
		)
		sink.Emit(progress.Status("publish failed: " + err.Error()))
		return nil
	}
	log.Info("artifact published",
		logging.String(logging.FieldEventType, "publish_complete"),
		logging.String("provider", receipt.Provider),
		logging.String("location", receipt.Location),
	)
	sink.Emit(progress.Status("published " + receipt.String()))
	return &receipt
}

func (r *Renderer) workRoot() (string, error) {
	if err := os.MkdirAll(r.cfg.Paths.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("create work directory: %w", err)
	}
	if err := os.MkdirAll(r.cfg.Paths.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	return r.cfg.Paths.WorkDir, nil
}
