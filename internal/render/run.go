package render

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"reel/internal/codec"
	"reel/internal/encoder"
	"reel/internal/fileutil"
	"reel/internal/job"
	"reel/internal/logging"
	"reel/internal/media/ffprobe"
	"reel/internal/mux"
	"reel/internal/progress"
	"reel/internal/reelerr"
	"reel/internal/surface"
)

// run holds the state of one Render call.
type run struct {
	r        *Renderer
	id       string
	job      job.Job
	spec     codec.Spec
	frames   []int
	sink     progress.Sink
	logger   *slog.Logger
	machine  *Machine
	counter  *progress.Counter
	sampler  *logging.FrameSampler
	started  time.Time
	workDir  string
	strategy string
}

func (rn *run) entered(state State) {
	rn.logger.Info("render state changed",
		logging.String(logging.FieldEventType, "render_state"),
		logging.String("state", string(state)),
	)
	if !state.Terminal() {
		rn.sink.Emit(progress.Status(string(state)))
	}
}

// progress forwards counter events and logs roughly every tenth of the range.
func (rn *run) progress(e progress.Event) {
	rn.sink.Emit(e)
	if rn.sampler.ShouldLog(e.FramesDone) {
		rn.logger.Info("capture progress",
			logging.String(logging.FieldEventType, "capture_progress"),
			logging.Int("frames_done", e.FramesDone),
			logging.Int("frames_total", e.FramesTotal),
		)
	}
}

func (rn *run) cfgEncoder() (binary string, depth, tail int) {
	enc := rn.r.cfg.Encoder
	return enc.FFmpegBinary, enc.QueueDepth, enc.TailBytes
}

// wantAudio reports whether the artifact gets an audio stream. Audio-capable
// codecs always carry one unless muted, silent when the composition has no
// active tracks.
func (rn *run) wantAudio() bool {
	return rn.spec.SupportsAudio() && !rn.job.Muted && rn.spec.Kind != codec.KindSequence
}

// captureFormat is the image encoding requested from the surface.
func (rn *run) captureFormat() codec.ImageFormat {
	if rn.spec.Kind == codec.KindSequence {
		format, err := codec.ParseImageFormat(string(rn.spec.ID))
		if err == nil {
			return format
		}
	}
	return rn.job.ImageFormat
}

// execute produces the artifact and moves it to its final location. The
// scratch directory is removed on every path.
func (rn *run) execute(ctx context.Context, now time.Time) (string, error) {
	root, err := rn.r.workRoot()
	if err != nil {
		return "", err
	}
	workDir, err := os.MkdirTemp(root, "reel-"+rn.id+"-")
	if err != nil {
		return "", fmt.Errorf("create render work directory: %w", err)
	}
	rn.workDir = workDir
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			rn.logger.Warn("remove render work directory",
				logging.String(logging.FieldEventType, "workdir_cleanup_failed"),
				logging.String("path", workDir),
				logging.Error(err),
			)
		}
	}()

	output := filepath.Join(rn.r.cfg.Paths.OutputDir, rn.job.OutputName(now))
	if rn.spec.Kind == codec.KindSequence {
		return output, rn.renderSequence(ctx, output)
	}
	return output, rn.renderEncoded(ctx, output)
}

// renderEncoded captures into an encoder while audio is collected and mixed
// alongside, then finishes the artifact for the codec's kind.
func (rn *run) renderEncoded(ctx context.Context, output string) error {
	encodeSpec := rn.spec
	if rn.spec.Kind == codec.KindPalette || rn.spec.Kind == codec.KindAV1 {
		encodeSpec = codec.Intermediate()
	}
	videoPath := filepath.Join(rn.workDir, "video."+encodeSpec.Extension)
	wantAudio := rn.wantAudio()

	var tracks chan []surface.AudioTrack
	if wantAudio {
		tracks = make(chan []surface.AudioTrack, 1)
	}
	videoDone := make(chan struct{})
	var audioPath string

	group, groupCtx := errgroup.WithContext(ctx)
	if wantAudio {
		group.Go(func() error {
			path, err := rn.mixAudio(groupCtx, tracks, videoDone)
			audioPath = path
			return err
		})
	}
	group.Go(func() error {
		defer close(videoDone)
		if err := rn.encodeVideo(groupCtx, encodeSpec, videoPath, tracks); err != nil {
			return err
		}
		if wantAudio {
			return rn.machine.Enter(StateAudioMixing)
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return err
	}

	var artifact string
	var err error
	switch rn.spec.Kind {
	case codec.KindPalette:
		artifact, err = rn.finishPalette(ctx, videoPath)
	case codec.KindAV1:
		artifact, err = rn.finishAV1(ctx, videoPath, audioPath, output)
	default:
		artifact, err = rn.finishVideo(ctx, videoPath, audioPath)
	}
	if err != nil {
		return err
	}

	if err := rn.verify(ctx, artifact, wantAudio); err != nil {
		return err
	}
	if err := fileutil.MoveFile(artifact, output); err != nil {
		return fmt.Errorf("move artifact to output: %w", err)
	}
	return nil
}

// encodeVideo runs the capture strategy into an encoder pipe. The pipe is
// aborted, and its partial output removed, unless Finish ran.
func (rn *run) encodeVideo(ctx context.Context, spec codec.Spec, output string, tracks chan<- []surface.AudioTrack) error {
	target := &pipeTarget{rn: rn, settings: rn.encodeSettings(spec, output)}
	finished := false
	defer func() {
		if target.pipe != nil && !finished {
			target.pipe.Abort()
		}
	}()

	if err := rn.capture(ctx, rn.captureFormat(), target, tracks); err != nil {
		return err
	}
	if rn.machine.State() == StateCapturing {
		if err := rn.machine.Enter(StateEncoding); err != nil {
			return err
		}
	}
	result, err := target.pipe.Finish(ctx)
	finished = true
	if err != nil {
		return err
	}
	rn.logger.Info("video encoded",
		logging.String(logging.FieldEventType, "encode_complete"),
		logging.String("encoder", spec.Encoder),
		logging.Int("frames", result.Frames),
		logging.Duration("elapsed", result.Elapsed),
	)
	return nil
}

// encodeSettings maps the job onto encoder flags. The lossless intermediate
// ignores the requested quality and pixel format; those belong to the final
// pass.
func (rn *run) encodeSettings(spec codec.Spec, output string) encoder.Settings {
	settings := encoder.Settings{
		Codec:       spec,
		FPS:         rn.job.OutputFPS(),
		InputFormat: rn.captureFormat(),
		Preset:      rn.r.cfg.Encoder.Preset,
		Output:      output,
	}
	if spec.ID == rn.spec.ID {
		settings.CRF, settings.UseCRF = rn.job.CRF()
		settings.Bitrate = strings.TrimSpace(rn.job.Quality.Bitrate)
		settings.PixelFormat = rn.job.PixelFormat
	}
	return settings
}

// finishVideo muxes the mixed audio into the encoded video when there is any.
func (rn *run) finishVideo(ctx context.Context, videoPath, audioPath string) (string, error) {
	if audioPath == "" {
		return videoPath, nil
	}
	if err := rn.machine.Enter(StateMuxing); err != nil {
		return "", err
	}
	muxed := filepath.Join(rn.workDir, "muxed."+rn.spec.Extension)
	err := rn.r.muxer.Mux(ctx, mux.Request{
		VideoPath:  videoPath,
		AudioPath:  audioPath,
		Codec:      rn.spec,
		Language:   rn.r.cfg.Audio.Language,
		OutputPath: muxed,
	})
	if err != nil {
		return "", err
	}
	return muxed, nil
}

// verify probes the artifact before it is published. A probe that cannot run
// only costs the check; a probe that runs and disagrees fails the render.
func (rn *run) verify(ctx context.Context, path string, wantAudio bool) error {
	result, err := rn.r.probe(ctx, rn.r.cfg.Encoder.FFprobeBinary, path)
	if err != nil {
		if ctx.Err() != nil {
			return reelerr.Wrap(reelerr.ErrCanceled, "render", "verify", "", ctx.Err())
		}
		logging.WarnWithContext(rn.logger, "output validation skipped", "ffprobe_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "artifact published without stream validation"),
			logging.String(logging.FieldErrorHint, "check ffprobe_binary in the encoder config"),
		)
		return nil
	}

	rn.logger.Info("output inspected",
		logging.String(logging.FieldEventType, "output_validated"),
		logging.String("video_codec", result.VideoCodec()),
		logging.Int("video_streams", result.VideoStreamCount()),
		logging.Int("audio_streams", result.AudioStreamCount()),
		logging.Float64("duration_seconds", result.DurationSeconds()),
	)
	// A dropped frame in every-nth mode shortens the output by up to one step.
	tolerance := math.Max(0.5, float64(rn.job.EveryNthFrame+1)/rn.job.FPS)
	return ffprobe.Verify(result, ffprobe.Expectation{
		Audio:     wantAudio,
		Duration:  rn.job.DurationSeconds(),
		Tolerance: tolerance,
	})
}
