package render

import (
	"context"
	"path/filepath"
	"sync"

	"reel/internal/chunk"
	"reel/internal/codec"
	"reel/internal/encoder"
	"reel/internal/logging"
	"reel/internal/reelerr"
	"reel/internal/surface"
)

const (
	StrategySerial   = "serial"
	StrategyParallel = "parallel"
)

// frameTarget receives captured frames. Serial capture calls WriteFrame for
// each frame as it is taken; parallel capture writes chunk files first and
// hands the stitched, ordered paths to WriteStitched.
type frameTarget interface {
	Begin(ctx context.Context) error
	WriteFrame(ctx context.Context, frame int, data []byte) error
	WriteStitched(ctx context.Context, frames []int, paths []string) error
}

// capture picks the strategy from the chunk plan: a single chunk runs on one
// surface feeding the target directly.
func (rn *run) capture(ctx context.Context, format codec.ImageFormat, target frameTarget, tracks chan<- []surface.AudioTrack) error {
	plan, err := chunk.Partition(rn.job.FrameStart, rn.job.FrameEnd, rn.job.Concurrency)
	if err != nil {
		return err
	}
	if len(plan.Chunks) == 1 {
		rn.strategy = StrategySerial
		return rn.captureSerial(ctx, format, target, tracks)
	}
	rn.strategy = StrategyParallel
	return rn.captureParallel(ctx, plan, format, target, tracks)
}

func (rn *run) surfaceTarget() surface.Target {
	return surface.Target{
		CompositionID: rn.job.CompositionID,
		Width:         rn.job.Width,
		Height:        rn.job.Height,
		Scale:         rn.job.Scale,
		InputProps:    rn.job.InputProps,
	}
}

func (rn *run) driverOptions(format codec.ImageFormat) surface.Options {
	cfg := rn.r.cfg
	return surface.Options{
		Selector:            cfg.Browser.Selector,
		Format:              format,
		Quality:             rn.job.JPEGQuality,
		ReadyTimeout:        cfg.ReadyTimeout(),
		SettleTimeout:       cfg.SettleTimeout(),
		FailOnSettleTimeout: cfg.FailOnSettleTimeout(),
		Logger:              rn.logger,
	}
}

func (rn *run) captureSerial(ctx context.Context, format codec.ImageFormat, target frameTarget, tracks chan<- []surface.AudioTrack) error {
	page, err := rn.r.launcher.Open(ctx, rn.surfaceTarget())
	if err != nil {
		if ctx.Err() != nil {
			return reelerr.Wrap(reelerr.ErrCanceled, "render", "open surface", "", ctx.Err())
		}
		return reelerr.Wrap(reelerr.ErrExternalTool, "render", "open surface", "launch browser", err)
	}
	driver := surface.NewDriver(page, rn.driverOptions(format))
	defer func() {
		if err := driver.Close(); err != nil {
			rn.logger.Debug("close surface", logging.Error(err))
		}
	}()

	if err := driver.WaitReady(ctx); err != nil {
		return err
	}
	if err := rn.machine.Enter(StateSurfaceReady); err != nil {
		return err
	}
	if err := rn.snapshotAudio(ctx, driver, tracks); err != nil {
		return err
	}
	if err := target.Begin(ctx); err != nil {
		return err
	}
	if err := rn.machine.Enter(StateCapturing); err != nil {
		return err
	}

	for _, frame := range rn.frames {
		if err := ctx.Err(); err != nil {
			return reelerr.Wrap(reelerr.ErrCanceled, "render", "capture", "", err)
		}
		if err := driver.SetFrame(ctx, frame); err != nil {
			return err
		}
		data, err := driver.CaptureFrame(ctx)
		if err != nil {
			return err
		}
		if err := target.WriteFrame(ctx, frame, data); err != nil {
			return err
		}
		rn.counter.Add(1)
	}
	return nil
}

func (rn *run) captureParallel(ctx context.Context, plan chunk.Plan, format codec.ImageFormat, target frameTarget, tracks chan<- []surface.AudioTrack) error {
	root := filepath.Join(rn.workDir, "chunks")
	pad := rn.job.PadWidth()
	ext := format.Extension()

	var first sync.Once
	var firstErr error
	scheduler := &chunk.Scheduler{
		Launcher: rn.r.launcher,
		Target:   rn.surfaceTarget(),
		Driver:   rn.driverOptions(format),
		Frames:   rn.frames,
		Root:     root,
		Pad:      pad,
		Ext:      ext,
		Counter:  rn.counter,
		Logger:   rn.logger,
		// The first ready surface advances the state machine and supplies the
		// audio snapshot; every chunk mounts the same composition.
		OnReady: func(ctx context.Context, _ chunk.Chunk, driver *surface.Driver) error {
			first.Do(func() {
				if firstErr = rn.machine.Enter(StateSurfaceReady); firstErr != nil {
					return
				}
				if firstErr = rn.snapshotAudio(ctx, driver, tracks); firstErr != nil {
					return
				}
				firstErr = rn.machine.Enter(StateCapturing)
			})
			return firstErr
		},
	}
	rn.logger.Debug("parallel capture planned",
		logging.Int("chunks", len(plan.Chunks)),
		logging.Int("frames", len(rn.frames)),
	)
	if err := scheduler.Run(ctx, plan); err != nil {
		return err
	}

	paths := plan.Stitch(root, rn.frames, pad, ext)
	if err := target.Begin(ctx); err != nil {
		return err
	}
	return target.WriteStitched(ctx, rn.frames, paths)
}

// snapshotAudio reads the composition's audio tracks once and hands them to
// the mixer goroutine.
func (rn *run) snapshotAudio(ctx context.Context, driver *surface.Driver, tracks chan<- []surface.AudioTrack) error {
	if tracks == nil {
		return nil
	}
	snapshot, err := driver.AudioTracks(ctx)
	if err != nil {
		return err
	}
	rn.logger.Debug("audio snapshot taken", logging.Int("tracks", len(snapshot)))
	tracks <- snapshot
	return nil
}

// pipeTarget streams frames into one encoder process.
type pipeTarget struct {
	rn       *run
	settings encoder.Settings
	pipe     *encoder.Pipe
}

func (t *pipeTarget) Begin(ctx context.Context) error {
	binary, depth, tail := t.rn.cfgEncoder()
	pipe, err := encoder.Start(ctx, encoder.Options{
		Binary:     binary,
		Args:       encoder.PipeArgs(t.settings),
		OutputPath: t.settings.Output,
		QueueDepth: depth,
		TailBytes:  tail,
		Logger:     t.rn.logger,
	})
	if err != nil {
		return err
	}
	t.pipe = pipe
	return nil
}

func (t *pipeTarget) WriteFrame(ctx context.Context, _ int, data []byte) error {
	return t.pipe.Write(ctx, data)
}

func (t *pipeTarget) WriteStitched(ctx context.Context, _ []int, paths []string) error {
	if err := t.rn.machine.Enter(StateEncoding); err != nil {
		return err
	}
	return chunk.Feed(ctx, paths, t.pipe)
}
