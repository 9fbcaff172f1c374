package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"reel/internal/job"
	"reel/internal/logging"
	"reel/internal/progress"
	"reel/internal/reelerr"
	"reel/internal/surface"
)

// ReadyHook runs once per chunk after its surface reports ready.
type ReadyHook func(ctx context.Context, c Chunk, driver *surface.Driver) error

// Scheduler captures every chunk of a Plan concurrently, one surface per
// chunk, writing numbered frame files into per-chunk directories.
type Scheduler struct {
	Launcher surface.Launcher
	Target   surface.Target
	Driver   surface.Options
	// Frames lists the global frames to capture in increasing order.
	Frames  []int
	Root    string
	Pad     int
	Ext     string
	Counter *progress.Counter
	OnReady ReadyHook
	Logger  *slog.Logger
}

// Run captures all chunks. Chunks holding none of the sampled frames are
// skipped without opening a surface. The first failure cancels the siblings
// and is returned as *reelerr.ChunkFailedError once every worker has exited.
func (s *Scheduler) Run(ctx context.Context, plan Plan) error {
	logger := logging.NewComponentLogger(s.Logger, "chunk")
	perChunk := make(map[int][]int, len(plan.Chunks))
	for _, frame := range s.Frames {
		c := plan.ChunkFor(frame)
		perChunk[c.Index] = append(perChunk[c.Index], frame)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, c := range plan.Chunks {
		frames := perChunk[c.Index]
		if len(frames) == 0 {
			logger.Debug("chunk has no sampled frames; skipping",
				logging.Int("chunk", c.Index),
				logging.Int("frame_start", c.FrameStart),
				logging.Int("frame_end", c.FrameEnd),
			)
			continue
		}
		group.Go(func() error {
			chunkCtx := logging.WithChunk(groupCtx, c.Index)
			if err := s.capture(chunkCtx, c, frames); err != nil {
				return &reelerr.ChunkFailedError{Chunk: c.Index, FrameStart: c.FrameStart, FrameEnd: c.FrameEnd, Err: err}
			}
			return nil
		})
	}
	err := group.Wait()
	if err != nil {
		logging.WithContext(ctx, logger).Error("chunk capture failed", logging.Error(err))
	}
	return err
}

func (s *Scheduler) capture(ctx context.Context, c Chunk, frames []int) (err error) {
	logger := logging.WithContext(ctx, logging.NewComponentLogger(s.Logger, "chunk"))
	dir := Dir(s.Root, c)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create chunk directory: %w", err)
	}

	page, err := s.Launcher.Open(ctx, s.Target)
	if err != nil {
		if ctx.Err() != nil {
			return reelerr.Wrap(reelerr.ErrCanceled, "chunk", "open", "", ctx.Err())
		}
		return reelerr.Wrap(reelerr.ErrExternalTool, "chunk", "open", "open surface", err)
	}
	opts := s.Driver
	opts.Logger = logger
	driver := surface.NewDriver(page, opts)
	defer func() {
		if closeErr := driver.Close(); closeErr != nil {
			logger.Debug("close surface", logging.Error(closeErr))
		}
	}()

	if err := driver.WaitReady(ctx); err != nil {
		return err
	}
	if s.OnReady != nil {
		if err := s.OnReady(ctx, c, driver); err != nil {
			return err
		}
	}

	logger.Debug("chunk capture started",
		logging.Int("frame_start", c.FrameStart),
		logging.Int("frame_end", c.FrameEnd),
		logging.Int("frames", len(frames)),
	)
	for _, frame := range frames {
		if err := ctx.Err(); err != nil {
			return reelerr.Wrap(reelerr.ErrCanceled, "chunk", "capture", "", err)
		}
		if err := driver.SetFrame(ctx, frame); err != nil {
			return err
		}
		data, err := driver.CaptureFrame(ctx)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, job.FrameFileName(frame, s.Pad, s.Ext))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write frame %d: %w", frame, err)
		}
		if s.Counter != nil {
			s.Counter.Add(1)
		}
	}
	return nil
}

// FrameWriter accepts encoded frames in order.
type FrameWriter interface {
	Write(ctx context.Context, frame []byte) error
}

// Feed streams the stitched frame files into w in order.
func Feed(ctx context.Context, paths []string, w FrameWriter) error {
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return reelerr.Wrap(reelerr.ErrCanceled, "chunk", "stitch", "", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return reelerr.Wrap(reelerr.ErrChunkFailed, "chunk", "stitch", "read stitched frame", err)
		}
		if err := w.Write(ctx, data); err != nil {
			return err
		}
	}
	return nil
}
