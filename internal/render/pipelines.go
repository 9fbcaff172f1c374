package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"reel/internal/fileutil"
	"reel/internal/gif"
	"reel/internal/job"
	"reel/internal/logging"
	"reel/internal/mux"
	"reel/internal/progress"
	"reel/internal/reelerr"
)

// finishPalette re-encodes the lossless intermediate as a palette GIF.
func (rn *run) finishPalette(ctx context.Context, intermediate string) (string, error) {
	output := filepath.Join(rn.workDir, "palette."+rn.spec.Extension)
	rn.sink.Emit(progress.Status("generating palette"))
	err := rn.r.palette.Encode(ctx, gif.Request{
		Intermediate: intermediate,
		Output:       output,
		Loop:         rn.job.Loop(),
		WorkDir:      rn.workDir,
	})
	if err != nil {
		return "", err
	}
	return output, nil
}

// finishAV1 muxes audio into the lossless intermediate and hands the result
// to drapto. drapto names its output after the input stem, so the muxed
// source takes the final artifact's stem.
func (rn *run) finishAV1(ctx context.Context, intermediate, audioPath, output string) (string, error) {
	source := intermediate
	if audioPath != "" {
		if err := rn.machine.Enter(StateMuxing); err != nil {
			return "", err
		}
		base := filepath.Base(output)
		source = filepath.Join(rn.workDir, strings.TrimSuffix(base, filepath.Ext(base))+".mkv")
		err := rn.r.muxer.Mux(ctx, mux.Request{
			VideoPath:  intermediate,
			AudioPath:  audioPath,
			Codec:      rn.spec,
			Language:   rn.r.cfg.Audio.Language,
			OutputPath: source,
		})
		if err != nil {
			return "", err
		}
	}

	outDir := filepath.Join(rn.workDir, "av1")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create av1 directory: %w", err)
	}
	rn.sink.Emit(progress.Status("av1 encode started"))
	encoded, err := rn.r.av1.Encode(ctx, source, outDir, rn.sink)
	if err != nil {
		return "", err
	}
	return encoded, nil
}

// renderSequence writes every captured frame straight to disk.
func (rn *run) renderSequence(ctx context.Context, output string) error {
	target := &sequenceTarget{
		dir: filepath.Join(rn.workDir, "sequence"),
		pad: rn.job.PadWidth(),
		ext: rn.spec.Extension,
	}
	if err := rn.capture(ctx, rn.captureFormat(), target, nil); err != nil {
		return err
	}

	entries, err := os.ReadDir(target.dir)
	if err != nil {
		return fmt.Errorf("read sequence directory: %w", err)
	}
	if len(entries) != len(rn.frames) {
		return reelerr.Wrap(reelerr.ErrEncodeFailed, "render", "sequence",
			fmt.Sprintf("wrote %d of %d frames", len(entries), len(rn.frames)), nil)
	}
	if err := fileutil.MoveTree(target.dir, output); err != nil {
		return fmt.Errorf("move sequence to output: %w", err)
	}
	rn.logger.Info("image sequence written",
		logging.String(logging.FieldEventType, "sequence_complete"),
		logging.Int("frames", len(entries)),
		logging.String("output_path", output),
	)
	return nil
}

// sequenceTarget names frames frame-<pad>.<ext> inside dir.
type sequenceTarget struct {
	dir string
	pad int
	ext string
}

func (t *sequenceTarget) Begin(context.Context) error {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("create sequence directory: %w", err)
	}
	return nil
}

func (t *sequenceTarget) path(frame int) string {
	return filepath.Join(t.dir, job.FrameFileName(frame, t.pad, t.ext))
}

func (t *sequenceTarget) WriteFrame(_ context.Context, frame int, data []byte) error {
	if err := os.WriteFile(t.path(frame), data, 0o644); err != nil {
		return fmt.Errorf("write frame %d: %w", frame, err)
	}
	return nil
}

func (t *sequenceTarget) WriteStitched(ctx context.Context, frames []int, paths []string) error {
	if len(frames) != len(paths) {
		return fmt.Errorf("stitched %d paths for %d frames", len(paths), len(frames))
	}
	for i, src := range paths {
		if err := ctx.Err(); err != nil {
			return reelerr.Wrap(reelerr.ErrCanceled, "render", "stitch", "", err)
		}
		if err := os.Rename(src, t.path(frames[i])); err != nil {
			return reelerr.Wrap(reelerr.ErrChunkFailed, "render", "stitch", fmt.Sprintf("move frame %d", frames[i]), err)
		}
	}
	return nil
}
