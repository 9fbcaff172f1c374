package render

import (
	"context"
	"fmt"
	"path/filepath"

	"reel/internal/audio"
	"reel/internal/logging"
	"reel/internal/progress"
	"reel/internal/reelerr"
	"reel/internal/surface"
)

// mixAudio waits for the surface's track snapshot, then collects and mixes
// the tracks into a WAV covering the render range exactly. It runs while
// video is still being captured and encoded.
func (rn *run) mixAudio(ctx context.Context, tracks <-chan []surface.AudioTrack, videoDone <-chan struct{}) (string, error) {
	var snapshot []surface.AudioTrack
	select {
	case <-ctx.Done():
		return "", reelerr.Wrap(reelerr.ErrCanceled, "render", "audio", "", ctx.Err())
	case snapshot = <-tracks:
	case <-videoDone:
		select {
		case snapshot = <-tracks:
		default:
		}
	}
	if err := ctx.Err(); err != nil {
		return "", reelerr.Wrap(reelerr.ErrCanceled, "render", "audio", "", err)
	}

	sources, dropped, err := rn.r.collector.Collect(ctx, snapshot, filepath.Join(rn.workDir, "audio"))
	if err != nil {
		return "", err
	}
	for _, d := range dropped {
		rn.sink.Emit(progress.Status(fmt.Sprintf("audio track %s dropped: %v", d.Track.Src, d.Err)))
	}
	output := filepath.Join(rn.workDir, "audio.wav")
	err = rn.r.mixer.Mix(ctx, audio.MixRequest{
		Sources:    sources,
		FPS:        rn.job.FPS,
		FrameStart: rn.job.FrameStart,
		FrameEnd:   rn.job.FrameEnd,
		Duration:   rn.job.DurationSeconds(),
		Output:     output,
	})
	if err != nil {
		return "", err
	}
	rn.logger.Info("audio mixed",
		logging.String(logging.FieldEventType, "audio_mixed"),
		logging.Int("tracks", len(snapshot)),
		logging.Int("sources", len(sources)),
		logging.Int("dropped", len(dropped)),
		logging.Float64("duration_seconds", rn.job.DurationSeconds()),
	)
	return output, nil
}
