package audio

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"reel/internal/encoder"
	"reel/internal/logging"
	"reel/internal/surface"
)

const (
	DefaultSampleRate = 48000
	DefaultChannels   = 2
)

// MixRequest describes one mix over the render's frame range.
type MixRequest struct {
	Sources    []Source
	FPS        float64
	FrameStart int
	FrameEnd   int
	// Duration is the exact output length in seconds.
	Duration float64
	Output   string
}

// Mixer renders MixRequests to PCM WAV files with ffmpeg.
type Mixer struct {
	binary     string
	sampleRate int
	channels   int
	run        encoder.Runner
	logger     *slog.Logger
}

// NewMixer constructs a Mixer using the ffmpeg binary.
func NewMixer(binary string, sampleRate, channels int, logger *slog.Logger) *Mixer {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}
	return &Mixer{
		binary:     binary,
		sampleRate: sampleRate,
		channels:   channels,
		run:        encoder.Run,
		logger:     logging.NewComponentLogger(logger, "mixer"),
	}
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (m *Mixer) WithCommandRunner(r encoder.Runner) {
	if m != nil && r != nil {
		m.run = r
	}
}

// Mix writes the mixed stream, or silence of exact duration when there are no
// sources.
func (m *Mixer) Mix(ctx context.Context, req MixRequest) error {
	if req.Duration <= 0 {
		return fmt.Errorf("mix duration must be positive")
	}
	args := m.Args(req)
	logging.WithContext(ctx, m.logger).Debug("mixing audio",
		logging.Int("tracks", len(audible(req))),
		logging.Float64("duration_seconds", req.Duration),
	)
	return m.run(ctx, m.binary, args...)
}

// Args builds the ffmpeg argument list for req.
func (m *Mixer) Args(req MixRequest) []string {
	duration := formatSeconds(req.Duration)
	args := []string{"-y", "-hide_banner", "-loglevel", "warning"}
	sources := audible(req)

	if len(sources) == 0 {
		layout := "stereo"
		if m.channels == 1 {
			layout = "mono"
		}
		args = append(args,
			"-f", "lavfi",
			"-i", fmt.Sprintf("anullsrc=r=%d:cl=%s", m.sampleRate, layout),
			"-t", duration,
		)
		return append(args, m.outputArgs(req.Output)...)
	}

	chains := make([]string, 0, len(sources)+1)
	labels := make([]string, 0, len(sources))
	for i, src := range sources {
		if src.Track.Loop {
			args = append(args, "-stream_loop", "-1")
		}
		args = append(args, "-i", src.Path)
		label := fmt.Sprintf("a%d", i)
		chains = append(chains, fmt.Sprintf("[%d:a]%s[%s]", i, strings.Join(trackFilters(src.Track, req), ","), label))
		labels = append(labels, "["+label+"]")
	}

	tail := fmt.Sprintf("apad,atrim=duration=%s,asetpts=N/SR/TB", duration)
	if len(labels) == 1 {
		chains = append(chains, fmt.Sprintf("%s%s[out]", labels[0], tail))
	} else {
		chains = append(chains, fmt.Sprintf("%samix=inputs=%d:duration=longest:normalize=0,%s[out]",
			strings.Join(labels, ""), len(labels), tail))
	}
	args = append(args, "-filter_complex", strings.Join(chains, ";"), "-map", "[out]")
	return append(args, m.outputArgs(req.Output)...)
}

// audible drops tracks whose span lies entirely outside the rendered range.
func audible(req MixRequest) []Source {
	out := make([]Source, 0, len(req.Sources))
	for _, src := range req.Sources {
		if src.Track.StartFrame > req.FrameEnd {
			continue
		}
		if src.Track.EndFrame != nil && *src.Track.EndFrame <= req.FrameStart {
			continue
		}
		out = append(out, src)
	}
	return out
}

func (m *Mixer) outputArgs(output string) []string {
	return []string{
		"-ar", strconv.Itoa(m.sampleRate),
		"-ac", strconv.Itoa(m.channels),
		"-c:a", "pcm_s16le",
		output,
	}
}

// trackFilters aligns one track to the render timeline: tempo, trim to the
// track's active span, gain, then delay from the render's first frame.
func trackFilters(track surface.AudioTrack, req MixRequest) []string {
	fps := req.FPS
	filters := make([]string, 0, 6)

	rate := track.PlaybackRate
	if rate <= 0 {
		rate = 1
	}
	if rate != 1 {
		filters = append(filters, atempoChain(rate)...)
	}

	offsetFrames := track.StartFrame - req.FrameStart
	if offsetFrames < 0 {
		// Track began before the rendered range; skip the part already played.
		filters = append(filters, fmt.Sprintf("atrim=start=%s", formatSeconds(float64(-offsetFrames)/fps)), "asetpts=PTS-STARTPTS")
	}
	if track.EndFrame != nil {
		span := *track.EndFrame - max(track.StartFrame, req.FrameStart)
		if span > 0 {
			filters = append(filters, fmt.Sprintf("atrim=duration=%s", formatSeconds(float64(span)/fps)))
		}
	}

	volume := track.Volume
	if volume < 0 {
		volume = 0
	}
	filters = append(filters, "volume="+strconv.FormatFloat(volume, 'f', -1, 64))

	if offsetFrames > 0 {
		delayMs := int64(math.Round(float64(offsetFrames) / fps * 1000))
		filters = append(filters, fmt.Sprintf("adelay=%d:all=1", delayMs))
	}
	return filters
}

// atempoChain splits rate into factors within atempo's supported [0.5, 2]
// band.
func atempoChain(rate float64) []string {
	var filters []string
	for rate > 2 {
		filters = append(filters, "atempo=2")
		rate /= 2
	}
	for rate < 0.5 {
		filters = append(filters, "atempo=0.5")
		rate /= 0.5
	}
	return append(filters, "atempo="+strconv.FormatFloat(rate, 'f', -1, 64))
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(math.Round(seconds*1e6)/1e6, 'f', -1, 64)
}
