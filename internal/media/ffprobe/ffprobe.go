package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"reel/internal/reelerr"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Duration   string `json:"duration"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	FrameRate  string `json:"r_frame_rate"`
	NBFrames   string `json:"nb_frames"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// Inspector runs ffprobe and returns its raw JSON output. Tests swap it out.
type Inspector func(ctx context.Context, binary string, args ...string) ([]byte, error)

func defaultInspector(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return output, nil
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	return InspectWith(ctx, defaultInspector, binary, path)
}

// InspectWith is Inspect with an explicit runner.
func InspectWith(ctx context.Context, run Inspector, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}
	if run == nil {
		run = defaultInspector
	}

	output, err := run(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, reelerr.Wrap(reelerr.ErrCanceled, "ffprobe", "inspect", path, ctx.Err())
		}
		return Result{}, reelerr.Wrap(reelerr.ErrExternalTool, "ffprobe", "inspect", path, err)
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, reelerr.Wrap(reelerr.ErrExternalTool, "ffprobe", "parse", path, err)
	}
	return result, nil
}

// VideoStreamCount returns the number of video streams discovered.
func (r Result) VideoStreamCount() int {
	return r.countType("video")
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	return r.countType("audio")
}

func (r Result) countType(kind string) int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, kind) {
			count++
		}
	}
	return count
}

// DurationSeconds returns the container duration in seconds, or 0 when unavailable.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

// SizeBytes returns the reported container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

// VideoCodec returns the codec name of the first video stream.
func (r Result) VideoCodec() string {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream.CodecName
		}
	}
	return ""
}

// Expectation describes what a finished render should contain.
type Expectation struct {
	Audio bool
	// Duration is the expected length in seconds; zero skips the check.
	Duration float64
	// Tolerance is the accepted absolute drift in seconds.
	Tolerance float64
}

// Verify checks r against want. Missing streams are reported as encode
// failures since the encoder or muxer produced an unusable artifact.
func Verify(r Result, want Expectation) error {
	if r.VideoStreamCount() == 0 {
		return reelerr.Wrap(reelerr.ErrEncodeFailed, "ffprobe", "verify", "output has no video stream", nil)
	}
	if want.Audio && r.AudioStreamCount() == 0 {
		return reelerr.Wrap(reelerr.ErrEncodeFailed, "ffprobe", "verify", "output has no audio stream", nil)
	}
	if want.Duration > 0 {
		got := r.DurationSeconds()
		if math.IsNaN(got) || got <= 0 {
			return nil
		}
		tolerance := want.Tolerance
		if tolerance <= 0 {
			tolerance = 0.5
		}
		if math.Abs(got-want.Duration) > tolerance {
			return reelerr.Wrap(reelerr.ErrEncodeFailed, "ffprobe", "verify",
				fmt.Sprintf("duration %.3fs differs from expected %.3fs", got, want.Duration), nil)
		}
	}
	return nil
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
