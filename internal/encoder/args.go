package encoder

import (
	"strconv"
	"strings"

	"reel/internal/codec"
)

// Settings describes one piped video encode.
type Settings struct {
	Codec       codec.Spec
	FPS         float64
	InputFormat codec.ImageFormat
	// CRF applies when UseCRF is set; otherwise Bitrate is used if present.
	CRF         int
	UseCRF      bool
	Bitrate     string
	Preset      string
	PixelFormat string
	Output      string
}

// PipeArgs builds the ffmpeg argument list that reads encoded images from
// stdin and writes a silent video to s.Output.
func PipeArgs(s Settings) []string {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "warning",
		"-f", "image2pipe",
		"-framerate", formatFPS(s.FPS),
		"-c:v", s.InputFormat.PipeDecoder(),
		"-i", "-",
	}
	args = append(args, codecArgs(s)...)
	args = append(args, "-an", s.Output)
	return args
}

func codecArgs(s Settings) []string {
	spec := s.Codec
	args := []string{"-c:v", spec.Encoder}

	pixFmt := strings.TrimSpace(s.PixelFormat)
	if pixFmt == "" {
		pixFmt = spec.PixelFormat
	}

	switch spec.ID {
	case codec.H264, codec.H265:
		// yuv420p needs even dimensions.
		args = append(args, "-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2")
		if spec.Preset && s.Preset != "" {
			args = append(args, "-preset", s.Preset)
		}
		if s.UseCRF {
			args = append(args, "-crf", strconv.Itoa(s.CRF))
		} else if s.Bitrate != "" {
			args = append(args, "-b:v", s.Bitrate)
		}
		if spec.ID == codec.H265 {
			args = append(args, "-tag:v", "hvc1")
		}
		args = append(args, "-movflags", "+faststart")
	case codec.VP8, codec.VP9:
		if s.UseCRF {
			args = append(args, "-crf", strconv.Itoa(s.CRF), "-b:v", "0")
		} else if s.Bitrate != "" {
			args = append(args, "-b:v", s.Bitrate)
		}
		args = append(args, "-deadline", "good", "-row-mt", "1")
	case codec.ProRes:
		args = append(args, "-profile:v", "3", "-vendor", "apl0")
	case codec.Lossless:
		args = append(args, "-level", "3", "-g", "1")
	}
	if pixFmt != "" {
		args = append(args, "-pix_fmt", pixFmt)
	}
	return args
}

func formatFPS(fps float64) string {
	return strconv.FormatFloat(fps, 'f', -1, 64)
}
