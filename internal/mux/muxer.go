package mux

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"

	"reel/internal/codec"
	"reel/internal/encoder"
	"reel/internal/logging"
	"reel/internal/reelerr"
)

// Request describes one mux.
type Request struct {
	VideoPath string
	AudioPath string
	Codec     codec.Spec
	// Language is a BCP 47 tag written as the audio stream's ISO 639-2 code.
	Language   string
	OutputPath string
}

// Muxer joins video and audio with ffmpeg.
type Muxer struct {
	binary string
	run    encoder.Runner
	logger *slog.Logger
}

// NewMuxer constructs a muxer.
func NewMuxer(binary string, logger *slog.Logger) *Muxer {
	return &Muxer{
		binary: binary,
		run:    encoder.Run,
		logger: logging.NewComponentLogger(logger, "muxer"),
	}
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (m *Muxer) WithCommandRunner(r encoder.Runner) {
	if m != nil && r != nil {
		m.run = r
	}
}

// Mux writes req.OutputPath. The output is produced under a temporary name in
// the same directory and renamed into place only on success.
func (m *Muxer) Mux(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.VideoPath) == "" || strings.TrimSpace(req.OutputPath) == "" {
		return fmt.Errorf("mux: video and output paths are required")
	}
	if !req.Codec.SupportsAudio() {
		return fmt.Errorf("mux: codec %s carries no audio", req.Codec.ID)
	}
	for _, p := range []string{req.VideoPath, req.AudioPath} {
		if _, err := os.Stat(p); err != nil {
			return reelerr.Wrap(reelerr.ErrExternalTool, "mux", "stat input", p, err)
		}
	}

	tmpPath := filepath.Join(filepath.Dir(req.OutputPath), ".mux-"+filepath.Base(req.OutputPath))
	args := Args(req, tmpPath)

	logging.WithContext(ctx, m.logger).Debug("muxing",
		logging.String("video", req.VideoPath),
		logging.String("audio", req.AudioPath),
		logging.String("output", req.OutputPath),
	)
	if err := m.run(ctx, m.binary, args...); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if _, err := os.Stat(tmpPath); err != nil {
		return reelerr.Wrap(reelerr.ErrEncodeFailed, "mux", "verify", "muxer produced no output", err)
	}
	if err := os.Rename(tmpPath, req.OutputPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("mux: move output into place: %w", err)
	}
	return nil
}

// Args builds the ffmpeg arguments writing to output.
func Args(req Request, output string) []string {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "warning",
		"-i", req.VideoPath,
		"-i", req.AudioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", req.Codec.AudioCodec,
	}
	if req.Codec.AudioCodec == "aac" || req.Codec.AudioCodec == "libopus" {
		args = append(args, "-b:a", "192k")
	}
	if lang := ISO3(req.Language); lang != "" {
		args = append(args, "-metadata:s:a:0", "language="+lang)
	}
	if req.Codec.Extension == "mp4" || req.Codec.Extension == "mov" {
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, "-shortest", output)
}

// ISO3 maps a language tag such as "en" or "pt-BR" to its ISO 639-2 code.
// Unknown tags return "".
func ISO3(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return ""
	}
	base, confidence := parsed.Base()
	if confidence == language.No {
		return ""
	}
	return base.ISO3()
}
