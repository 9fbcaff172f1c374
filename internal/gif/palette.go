package gif

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"reel/internal/encoder"
	"reel/internal/logging"
	"reel/internal/reelerr"
)

const (
	maxColors = 256
	dither    = "sierra2_4a"
)

// Request describes one palette encode.
type Request struct {
	Intermediate string
	Output       string
	// Loop follows ffmpeg -loop: 0 forever, -1 once, N repeats.
	Loop int
	// WorkDir holds the generated palette. Defaults to the intermediate's directory.
	WorkDir string
}

// Pipeline runs the palette passes with ffmpeg.
type Pipeline struct {
	binary string
	run    encoder.Runner
	logger *slog.Logger
}

// NewPipeline constructs a Pipeline.
func NewPipeline(binary string, logger *slog.Logger) *Pipeline {
	return &Pipeline{binary: binary, run: encoder.Run, logger: logging.NewComponentLogger(logger, "gif")}
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (p *Pipeline) WithCommandRunner(r encoder.Runner) {
	if p != nil && r != nil {
		p.run = r
	}
}

// Encode generates the palette and writes req.Output. A failed final pass
// removes the partial GIF.
func (p *Pipeline) Encode(ctx context.Context, req Request) error {
	if _, err := os.Stat(req.Intermediate); err != nil {
		return reelerr.Wrap(reelerr.ErrEncodeFailed, "gif", "stat intermediate", req.Intermediate, err)
	}
	workDir := req.WorkDir
	if workDir == "" {
		workDir = filepath.Dir(req.Intermediate)
	}
	palette := filepath.Join(workDir, "palette.png")
	logger := logging.WithContext(ctx, p.logger)

	logger.Debug("generating palette", logging.String("palette", palette))
	if err := p.run(ctx, p.binary, PaletteArgs(req.Intermediate, palette)...); err != nil {
		return err
	}
	defer os.Remove(palette)

	logger.Debug("applying palette", logging.String("output", req.Output), logging.Int("loop", req.Loop))
	if err := p.run(ctx, p.binary, ApplyArgs(req.Intermediate, palette, req.Output, req.Loop)...); err != nil {
		_ = os.Remove(req.Output)
		return err
	}
	return nil
}

// PaletteArgs builds the palettegen pass.
func PaletteArgs(intermediate, palette string) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "warning",
		"-i", intermediate,
		"-vf", fmt.Sprintf("palettegen=max_colors=%d:stats_mode=full", maxColors),
		palette,
	}
}

// ApplyArgs builds the paletteuse pass.
func ApplyArgs(intermediate, palette, output string, loop int) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "warning",
		"-i", intermediate,
		"-i", palette,
		"-lavfi", "[0:v][1:v]paletteuse=dither=" + dither,
		"-loop", strconv.Itoa(loop),
		output,
	}
}
