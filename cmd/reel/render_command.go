package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reel/internal/codec"
	"reel/internal/job"
	"reel/internal/logging"
	"reel/internal/progress"
)

type renderFlags struct {
	jobFile     string
	id          string
	width       int
	height      int
	fps         float64
	start       int
	end         int
	codec       string
	crf         int
	bitrate     string
	scale       float64
	muted       bool
	props       string
	concurrency int
	imageFormat string
	jpegQuality int
	pixelFormat string
	everyNth    int
	gifLoop     int
	ndjson      bool
}

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var flags renderFlags

	cmd := &cobra.Command{
		Use:   "render [composition-id]",
		Short: "Render a composition in the foreground",
		Long: "Render a composition to a video, GIF or image sequence.\n\n" +
			"The request is read from --job (a JSON file, or - for stdin) and then\n" +
			"overridden by any flags given. Progress is drawn as a bar on a terminal\n" +
			"and written as NDJSON events otherwise.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := buildJob(cmd, flags, args)
			if err != nil {
				return err
			}

			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			claim, err := ctx.claimHistory(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer claim.Close()

			renderer, err := ctx.newRenderer(cmd.Context(), logger, claim.store)
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			var sink progress.Sink
			var bar *barSink
			var events *progress.Writer
			if flags.ndjson || !isTerminal(stdout) {
				events = progress.NewWriter(stdout)
				sink = events
			} else {
				bar = newBarSink(cmd.ErrOrStderr())
				sink = bar
			}

			result, err := renderer.Render(cmd.Context(), flags.id, j, sink)
			if events != nil && events.Err() != nil {
				logger.Warn("progress stream write failed", logging.Error(events.Err()))
			}
			if err != nil {
				return err
			}
			if bar != nil {
				fmt.Fprintf(stdout, "Rendered %s (%d frames, %s)\n", result.OutputPath, result.Frames, result.Elapsed.Round(time.Millisecond))
				if result.Published != nil {
					fmt.Fprintf(stdout, "Published %s\n", result.Published.String())
				}
			}
			return nil
		},
	}

	bindRenderFlags(cmd, &flags)
	return cmd
}

func bindRenderFlags(cmd *cobra.Command, flags *renderFlags) {
	f := cmd.Flags()
	f.StringVarP(&flags.jobFile, "job", "j", "", "Render request JSON file (- reads stdin)")
	f.StringVar(&flags.id, "id", "", "Render id (defaults to a new UUID)")
	f.IntVar(&flags.width, "width", 0, "Composition width in pixels")
	f.IntVar(&flags.height, "height", 0, "Composition height in pixels")
	f.Float64Var(&flags.fps, "fps", 0, "Frames per second")
	f.IntVar(&flags.start, "start", 0, "First frame (inclusive)")
	f.IntVar(&flags.end, "end", 0, "Last frame (inclusive)")
	f.StringVar(&flags.codec, "codec", "", "Output codec (see reel codecs)")
	f.IntVar(&flags.crf, "crf", 0, "Constant rate factor")
	f.StringVar(&flags.bitrate, "bitrate", "", "Target video bitrate, e.g. 8M")
	f.Float64Var(&flags.scale, "scale", 0, "Device scale factor")
	f.BoolVar(&flags.muted, "muted", false, "Render without audio")
	f.StringVar(&flags.props, "props", "", "Input props as a JSON object")
	f.IntVar(&flags.concurrency, "concurrency", 0, "Number of parallel capture surfaces")
	f.StringVar(&flags.imageFormat, "image-format", "", "Frame capture format (png or jpeg)")
	f.IntVar(&flags.jpegQuality, "jpeg-quality", 0, "JPEG capture quality (0-100)")
	f.StringVar(&flags.pixelFormat, "pixel-format", "", "Output pixel format override")
	f.IntVar(&flags.everyNth, "every-nth-frame", 0, "Keep every nth frame (gif only)")
	f.IntVar(&flags.gifLoop, "gif-loop", 0, "GIF loop count (0 forever, -1 once)")
	f.BoolVar(&flags.ndjson, "ndjson", false, "Write NDJSON progress events even on a terminal")
}

// buildJob reads the optional job file and applies every flag the user set
// on top of it.
func buildJob(cmd *cobra.Command, flags renderFlags, args []string) (job.Job, error) {
	var j job.Job
	if path := strings.TrimSpace(flags.jobFile); path != "" {
		loaded, err := readJobFile(cmd.InOrStdin(), path)
		if err != nil {
			return job.Job{}, err
		}
		j = loaded
	}
	if len(args) == 1 {
		j.CompositionID = args[0]
	}

	set := cmd.Flags().Changed
	if set("width") {
		j.Width = flags.width
	}
	if set("height") {
		j.Height = flags.height
	}
	if set("fps") {
		j.FPS = flags.fps
	}
	if set("start") {
		j.FrameStart = flags.start
	}
	if set("end") {
		j.FrameEnd = flags.end
	}
	if set("codec") {
		j.Codec = codec.ID(flags.codec)
	}
	if set("crf") {
		crf := flags.crf
		j.Quality.CRF = &crf
	}
	if set("bitrate") {
		j.Quality.Bitrate = flags.bitrate
	}
	if set("scale") {
		j.Scale = flags.scale
	}
	if set("muted") {
		j.Muted = flags.muted
	}
	if set("props") {
		props := json.RawMessage(strings.TrimSpace(flags.props))
		if !json.Valid(props) {
			return job.Job{}, fmt.Errorf("--props is not valid JSON")
		}
		j.InputProps = props
	}
	if set("concurrency") {
		j.Concurrency = flags.concurrency
	}
	if set("image-format") {
		j.ImageFormat = codec.ImageFormat(strings.ToLower(flags.imageFormat))
	}
	if set("jpeg-quality") {
		j.JPEGQuality = flags.jpegQuality
	}
	if set("pixel-format") {
		j.PixelFormat = flags.pixelFormat
	}
	if set("every-nth-frame") {
		j.EveryNthFrame = flags.everyNth
	}
	if set("gif-loop") {
		loop := flags.gifLoop
		j.GIFLoop = &loop
	}
	return j, nil
}

func readJobFile(stdin io.Reader, path string) (job.Job, error) {
	var r io.Reader = stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return job.Job{}, fmt.Errorf("open job file: %w", err)
		}
		defer file.Close()
		r = file
	}
	var j job.Job
	if err := json.NewDecoder(r).Decode(&j); err != nil {
		return job.Job{}, fmt.Errorf("parse job file: %w", err)
	}
	return j, nil
}
