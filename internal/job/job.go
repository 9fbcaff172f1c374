package job

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"reel/internal/codec"
	"reel/internal/reelerr"
)

// Quality selects either a constant-quality factor or an explicit bitrate.
// At most one may be set; when neither is set the codec default CRF applies.
type Quality struct {
	CRF     *int   `json:"crf,omitempty"`
	Bitrate string `json:"bitrate,omitempty"`
}

// Job is the immutable description of one render invocation.
type Job struct {
	CompositionID string          `json:"composition_id"`
	Width         int             `json:"width"`
	Height        int             `json:"height"`
	FPS           float64         `json:"fps"`
	FrameStart    int             `json:"frame_start"`
	FrameEnd      int             `json:"frame_end"`
	Codec         codec.ID        `json:"codec"`
	Quality       Quality         `json:"quality"`
	Scale         float64         `json:"scale,omitempty"`
	Muted         bool            `json:"muted,omitempty"`
	InputProps    json.RawMessage `json:"input_props,omitempty"`
	Concurrency   int             `json:"concurrency,omitempty"`

	ImageFormat   codec.ImageFormat `json:"image_format,omitempty"`
	JPEGQuality   int               `json:"jpeg_quality,omitempty"`
	PixelFormat   string            `json:"pixel_format,omitempty"`
	EveryNthFrame int               `json:"every_nth_frame,omitempty"`
	// GIFLoop is passed to ffmpeg -loop: 0 loops forever, -1 plays once and
	// N > 0 repeats N extra times. Nil means loop forever.
	GIFLoop *int `json:"gif_loop,omitempty"`
}

// Defaults supplies configuration-level fallbacks for fields a request may omit.
type Defaults struct {
	Codec       codec.ID
	Concurrency int
	ImageFormat codec.ImageFormat
	JPEGQuality int
	GIFLoop     int
}

// WithDefaults returns a copy of j with empty optional fields populated.
func (j Job) WithDefaults(d Defaults) Job {
	out := j
	if strings.TrimSpace(string(out.Codec)) == "" {
		out.Codec = d.Codec
	}
	out.Codec = codec.ID(strings.ToLower(strings.TrimSpace(string(out.Codec))))
	if out.Scale == 0 {
		out.Scale = 1
	}
	if out.Concurrency == 0 {
		out.Concurrency = d.Concurrency
	}
	if out.Concurrency == 0 {
		out.Concurrency = 1
	}
	if out.ImageFormat == "" {
		out.ImageFormat = d.ImageFormat
	}
	if out.ImageFormat == "" {
		out.ImageFormat = codec.ImagePNG
	}
	if out.JPEGQuality == 0 {
		out.JPEGQuality = d.JPEGQuality
	}
	if out.JPEGQuality == 0 {
		out.JPEGQuality = 80
	}
	if out.EveryNthFrame == 0 {
		out.EveryNthFrame = 1
	}
	if out.GIFLoop == nil {
		loop := d.GIFLoop
		out.GIFLoop = &loop
	}
	if len(out.InputProps) > 0 {
		out.InputProps = append(json.RawMessage(nil), out.InputProps...)
	}
	return out
}

// Validate checks the job without touching any external resource.
func (j Job) Validate() error {
	spec, err := codec.Lookup(string(j.Codec))
	if err != nil {
		return err
	}
	if j.FrameStart < 0 {
		return invalidRange("frame_start %d must not be negative", j.FrameStart)
	}
	if j.FrameEnd < j.FrameStart {
		return invalidRange("frame_end %d precedes frame_start %d", j.FrameEnd, j.FrameStart)
	}

	id := strings.TrimSpace(j.CompositionID)
	switch {
	case id == "":
		return invalidJob("composition_id is required")
	case strings.ContainsAny(id, `/\`) || id == "." || id == "..":
		return invalidJob("composition_id %q must not contain path separators", id)
	case j.Width <= 0 || j.Height <= 0:
		return invalidJob("width and height must be positive (got %dx%d)", j.Width, j.Height)
	case j.FPS <= 0 || math.IsNaN(j.FPS) || math.IsInf(j.FPS, 0):
		return invalidJob("fps must be positive")
	case j.Scale <= 0:
		return invalidJob("scale must be positive")
	case j.Concurrency < 1:
		return invalidJob("concurrency must be at least 1")
	case j.EveryNthFrame < 1:
		return invalidJob("every_nth_frame must be at least 1")
	case j.EveryNthFrame > 1 && spec.ID != codec.GIF:
		return invalidJob("every_nth_frame is only supported for gif output")
	case j.JPEGQuality < 0 || j.JPEGQuality > 100:
		return invalidJob("jpeg_quality must be within 0-100")
	}
	if _, err := codec.ParseImageFormat(string(j.ImageFormat)); err != nil {
		return invalidJob("%v", err)
	}

	if j.Quality.CRF != nil && strings.TrimSpace(j.Quality.Bitrate) != "" {
		return invalidJob("quality accepts either crf or bitrate, not both")
	}
	if j.Quality.CRF != nil {
		if err := spec.ValidateCRF(*j.Quality.CRF); err != nil {
			return invalidJob("%v", err)
		}
	}
	if bitrate := strings.TrimSpace(j.Quality.Bitrate); bitrate != "" {
		if !spec.Bitrate {
			return invalidJob("codec %s does not accept a bitrate", spec.ID)
		}
		if !validBitrate(bitrate) {
			return invalidJob("bitrate %q is not a valid ffmpeg rate (e.g. 4M, 800k)", bitrate)
		}
	}
	return nil
}

// Spec returns the codec spec for the job. It assumes Validate succeeded.
func (j Job) Spec() codec.Spec {
	spec, _ := codec.Lookup(string(j.Codec))
	return spec
}

// TotalFrames is the number of frames in the inclusive range.
func (j Job) TotalFrames() int {
	return j.FrameEnd - j.FrameStart + 1
}

// Frames lists the frame indices that are captured, honouring EveryNthFrame.
func (j Job) Frames() []int {
	step := j.EveryNthFrame
	if step < 1 {
		step = 1
	}
	frames := make([]int, 0, j.TotalFrames()/step+1)
	for f := j.FrameStart; f <= j.FrameEnd; f += step {
		frames = append(frames, f)
	}
	return frames
}

// OutputFPS is the frame rate declared to the encoder.
func (j Job) OutputFPS() float64 {
	if j.EveryNthFrame > 1 {
		return j.FPS / float64(j.EveryNthFrame)
	}
	return j.FPS
}

// Duration is the playback length of the rendered range.
func (j Job) Duration() time.Duration {
	seconds := float64(j.TotalFrames()) / j.FPS
	return time.Duration(math.Round(seconds * float64(time.Second)))
}

// DurationSeconds is Duration expressed in seconds.
func (j Job) DurationSeconds() float64 {
	return float64(j.TotalFrames()) / j.FPS
}

// PixelWidth is the captured width after applying the scale factor.
func (j Job) PixelWidth() int {
	return int(math.Round(float64(j.Width) * j.Scale))
}

// PixelHeight is the captured height after applying the scale factor.
func (j Job) PixelHeight() int {
	return int(math.Round(float64(j.Height) * j.Scale))
}

// CRF returns the effective constant-quality factor, or false when the job
// uses an explicit bitrate or the codec has no CRF control.
func (j Job) CRF() (int, bool) {
	if strings.TrimSpace(j.Quality.Bitrate) != "" {
		return 0, false
	}
	if j.Quality.CRF != nil {
		return *j.Quality.CRF, true
	}
	spec := j.Spec()
	if !spec.SupportsCRF() {
		return 0, false
	}
	return spec.DefaultCRF, true
}

// Loop returns the effective GIF loop count.
func (j Job) Loop() int {
	if j.GIFLoop == nil {
		return 0
	}
	return *j.GIFLoop
}

// OutputName returns <compositionId>-<timestamp>.<ext>. Image sequences use
// the same stem without an extension because they produce a directory.
func (j Job) OutputName(now time.Time) string {
	stem := fmt.Sprintf("%s-%s", strings.TrimSpace(j.CompositionID), now.UTC().Format("20060102T150405Z"))
	spec := j.Spec()
	if spec.Kind == codec.KindSequence {
		return stem
	}
	return stem + "." + spec.Extension
}

// PadWidth is the zero-padding width for frame file names: the decimal digit
// count of the final frame index.
func (j Job) PadWidth() int {
	return len(strconv.Itoa(j.FrameEnd))
}

// FrameFileName returns frame-<padded index>.<ext>.
func FrameFileName(frame, pad int, ext string) string {
	return fmt.Sprintf("frame-%0*d.%s", pad, frame, ext)
}

func validBitrate(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return false
	}
	last := trimmed[len(trimmed)-1]
	number := trimmed
	if last == 'k' || last == 'K' || last == 'm' || last == 'M' {
		number = trimmed[:len(trimmed)-1]
	}
	parsed, err := strconv.ParseFloat(number, 64)
	return err == nil && parsed > 0
}

func invalidRange(format string, args ...any) error {
	return reelerr.Wrap(reelerr.ErrInvalidFrameRange, "job", "validate", fmt.Sprintf(format, args...), nil)
}

func invalidJob(format string, args ...any) error {
	return reelerr.Wrap(reelerr.ErrInvalidJob, "job", "validate", fmt.Sprintf(format, args...), nil)
}
