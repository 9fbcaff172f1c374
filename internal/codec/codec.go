package codec

import (
	"fmt"
	"sort"
	"strings"

	"reel/internal/reelerr"
)

// ID names an output codec as accepted by render requests.
type ID string

const (
	H264   ID = "h264"
	H265   ID = "h265"
	VP8    ID = "vp8"
	VP9    ID = "vp9"
	ProRes ID = "prores"
	GIF    ID = "gif"
	AV1    ID = "av1"
	PNG    ID = "png"
	JPEG   ID = "jpeg"

	// Lossless is the internal intermediate used by the palette and AV1
	// pipelines. It is not accepted in render requests.
	Lossless ID = "ffv1"
)

// Kind describes how the orchestrator produces a codec's artifact.
type Kind int

const (
	// KindVideo pipes frames into a single ffmpeg encode.
	KindVideo Kind = iota
	// KindPalette encodes a lossless intermediate and re-encodes it against a
	// generated palette.
	KindPalette
	// KindSequence writes every captured frame as an image file.
	KindSequence
	// KindAV1 encodes a lossless intermediate and hands it to drapto.
	KindAV1
)

// Spec captures the encoding contract for one codec.
type Spec struct {
	ID          ID
	Label       string
	Extension   string
	Encoder     string
	PixelFormat string
	Kind        Kind
	// AudioCodec is the ffmpeg audio encoder used when muxing. Empty means the
	// format carries no audio.
	AudioCodec string
	DefaultCRF int
	MinCRF     int
	MaxCRF     int
	// Bitrate reports whether an explicit video bitrate may be requested.
	Bitrate bool
	// Preset reports whether the encoder understands -preset.
	Preset bool
}

// SupportsCRF reports whether the codec accepts a constant-quality factor.
func (s Spec) SupportsCRF() bool {
	return s.MaxCRF > s.MinCRF
}

// SupportsAudio reports whether the container can carry a muxed audio stream.
func (s Spec) SupportsAudio() bool {
	return s.AudioCodec != ""
}

// ValidateCRF checks crf against the codec range.
func (s Spec) ValidateCRF(crf int) error {
	if !s.SupportsCRF() {
		return fmt.Errorf("codec %s does not accept a crf value", s.ID)
	}
	if crf < s.MinCRF || crf > s.MaxCRF {
		return fmt.Errorf("crf %d out of range for %s (%d-%d)", crf, s.ID, s.MinCRF, s.MaxCRF)
	}
	return nil
}

var registry = map[ID]Spec{
	H264: {
		ID: H264, Label: "h.264", Extension: "mp4", Encoder: "libx264", PixelFormat: "yuv420p",
		Kind: KindVideo, AudioCodec: "aac", DefaultCRF: 18, MinCRF: 1, MaxCRF: 51, Bitrate: true, Preset: true,
	},
	H265: {
		ID: H265, Label: "h.265", Extension: "mp4", Encoder: "libx265", PixelFormat: "yuv420p",
		Kind: KindVideo, AudioCodec: "aac", DefaultCRF: 23, MinCRF: 0, MaxCRF: 51, Bitrate: true, Preset: true,
	},
	VP8: {
		ID: VP8, Label: "vp8", Extension: "webm", Encoder: "libvpx", PixelFormat: "yuv420p",
		Kind: KindVideo, AudioCodec: "libopus", DefaultCRF: 9, MinCRF: 4, MaxCRF: 63, Bitrate: true,
	},
	VP9: {
		ID: VP9, Label: "vp9", Extension: "webm", Encoder: "libvpx-vp9", PixelFormat: "yuv420p",
		Kind: KindVideo, AudioCodec: "libopus", DefaultCRF: 28, MinCRF: 0, MaxCRF: 63, Bitrate: true,
	},
	ProRes: {
		ID: ProRes, Label: "prores", Extension: "mov", Encoder: "prores_ks", PixelFormat: "yuv422p10le",
		Kind: KindVideo, AudioCodec: "pcm_s16le",
	},
	GIF: {
		ID: GIF, Label: "gif", Extension: "gif", Encoder: "gif", PixelFormat: "rgb8",
		Kind: KindPalette,
	},
	AV1: {
		ID: AV1, Label: "av1", Extension: "mkv", Encoder: "libsvtav1", PixelFormat: "yuv420p10le",
		Kind: KindAV1, AudioCodec: "flac",
	},
	PNG: {
		ID: PNG, Label: "png sequence", Extension: "png", Kind: KindSequence,
	},
	JPEG: {
		ID: JPEG, Label: "jpeg sequence", Extension: "jpeg", Kind: KindSequence,
	},
}

var lossless = Spec{
	ID: Lossless, Label: "ffv1", Extension: "mkv", Encoder: "ffv1", PixelFormat: "bgr0", Kind: KindVideo,
}

// Lookup resolves a codec identifier. Identifiers are case-insensitive.
func Lookup(id string) (Spec, error) {
	key := ID(strings.ToLower(strings.TrimSpace(id)))
	spec, ok := registry[key]
	if !ok {
		return Spec{}, reelerr.Wrap(reelerr.ErrInvalidCodec, "codec", "lookup", fmt.Sprintf("unknown codec %q", id), nil)
	}
	return spec, nil
}

// Intermediate returns the lossless spec used for two-pass pipelines.
func Intermediate() Spec {
	return lossless
}

// All returns every public codec ordered by identifier.
func All() []Spec {
	out := make([]Spec, 0, len(registry))
	for _, spec := range registry {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ImageFormat is the encoding used for captured frames.
type ImageFormat string

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"
)

// ParseImageFormat normalizes a capture format name. Empty input yields PNG.
func ParseImageFormat(value string) (ImageFormat, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "png":
		return ImagePNG, nil
	case "jpeg", "jpg":
		return ImageJPEG, nil
	default:
		return "", fmt.Errorf("unsupported image format %q", value)
	}
}

// Extension returns the file extension for captured frames.
func (f ImageFormat) Extension() string {
	if f == ImageJPEG {
		return "jpeg"
	}
	return "png"
}

// PipeDecoder returns the ffmpeg decoder that reads this format from an
// image2pipe stream.
func (f ImageFormat) PipeDecoder() string {
	if f == ImageJPEG {
		return "mjpeg"
	}
	return "png"
}
