package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"reel/internal/codec"
)

// EncoderStatus reports whether ffmpeg was built with a codec's encoder.
type EncoderStatus struct {
	Codec     codec.ID `json:"codec"`
	Encoder   string   `json:"encoder"`
	Available bool     `json:"available"`
}

// CheckEncoders asks ffmpeg for its encoder list and matches it against every
// codec that pipes through ffmpeg. Image sequences need no encoder and are
// omitted.
func CheckEncoders(ctx context.Context, ffmpegBinary string) ([]EncoderStatus, error) {
	binary := orDefault(ffmpegBinary, "ffmpeg")
	out, err := exec.CommandContext(ctx, binary, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil, fmt.Errorf("list ffmpeg encoders: %w", err)
	}
	available := parseEncoders(out)

	specs := append(codec.All(), codec.Intermediate())
	statuses := make([]EncoderStatus, 0, len(specs))
	for _, spec := range specs {
		if spec.Encoder == "" {
			continue
		}
		_, ok := available[spec.Encoder]
		statuses = append(statuses, EncoderStatus{Codec: spec.ID, Encoder: spec.Encoder, Available: ok})
	}
	return statuses, nil
}

// parseEncoders reads `ffmpeg -encoders` output. Encoder rows start with a
// six-character capability column followed by the encoder name; the legend
// above the separator line is skipped.
func parseEncoders(out []byte) map[string]struct{} {
	found := make(map[string]struct{})
	scanner := bufio.NewScanner(bytes.NewReader(out))
	listing := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !listing {
			listing = strings.HasPrefix(line, "------")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}
		found[fields[1]] = struct{}{}
	}
	return found
}
