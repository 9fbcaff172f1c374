package reelerr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSurfaceTimeout    = errors.New("surface timeout")
	ErrEncodeFailed      = errors.New("encode failed")
	ErrAudioFetch        = errors.New("audio fetch failed")
	ErrAudioNotFound     = errors.New("audio source not found")
	ErrChunkFailed       = errors.New("chunk failed")
	ErrInvalidCodec      = errors.New("invalid codec")
	ErrInvalidFrameRange = errors.New("invalid frame range")
	ErrInvalidJob        = errors.New("invalid render job")
	ErrCanceled          = errors.New("render canceled")
	ErrExternalTool      = errors.New("external tool error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker. The marker should be one of the sentinels above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// EncodeFailedError reports a non-zero encoder exit together with the tail of
// its diagnostic stream.
type EncodeFailedError struct {
	Binary   string
	ExitCode int
	Tail     string
}

func (e *EncodeFailedError) Error() string {
	tail := strings.TrimSpace(e.Tail)
	if tail == "" {
		return fmt.Sprintf("%s exited with status %d", e.Binary, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Binary, e.ExitCode, tail)
}

func (e *EncodeFailedError) Is(target error) bool { return target == ErrEncodeFailed }

// ChunkFailedError identifies the parallel chunk whose capture loop failed.
type ChunkFailedError struct {
	Chunk      int
	FrameStart int
	FrameEnd   int
	Err        error
}

func (e *ChunkFailedError) Error() string {
	return fmt.Sprintf("chunk %d (frames %d-%d) failed: %v", e.Chunk, e.FrameStart, e.FrameEnd, e.Err)
}

func (e *ChunkFailedError) Unwrap() error { return e.Err }

func (e *ChunkFailedError) Is(target error) bool { return target == ErrChunkFailed }

// Kind returns a stable classification string for err. It is used for the
// history status column, HTTP status mapping, and structured logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrInvalidCodec), errors.Is(err, ErrInvalidFrameRange), errors.Is(err, ErrInvalidJob):
		return "validation"
	case errors.Is(err, ErrChunkFailed):
		return "chunk"
	case errors.Is(err, ErrSurfaceTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrEncodeFailed):
		return "encode"
	case errors.Is(err, ErrAudioFetch), errors.Is(err, ErrAudioNotFound):
		return "audio"
	default:
		return "internal"
	}
}

// IsValidation reports whether err was produced by input validation and
// therefore happened before any resource acquisition.
func IsValidation(err error) bool {
	return Kind(err) == "validation"
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "render failure"
	}
	return strings.Join(parts, ": ")
}
