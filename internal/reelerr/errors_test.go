package reelerr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestWrapKeepsMarkerAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ErrAudioFetch, "audio", "fetch", "status 404", cause)
	if !errors.Is(err, ErrAudioFetch) {
		t.Fatalf("expected marker to match, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to match, got %v", err)
	}
	if !strings.Contains(err.Error(), "audio: fetch: status 404") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := Wrap(nil, "", "", "", nil)
	if !errors.Is(err, ErrExternalTool) {
		t.Fatalf("expected default marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "render failure") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestTypedErrorsMatchMarkers(t *testing.T) {
	encodeErr := fmt.Errorf("finish: %w", &EncodeFailedError{Binary: "ffmpeg", ExitCode: 1, Tail: "Invalid argument"})
	if !errors.Is(encodeErr, ErrEncodeFailed) {
		t.Fatal("expected encode failure to match ErrEncodeFailed")
	}
	var typed *EncodeFailedError
	if !errors.As(encodeErr, &typed) || typed.Tail != "Invalid argument" {
		t.Fatalf("expected typed encode error, got %#v", typed)
	}

	inner := Wrap(ErrSurfaceTimeout, "surface", "ready", "", nil)
	chunkErr := &ChunkFailedError{Chunk: 2, FrameStart: 16, FrameEnd: 23, Err: inner}
	if !errors.Is(chunkErr, ErrChunkFailed) {
		t.Fatal("expected chunk failure marker")
	}
	if !errors.Is(chunkErr, ErrSurfaceTimeout) {
		t.Fatal("expected chunk failure to unwrap to its cause")
	}
}

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{context.Canceled, "canceled"},
		{Wrap(ErrInvalidCodec, "job", "validate", "", nil), "validation"},
		{Wrap(ErrInvalidFrameRange, "job", "validate", "", nil), "validation"},
		{Wrap(ErrSurfaceTimeout, "surface", "ready", "", nil), "timeout"},
		{&ChunkFailedError{Err: errors.New("x")}, "chunk"},
		{&EncodeFailedError{}, "encode"},
		{Wrap(ErrAudioNotFound, "audio", "copy", "", nil), "audio"},
		{errors.New("other"), "internal"},
	}
	for _, tc := range cases {
		if got := Kind(tc.err); got != tc.want {
			t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
