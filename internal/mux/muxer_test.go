package mux_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reel/internal/codec"
	"reel/internal/mux"
)

func TestArgsCopyVideoAndTrimToShortest(t *testing.T) {
	spec, _ := codec.Lookup("h264")
	args := mux.Args(mux.Request{VideoPath: "v.mp4", AudioPath: "a.wav", Codec: spec, Language: "en"}, "out.mp4")
	joined := strings.Join(args, " ")
	for _, want := range []string{"-c:v copy", "-c:a aac", "-map 0:v:0", "-map 1:a:0", "language=eng", "-shortest out.mp4"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in %q", want, joined)
		}
	}
}

func TestISO3(t *testing.T) {
	cases := map[string]string{"en": "eng", "fr": "fra", "pt-BR": "por", "": "", "not a tag!": ""}
	for in, want := range cases {
		if got := mux.ISO3(in); got != want {
			t.Fatalf("ISO3(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMuxRenamesOnSuccess(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "video.webm")
	audio := filepath.Join(dir, "audio.wav")
	for _, p := range []string{video, audio} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	output := filepath.Join(dir, "final.webm")
	spec, _ := codec.Lookup("vp9")

	m := mux.NewMuxer("ffmpeg", nil)
	m.WithCommandRunner(func(_ context.Context, _ string, args ...string) error {
		return os.WriteFile(args[len(args)-1], []byte("muxed"), 0o644)
	})
	if err := m.Mux(context.Background(), mux.Request{VideoPath: video, AudioPath: audio, Codec: spec, OutputPath: output}); err != nil {
		t.Fatalf("Mux: %v", err)
	}
	data, err := os.ReadFile(output)
	if err != nil || string(data) != "muxed" {
		t.Fatalf("unexpected output %q err=%v", data, err)
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".mux-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestMuxFailureRemovesTemp(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "video.mp4")
	audio := filepath.Join(dir, "audio.wav")
	for _, p := range []string{video, audio} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	spec, _ := codec.Lookup("h264")
	boom := errors.New("boom")
	m := mux.NewMuxer("ffmpeg", nil)
	m.WithCommandRunner(func(_ context.Context, _ string, args ...string) error {
		_ = os.WriteFile(args[len(args)-1], []byte("partial"), 0o644)
		return boom
	})
	output := filepath.Join(dir, "final.mp4")
	if err := m.Mux(context.Background(), mux.Request{VideoPath: video, AudioPath: audio, Codec: spec, OutputPath: output}); !errors.Is(err, boom) {
		t.Fatalf("expected runner error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".mux-final.mp4")); !os.IsNotExist(err) {
		t.Fatal("expected temp output removed")
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Fatal("expected no final output")
	}
}

func TestMuxRejectsSilentCodecs(t *testing.T) {
	spec, _ := codec.Lookup("gif")
	err := mux.NewMuxer("ffmpeg", nil).Mux(context.Background(), mux.Request{VideoPath: "a", AudioPath: "b", Codec: spec, OutputPath: "c"})
	if err == nil {
		t.Fatal("expected error for codec without audio")
	}
}
