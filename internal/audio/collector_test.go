package audio_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reel/internal/audio"
	"reel/internal/reelerr"
	"reel/internal/surface"
)

func TestCollectMaterializesAndDropsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/music.mp3" {
			_, _ = w.Write([]byte("ID3-remote"))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	assets := t.TempDir()
	if err := os.WriteFile(filepath.Join(assets, "voice.wav"), []byte("RIFF-local"), 0o644); err != nil {
		t.Fatal(err)
	}

	tracks := []surface.AudioTrack{
		{Src: server.URL + "/music.mp3", Volume: 1},
		{Src: server.URL + "/missing.mp3", Volume: 1},
		{Src: "voice.wav", Volume: 0.5, StartFrame: 15},
		{Src: "absent.wav", Volume: 1},
		{Src: server.URL + "/music.mp3", Muted: true},
		{Src: "  "},
	}

	collector := audio.NewCollector(nil, audio.WithBaseDir(assets), audio.WithFetchTimeout(5*time.Second))
	dir := filepath.Join(t.TempDir(), "audio")
	sources, dropped, err := collector.Collect(context.Background(), tracks, dir)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(dropped) != 2 {
		t.Fatalf("expected 2 dropped tracks, got %d: %+v", len(dropped), dropped)
	}
	if dropped[0].Track.Src != server.URL+"/missing.mp3" || !errors.Is(dropped[0].Err, reelerr.ErrAudioFetch) {
		t.Fatalf("unexpected first drop %+v", dropped[0])
	}
	if dropped[1].Track.Src != "absent.wav" || !errors.Is(dropped[1].Err, reelerr.ErrAudioNotFound) {
		t.Fatalf("unexpected second drop %+v", dropped[1])
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 materialized sources, got %d: %+v", len(sources), sources)
	}
	remote, err := os.ReadFile(sources[0].Path)
	if err != nil || string(remote) != "ID3-remote" {
		t.Fatalf("unexpected remote copy %q err=%v", remote, err)
	}
	if filepath.Ext(sources[0].Path) != ".mp3" {
		t.Fatalf("expected extension preserved, got %q", sources[0].Path)
	}
	local, err := os.ReadFile(sources[1].Path)
	if err != nil || string(local) != "RIFF-local" {
		t.Fatalf("unexpected local copy %q err=%v", local, err)
	}
	if sources[1].Track.StartFrame != 15 {
		t.Fatalf("track metadata lost: %+v", sources[1].Track)
	}
}

func TestMaterializeErrorKinds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	collector := audio.NewCollector(nil)
	dir := t.TempDir()
	_, err := collector.Materialize(context.Background(), surface.AudioTrack{Src: server.URL + "/a.mp3"}, dir, 0)
	if !errors.Is(err, reelerr.ErrAudioFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	_, err = collector.Materialize(context.Background(), surface.AudioTrack{Src: filepath.Join(dir, "nope.wav")}, dir, 1)
	if !errors.Is(err, reelerr.ErrAudioNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestCollectWithNoActiveTracks(t *testing.T) {
	sources, dropped, err := audio.NewCollector(nil).Collect(context.Background(), []surface.AudioTrack{{Src: "x.mp3", Muted: true}}, t.TempDir())
	if err != nil || len(sources) != 0 || len(dropped) != 0 {
		t.Fatalf("expected no sources, got %v dropped=%v err=%v", sources, dropped, err)
	}
}
