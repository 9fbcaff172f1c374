package publish

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/testsupport"
)

func TestLocalFSPublishFile(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "intro-20261019T100000Z.mp4")
	if err := os.WriteFile(artifact, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	root := filepath.Join(dir, "published")

	receipt, err := NewLocalFS(root).Publish(context.Background(), artifact)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	want := filepath.Join(root, filepath.Base(artifact))
	if receipt.Location != want || receipt.Size != 3 || receipt.Provider != "localfs" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if receipt.Checksum == "" {
		t.Fatal("expected checksum for single file")
	}
	if receipt.String() != "localfs:"+want {
		t.Fatalf("unexpected receipt string %q", receipt.String())
	}
	if got, _ := os.ReadFile(want); string(got) != "abc" {
		t.Fatalf("unexpected published content %q", got)
	}
}

func TestLocalFSPublishSequence(t *testing.T) {
	dir := t.TempDir()
	seq := filepath.Join(dir, "intro-seq")
	if err := os.MkdirAll(seq, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"frame-0.png", "frame-1.png"} {
		if err := os.WriteFile(filepath.Join(seq, name), []byte("png"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	receipt, err := NewLocalFS(filepath.Join(dir, "pub")).Publish(context.Background(), seq)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if receipt.Size != 6 {
		t.Fatalf("unexpected size %d", receipt.Size)
	}
	if _, err := os.Stat(filepath.Join(receipt.Location, "frame-1.png")); err != nil {
		t.Fatalf("expected copied frame: %v", err)
	}
}

func TestLocalFSRequiresRoot(t *testing.T) {
	if _, err := NewLocalFS("").Publish(context.Background(), "/nope"); err == nil {
		t.Fatal("expected error without root")
	}
}

func TestNewSelectsProvider(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	pub, err := New(ctx, cfg, logging.NewNop())
	if err != nil || pub != nil {
		t.Fatalf("expected nil publisher for none, got %v %v", pub, err)
	}

	cfg.Publish.Provider = config.PublishLocalFS
	pub, err = New(ctx, cfg, logging.NewNop())
	if err != nil || pub == nil || pub.Provider() != "localfs" {
		t.Fatalf("expected localfs publisher, got %v %v", pub, err)
	}

	cfg.Publish.Provider = config.PublishGDrive
	if _, err := New(ctx, cfg, logging.NewNop()); err == nil {
		t.Fatal("expected gdrive without credentials to fail")
	}

	cfg.Publish.Provider = "s3"
	if _, err := New(ctx, cfg, logging.NewNop()); err == nil {
		t.Fatal("expected unknown provider to fail")
	}
}

func TestGDrivePublishUploadsFile(t *testing.T) {
	var requests atomic.Int32
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "file-123", "name": "intro.gif"})
	}))
	defer server.Close()

	srv, err := drive.NewService(context.Background(),
		option.WithHTTPClient(server.Client()),
		option.WithEndpoint(server.URL+"/"),
	)
	if err != nil {
		t.Fatalf("drive.NewService: %v", err)
	}

	artifact := filepath.Join(t.TempDir(), "intro.gif")
	if err := os.WriteFile(artifact, []byte("GIF89a"), 0o644); err != nil {
		t.Fatal(err)
	}
	receipt, err := NewGDrive(srv, "folder-1", logging.NewNop()).Publish(context.Background(), artifact)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if receipt.Location != "file-123" || receipt.Provider != "gdrive" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if requests.Load() != 1 {
		t.Fatalf("expected one upload request, got %d", requests.Load())
	}
	if !strings.Contains(body, "folder-1") || !strings.Contains(body, "GIF89a") {
		t.Fatalf("expected metadata and media in upload body, got %q", body)
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"a.mp4":  "video/mp4",
		"a.webm": "video/webm",
		"a.gif":  "image/gif",
		"a.mkv":  "video/x-matroska",
	}
	for path, want := range cases {
		if got := ContentType(path); got != want {
			t.Fatalf("ContentType(%s) = %q, want %q", path, got, want)
		}
	}
}
