package logging_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reel/internal/config"
	"reel/internal/logging"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from test")

	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "reel.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Fatalf("expected message in log file, got %q", data)
	}
}

func TestConsoleLoggerHoistsComponentAndRenderID(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := logging.WithRenderID(context.Background(), "0123456789abcdef")
	ctx = logging.WithChunk(ctx, 2)
	logger = logging.WithContext(ctx, logging.NewComponentLogger(logger, "encoder"))
	logger.Info("pipe started", logging.Int("frames", 30))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "[01234567] encoder: pipe started") {
		t.Fatalf("expected prefix with short render id and component, got %q", line)
	}
	if !strings.Contains(line, "chunk=2") || !strings.Contains(line, "frames=30") {
		t.Fatalf("expected attributes in line, got %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no source at info level, got %q", line)
	}
}

func TestJSONLoggerUsesStableKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("slow frame", logging.Int("frame", 7))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["ts"] == nil || entry["level"] != "warn" || entry["msg"] != "slow frame" {
		t.Fatalf("unexpected json entry: %v", entry)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestWarnWithContextFillsDefaults(t *testing.T) {
	var captured []slog.Attr
	handler := &captureHandler{records: func(r slog.Record) {
		r.Attrs(func(a slog.Attr) bool {
			captured = append(captured, a)
			return true
		})
	}}
	logging.WarnWithContext(slog.New(handler), "track dropped", "audio_fetch_failed", logging.String(logging.FieldImpact, "track missing"))

	keys := map[string]string{}
	for _, a := range captured {
		keys[a.Key] = a.Value.String()
	}
	if keys[logging.FieldEventType] != "audio_fetch_failed" {
		t.Fatalf("expected event type, got %v", keys)
	}
	if keys[logging.FieldImpact] != "track missing" {
		t.Fatalf("expected caller impact preserved, got %v", keys)
	}
	if keys[logging.FieldErrorHint] == "" {
		t.Fatalf("expected default error hint, got %v", keys)
	}
}

type captureHandler struct {
	records func(slog.Record)
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.records(r)
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *captureHandler) WithGroup(string) slog.Handler { return h }
