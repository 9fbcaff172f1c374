package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"reel/internal/codec"
	"reel/internal/history"
	"reel/internal/job"
	"reel/internal/progress"
	"reel/internal/reelerr"
	"reel/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse an existing file")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, target)
	if err != nil {
		t.Fatalf("validate sample: %v", err)
	}
	requireContains(t, out, "Configuration valid")
}

func TestCodecsListsRegistry(t *testing.T) {
	out, _, err := runCLI(t, []string{"codecs"}, "")
	if err != nil {
		t.Fatalf("codecs: %v", err)
	}
	for _, want := range []string{"h264", "libx264", "Image Sequence", "Palette", "libsvtav1", "libopus"} {
		requireContains(t, out, want)
	}
}

func TestDepsReportsBinaries(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"deps"}, env.configPath)
	if err != nil {
		t.Fatalf("deps: %v\n%s", err, out)
	}
	requireContains(t, out, "FFmpeg:")
	requireContains(t, out, "[OK]")
	// The stub ffmpeg lists no encoders.
	requireContains(t, out, "libx264")

	env.cfg.Encoder.FFprobeBinary = "clearly-not-installed-ffprobe"
	writeTestConfig(t, env.configPath, env.cfg)
	out, _, err = runCLI(t, []string{"deps", "--skip-encoders"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "FFprobe") {
		t.Fatalf("expected missing ffprobe error, got %v", err)
	}
	requireContains(t, out, "[ERROR]")
}

func TestHistoryListShowAndPrune(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenHistory(t, env.cfg)
	ctx := context.Background()

	j := job.Job{CompositionID: "intro", Width: 640, Height: 360, FPS: 30, FrameEnd: 29, Codec: codec.H264, Concurrency: 1}
	if err := store.Start(ctx, "render-completed-1", j); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := store.Finish(ctx, "render-completed-1", history.Outcome{OutputPath: "/out/intro.mp4", Elapsed: 2 * time.Second}); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	j.CompositionID = "outro"
	if err := store.Start(ctx, "render-failed-2", j); err != nil {
		t.Fatalf("Start: %v", err)
	}
	failure := reelerr.Wrap(reelerr.ErrEncodeFailed, "encoder", "finish", "ffmpeg exited 1", nil)
	if err := store.Finish(ctx, "render-failed-2", history.Outcome{Err: failure}); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "intro")
	requireContains(t, out, "outro")
	requireContains(t, out, "/out/intro.mp4")

	out, _, err = runCLI(t, []string{"history", "--status", "failed"}, env.configPath)
	if err != nil {
		t.Fatalf("history --status: %v", err)
	}
	if strings.Contains(out, "intro") || !strings.Contains(out, "outro") {
		t.Fatalf("expected only the failed render, got:\n%s", out)
	}

	if _, _, err := runCLI(t, []string{"history", "--status", "bogus"}, env.configPath); err == nil {
		t.Fatal("expected unknown status to fail")
	}

	out, _, err = runCLI(t, []string{"history", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	var records []history.Record
	if err := json.Unmarshal([]byte(out), &records); err != nil || len(records) != 2 {
		t.Fatalf("decode history json: %v (%d records)", err, len(records))
	}

	out, _, err = runCLI(t, []string{"history", "show", "render-failed-2"}, env.configPath)
	if err != nil {
		t.Fatalf("history show: %v", err)
	}
	requireContains(t, out, "encode")
	if _, _, err := runCLI(t, []string{"history", "show", "missing"}, env.configPath); err == nil {
		t.Fatal("expected show of unknown id to fail")
	}

	time.Sleep(5 * time.Millisecond)
	out, _, err = runCLI(t, []string{"history", "prune", "--older-than", "1ms"}, env.configPath)
	if err != nil {
		t.Fatalf("history prune: %v", err)
	}
	requireContains(t, out, "Removed 2 render(s)")
}

func TestRenderRejectsInvalidJobAndRecoversHistory(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenHistory(t, env.cfg)
	ctx := context.Background()

	j := job.Job{CompositionID: "stale", Width: 640, Height: 360, FPS: 30, FrameEnd: 9, Codec: codec.H264, Concurrency: 1}
	if err := store.Start(ctx, "crashed", j); err != nil {
		t.Fatalf("Start: %v", err)
	}

	out, _, err := runCLI(t, []string{"render", "intro", "--width", "0", "--height", "360", "--fps", "30", "--end", "9"}, env.configPath)
	if err == nil || !reelerr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	reader := progress.NewReader(strings.NewReader(out))
	event, readErr := reader.Next()
	if readErr != nil {
		t.Fatalf("read event: %v (stdout %q)", readErr, out)
	}
	if event.Type != progress.TypeError || event.RenderID == "" {
		t.Fatalf("expected error event with render id, got %+v", event)
	}

	rec, err := store.Get(ctx, "crashed")
	if err != nil || rec == nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != history.StatusFailed || rec.ErrorMessage != history.InterruptedReason {
		t.Fatalf("expected interrupted render marked failed, got %+v", rec)
	}
}

func TestBuildJobAppliesFlagsOverJobFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.json")
	content := `{"composition_id":"from-file","width":320,"height":240,"fps":24,"frame_end":47,"codec":"vp9","concurrency":2}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write job: %v", err)
	}

	cmd := &cobra.Command{}
	var flags renderFlags
	bindRenderFlags(cmd, &flags)
	if err := cmd.ParseFlags([]string{"--job", path, "--width", "640", "--crf", "30", "--props", `{"title":"hi"}`, "--muted", "--gif-loop", "-1"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	j, err := buildJob(cmd, flags, []string{"intro"})
	if err != nil {
		t.Fatalf("buildJob: %v", err)
	}
	if j.CompositionID != "intro" || j.Width != 640 || j.Height != 240 || j.FPS != 24 || j.FrameEnd != 47 {
		t.Fatalf("unexpected merged job %+v", j)
	}
	if j.Codec != codec.VP9 || j.Concurrency != 2 || !j.Muted {
		t.Fatalf("job file fields lost: %+v", j)
	}
	if j.Quality.CRF == nil || *j.Quality.CRF != 30 || j.GIFLoop == nil || *j.GIFLoop != -1 {
		t.Fatalf("quality flags not applied: %+v", j)
	}
	if string(j.InputProps) != `{"title":"hi"}` {
		t.Fatalf("unexpected props %s", j.InputProps)
	}

	cmd = &cobra.Command{}
	flags = renderFlags{}
	bindRenderFlags(cmd, &flags)
	if err := cmd.ParseFlags([]string{"--props", "{not json"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if _, err := buildJob(cmd, flags, nil); err == nil {
		t.Fatal("expected invalid props to fail")
	}
}

func TestWorkerRequiresQueue(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"worker"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "redis_addr") {
		t.Fatalf("expected missing queue error, got %v", err)
	}
}

func TestBarSinkDrawsProgress(t *testing.T) {
	var buf bytes.Buffer
	sink := newBarSink(&buf)

	sink.Emit(progress.Status("surface-ready"))
	for i := 1; i <= 3; i++ {
		sink.Emit(progress.Progress(i, 3))
	}
	sink.Emit(progress.Status("encoding"))
	sink.Emit(progress.Complete("/out/intro.mp4", time.Second))

	out := buf.String()
	requireContains(t, out, "surface-ready\n")
	requireContains(t, out, "100%")
}
