package history_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"reel/internal/history"
	"reel/internal/job"
	"reel/internal/reelerr"
	"reel/internal/testsupport"
)

func sampleJob(id string) job.Job {
	return job.Job{
		CompositionID: id,
		Width:         1280,
		Height:        720,
		FPS:           30,
		FrameStart:    0,
		FrameEnd:      29,
		Codec:         "h264",
		Concurrency:   2,
	}
}

func TestStartAndFinishCompleted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	if err := store.Start(ctx, "r-1", sampleJob("intro")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec, err := store.Get(ctx, "r-1")
	if err != nil || rec == nil {
		t.Fatalf("Get: %v %v", rec, err)
	}
	if rec.Status != history.StatusRendering || rec.StartedAt == nil {
		t.Fatalf("expected rendering row with start time, got %+v", rec)
	}
	if rec.Frames() != 30 || rec.Concurrency != 2 {
		t.Fatalf("unexpected range fields %+v", rec)
	}

	err = store.Finish(ctx, "r-1", history.Outcome{OutputPath: "/out/intro.mp4", SizeBytes: 2048, Elapsed: 1500 * time.Millisecond})
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	rec, _ = store.Get(ctx, "r-1")
	if rec.Status != history.StatusCompleted || rec.OutputPath != "/out/intro.mp4" || rec.SizeBytes != 2048 {
		t.Fatalf("unexpected completed row %+v", rec)
	}
	if rec.ElapsedMs != 1500 || rec.FinishedAt == nil || rec.ErrorKind != "" {
		t.Fatalf("unexpected completion metadata %+v", rec)
	}
	stored, err := rec.Job()
	if err != nil || stored.CompositionID != "intro" {
		t.Fatalf("unexpected stored job %+v err=%v", stored, err)
	}
}

func TestFinishClassifiesErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	cases := []struct {
		id     string
		err    error
		status history.Status
		kind   string
	}{
		{"failed", &reelerr.EncodeFailedError{Binary: "ffmpeg", ExitCode: 1, Tail: "boom"}, history.StatusFailed, "encode"},
		{"canceled", reelerr.Wrap(reelerr.ErrCanceled, "render", "capture", "", context.Canceled), history.StatusCanceled, "canceled"},
	}
	for _, tc := range cases {
		if err := store.Start(ctx, tc.id, sampleJob(tc.id)); err != nil {
			t.Fatalf("Start %s: %v", tc.id, err)
		}
		if err := store.Finish(ctx, tc.id, history.Outcome{Err: tc.err}); err != nil {
			t.Fatalf("Finish %s: %v", tc.id, err)
		}
		rec, _ := store.Get(ctx, tc.id)
		if rec.Status != tc.status || rec.ErrorKind != tc.kind || rec.ErrorMessage == "" {
			t.Fatalf("%s: unexpected row %+v", tc.id, rec)
		}
	}

	if err := store.Finish(ctx, "missing", history.Outcome{}); err == nil {
		t.Fatal("expected error finishing unknown id")
	}
}

func TestEnqueueThenStartKeepsCreatedAt(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	queued, err := store.Enqueue(ctx, "q-1", sampleJob("queued"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if queued.Status != history.StatusQueued || queued.StartedAt != nil {
		t.Fatalf("unexpected queued row %+v", queued)
	}
	if _, err := store.Enqueue(ctx, "q-1", sampleJob("queued")); err == nil {
		t.Fatal("expected duplicate enqueue to fail")
	}
	if _, err := store.Enqueue(ctx, " ", sampleJob("queued")); err == nil {
		t.Fatal("expected empty id to fail")
	}

	if err := store.Start(ctx, "q-1", sampleJob("queued")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	started, _ := store.Get(ctx, "q-1")
	if started.Status != history.StatusRendering || !started.CreatedAt.Equal(queued.CreatedAt) {
		t.Fatalf("expected start to keep created_at, got %+v (queued %+v)", started, queued)
	}
}

func TestListOrdersNewestFirstAndFilters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("r-%d", i)
		if err := store.Start(ctx, id, sampleJob(id)); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
	if err := store.Finish(ctx, "r-0", history.Outcome{Err: errors.New("boom")}); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].ID != "r-2" || all[2].ID != "r-0" {
		t.Fatalf("unexpected order: %v", ids(all))
	}

	limited, _ := store.List(ctx, 1)
	if len(limited) != 1 || limited[0].ID != "r-2" {
		t.Fatalf("unexpected limited list: %v", ids(limited))
	}

	failed, _ := store.List(ctx, 0, history.StatusFailed)
	if len(failed) != 1 || failed[0].ID != "r-0" {
		t.Fatalf("unexpected failed list: %v", ids(failed))
	}
}

func TestFailInterruptedAndPrune(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	_ = store.Start(ctx, "stuck", sampleJob("stuck"))
	_ = store.Start(ctx, "done", sampleJob("done"))
	_ = store.Finish(ctx, "done", history.Outcome{OutputPath: "/out/done.mp4"})

	n, err := store.FailInterrupted(ctx)
	if err != nil || n != 1 {
		t.Fatalf("FailInterrupted = %d, %v", n, err)
	}
	stuck, _ := store.Get(ctx, "stuck")
	if stuck.Status != history.StatusFailed || stuck.ErrorMessage != history.InterruptedReason {
		t.Fatalf("unexpected interrupted row %+v", stuck)
	}

	pruned, err := store.Prune(ctx, time.Now().Add(time.Minute))
	if err != nil || pruned != 2 {
		t.Fatalf("Prune = %d, %v", pruned, err)
	}
	remaining, _ := store.List(ctx, 0)
	if len(remaining) != 0 {
		t.Fatalf("expected empty history, got %v", ids(remaining))
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = store.Start(context.Background(), "r", sampleJob("r"))
	_ = store.Close()

	reopened := testsupport.MustOpenHistory(t, cfg)
	rec, err := reopened.Get(context.Background(), "r")
	if err != nil || rec == nil {
		t.Fatalf("expected row after reopen, got %v %v", rec, err)
	}
	if reopened.Path() != cfg.HistoryPath() {
		t.Fatalf("unexpected path %q", reopened.Path())
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := history.ParseStatus("canceled"); !ok || !s.Terminal() {
		t.Fatalf("expected canceled to parse as terminal, got %q %v", s, ok)
	}
	if _, ok := history.ParseStatus("paused"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
	if history.StatusQueued.Terminal() {
		t.Fatal("queued is not terminal")
	}
}

func ids(records []*history.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}
