package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"reel/internal/job"
	"reel/internal/reelerr"
)

const recordColumns = `id, composition_id, codec, width, height, fps, frame_start, frame_end, concurrency,
    status, output_path, size_bytes, published_to, error_kind, error_message, job_json,
    created_at, updated_at, started_at, finished_at, elapsed_ms`

// Enqueue records a render submitted to the queue but not yet picked up.
func (s *Store) Enqueue(ctx context.Context, id string, j job.Job) (*Record, error) {
	if err := s.insert(ctx, id, j, StatusQueued); err != nil {
		return nil, fmt.Errorf("insert queued render: %w", err)
	}
	return s.Get(ctx, id)
}

// Start marks id as rendering, inserting the row when the render was not
// queued first.
func (s *Store) Start(ctx context.Context, id string, j job.Job) error {
	now := formatTime(time.Now())
	raw, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	_, err = s.execWithRetry(ctx,
		`INSERT INTO renders (
            id, composition_id, codec, width, height, fps, frame_start, frame_end, concurrency,
            status, job_json, created_at, updated_at, started_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            status = excluded.status,
            job_json = excluded.job_json,
            concurrency = excluded.concurrency,
            updated_at = excluded.updated_at,
            started_at = excluded.started_at`,
		id, j.CompositionID, string(j.Codec), j.Width, j.Height, j.FPS, j.FrameStart, j.FrameEnd, j.Concurrency,
		StatusRendering, string(raw), now, now, now,
	)
	if err != nil {
		return fmt.Errorf("start render: %w", err)
	}
	return nil
}

// Finish stores the terminal state of id.
func (s *Store) Finish(ctx context.Context, id string, out Outcome) error {
	status := StatusCompleted
	var kind, message string
	if out.Err != nil {
		kind = reelerr.Kind(out.Err)
		message = out.Err.Error()
		status = StatusFailed
		if kind == "canceled" {
			status = StatusCanceled
		}
	}
	now := formatTime(time.Now())
	res, err := s.execWithRetry(ctx,
		`UPDATE renders SET
            status = ?, output_path = ?, size_bytes = ?, published_to = ?,
            error_kind = ?, error_message = ?, updated_at = ?, finished_at = ?, elapsed_ms = ?
        WHERE id = ?`,
		status, nullableString(out.OutputPath), out.SizeBytes, nullableString(out.PublishedTo),
		nullableString(kind), nullableString(message), now, now, out.Elapsed.Milliseconds(),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish render: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish render: unknown id %q", id)
	}
	return nil
}

// Get fetches a render by id. It returns nil when the id is unknown.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+recordColumns+` FROM renders WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get render: %w", err)
	}
	return rec, nil
}

// List returns the newest renders first, filtered by status when any are
// given. A non-positive limit returns every row.
func (s *Store) List(ctx context.Context, limit int, statuses ...Status) ([]*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM renders`
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list renders: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// FailInterrupted marks every row still rendering as failed. Servers and
// workers call it at startup since no other process renders into their
// history file.
func (s *Store) FailInterrupted(ctx context.Context) (int64, error) {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(ctx,
		`UPDATE renders SET status = ?, error_kind = ?, error_message = ?, updated_at = ?, finished_at = ?
        WHERE status = ?`,
		StatusFailed, "internal", InterruptedReason, now, now, StatusRendering,
	)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted renders: %w", err)
	}
	return res.RowsAffected()
}

// Prune deletes terminal rows finished before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM renders WHERE status IN (?, ?, ?) AND finished_at < ?`,
		StatusCompleted, StatusFailed, StatusCanceled, formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("prune renders: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) insert(ctx context.Context, id string, j job.Job, status Status) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("render id is required")
	}
	raw, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	now := formatTime(time.Now())
	_, err = s.execWithRetry(ctx,
		`INSERT INTO renders (
            id, composition_id, codec, width, height, fps, frame_start, frame_end, concurrency,
            status, job_json, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, j.CompositionID, string(j.Codec), j.Width, j.Height, j.FPS, j.FrameStart, j.FrameEnd, j.Concurrency,
		status, string(raw), now, now,
	)
	return err
}

// Job decodes the stored request.
func (r Record) Job() (job.Job, error) {
	var j job.Job
	if err := json.Unmarshal([]byte(r.JobJSON), &j); err != nil {
		return job.Job{}, fmt.Errorf("decode stored job: %w", err)
	}
	return j, nil
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		rec                                          Record
		status                                       string
		outputPath, publishedTo, errKind, errMessage sql.NullString
		createdAt, updatedAt                         string
		startedAt, finishedAt                        sql.NullString
	)
	if err := scanner.Scan(
		&rec.ID, &rec.CompositionID, &rec.Codec, &rec.Width, &rec.Height, &rec.FPS,
		&rec.FrameStart, &rec.FrameEnd, &rec.Concurrency,
		&status, &outputPath, &rec.SizeBytes, &publishedTo, &errKind, &errMessage, &rec.JobJSON,
		&createdAt, &updatedAt, &startedAt, &finishedAt, &rec.ElapsedMs,
	); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	rec.OutputPath = outputPath.String
	rec.PublishedTo = publishedTo.String
	rec.ErrorKind = errKind.String
	rec.ErrorMessage = errMessage.String
	if t, err := parseTimeString(createdAt); err == nil {
		rec.CreatedAt = t
	}
	if t, err := parseTimeString(updatedAt); err == nil {
		rec.UpdatedAt = t
	}
	if startedAt.Valid {
		if t, err := parseTimeString(startedAt.String); err == nil {
			rec.StartedAt = &t
		}
	}
	if finishedAt.Valid {
		if t, err := parseTimeString(finishedAt.String); err == nil {
			rec.FinishedAt = &t
		}
	}
	return &rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(timeLayout, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
