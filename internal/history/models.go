package history

import (
	"time"
)

// Status represents the lifecycle of a render row.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRendering Status = "rendering"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// InterruptedReason is recorded for renders left in progress by a process
// that exited without finishing them.
const InterruptedReason = "render interrupted before completion"

var allStatuses = []Status{
	StatusQueued,
	StatusRendering,
	StatusCompleted,
	StatusFailed,
	StatusCanceled,
}

// ParseStatus validates a status name.
func ParseStatus(value string) (Status, bool) {
	for _, s := range allStatuses {
		if string(s) == value {
			return s, true
		}
	}
	return "", false
}

// Terminal reports whether no further transitions follow s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Record is one persisted render.
type Record struct {
	ID            string     `json:"id"`
	CompositionID string     `json:"composition_id"`
	Codec         string     `json:"codec"`
	Width         int        `json:"width"`
	Height        int        `json:"height"`
	FPS           float64    `json:"fps"`
	FrameStart    int        `json:"frame_start"`
	FrameEnd      int        `json:"frame_end"`
	Concurrency   int        `json:"concurrency"`
	Status        Status     `json:"status"`
	OutputPath    string     `json:"output_path,omitempty"`
	SizeBytes     int64      `json:"size_bytes,omitempty"`
	PublishedTo   string     `json:"published_to,omitempty"`
	ErrorKind     string     `json:"error_kind,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	JobJSON       string     `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	ElapsedMs     int64      `json:"elapsed_ms,omitempty"`
}

// Frames is the number of frames in the recorded range.
func (r Record) Frames() int {
	return r.FrameEnd - r.FrameStart + 1
}

// Outcome is what a finished render reports back to the store.
type Outcome struct {
	OutputPath  string
	SizeBytes   int64
	PublishedTo string
	Elapsed     time.Duration
	// Err is nil for a completed render. Cancellation maps to StatusCanceled,
	// anything else to StatusFailed.
	Err error
}
