package progress

import (
	"encoding/json"
	"time"
)

// Type tags an Event.
type Type string

const (
	TypeStatus   Type = "status"
	TypeProgress Type = "progress"
	TypeComplete Type = "complete"
	TypeError    Type = "error"
)

// Event is a single progress message. The counters a type carries are always
// encoded, zero included: progress lines hold frames_done and frames_total,
// complete lines hold elapsed_ms.
type Event struct {
	Type        Type   `json:"type"`
	RenderID    string `json:"render_id,omitempty"`
	Message     string `json:"message,omitempty"`
	FramesDone  int    `json:"frames_done"`
	FramesTotal int    `json:"frames_total"`
	OutputPath  string `json:"output_path,omitempty"`
	ElapsedMs   int64  `json:"elapsed_ms"`
}

type wireEvent struct {
	Type        Type   `json:"type"`
	RenderID    string `json:"render_id,omitempty"`
	Message     string `json:"message,omitempty"`
	FramesDone  *int   `json:"frames_done,omitempty"`
	FramesTotal *int   `json:"frames_total,omitempty"`
	OutputPath  string `json:"output_path,omitempty"`
	ElapsedMs   *int64 `json:"elapsed_ms,omitempty"`
}

// MarshalJSON encodes only the fields that belong to the event's type.
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{Type: e.Type, RenderID: e.RenderID, Message: e.Message, OutputPath: e.OutputPath}
	if e.Type == TypeProgress || e.FramesDone != 0 || e.FramesTotal != 0 {
		w.FramesDone, w.FramesTotal = &e.FramesDone, &e.FramesTotal
	}
	if e.Type == TypeComplete || e.ElapsedMs != 0 {
		w.ElapsedMs = &e.ElapsedMs
	}
	return json.Marshal(w)
}

// Terminal reports whether no further events follow e.
func (e Event) Terminal() bool {
	return e.Type == TypeComplete || e.Type == TypeError
}

func Status(message string) Event {
	return Event{Type: TypeStatus, Message: message}
}

func Progress(done, total int) Event {
	return Event{Type: TypeProgress, FramesDone: done, FramesTotal: total}
}

func Complete(outputPath string, elapsed time.Duration) Event {
	return Event{Type: TypeComplete, OutputPath: outputPath, ElapsedMs: elapsed.Milliseconds()}
}

func Error(message string) Event {
	return Event{Type: TypeError, Message: message}
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) {
	if f != nil {
		f(e)
	}
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

type multiSink []Sink

func (m multiSink) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Multi fans an event out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	filtered := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		return Discard
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return filtered
}

// WithRenderID stamps every event passing through with id.
func WithRenderID(sink Sink, id string) Sink {
	if sink == nil {
		sink = Discard
	}
	return SinkFunc(func(e Event) {
		if e.RenderID == "" {
			e.RenderID = id
		}
		sink.Emit(e)
	})
}
