package progress

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Writer encodes events as newline-delimited JSON. It is safe for concurrent
// use; each event is written with a single Write call.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

// NewWriter wraps w. When w is an http.ResponseWriter the response is flushed
// after every event.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Emit implements Sink. Encoding errors are retained and reported by Err.
func (w *Writer) Emit(e Event) {
	line, err := json.Marshal(e)
	if err != nil {
		w.setErr(fmt.Errorf("encode event: %w", err))
		return
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	if _, err := w.w.Write(line); err != nil {
		w.err = err
		return
	}
	if flusher, ok := w.w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Err returns the first write error, if any.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Writer) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

// Reader decodes an NDJSON event stream. Bytes that do not yet form a full
// line stay buffered until the rest arrives.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next event. It returns io.EOF once the stream ends; a
// trailing line without a newline is still decoded.
func (r *Reader) Next() (Event, error) {
	for {
		line, err := r.r.ReadBytes('\n')
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			var e Event
			if decodeErr := json.Unmarshal(trimmed, &e); decodeErr != nil {
				return Event{}, fmt.Errorf("decode event: %w", decodeErr)
			}
			return e, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
	}
}
