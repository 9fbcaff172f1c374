package encoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"reel/internal/logging"
	"reel/internal/procgroup"
	"reel/internal/reelerr"
)

const (
	// DefaultQueueDepth is the number of frames buffered before TryWrite
	// reports backpressure.
	DefaultQueueDepth = 2
	// DefaultTailBytes bounds the retained diagnostic output.
	DefaultTailBytes = 500
)

// ErrPipeClosed is returned when writing after Finish or Abort.
var ErrPipeClosed = errors.New("encoder pipe closed")

// Options configures a Pipe.
type Options struct {
	Binary     string
	Args       []string
	OutputPath string
	QueueDepth int
	TailBytes  int
	Logger     *slog.Logger
}

// Result summarizes a finished encode.
type Result struct {
	OutputPath string
	ExitCode   int
	Frames     int
	Elapsed    time.Duration
	Tail       string
}

// Pipe is a running encoder fed through stdin.
type Pipe struct {
	binary  string
	output  string
	logger  *slog.Logger
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	tail    *tailBuffer
	started time.Time

	frames     chan []byte
	space      chan struct{}
	writerDone chan struct{}
	writeErr   error
	written    atomic.Int64

	mu     sync.Mutex
	closed bool

	waitOnce sync.Once
	waitErr  error

	abortOnce sync.Once
}

// Start launches the encoder. The process is killed when ctx is canceled.
func Start(ctx context.Context, opts Options) (*Pipe, error) {
	if opts.Binary == "" {
		return nil, reelerr.Wrap(reelerr.ErrExternalTool, "encoder", "start", "encoder binary not configured", nil)
	}
	depth := opts.QueueDepth
	if depth <= 0 {
		depth = DefaultQueueDepth
	}

	cmd := exec.CommandContext(ctx, opts.Binary, opts.Args...) //nolint:gosec
	procgroup.Set(cmd)
	tail := newTailBuffer(opts.TailBytes)
	cmd.Stderr = tail
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, reelerr.Wrap(reelerr.ErrExternalTool, "encoder", "start", "open stdin", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, reelerr.Wrap(reelerr.ErrExternalTool, "encoder", "start", fmt.Sprintf("launch %s", opts.Binary), err)
	}

	p := &Pipe{
		binary:     opts.Binary,
		output:     opts.OutputPath,
		logger:     logging.NewComponentLogger(opts.Logger, "encoder"),
		cmd:        cmd,
		stdin:      stdin,
		tail:       tail,
		started:    time.Now(),
		frames:     make(chan []byte, depth),
		space:      make(chan struct{}, 1),
		writerDone: make(chan struct{}),
	}
	p.logger.Debug("encoder started",
		logging.String("binary", opts.Binary),
		logging.Int("pid", cmd.Process.Pid),
		logging.Int("queue_depth", depth),
	)
	go p.pump()
	return p, nil
}

func (p *Pipe) pump() {
	defer close(p.writerDone)
	for frame := range p.frames {
		select {
		case p.space <- struct{}{}:
		default:
		}
		if _, err := p.stdin.Write(frame); err != nil {
			p.writeErr = err
			return
		}
		p.written.Add(1)
	}
}

// TryWrite queues frame without blocking. It returns false when the queue is
// full; the caller should Drain and retry. After the encoder stops accepting
// input the error reports why.
func (p *Pipe) TryWrite(frame []byte) (bool, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false, ErrPipeClosed
	}
	select {
	case <-p.writerDone:
		p.mu.Unlock()
		return false, p.inputError()
	default:
	}
	queued := false
	select {
	case p.frames <- frame:
		queued = true
	default:
	}
	p.mu.Unlock()
	return queued, nil
}

// Drain blocks until the queue can accept another frame.
func (p *Pipe) Drain(ctx context.Context) error {
	for len(p.frames) >= cap(p.frames) {
		select {
		case <-p.space:
		case <-p.writerDone:
			return p.inputError()
		case <-ctx.Done():
			return reelerr.Wrap(reelerr.ErrCanceled, "encoder", "drain", "", ctx.Err())
		}
	}
	return nil
}

// Write queues frame, waiting for room when the encoder is behind.
func (p *Pipe) Write(ctx context.Context, frame []byte) error {
	for {
		ok, err := p.TryWrite(frame)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := p.Drain(ctx); err != nil {
			return err
		}
	}
}

// Pending is the number of queued frames not yet handed to the encoder.
func (p *Pipe) Pending() int {
	return len(p.frames)
}

// Written is the number of frames delivered to the encoder.
func (p *Pipe) Written() int {
	return int(p.written.Load())
}

// Finish closes the input, waits for the encoder to exit and reports the
// outcome. A non-zero exit removes the partial output.
func (p *Pipe) Finish(ctx context.Context) (Result, error) {
	p.closeInput()

	select {
	case <-p.writerDone:
	case <-ctx.Done():
		p.Abort()
		return Result{}, reelerr.Wrap(reelerr.ErrCanceled, "encoder", "finish", "", ctx.Err())
	}
	_ = p.stdin.Close()

	err := p.wait()
	result := Result{
		OutputPath: p.output,
		Frames:     p.Written(),
		Elapsed:    time.Since(p.started),
		Tail:       p.tail.String(),
	}
	if p.cmd.ProcessState != nil {
		result.ExitCode = p.cmd.ProcessState.ExitCode()
	}
	if err != nil {
		p.removeOutput()
		return result, commandError(ctx, p.binary, err, result.Tail)
	}
	if p.writeErr != nil {
		p.removeOutput()
		return result, reelerr.Wrap(reelerr.ErrEncodeFailed, "encoder", "write", "encoder stopped reading input", p.writeErr)
	}
	p.logger.Debug("encoder finished",
		logging.Int("frames", result.Frames),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// Abort kills the encoder process group, waits for it and removes the partial
// output. It is safe to call more than once and after Finish.
func (p *Pipe) Abort() {
	p.abortOnce.Do(func() {
		p.closeInput()
		if err := procgroup.Kill(p.cmd); err != nil {
			p.logger.Debug("kill encoder", logging.Error(err))
		}
		_ = p.stdin.Close()
		<-p.writerDone
		_ = p.wait()
		p.removeOutput()
	})
}

func (p *Pipe) closeInput() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.frames)
	}
}

func (p *Pipe) wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
	})
	return p.waitErr
}

// inputError explains why the encoder stopped accepting frames. It waits for
// the process so the exit status and tail are available.
func (p *Pipe) inputError() error {
	if err := p.wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &reelerr.EncodeFailedError{Binary: p.binary, ExitCode: exitErr.ExitCode(), Tail: p.tail.String()}
		}
		return reelerr.Wrap(reelerr.ErrEncodeFailed, "encoder", "write", "", err)
	}
	if p.writeErr != nil {
		return reelerr.Wrap(reelerr.ErrEncodeFailed, "encoder", "write", "encoder stopped reading input", p.writeErr)
	}
	return ErrPipeClosed
}

func (p *Pipe) removeOutput() {
	if p.output == "" {
		return
	}
	if err := os.Remove(p.output); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Debug("remove partial output", logging.String("path", p.output), logging.Error(err))
	}
}
