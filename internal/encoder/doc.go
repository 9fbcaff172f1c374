// Package encoder manages ffmpeg subprocesses.
//
// Pipe streams encoded image frames into a long-running ffmpeg stdin with a
// bounded in-process queue: TryWrite reports backpressure instead of blocking
// and Drain waits until the queue has room again. The diagnostic stream is
// drained continuously into a fixed-size tail that is attached to failures.
//
// Run executes one-shot ffmpeg invocations (mixing, muxing, palette passes)
// with the same process-group and tail handling.
package encoder
