// Package ffprobe wraps ffprobe JSON output for post-render checks.
//
// Inspect runs ffprobe against a finished artifact and Verify checks the
// result against what the render was expected to produce: a video stream,
// an audio stream when a mix was muxed, and a duration close to the frame
// range that was captured.
package ffprobe
