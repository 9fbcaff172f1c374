// Package mux combines a silent video with a mixed audio stream into the
// final container using ffmpeg stream copy for video.
package mux
