// Package procgroup starts external tools in their own process group so a
// render can reap the whole tree (ffmpeg, browser helpers) on cancellation.
package procgroup
