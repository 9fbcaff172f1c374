// Package logging assembles the structured slog loggers used across reel.
//
// It owns the console and JSON handlers, level and output plumbing, and
// context helpers that tag log lines with the render id, pipeline state and
// chunk index automatically. A no-op logger is provided for tests and wiring
// code that cannot fail.
package logging
