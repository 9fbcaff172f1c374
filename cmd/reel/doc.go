// Package main hosts the reel CLI.
//
// `reel render` runs one render in the foreground and reports progress as a
// terminal progress bar or, when stdout is not a terminal, as NDJSON events.
// `reel serve` exposes the HTTP render API and `reel worker` drains the Redis
// render queue. The remaining commands inspect history, external
// dependencies, the codec registry and configuration.
package main
