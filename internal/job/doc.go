// Package job defines the immutable render request and its validation rules.
//
// A Job is decoded from the CLI, the HTTP API or the Redis queue, passed
// through WithDefaults and Validate, and then handed by value to the render
// orchestrator. Nothing downstream mutates it; components derive their own
// state (chunk ranges, audio delays, output names) from it.
package job
