// Package server exposes renders over HTTP.
//
// POST /api/render runs a render synchronously and streams its progress as
// NDJSON. POST /api/renders hands the job to the Redis queue for a worker.
// History, health and dependency endpoints are read-only. A semaphore sized
// by server.max_concurrent bounds synchronous renders, and a lock file keeps
// a second server from sharing the state directory.
package server
