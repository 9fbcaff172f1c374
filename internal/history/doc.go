// Package history persists one row per render in SQLite.
//
// Rows move through queued (optional, for renders submitted to the Redis
// queue) to rendering and finally completed, failed or canceled. The store
// is shared by the CLI, the HTTP API and queue workers; busy errors from
// concurrent writers are retried with a short backoff.
package history
