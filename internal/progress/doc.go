// Package progress carries render progress events to callers.
//
// Events are a small tagged union (status, progress, complete, error) that only
// exist on the wire. Writer encodes them as newline-delimited JSON, Reader
// decodes such a stream while tolerating partial lines, and Counter provides the
// atomic frame counter shared by parallel capture workers.
package progress
