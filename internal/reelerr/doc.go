// Package reelerr defines the error taxonomy shared by every render component.
//
// Components tag failures with one of the exported sentinel markers through
// Wrap so that callers (the orchestrator, the history store, the HTTP API and
// the CLI) can classify an error with errors.Is without parsing messages.
// Failures that carry extra data, such as the encoder's diagnostic tail or the
// chunk that broke a parallel render, use the typed errors in this package,
// which also match their marker.
package reelerr
