// Package av1 hands a lossless, audio-muxed intermediate to the drapto
// library for the final SVT-AV1 encode and reports its progress as render
// status events.
package av1
