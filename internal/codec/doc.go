// Package codec is the registry of output formats reel can produce.
//
// Each Spec declares the container extension, the ffmpeg encoder, the default
// pixel format, the accepted constant-quality range and the audio codec the
// muxer should use. Lookup rejects unknown identifiers with
// reelerr.ErrInvalidCodec so validation can fail before any subprocess starts.
package codec
