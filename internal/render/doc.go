// Package render orchestrates one render from request to finished artifact.
//
// A Renderer validates the job, opens a per-render scratch directory and
// picks a capture strategy: serial renders drive one surface and pipe each
// frame straight into the encoder, parallel renders capture chunks to disk
// and stitch them into a single encode. Audio is collected from the surface's
// track snapshot and mixed while video encodes, then muxed. GIF output goes
// through the palette pipeline, AV1 output through drapto, and image
// sequences skip the encoder entirely.
//
// Every render walks the Machine states and ends in Complete or Aborted.
// Both terminals tear down browsers, encoder processes and the scratch
// directory, and the progress sink always receives exactly one terminal
// event.
package render
