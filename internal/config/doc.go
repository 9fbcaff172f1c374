// Package config loads, normalizes, and validates reel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// REEL_FFMPEG and REEL_CHROME. The Config type centralizes every knob the CLI,
// the HTTP server and the render worker need: working directories, browser and
// encoder settings, render defaults, the optional Redis queue and artifact
// publishing.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, canonical enum values, and clear validation errors.
package config
