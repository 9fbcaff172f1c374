// Package audio collects a composition's audio tracks and mixes them into a
// single PCM stream aligned to the render's frame range.
//
// Tracks come from the surface's audio snapshot. Remote sources are fetched
// over HTTP and local sources copied into the render working directory.
// Sources that fail to materialize are dropped with a warning so the render
// continues without them.
package audio
