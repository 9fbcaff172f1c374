// Package surface drives the headless browser page that hosts a composition.
//
// The page contract is a small set of window hooks installed by the
// composition runtime:
//
//	window.__reel_ready            true once the composition is mounted
//	window.__reel_setFrame(n)      seek the composition clock to frame n
//	window.__reel_pendingCount()   outstanding async work (fonts, images, data)
//	window.__reel_awaitIdle()      promise resolved when pendingCount reaches 0
//	window.__reel_getAudioTracks() snapshot of the active audio tracks
//
// Driver wraps a Page with bounded readiness and settle waits. RodLauncher
// opens pages in a dedicated Chromium instance per driver.
package surface
