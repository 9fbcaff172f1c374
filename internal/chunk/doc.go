// Package chunk splits a frame range across parallel capture workers and
// stitches their frame files back into global order.
package chunk
