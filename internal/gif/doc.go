// Package gif turns a lossless intermediate into an animated GIF: a palette
// pass generates at most 256 colors and a final pass maps frames onto it with
// sierra2_4a error diffusion.
package gif
