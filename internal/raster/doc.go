// Package raster owns the 2D buffers shared by the background model and its
// collaborators.
//
// Bytes is an interleaved (row, col, channel) uint8 raster used for input
// frames, masks and output images. Float is the float32 equivalent used for
// derived single-channel planes and distance maps. Rect is a half-open
// axis-aligned region of interest.
//
// Accessors bounds-check only when built with the rasterdebug tag; hot loops
// index Pix directly through Offset.
package raster
