// Package postproc turns the per-pixel raw distance map into the smoothed
// distance, the binary foreground mask and the probability image.
package postproc
