// Package pipeline drives a segmenter over a frame source and hands the
// per-frame outputs to a sink.
package pipeline
