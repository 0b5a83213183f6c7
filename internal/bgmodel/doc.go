// Package bgmodel implements the per-pixel multi-layer background model.
//
// Every pixel keeps up to MaxModes appearance hypotheses (modes) combining a
// colour range with a local binary pattern texture descriptor. Each frame the
// best-matching mode is updated, weights are decayed and renormalised, and
// long-lived modes are promoted into numbered background layers. The raw
// per-pixel distance of the decision is smoothed and thresholded into the
// foreground mask.
//
// A Model is not safe for concurrent use; wrap it in Synchronized when a
// flusher or HTTP handler shares it with the frame loop.
package bgmodel
