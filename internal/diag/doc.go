// Package diag provides debugging views of a background model: per-pixel
// time series plots, an HTML layer map and summary statistics.
package diag
