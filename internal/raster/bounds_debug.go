//go:build rasterdebug

package raster

const checkBounds = true
