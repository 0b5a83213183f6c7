//go:build !withcv

package postproc

// NewEdgeAware is unavailable without OpenCV.
func NewEdgeAware(_ *Gaussian, _ float64) (Smoother, error) {
	return nil, ErrEdgeAwareUnavailable
}
