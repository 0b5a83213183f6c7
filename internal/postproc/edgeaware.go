package postproc

import "errors"

// ErrEdgeAwareUnavailable is returned by NewEdgeAware when the binary was
// built without OpenCV support.
var ErrEdgeAwareUnavailable = errors.New("edge-aware smoothing requires a build with the withcv tag")

// NewSmoother returns the edge-aware smoother when requested and available,
// otherwise the Gaussian one. The returned bool reports whether the
// edge-aware pass is in use.
func NewSmoother(halfWidth int, sigma float64, edgeAware bool) (Smoother, bool, error) {
	g, err := NewGaussian(halfWidth, sigma)
	if err != nil {
		return nil, false, err
	}
	if !edgeAware {
		return g, false, nil
	}
	ea, err := NewEdgeAware(g, sigma)
	if err != nil {
		return g, false, nil
	}
	return ea, true, nil
}
