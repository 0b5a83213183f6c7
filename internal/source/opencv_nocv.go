//go:build !withcv

package source

// OpenVideo needs the withcv build tag.
func OpenVideo(path string, opts Options) (Source, error) {
	return nil, ErrOpenCVUnavailable
}

// OpenDevice needs the withcv build tag.
func OpenDevice(id int, opts Options) (Source, error) {
	return nil, ErrOpenCVUnavailable
}
