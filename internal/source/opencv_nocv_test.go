//go:build !withcv

package source

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/layerbg/internal/fsutil"
)

func TestVideoNeedsOpenCV(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	_, err := Open(fsys, "device:0", Options{})
	assert.ErrorIs(t, err, ErrOpenCVUnavailable)

	_ = fsys.WriteFile("clip.mp4", []byte{0}, 0644)
	_, err = Open(fsys, "clip.mp4", Options{})
	assert.ErrorIs(t, err, ErrOpenCVUnavailable)
}
