// Package source provides frame sources for the background model: image
// directories, a deterministic synthetic scene and, with the withcv build
// tag, video files and capture devices through OpenCV.
package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/layerbg/internal/fsutil"
	"github.com/banshee-data/layerbg/internal/raster"
)

// ErrOpenCVUnavailable is returned when a video source is requested from a
// binary built without the withcv tag.
var ErrOpenCVUnavailable = errors.New("opencv sources require the withcv build tag")

// Source yields frames in order. Next returns io.EOF after the last frame.
type Source interface {
	Next(ctx context.Context) (*raster.Bytes, error)
	Close() error
}

// Options controls the frames produced by Open.
type Options struct {
	// Width and Height resize every frame when both are positive.
	Width  int
	Height int
	// Channels is 1 (gray) or 3 (RGB). Zero means 3.
	Channels int
}

func (o Options) channels() int {
	if o.Channels == 0 {
		return 3
	}
	return o.Channels
}

func (o Options) validate() error {
	if c := o.channels(); c != 1 && c != 3 {
		return fmt.Errorf("unsupported channel count %d", c)
	}
	if (o.Width > 0) != (o.Height > 0) || o.Width < 0 || o.Height < 0 {
		return fmt.Errorf("width and height must both be positive or both zero, got %dx%d", o.Width, o.Height)
	}
	return nil
}

// Open returns a source for input. A directory yields its image files;
// "device:N" opens capture device N and any other file is opened as a
// video. The last two need the withcv build tag.
func Open(fsys fsutil.FileSystem, input string, opts Options) (Source, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if dev, ok := strings.CutPrefix(input, "device:"); ok {
		id, err := strconv.Atoi(dev)
		if err != nil {
			return nil, fmt.Errorf("invalid device %q: %w", input, err)
		}
		return OpenDevice(id, opts)
	}
	info, err := fsys.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", input, err)
	}
	if info.IsDir() {
		return NewImageDir(fsys, input, opts)
	}
	return OpenVideo(input, opts)
}
