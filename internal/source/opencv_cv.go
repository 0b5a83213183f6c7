//go:build withcv

package source

import (
	"context"
	"fmt"
	"image"
	"io"

	"gocv.io/x/gocv"

	"github.com/banshee-data/layerbg/internal/monitoring"
	"github.com/banshee-data/layerbg/internal/raster"
)

// OpenCV reads frames from a gocv.VideoCapture.
type OpenCV struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	resized gocv.Mat
	opts    Options
	name    string
}

// OpenVideo opens a video file.
func OpenVideo(path string, opts Options) (Source, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	return newOpenCV(capture, path, opts), nil
}

// OpenDevice opens capture device id.
func OpenDevice(id int, opts Options) (Source, error) {
	capture, err := gocv.VideoCaptureDevice(id)
	if err != nil {
		return nil, fmt.Errorf("open device %d: %w", id, err)
	}
	return newOpenCV(capture, fmt.Sprintf("device:%d", id), opts), nil
}

func newOpenCV(capture *gocv.VideoCapture, name string, opts Options) *OpenCV {
	monitoring.Logf("[OpenCV] opened %s", name)
	return &OpenCV{
		capture: capture,
		mat:     gocv.NewMat(),
		resized: gocv.NewMat(),
		opts:    opts,
		name:    name,
	}
}

// Next grabs and decodes the next frame. A failed read at the end of a
// file is reported as io.EOF.
func (c *OpenCV) Next(ctx context.Context) (*raster.Bytes, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := c.capture.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, io.EOF
	}
	src := c.mat
	if c.opts.Width > 0 && (src.Cols() != c.opts.Width || src.Rows() != c.opts.Height) {
		gocv.Resize(src, &c.resized, image.Pt(c.opts.Width, c.opts.Height), 0, 0, gocv.InterpolationLinear)
		src = c.resized
	}
	img, err := src.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame from %s: %w", c.name, err)
	}
	return raster.FromImage(img, c.opts.channels())
}

// Close releases the capture and its buffers.
func (c *OpenCV) Close() error {
	c.mat.Close()
	c.resized.Close()
	return c.capture.Close()
}
