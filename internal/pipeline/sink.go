package pipeline

import (
	"bytes"
	"fmt"
	"image/png"
	"path/filepath"

	"github.com/banshee-data/layerbg/internal/fsutil"
	"github.com/banshee-data/layerbg/internal/raster"
)

// PNGSink writes fg_NNNNNN.png and, optionally, bg_NNNNNN.png per frame.
type PNGSink struct {
	fsys       fsutil.FileSystem
	dir        string
	background bool
	encoder    png.Encoder
}

// NewPNGSink creates dir if needed.
func NewPNGSink(fsys fsutil.FileSystem, dir string, background bool) (*PNGSink, error) {
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &PNGSink{
		fsys:       fsys,
		dir:        dir,
		background: background,
		encoder:    png.Encoder{CompressionLevel: png.BestSpeed},
	}, nil
}

// Write encodes the frame outputs.
func (s *PNGSink) Write(index int, fg, bg *raster.Bytes) error {
	if err := s.writePNG(fmt.Sprintf("fg_%06d.png", index), fg); err != nil {
		return err
	}
	if s.background {
		return s.writePNG(fmt.Sprintf("bg_%06d.png", index), bg)
	}
	return nil
}

func (s *PNGSink) writePNG(name string, img *raster.Bytes) error {
	if img == nil {
		return fmt.Errorf("%s: no image", name)
	}
	var buf bytes.Buffer
	if err := s.encoder.Encode(&buf, img.ToImage()); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	if err := s.fsys.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
