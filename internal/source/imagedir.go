package source

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"

	"github.com/banshee-data/layerbg/internal/fsutil"
	"github.com/banshee-data/layerbg/internal/monitoring"
	"github.com/banshee-data/layerbg/internal/raster"
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// ImageDir reads the PNG and JPEG files of a directory in lexical order.
type ImageDir struct {
	fsys  fsutil.FileSystem
	dir   string
	files []string
	next  int
	opts  Options
}

// NewImageDir lists dir. It fails if dir holds no image files.
func NewImageDir(fsys fsutil.FileSystem, dir string, opts Options) (*ImageDir, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	names, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var files []string
	for _, name := range names {
		if imageExts[strings.ToLower(filepath.Ext(name))] {
			files = append(files, name)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no png or jpeg files in %s", dir)
	}
	monitoring.Logf("[ImageDir] %s: %d frames", dir, len(files))
	return &ImageDir{fsys: fsys, dir: dir, files: files, opts: opts}, nil
}

// Len returns the number of frames.
func (d *ImageDir) Len() int { return len(d.files) }

// Current returns the file name of the frame last returned by Next.
func (d *ImageDir) Current() string {
	if d.next == 0 {
		return ""
	}
	return d.files[d.next-1]
}

// Next decodes the next file. Frames that do not match the configured size
// are resized with bilinear interpolation.
func (d *ImageDir) Next(ctx context.Context) (*raster.Bytes, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.next >= len(d.files) {
		return nil, io.EOF
	}
	name := d.files[d.next]
	d.next++

	return LoadImage(d.fsys, filepath.Join(d.dir, name), d.opts)
}

// LoadImage decodes one PNG or JPEG file into a raster shaped by opts.
func LoadImage(fsys fsutil.FileSystem, path string, opts Options) (*raster.Bytes, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return toRaster(img, opts)
}

// Close is a no-op.
func (d *ImageDir) Close() error { return nil }

func toRaster(img image.Image, opts Options) (*raster.Bytes, error) {
	b := img.Bounds()
	if opts.Width > 0 && (b.Dx() != opts.Width || b.Dy() != opts.Height) {
		img = resize.Resize(uint(opts.Width), uint(opts.Height), img, resize.Bilinear)
	}
	return raster.FromImage(img, opts.channels())
}
