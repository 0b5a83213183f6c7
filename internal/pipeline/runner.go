package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/layerbg/internal/monitoring"
	"github.com/banshee-data/layerbg/internal/raster"
	"github.com/banshee-data/layerbg/internal/source"
)

// Segmenter is the contract shared by background subtractors.
type Segmenter interface {
	Process(frame *raster.Bytes, roi *raster.Rect) error
	Foreground() *raster.Bytes
	Background() *raster.Bytes
}

// Sink receives the outputs of every processed frame.
type Sink interface {
	Write(index int, fg, bg *raster.Bytes) error
}

// DefaultMaxConsecutiveErrors stops a run whose source keeps failing.
const DefaultMaxConsecutiveErrors = 10

// Config configures a Runner.
type Config struct {
	Source    source.Source
	Segmenter Segmenter
	// Sink is optional.
	Sink Sink
	// ROI restricts processing; nil processes whole frames.
	ROI *raster.Rect
	// MaxFrames stops the run after that many processed frames; 0 is unbounded.
	MaxFrames int
	// MaxConsecutiveErrors defaults to DefaultMaxConsecutiveErrors.
	MaxConsecutiveErrors int
	// OnFrame runs after each processed frame, before the sink.
	OnFrame func(index int) error
}

// Result summarises a run.
type Result struct {
	Frames  int
	Skipped int
	Elapsed time.Duration
}

// FPS returns the processing rate of the run.
func (r Result) FPS() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Frames) / r.Elapsed.Seconds()
}

// Runner pulls frames until the source is exhausted or the context ends.
type Runner struct {
	cfg Config
}

// NewRunner validates cfg.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Source == nil {
		return nil, errors.New("runner needs a source")
	}
	if cfg.Segmenter == nil {
		return nil, errors.New("runner needs a segmenter")
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	return &Runner{cfg: cfg}, nil
}

// Run processes frames. Frames the source cannot decode or the segmenter
// rejects are skipped. A cancelled context ends the run with the counts so
// far and the context error.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	var res Result
	start := time.Now()

	failures := 0
	for index := 0; r.cfg.MaxFrames == 0 || res.Frames < r.cfg.MaxFrames; index++ {
		frame, err := r.cfg.Source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.Elapsed = time.Since(start)
			return res, ctxErr
		}
		if err == nil {
			err = r.cfg.Segmenter.Process(frame, r.cfg.ROI)
		}
		if err != nil {
			res.Skipped++
			failures++
			monitoring.Logf("[Runner] skipping frame %d: %v", index, err)
			if failures >= r.cfg.MaxConsecutiveErrors {
				res.Elapsed = time.Since(start)
				return res, fmt.Errorf("%d consecutive frame errors, last: %w", failures, err)
			}
			continue
		}
		failures = 0
		res.Frames++

		if r.cfg.OnFrame != nil {
			if err := r.cfg.OnFrame(index); err != nil {
				res.Elapsed = time.Since(start)
				return res, fmt.Errorf("frame %d hook: %w", index, err)
			}
		}
		if r.cfg.Sink != nil {
			if err := r.cfg.Sink.Write(index, r.cfg.Segmenter.Foreground(), r.cfg.Segmenter.Background()); err != nil {
				res.Elapsed = time.Since(start)
				return res, fmt.Errorf("write frame %d: %w", index, err)
			}
		}
	}
	res.Elapsed = time.Since(start)
	monitoring.Logf("[Runner] processed %d frames (%d skipped) in %s, %.1f fps",
		res.Frames, res.Skipped, res.Elapsed.Round(time.Millisecond), res.FPS())
	return res, nil
}
